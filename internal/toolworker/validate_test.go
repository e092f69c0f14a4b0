package toolworker

import (
	"encoding/json"
	"testing"
)

const readSchema = `{
	"type": "object",
	"properties": {
		"file": {"type": "string"},
		"start": {"type": "integer"}
	},
	"required": ["file"]
}`

func TestValidateArgsMissingRequired(t *testing.T) {
	err := ValidateArgs(json.RawMessage(readSchema), json.RawMessage(`{}`))
	if err == nil {
		t.Fatal("expected error for missing required field")
	}
}

func TestValidateArgsTypeMismatch(t *testing.T) {
	err := ValidateArgs(json.RawMessage(readSchema), json.RawMessage(`{"file": 5}`))
	if err == nil {
		t.Fatal("expected error for type mismatch")
	}
}

func TestValidateArgsOK(t *testing.T) {
	err := ValidateArgs(json.RawMessage(readSchema), json.RawMessage(`{"file": "a.go", "start": 1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
