package toolworker

import (
	"encoding/json"
	"fmt"
)

// jsonSchema is the small subset of JSON Schema the built-in and MCP tools
// declare: an object with named properties (each carrying a "type") and a
// list of required property names.
type jsonSchema struct {
	Type       string                `json:"type"`
	Properties map[string]jsonSchema `json:"properties"`
	Required   []string              `json:"required"`
}

// ValidateArgs checks argsJSON against a declared tool schema, producing an
// error that names the offending field, its expected kind, and what was
// received — per the tool worker's validation-error contract.
func ValidateArgs(schemaJSON, argsJSON json.RawMessage) error {
	var schema jsonSchema
	if err := json.Unmarshal(schemaJSON, &schema); err != nil {
		return nil // an undeclared/malformed schema cannot be validated against; skip
	}
	if schema.Type != "" && schema.Type != "object" {
		return nil
	}

	var args map[string]json.RawMessage
	if len(argsJSON) > 0 {
		if err := json.Unmarshal(argsJSON, &args); err != nil {
			return fmt.Errorf("arguments are not a JSON object: %v", err)
		}
	}

	for _, name := range schema.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required field %q", name)
		}
	}

	for name, raw := range args {
		propSchema, known := schema.Properties[name]
		if !known || propSchema.Type == "" {
			continue
		}
		if err := checkType(name, propSchema.Type, raw); err != nil {
			return err
		}
	}

	return nil
}

func checkType(field, expected string, raw json.RawMessage) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("field %q is malformed JSON", field)
	}
	got := kindOf(v)
	if matches(expected, got) {
		return nil
	}
	return fmt.Errorf("field %q expected %s, received %s (%v)", field, expected, got, v)
}

func kindOf(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		if vv == float64(int64(vv)) {
			return "integer"
		}
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	default:
		return "unknown"
	}
}

func matches(expected, got string) bool {
	if expected == got {
		return true
	}
	if expected == "number" && got == "integer" {
		return true
	}
	return false
}
