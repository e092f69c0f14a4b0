package tools

import (
	"path/filepath"
	"testing"
)

func TestValidatePathWithRoot(t *testing.T) {
	root := t.TempDir()

	abs, err := validatePathWithRoot("sub/file.txt", root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(root, "sub", "file.txt")
	if abs != want {
		t.Fatalf("got %q, want %q", abs, want)
	}

	if _, err := validatePathWithRoot("../escape.txt", root); err == nil {
		t.Fatal("expected error for path escaping root")
	}
	if _, err := validatePathWithRoot("sub/../../escape.txt", root); err == nil {
		t.Fatal("expected error for path escaping root via traversal")
	}
}

func TestValidatePathWithRootAbsoluteInsideRoot(t *testing.T) {
	root := t.TempDir()
	abs := filepath.Join(root, "file.txt")
	got, err := validatePathWithRoot(abs, root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != abs {
		t.Fatalf("got %q, want %q", got, abs)
	}
}

func TestToolErrorAndText(t *testing.T) {
	e := toolError("bad: %s", "thing")
	if !e.IsError || e.Content[0].Text != "bad: thing" {
		t.Fatalf("unexpected result: %+v", e)
	}

	r := toolText("ok")
	if r.IsError || r.Content[0].Text != "ok" {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestToolJSON(t *testing.T) {
	r := toolJSON(map[string]string{"a": "b"})
	if r.IsError {
		t.Fatalf("unexpected error result: %+v", r)
	}
	if r.Content[0].Text == "" {
		t.Fatal("expected non-empty JSON body")
	}
}
