package tools

import (
	"encoding/json"
	"testing"

	"github.com/xonecas/niffler/internal/agent"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/provider"
)

func TestMaxIterationsForComplexity(t *testing.T) {
	cases := map[string]int{
		"low":    8,
		"high":   maxTaskMaxIterations,
		"medium": defaultTaskMaxIterations,
		"":       defaultTaskMaxIterations,
		"bogus":  defaultTaskMaxIterations,
	}
	for complexity, want := range cases {
		if got := maxIterationsForComplexity(complexity); got != want {
			t.Errorf("maxIterationsForComplexity(%q) = %d, want %d", complexity, got, want)
		}
	}
}

func TestFilterByWhitelistExcludesTask(t *testing.T) {
	def := &agent.Definition{AllowedTools: map[string]bool{"read": true, "bash": true, "task": true}}
	tools := []mcp.Tool{{Name: "read"}, {Name: "bash"}, {Name: "task"}, {Name: "edit"}}

	filtered := filterByWhitelist(tools, def)
	names := map[string]bool{}
	for _, tl := range filtered {
		names[tl.Name] = true
	}
	if !names["read"] || !names["bash"] {
		t.Fatalf("expected read and bash present, got %+v", filtered)
	}
	if names["task"] {
		t.Fatal("task must never be included in a child whitelist")
	}
	if names["edit"] {
		t.Fatal("edit was not in the agent's whitelist")
	}
}

func TestExtractPathArg(t *testing.T) {
	args, _ := json.Marshal(map[string]string{"path": "foo.go"})
	tc := provider.ToolCall{Name: "create", Arguments: args}

	path, ok := extractPathArg(tc)
	if !ok || path != "foo.go" {
		t.Fatalf("got %q, %v", path, ok)
	}

	tc2 := provider.ToolCall{Name: "bash", Arguments: args}
	if _, ok := extractPathArg(tc2); ok {
		t.Fatal("bash calls should not be tracked as artifacts")
	}

	tc3 := provider.ToolCall{Name: "create", Arguments: json.RawMessage(`{}`)}
	if _, ok := extractPathArg(tc3); ok {
		t.Fatal("missing path argument should not be tracked")
	}
}

func TestDedupeStrings(t *testing.T) {
	got := dedupeStrings([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
