package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInterpolateEnvSubstitutesSetVariable(t *testing.T) {
	t.Setenv("NIFFLER_TEST_VAR", "secret-value")
	got := interpolateEnv("key: ${NIFFLER_TEST_VAR}")
	if got != "key: secret-value" {
		t.Fatalf("got %q", got)
	}
}

func TestInterpolateEnvUsesDefaultWhenUnset(t *testing.T) {
	os.Unsetenv("NIFFLER_TEST_UNSET")
	got := interpolateEnv("key: ${NIFFLER_TEST_UNSET:-fallback}")
	if got != "key: fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestInterpolateEnvEmptyWhenUnsetNoDefault(t *testing.T) {
	os.Unsetenv("NIFFLER_TEST_UNSET2")
	got := interpolateEnv("key: ${NIFFLER_TEST_UNSET2}")
	if got != "key: " {
		t.Fatalf("got %q", got)
	}
}

func TestInterpolateEnvPrefersSetOverDefault(t *testing.T) {
	t.Setenv("NIFFLER_TEST_VAR3", "actual")
	got := interpolateEnv("key: ${NIFFLER_TEST_VAR3:-fallback}")
	if got != "key: actual" {
		t.Fatalf("got %q", got)
	}
}

func TestModelConfigAPIKey(t *testing.T) {
	t.Setenv("NIFFLER_TEST_KEY", "sk-abc")
	m := ModelConfig{APIEnvVar: "NIFFLER_TEST_KEY"}
	if m.APIKey() != "sk-abc" {
		t.Fatalf("got %q", m.APIKey())
	}

	m2 := ModelConfig{}
	if m2.APIKey() != "" {
		t.Fatalf("expected empty key when apiEnvVar unset, got %q", m2.APIKey())
	}
}

func TestValidateRequiresAtLeastOneModel(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty models list")
	}
}

func TestValidateRejectsDuplicateNicknames(t *testing.T) {
	cfg := &Config{Models: []ModelConfig{
		{Nickname: "fast", Model: "gpt-x"},
		{Nickname: "fast", Model: "gpt-y"},
	}}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for duplicate nicknames")
	}
}

func TestValidateRejectsBadTemperature(t *testing.T) {
	cfg := &Config{Models: []ModelConfig{{Nickname: "n", Model: "m", Temperature: 3.0}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range temperature")
	}
}

func TestValidateRejectsBadReasoning(t *testing.T) {
	cfg := &Config{Models: []ModelConfig{{Nickname: "n", Model: "m", Reasoning: "extreme"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid reasoning level")
	}
}

func TestValidateRejectsTextExtractionMissingCommand(t *testing.T) {
	cfg := &Config{
		Models:         []ModelConfig{{Nickname: "n", Model: "m"}},
		TextExtraction: TextExtraction{Enabled: true},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled textExtraction without command")
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{Models: []ModelConfig{{Nickname: "n", Provider: "anthropic", Model: "m", Temperature: 1.0, Reasoning: "medium"}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{Models: []ModelConfig{{Nickname: "n", Provider: "carrier-pigeon", Model: "m"}}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unrecognized provider")
	}
}

func TestValidateAcceptsAllKnownProviders(t *testing.T) {
	for _, p := range []string{"anthropic", "ollama", "vllm", "opencode_zen", "opencode_zen_unified", "mock"} {
		cfg := &Config{Models: []ModelConfig{{Nickname: "n", Provider: p, Model: "m"}}}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("provider %q: unexpected error: %v", p, err)
		}
	}
}

func TestModelByNickname(t *testing.T) {
	cfg := &Config{Models: []ModelConfig{{Nickname: "fast", Model: "gpt-x"}}}
	m, ok := cfg.ModelByNickname("fast")
	if !ok || m.Model != "gpt-x" {
		t.Fatalf("got %+v, %v", m, ok)
	}
	if _, ok := cfg.ModelByNickname("missing"); ok {
		t.Fatal("expected not found for unknown nickname")
	}
}

func TestCacheTTLOrDefault(t *testing.T) {
	if got := (CacheConfig{}).CacheTTLOrDefault(); got != 24 {
		t.Fatalf("got %d, want 24", got)
	}
	if got := (CacheConfig{TTLHours: 5}).CacheTTLOrDefault(); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestLoadParsesAndInterpolates(t *testing.T) {
	t.Setenv("NIFFLER_TEST_LOAD_KEY", "ANTHROPIC_API_KEY")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
models:
  - nickname: fast
    provider: anthropic
    model: claude-haiku
    apiEnvVar: ${NIFFLER_TEST_LOAD_KEY}
    temperature: 0.5
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Models) != 1 {
		t.Fatalf("got %d models, want 1", len(cfg.Models))
	}
	if cfg.Models[0].APIEnvVar != "ANTHROPIC_API_KEY" {
		t.Fatalf("apiEnvVar = %q, want interpolated value", cfg.Models[0].APIEnvVar)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}
