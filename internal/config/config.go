// Package config handles configuration loading from YAML files with
// environment-variable interpolation.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Models           []ModelConfig              `yaml:"models"`
	InstructionFiles []string                   `yaml:"instructionFiles"`
	TextExtraction   TextExtraction             `yaml:"textExtraction"`
	Tools            ToolsConfig                `yaml:"tools"`
	MCPServers       map[string]MCPServerConfig `yaml:"mcpServers"`
	Cache            CacheConfig                `yaml:"cache"`
}

// ModelConfig describes one configured model, addressed elsewhere by
// Nickname.
type ModelConfig struct {
	Nickname               string  `yaml:"nickname"`
	Provider               string  `yaml:"provider"` // anthropic, ollama, vllm, opencode_zen, opencode_zen_unified, mock
	Model                  string  `yaml:"model"`
	BaseURL                string  `yaml:"baseUrl"`
	APIEnvVar              string  `yaml:"apiEnvVar"`
	Context                int     `yaml:"context"`
	MaxTokens              int     `yaml:"maxTokens"`
	Temperature            float64 `yaml:"temperature"`
	TopP                   float64 `yaml:"topP"`
	Reasoning              string  `yaml:"reasoning"` // off, low, medium, high
	ReasoningVisible       bool    `yaml:"reasoningContentVisible"`
	InputCostPerMToken     float64 `yaml:"inputCostPerMToken"`
	OutputCostPerMToken    float64 `yaml:"outputCostPerMToken"`
	ReasoningCostPerMToken float64 `yaml:"reasoningCostPerMToken"`
	ThinkingBudget         int     `yaml:"thinkingBudget"`
}

// APIKey resolves the model's API key from its configured environment
// variable. Empty if APIEnvVar is unset or the variable is unset.
func (m ModelConfig) APIKey() string {
	if m.APIEnvVar == "" {
		return ""
	}
	return os.Getenv(m.APIEnvVar)
}

// TextExtraction configures the external text-extraction pipeline used by
// the fetch tool as an alternative to the built-in HTML stripper.
type TextExtraction struct {
	Enabled           bool   `yaml:"enabled"`
	Command           string `yaml:"command"`
	Mode              string `yaml:"mode"` // url, stdin
	FallbackToBuiltin bool   `yaml:"fallbackToBuiltin"`
}

// ToolsConfig holds tool-related settings.
type ToolsConfig struct {
	Security SecurityConfig `yaml:"security"`
}

// SecurityConfig holds the tool security settings. BlockedCommands lists
// shell commands the bash tool refuses outright. RequireConfirmation is
// parsed but not read anywhere: which tool calls prompt for confirmation is
// decided by each tool definition's RequiresConfirmation flag.
type SecurityConfig struct {
	RequireConfirmation []string `yaml:"requireConfirmation"`
	BlockedCommands     []string `yaml:"blockedCommands"`
}

// MCPServerConfig describes one upstream MCP server.
type MCPServerConfig struct {
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	URL     string            `yaml:"url"`
}

// CacheConfig holds web cache settings.
type CacheConfig struct {
	TTLHours int `yaml:"ttlHours"`
}

// CacheTTLOrDefault returns the configured TTL or 24 hours if unset.
func (c CacheConfig) CacheTTLOrDefault() int {
	if c.TTLHours <= 0 {
		return 24
	}
	return c.TTLHours
}

// Load reads configuration from a YAML file, applying ${VAR} and
// ${VAR:-default} environment-variable interpolation before parsing.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	interpolated := interpolateEnv(string(raw))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// interpolateEnv substitutes ${VAR} and ${VAR:-default} references with the
// environment, falling back to the given default (or empty string) when the
// variable is unset.
func interpolateEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envPattern.FindStringSubmatch(match)
		name, hasDefault, def := groups[1], groups[2] != "", groups[3]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	})
}

// Validate returns an error if the configuration is invalid.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Models) == 0 {
		errs = append(errs, errors.New("models: at least one model must be configured"))
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		errs = append(errs, validateModelConfig(m)...)
		if m.Nickname != "" {
			if seen[m.Nickname] {
				errs = append(errs, fmt.Errorf("models: duplicate nickname %q", m.Nickname))
			}
			seen[m.Nickname] = true
		}
	}

	if c.TextExtraction.Enabled && c.TextExtraction.Command == "" {
		errs = append(errs, errors.New("textExtraction.command is required when textExtraction.enabled is true"))
	}
	if c.TextExtraction.Mode != "" && c.TextExtraction.Mode != "url" && c.TextExtraction.Mode != "stdin" {
		errs = append(errs, fmt.Errorf("textExtraction.mode=%q must be url or stdin", c.TextExtraction.Mode))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateModelConfig(m ModelConfig) []error {
	var errs []error
	if m.Nickname == "" {
		errs = append(errs, errors.New("models: nickname is required"))
	}
	if m.Model == "" {
		errs = append(errs, fmt.Errorf("models.%s.model is required", m.Nickname))
	}
	switch m.Provider {
	case "anthropic", "ollama", "vllm", "opencode_zen", "opencode_zen_unified", "mock":
	default:
		errs = append(errs, fmt.Errorf("models.%s.provider=%q must be one of anthropic, ollama, vllm, opencode_zen, opencode_zen_unified, mock", m.Nickname, m.Provider))
	}
	if m.Temperature < 0.0 || m.Temperature > 2.0 {
		errs = append(errs, fmt.Errorf("models.%s.temperature=%v must be between 0.0 and 2.0", m.Nickname, m.Temperature))
	}
	switch m.Reasoning {
	case "", "off", "low", "medium", "high":
	default:
		errs = append(errs, fmt.Errorf("models.%s.reasoning=%q must be one of off, low, medium, high", m.Nickname, m.Reasoning))
	}
	return errs
}

// ModelByNickname returns the model config for the given nickname.
func (c *Config) ModelByNickname(nickname string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Nickname == nickname {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// DataDir returns the path to the Niffler data directory (~/.config/niffler).
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "niffler"), nil
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	return dir, nil
}

// AgentsDir returns the path to the directory holding agent definition
// markdown files: the agents subdirectory of the data directory.
func AgentsDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "agents"), nil
}
