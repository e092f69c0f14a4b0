package provider

import "fmt"

// ModelConfig is the subset of a configured model's settings needed to
// build a concrete Provider. internal/config.ModelConfig satisfies this
// via its field names; kept separate here so internal/provider does not
// import internal/config.
type ModelConfig struct {
	Nickname      string
	Provider      string
	Model         string
	BaseURL       string
	APIKey        string
	Temperature   float64
	TopP          float64
	RepeatPenalty float64
	MaxTokens     int
}

// BuildRegistry registers one factory per configured model, keyed by
// nickname rather than by backend kind, since two models on the same
// backend (e.g. two Ollama endpoints) need independent base URLs.
func BuildRegistry(models []ModelConfig) (*Registry, error) {
	reg := NewRegistry()
	for _, m := range models {
		factory, err := factoryFor(m)
		if err != nil {
			return nil, err
		}
		reg.RegisterFactory(m.Nickname, factory)
	}
	return reg, nil
}

func factoryFor(m ModelConfig) (Factory, error) {
	switch m.Provider {
	case "anthropic":
		return &nicknameFactory{cfg: m, build: func(m ModelConfig, opts Options) Provider {
			return NewAnthropicWithTemp(m.Nickname, m.Model, m.APIKey, opts.Temperature)
		}}, nil
	case "ollama":
		return &nicknameFactory{cfg: m, build: func(m ModelConfig, opts Options) Provider {
			return NewOllamaWithTemp(m.Nickname, m.BaseURL, m.Model, opts.Temperature)
		}}, nil
	case "vllm":
		return &nicknameFactory{cfg: m, build: func(m ModelConfig, opts Options) Provider {
			return NewVLLMWithTemp(m.Nickname, m.BaseURL, m.Model, m.APIKey, opts)
		}}, nil
	case "opencode_zen":
		return &nicknameFactory{cfg: m, build: func(m ModelConfig, opts Options) Provider {
			return NewOpenCodeWithTemp(m.Nickname, m.BaseURL, m.Model, m.APIKey, opts.Temperature)
		}}, nil
	case "opencode_zen_unified":
		zf := NewZenFactory(m.Nickname, m.APIKey, m.BaseURL)
		return &nicknameFactory{cfg: m, build: func(m ModelConfig, opts Options) Provider {
			return zf.Create(m.Model, opts)
		}}, nil
	case "mock":
		return &nicknameFactory{cfg: m, build: func(m ModelConfig, opts Options) Provider {
			return NewMock(m.Nickname, "")
		}}, nil
	default:
		return nil, fmt.Errorf("provider.BuildRegistry: unknown backend %q for model %q", m.Provider, m.Nickname)
	}
}

// nicknameFactory adapts a nickname-scoped model config into the Factory
// interface. It ignores the model argument Registry.Create passes (the
// model is already fixed by configuration) and fills in the configured
// temperature whenever the caller passes a zero Options value.
type nicknameFactory struct {
	cfg   ModelConfig
	build func(cfg ModelConfig, opts Options) Provider
}

func (f *nicknameFactory) Name() string { return f.cfg.Nickname }

func (f *nicknameFactory) Create(model string, opts Options) Provider {
	if opts.Temperature == 0 {
		opts.Temperature = f.cfg.Temperature
	}
	return f.build(f.cfg, opts)
}
