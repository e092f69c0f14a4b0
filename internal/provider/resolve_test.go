package provider

import "testing"

func TestBuildRegistryUnknownProvider(t *testing.T) {
	_, err := BuildRegistry([]ModelConfig{{Nickname: "x", Provider: "carrier-pigeon"}})
	if err == nil {
		t.Fatal("expected error for unknown provider kind")
	}
}

func TestBuildRegistryPerNicknameIsolation(t *testing.T) {
	models := []ModelConfig{
		{Nickname: "ollama-local", Provider: "ollama", BaseURL: "http://localhost:11434", Model: "llama3"},
		{Nickname: "ollama-remote", Provider: "ollama", BaseURL: "http://remote:11434", Model: "mixtral"},
	}
	reg, err := BuildRegistry(models)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	local, err := reg.Create("ollama-local", "", Options{})
	if err != nil {
		t.Fatalf("Create(ollama-local): %v", err)
	}
	defer local.Close()
	remote, err := reg.Create("ollama-remote", "", Options{})
	if err != nil {
		t.Fatalf("Create(ollama-remote): %v", err)
	}
	defer remote.Close()

	localOllama, ok := local.(*OllamaProvider)
	if !ok {
		t.Fatalf("local provider is %T, want *OllamaProvider", local)
	}
	remoteOllama, ok := remote.(*OllamaProvider)
	if !ok {
		t.Fatalf("remote provider is %T, want *OllamaProvider", remote)
	}
	if localOllama.baseURL == remoteOllama.baseURL {
		t.Fatalf("expected independent base URLs, both got %q", localOllama.baseURL)
	}
}

func TestBuildRegistryMockBackendUsesNickname(t *testing.T) {
	reg, err := BuildRegistry([]ModelConfig{
		{Nickname: "m", Provider: "mock", Temperature: 0.7},
	})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	prov, err := reg.Create("m", "", Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer prov.Close()
	if prov.Name() != "m" {
		t.Fatalf("Name() = %q, want %q", prov.Name(), "m")
	}
}

func TestNicknameFactoryHonorsExplicitTemperature(t *testing.T) {
	f := &nicknameFactory{
		cfg: ModelConfig{Nickname: "m", Temperature: 0.9},
		build: func(cfg ModelConfig, opts Options) Provider {
			return NewMock(cfg.Nickname, "")
		},
	}
	// A caller-supplied non-zero temperature must not be overwritten.
	seen := Options{}
	f.build = func(cfg ModelConfig, opts Options) Provider {
		seen = opts
		return NewMock(cfg.Nickname, "")
	}
	f.Create("", Options{Temperature: 0.2})
	if seen.Temperature != 0.2 {
		t.Fatalf("Temperature = %v, want 0.2 (caller value preserved)", seen.Temperature)
	}

	f.Create("", Options{})
	if seen.Temperature != 0.9 {
		t.Fatalf("Temperature = %v, want 0.9 (config default applied)", seen.Temperature)
	}
}

func TestBuildRegistryAcceptsOpenCodeZenUnified(t *testing.T) {
	reg, err := BuildRegistry([]ModelConfig{
		{Nickname: "zen", Provider: "opencode_zen_unified", Model: "claude-opus", BaseURL: "https://opencode.ai/zen/v1"},
	})
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	if _, ok := reg.factories["zen"]; !ok {
		t.Fatal("expected a factory registered under nickname \"zen\"")
	}
}

func TestMockFactoryRegistration(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFactory("m", NewMockFactory("m", "hello"))

	prov, err := reg.Create("m", "", Options{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer prov.Close()

	mock, ok := prov.(*MockProvider)
	if !ok {
		t.Fatalf("provider is %T, want *MockProvider", prov)
	}
	if mock.response != "hello" {
		t.Fatalf("response = %q, want %q", mock.response, "hello")
	}
}
