package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openCodeRequest is a custom request struct to ensure stream is always
// serialized (the shared OpenAI request types use omitempty on bool fields).
type openCodeRequest struct {
	Model         string                         `json:"model"`
	Messages      []openai.ChatCompletionMessage `json:"messages"`
	Tools         []openai.Tool                  `json:"tools,omitempty"`
	Temperature   float32                        `json:"temperature,omitempty"`
	Stream        bool                           `json:"stream"`
	StreamOptions *chatStreamOptions             `json:"stream_options,omitempty"`
}

// OpenCodeProvider implements the Provider interface for OpenCode Zen.
type OpenCodeProvider struct {
	name        string
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	model       string
	temperature float64
}

const (
	opencodeChatCompletionsEndpoint = "/chat/completions"
	opencodeMessagesEndpoint        = "/messages"
	opencodeResponsesEndpoint       = "/responses"
)

// opencodeModelEndpoints records the non-standard routing Zen uses for a
// handful of models; only chat/completions supports streaming today.
var opencodeModelEndpoints = map[string]string{
	"big-pickle":                 opencodeChatCompletionsEndpoint,
	"glm-4.7-free":               opencodeChatCompletionsEndpoint,
	"gpt-5-nano":                 opencodeChatCompletionsEndpoint, // docs say /responses, but that 500s
	"kimi-k2.5-free":             opencodeChatCompletionsEndpoint,
	"minimax-m2.1-free":          opencodeMessagesEndpoint,
	"trinity-large-preview-free": opencodeChatCompletionsEndpoint,
}

// NewOpenCode creates a new OpenCode Zen provider.
func NewOpenCode(endpoint, model, apiKey string) *OpenCodeProvider {
	return NewOpenCodeWithTemp("opencode_zen", endpoint, model, apiKey, 0.7)
}

func NewOpenCodeWithTemp(name string, endpoint, model, apiKey string, temperature float64) *OpenCodeProvider {
	return &OpenCodeProvider{
		name:        name,
		baseURL:     strings.TrimRight(endpoint, "/"),
		apiKey:      apiKey,
		httpClient:  &http.Client{},
		model:       model,
		temperature: temperature,
	}
}

// Name returns the provider identifier.
func (p *OpenCodeProvider) Name() string {
	return p.name
}

// ChatStream sends messages with optional tools and returns a channel of streaming events.
func (p *OpenCodeProvider) ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	endpoint := opencodeEndpointForModel(p.model)
	if endpoint != opencodeChatCompletionsEndpoint {
		return nil, fmt.Errorf("opencode model %q does not support streaming via %s", p.model, endpoint)
	}

	req := openCodeRequest{
		Model:         p.model,
		Messages:      mergeSystemMessagesOpenAI(toOpenAIMessages(messages)),
		Tools:         toOpenAITools(tools),
		Temperature:   float32(p.temperature),
		Stream:        true,
		StreamOptions: &chatStreamOptions{IncludeUsage: true},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	reader, err := httpDoSSE(ctx, httpRequestConfig{
		client:   p.httpClient,
		url:      p.baseURL + endpoint,
		body:     body,
		headers:  p.authHeaders(),
		provider: p.name,
		model:    p.model,
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent)
	go func() {
		defer close(ch)
		defer reader.Close()
		parseSSEStream(ctx, reader, ch)
	}()

	return ch, nil
}

// ListModels returns the fixed set of models Zen is known to route, since
// Zen has no models-listing endpoint of its own.
func (p *OpenCodeProvider) ListModels(ctx context.Context) ([]Model, error) {
	models := make([]Model, 0, len(opencodeModelEndpoints))
	for name := range opencodeModelEndpoints {
		models = append(models, Model{Name: name})
	}
	return models, nil
}

// Close closes idle HTTP connections.
func (p *OpenCodeProvider) Close() error {
	if p.httpClient != nil {
		p.httpClient.CloseIdleConnections()
	}
	return nil
}

func (p *OpenCodeProvider) authHeaders() map[string]string {
	headers := make(map[string]string)
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}
	return headers
}

func opencodeEndpointForModel(model string) string {
	if endpoint, ok := opencodeModelEndpoints[model]; ok {
		return endpoint
	}

	switch {
	case strings.HasPrefix(model, "gpt-"):
		return opencodeResponsesEndpoint
	case strings.HasPrefix(model, "claude-"):
		return opencodeMessagesEndpoint
	default:
		return opencodeChatCompletionsEndpoint
	}
}
