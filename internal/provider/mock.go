package provider

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a test provider that returns a predefined response or
// tool calls without making any network request.
type MockProvider struct {
	mu sync.RWMutex

	name      string
	response  string
	toolCalls []ToolCall
	reasoning string
	streamErr error
	delay     time.Duration
}

// NewMock creates a new mock provider.
func NewMock(name, response string) *MockProvider {
	return &MockProvider{
		name:     name,
		response: response,
	}
}

// WithStreamError makes ChatStream return err instead of a response.
func (p *MockProvider) WithStreamError(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streamErr = err
	return p
}

// WithToolCalls sets tool calls to emit after the text content.
func (p *MockProvider) WithToolCalls(calls []ToolCall) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.toolCalls = calls
	return p
}

// WithReasoning sets reasoning content to emit before the text content.
func (p *MockProvider) WithReasoning(reasoning string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasoning = reasoning
	return p
}

// WithResponse sets the predefined text response.
func (p *MockProvider) WithResponse(response string) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.response = response
	return p
}

// SetDelay makes ChatStream wait before emitting events, to exercise
// cancellation paths in callers.
func (p *MockProvider) SetDelay(delay time.Duration) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = delay
	return p
}

// Name returns the provider identifier.
func (p *MockProvider) Name() string {
	return p.name
}

// ChatStream emits the predefined reasoning, content and tool calls as
// stream events, ignoring the input messages and tools entirely.
func (p *MockProvider) ChatStream(ctx context.Context, messages []Message, tools []Tool) (<-chan StreamEvent, error) {
	if err := p.waitDelay(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.streamErr != nil {
		return nil, p.streamErr
	}

	ch := make(chan StreamEvent, 8)
	reasoning, response, toolCalls := p.reasoning, p.response, p.toolCalls

	go func() {
		defer close(ch)
		if reasoning != "" {
			ch <- StreamEvent{Type: EventReasoningDelta, Content: reasoning}
		}
		if response != "" {
			ch <- StreamEvent{Type: EventContentDelta, Content: response}
		}
		for i, tc := range toolCalls {
			ch <- StreamEvent{
				Type:          EventToolCallBegin,
				ToolCallIndex: i,
				ToolCallID:    tc.ID,
				ToolCallName:  tc.Name,
			}
			if len(tc.Arguments) > 0 {
				ch <- StreamEvent{
					Type:          EventToolCallDelta,
					ToolCallIndex: i,
					ToolCallArgs:  string(tc.Arguments),
				}
			}
		}
		ch <- StreamEvent{Type: EventDone}
	}()

	return ch, nil
}

// ListModels returns a single synthetic model named after the provider.
func (p *MockProvider) ListModels(ctx context.Context) ([]Model, error) {
	return []Model{{Name: p.name}}, nil
}

// Close is a no-op for the mock provider (no resources to clean up).
func (p *MockProvider) Close() error {
	return nil
}

func (p *MockProvider) waitDelay(ctx context.Context) error {
	p.mu.RLock()
	delay := p.delay
	p.mu.RUnlock()
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MockFactory constructs MockProviders for Registry wiring in tests.
type MockFactory struct {
	name     string
	response string
}

func NewMockFactory(name, response string) *MockFactory {
	return &MockFactory{name: name, response: response}
}

func (f *MockFactory) Name() string { return f.name }

func (f *MockFactory) Create(model string, opts Options) Provider {
	return NewMock(f.name, f.response)
}
