package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/xonecas/niffler/internal/mailbox"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/provider"
	"github.com/xonecas/niffler/internal/toolworker"
)

func echoTool() mcp.Tool {
	return mcp.Tool{
		Name:        "echo",
		Description: "echoes its input argument",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`),
	}
}

func registerEcho(proxy *mcp.Proxy) {
	proxy.RegisterTool(echoTool(), func(ctx context.Context, args json.RawMessage) (*mcp.ToolResult, error) {
		var a struct {
			Text string `json:"text"`
		}
		_ = json.Unmarshal(args, &a)
		return &mcp.ToolResult{Content: []mcp.ContentBlock{{Type: "text", Text: a.Text}}}, nil
	})
}

func TestProcessTurnNoToolCallsReturnsImmediately(t *testing.T) {
	prov := provider.NewMock("m", "hello")
	var messages []provider.Message

	err := ProcessTurn(context.Background(), ProcessTurnOptions{
		Provider: prov,
		History:  []provider.Message{{Role: "user", Content: "hi"}},
		OnMessage: func(msg provider.Message) {
			messages = append(messages, msg)
		},
	})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" {
		t.Fatalf("messages = %+v, want one assistant message with content %q", messages, "hello")
	}
}

func TestProcessTurnDirectToolExecution(t *testing.T) {
	proxy := mcp.NewProxy(nil)
	registerEcho(proxy)

	prov := provider.NewMock("m", "done").WithToolCalls([]provider.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"ping"}`)},
	})

	var toolMsg provider.Message
	err := ProcessTurn(context.Background(), ProcessTurnOptions{
		Provider:      prov,
		Proxy:         proxy,
		Tools:         []mcp.Tool{echoTool()},
		History:       []provider.Message{{Role: "user", Content: "hi"}},
		MaxToolRounds: 1,
		OnMessage: func(msg provider.Message) {
			if msg.Role == "tool" {
				toolMsg = msg
			}
		},
	})
	// MockProvider re-emits the same tool call every round, so a single
	// round exhausts MaxToolRounds; the dispatch under test already ran
	// and is checked via toolMsg regardless of the terminal error.
	if !errors.Is(err, ErrMaxToolRoundsExceeded) {
		t.Fatalf("ProcessTurn: %v, want ErrMaxToolRoundsExceeded", err)
	}
	if toolMsg.ToolCallID != "call-1" || toolMsg.Content != "ping" {
		t.Fatalf("tool message = %+v, want content %q for call-1", toolMsg, "ping")
	}
}

func TestProcessTurnFabricRoutesThroughToolWorker(t *testing.T) {
	proxy := mcp.NewProxy(nil)
	registerEcho(proxy)

	fabric := mailbox.NewFabric()
	worker := toolworker.New(proxy, []mcp.Tool{echoTool()}, fabric)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	prov := provider.NewMock("m", "done").WithToolCalls([]provider.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"pong"}`)},
	})

	var toolMsg provider.Message
	err := ProcessTurn(ctx, ProcessTurnOptions{
		Provider:      prov,
		Proxy:         proxy,
		Tools:         []mcp.Tool{echoTool()},
		History:       []provider.Message{{Role: "user", Content: "hi"}},
		MaxToolRounds: 1,
		OnMessage: func(msg provider.Message) {
			if msg.Role == "tool" {
				toolMsg = msg
			}
		},
		ToolFabric: fabric,
	})
	if !errors.Is(err, ErrMaxToolRoundsExceeded) {
		t.Fatalf("ProcessTurn: %v, want ErrMaxToolRoundsExceeded", err)
	}
	if toolMsg.Content != "pong" {
		t.Fatalf("tool message content = %q, want %q", toolMsg.Content, "pong")
	}
}

func TestProcessTurnFabricConfirmationDeclined(t *testing.T) {
	tool := echoTool()
	tool.RequiresConfirmation = true

	proxy := mcp.NewProxy(nil)
	proxy.RegisterTool(tool, func(ctx context.Context, args json.RawMessage) (*mcp.ToolResult, error) {
		t.Fatal("handler must not run when confirmation is declined")
		return nil, nil
	})

	fabric := mailbox.NewFabric()
	worker := toolworker.New(proxy, []mcp.Tool{tool}, fabric)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Run(ctx)

	// Auto-decline any confirmation request.
	go func() {
		req, ok := fabric.ConfirmRequests.Recv(fabric.Done())
		if !ok {
			return
		}
		fabric.ConfirmReplies.Send(ctx, fabric.Done(), mailbox.ConfirmResponse{ID: req.ID, Approved: false})
	}()

	prov := provider.NewMock("m", "done").WithToolCalls([]provider.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"ping"}`)},
	})

	var toolMsg provider.Message
	err := ProcessTurn(ctx, ProcessTurnOptions{
		Provider:      prov,
		Proxy:         proxy,
		Tools:         []mcp.Tool{tool},
		History:       []provider.Message{{Role: "user", Content: "hi"}},
		MaxToolRounds: 1,
		OnMessage: func(msg provider.Message) {
			if msg.Role == "tool" {
				toolMsg = msg
			}
		},
		ToolFabric: fabric,
	})
	if !errors.Is(err, ErrMaxToolRoundsExceeded) {
		t.Fatalf("ProcessTurn: %v, want ErrMaxToolRoundsExceeded", err)
	}
	if toolMsg.Content != "Tool call declined by user." {
		t.Fatalf("tool message content = %q, want the decline message", toolMsg.Content)
	}
}

func TestProcessTurnRespectsMaxDepth(t *testing.T) {
	prov := provider.NewMock("m", "hello")
	err := ProcessTurn(context.Background(), ProcessTurnOptions{
		Provider: prov,
		History:  []provider.Message{{Role: "user", Content: "hi"}},
		Depth:    MaxDepth + 1,
	})
	if err == nil {
		t.Fatal("expected error for depth beyond MaxDepth")
	}
}

func TestProcessTurnStreamErrorPropagates(t *testing.T) {
	prov := provider.NewMock("m", "").WithStreamError(context.DeadlineExceeded)
	err := ProcessTurn(context.Background(), ProcessTurnOptions{
		Provider: prov,
		History:  []provider.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error when the provider stream fails")
	}
}

func TestProcessTurnReturnsTerminalErrorOnMaxToolRounds(t *testing.T) {
	proxy := mcp.NewProxy(nil)
	registerEcho(proxy)

	prov := provider.NewMock("m", "").WithToolCalls([]provider.ToolCall{
		{ID: "call-1", Name: "echo", Arguments: json.RawMessage(`{"text":"ping"}`)},
	})

	err := ProcessTurn(context.Background(), ProcessTurnOptions{
		Provider:      prov,
		Proxy:         proxy,
		Tools:         []mcp.Tool{echoTool()},
		History:       []provider.Message{{Role: "user", Content: "hi"}},
		MaxToolRounds: 2,
	})
	if !errors.Is(err, ErrMaxToolRoundsExceeded) {
		t.Fatalf("ProcessTurn: %v, want ErrMaxToolRoundsExceeded", err)
	}
}

func TestInjectRecitationUsesScratchpadOverGoal(t *testing.T) {
	history := []provider.Message{
		{Role: "user", Content: "original goal"},
		{Role: "tool", Content: "some result"},
	}
	pad := scratchpadStub{text: "current plan"}
	injectRecitation(history, pad, reminderInterval)

	got := history[len(history)-1].Content
	if !strings.Contains(got, "current plan") {
		t.Fatalf("reminder = %q, want it to contain the scratchpad text", got)
	}
	if strings.Contains(got, "original goal") {
		t.Fatalf("reminder = %q, scratchpad should take priority over the goal fallback", got)
	}
}

func TestInjectRecitationSkipsOffIntervalRounds(t *testing.T) {
	history := []provider.Message{{Role: "tool", Content: "result"}}
	injectRecitation(history, nil, 1)
	if history[0].Content != "result" {
		t.Fatalf("content = %q, want unchanged outside the reminder interval", history[0].Content)
	}
}

type scratchpadStub struct{ text string }

func (s scratchpadStub) Content() string { return s.text }
