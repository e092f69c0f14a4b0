// Package toolworker implements the Tool Worker: the single goroutine that
// validates, confirmation-gates, executes, and reports tool calls serially.
package toolworker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/niffler/internal/mailbox"
	"github.com/xonecas/niffler/internal/mcp"
)

// Worker processes ToolRequests strictly serially against the merged tool
// registry (builtin ∪ MCP ∪ task, all reachable through the same proxy).
type Worker struct {
	proxy  *mcp.Proxy
	tools  map[string]mcp.Tool
	fabric *mailbox.Fabric
}

// New creates a tool worker over the given registry proxy and known tool
// definitions (used for schema validation and the confirmation bit — the
// proxy itself only stores name->handler).
func New(proxy *mcp.Proxy, tools []mcp.Tool, fabric *mailbox.Fabric) *Worker {
	m := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	return &Worker{proxy: proxy, tools: m, fabric: fabric}
}

// SetTools replaces the known tool-definition set, used after registering a
// tool (e.g. the task tool) that was not known at construction time.
func (w *Worker) SetTools(tools []mcp.Tool) {
	m := make(map[string]mcp.Tool, len(tools))
	for _, t := range tools {
		m[t.Name] = t
	}
	w.tools = m
}

// Run pumps the tool-request mailbox until shutdown, executing requests one
// at a time and publishing correlated responses.
func (w *Worker) Run(ctx context.Context) {
	done := w.fabric.Done()
	for {
		req, ok := w.fabric.ToolRequests.Recv(done)
		if !ok {
			return
		}
		resp := w.Execute(ctx, req)
		if !w.fabric.ToolResponses.Send(ctx, done, resp) {
			return
		}
	}
}

// Execute runs the full per-request algorithm: lookup, schema validation,
// confirmation gating, dispatch, and error normalization. It never panics
// across the caller boundary — every internal failure becomes a ToolError
// response.
func (w *Worker) Execute(ctx context.Context, req mailbox.ToolRequest) (resp mailbox.ToolResponse) {
	resp.ID = req.ID
	defer func() {
		if r := recover(); r != nil {
			resp.Kind = mailbox.ToolError
			resp.Error = fmt.Sprintf("tool %q panicked: %v", req.Name, r)
			log.Warn().Str("tool", req.Name).Interface("panic", r).Msg("recovered tool panic")
		}
	}()

	def, ok := w.tools[req.Name]
	if !ok {
		resp.Kind = mailbox.ToolError
		resp.Error = fmt.Sprintf("validation error: unknown tool %q", req.Name)
		return resp
	}

	if len(def.InputSchema) > 0 {
		if verr := ValidateArgs(def.InputSchema, req.ArgsJSON); verr != nil {
			resp.Kind = mailbox.ToolError
			resp.Error = "validation error: " + verr.Error()
			log.Debug().Str("tool", req.Name).Err(verr).Msg("tool argument validation refused")
			return resp
		}
	}

	if def.RequiresConfirmation || req.RequiresConfirmation {
		approved := w.confirm(ctx, req)
		if !approved {
			resp.Kind = mailbox.ToolCancelled
			return resp
		}
	}

	result, err := w.proxy.CallTool(ctx, req.Name, req.ArgsJSON)
	if err != nil {
		resp.Kind = mailbox.ToolError
		resp.Error = err.Error()
		return resp
	}

	out, _ := json.Marshal(result)
	if result.IsError {
		resp.Kind = mailbox.ToolError
		resp.OutputJSON = out
		resp.Error = extractText(result)
		return resp
	}
	resp.Kind = mailbox.ToolResult
	resp.OutputJSON = out
	return resp
}

func extractText(result *mcp.ToolResult) string {
	for _, b := range result.Content {
		if b.Type == "text" {
			return b.Text
		}
	}
	return "tool error"
}

// confirm publishes a ConfirmRequest and blocks for the correlated reply or
// shutdown. A shutdown or fabric send failure is treated as a decline.
func (w *Worker) confirm(ctx context.Context, req mailbox.ToolRequest) bool {
	done := w.fabric.Done()
	creq := mailbox.ConfirmRequest{ID: req.ID, ToolName: req.Name, ArgsJSON: req.ArgsJSON}
	if !w.fabric.ConfirmRequests.Send(ctx, done, creq) {
		return false
	}
	for {
		reply, ok := w.fabric.ConfirmReplies.Recv(done)
		if !ok {
			return false
		}
		if reply.ID != req.ID {
			continue // stale reply for a prior request; keep waiting
		}
		return reply.Approved
	}
}
