package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xonecas/niffler/internal/agent"
	"github.com/xonecas/niffler/internal/delta"
	"github.com/xonecas/niffler/internal/llm"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/provider"
	"github.com/xonecas/niffler/internal/shell"
	"github.com/xonecas/niffler/internal/store"
)

const (
	// MaxTaskDepth matches llm.MaxDepth: a task conversation runs at depth 1
	// and its tool whitelist always excludes task, so it can never spawn
	// another child.
	MaxTaskDepth = 1

	defaultTaskMaxIterations = 20
	maxTaskMaxIterations     = 60
)

// TaskArgs represents arguments to the task tool.
type TaskArgs struct {
	AgentName     string `json:"agentName"`
	Description   string `json:"description"`
	ModelNickname string `json:"modelNickname,omitempty"`
	Complexity    string `json:"complexity,omitempty"` // low, medium, high
}

// TaskResult is the structured result returned by the task tool.
type TaskResult struct {
	Success    bool     `json:"success"`
	Summary    string   `json:"summary"`
	Artifacts  []string `json:"artifacts,omitempty"`
	ToolCalls  int      `json:"toolCalls"`
	TokensUsed int      `json:"tokensUsed"`
	Error      string   `json:"error,omitempty"`
}

func NewTaskTool() mcp.Tool {
	return mcp.Tool{
		Name:        "task",
		Description: `Spawn a child conversation driven by a named agent definition (Description, Allowed Tools, System Prompt markdown file). The child runs the same tool-calling loop but rejects any tool call not in the agent's whitelist, and can never spawn further tasks. Returns a summary, not the child's full history.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"agentName":     {"type": "string", "description": "Name of the agent definition to use"},
				"description":   {"type": "string", "description": "Task for the child conversation to accomplish"},
				"modelNickname": {"type": "string", "description": "Optional override for which configured model runs the child"},
				"complexity":    {"type": "string", "enum": ["low", "medium", "high"]}
			},
			"required": ["agentName", "description"]
		}`),
		Kind: mcp.KindTask,
	}
}

// ModelResolver resolves a model nickname to a provider. Returning the
// default provider when nickname is empty is the caller's responsibility.
type ModelResolver func(nickname string) (provider.Provider, error)

// TaskHandler handles task tool calls.
type TaskHandler struct {
	agents         *agent.Store
	resolveModel   ModelResolver
	sh             *shell.Shell
	deltaTracker   *delta.Tracker
	webCache       *store.Store
	exaKey         string
	textExtraction TextExtraction
	allTools       []mcp.Tool
	st             *store.Store
}

// NewTaskHandler creates a handler for the task tool. allTools is the full
// builtin tool set; the handler filters it down to the agent's whitelist
// (always excluding task itself) for each child conversation.
func NewTaskHandler(
	agents *agent.Store,
	resolveModel ModelResolver,
	sh *shell.Shell,
	deltaTracker *delta.Tracker,
	st *store.Store,
	exaKey string,
	textExtraction TextExtraction,
	allTools []mcp.Tool,
) *TaskHandler {
	return &TaskHandler{
		agents:         agents,
		resolveModel:   resolveModel,
		sh:             sh,
		deltaTracker:   deltaTracker,
		st:             st,
		webCache:       st,
		exaKey:         exaKey,
		textExtraction: textExtraction,
		allTools:       allTools,
	}
}

func (h *TaskHandler) Handle(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args TaskArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}
	if args.AgentName == "" || args.Description == "" {
		return toolError("agentName and description are required"), nil
	}

	def, err := h.agents.Get(args.AgentName)
	if err != nil {
		return toolJSON(TaskResult{Success: false, Error: err.Error()}), nil
	}

	prov, err := h.resolveModel(args.ModelNickname)
	if err != nil {
		return toolJSON(TaskResult{Success: false, Error: fmt.Sprintf("resolve model: %v", err)}), nil
	}

	maxIter := maxIterationsForComplexity(args.Complexity)

	childTools := filterByWhitelist(h.allTools, def)
	childProxy := mcp.NewProxy(nil)
	registerChildHandlers(childProxy, childTools, h)

	history := []provider.Message{
		{Role: "system", Content: def.SystemPrompt, CreatedAt: time.Now()},
		{Role: "user", Content: args.Description, CreatedAt: time.Now()},
	}

	var totalIn, totalOut, toolCallCount int
	var messages []provider.Message
	var artifacts []string

	err = llm.ProcessTurn(ctx, llm.ProcessTurnOptions{
		Provider: prov,
		Proxy:    childProxy,
		Tools:    childTools,
		History:  history,
		OnMessage: func(msg provider.Message) {
			messages = append(messages, msg)
			if msg.Role == "assistant" {
				toolCallCount += len(msg.ToolCalls)
				for _, tc := range msg.ToolCalls {
					if p, ok := extractPathArg(tc); ok {
						artifacts = append(artifacts, p)
					}
				}
			}
		},
		OnUsage: func(in, out int) {
			totalIn += in
			totalOut += out
		},
		MaxToolRounds: maxIter,
		Depth:         MaxTaskDepth,
	})
	if err != nil {
		return toolJSON(TaskResult{Success: false, Error: err.Error(), ToolCalls: toolCallCount, TokensUsed: totalIn + totalOut}), nil
	}

	summary := summarizeChild(ctx, prov, childProxy, history, messages, maxIter)
	return toolJSON(TaskResult{
		Success:    true,
		Summary:    summary,
		Artifacts:  dedupeStrings(artifacts),
		ToolCalls:  toolCallCount,
		TokensUsed: totalIn + totalOut,
	}), nil
}

func maxIterationsForComplexity(complexity string) int {
	switch complexity {
	case "low":
		return 8
	case "high":
		return maxTaskMaxIterations
	default:
		return defaultTaskMaxIterations
	}
}

// filterByWhitelist returns the subset of tools the agent definition
// allows. task is always excluded, since a child can never spawn another.
func filterByWhitelist(tools []mcp.Tool, def *agent.Definition) []mcp.Tool {
	filtered := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if def.Allows(t.Name) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// registerChildHandlers registers handlers for the filtered child tool set,
// sharing the parent's shell, delta tracker and web cache. Only bash, read,
// list, fetch, webSearch, gitStatus and gitDiff get a handler; edit, create
// and todolist are not registered in a child even when whitelisted.
func registerChildHandlers(proxy *mcp.Proxy, tools []mcp.Tool, h *TaskHandler) {
	for _, t := range tools {
		switch t.Name {
		case "bash":
			proxy.RegisterTool(t, NewBashHandler(h.sh, h.deltaTracker).Handle)
		case "read":
			proxy.RegisterTool(t, NewReadHandler().Handle)
		case "list":
			proxy.RegisterTool(t, NewListHandler().Handle)
		case "fetch":
			proxy.RegisterTool(t, NewFetchHandler(h.webCache, h.textExtraction).Handle)
		case "webSearch":
			proxy.RegisterTool(t, NewWebSearchHandler(h.webCache, h.exaKey, ""))
		case "gitStatus":
			proxy.RegisterTool(t, NewGitStatusHandler())
		case "gitDiff":
			proxy.RegisterTool(t, NewGitDiffHandler())
		}
	}
}

// summarizeChild returns the child's last non-empty assistant message as
// its summary; only when there is none does it run one more text-only turn
// asking the child to summarize its work. Either way the parent
// conversation receives the summary rather than the child's full history.
func summarizeChild(ctx context.Context, prov provider.Provider, proxy *mcp.Proxy, history []provider.Message, childMessages []provider.Message, maxIter int) string {
	for i := len(childMessages) - 1; i >= 0; i-- {
		if childMessages[i].Role == "assistant" && childMessages[i].Content != "" {
			return childMessages[i].Content
		}
	}

	summaryHistory := append(append([]provider.Message{}, history...), childMessages...)
	summaryHistory = append(summaryHistory, provider.Message{
		Role:      "user",
		Content:   "Summarize what you accomplished in two or three sentences.",
		CreatedAt: time.Now(),
	})

	var final string
	err := llm.ProcessTurn(ctx, llm.ProcessTurnOptions{
		Provider: prov,
		Proxy:    proxy,
		Tools:    nil,
		History:  summaryHistory,
		OnMessage: func(msg provider.Message) {
			if msg.Role == "assistant" && msg.Content != "" {
				final = msg.Content
			}
		},
		MaxToolRounds: 1,
		Depth:         MaxTaskDepth,
	})
	if err != nil || final == "" {
		return "task completed with no summary text"
	}
	return final
}

// extractPathArg pulls a "path" string argument out of a tool call, for
// artifact tracking.
func extractPathArg(tc provider.ToolCall) (string, bool) {
	var probe struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(tc.Arguments, &probe); err != nil || probe.Path == "" {
		return "", false
	}
	switch tc.Name {
	case "edit", "create", "read":
		return probe.Path, true
	default:
		return "", false
	}
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
