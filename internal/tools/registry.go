package tools

import (
	"context"

	"github.com/xonecas/niffler/internal/agent"
	"github.com/xonecas/niffler/internal/delta"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/shell"
	"github.com/xonecas/niffler/internal/store"
)

// RegistryDeps holds the shared resources the built-in tool handlers need.
// conversationID scopes plan-mode bookkeeping and todo-item storage to a
// single conversation; pass "" for a conversation-less registration (e.g. a
// one-off CLI invocation that never persists state).
type RegistryDeps struct {
	Store          *store.Store
	Shell          *shell.Shell
	DeltaTracker   *delta.Tracker
	ConversationID string
	Agents         *agent.Store
	ResolveModel   ModelResolver
	ExaAPIKey      string
	TextExtraction TextExtraction
}

// Register wires every built-in tool from spec.md § 4.2 into proxy. The
// task tool's child conversations use their own proxy, filled by
// registerChildHandlers in task.go instead of this function.
func Register(proxy *mcp.Proxy, deps RegistryDeps) {
	proxy.RegisterTool(NewBashTool(), NewBashHandler(deps.Shell, deps.DeltaTracker).Handle)
	proxy.RegisterTool(NewReadTool(), NewReadHandler().Handle)
	proxy.RegisterTool(NewListTool(), NewListHandler().Handle)
	proxy.RegisterTool(NewEditTool(), NewEditHandler(deps.Store, deps.DeltaTracker, deps.ConversationID).Handle)
	proxy.RegisterTool(NewCreateTool(), NewCreateHandler(deps.Store, deps.DeltaTracker, deps.ConversationID).Handle)
	proxy.RegisterTool(NewFetchTool(), NewFetchHandler(deps.Store, deps.TextExtraction).Handle)
	proxy.RegisterTool(NewWebSearchTool(), NewWebSearchHandler(deps.Store, deps.ExaAPIKey, ""))
	proxy.RegisterTool(NewGitStatusTool(), NewGitStatusHandler())
	proxy.RegisterTool(NewGitDiffTool(), NewGitDiffHandler())
	proxy.RegisterTool(NewTodoListTool(), NewTodoListHandler(deps.Store, deps.ConversationID).Handle)

	if deps.Agents != nil && deps.ResolveModel != nil {
		allTools, _ := proxy.ListTools(context.Background())
		proxy.RegisterTool(NewTaskTool(), NewTaskHandler(
			deps.Agents,
			deps.ResolveModel,
			deps.Shell,
			deps.DeltaTracker,
			deps.Store,
			deps.ExaAPIKey,
			deps.TextExtraction,
			allTools,
		).Handle)
	}
}
