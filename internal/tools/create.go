package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xonecas/niffler/internal/delta"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/store"
)

// CreateArgs represents arguments to the create tool.
type CreateArgs struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Overwrite   bool   `json:"overwrite,omitempty"`
	CreateDirs  bool   `json:"createDirs,omitempty"`
	Permissions string `json:"permissions,omitempty"` // octal, e.g. "0644"
}

func NewCreateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "create",
		Description: `Create a file. Refuses an existing path unless overwrite is set. In plan mode, the created path is tracked so a later edit() on it is permitted within the same plan session.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path":        {"type": "string", "description": "Path to the file to create"},
				"content":     {"type": "string", "description": "File content"},
				"overwrite":   {"type": "boolean", "description": "Allow overwriting an existing file"},
				"createDirs":  {"type": "boolean", "description": "Create missing parent directories"},
				"permissions": {"type": "string", "description": "Octal file mode, e.g. \"0644\" (default 0600)"}
			},
			"required": ["path", "content"]
		}`),
		RequiresConfirmation: true,
		Kind:                 mcp.KindBuiltin,
	}
}

// CreateHandler handles create tool calls.
type CreateHandler struct {
	store          *store.Store
	deltaTracker   *delta.Tracker
	conversationID string
}

// NewCreateHandler creates a handler for the create tool, scoped to a
// conversation for plan-mode tracking.
func NewCreateHandler(st *store.Store, dt *delta.Tracker, conversationID string) *CreateHandler {
	return &CreateHandler{store: st, deltaTracker: dt, conversationID: conversationID}
}

func (h *CreateHandler) Handle(_ context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args CreateArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}
	if args.Path == "" {
		return toolError("path cannot be empty"), nil
	}

	absPath, err := validatePath(args.Path)
	if err != nil {
		return toolError("%v", err), nil
	}

	if _, err := os.Stat(absPath); err == nil && !args.Overwrite {
		return toolError("file already exists: %s (set overwrite to replace it)", args.Path), nil
	}

	if err := checkPlanMode(h.store, h.conversationID, absPath, true); err != nil {
		return toolError("%v", err), nil
	}

	if args.CreateDirs {
		if err := os.MkdirAll(filepath.Dir(absPath), 0755); err != nil {
			return toolError("failed to create directories: %v", err), nil
		}
	}

	mode := os.FileMode(0600)
	if args.Permissions != "" {
		if parsed, perr := parseOctalMode(args.Permissions); perr == nil {
			mode = parsed
		}
	}

	if h.deltaTracker != nil {
		h.deltaTracker.RecordCreate(absPath)
	}

	if err := os.WriteFile(absPath, []byte(args.Content), mode); err != nil {
		return toolError("failed to create file: %v", err), nil
	}

	recordPlanModeCreation(h.store, h.conversationID, absPath)

	return toolJSON(map[string]interface{}{
		"path":    args.Path,
		"size":    len(args.Content),
		"created": true,
	}), nil
}

func parseOctalMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, err
	}
	return os.FileMode(v), nil
}
