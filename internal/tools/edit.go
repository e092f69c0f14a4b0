package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/xonecas/niffler/internal/delta"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/store"
)

// EditArgs represents arguments to the edit tool. Exactly the fields the
// chosen operation needs are consulted; the rest are ignored.
type EditArgs struct {
	Path         string `json:"path"`
	Operation    string `json:"operation"` // replace, insert, delete, append, prepend, rewrite
	OldText      string `json:"oldText,omitempty"`
	NewText      string `json:"newText,omitempty"`
	LineRange    string `json:"lineRange,omitempty"` // "a-b", consulted by insert/delete
	CreateBackup bool   `json:"createBackup,omitempty"`
}

// EditResult is the structured result of a successful edit.
type EditResult struct {
	ChangesMade  bool   `json:"changesMade"`
	BackupPath   string `json:"backupPath,omitempty"`
	LineRange    string `json:"lineRange,omitempty"`
	OriginalSize int    `json:"originalSize"`
	NewSize      int    `json:"newSize"`
	SizeChange   int    `json:"sizeChange"`
}

func NewEditTool() mcp.Tool {
	return mcp.Tool{
		Name: "edit",
		Description: `Mutate an existing file. operation is one of replace, insert, delete, append, prepend, rewrite.
replace/delete require oldText to occur verbatim in the file. insert requires a valid lineRange ("a-b", 1-indexed). rewrite replaces the whole file with newText regardless of prior content.
Refused in plan mode for any file not created earlier in the same plan session — switch to code mode to edit existing files.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path":         {"type": "string", "description": "Path to the file to edit"},
				"operation":    {"type": "string", "enum": ["replace", "insert", "delete", "append", "prepend", "rewrite"]},
				"oldText":      {"type": "string", "description": "Verbatim text to match (replace, delete)"},
				"newText":      {"type": "string", "description": "Replacement or inserted text"},
				"lineRange":    {"type": "string", "description": "1-indexed line range \"a-b\" (insert, delete)"},
				"createBackup": {"type": "boolean", "description": "Write a timestamped backup before mutating"}
			},
			"required": ["path", "operation"]
		}`),
		RequiresConfirmation: true,
		Kind:                 mcp.KindBuiltin,
	}
}

// EditHandler handles edit tool calls.
type EditHandler struct {
	store          *store.Store
	deltaTracker   *delta.Tracker
	conversationID string
}

// NewEditHandler creates a handler for the edit tool, scoped to a
// conversation for plan-mode enforcement.
func NewEditHandler(st *store.Store, dt *delta.Tracker, conversationID string) *EditHandler {
	return &EditHandler{store: st, deltaTracker: dt, conversationID: conversationID}
}

func (h *EditHandler) Handle(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args EditArgs
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

	info, err := os.Stat(absPath)
	if err != nil {
		return toolError("file does not exist: %s", args.Path), nil
	}
	if info.IsDir() {
		return toolError("%s is a directory, not a file", args.Path), nil
	}

	if err := checkPlanMode(h.store, h.conversationID, absPath, false); err != nil {
		// Plan-mode refusal is user-visible and expected — not a worker error.
		return toolError("%v", err), nil
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return toolError("failed to read file: %v", err), nil
	}
	original := string(content)

	updated, err := applyEditOperation(original, args)
	if err != nil {
		return toolError("%v", err), nil
	}

	result := EditResult{
		ChangesMade:  updated != original,
		LineRange:    args.LineRange,
		OriginalSize: len(original),
		NewSize:      len(updated),
		SizeChange:   len(updated) - len(original),
	}

	if !result.ChangesMade {
		return toolJSON(result), nil
	}

	if args.CreateBackup {
		backupPath := absPath + "." + time.Now().UTC().Format("20060102T150405Z") + ".bak"
		if err := os.WriteFile(backupPath, content, 0600); err != nil {
			return toolError("failed to write backup: %v", err), nil
		}
		result.BackupPath = relativize(backupPath)
	}

	if h.deltaTracker != nil {
		h.deltaTracker.RecordModify(absPath, content)
	}

	if err := os.WriteFile(absPath, []byte(updated), info.Mode().Perm()); err != nil {
		return toolError("failed to write file: %v", err), nil
	}

	return toolJSON(result), nil
}

// applyEditOperation dispatches to the operation-specific transform. It
// never touches the filesystem.
func applyEditOperation(original string, args EditArgs) (string, error) {
	switch args.Operation {
	case "append":
		if strings.HasSuffix(original, "\n") || original == "" {
			return original + args.NewText, nil
		}
		return original + "\n" + args.NewText, nil
	case "prepend":
		return args.NewText + original, nil
	case "rewrite":
		return args.NewText, nil
	case "replace":
		return applyReplace(original, args)
	case "delete":
		return applyDelete(original, args)
	case "insert":
		return applyInsert(original, args)
	default:
		return "", fmt.Errorf("unknown operation %q", args.Operation)
	}
}

func applyReplace(original string, args EditArgs) (string, error) {
	if args.OldText == "" {
		return "", fmt.Errorf("replace requires oldText")
	}
	n := strings.Count(original, args.OldText)
	if n == 0 {
		return "", fmt.Errorf("oldText not found verbatim in %s", "file")
	}
	if n > 1 {
		return "", fmt.Errorf("oldText matches %d times; it must be unique", n)
	}
	return strings.Replace(original, args.OldText, args.NewText, 1), nil
}

func applyDelete(original string, args EditArgs) (string, error) {
	if args.OldText != "" {
		n := strings.Count(original, args.OldText)
		if n == 0 {
			return "", fmt.Errorf("oldText not found verbatim in file")
		}
		if n > 1 {
			return "", fmt.Errorf("oldText matches %d times; it must be unique", n)
		}
		return strings.Replace(original, args.OldText, "", 1), nil
	}
	if args.LineRange != "" {
		lines := strings.Split(original, "\n")
		start, end, err := parseLineRange(args.LineRange, len(lines))
		if err != nil {
			return "", err
		}
		out := append(append([]string{}, lines[:start-1]...), lines[end:]...)
		return strings.Join(out, "\n"), nil
	}
	return "", fmt.Errorf("delete requires oldText or lineRange")
}

func applyInsert(original string, args EditArgs) (string, error) {
	if args.LineRange == "" {
		return "", fmt.Errorf("insert requires a valid lineRange")
	}
	lines := strings.Split(original, "\n")
	start, _, err := parseLineRange(args.LineRange, len(lines))
	if err != nil {
		return "", err
	}
	inserted := strings.Split(args.NewText, "\n")
	out := make([]string, 0, len(lines)+len(inserted))
	out = append(out, lines[:start]...)
	out = append(out, inserted...)
	out = append(out, lines[start:]...)
	return strings.Join(out, "\n"), nil
}

// parseLineRange parses "a-b" (1-indexed, inclusive), clamped to
// [1, totalLines].
func parseLineRange(r string, totalLines int) (start, end int, err error) {
	parts := strings.SplitN(r, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid lineRange %q: expected \"a-b\"", r)
	}
	start, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lineRange %q: %w", r, err)
	}
	end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid lineRange %q: %w", r, err)
	}
	if start < 1 {
		start = 1
	}
	if end > totalLines {
		end = totalLines
	}
	if start > end {
		return 0, 0, fmt.Errorf("invalid lineRange %q: start after end", r)
	}
	return start, end, nil
}
