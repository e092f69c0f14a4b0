package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/store"
)

// TodoListArgs represents arguments to the todolist tool.
type TodoListArgs struct {
	Operation string `json:"operation"` // add, update, delete, list, show, bulk_update
	Position  int    `json:"position,omitempty"`
	Content   string `json:"content,omitempty"`
	State     string `json:"state,omitempty"`
	Priority  string `json:"priority,omitempty"`
	Markdown  string `json:"markdown,omitempty"` // bulk_update checklist text
}

func NewTodoListTool() mcp.Tool {
	return mcp.Tool{
		Name: "todolist",
		Description: `Maintain the conversation's todo list. operation is one of add, update, delete, list, show, bulk_update.
update and delete address items by 1-based position, resolved to a stable item id at call time. bulk_update parses a markdown checklist ("- [ ] task", "- [x] done", "- [~] in progress", "- [-] cancelled", with optional " (!)"/" (low)" priority suffixes) and replaces the whole list.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"operation": {"type": "string", "enum": ["add", "update", "delete", "list", "show", "bulk_update"]},
				"position":  {"type": "integer", "description": "1-based item position (update, delete, show)"},
				"content":   {"type": "string", "description": "Item text (add, update)"},
				"state":     {"type": "string", "enum": ["pending", "in_progress", "completed", "cancelled"]},
				"priority":  {"type": "string", "enum": ["low", "medium", "high"]},
				"markdown":  {"type": "string", "description": "Checklist text (bulk_update)"}
			},
			"required": ["operation"]
		}`),
		Kind: mcp.KindBuiltin,
	}
}

// TodoListHandler handles todolist tool calls, scoped to a conversation.
type TodoListHandler struct {
	store          *store.Store
	conversationID string
}

func NewTodoListHandler(st *store.Store, conversationID string) *TodoListHandler {
	return &TodoListHandler{store: st, conversationID: conversationID}
}

func (h *TodoListHandler) Handle(_ context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args TodoListArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}

	listID, err := h.store.EnsureTodoList(h.conversationID)
	if err != nil {
		return toolError("failed to resolve todo list: %v", err), nil
	}

	switch args.Operation {
	case "add":
		if args.Content == "" {
			return toolError("content is required for add"), nil
		}
		priority := args.Priority
		if priority == "" {
			priority = "medium"
		}
		item, err := h.store.AddItem(listID, args.Content, priority)
		if err != nil {
			return toolError("failed to add item: %v", err), nil
		}
		return toolJSON(item), nil

	case "update":
		item, err := h.resolvePosition(listID, args.Position)
		if err != nil {
			return toolError("%v", err), nil
		}
		if err := h.store.UpdateItemByID(item.ID, args.Content, args.State, args.Priority); err != nil {
			return toolError("failed to update item: %v", err), nil
		}
		return toolText(fmt.Sprintf("updated item %d", args.Position)), nil

	case "delete":
		item, err := h.resolvePosition(listID, args.Position)
		if err != nil {
			return toolError("%v", err), nil
		}
		if err := h.store.DeleteItemByID(listID, item.ID); err != nil {
			return toolError("failed to delete item: %v", err), nil
		}
		return toolText(fmt.Sprintf("deleted item %d", args.Position)), nil

	case "list":
		items, err := h.store.ListItems(listID)
		if err != nil {
			return toolError("failed to list items: %v", err), nil
		}
		return toolJSON(items), nil

	case "show":
		item, err := h.resolvePosition(listID, args.Position)
		if err != nil {
			return toolError("%v", err), nil
		}
		return toolJSON(item), nil

	case "bulk_update":
		items := parseChecklist(args.Markdown)
		if err := h.store.ReplaceAll(listID, items); err != nil {
			return toolError("failed to replace list: %v", err), nil
		}
		return toolText(fmt.Sprintf("replaced list with %d item(s)", len(items))), nil

	default:
		return toolError("unknown operation %q", args.Operation), nil
	}
}

// resolvePosition maps a 1-based position to its item, re-reading the list
// at call time so a reorder within the same call sees the current state.
func (h *TodoListHandler) resolvePosition(listID string, position int) (store.TodoItem, error) {
	items, err := h.store.ListItems(listID)
	if err != nil {
		return store.TodoItem{}, fmt.Errorf("failed to read list: %w", err)
	}
	if position < 1 || position > len(items) {
		return store.TodoItem{}, fmt.Errorf("position %d out of range (list has %d item(s))", position, len(items))
	}
	return items[position-1], nil
}

var checklistLine = regexp.MustCompile(`^\s*-\s*\[([ xX~-])\]\s*(.+?)\s*$`)
var prioritySuffix = regexp.MustCompile(`\s*\((!|low)\)\s*$`)

// parseChecklist parses "- [ ]/[x]/[~]/[-] text (!)" lines into TodoItems
// in document order, for bulk_update.
func parseChecklist(markdown string) []store.TodoItem {
	var items []store.TodoItem
	for _, line := range strings.Split(markdown, "\n") {
		m := checklistLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		state := checklistState(m[1])
		content := m[2]
		priority := "medium"
		if pm := prioritySuffix.FindStringSubmatch(content); pm != nil {
			content = strings.TrimSpace(prioritySuffix.ReplaceAllString(content, ""))
			if pm[1] == "!" {
				priority = "high"
			} else {
				priority = "low"
			}
		}
		items = append(items, store.TodoItem{Content: content, State: state, Priority: priority})
	}
	return items
}

func checklistState(mark string) string {
	switch mark {
	case "x", "X":
		return "completed"
	case "~":
		return "in_progress"
	case "-":
		return "cancelled"
	default:
		return "pending"
	}
}
