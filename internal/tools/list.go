package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xonecas/niffler/internal/mcp"
)

const maxListDepth = 100

// ListArgs represents arguments to the list tool.
type ListArgs struct {
	Path          string `json:"path"`
	Recursive     bool   `json:"recursive,omitempty"`
	MaxDepth      int    `json:"maxDepth,omitempty"`
	IncludeHidden bool   `json:"includeHidden,omitempty"`
	SortBy        string `json:"sortBy,omitempty"`    // name, size, modified, type
	SortOrder     string `json:"sortOrder,omitempty"` // asc, desc
	FilterType    string `json:"filterType,omitempty"`
}

// Entry is a single directory entry in a list result.
type Entry struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Type        string    `json:"type"` // file, directory, link, other
	Size        int64     `json:"size"`
	Modified    time.Time `json:"modified"`
	Permissions string    `json:"permissions"`
	IsDir       bool      `json:"isDir"`
	IsFile      bool      `json:"isFile"`
	IsLink      bool      `json:"isLink"`
}

func NewListTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list",
		Description: `Enumerate a directory. recursive performs a depth-first walk up to maxDepth (capped at 100). sortBy is one of name, size, modified, type.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path":          {"type": "string", "description": "Directory to list"},
				"recursive":     {"type": "boolean"},
				"maxDepth":      {"type": "integer", "description": "Maximum recursion depth, capped at 100"},
				"includeHidden": {"type": "boolean", "description": "Include dotfiles"},
				"sortBy":        {"type": "string", "enum": ["name", "size", "modified", "type"]},
				"sortOrder":     {"type": "string", "enum": ["asc", "desc"]},
				"filterType":    {"type": "string", "enum": ["file", "directory", "link", "other"]}
			},
			"required": ["path"]
		}`),
		Kind: mcp.KindBuiltin,
	}
}

// ListHandler handles list tool calls.
type ListHandler struct{}

func NewListHandler() *ListHandler { return &ListHandler{} }

func (h *ListHandler) Handle(_ context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args ListArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}
	if args.Path == "" {
		return toolError("path cannot be empty"), nil
	}

	absRoot, err := validatePath(args.Path)
	if err != nil {
		return toolError("%v", err), nil
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return toolError("failed to stat path: %v", err), nil
	}
	if !info.IsDir() {
		return toolError("%s is not a directory", args.Path), nil
	}

	maxDepth := args.MaxDepth
	if maxDepth <= 0 || maxDepth > maxListDepth {
		maxDepth = maxListDepth
	}

	var entries []Entry
	var walk func(dir string, depth int) error
	walk = func(dir string, depth int) error {
		dirents, err := os.ReadDir(dir)
		if err != nil {
			return err
		}
		for _, de := range dirents {
			if !args.IncludeHidden && strings.HasPrefix(de.Name(), ".") {
				continue
			}
			full := filepath.Join(dir, de.Name())
			rel, _ := filepath.Rel(absRoot, full)

			fi, err := os.Lstat(full)
			if err != nil {
				continue
			}
			entry := Entry{
				Name:        de.Name(),
				Path:        filepath.ToSlash(rel),
				Size:        fi.Size(),
				Modified:    fi.ModTime(),
				Permissions: fi.Mode().Perm().String()[1:],
			}
			switch {
			case fi.Mode()&os.ModeSymlink != 0:
				entry.Type, entry.IsLink = "link", true
			case fi.IsDir():
				entry.Type, entry.IsDir = "directory", true
			case fi.Mode().IsRegular():
				entry.Type, entry.IsFile = "file", true
			default:
				entry.Type = "other"
			}

			if args.FilterType == "" || args.FilterType == entry.Type {
				entries = append(entries, entry)
			}

			if entry.IsDir && args.Recursive && depth < maxDepth {
				if err := walk(full, depth+1); err != nil {
					continue
				}
			}
		}
		return nil
	}
	if err := walk(absRoot, 1); err != nil {
		return toolError("failed to list directory: %v", err), nil
	}

	sortEntries(entries, args.SortBy, args.SortOrder)

	return toolJSON(map[string]interface{}{
		"path":    args.Path,
		"entries": entries,
		"count":   len(entries),
	}), nil
}

func sortEntries(entries []Entry, sortBy, sortOrder string) {
	less := func(i, j int) bool {
		switch sortBy {
		case "size":
			return entries[i].Size < entries[j].Size
		case "modified":
			return entries[i].Modified.Before(entries[j].Modified)
		case "type":
			return entries[i].Type < entries[j].Type
		default:
			return entries[i].Name < entries[j].Name
		}
	}
	sort.SliceStable(entries, less)
	if sortOrder == "desc" {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
}
