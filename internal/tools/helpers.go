// Package tools implements the built-in tool taxonomy dispatched by the tool
// worker: bash, read, list, edit, create, fetch, todolist, task, plus the
// supplemented git and web-search tools.
package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xonecas/niffler/internal/mcp"
)

// validatePath resolves a path argument against the process working
// directory per the path-safety invariant: the normalized form must not
// escape the root via ".." segments.
func validatePath(path string) (string, error) {
	workingDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return validatePathWithRoot(path, workingDir)
}

func validatePathWithRoot(path, root string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	var absPath string
	if filepath.IsAbs(path) {
		absPath = path
	} else {
		absPath = filepath.Join(rootAbs, path)
	}
	absPath, err = filepath.Abs(absPath)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	relPath, err := filepath.Rel(rootAbs, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("access denied: path outside working directory")
	}
	return absPath, nil
}

// relativize returns path relative to the process working directory, used
// to key the plan-mode createdFiles set in the same shape across calls.
func relativize(absPath string) string {
	wd, err := os.Getwd()
	if err != nil {
		return absPath
	}
	rel, err := filepath.Rel(wd, absPath)
	if err != nil {
		return absPath
	}
	return filepath.ToSlash(rel)
}

func toolError(format string, args ...interface{}) *mcp.ToolResult {
	return &mcp.ToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolText(text string) *mcp.ToolResult {
	return &mcp.ToolResult{
		Content: []mcp.ContentBlock{{Type: "text", Text: text}},
	}
}

func toolJSON(v interface{}) *mcp.ToolResult {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("failed to marshal result: %v", err)
	}
	return toolText(string(raw))
}
