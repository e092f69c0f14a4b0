package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/xonecas/niffler/internal/mcp"
)

// GitStatusArgs represents arguments to the gitStatus tool.
type GitStatusArgs struct {
	Long bool `json:"long,omitempty"`
}

// GitDiffArgs represents arguments to the gitDiff tool.
type GitDiffArgs struct {
	File   string `json:"file,omitempty"`
	Staged bool   `json:"staged,omitempty"`
}

func NewGitStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "gitStatus",
		Description: "Show the working tree status. Returns modified, staged, and untracked files.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"long": {"type": "boolean", "description": "Use long format output. Default: false (short format)"}
			}
		}`),
		Kind: mcp.KindBuiltin,
	}
}

func NewGitDiffTool() mcp.Tool {
	return mcp.Tool{
		Name:        "gitDiff",
		Description: "Show changes between working tree and index (unstaged), or between index and HEAD (staged).",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file":   {"type": "string", "description": "Optional: specific file path to diff"},
				"staged": {"type": "boolean", "description": "Show staged (cached) changes. Default: false"}
			}
		}`),
		Kind: mcp.KindBuiltin,
	}
}

func runGit(ctx context.Context, args ...string) (string, *mcp.ToolResult) {
	cmd := exec.CommandContext(ctx, "git", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// git diff exits 1 when there are differences — not an error.
		if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1 && stderr.Len() == 0 {
			return stdout.String(), nil
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", toolError("git error: %s", msg)
	}
	return stdout.String(), nil
}

func NewGitStatusHandler() mcp.ToolHandler {
	return func(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
		var args GitStatusArgs
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &args); err != nil {
				return toolError("Invalid arguments: %v", err), nil
			}
		}
		gitArgs := []string{"status"}
		if !args.Long {
			gitArgs = append(gitArgs, "--short")
		}
		out, errResult := runGit(ctx, gitArgs...)
		if errResult != nil {
			return errResult, nil
		}
		if strings.TrimSpace(out) == "" {
			out = "nothing to commit, working tree clean"
		}
		return toolText(out), nil
	}
}

func NewGitDiffHandler() mcp.ToolHandler {
	return func(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
		var args GitDiffArgs
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &args); err != nil {
				return toolError("Invalid arguments: %v", err), nil
			}
		}
		gitArgs := []string{"diff"}
		if args.Staged {
			gitArgs = append(gitArgs, "--cached")
		}
		if args.File != "" {
			gitArgs = append(gitArgs, "--", args.File)
		}
		out, errResult := runGit(ctx, gitArgs...)
		if errResult != nil {
			return errResult, nil
		}
		if strings.TrimSpace(out) == "" {
			label := "unstaged"
			if args.Staged {
				label = "staged"
			}
			out = fmt.Sprintf("no %s changes", label)
		}
		return toolText(out), nil
	}
}
