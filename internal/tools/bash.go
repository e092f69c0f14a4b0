package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/niffler/internal/delta"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/shell"
)

const (
	defaultBashTimeoutMs = 60_000
	maxBashTimeoutMs     = 600_000
	bashGrace            = time.Second
	maxBashOutputChars   = 30000
)

// BashArgs represents arguments to the bash tool.
type BashArgs struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // milliseconds, default 60000
}

func NewBashTool() mcp.Tool {
	return mcp.Tool{
		Name: "bash",
		Description: `Execute a command in an in-process POSIX shell, non-interactive. Shell state (cwd, env) persists across calls.
Dangerous commands (network, privilege escalation, package managers, system modification) are blocked. timeout is in milliseconds, bounded to [1, 600000].`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "The shell command to execute"},
				"timeout": {"type": "integer", "description": "Timeout in milliseconds (default 60000)"}
			},
			"required": ["command"]
		}`),
		RequiresConfirmation: true,
		Kind:                 mcp.KindBuiltin,
	}
}

// BashHandler handles bash tool calls.
type BashHandler struct {
	sh           *shell.Shell
	deltaTracker *delta.Tracker
}

// NewBashHandler creates a handler for the bash tool.
func NewBashHandler(sh *shell.Shell, dt *delta.Tracker) *BashHandler {
	return &BashHandler{sh: sh, deltaTracker: dt}
}

func (h *BashHandler) Handle(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args BashArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}
	if args.Command == "" {
		return toolError("command is required"), nil
	}

	timeoutMs := args.Timeout
	if timeoutMs <= 0 {
		timeoutMs = defaultBashTimeoutMs
	}
	if timeoutMs > maxBashTimeoutMs {
		timeoutMs = maxBashTimeoutMs
	}
	timeout := time.Duration(timeoutMs) * time.Millisecond

	// Primary timeout cancels the runner; a grace period gives it a chance
	// to unwind before we give up and return whatever output was captured.
	primaryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shellCwd := h.sh.Dir()
	trackDeltas := h.deltaTracker != nil && h.deltaTracker.TurnID() > 0
	var preSnap map[string]delta.FileSnapshot
	if trackDeltas {
		preSnap = delta.SnapshotDir(shellCwd)
	}

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- h.sh.ExecStream(primaryCtx, args.Command, &stdout, &stderr)
	}()

	var execErr error
	var timedOut bool
	select {
	case execErr = <-done:
	case <-primaryCtx.Done():
		timedOut = true
		select {
		case execErr = <-done:
		case <-time.After(bashGrace):
			execErr = primaryCtx.Err()
			log.Warn().Str("command", args.Command).Msg("bash command did not unwind within grace period")
		}
	}

	if trackDeltas {
		postSnap := delta.SnapshotDir(shellCwd)
		delta.RecordDeltas(h.deltaTracker, shellCwd, preSnap, postSnap)
	}

	exitCode := shell.ExitCode(execErr)
	if timedOut {
		// A timed-out command has no real exit status: primaryCtx.Err() is
		// plain context.DeadlineExceeded, which ExitCode would otherwise map
		// to the generic fallback of 1. spec.md's timeout boundary case
		// always surfaces exitCode=-1.
		exitCode = -1
	}
	output := formatBashOutput(stdout.String(), stderr.String(), exitCode, timedOut)
	if output == "" {
		output = "(no output)\n"
	}
	if len([]rune(output)) > maxBashOutputChars {
		output = truncateMiddleRunes(output, maxBashOutputChars)
	}

	if timedOut || exitCode != 0 {
		errMsg := fmt.Sprintf("command exited with status %d", exitCode)
		if timedOut {
			errMsg = "command timed out"
		}
		res := toolJSON(BashResult{
			Error:    errMsg,
			Tool:     "bash",
			ExitCode: exitCode,
			Output:   output,
		})
		res.IsError = true
		return res, nil
	}
	return toolJSON(BashResult{ExitCode: exitCode, Output: output}), nil
}

// BashResult is the structured result of a bash tool call, matching
// spec.md's tool-call wire shape: every successful result is a JSON
// object, and every error is {error, tool, exitCode?, output?}.
type BashResult struct {
	Error    string `json:"error,omitempty"`
	Tool     string `json:"tool,omitempty"`
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
}

func formatBashOutput(stdout, stderr string, exitCode int, timedOut bool) string {
	var b strings.Builder
	if stdout != "" {
		b.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if stderr != "" {
		b.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			b.WriteByte('\n')
		}
	}
	if timedOut {
		fmt.Fprintf(&b, "[timed out]\n")
	}
	if exitCode != 0 {
		fmt.Fprintf(&b, "[exit code: %d]\n", exitCode)
	}
	return b.String()
}

func truncateMiddleRunes(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	half := maxChars / 2
	return string(runes[:half]) + "\n\n... [truncated] ...\n\n" + string(runes[len(runes)-half:])
}
