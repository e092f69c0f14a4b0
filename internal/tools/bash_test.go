package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/xonecas/niffler/internal/shell"
)

func TestBashHandlerTimeoutExitCodeIsNegativeOne(t *testing.T) {
	sh := shell.New(t.TempDir(), nil)
	h := NewBashHandler(sh, nil)

	args, _ := json.Marshal(BashArgs{Command: "sleep 5", Timeout: 100})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a tool error on timeout")
	}

	var body BashResult
	if err := json.Unmarshal([]byte(res.Content[0].Text), &body); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if body.ExitCode != -1 {
		t.Fatalf("ExitCode = %d, want -1", body.ExitCode)
	}
}

func TestBashHandlerSuccessReportsExitCodeZero(t *testing.T) {
	sh := shell.New(t.TempDir(), nil)
	h := NewBashHandler(sh, nil)

	args, _ := json.Marshal(BashArgs{Command: "echo hi"})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}

	var body BashResult
	if err := json.Unmarshal([]byte(res.Content[0].Text), &body); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if body.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", body.ExitCode)
	}
	if body.Output == "" || !strings.Contains(body.Output, "hi") {
		t.Fatalf("Output = %q, want it to contain %q", body.Output, "hi")
	}
}

func TestFormatBashOutput(t *testing.T) {
	out := formatBashOutput("stdout line", "", 0, false)
	if out != "stdout line\n" {
		t.Fatalf("got %q", out)
	}

	out = formatBashOutput("out\n", "err\n", 1, false)
	if out != "out\nerr\n[exit code: 1]\n" {
		t.Fatalf("got %q", out)
	}

	out = formatBashOutput("", "", 0, true)
	if out != "[timed out]\n" {
		t.Fatalf("got %q", out)
	}
}

func TestTruncateMiddleRunes(t *testing.T) {
	short := "hello"
	if got := truncateMiddleRunes(short, 100); got != short {
		t.Fatalf("short string should be unchanged, got %q", got)
	}

	long := make([]rune, 20)
	for i := range long {
		long[i] = rune('a' + i%26)
	}
	got := truncateMiddleRunes(string(long), 10)
	if len(got) == len(string(long)) {
		t.Fatal("expected truncation")
	}
	wantPrefix := string(long[:5])
	wantSuffix := string(long[15:])
	if got[:5] != wantPrefix {
		t.Fatalf("prefix = %q, want %q", got[:5], wantPrefix)
	}
	if got[len(got)-5:] != wantSuffix {
		t.Fatalf("suffix = %q, want %q", got[len(got)-5:], wantSuffix)
	}
}
