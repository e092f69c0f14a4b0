package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func initTestGitRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origWD, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origWD) })

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")

	if err := os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("original\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	run("add", "tracked.txt")
	run("commit", "-q", "-m", "initial")
	return dir
}

func TestGitStatusHandlerCleanTree(t *testing.T) {
	initTestGitRepo(t)
	h := NewGitStatusHandler()
	res, err := h(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res)
	}
	if !strings.Contains(res.Content[0].Text, "clean") {
		t.Fatalf("expected clean tree message, got %q", res.Content[0].Text)
	}
}

func TestGitStatusHandlerReportsUntrackedFile(t *testing.T) {
	dir := initTestGitRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "new.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := NewGitStatusHandler()
	res, err := h(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content[0].Text, "new.txt") {
		t.Fatalf("expected new.txt in status output, got %q", res.Content[0].Text)
	}
}

func TestGitDiffHandlerShowsUnstagedChanges(t *testing.T) {
	dir := initTestGitRepo(t)
	if err := os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("changed\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := NewGitDiffHandler()
	res, err := h(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content[0].Text, "changed") {
		t.Fatalf("expected diff to show change, got %q", res.Content[0].Text)
	}
}

func TestGitDiffHandlerNoChanges(t *testing.T) {
	initTestGitRepo(t)
	h := NewGitDiffHandler()
	res, err := h(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(res.Content[0].Text, "no unstaged changes") {
		t.Fatalf("expected no-changes message, got %q", res.Content[0].Text)
	}
}
