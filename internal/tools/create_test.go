package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xonecas/niffler/internal/store"
)

func TestParseOctalMode(t *testing.T) {
	mode, err := parseOctalMode("0644")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != 0644 {
		t.Fatalf("got %o, want %o", mode, 0644)
	}

	if _, err := parseOctalMode("not-octal"); err == nil {
		t.Fatal("expected error for invalid mode")
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "niffler.db")
	st, err := store.Open(dbPath, time.Hour)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestCreateHandlerCreatesFile(t *testing.T) {
	dir := t.TempDir()
	origWD, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origWD) })

	h := NewCreateHandler(nil, nil, "")
	args, _ := json.Marshal(CreateArgs{Path: "greeting.txt", Content: "hello"})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res)
	}

	got, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestCreateHandlerRefusesExistingWithoutOverwrite(t *testing.T) {
	dir := t.TempDir()
	origWD, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origWD) })

	if err := os.WriteFile(filepath.Join(dir, "exists.txt"), []byte("old"), 0600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	h := NewCreateHandler(nil, nil, "")
	args, _ := json.Marshal(CreateArgs{Path: "exists.txt", Content: "new"})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result for existing file without overwrite")
	}

	got, _ := os.ReadFile(filepath.Join(dir, "exists.txt"))
	if string(got) != "old" {
		t.Fatal("file should not have been overwritten")
	}
}

func TestCreateHandlerRespectsPlanMode(t *testing.T) {
	dir := t.TempDir()
	origWD, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(origWD) })

	st := openTestStore(t)
	convID, err := st.CreateConversation("interactive", "test-model")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := st.SetMode(convID, "plan"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	h := NewCreateHandler(st, nil, convID)
	args, _ := json.Marshal(CreateArgs{Path: "plan.txt", Content: "draft"})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.IsError {
		t.Fatalf("creation should be permitted in plan mode: %+v", res)
	}

	state, err := st.PlanModeCreatedFiles(convID)
	if err != nil {
		t.Fatalf("PlanModeCreatedFiles: %v", err)
	}
	if !state.CreatedFiles["plan.txt"] {
		t.Fatalf("expected plan.txt recorded as created, got %+v", state.CreatedFiles)
	}
}
