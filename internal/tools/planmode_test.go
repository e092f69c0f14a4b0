package tools

import "testing"

func TestCheckPlanModeNoopWithoutStoreOrConversation(t *testing.T) {
	if err := checkPlanMode(nil, "conv", "/tmp/x", false); err != nil {
		t.Fatalf("nil store should no-op, got %v", err)
	}
	st := openTestStore(t)
	if err := checkPlanMode(st, "", "/tmp/x", false); err != nil {
		t.Fatalf("empty conversation should no-op, got %v", err)
	}
}

func TestCheckPlanModeAllowsCreating(t *testing.T) {
	st := openTestStore(t)
	convID, err := st.CreateConversation("interactive", "test-model")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := st.SetMode(convID, "plan"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := checkPlanMode(st, convID, "/tmp/new.txt", true); err != nil {
		t.Fatalf("creating a new file should be permitted in plan mode, got %v", err)
	}
}

func TestCheckPlanModeBlocksEditingUntrackedFile(t *testing.T) {
	st := openTestStore(t)
	convID, err := st.CreateConversation("interactive", "test-model")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := st.SetMode(convID, "plan"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if err := checkPlanMode(st, convID, "/tmp/untouched.txt", false); err == nil {
		t.Fatal("expected error editing a file not created in this plan session")
	}
}

func TestCheckPlanModeAllowsEditingFileCreatedThisSession(t *testing.T) {
	st := openTestStore(t)
	convID, err := st.CreateConversation("interactive", "test-model")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if err := st.SetMode(convID, "plan"); err != nil {
		t.Fatalf("SetMode: %v", err)
	}

	recordPlanModeCreation(st, convID, "/tmp/created.txt")

	if err := checkPlanMode(st, convID, "/tmp/created.txt", false); err != nil {
		t.Fatalf("editing a file created this plan session should be permitted, got %v", err)
	}
}

func TestCheckPlanModeIgnoredOutsidePlanMode(t *testing.T) {
	st := openTestStore(t)
	convID, err := st.CreateConversation("interactive", "test-model")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	// Default mode is "code".
	if err := checkPlanMode(st, convID, "/tmp/anything.txt", false); err != nil {
		t.Fatalf("code mode should never block edits, got %v", err)
	}
}

func TestRecordPlanModeCreationNoopOutsidePlanMode(t *testing.T) {
	st := openTestStore(t)
	convID, err := st.CreateConversation("interactive", "test-model")
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	recordPlanModeCreation(st, convID, "/tmp/ignored.txt")

	state, err := st.PlanModeCreatedFiles(convID)
	if err != nil {
		t.Fatalf("PlanModeCreatedFiles: %v", err)
	}
	if len(state.CreatedFiles) != 0 {
		t.Fatal("recording outside plan mode should be a no-op")
	}
}
