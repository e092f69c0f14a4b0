package tools

import (
	"fmt"

	"github.com/xonecas/niffler/internal/store"
)

// checkPlanMode enforces the cross-cutting plan-mode file-protection
// invariant for edit and create. Mode is re-read from persistence on every
// call — it is never cached by the tool worker — so a mode switch takes
// effect on the very next tool call.
//
// creating indicates the caller is about to create absPath (not yet on
// disk). For edit, creating is always false: edit operates on an existing
// file, existence having already been checked by the caller.
func checkPlanMode(st *store.Store, conversationID, absPath string, creating bool) error {
	if st == nil || conversationID == "" {
		return nil
	}
	mode, err := st.Mode(conversationID)
	if err != nil {
		return fmt.Errorf("read conversation mode: %w", err)
	}
	if mode != "plan" {
		return nil
	}

	rel := relativize(absPath)
	state, err := st.PlanModeCreatedFiles(conversationID)
	if err != nil {
		return fmt.Errorf("read plan-mode state: %w", err)
	}
	if state.CreatedFiles[rel] {
		return nil
	}
	if creating {
		return nil // new file: permitted, recorded by the caller on success
	}
	return fmt.Errorf("cannot edit existing files in plan mode: %s was not created in this plan session — switch to code mode to edit it", rel)
}

// recordPlanModeCreation records a successful creation into the
// conversation's createdFiles set. No-op outside plan mode or without a
// conversation.
func recordPlanModeCreation(st *store.Store, conversationID, absPath string) {
	if st == nil || conversationID == "" {
		return
	}
	mode, err := st.Mode(conversationID)
	if err != nil || mode != "plan" {
		return
	}
	_ = st.RecordPlanModeCreated(conversationID, relativize(absPath))
}
