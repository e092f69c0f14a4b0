package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation mirrors the conversation table row.
type Conversation struct {
	ID            string
	Title         string
	AgentID       string
	Type          string // interactive, task, ask
	Mode          string // plan, code
	ModelNickname string
	Status        string // active, completed, archived
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Message is a persisted conversation message.
type Message struct {
	ID             int64
	ConversationID string
	Role           string // system, user, assistant, tool
	Content        string
	ToolCalls      json.RawMessage // JSON array of ToolCall
	ToolCallID     string
	CreatedAt      time.Time
	InputTokens    int
	OutputTokens   int
}

// ThinkingToken is a persisted reasoning block attached to an assistant
// message.
type ThinkingToken struct {
	ConversationMessageID int64
	ReasoningText         string
	EncryptedReasoning    string
	ReasoningID           string
	ProviderMeta          string
	IsEncrypted           bool
	CreatedAt             time.Time
}

// CreateConversation inserts a new conversation row and returns its id.
func (s *Store) CreateConversation(convType, modelNickname string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("store is nil")
	}
	id := uuid.NewString()
	now := time.Now().Unix()

	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.Exec(
			`INSERT INTO conversation (id, title, type, mode, model, status, created, updated)
			 VALUES (?, '', ?, 'code', ?, 'active', ?, ?)`,
			id, convType, modelNickname, now, now,
		)
		return struct{}{}, err
	})
	return id, err
}

// AppendMessage persists a message and returns its assigned row id. Messages
// are strictly append-only: there is no update path for conversation_message.
func (s *Store) AppendMessage(conversationID string, m Message) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("store is nil")
	}
	tc := m.ToolCalls
	if tc == nil {
		tc = json.RawMessage("[]")
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	return withBusyRetry(func() (int64, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.Begin()
		if err != nil {
			return 0, err
		}
		res, err := tx.Exec(
			`INSERT INTO conversation_message
			 (conversation_id, role, content, tool_calls, tool_call_id, created, input_tokens, output_tokens)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			conversationID, m.Role, m.Content, string(tc), m.ToolCallID, createdAt.Unix(),
			m.InputTokens, m.OutputTokens,
		)
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		if _, err := tx.Exec("UPDATE conversation SET updated = ? WHERE id = ?", time.Now().Unix(), conversationID); err != nil {
			tx.Rollback()
			return 0, err
		}
		if err := tx.Commit(); err != nil {
			return 0, err
		}
		return res.LastInsertId()
	})
}

// AppendThinkingToken persists a reasoning block for an assistant message.
func (s *Store) AppendThinkingToken(t ThinkingToken) error {
	if s == nil {
		return nil
	}
	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.Exec(
			`INSERT INTO conversation_thinking_token
			 (conversation_message_id, reasoning_text, encrypted_reasoning, reasoning_id, provider_meta, is_encrypted, created)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ConversationMessageID, t.ReasoningText, t.EncryptedReasoning, t.ReasoningID, t.ProviderMeta,
			boolToInt(t.IsEncrypted), createdAt.Unix(),
		)
		return struct{}{}, err
	})
	return err
}

// LoadHistory returns all messages for a conversation in creation order.
func (s *Store) LoadHistory(conversationID string) ([]Message, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, role, content, tool_calls, tool_call_id, created, input_tokens, output_tokens
		 FROM conversation_message WHERE conversation_id = ? ORDER BY id`, conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var tc string
		var created int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &tc, &m.ToolCallID, &created, &m.InputTokens, &m.OutputTokens); err != nil {
			continue
		}
		m.ConversationID = conversationID
		m.ToolCalls = json.RawMessage(tc)
		m.CreatedAt = time.Unix(created, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetMode updates a conversation's mode. Leaving plan mode clears the
// plan-mode created-files protection set.
func (s *Store) SetMode(conversationID, mode string) error {
	if s == nil {
		return nil
	}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.Begin()
		if err != nil {
			return struct{}{}, err
		}
		if _, err := tx.Exec("UPDATE conversation SET mode = ?, updated = ? WHERE id = ?", mode, time.Now().Unix(), conversationID); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		if mode == "code" {
			if _, err := tx.Exec(
				`INSERT INTO plan_mode_state (conversation_id, enabled, created_files) VALUES (?, 0, '[]')
				 ON CONFLICT(conversation_id) DO UPDATE SET enabled = 0, created_files = '[]'`,
				conversationID,
			); err != nil {
				tx.Rollback()
				return struct{}{}, err
			}
		} else {
			if _, err := tx.Exec(
				`INSERT INTO plan_mode_state (conversation_id, enabled, created_files) VALUES (?, 1, '[]')
				 ON CONFLICT(conversation_id) DO UPDATE SET enabled = 1`,
				conversationID,
			); err != nil {
				tx.Rollback()
				return struct{}{}, err
			}
		}
		return struct{}{}, tx.Commit()
	})
	return err
}

// Mode returns a conversation's current mode, read live (never cached by
// callers) so a mode switch is observed by the very next tool call.
func (s *Store) Mode(conversationID string) (string, error) {
	if s == nil {
		return "code", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var mode string
	err := s.db.QueryRow("SELECT mode FROM conversation WHERE id = ?", conversationID).Scan(&mode)
	if err != nil {
		return "code", err
	}
	return mode, nil
}

// PlanModeState is the per-conversation plan-mode file-protection record.
type PlanModeState struct {
	Enabled      bool
	CreatedFiles map[string]bool
}

// PlanModeCreatedFiles returns the conversation's plan-mode protection state.
func (s *Store) PlanModeCreatedFiles(conversationID string) (PlanModeState, error) {
	out := PlanModeState{CreatedFiles: map[string]bool{}}
	if s == nil {
		return out, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var enabled int
	var filesJSON string
	err := s.db.QueryRow(
		"SELECT enabled, created_files FROM plan_mode_state WHERE conversation_id = ?", conversationID,
	).Scan(&enabled, &filesJSON)
	if err != nil {
		return out, nil // no row yet means disabled, no created files
	}
	out.Enabled = enabled != 0
	var list []string
	if err := json.Unmarshal([]byte(filesJSON), &list); err == nil {
		for _, f := range list {
			out.CreatedFiles[f] = true
		}
	}
	return out, nil
}

// RecordPlanModeCreated idempotently adds relativePath to the conversation's
// created-files set.
func (s *Store) RecordPlanModeCreated(conversationID, relativePath string) error {
	if s == nil {
		return nil
	}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var filesJSON string
		err := s.db.QueryRow("SELECT created_files FROM plan_mode_state WHERE conversation_id = ?", conversationID).Scan(&filesJSON)
		var list []string
		if err == nil {
			json.Unmarshal([]byte(filesJSON), &list) //nolint:errcheck // best-effort; corrupt json just resets the set
		}
		for _, f := range list {
			if f == relativePath {
				return struct{}{}, nil // already recorded
			}
		}
		list = append(list, relativePath)
		data, _ := json.Marshal(list)
		_, err = s.db.Exec(
			`INSERT INTO plan_mode_state (conversation_id, enabled, created_files) VALUES (?, 1, ?)
			 ON CONFLICT(conversation_id) DO UPDATE SET created_files = excluded.created_files`,
			conversationID, string(data),
		)
		return struct{}{}, err
	})
	return err
}

// SwitchModel updates the conversation's active model nickname.
func (s *Store) SwitchModel(conversationID, modelNickname string) error {
	if s == nil {
		return nil
	}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.Exec("UPDATE conversation SET model = ?, updated = ? WHERE id = ?", modelNickname, time.Now().Unix(), conversationID)
		return struct{}{}, err
	})
	return err
}

// SetStatus transitions a conversation's status (e.g. to "completed" when a
// task conversation returns its summary).
func (s *Store) SetStatus(conversationID, status string) error {
	if s == nil {
		return nil
	}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.Exec("UPDATE conversation SET status = ?, updated = ? WHERE id = ?", status, time.Now().Unix(), conversationID)
		return struct{}{}, err
	})
	return err
}

// ConversationExists reports whether a conversation with the given id exists.
func (s *Store) ConversationExists(id string) (bool, error) {
	if s == nil {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM conversation WHERE id = ?", id).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ModelNickname returns a conversation's currently active model nickname.
func (s *Store) ModelNickname(conversationID string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("no store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var nickname string
	if err := s.db.QueryRow("SELECT model FROM conversation WHERE id = ?", conversationID).Scan(&nickname); err != nil {
		return "", err
	}
	return nickname, nil
}

// LatestConversationID returns the most recently updated conversation.
func (s *Store) LatestConversationID() (string, error) {
	if s == nil {
		return "", fmt.Errorf("no store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var id string
	err := s.db.QueryRow("SELECT id FROM conversation ORDER BY updated DESC LIMIT 1").Scan(&id)
	if err != nil {
		return "", fmt.Errorf("no conversations found")
	}
	return id, nil
}

// ConversationSummary is used when listing conversations for resume.
type ConversationSummary struct {
	ID      string
	Updated time.Time
	Preview string
}

// ListConversations returns conversations ordered by most recent activity.
func (s *Store) ListConversations() ([]ConversationSummary, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT c.id, c.updated, COALESCE((
			SELECT m.content FROM conversation_message m
			WHERE m.conversation_id = c.id AND m.role = 'user'
			ORDER BY m.id DESC LIMIT 1
		), '')
		FROM conversation c ORDER BY c.updated DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		var updated int64
		if err := rows.Scan(&cs.ID, &updated, &cs.Preview); err != nil {
			continue
		}
		cs.Updated = time.Unix(updated, 0)
		if len(cs.Preview) > 50 {
			cs.Preview = cs.Preview[:50]
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
