package store

import (
	"time"

	"github.com/google/uuid"
)

// TodoItem mirrors the todo_item table row.
type TodoItem struct {
	ID        string
	ListID    string
	Position  int
	Content   string
	State     string // pending, in_progress, completed, cancelled
	Priority  string // low, medium, high
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EnsureTodoList returns the conversation's todo list id, creating one if
// this is the first todolist call in the conversation.
func (s *Store) EnsureTodoList(conversationID string) (string, error) {
	if s == nil {
		return "", nil
	}
	return withBusyRetry(func() (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var id string
		err := s.db.QueryRow("SELECT id FROM todo_list WHERE conversation_id = ?", conversationID).Scan(&id)
		if err == nil {
			return id, nil
		}
		id = uuid.NewString()
		_, err = s.db.Exec("INSERT INTO todo_list (id, conversation_id, created) VALUES (?, ?, ?)", id, conversationID, time.Now().Unix())
		return id, err
	})
}

// ListItems returns all items in a list, ordered by stable position.
func (s *Store) ListItems(listID string) ([]TodoItem, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, position, content, state, priority, created, updated
		 FROM todo_item WHERE list_id = ? ORDER BY position`, listID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TodoItem
	for rows.Next() {
		var it TodoItem
		var created, updated int64
		if err := rows.Scan(&it.ID, &it.Position, &it.Content, &it.State, &it.Priority, &created, &updated); err != nil {
			continue
		}
		it.ListID = listID
		it.CreatedAt = time.Unix(created, 0)
		it.UpdatedAt = time.Unix(updated, 0)
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddItem appends a new item at the next position in the list.
func (s *Store) AddItem(listID, content, priority string) (TodoItem, error) {
	now := time.Now()
	item := TodoItem{ID: uuid.NewString(), ListID: listID, Content: content, State: "pending", Priority: priority, CreatedAt: now, UpdatedAt: now}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		var maxPos int
		s.db.QueryRow("SELECT COALESCE(MAX(position), -1) FROM todo_item WHERE list_id = ?", listID).Scan(&maxPos)
		item.Position = maxPos + 1

		_, err := s.db.Exec(
			`INSERT INTO todo_item (id, list_id, position, content, state, priority, created, updated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, listID, item.Position, content, item.State, priority, now.Unix(), now.Unix(),
		)
		return struct{}{}, err
	})
	return item, err
}

// UpdateItemByID mutates an item's content/state/priority fields; empty
// strings mean "leave unchanged".
func (s *Store) UpdateItemByID(id, content, state, priority string) error {
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if content != "" {
			if _, err := s.db.Exec("UPDATE todo_item SET content = ?, updated = ? WHERE id = ?", content, time.Now().Unix(), id); err != nil {
				return struct{}{}, err
			}
		}
		if state != "" {
			if _, err := s.db.Exec("UPDATE todo_item SET state = ?, updated = ? WHERE id = ?", state, time.Now().Unix(), id); err != nil {
				return struct{}{}, err
			}
		}
		if priority != "" {
			if _, err := s.db.Exec("UPDATE todo_item SET priority = ?, updated = ? WHERE id = ?", priority, time.Now().Unix(), id); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// DeleteItemByID removes an item and compacts the positions of items after
// it so the list stays a dense 0..n-1 sequence.
func (s *Store) DeleteItemByID(listID, id string) error {
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.Begin()
		if err != nil {
			return struct{}{}, err
		}
		var pos int
		if err := tx.QueryRow("SELECT position FROM todo_item WHERE id = ?", id).Scan(&pos); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		if _, err := tx.Exec("DELETE FROM todo_item WHERE id = ?", id); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		if _, err := tx.Exec(
			"UPDATE todo_item SET position = position - 1 WHERE list_id = ? AND position > ?", listID, pos,
		); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		return struct{}{}, tx.Commit()
	})
	return err
}

// ReplaceAll hard-deletes every item in the list and re-adds the given
// contents in order, used by bulk_update.
func (s *Store) ReplaceAll(listID string, items []TodoItem) error {
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		tx, err := s.db.Begin()
		if err != nil {
			return struct{}{}, err
		}
		if _, err := tx.Exec("DELETE FROM todo_item WHERE list_id = ?", listID); err != nil {
			tx.Rollback()
			return struct{}{}, err
		}
		now := time.Now().Unix()
		for i, it := range items {
			id := it.ID
			if id == "" {
				id = uuid.NewString()
			}
			state := it.State
			if state == "" {
				state = "pending"
			}
			priority := it.Priority
			if priority == "" {
				priority = "medium"
			}
			if _, err := tx.Exec(
				`INSERT INTO todo_item (id, list_id, position, content, state, priority, created, updated)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				id, listID, i, it.Content, state, priority, now, now,
			); err != nil {
				tx.Rollback()
				return struct{}{}, err
			}
		}
		return struct{}{}, tx.Commit()
	})
	return err
}
