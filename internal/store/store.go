// Package store is the persistence backend: conversations, messages,
// thinking tokens, token usage/correction, todo lists, plan-mode state, and
// a web-fetch/search result cache. All of it lives in one SQLite database
// opened in WAL mode with busy-retry around writers.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // register sqlite driver
)

const (
	SQLiteBusyMaxRetries    = 10
	SQLiteBusyBackoffStepMs = 50
	SQLiteBusyMaxBackoff    = time.Second
)

const schema = `
CREATE TABLE IF NOT EXISTS conversation (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	agent_id    TEXT,
	type        TEXT NOT NULL DEFAULT 'interactive',
	mode        TEXT NOT NULL DEFAULT 'code',
	model       TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT 'active',
	created     INTEGER NOT NULL,
	updated     INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_message (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
	role            TEXT NOT NULL,
	content         TEXT NOT NULL DEFAULT '',
	tool_calls      TEXT NOT NULL DEFAULT '[]',
	tool_call_id    TEXT NOT NULL DEFAULT '',
	created         INTEGER NOT NULL,
	input_tokens    INTEGER NOT NULL DEFAULT 0,
	output_tokens   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_message_conv ON conversation_message(conversation_id, id);

CREATE TABLE IF NOT EXISTS conversation_thinking_token (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_message_id INTEGER NOT NULL REFERENCES conversation_message(id) ON DELETE CASCADE,
	reasoning_text       TEXT NOT NULL DEFAULT '',
	encrypted_reasoning  TEXT NOT NULL DEFAULT '',
	reasoning_id         TEXT NOT NULL DEFAULT '',
	provider_meta        TEXT NOT NULL DEFAULT '',
	is_encrypted         INTEGER NOT NULL DEFAULT 0,
	created              INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS model_token_usage (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id   TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
	model_nickname    TEXT NOT NULL,
	input_tokens      INTEGER NOT NULL,
	output_tokens     INTEGER NOT NULL,
	reasoning_tokens  INTEGER NOT NULL,
	input_cost_micros     INTEGER NOT NULL,
	output_cost_micros    INTEGER NOT NULL,
	reasoning_cost_micros INTEGER NOT NULL,
	created           INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS token_correction_factor (
	model_nickname  TEXT PRIMARY KEY,
	total_samples   INTEGER NOT NULL DEFAULT 0,
	sum_ratio       REAL NOT NULL DEFAULT 0,
	avg_correction  REAL NOT NULL DEFAULT 1.0,
	updated         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_mode_state (
	conversation_id TEXT PRIMARY KEY REFERENCES conversation(id) ON DELETE CASCADE,
	enabled         INTEGER NOT NULL DEFAULT 0,
	created_files   TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS todo_list (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversation(id) ON DELETE CASCADE,
	created         INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS todo_item (
	id          TEXT PRIMARY KEY,
	list_id     TEXT NOT NULL REFERENCES todo_list(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	content     TEXT NOT NULL,
	state       TEXT NOT NULL DEFAULT 'pending',
	priority    TEXT NOT NULL DEFAULT 'medium',
	created     INTEGER NOT NULL,
	updated     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_todo_item_list ON todo_item(list_id, position);

CREATE TABLE IF NOT EXISTS file_deltas (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	turn_id    INTEGER NOT NULL,
	file_path  TEXT NOT NULL,
	op         TEXT NOT NULL,
	old_content BLOB,
	created    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fetch_cache (
	url       TEXT PRIMARY KEY,
	result    TEXT NOT NULL,
	created   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS search_cache (
	query    TEXT PRIMARY KEY,
	result   TEXT NOT NULL,
	created  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fetch_created ON fetch_cache(created);
CREATE INDEX IF NOT EXISTS idx_search_created ON search_cache(created);
`

// Store is the backing SQLite handle for everything niffler persists:
// conversations and their messages, token usage/correction, todo lists,
// plan-mode file-protection state, and the web-fetch/search result cache.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	ttl time.Duration
}

// Open creates or opens a database at the given path. ttl controls how long
// web-cache entries remain fresh.
func Open(dbPath string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{db: db, ttl: ttl}
	s.purgeStaleCache()
	return s, nil
}

// DB exposes the underlying handle for packages (delta tracker) that share it.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func withBusyRetry[T any](fn func() (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := 0; attempt <= SQLiteBusyMaxRetries; attempt++ {
		var v T
		v, err = fn()
		if err == nil {
			return v, nil
		}
		if !IsSQLiteBusy(err) || attempt == SQLiteBusyMaxRetries {
			return zero, err
		}
		backoff := time.Duration((attempt+1)*SQLiteBusyBackoffStepMs) * time.Millisecond
		if backoff > SQLiteBusyMaxBackoff {
			backoff = SQLiteBusyMaxBackoff
		}
		time.Sleep(backoff)
	}
	return zero, err
}

// IsSQLiteBusy reports whether err is a transient SQLITE_BUSY/locked error.
func IsSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// --- Fetch cache ---

func (s *Store) GetFetch(url string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.ttl).Unix()
	var result string
	err := s.db.QueryRow(
		"SELECT result FROM fetch_cache WHERE url = ? AND created > ?",
		url, cutoff,
	).Scan(&result)
	if err != nil {
		return "", false
	}
	return result, true
}

func (s *Store) SetFetch(url, result string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO fetch_cache (url, result, created) VALUES (?, ?, ?)",
		url, result, time.Now().Unix(),
	)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("failed to cache fetch result")
	}
}

// --- Search cache ---

func (s *Store) GetSearch(query string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := normalizeQuery(query)
	cutoff := time.Now().Add(-s.ttl).Unix()
	var result string
	err := s.db.QueryRow(
		"SELECT result FROM search_cache WHERE query = ? AND created > ?",
		normalized, cutoff,
	).Scan(&result)
	if err != nil {
		return "", false
	}
	return result, true
}

// SearchCachedContent looks for a cached result whose text content contains
// enough of the query keywords, so a previously fetched answer can be reused
// without a new network call.
func (s *Store) SearchCachedContent(query string) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	queryKw := tokenizeQuery(query)
	if len(queryKw) < 2 {
		return "", false
	}

	cutoff := time.Now().Add(-s.ttl).Unix()
	rows, err := s.db.Query("SELECT result FROM search_cache WHERE created > ?", cutoff)
	if err != nil {
		return "", false
	}
	defer rows.Close()

	var bestResult string
	var bestScore float64
	var bestHits int
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			continue
		}
		resultLower := strings.ToLower(result)
		score, hits := contentOverlap(queryKw, resultLower)
		if score > bestScore {
			bestScore, bestHits, bestResult = score, hits, result
		}
	}

	if bestScore >= 0.75 && bestHits >= 3 {
		return bestResult, true
	}
	return "", false
}

func (s *Store) SetSearch(query, result string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := normalizeQuery(query)
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO search_cache (query, result, created) VALUES (?, ?, ?)",
		normalized, result, time.Now().Unix(),
	)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("failed to cache search result")
	}
}

func (s *Store) purgeStaleCache() {
	cutoff := time.Now().Add(-s.ttl).Unix()
	for _, table := range []string{"fetch_cache", "search_cache"} {
		res, err := s.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE created <= ?", table), //nolint:gosec // table name is hardcoded
			cutoff,
		)
		if err != nil {
			log.Warn().Err(err).Str("table", table).Msg("failed to purge stale cache")
			continue
		}
		if n, _ := res.RowsAffected(); n > 0 {
			log.Info().Int64("deleted", n).Str("table", table).Msg("purged stale cache entries")
		}
	}
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "shall": true, "can": true,
	"for": true, "and": true, "but": true, "or": true, "nor": true,
	"not": true, "so": true, "yet": true, "to": true, "of": true,
	"in": true, "on": true, "at": true, "by": true, "with": true,
	"from": true, "as": true, "into": true, "about": true, "between": true,
	"through": true, "during": true, "before": true, "after": true,
	"above": true, "below": true, "up": true, "down": true, "out": true,
	"off": true, "over": true, "under": true, "again": true, "then": true,
	"once": true, "here": true, "there": true, "when": true, "where": true,
	"why": true, "how": true, "what": true, "which": true, "who": true,
	"whom": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "me": true, "my": true, "we": true, "our": true,
	"you": true, "your": true, "he": true, "him": true, "his": true,
	"she": true, "her": true, "it": true, "its": true, "they": true,
	"them": true, "their": true,
}

func tokenizeQuery(query string) []string {
	words := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	var out []string
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()-[]{}")
		if len(w) < 2 || stopWords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

func contentOverlap(queryKw []string, resultLower string) (float64, int) {
	if len(queryKw) == 0 {
		return 0, 0
	}
	hits := 0
	for _, kw := range queryKw {
		if strings.Contains(resultLower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(queryKw)), hits
}
