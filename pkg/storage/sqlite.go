// Package storage persists conversations, preferences and user facts in a
// local SQLite database and stores uploaded attachments on disk.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

const defaultPollInterval = 2 * time.Second

// SQLiteStore owns the database handle shared by the per-user stores.
type SQLiteStore struct {
	db           *sql.DB
	pollInterval time.Duration
}

// NewSQLiteStore creates/opens the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection avoids writer lock contention between the
	// orchestrator, the observers and background jobs.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, pollInterval: defaultPollInterval}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// SetPollInterval sets how often Observe* calls check for changes.
func (s *SQLiteStore) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS conversations_user_idx ON conversations(user_id, updated_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS conversation_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			urls_json TEXT NOT NULL DEFAULT '[]',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS conversation_messages_seq_idx ON conversation_messages(conversation_id, seq);`,
		`CREATE TABLE IF NOT EXISTS preference_events (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			item_key TEXT NOT NULL,
			relation TEXT NOT NULL,
			ts INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS preference_events_user_idx ON preference_events(user_id, ts);`,
		`CREATE TABLE IF NOT EXISTS preference_items (
			user_id TEXT NOT NULL,
			item_key TEXT NOT NULL,
			relation TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(user_id, item_key, relation)
		);`,
		`CREATE TABLE IF NOT EXISTS preference_status (
			user_id TEXT NOT NULL,
			item_key TEXT NOT NULL,
			current_relation TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			previous_relation TEXT NOT NULL DEFAULT '',
			changed_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(user_id, item_key)
		);`,
		`CREATE TABLE IF NOT EXISTS user_facts (
			user_id TEXT NOT NULL,
			attr_key TEXT NOT NULL,
			value TEXT NOT NULL,
			seq INTEGER NOT NULL DEFAULT 0,
			count INTEGER NOT NULL DEFAULT 1,
			first_mentioned INTEGER NOT NULL,
			last_mentioned INTEGER NOT NULL,
			PRIMARY KEY(user_id, attr_key, value)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

// poll calls check immediately and then on every tick until ctx ends. emit
// runs whenever the fingerprint returned by check differs from last; pass an
// empty last to always emit the first snapshot.
func (s *SQLiteStore) poll(ctx context.Context, component, last string, check func(context.Context) (string, error), emit func(context.Context) bool) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		fp, err := check(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			logger.WarnCF(component, "Poll failed", map[string]any{
				"error": err.Error(),
			})
		case fp != last:
			if !emit(ctx) {
				return
			}
			last = fp
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
