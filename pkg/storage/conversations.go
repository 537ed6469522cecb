package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

// ErrNotFound is returned when a conversation does not exist for the user.
var ErrNotFound = errors.New("not found")

type ConversationSummary struct {
	ID        string
	Title     string
	Timestamp time.Time
}

type ConversationMessage struct {
	ID        string
	Role      string
	Text      string
	URLs      []string
	Timestamp time.Time
}

// Entry is the text and attachment URLs of one side of a turn.
type Entry struct {
	Text string
	URLs []string
}

// ConversationStore is the conversation history of a single user.
type ConversationStore struct {
	parent *SQLiteStore
	userID string
}

func (s *SQLiteStore) Conversations(userID string) *ConversationStore {
	return &ConversationStore{parent: s, userID: userID}
}

// CreateConversation stores a new conversation with its first question and
// answer and returns its id.
func (c *ConversationStore) CreateConversation(ctx context.Context, title string, question, answer Entry) (string, error) {
	db := c.parent.db
	id := uuid.NewString()
	now := nowMS()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("create conversation begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversations(id, user_id, title, created_at_ms, updated_at_ms)
VALUES(?, ?, ?, ?, ?)`, id, c.userID, strings.TrimSpace(title), now, now); err != nil {
		return "", fmt.Errorf("create conversation insert: %w", err)
	}
	if err := insertMessageTx(ctx, tx, id, 0, "user", question, now); err != nil {
		return "", err
	}
	if err := insertMessageTx(ctx, tx, id, 1, "assistant", answer, now); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("create conversation commit: %w", err)
	}

	logger.DebugCF("storage", "Conversation created", map[string]any{
		"conversation_id": id,
	})
	return id, nil
}

func insertMessageTx(ctx context.Context, tx *sql.Tx, conversationID string, seq int, role string, e Entry, atMS int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT INTO conversation_messages(id, conversation_id, seq, role, text, urls_json, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?)`, uuid.NewString(), conversationID, seq, role, e.Text, encodeStrings(e.URLs), atMS); err != nil {
		return fmt.Errorf("insert conversation message: %w", err)
	}
	return nil
}

// AppendMessage adds a message to the end of conversation id.
func (c *ConversationStore) AppendMessage(ctx context.Context, id, role, text string, urls []string) error {
	db := c.parent.db
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append message begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := c.ownedTx(ctx, tx, id); err != nil {
		return err
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(seq), -1) + 1 FROM conversation_messages WHERE conversation_id = ?`, id).Scan(&next); err != nil {
		return fmt.Errorf("append message next seq: %w", err)
	}

	now := nowMS()
	if err := insertMessageTx(ctx, tx, id, next, role, Entry{Text: text, URLs: urls}, now); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE conversations SET updated_at_ms = ? WHERE id = ?`, now, id); err != nil {
		return fmt.Errorf("append message touch conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("append message commit: %w", err)
	}
	return nil
}

func (c *ConversationStore) ownedTx(ctx context.Context, tx *sql.Tx, id string) error {
	var owner string
	err := tx.QueryRowContext(ctx, `SELECT user_id FROM conversations WHERE id = ?`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != c.userID) {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("lookup conversation: %w", err)
	}
	return nil
}

// FetchMessages returns the messages of conversation id in order.
func (c *ConversationStore) FetchMessages(ctx context.Context, id string) ([]ConversationMessage, error) {
	rows, err := c.parent.db.QueryContext(ctx, `
SELECT m.id, m.role, m.text, m.urls_json, m.created_at_ms
FROM conversation_messages m
JOIN conversations c ON c.id = m.conversation_id
WHERE m.conversation_id = ? AND c.user_id = ?
ORDER BY m.seq ASC`, id, c.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer rows.Close()

	var out []ConversationMessage
	for rows.Next() {
		var m ConversationMessage
		var urlsRaw string
		var createdMS int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &urlsRaw, &createdMS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.URLs = decodeStrings(urlsRaw)
		m.Timestamp = time.UnixMilli(createdMS)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// ListConversations returns the user's conversations, most recent first.
func (c *ConversationStore) ListConversations(ctx context.Context) ([]ConversationSummary, error) {
	rows, err := c.parent.db.QueryContext(ctx, `
SELECT id, title, updated_at_ms FROM conversations
WHERE user_id = ?
ORDER BY updated_at_ms DESC, id ASC`, c.userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []ConversationSummary
	for rows.Next() {
		var cs ConversationSummary
		var updatedMS int64
		if err := rows.Scan(&cs.ID, &cs.Title, &updatedMS); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		cs.Timestamp = time.UnixMilli(updatedMS)
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// ObserveConversations pushes the conversation list now and whenever it
// changes. The channel is closed when ctx ends.
func (c *ConversationStore) ObserveConversations(ctx context.Context) (<-chan []ConversationSummary, error) {
	out := make(chan []ConversationSummary, 1)
	check := func(ctx context.Context) (string, error) {
		var n, latest int64
		err := c.parent.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(MAX(updated_at_ms), 0) FROM conversations WHERE user_id = ?`, c.userID).Scan(&n, &latest)
		return fmt.Sprintf("%d:%d", n, latest), err
	}
	emit := func(ctx context.Context) bool {
		list, err := c.ListConversations(ctx)
		if err != nil {
			logger.WarnCF("storage", "Conversation list refresh failed", map[string]any{"error": err.Error()})
			return ctx.Err() == nil
		}
		select {
		case out <- list:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		c.parent.poll(ctx, "storage", "", check, emit)
	}()
	return out, nil
}

func (c *ConversationStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := c.parent.db.ExecContext(ctx, `
UPDATE conversations SET title = ?, updated_at_ms = ? WHERE id = ? AND user_id = ?`,
		strings.TrimSpace(title), nowMS(), id, c.userID)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}
	return requireAffected(res, id)
}

// DeleteConversation removes the conversation and its messages.
func (c *ConversationStore) DeleteConversation(ctx context.Context, id string) error {
	tx, err := c.parent.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete conversation begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := c.ownedTx(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete conversation commit: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, ErrNotFound)
	}
	return nil
}
