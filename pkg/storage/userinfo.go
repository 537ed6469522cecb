package storage

import (
	"context"
	"fmt"

	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
	"github.com/traeumen927/chatGPT-sub000/pkg/userinfo"
)

// UserInfoStore implements userinfo.InfoStore for one user.
type UserInfoStore struct {
	parent *SQLiteStore
	userID string
}

var _ userinfo.InfoStore = (*UserInfoStore)(nil)

func (s *SQLiteStore) UserInfo(userID string) *UserInfoStore {
	return &UserInfoStore{parent: s, userID: userID}
}

func (u *UserInfoStore) Fetch(ctx context.Context) (userinfo.Info, error) {
	rows, err := u.parent.db.QueryContext(ctx, `
SELECT attr_key, value, count, first_mentioned, last_mentioned FROM user_facts
WHERE user_id = ?
ORDER BY attr_key ASC, seq ASC`, u.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch user facts: %w", err)
	}
	defer rows.Close()

	out := userinfo.Info{}
	for rows.Next() {
		var key string
		var f userinfo.Fact
		if err := rows.Scan(&key, &f.Value, &f.Count, &f.FirstMentioned, &f.LastMentioned); err != nil {
			return nil, fmt.Errorf("scan user fact: %w", err)
		}
		out[key] = append(out[key], f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user facts: %w", err)
	}
	return out, nil
}

// Update replaces every stored fact of the user with info.
func (u *UserInfoStore) Update(ctx context.Context, info userinfo.Info) error {
	tx, err := u.parent.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update user facts begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_facts WHERE user_id = ?`, u.userID); err != nil {
		return fmt.Errorf("clear user facts: %w", err)
	}
	for key, facts := range info {
		for i, f := range facts {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO user_facts(user_id, attr_key, value, seq, count, first_mentioned, last_mentioned)
VALUES(?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, attr_key, value) DO UPDATE SET
	count = user_facts.count + excluded.count,
	last_mentioned = MAX(user_facts.last_mentioned, excluded.last_mentioned)`,
				u.userID, key, f.Value, i, f.Count, f.FirstMentioned, f.LastMentioned); err != nil {
				return fmt.Errorf("insert user fact: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update user facts commit: %w", err)
	}
	return nil
}

// Observe pushes the full fact snapshot whenever it changes. When since is
// set and nothing was mentioned after it, the first push waits for a change.
func (u *UserInfoStore) Observe(ctx context.Context, since int64) (<-chan userinfo.Info, error) {
	check := func(ctx context.Context) (string, error) {
		n, total, latest, err := u.stats(ctx)
		return fmt.Sprintf("%d:%d:%d", n, total, latest), err
	}

	last := ""
	if since > 0 {
		n, total, latest, err := u.stats(ctx)
		if err != nil {
			return nil, err
		}
		if latest <= since {
			last = fmt.Sprintf("%d:%d:%d", n, total, latest)
		}
	}

	out := make(chan userinfo.Info, 1)
	emit := func(ctx context.Context) bool {
		info, err := u.Fetch(ctx)
		if err != nil {
			logger.WarnCF("storage", "User fact refresh failed", map[string]any{"error": err.Error()})
			return ctx.Err() == nil
		}
		select {
		case out <- info:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		u.parent.poll(ctx, "storage", last, check, emit)
	}()
	return out, nil
}

func (u *UserInfoStore) stats(ctx context.Context) (n, total, latest int64, err error) {
	err = u.parent.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(count), 0), COALESCE(MAX(last_mentioned), 0) FROM user_facts WHERE user_id = ?`,
		u.userID).Scan(&n, &total, &latest)
	if err != nil {
		err = fmt.Errorf("user fact stats: %w", err)
	}
	return n, total, latest, err
}
