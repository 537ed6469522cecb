package storage

import (
	"context"
	"fmt"

	"github.com/traeumen927/chatGPT-sub000/pkg/preference"
)

// PreferenceStore implements preference.Store for one user.
type PreferenceStore struct {
	parent *SQLiteStore
	userID string
}

var _ preference.Store = (*PreferenceStore)(nil)

func (s *SQLiteStore) Preferences(userID string) *PreferenceStore {
	return &PreferenceStore{parent: s, userID: userID}
}

func (p *PreferenceStore) FetchEvents(ctx context.Context) ([]preference.Event, error) {
	rows, err := p.parent.db.QueryContext(ctx, `
SELECT id, item_key, relation, ts FROM preference_events
WHERE user_id = ?
ORDER BY ts ASC, id ASC`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch preference events: %w", err)
	}
	defer rows.Close()

	var out []preference.Event
	for rows.Next() {
		var ev preference.Event
		var rel string
		if err := rows.Scan(&ev.ID, &ev.Key, &rel, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan preference event: %w", err)
		}
		ev.Relation = preference.Relation(rel)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference events: %w", err)
	}
	return out, nil
}

func (p *PreferenceStore) AddEvents(ctx context.Context, events []preference.Event) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := p.parent.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add preference events begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, ev := range events {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO preference_events(id, user_id, item_key, relation, ts)
VALUES(?, ?, ?, ?, ?)`, ev.ID, p.userID, ev.Key, string(ev.Relation), ev.Timestamp); err != nil {
			return fmt.Errorf("insert preference event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add preference events commit: %w", err)
	}
	return nil
}

func (p *PreferenceStore) DeleteEvent(ctx context.Context, id string) error {
	if _, err := p.parent.db.ExecContext(ctx, `
DELETE FROM preference_events WHERE id = ? AND user_id = ?`, id, p.userID); err != nil {
		return fmt.Errorf("delete preference event: %w", err)
	}
	return nil
}

func (p *PreferenceStore) FetchItems(ctx context.Context) ([]preference.Item, error) {
	rows, err := p.parent.db.QueryContext(ctx, `
SELECT item_key, relation, updated_at, count FROM preference_items
WHERE user_id = ?
ORDER BY item_key ASC, relation ASC`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch preference items: %w", err)
	}
	defer rows.Close()

	var out []preference.Item
	for rows.Next() {
		var it preference.Item
		var rel string
		if err := rows.Scan(&it.Key, &rel, &it.UpdatedAt, &it.Count); err != nil {
			return nil, fmt.Errorf("scan preference item: %w", err)
		}
		it.Relation = preference.Relation(rel)
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference items: %w", err)
	}
	return out, nil
}

// IncrementItems adds each item's count to the stored row in one statement,
// so concurrent writers never lose increments.
func (p *PreferenceStore) IncrementItems(ctx context.Context, items []preference.Item) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := p.parent.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("increment preference items begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO preference_items(user_id, item_key, relation, updated_at, count)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(user_id, item_key, relation) DO UPDATE SET
	updated_at = max(preference_items.updated_at, excluded.updated_at),
	count = preference_items.count + excluded.count`, p.userID, it.Key, string(it.Relation), it.UpdatedAt, it.Count); err != nil {
			return fmt.Errorf("upsert preference item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("increment preference items commit: %w", err)
	}
	return nil
}

func (p *PreferenceStore) DeleteItems(ctx context.Context, key string) error {
	if _, err := p.parent.db.ExecContext(ctx, `
DELETE FROM preference_items WHERE user_id = ? AND item_key = ?`, p.userID, key); err != nil {
		return fmt.Errorf("delete preference items: %w", err)
	}
	return nil
}

func (p *PreferenceStore) FetchStatus(ctx context.Context) ([]preference.Status, error) {
	rows, err := p.parent.db.QueryContext(ctx, `
SELECT item_key, current_relation, updated_at, previous_relation, changed_at FROM preference_status
WHERE user_id = ?
ORDER BY item_key ASC`, p.userID)
	if err != nil {
		return nil, fmt.Errorf("fetch preference status: %w", err)
	}
	defer rows.Close()

	var out []preference.Status
	for rows.Next() {
		var st preference.Status
		var cur, prev string
		if err := rows.Scan(&st.Key, &cur, &st.UpdatedAt, &prev, &st.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan preference status: %w", err)
		}
		st.Current = preference.Relation(cur)
		st.Previous = preference.Relation(prev)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preference status: %w", err)
	}
	return out, nil
}

func (p *PreferenceStore) UpdateStatus(ctx context.Context, st preference.Status) error {
	if _, err := p.parent.db.ExecContext(ctx, `
INSERT INTO preference_status(user_id, item_key, current_relation, updated_at, previous_relation, changed_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, item_key) DO UPDATE SET
	current_relation = excluded.current_relation,
	updated_at = excluded.updated_at,
	previous_relation = excluded.previous_relation,
	changed_at = excluded.changed_at`,
		p.userID, st.Key, string(st.Current), st.UpdatedAt, string(st.Previous), st.ChangedAt); err != nil {
		return fmt.Errorf("upsert preference status: %w", err)
	}
	return nil
}

func (p *PreferenceStore) DeleteStatus(ctx context.Context, key string) error {
	if _, err := p.parent.db.ExecContext(ctx, `
DELETE FROM preference_status WHERE user_id = ? AND item_key = ?`, p.userID, key); err != nil {
		return fmt.Errorf("delete preference status: %w", err)
	}
	return nil
}
