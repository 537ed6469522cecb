package preference

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store. It backs ephemeral sessions and
// tests; persistent sessions use the SQLite store.
type MemoryStore struct {
	mu       sync.Mutex
	events   []Event
	items    map[Pair]Item
	statuses map[string]Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[Pair]Item),
		statuses: make(map[string]Status),
	}
}

func (m *MemoryStore) FetchEvents(ctx context.Context) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...), nil
}

func (m *MemoryStore) AddEvents(ctx context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func (m *MemoryStore) DeleteEvent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	for _, ev := range m.events {
		if ev.ID != id {
			kept = append(kept, ev)
		}
	}
	m.events = kept
	return nil
}

func (m *MemoryStore) FetchItems(ctx context.Context) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Item, 0, len(m.items))
	for _, it := range m.items {
		out = append(out, it)
	}
	return out, nil
}

func (m *MemoryStore) IncrementItems(ctx context.Context, items []Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		p := Pair{Key: it.Key, Relation: it.Relation}
		cur, ok := m.items[p]
		if !ok {
			m.items[p] = it
			continue
		}
		cur.Count += it.Count
		cur.UpdatedAt = max(cur.UpdatedAt, it.UpdatedAt)
		m.items[p] = cur
	}
	return nil
}

func (m *MemoryStore) DeleteItems(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for p := range m.items {
		if p.Key == key {
			delete(m.items, p)
		}
	}
	return nil
}

func (m *MemoryStore) FetchStatus(ctx context.Context) ([]Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.statuses))
	for _, st := range m.statuses {
		out = append(out, st)
	}
	return out, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[status.Key] = status
	return nil
}

func (m *MemoryStore) DeleteStatus(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, key)
	return nil
}
