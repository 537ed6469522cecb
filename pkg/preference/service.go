package preference

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

// ServiceOptions tunes a Service. Zero values fall back to defaults.
type ServiceOptions struct {
	Decay float64
	TopN  int
	Now   func() time.Time
	NewID func() string
}

// Service records preference mentions and keeps the aggregated items and
// per-key statuses in step with the event log. Writes through one Service
// are serialized; share a Service per user rather than creating one per
// session.
type Service struct {
	mu        sync.Mutex
	store     Store
	extractor *Extractor
	decay     float64
	topN      int
	now       func() time.Time
	newID     func() string
}

func NewService(store Store, extractor *Extractor, opts ServiceOptions) *Service {
	if extractor == nil {
		extractor = NewExtractor(nil, nil)
	}
	if opts.Decay <= 0 {
		opts.Decay = DefaultDecay
	}
	if opts.TopN <= 0 {
		opts.TopN = 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Service{
		store:     store,
		extractor: extractor,
		decay:     opts.Decay,
		topN:      opts.TopN,
		now:       opts.Now,
		newID:     opts.NewID,
	}
}

// Record extracts pairs from prompt and persists them. It returns the pairs
// that were stored; a prompt without cues is a no-op.
func (s *Service) Record(ctx context.Context, prompt string) ([]Pair, error) {
	pairs := s.extractor.Extract(prompt)
	if len(pairs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	events := make([]Event, len(pairs))
	for i, p := range pairs {
		events[i] = Event{ID: s.newID(), Key: p.Key, Relation: p.Relation, Timestamp: now}
	}
	if err := s.store.AddEvents(ctx, events); err != nil {
		return nil, fmt.Errorf("add preference events: %w", err)
	}

	if err := s.mergeItems(ctx, pairs, now); err != nil {
		return nil, err
	}
	if err := s.promote(ctx, pairs, now); err != nil {
		return nil, err
	}

	logger.DebugCF("preference", "Recorded preferences", map[string]any{
		"count": len(pairs),
	})
	return pairs, nil
}

// mergeItems sends this call's per-pair mention counts as increments.
func (s *Service) mergeItems(ctx context.Context, pairs []Pair, now int64) error {
	var order []Pair
	counts := make(map[Pair]int)
	for _, p := range pairs {
		if counts[p] == 0 {
			order = append(order, p)
		}
		counts[p]++
	}

	deltas := make([]Item, 0, len(order))
	for _, p := range order {
		deltas = append(deltas, Item{Key: p.Key, Relation: p.Relation, UpdatedAt: now, Count: counts[p]})
	}
	if err := s.store.IncrementItems(ctx, deltas); err != nil {
		return fmt.Errorf("increment preference items: %w", err)
	}
	return nil
}

// promote recomputes the current relation of every key touched by pairs.
// The relation with the highest decayed score over that key's events wins.
func (s *Service) promote(ctx context.Context, pairs []Pair, now int64) error {
	events, err := s.store.FetchEvents(ctx)
	if err != nil {
		return fmt.Errorf("fetch preference events: %w", err)
	}
	statuses, err := s.store.FetchStatus(ctx)
	if err != nil {
		return fmt.Errorf("fetch preference status: %w", err)
	}
	current := make(map[string]Status, len(statuses))
	for _, st := range statuses {
		current[st.Key] = st
	}

	seen := make(map[string]bool)
	for _, p := range pairs {
		if seen[p.Key] {
			continue
		}
		seen[p.Key] = true

		var keyed []Event
		for _, ev := range events {
			if ev.Key == p.Key {
				keyed = append(keyed, ev)
			}
		}
		top := Rank(keyed, 1, s.decay, now)
		if len(top) == 0 {
			continue
		}

		st, ok := current[p.Key]
		switch {
		case !ok:
			st = Status{Key: p.Key, Current: top[0].Relation}
		case st.Current != top[0].Relation:
			logger.InfoCF("preference", "Preference changed", map[string]any{
				"key":  p.Key,
				"from": string(st.Current),
				"to":   string(top[0].Relation),
			})
			st.Previous = st.Current
			st.ChangedAt = now
			st.Current = top[0].Relation
		}
		st.UpdatedAt = now
		if err := s.store.UpdateStatus(ctx, st); err != nil {
			return fmt.Errorf("update preference status %q: %w", p.Key, err)
		}
	}
	return nil
}

// Top ranks every recorded event and returns the n strongest pairs.
// A non-positive n uses the configured default.
func (s *Service) Top(ctx context.Context, n int) ([]Pair, error) {
	if n <= 0 {
		n = s.topN
	}
	events, err := s.store.FetchEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch preference events: %w", err)
	}
	return Rank(events, n, s.decay, s.now().Unix()), nil
}

// PreferenceText renders the top pairs as a system prompt fragment, or ""
// when nothing has been recorded.
func (s *Service) PreferenceText(ctx context.Context, n int) (string, error) {
	top, err := s.Top(ctx, n)
	if err != nil {
		return "", err
	}
	return FormatPreferences(top), nil
}

func FormatPreferences(pairs []Pair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = string(p.Relation) + " " + p.Key
	}
	return "User preferences: " + strings.Join(parts, ", ")
}

func (s *Service) Statuses(ctx context.Context) ([]Status, error) {
	return s.store.FetchStatus(ctx)
}

// Forget removes every event, item and the status recorded for key.
func (s *Service) Forget(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.store.FetchEvents(ctx)
	if err != nil {
		return fmt.Errorf("fetch preference events: %w", err)
	}
	removed := 0
	for _, ev := range events {
		if ev.Key != key || ev.ID == "" {
			continue
		}
		if err := s.store.DeleteEvent(ctx, ev.ID); err != nil {
			return fmt.Errorf("delete preference event %s: %w", ev.ID, err)
		}
		removed++
	}
	if err := s.store.DeleteItems(ctx, key); err != nil {
		return fmt.Errorf("delete preference items %q: %w", key, err)
	}
	if err := s.store.DeleteStatus(ctx, key); err != nil {
		return fmt.Errorf("delete preference status %q: %w", key, err)
	}
	logger.InfoCF("preference", "Forgot preference", map[string]any{
		"key":    key,
		"events": removed,
	})
	return nil
}
