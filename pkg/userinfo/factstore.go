package userinfo

import (
	"context"
	"sync"
	"time"

	"github.com/traeumen927/chatGPT-sub000/pkg/bus"
	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

// FactStore caches the TTL-filtered facts of the signed-in user. All
// snapshot replacements run on one executor; readers get copies.
type FactStore struct {
	ttl   time.Duration
	now   func() time.Time
	exec  *bus.Executor
	relay *bus.Relay[Info]

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFactStore(ttl time.Duration, now func() time.Time) *FactStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &FactStore{
		ttl:   ttl,
		now:   now,
		exec:  bus.NewExecutor(),
		relay: bus.NewRelayWith(Info{}),
	}
}

// Bind consumes updates until ctx ends or the channel closes. Binding again
// stops the previous source.
func (s *FactStore) Bind(ctx context.Context, updates <-chan Info) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case info, ok := <-updates:
				if !ok {
					return
				}
				if err := s.Apply(info); err != nil {
					logger.WarnCF("userinfo", "Dropped fact update", map[string]any{
						"error": err.Error(),
					})
					return
				}
			}
		}
	}()
}

// BindStore observes store starting from the cached cursor.
func (s *FactStore) BindStore(ctx context.Context, store InfoStore) error {
	since, _ := s.LatestTimestamp()
	updates, err := store.Observe(ctx, since)
	if err != nil {
		return err
	}
	s.Bind(ctx, updates)
	return nil
}

// Apply filters info and replaces the cached snapshot.
func (s *FactStore) Apply(info Info) error {
	filtered := FilterExpired(info, s.ttl, s.now())
	return s.exec.Call(context.Background(), func() {
		s.relay.Publish(filtered)
		logger.DebugCF("userinfo", "Fact snapshot updated", map[string]any{
			"attributes": len(filtered),
		})
	})
}

// CurrentInfo returns a copy of the latest snapshot without the facts that
// have expired since it was published.
func (s *FactStore) CurrentInfo() Info {
	info, _ := s.relay.Value()
	return FilterExpired(info, s.ttl, s.now())
}

// LatestTimestamp is the observe cursor of the published snapshot. Facts
// that expired after publication still count.
func (s *FactStore) LatestTimestamp() (int64, bool) {
	info, _ := s.relay.Value()
	return info.LatestTimestamp()
}

// Subscribe delivers the current snapshot and every later one. Values are
// shared; subscribers must not modify them.
func (s *FactStore) Subscribe() *bus.Subscription[Info] {
	return s.relay.Subscribe()
}

// Close stops any bound source and releases subscribers.
func (s *FactStore) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.exec.Close()
	s.relay.Close()
}
