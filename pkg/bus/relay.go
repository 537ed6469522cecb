package bus

import "sync"

// Relay holds the latest value of T and fans it out to subscribers.
// A new subscriber immediately receives the last published value. Each
// subscription buffers a single value; a slow reader only ever sees the most
// recent one.
type Relay[T any] struct {
	mu     sync.Mutex
	value  T
	has    bool
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// Subscription is a registration on a Relay. Values arrive on C until
// Unsubscribe is called or the relay is closed.
type Subscription[T any] struct {
	C     <-chan T
	ch    chan T
	id    uint64
	relay *Relay[T]
}

func NewRelay[T any]() *Relay[T] {
	return &Relay[T]{subs: make(map[uint64]*Subscription[T])}
}

// NewRelayWith returns a relay seeded with an initial value.
func NewRelayWith[T any](initial T) *Relay[T] {
	r := NewRelay[T]()
	r.value = initial
	r.has = true
	return r
}

// Publish stores v as the latest value and delivers it to every subscriber.
func (r *Relay[T]) Publish(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.value = v
	r.has = true
	for _, sub := range r.subs {
		offerLatest(sub.ch, v)
	}
}

// Value returns the latest value and whether one was ever published.
func (r *Relay[T]) Value() (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.has
}

func (r *Relay[T]) Subscribe() *Subscription[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan T, 1)
	sub := &Subscription[T]{C: ch, ch: ch, relay: r}
	if r.closed {
		close(ch)
		return sub
	}

	r.nextID++
	sub.id = r.nextID
	r.subs[sub.id] = sub
	if r.has {
		ch <- r.value
	}
	return sub
}

// Unsubscribe detaches the subscription and closes C. Safe to call twice.
func (s *Subscription[T]) Unsubscribe() {
	r := s.relay
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[s.id]; !ok {
		return
	}
	delete(r.subs, s.id)
	close(s.ch)
}

// Close closes every subscription. Later publishes are ignored.
func (r *Relay[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, sub := range r.subs {
		close(sub.ch)
		delete(r.subs, id)
	}
}

// offerLatest replaces whatever is buffered in ch with v. Callers hold the
// relay lock, so the send after draining cannot block.
func offerLatest[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
