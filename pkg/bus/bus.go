package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	publishTimeout = 100 * time.Millisecond
	queueSize      = 100
)

// queue is a bounded channel that waits briefly when full and then drops.
type queue[T any] struct {
	ch      chan T
	dropped atomic.Uint64
}

func newQueue[T any](size int) *queue[T] {
	return &queue[T]{ch: make(chan T, size)}
}

func (q *queue[T]) publish(v T) {
	select {
	case q.ch <- v:
		return
	default:
	}

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case q.ch <- v:
	case <-timer.C:
		q.dropped.Add(1)
	}
}

func (q *queue[T]) consume(ctx context.Context) (T, bool) {
	var zero T
	select {
	case v, ok := <-q.ch:
		if !ok {
			return zero, false
		}
		return v, true
	case <-ctx.Done():
		return zero, false
	}
}

// MessageBus carries chat traffic between channels and the chat gateway.
type MessageBus struct {
	inbound  *queue[InboundMessage]
	outbound *queue[OutboundMessage]
	closed   bool
	mu       sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  newQueue[InboundMessage](queueSize),
		outbound: newQueue[OutboundMessage](queueSize),
	}
}

func (mb *MessageBus) PublishInbound(msg InboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	mb.inbound.publish(msg)
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	return mb.inbound.consume(ctx)
}

func (mb *MessageBus) PublishOutbound(msg OutboundMessage) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	mb.outbound.publish(msg)
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	return mb.outbound.consume(ctx)
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound.ch)
	close(mb.outbound.ch)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.inbound.dropped.Load()
}

func (mb *MessageBus) DroppedOutbound() uint64 {
	return mb.outbound.dropped.Load()
}
