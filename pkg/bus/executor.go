package bus

import (
	"context"
	"errors"
	"sync"
)

// ErrExecutorClosed is returned when work is posted to a stopped Executor.
var ErrExecutorClosed = errors.New("executor closed")

// Executor runs posted functions one at a time, in order, on a single
// goroutine. State owned by an Executor must only be touched from inside
// functions it runs. Call must not be used from inside the executor itself.
type Executor struct {
	tasks  chan func()
	done   chan struct{}
	exited chan struct{}

	// mu is held shared by senders and exclusively by Close, so every
	// accepted task is in the buffer before done closes.
	mu     sync.RWMutex
	closed bool
}

func NewExecutor() *Executor {
	e := &Executor{
		tasks:  make(chan func(), 64),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go e.run()
	return e
}

func (e *Executor) run() {
	defer close(e.exited)
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.done:
			// Drain what was accepted before shutdown.
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post queues fn without waiting for it to run. A nil error means fn will
// run, even if Close is called right after. Post must not be called from
// inside the executor while Close is pending.
func (e *Executor) Post(fn func()) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrExecutorClosed
	}
	e.tasks <- fn
	return nil
}

// Call runs fn on the executor and waits for it to finish.
func (e *Executor) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := e.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.exited:
		select {
		case <-finished:
			return nil
		default:
			return ErrExecutorClosed
		}
	}
}

// Close stops accepting work, runs what is already queued, and waits for the
// loop to exit.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.done)
	}
	e.mu.Unlock()
	<-e.exited
}
