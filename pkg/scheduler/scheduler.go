// Package scheduler runs background jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

// JobFunc is one run of a job. Errors are logged; the job keeps its schedule.
type JobFunc func(ctx context.Context) error

type job struct {
	name string
	expr string
	fn   JobFunc
}

// Scheduler runs each job on its own goroutine. Runs of the same job never
// overlap; a run that outlasts its interval delays the next one.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	now     func() time.Time
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]*job), now: time.Now}
}

// Add registers fn under name with a five-field cron expression.
func (s *Scheduler) Add(name, expr string, fn JobFunc) error {
	if fn == nil {
		return fmt.Errorf("job %q has no func", name)
	}
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("job %q: invalid cron expression %q", name, expr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("job %q: scheduler already started", name)
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}
	s.jobs[name] = &job{name: name, expr: expr, fn: fn}
	return nil
}

// Next returns when job name runs next after ref.
func (s *Scheduler) Next(name string, ref time.Time) (time.Time, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, fmt.Errorf("job %q not registered", name)
	}
	return gronx.NextTickAfter(j.expr, ref, false)
}

// RunNow runs job name synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	return s.run(ctx, j)
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	logger.InfoCF("scheduler", "Scheduler started", map[string]any{
		"jobs": len(s.jobs),
	})
}

// Stop cancels pending waits and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()
	for {
		next, err := gronx.NextTickAfter(j.expr, s.now(), false)
		if err != nil {
			logger.ErrorCF("scheduler", "Cannot compute next run", map[string]any{
				"job":   j.name,
				"error": err.Error(),
			})
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.run(ctx, j); err != nil && ctx.Err() == nil {
			logger.WarnCF("scheduler", "Job failed", map[string]any{
				"job":   j.name,
				"error": err.Error(),
			})
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j *job) error {
	start := s.now()
	err := j.fn(ctx)
	logger.DebugCF("scheduler", "Job finished", map[string]any{
		"job":         j.name,
		"duration_ms": s.now().Sub(start).Milliseconds(),
		"ok":          err == nil,
	})
	return err
}
