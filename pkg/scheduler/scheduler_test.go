package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_RejectsInvalidExpression(t *testing.T) {
	s := New()
	assert.Error(t, s.Add("bad", "not a cron", func(context.Context) error { return nil }))
	assert.Error(t, s.Add("nil", "* * * * *", nil))
}

func TestAdd_RejectsDuplicate(t *testing.T) {
	s := New()
	noop := func(context.Context) error { return nil }
	require.NoError(t, s.Add("refresh", "*/30 * * * *", noop))
	assert.Error(t, s.Add("refresh", "*/5 * * * *", noop))
}

func TestNext(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("refresh", "*/30 * * * *", func(context.Context) error { return nil }))

	ref := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)
	next, err := s.Next("refresh", ref)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), next)

	_, err = s.Next("missing", ref)
	assert.Error(t, err)
}

func TestRunNow(t *testing.T) {
	s := New()
	calls := 0
	boom := errors.New("boom")
	require.NoError(t, s.Add("refresh", "0 * * * *", func(context.Context) error {
		calls++
		return boom
	}))

	err := s.RunNow(context.Background(), "refresh")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestStartStop(t *testing.T) {
	s := New()
	require.NoError(t, s.Add("hourly", "0 * * * *", func(context.Context) error { return nil }))

	s.Start(context.Background())
	assert.Error(t, s.Add("late", "0 * * * *", func(context.Context) error { return nil }))

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	s.Stop()
}
