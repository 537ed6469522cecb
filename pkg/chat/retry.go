package chat

import (
	"context"
	"errors"
	"time"

	"github.com/traeumen927/chatGPT-sub000/pkg/logger"
)

type retryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// retry calls fn until it succeeds, attempts run out or ctx is done, doubling
// the delay between attempts. The last error is returned.
func retry(ctx context.Context, cfg retryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 500 * time.Millisecond
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 10 * time.Second
	}

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.DebugCF("chat", "Attempt failed, retrying", map[string]any{
			"attempt": attempt,
			"max":     cfg.MaxAttempts,
			"delay":   delay.String(),
			"error":   lastErr.Error(),
		})
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
		delay *= 2
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return lastErr
}
