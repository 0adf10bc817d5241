package resilience

import (
	"context"
	"time"
)

// RetryConfig configures Retry's backoff schedule.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// DefaultRetryConfig returns a retry schedule suitable for RPCs to a
// flaky remote (KMS decrypt, upstream dial): five attempts, doubling
// backoff starting at 100ms, capped at 5s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2,
	}
}

// Retry calls fn until it succeeds, the context is done, or
// cfg.MaxAttempts is exhausted, sleeping an exponentially increasing
// backoff between attempts. It returns the context error if the
// context is cancelled while waiting, otherwise the last error fn
// returned.
func Retry(ctx context.Context, cfg RetryConfig, fn Executor) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	backoff := cfg.InitialBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}
