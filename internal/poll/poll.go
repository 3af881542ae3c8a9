// Package poll repeats a check until it reports completion or a retry budget
// runs out.
package poll

import (
	"context"
	"time"

	"flinkctl/internal/apperrors"
	"flinkctl/pkg/backoff"
)

// Check inspects remote state once. It returns done=true with a value when the
// awaited condition holds, done=false while still pending, or an error that
// ends polling immediately. Attempt starts at 1.
type Check[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Config controls the retry budget and the delay between attempts.
type Config struct {
	MaxRetries int           // attempts before giving up (default: 20)
	Interval   time.Duration // delay between attempts (default: 2s)

	// Backoff overrides the delay schedule. Nil uses a constant Interval.
	Backoff backoff.Strategy

	// Sleep overrides waiting between attempts. Nil waits on a timer and
	// returns early with ctx.Err() when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the standard budget: 20 attempts two seconds apart.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 20
	}
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.Backoff == nil {
		c.Backoff = backoff.Constant(c.Interval)
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	return c
}

// Until calls check up to cfg.MaxRetries times, sleeping between pending
// attempts but not after the last one. what names the awaited operation in the
// apperrors.ErrMaxRetriesExceeded error returned when the budget runs out.
func Until[T any](ctx context.Context, cfg Config, what string, check Check[T]) (T, error) {
	cfg = cfg.withDefaults()
	var zero T

	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, done, err := check(ctx, attempt)
		if err != nil {
			return zero, err
		}
		if done {
			return value, nil
		}

		if attempt < cfg.MaxRetries {
			if err := cfg.Sleep(ctx, cfg.Backoff.Delay(attempt)); err != nil {
				return zero, err
			}
		}
	}

	return zero, apperrors.MaxRetries(what, cfg.MaxRetries)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
