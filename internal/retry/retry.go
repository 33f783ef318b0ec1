// Package retry implements jittered exponential backoff for the
// DependencyError retries spec.md §7 calls for: idempotent operations only,
// never an action whose execution status is unknown.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config configures a retry loop.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultConfig returns sensible defaults: 3 attempts, 100ms initial delay,
// 5s cap, factor 2, jitter on.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Do runs fn up to cfg.MaxAttempts times, sleeping with exponential backoff
// between attempts. It stops and returns nil on the first success, returns
// ctx.Err() if ctx is canceled while waiting, and otherwise returns the last
// error once attempts are exhausted.
func Do(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		if attempt > 1 {
			delay = time.Duration(float64(delay) * cfg.BackoffFactor)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		wait := delay
		if cfg.Jitter {
			jitter := time.Duration(float64(delay) * 0.1 * math.Abs(rand.Float64()))
			wait += jitter
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
