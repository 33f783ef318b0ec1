// Package ratelimit implements the sliding-window limiter spec.md §4.5
// describes: a per-(merchant, action_type) counter in the shared KV with
// per-window TTL, plus a "flagged for review" marker held for the configured
// flagDuration (one hour in the config defaults). Fail-open: if
// the KV is unreachable, the action is allowed and a degradation event is
// emitted so operators can see why the dependency's circuit breaker will
// soon open.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/kv"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
)

// DegradationListener is notified when the limiter fails open because the
// KV was unreachable. Grounded on the teacher's event-hook idiom: a single
// callback, never a required dependency.
type DegradationListener func(ctx context.Context, merchant string, actionType domain.ActionType, err error)

// Limiter enforces spec.md §4.5's check_and_reserve / flag_excessive pair.
type Limiter struct {
	store        kv.Store
	window       time.Duration
	defaultLimit int
	flagDuration time.Duration
	logger       logging.Logger
	onDegraded   DegradationListener
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithDegradationListener registers a callback invoked whenever the limiter
// fails open due to a KV error.
func WithDegradationListener(fn DegradationListener) Option {
	return func(l *Limiter) { l.onDegraded = fn }
}

// WithLogger attaches a structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// New builds a Limiter backed by store, with the given window and default
// per-window limit. Pass per-call overrides to CheckAndReserve when an
// action type needs a different ceiling than the default.
func New(store kv.Store, window time.Duration, defaultLimit int, flagDuration time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		store:        store,
		window:       window,
		defaultLimit: defaultLimit,
		flagDuration: flagDuration,
		logger:       logging.NoOp{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func counterKey(merchant string, actionType domain.ActionType) string {
	return fmt.Sprintf("ratelimit:%s:%s", merchant, actionType)
}

func flagKey(merchant string, actionType domain.ActionType) string {
	return fmt.Sprintf("ratelimit:flag:%s:%s", merchant, actionType)
}

// Decision is the outcome of CheckAndReserve.
type Decision struct {
	Allowed bool
	Current int64
	Limit   int
}

// CheckAndReserve atomically increments the (merchant, actionType) counter
// for the current window and reports whether the action may proceed. limit
// <= 0 uses the Limiter's default. On KV failure it fails open (Allowed =
// true) and reports the degradation via the registered listener, per
// spec.md §4.5 and SPEC_FULL.md's supplemented degradation-event feature.
func (l *Limiter) CheckAndReserve(ctx context.Context, merchant string, actionType domain.ActionType, limit int) (Decision, error) {
	if limit <= 0 {
		limit = l.defaultLimit
	}

	n, err := l.store.Incr(ctx, counterKey(merchant, actionType), l.window)
	if err != nil {
		l.logger.Warn("rate limiter KV unreachable, failing open", map[string]interface{}{
			"merchant":    merchant,
			"action_type": string(actionType),
			"error":       err.Error(),
		})
		if l.onDegraded != nil {
			l.onDegraded(ctx, merchant, actionType, err)
		}
		return Decision{Allowed: true, Current: 0, Limit: limit}, nil
	}

	if int(n) > limit {
		return Decision{Allowed: false, Current: n, Limit: limit}, nil
	}
	return Decision{Allowed: true, Current: n, Limit: limit}, nil
}

// FlagExcessive marks (merchant, actionType) for operator review. The flag
// is preserved for the Limiter's configured flagDuration regardless of the
// counting window, per spec.md §4.5.
func (l *Limiter) FlagExcessive(ctx context.Context, merchant string, actionType domain.ActionType) error {
	return l.store.Set(ctx, flagKey(merchant, actionType), "1", l.flagDuration)
}

// IsFlagged reports whether (merchant, actionType) currently carries the
// excessive-use flag.
func (l *Limiter) IsFlagged(ctx context.Context, merchant string, actionType domain.ActionType) bool {
	_, err := l.store.Get(ctx, flagKey(merchant, actionType))
	return err == nil
}
