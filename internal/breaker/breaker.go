// Package breaker implements the three-state circuit breaker spec.md §4.6
// requires: one instance per named external dependency, CLOSED/OPEN/HALF_OPEN,
// with state transitions serialized per breaker and exactly one probe
// in flight during HALF_OPEN. Process-local by design (spec.md §9) — a
// distributed breaker is out of scope; run one per orchestrator instance.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
)

// State is one of the three circuit breaker states.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrOpen is returned by Call when the breaker is OPEN and rejects fast.
var ErrOpen = errOpen{}

type errOpen struct{}

func (errOpen) Error() string { return "circuit breaker open" }

// Config parameterizes one breaker per spec.md §4.6: failure threshold
// (N consecutive failures), recovery timeout, and an exception filter
// deciding which errors count toward the threshold.
type Config struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	// Classify reports whether err should count as a circuit-breaker
	// failure. Nil means every non-nil error counts.
	Classify func(error) bool
	Logger   logging.Logger
}

// Breaker guards a single named dependency. All exported methods are safe
// for concurrent use; state transitions are serialized by mu.
type Breaker struct {
	mu sync.Mutex

	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	classify         func(error) bool
	logger           logging.Logger

	state            State
	consecutiveFails int
	openedAt         time.Time
	probeInFlight    bool
}

// New constructs a Breaker in the CLOSED state.
func New(cfg Config) *Breaker {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOp{}
	}
	classify := cfg.Classify
	if classify == nil {
		classify = func(err error) bool { return err != nil }
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	timeout := cfg.RecoveryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Breaker{
		name:             cfg.Name,
		failureThreshold: threshold,
		recoveryTimeout:  timeout,
		classify:         classify,
		logger:           logger,
		state:            Closed,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state without mutating anything. In OPEN state,
// this does NOT transition to HALF_OPEN on its own — that only happens via
// Allow/Call, which is what a caller actually intending to probe should use.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed right now, and reserves the
// single HALF_OPEN probe slot if this call is the one allowed to probe.
// Callers that get true and are in HALF_OPEN MUST report the outcome via
// RecordSuccess/RecordFailure to release the probe slot.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowLocked()
}

func (b *Breaker) allowLocked() bool {
	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.recoveryTimeout {
			return false
		}
		b.transitionLocked(HalfOpen)
		b.probeInFlight = true
		return true
	case HalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return false
	}
}

// Call runs fn only if Allow() permits it, and feeds the outcome back into
// the breaker's state machine. Returns ErrOpen without calling fn when the
// breaker rejects.
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	if b.classify(err) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// RecordSuccess reports a successful call. In CLOSED it resets the failure
// counter; in HALF_OPEN it closes the breaker and clears the probe slot.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probeInFlight = false
		b.consecutiveFails = 0
		b.transitionLocked(Closed)
	case Closed:
		b.consecutiveFails = 0
	}
}

// RecordFailure reports a failed call. In CLOSED it increments the
// consecutive-failure counter and opens once the threshold is reached; in
// HALF_OPEN a single failed probe reopens the breaker immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case HalfOpen:
		b.probeInFlight = false
		b.transitionLocked(Open)
	case Closed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.failureThreshold {
			b.transitionLocked(Open)
		}
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if to == Open {
		b.openedAt = time.Now()
	}
	b.logger.Info("circuit breaker state change", map[string]interface{}{
		"dependency": b.name,
		"from":       from.String(),
		"to":         to.String(),
	})
}

// Registry holds one Breaker per named dependency, created lazily on first
// use with shared default parameters.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults Config
}

// NewRegistry builds a Registry that lazily constructs breakers from
// defaults, overriding only the Name field per dependency.
func NewRegistry(defaults Config) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), defaults: defaults}
}

// Get returns the Breaker for name, constructing it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	cfg := r.defaults
	cfg.Name = name
	b := New(cfg)
	r.breakers[name] = b
	return b
}
