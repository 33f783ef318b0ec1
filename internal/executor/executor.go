// Package executor implements the action dispatch spec.md §4.11 (execute
// stage) requires: invoke the external action executor with rollback data
// captured, guarded by the rate limiter and the named circuit breaker for
// the "action_executor" dependency. Grounded on the teacher's
// orchestration/executor.go / pkg/orchestration/executor.go SmartExecutor
// idiom (executeStep: check breaker -> invoke -> record -> feed outcome
// back into the breaker), narrowed to spec.md's single Dispatch contract.
package executor

import (
	"context"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/breaker"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/ratelimit"
)

// DependencyName is the breaker registry key for the external executor.
const DependencyName = "action_executor"

// DispatchResult is what invoking an action against its external system
// produced.
type DispatchResult struct {
	Success      bool
	Output       map[string]interface{}
	RollbackData map[string]interface{}
	ErrorMessage string
}

// Dispatcher is the external collaborator boundary for action execution:
// the core never depends on a concrete integration, only this contract.
type Dispatcher interface {
	Dispatch(ctx context.Context, action domain.Action) (DispatchResult, error)
}

// Fake is an in-memory Dispatcher for tests.
type Fake struct {
	Result DispatchResult
	Err    error
	Calls  []domain.Action
}

// NewFake builds a Fake that always returns result (and a nil error).
func NewFake(result DispatchResult) *Fake {
	return &Fake{Result: result}
}

func (f *Fake) Dispatch(_ context.Context, action domain.Action) (DispatchResult, error) {
	f.Calls = append(f.Calls, action)
	if f.Err != nil {
		return DispatchResult{}, f.Err
	}
	return f.Result, nil
}

// Executor wraps a Dispatcher with the rate limiter and circuit breaker the
// execute stage handler needs, per spec.md §4.7's execute contract and
// §4.6/§4.5's wrapping requirement.
type Executor struct {
	dispatcher Dispatcher
	breaker    *breaker.Breaker
	limiter    *ratelimit.Limiter
	rateLimit  int
}

// Option configures an Executor.
type Option func(*Executor)

// WithRateLimit overrides the per-(merchant, action_type) ceiling; 0 uses
// the Limiter's configured default.
func WithRateLimit(limit int) Option {
	return func(e *Executor) { e.rateLimit = limit }
}

// New builds an Executor. breaker and limiter are required collaborators;
// the execute stage handler must never invoke the dispatcher directly.
func New(dispatcher Dispatcher, b *breaker.Breaker, limiter *ratelimit.Limiter, opts ...Option) *Executor {
	e := &Executor{dispatcher: dispatcher, breaker: b, limiter: limiter}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute rate-limits, then circuit-breaks, then dispatches action. A
// rate-limit rejection is reported as domain.KindRateLimited and never
// touches the breaker (it is not a dependency failure). A breaker rejection
// (ErrOpen) and any dispatch error are reported as domain.KindDependency.
func (e *Executor) Execute(ctx context.Context, action domain.Action) (DispatchResult, error) {
	decision, err := e.limiter.CheckAndReserve(ctx, action.MerchantKey, action.ActionType, e.rateLimit)
	if err != nil {
		return DispatchResult{}, domain.Classify("executor.execute", domain.KindDependency, err)
	}
	if !decision.Allowed {
		_ = e.limiter.FlagExcessive(ctx, action.MerchantKey, action.ActionType)
		return DispatchResult{}, domain.Classify("executor.execute", domain.KindRateLimited, domain.ErrRateLimited)
	}

	var result DispatchResult
	callErr := e.breaker.Call(ctx, func(ctx context.Context) error {
		r, dispatchErr := e.dispatcher.Dispatch(ctx, action)
		result = r
		return dispatchErr
	})
	if callErr != nil {
		return DispatchResult{}, domain.Classify("executor.execute", domain.KindDependency, callErr)
	}
	return result, nil
}

// CaptureRollback snapshots whatever data the action carries forward as its
// rollback state ahead of dispatch, per spec.md §4.9's two-phase record:
// persist in_progress + rollback data before the external call.
func CaptureRollback(action domain.Action) map[string]interface{} {
	snapshot := make(map[string]interface{}, len(action.Parameters))
	for k, v := range action.Parameters {
		snapshot[k] = v
	}
	snapshot["captured_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	return snapshot
}
