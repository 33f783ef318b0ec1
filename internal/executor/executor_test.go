package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/breaker"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/kv"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/ratelimit"
)

func newTestExecutor(dispatcher Dispatcher, limit int) *Executor {
	b := breaker.New(breaker.Config{Name: DependencyName, FailureThreshold: 2, RecoveryTimeout: time.Minute})
	limiter := ratelimit.New(kv.NewMemory(), time.Minute, limit, time.Hour)
	return New(dispatcher, b, limiter)
}

func TestExecute_Success(t *testing.T) {
	fake := NewFake(DispatchResult{Success: true})
	e := newTestExecutor(fake, 10)

	result, err := e.Execute(context.Background(), domain.Action{IssueID: "iss-1", MerchantKey: "merchant-1", ActionType: domain.ActionConfigRollback})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, fake.Calls, 1)
}

func TestExecute_RateLimitedNeverCallsDispatcher(t *testing.T) {
	fake := NewFake(DispatchResult{Success: true})
	e := newTestExecutor(fake, 1)
	ctx := context.Background()
	action := domain.Action{IssueID: "iss-1", MerchantKey: "merchant-1", ActionType: domain.ActionConfigRollback}

	_, err := e.Execute(ctx, action)
	require.NoError(t, err)

	_, err = e.Execute(ctx, action)
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, domain.KindRateLimited, kind)
	assert.Len(t, fake.Calls, 1)
}

func TestExecute_DispatchFailureIsDependencyError(t *testing.T) {
	fake := &Fake{Err: errors.New("downstream unavailable")}
	e := newTestExecutor(fake, 10)

	_, err := e.Execute(context.Background(), domain.Action{IssueID: "iss-1", MerchantKey: "merchant-1", ActionType: domain.ActionConfigRollback})

	require.Error(t, err)
	assert.True(t, domain.IsDependencyError(err))
}

func TestExecute_OpensBreakerAfterConsecutiveFailures(t *testing.T) {
	fake := &Fake{Err: errors.New("boom")}
	e := newTestExecutor(fake, 100)
	ctx := context.Background()
	action := domain.Action{IssueID: "iss-1", MerchantKey: "merchant-1", ActionType: domain.ActionConfigRollback}

	_, _ = e.Execute(ctx, action)
	_, _ = e.Execute(ctx, action)
	assert.Equal(t, breaker.Open, e.breaker.State())

	_, err := e.Execute(ctx, action)
	require.Error(t, err)
	assert.True(t, domain.IsDependencyError(err))
	assert.Len(t, fake.Calls, 2, "third call should be rejected by the open breaker, not reach the dispatcher")
}

func TestCaptureRollback_SnapshotsParameters(t *testing.T) {
	action := domain.Action{Parameters: map[string]interface{}{"config_key": "checkout.timeout"}}
	snapshot := CaptureRollback(action)
	assert.Equal(t, "checkout.timeout", snapshot["config_key"])
	assert.Contains(t, snapshot, "captured_at")
}
