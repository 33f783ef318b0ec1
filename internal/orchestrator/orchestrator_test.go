package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/analyzer"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/approval"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/audit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/breaker"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/executor"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/fingerprint"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/issue"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/kv"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/ratelimit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/signalbus"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

func newTestOrchestrator(t *testing.T, resp analyzer.Response) (*Orchestrator, *signalbus.MemoryBus, *executor.Fake, store.Store, *approval.Coordinator) {
	t.Helper()
	s := store.NewMemory()
	bus := signalbus.NewMemoryBus()
	fp := fingerprint.New(time.Minute, nil)
	an := analyzer.NewFake(resp)
	dispatch := executor.NewFake(executor.DispatchResult{Success: true, Output: map[string]interface{}{"ok": true}})
	b := breaker.New(breaker.Config{Name: executor.DependencyName, FailureThreshold: 5, RecoveryTimeout: time.Minute})
	limiter := ratelimit.New(kv.NewMemory(), time.Minute, 10, time.Hour)
	ex := executor.New(dispatch, b, limiter)
	ap := approval.New()
	au := audit.New(s)
	machine := issue.New(s, fp, an, ex, ap, au)

	o := New(bus, s, machine, ap, WithPoolSize(2), WithBatchMax(10), WithDrainWindow(time.Second))
	return o, bus, dispatch, s, ap
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, cond(), "condition not met before timeout")
}

func TestOrchestrator_LowRiskSignalResolvesAutomatically(t *testing.T) {
	o, bus, dispatch, st, _ := newTestOrchestrator(t, analyzer.Response{
		Category:   domain.CategoryConfigError,
		Confidence: 0.9,
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionSupportGuidance, Confidence: 0.9, Rationale: "known fix"},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))
	defer o.Stop()

	bus.Publish(context.Background(), domain.Signal{
		ID: "sig-1", Source: domain.SourceCheckoutError, MerchantKey: "merchant-a",
		ErrorMessage: "timeout 123", ErrorCode: "GATEWAY_TIMEOUT", ReceivedAt: time.Now(),
	})

	waitFor(t, time.Second, func() bool { return len(dispatch.Calls) == 1 })

	// LoadIssueByMerchant only returns open issues, so read the finished
	// one back through ListIssues once it has reached complete.
	filter := store.IssueFilter{MerchantKey: "merchant-a", Stage: domain.StageComplete}
	waitFor(t, time.Second, func() bool {
		issues, err := st.ListIssues(context.Background(), filter)
		return err == nil && len(issues) == 1
	})
	issues, err := st.ListIssues(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	iss := issues[0]
	assert.Equal(t, domain.StageComplete, iss.Stage)
	assert.Equal(t, domain.ResolutionResolved, iss.ResolutionKind)
}

func TestOrchestrator_HighRiskWaitsThenAdvancesOnApproval(t *testing.T) {
	o, bus, dispatch, st, approvals := newTestOrchestrator(t, analyzer.Response{
		Category:   domain.CategoryMigrationMisstep,
		Confidence: 0.95,
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionConfigRollback, Confidence: 0.95, Rationale: "rollback schema"},
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))
	defer o.Stop()

	bus.Publish(context.Background(), domain.Signal{
		ID: "sig-2", Source: domain.SourceCheckoutError, MerchantKey: "merchant-b",
		ErrorMessage: "schema mismatch 42", ErrorCode: "SCHEMA_ERR", ReceivedAt: time.Now(),
	})

	var pendingActionID string
	waitFor(t, time.Second, func() bool {
		pending := approvals.Pending()
		if len(pending) == 0 {
			return false
		}
		pendingActionID = pending[0].ActionID
		return true
	})

	_, err := approvals.Decide(pendingActionID, "op_1", approval.VerdictApprove, "")
	require.NoError(t, err)

	waitFor(t, time.Second, func() bool { return len(dispatch.Calls) == 1 })

	filter := store.IssueFilter{MerchantKey: "merchant-b", Stage: domain.StageComplete}
	waitFor(t, time.Second, func() bool {
		issues, err := st.ListIssues(context.Background(), filter)
		return err == nil && len(issues) == 1
	})
	issues, err := st.ListIssues(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	iss := issues[0]
	assert.Equal(t, domain.StageComplete, iss.Stage)
	assert.Equal(t, domain.ResolutionResolved, iss.ResolutionKind)
}

func TestOrchestrator_ResumeReloadsActiveIssuesFromStore(t *testing.T) {
	s := store.NewMemory()
	fp := fingerprint.New(time.Minute, nil)
	an := analyzer.NewFake(analyzer.Response{})
	dispatch := executor.NewFake(executor.DispatchResult{Success: true})
	b := breaker.New(breaker.Config{Name: executor.DependencyName, FailureThreshold: 5, RecoveryTimeout: time.Minute})
	limiter := ratelimit.New(kv.NewMemory(), time.Minute, 10, time.Hour)
	ex := executor.New(dispatch, b, limiter)
	ap := approval.New()
	au := audit.New(s)
	machine := issue.New(s, fp, an, ex, ap, au)

	existing := &domain.Issue{ID: "issue-resume", MerchantKey: "merchant-c", Stage: domain.StageAnalyze, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	require.NoError(t, s.SaveIssue(context.Background(), existing))

	bus := signalbus.NewMemoryBus()
	o := New(bus, s, machine, ap, WithPoolSize(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, o.Start(ctx))
	defer o.Stop()

	sh := o.shards[shardIndex("merchant-c", len(o.shards))]
	waitFor(t, time.Second, func() bool {
		_, ok := sh.items["merchant-c"]
		return ok
	})
}
