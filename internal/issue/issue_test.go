package issue

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
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/kv"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/ratelimit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

type harness struct {
	machine   *Machine
	store     store.Store
	dispatch  *executor.Fake
	approvals *approval.Coordinator
	seq       int
}

func newHarness(t *testing.T, resp analyzer.Response, rateLimit int) *harness {
	t.Helper()
	s := store.NewMemory()
	fp := fingerprint.New(time.Minute, nil)
	an := analyzer.NewFake(resp)
	dispatch := executor.NewFake(executor.DispatchResult{Success: true, Output: map[string]interface{}{"ok": true}})
	b := breaker.New(breaker.Config{Name: "test", FailureThreshold: 5, RecoveryTimeout: time.Minute})
	limiter := ratelimit.New(kv.NewMemory(), time.Minute, rateLimit, time.Hour)
	ex := executor.New(dispatch, b, limiter)
	ap := approval.New()
	au := audit.New(s)

	h := &harness{store: s, dispatch: dispatch, approvals: ap}
	h.machine = New(s, fp, an, ex, ap, au, WithIDGenerator(h.nextID))
	return h
}

func (h *harness) nextID() string {
	h.seq++
	return "id-" + string(rune('0'+h.seq))
}

func newIssueWithSignal(t *testing.T, h *harness, merchant string) *domain.Issue {
	t.Helper()
	iss := &domain.Issue{
		ID:          "issue-" + merchant,
		MerchantKey: merchant,
		Stage:       domain.StageObserve,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	require.NoError(t, h.store.SaveIssue(context.Background(), iss))

	signal := &domain.Signal{
		ID:           "sig-" + merchant,
		Source:       domain.SourceCheckoutError,
		MerchantKey:  merchant,
		Severity:     domain.SeverityHigh,
		ErrorMessage: "timeout after 30000ms calling payments-gateway-7f3a",
		ErrorCode:    "GATEWAY_TIMEOUT",
		ReceivedAt:   time.Now(),
	}
	require.NoError(t, h.machine.AppendSignal(context.Background(), iss, signal))
	return iss
}

func TestValidateTransition_RejectsSkippedStage(t *testing.T) {
	err := ValidateTransition(domain.StageObserve, domain.StageDecide)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.True(t, domain.IsStateError(err))
}

func TestValidateTransition_AllowsEveryTableEntry(t *testing.T) {
	pairs := [][2]domain.Stage{
		{domain.StageObserve, domain.StageDetectPatterns},
		{domain.StageDetectPatterns, domain.StageAnalyze},
		{domain.StageAnalyze, domain.StageDecide},
		{domain.StageDecide, domain.StageAssessRisk},
		{domain.StageAssessRisk, domain.StageWaitApproval},
		{domain.StageAssessRisk, domain.StageExecute},
		{domain.StageWaitApproval, domain.StageExecute},
		{domain.StageWaitApproval, domain.StageComplete},
		{domain.StageExecute, domain.StageRecord},
		{domain.StageRecord, domain.StageComplete},
	}
	for _, p := range pairs {
		assert.NoError(t, ValidateTransition(p[0], p[1]), "%s -> %s", p[0], p[1])
	}
}

func TestAdvance_LowRiskActionAutoExecutesToComplete(t *testing.T) {
	h := newHarness(t, analyzer.Response{
		Category:   domain.CategoryConfigError,
		Confidence: 0.9,
		Reasoning:  "config drift detected",
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionSupportGuidance, Confidence: 0.9, Rationale: "known fix"},
		},
	}, 10)
	iss := newIssueWithSignal(t, h, "merchant-1")

	err := h.machine.Advance(context.Background(), iss)
	require.NoError(t, err)

	assert.Equal(t, domain.StageComplete, iss.Stage)
	assert.Equal(t, domain.ResolutionResolved, iss.ResolutionKind)
	assert.False(t, iss.RequiresApproval)
	assert.Len(t, h.dispatch.Calls, 1)

	trail, err := h.machine.audit.Trail(context.Background(), iss.ID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.NoError(t, h.machine.audit.VerifyChain(context.Background(), iss.ID))
}

func TestAdvance_HighRiskStopsAtWaitApprovalThenExecutesOnApproval(t *testing.T) {
	h := newHarness(t, analyzer.Response{
		Category:   domain.CategoryMigrationMisstep,
		Confidence: 0.95,
		Reasoning:  "breaking schema change",
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionConfigRollback, Confidence: 0.95, Rationale: "rollback schema"},
		},
	}, 10)
	iss := newIssueWithSignal(t, h, "merchant-2")

	require.NoError(t, h.machine.Advance(context.Background(), iss))
	assert.Equal(t, domain.StageWaitApproval, iss.Stage)
	assert.True(t, iss.RequiresApproval)
	assert.True(t, h.approvals.IsPending(iss.ActionID))
	assert.Empty(t, h.dispatch.Calls)

	_, err := h.approvals.Decide(iss.ActionID, "op_1", approval.VerdictApprove, "")
	require.NoError(t, err)
	require.NoError(t, h.machine.ApplyApprovalDecision(context.Background(), iss, "approve", "op_1", ""))
	require.NoError(t, h.machine.Advance(context.Background(), iss))

	assert.Equal(t, domain.StageComplete, iss.Stage)
	assert.Equal(t, domain.ResolutionResolved, iss.ResolutionKind)
	assert.Len(t, h.dispatch.Calls, 1)
	assert.False(t, h.approvals.IsPending(iss.ActionID))
}

func TestAdvance_RejectedApprovalCompletesWithoutDispatch(t *testing.T) {
	h := newHarness(t, analyzer.Response{
		Category:   domain.CategoryMigrationMisstep,
		Confidence: 0.95,
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionConfigRollback, Confidence: 0.95, Rationale: "rollback schema"},
		},
	}, 10)
	iss := newIssueWithSignal(t, h, "merchant-3")
	require.NoError(t, h.machine.Advance(context.Background(), iss))
	require.Equal(t, domain.StageWaitApproval, iss.Stage)

	require.NoError(t, h.machine.ApplyApprovalDecision(context.Background(), iss, "reject", "op_2", "too risky"))

	assert.Equal(t, domain.StageComplete, iss.Stage)
	assert.Equal(t, domain.ResolutionRejected, iss.ResolutionKind)
	assert.Empty(t, h.dispatch.Calls)

	action, err := h.store.LoadAction(context.Background(), iss.ActionID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionRejected, action.Status)
	assert.NotNil(t, action.Reasoning["operator_feedback"])
}

func TestAdvance_RateLimitedActionRecordsNonFailingOutcome(t *testing.T) {
	h := newHarness(t, analyzer.Response{
		Category:   domain.CategoryConfigError,
		Confidence: 0.9,
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionSupportGuidance, Confidence: 0.9, Rationale: "known fix"},
		},
	}, 0)
	iss := newIssueWithSignal(t, h, "merchant-4")

	err := h.machine.Advance(context.Background(), iss)
	require.NoError(t, err)

	assert.Equal(t, domain.StageComplete, iss.Stage)
	assert.Equal(t, domain.ResolutionRateLimited, iss.ResolutionKind)
	assert.Empty(t, h.dispatch.Calls)
}

func TestAdvance_AnalyzerFailureRecordsUncertaintyAndContinues(t *testing.T) {
	h := newHarness(t, analyzer.Response{}, 10)
	h.machine.analyzer = &analyzer.Fake{Err: assertError{"analyzer down"}}
	iss := newIssueWithSignal(t, h, "merchant-5")

	err := h.machine.Advance(context.Background(), iss)
	require.NoError(t, err)
	// The fallback recommendation is escalate_to_engineering, which is
	// critical risk, so the pipeline continues on to wait_approval.
	assert.Equal(t, domain.StageWaitApproval, iss.Stage)

	var analyzeStep domain.ReasoningStep
	for _, step := range iss.ReasoningChain {
		if step.Stage == domain.StageAnalyze {
			analyzeStep = step
		}
	}
	assert.NotEmpty(t, analyzeStep.Uncertainty)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestAdvance_AbortsAfterMaxConsecutiveFailures(t *testing.T) {
	h := newHarness(t, analyzer.Response{
		Category:   domain.CategoryConfigError,
		Confidence: 0.9,
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionSupportGuidance, Confidence: 0.9, Rationale: "known fix"},
		},
	}, 10)
	h.machine.config.MaxConsecutiveErrors = 2
	iss := newIssueWithSignal(t, h, "merchant-6")
	iss.Stage = domain.StageDetectPatterns
	iss.SignalIDs = nil // trips handleDetectPatterns's no-signals guard every time

	// Advance returns on the first handler failure, so the first call
	// records one failure and the second reaches MaxConsecutiveErrors.
	require.Error(t, h.machine.Advance(context.Background(), iss))
	err := h.machine.Advance(context.Background(), iss)
	require.Error(t, err)
	assert.Equal(t, domain.StageComplete, iss.Stage)
	assert.Equal(t, domain.ResolutionAborted, iss.ResolutionKind)
	assert.Equal(t, 2, iss.ErrorCount)

	cp, err := h.store.LoadCheckpoint(context.Background(), iss.ID)
	require.NoError(t, err, "aborting after repeated failures still leaves a resumable checkpoint")
	assert.Equal(t, domain.StageComplete, cp.Stage)
	assert.Equal(t, 2, cp.ErrorCount)
}

func TestAdvance_WritesCheckpointInStepWithIssueRow(t *testing.T) {
	h := newHarness(t, analyzer.Response{
		Category:   domain.CategoryConfigError,
		Confidence: 0.9,
		RecommendedActions: []analyzer.RecommendedAction{
			{ActionType: domain.ActionSupportGuidance, Confidence: 0.9, Rationale: "known fix"},
		},
	}, 10)
	iss := newIssueWithSignal(t, h, "merchant-7")

	require.NoError(t, h.machine.Advance(context.Background(), iss))

	cp, err := h.store.LoadCheckpoint(context.Background(), iss.ID)
	require.NoError(t, err)
	assert.Equal(t, iss.Stage, cp.Stage, "checkpoint and issue row must never disagree")
	require.NotNil(t, cp.State.RootCause)
	assert.Equal(t, domain.CategoryConfigError, cp.State.RootCause.Category)
	require.NotNil(t, cp.State.SelectedAction)
	assert.Equal(t, iss.ActionID, cp.State.SelectedAction.ID)
	assert.Equal(t, "merchant-7", cp.State.SelectedAction.MerchantKey)

	storedIssue, err := h.store.LoadIssue(context.Background(), iss.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageComplete, storedIssue.Stage)
}
