package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/approval"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/audit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/signalbus"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *signalbus.MemoryBus, store.Store, *approval.Coordinator) {
	t.Helper()
	bus := signalbus.NewMemoryBus()
	st := store.NewMemory()
	ap := approval.New()
	au := audit.New(st)
	srv := New(bus, st, ap, au, logging.NoOp{})
	ts := httptest.NewServer(srv.Handler("test-service"))
	t.Cleanup(ts.Close)
	return ts, bus, st, ap
}

func TestHandleSubmitSignal_QueuesOnBus(t *testing.T) {
	ts, bus, _, _ := newTestServer(t)

	body := `{"id":"sig-1","merchant_key":"m1","source":"checkout_error","error_message":"timeout"}`
	resp, err := http.Post(ts.URL+"/v1/signals", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, bus.Len())
}

func TestHandleSubmitSignal_RejectsMissingMerchantKey(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/signals", "application/json", strings.NewReader(`{"id":"sig-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleDecide_RecordsVerdictForPendingAction(t *testing.T) {
	ts, _, _, ap := newTestServer(t)
	ap.Register("issue-1", "action-1", domain.ActionConfigRollback, domain.RiskHigh)

	body := `{"action_id":"action-1","verdict":"approve","operator":"op_1"}`
	resp, err := http.Post(ts.URL+"/v1/approvals/decide", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, ap.IsPending("action-1"))
}

func TestHandleDecide_RejectsUnknownAction(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	body := `{"action_id":"missing","verdict":"approve","operator":"op_1"}`
	resp, err := http.Post(ts.URL+"/v1/approvals/decide", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleListPendingApprovals_FiltersByRiskLevel(t *testing.T) {
	ts, _, _, ap := newTestServer(t)
	ap.Register("issue-1", "action-1", domain.ActionConfigRollback, domain.RiskHigh)
	ap.Register("issue-2", "action-2", domain.ActionSupportGuidance, domain.RiskLow)

	resp, err := http.Get(ts.URL + "/v1/approvals/pending?risk_level=high")
	require.NoError(t, err)
	defer resp.Body.Close()

	var pending []approval.Pending
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Len(t, pending, 1)
	assert.Equal(t, "action-1", pending[0].ActionID)
}

func TestHandleGetIssue_ReturnsStoredIssue(t *testing.T) {
	ts, _, st, _ := newTestServer(t)
	require.NoError(t, st.SaveIssue(context.Background(), &domain.Issue{ID: "issue-9", MerchantKey: "m9", Stage: domain.StageAnalyze}))

	resp, err := http.Get(ts.URL + "/v1/issues/issue-9")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.Issue
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "issue-9", got.ID)
}

func TestHandleGetIssue_NotFoundIsMappedToState409(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/issues/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandleListIssues_FiltersByStage(t *testing.T) {
	ts, _, st, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.SaveIssue(ctx, &domain.Issue{ID: "i1", MerchantKey: "m1", Stage: domain.StageComplete}))
	require.NoError(t, st.SaveIssue(ctx, &domain.Issue{ID: "i2", MerchantKey: "m1", Stage: domain.StageAnalyze}))

	resp, err := http.Get(ts.URL + "/v1/issues?stage=analyze")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got []domain.Issue
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "i2", got[0].ID)
}

func TestHandleVerifyChain_OKForIntactChain(t *testing.T) {
	ts, _, st, _ := newTestServer(t)
	au := audit.New(st)
	_, err := au.Append(context.Background(), "issue-7", "issue_resolved", "system", nil, nil, nil)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/v1/audit/verify?issue_id=issue-7")
	require.NoError(t, err)
	defer resp.Body.Close()

	var result audit.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, result.OK)
}

func TestHandleVerifyChain_RequiresIssueID(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/v1/audit/verify")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
