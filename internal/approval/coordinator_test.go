package approval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

func TestRegisterAndPending(t *testing.T) {
	c := New()
	c.Register("iss-1", "act-1", domain.ActionTemporaryMitigation, domain.RiskHigh)

	pending := c.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "iss-1", pending[0].IssueID)
	assert.True(t, c.IsPending("act-1"))
}

func TestDecide_RemovesFromPendingAndNotifiesListeners(t *testing.T) {
	c := New()
	c.Register("iss-1", "act-1", domain.ActionTemporaryMitigation, domain.RiskHigh)

	var received []Decision
	c.Subscribe(func(d Decision) { received = append(received, d) })

	decision, err := c.Decide("act-1", "op_42", VerdictApprove, "")
	require.NoError(t, err)
	assert.Equal(t, VerdictApprove, decision.Verdict)
	assert.Equal(t, "op_42", decision.Operator)

	assert.False(t, c.IsPending("act-1"))
	require.Len(t, received, 1)
	assert.Equal(t, "act-1", received[0].ActionID)
}

func TestDecide_UnknownActionReturnsApprovalNotPending(t *testing.T) {
	c := New()
	_, err := c.Decide("missing", "op_42", VerdictApprove, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrApprovalNotPending)
	assert.True(t, domain.IsStateError(err))
}

func TestDecide_Reject(t *testing.T) {
	c := New()
	c.Register("iss-1", "act-1", domain.ActionTemporaryMitigation, domain.RiskHigh)

	decision, err := c.Decide("act-1", "op_42", VerdictReject, "too risky")
	require.NoError(t, err)
	assert.Equal(t, VerdictReject, decision.Verdict)
	assert.Equal(t, "too risky", decision.Feedback)
}
