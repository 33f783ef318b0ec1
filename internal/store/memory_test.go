package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

func TestMemory_SaveLoadIssue(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	issue := &domain.Issue{ID: "iss-1", MerchantKey: "merchant-1", Stage: domain.StageObserve, CreatedAt: time.Now(), UpdatedAt: time.Now()}

	require.NoError(t, s.SaveIssue(ctx, issue))

	got, err := s.LoadIssue(ctx, "iss-1")
	require.NoError(t, err)
	assert.Equal(t, issue.MerchantKey, got.MerchantKey)

	// Mutating the original after save must not affect the stored copy.
	issue.Stage = domain.StageComplete
	got2, err := s.LoadIssue(ctx, "iss-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageObserve, got2.Stage)
}

func TestMemory_LoadIssue_NotFound(t *testing.T) {
	s := NewMemory()
	_, err := s.LoadIssue(context.Background(), "missing")
	assert.True(t, domain.IsStateError(err))
}

func TestMemory_LoadActiveIssues_ExcludesComplete(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "a", Stage: domain.StageObserve, CreatedAt: now}))
	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "b", Stage: domain.StageComplete, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "c", Stage: domain.StageDecide, CreatedAt: now.Add(2 * time.Second)}))

	active, err := s.LoadActiveIssues(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)
}

func TestMemory_LoadIssueByMerchant_MostRecentOpenOnly(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "old", MerchantKey: "m1", Stage: domain.StageComplete, CreatedAt: now}))
	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "new", MerchantKey: "m1", Stage: domain.StageObserve, CreatedAt: now.Add(time.Minute)}))

	got, err := s.LoadIssueByMerchant(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)
}

func TestMemory_AppendAudit_PreservesOrder(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendAudit(ctx, &domain.AuditEntry{
			ID:      string(rune('a' + i)),
			IssueID: "iss-1",
			Actor:   "orchestrator",
		}))
	}

	trail, err := s.LoadAuditTrail(ctx, "iss-1")
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, "a", trail[0].ID)
	assert.Equal(t, "c", trail[2].ID)
}

func TestMemory_SaveCheckpoint_RejectsUnknownSchemaVersion(t *testing.T) {
	s := NewMemory()
	err := s.SaveCheckpoint(context.Background(), &domain.Checkpoint{
		IssueID: "iss-1",
		State:   domain.CheckpointState{SchemaVersion: 99},
	}, &domain.Issue{ID: "iss-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownCheckpointVersion)
	assert.True(t, domain.IsIntegrityError(err))
}

func TestMemory_SaveCheckpoint_DefaultsSchemaVersion(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	cp := &domain.Checkpoint{IssueID: "iss-1", State: domain.CheckpointState{}}
	issue := &domain.Issue{ID: "iss-1", Stage: domain.StageAnalyze}

	require.NoError(t, s.SaveCheckpoint(ctx, cp, issue))

	got, err := s.LoadCheckpoint(ctx, "iss-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CurrentCheckpointSchemaVersion, got.State.SchemaVersion)

	gotIssue, err := s.LoadIssue(ctx, "iss-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StageAnalyze, gotIssue.Stage, "saving a checkpoint advances the issue row in the same step")
}

func TestMemory_PruneSignalsOlderThan(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveSignal(ctx, &domain.Signal{ID: "old", ReceivedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, s.SaveSignal(ctx, &domain.Signal{ID: "new", ReceivedAt: now}))

	n, err := s.PruneSignalsOlderThan(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.LoadSignal(ctx, "old")
	assert.Error(t, err)
	_, err = s.LoadSignal(ctx, "new")
	assert.NoError(t, err)
}

func TestMemory_ListIssuesFiltersByStageAndMerchant(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "i1", MerchantKey: "m1", Stage: domain.StageComplete, ResolutionKind: domain.ResolutionResolved, CreatedAt: now}))
	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "i2", MerchantKey: "m2", Stage: domain.StageAnalyze, CreatedAt: now.Add(time.Second)}))
	require.NoError(t, s.SaveIssue(ctx, &domain.Issue{ID: "i3", MerchantKey: "m1", Stage: domain.StageAnalyze, CreatedAt: now.Add(2 * time.Second)}))

	byStage, err := s.ListIssues(ctx, IssueFilter{Stage: domain.StageAnalyze})
	require.NoError(t, err)
	assert.Len(t, byStage, 2)

	byMerchant, err := s.ListIssues(ctx, IssueFilter{MerchantKey: "m1"})
	require.NoError(t, err)
	assert.Len(t, byMerchant, 2)

	byResolution, err := s.ListIssues(ctx, IssueFilter{ResolutionKind: domain.ResolutionResolved})
	require.NoError(t, err)
	require.Len(t, byResolution, 1)
	assert.Equal(t, "i1", byResolution[0].ID)

	limited, err := s.ListIssues(ctx, IssueFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "i3", limited[0].ID) // newest first
}

func TestMemory_ForceDeleteIssueAuditTrail(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	require.NoError(t, s.AppendAudit(ctx, &domain.AuditEntry{ID: "a", IssueID: "iss-1"}))

	require.NoError(t, s.ForceDeleteIssueAuditTrail(ctx, "iss-1", "operator-1", "gdpr erasure"))

	trail, err := s.LoadAuditTrail(ctx, "iss-1")
	require.NoError(t, err)
	assert.Empty(t, trail)
}
