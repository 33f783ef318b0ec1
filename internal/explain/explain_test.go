package explain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

func TestBuild_EmptyChainYieldsStablePlaceholder(t *testing.T) {
	e := Build(&domain.Issue{ID: "issue-1"})
	assert.Equal(t, "no reasoning recorded", e.Summary)
	assert.False(t, e.Uncertain)
	assert.NotEmpty(t, e.ContentHash)
}

func TestBuild_FlagsUncertainWhenAnyStepCarriesUncertainty(t *testing.T) {
	iss := &domain.Issue{
		ID: "issue-2",
		ReasoningChain: []domain.ReasoningStep{
			{Stage: domain.StageObserve, Summary: "signal appended", Confidence: 1},
			{Stage: domain.StageAnalyze, Summary: "analyzer unavailable", Confidence: 0, Uncertainty: "dependency_error"},
		},
	}
	e := Build(iss)
	assert.True(t, e.Uncertain)
	assert.Contains(t, e.Summary, "dependency_error")
}

func TestBuild_ContentHashIsDeterministicAndIgnoresEvidenceRefOrder(t *testing.T) {
	step := func(order []string) domain.ReasoningStep {
		data := map[string]interface{}{}
		for i, k := range order {
			data[k] = i
		}
		return domain.ReasoningStep{Stage: domain.StageDecide, Summary: "chose action", Confidence: 0.8, Data: data, EvidenceRefs: []string{"b", "a"}}
	}
	issA := &domain.Issue{ID: "issue-3", ReasoningChain: []domain.ReasoningStep{step([]string{"x", "y"})}}
	issB := &domain.Issue{ID: "issue-3", ReasoningChain: []domain.ReasoningStep{step([]string{"x", "y"})}}

	a := Build(issA)
	b := Build(issB)
	require.Equal(t, a.ContentHash, b.ContentHash)

	// Evidence ref ordering in the source step must not change the hash.
	issB.ReasoningChain[0].EvidenceRefs = []string{"a", "b"}
	c := Build(issB)
	assert.Equal(t, a.ContentHash, c.ContentHash)
}

func TestBuild_ContentHashChangesWhenSummaryDiffers(t *testing.T) {
	a := Build(&domain.Issue{ID: "issue-4", ReasoningChain: []domain.ReasoningStep{{Stage: domain.StageObserve, Summary: "one"}}})
	b := Build(&domain.Issue{ID: "issue-4", ReasoningChain: []domain.ReasoningStep{{Stage: domain.StageObserve, Summary: "two"}}})
	assert.NotEqual(t, a.ContentHash, b.ContentHash)
}

func TestAsMap_CarriesContentHashForAuditEmbedding(t *testing.T) {
	e := Build(&domain.Issue{ID: "issue-5", ReasoningChain: []domain.ReasoningStep{{Stage: domain.StageRecord, Summary: "done", Confidence: 1}}})
	m := e.AsMap()
	assert.Equal(t, e.ContentHash, m["content_hash"])
	assert.Equal(t, "issue-5", m["issue_id"])
}
