// Package explain aggregates an issue's per-stage reasoning steps into one
// content-addressable explanation record (spec.md §4.12). Grounded on the
// teacher's orchestration/synthesizer.go, which folds a list of per-agent
// StepResults into one coherent artifact (grouping successes from
// failures, walking the step list once); explain.Build does the same fold
// over domain.ReasoningStep but keeps the result structured rather than
// prose, since the audit trail needs a reconstructable record, not a
// summary for a human to read in isolation.
package explain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

// Explanation is the aggregated, content-addressable record of why an
// issue reached its final resolution: every stage's reasoning step, a
// human-readable rollup, and a hash over the canonical encoding of both so
// the record can be verified against the audit entry it is attached to.
type Explanation struct {
	IssueID     string                 `json:"issue_id"`
	Steps       []domain.ReasoningStep `json:"steps"`
	Summary     string                 `json:"summary"`
	Uncertain   bool                   `json:"uncertain"`
	ContentHash string                 `json:"content_hash"`
}

// Build folds iss.ReasoningChain into an Explanation. It is safe to call at
// any point in an issue's lifecycle, not only at handleRecord — a partial
// chain (e.g. for a crash-recovery diagnostic) still produces a valid,
// hashed explanation over whatever steps exist so far.
func Build(iss *domain.Issue) Explanation {
	e := Explanation{
		IssueID: iss.ID,
		Steps:   iss.ReasoningChain,
	}
	e.Summary, e.Uncertain = rollup(iss.ReasoningChain)
	e.ContentHash = contentHash(e)
	return e
}

// rollup walks the reasoning chain once, producing a one-line-per-stage
// summary and flagging the explanation as uncertain the moment any step
// carries an Uncertainty note — mirroring the teacher's synthesizeWithTemplate
// grouping of successful against failed steps, narrowed here to a single
// pass since a reasoning chain has no failure/success split of its own.
func rollup(steps []domain.ReasoningStep) (string, bool) {
	if len(steps) == 0 {
		return "no reasoning recorded", false
	}
	var b strings.Builder
	uncertain := false
	for i, s := range steps {
		if i > 0 {
			b.WriteString(" -> ")
		}
		fmt.Fprintf(&b, "%s(%.2f): %s", s.Stage, s.Confidence, s.Summary)
		if s.Uncertainty != "" {
			uncertain = true
			fmt.Fprintf(&b, " [%s]", s.Uncertainty)
		}
	}
	return b.String(), uncertain
}

// contentHash hashes the canonical encoding of e's steps and summary so two
// explanations built from the same reasoning chain always hash identically,
// regardless of map key ordering inside each step's Data field — the same
// canonicalization discipline audit.Log uses for its entry hashes.
func contentHash(e Explanation) string {
	canon := struct {
		IssueID string                   `json:"issue_id"`
		Steps   []map[string]interface{} `json:"steps"`
		Summary string                   `json:"summary"`
	}{
		IssueID: e.IssueID,
		Summary: e.Summary,
	}
	for _, s := range e.Steps {
		canon.Steps = append(canon.Steps, canonicalStep(s))
	}
	b, _ := json.Marshal(canon)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func canonicalStep(s domain.ReasoningStep) map[string]interface{} {
	m := map[string]interface{}{
		"stage":      string(s.Stage),
		"summary":    s.Summary,
		"confidence": s.Confidence,
	}
	if len(s.EvidenceRefs) > 0 {
		refs := append([]string(nil), s.EvidenceRefs...)
		sort.Strings(refs)
		m["evidence_refs"] = refs
	}
	if s.Uncertainty != "" {
		m["uncertainty"] = s.Uncertainty
	}
	if len(s.Data) > 0 {
		m["data"] = s.Data
	}
	return m
}

// AsMap renders e for embedding as an audit entry's reasoning field, the
// shape audit.Log.Append expects.
func (e Explanation) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"issue_id":     e.IssueID,
		"steps":        e.Steps,
		"summary":      e.Summary,
		"uncertain":    e.Uncertain,
		"content_hash": e.ContentHash,
	}
}
