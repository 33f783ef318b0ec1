// Package analyzer defines the narrow root-cause analysis contract the
// analyze stage handler depends on (spec.md §4.7, §4.1 "analyze"), plus an
// in-memory fake for tests. Grounded on the teacher's
// orchestration/error_analyzer.go: a fast heuristic layer ahead of the model
// call, and ai/interfaces.go's AIClient narrow-interface idiom — the core
// only ever depends on Analyzer, never a concrete LLM client.
package analyzer

import (
	"context"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

// Request carries everything the external analyzer needs to hypothesize a
// root cause for an issue's accumulated signals and patterns.
type Request struct {
	IssueID     string
	MerchantKey string
	Signals     []domain.Signal
	Patterns    []domain.Pattern
}

// RecommendedAction is one of the analyzer's proposed remediations, ranked
// by the analyzer itself (first is its top recommendation).
type RecommendedAction struct {
	ActionType domain.ActionType
	Confidence float64
	Rationale  string
}

// Response is the root-cause hypothesis spec.md §4.7's analyze handler
// contract names: category, confidence, reasoning, evidence, alternatives,
// recommended actions.
type Response struct {
	Category            domain.RootCauseCategory
	Confidence          float64
	Reasoning           string
	EvidenceRefs        []string
	Alternatives        []domain.RootCauseCategory
	RecommendedActions  []RecommendedAction
}

// Analyzer is the external collaborator boundary spec.md §1 describes: the
// core never depends on a concrete LLM client, only this contract.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (Response, error)
}

// Fake is an in-memory Analyzer for tests: it returns a canned Response (or
// error) regardless of the request, recording every call it saw.
type Fake struct {
	Response Response
	Err      error
	Calls    []Request
}

// NewFake builds a Fake that always returns resp (and a nil error).
func NewFake(resp Response) *Fake {
	return &Fake{Response: resp}
}

func (f *Fake) Analyze(_ context.Context, req Request) (Response, error) {
	f.Calls = append(f.Calls, req)
	if f.Err != nil {
		return Response{}, f.Err
	}
	return f.Response, nil
}
