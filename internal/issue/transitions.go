// Package issue implements the nine-stage remediation pipeline spec.md §4.7
// defines: a fixed transition table plus one handler per non-blocking stage.
// Each handler mutates the issue and performs its store, audit and approval
// writes directly; handlers return no list of side-effect intents, and those
// writes are not wrapped in one transaction with the stage change (only the
// checkpoint and issue row are saved together). Grounded on the teacher's orchestration/workflow_state.go /
// workflow_dag.go / workflow_engine.go state-plus-transition-table idiom,
// narrowed from gomind's general workflow DAG down to this domain's single
// fixed pipeline.
package issue

import (
	"fmt"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

// allowedTransitions is the complete table spec.md §4.7 specifies. Every
// stage not listed as a source has no outgoing transition (complete).
var allowedTransitions = map[domain.Stage][]domain.Stage{
	domain.StageObserve:        {domain.StageDetectPatterns},
	domain.StageDetectPatterns: {domain.StageAnalyze},
	domain.StageAnalyze:        {domain.StageDecide},
	domain.StageDecide:         {domain.StageAssessRisk},
	domain.StageAssessRisk:     {domain.StageWaitApproval, domain.StageExecute},
	domain.StageWaitApproval:   {domain.StageExecute, domain.StageComplete},
	domain.StageExecute:        {domain.StageRecord},
	domain.StageRecord:         {domain.StageComplete},
	domain.StageComplete:       {},
}

// ValidateTransition rejects any (from, to) pair not present in the table,
// wrapped as a StateError per spec.md §7.
func ValidateTransition(from, to domain.Stage) error {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return nil
		}
	}
	return domain.Classify("issue.transition", domain.KindState,
		fmt.Errorf("%s -> %s: %w", from, to, domain.ErrIllegalTransition))
}

// Blocking reports whether stage is a suspension point the orchestrator must
// stop advancing at until something external wakes the issue (spec.md §4.8
// "until it yields"): wait_approval waits on a human verdict, complete has
// no further work.
func Blocking(stage domain.Stage) bool {
	return stage == domain.StageWaitApproval || stage == domain.StageComplete
}
