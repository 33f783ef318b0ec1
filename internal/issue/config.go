package issue

import "github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"

// Config holds the policy knobs the decide/assess_risk handlers consult.
// Values mirror spec.md §4.7's handler contracts ("prefer lowest-risk action
// meeting confidence threshold", "risk high/critical or confidence below
// configured threshold routes to wait_approval").
type Config struct {
	// ConfidenceThreshold is the minimum analyzer confidence a recommended
	// action must meet to be selected outright; below it, decide escalates.
	ConfidenceThreshold float64
	// ApprovalConfidenceThreshold is the minimum confidence assess_risk
	// requires to skip human approval, independent of the chosen risk level.
	ApprovalConfidenceThreshold float64
	// MaxConsecutiveErrors aborts an issue after this many handler failures
	// in a row (spec.md §4.8).
	MaxConsecutiveErrors int
	// PatternPromotionThreshold is the fingerprint cache hit count at which
	// a recurring signal is promoted onto an existing pattern instead of
	// seeding a new one (spec.md §4.4).
	PatternPromotionThreshold int
}

// DefaultConfig returns the policy defaults used when none are supplied.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:         0.6,
		ApprovalConfidenceThreshold: 0.75,
		MaxConsecutiveErrors:        3,
		PatternPromotionThreshold:   2,
	}
}

// actionRiskTable is the static risk classification for each action type,
// consulted by assess_risk. escalate_to_engineering is always critical: it
// is itself an admission the system could not find a safe automated action.
var actionRiskTable = map[domain.ActionType]domain.RiskLevel{
	domain.ActionSupportGuidance:       domain.RiskLow,
	domain.ActionTemporaryMitigation:   domain.RiskMedium,
	domain.ActionConfigRollback:        domain.RiskHigh,
	domain.ActionEscalateToEngineering: domain.RiskCritical,
}

// classifyRisk returns the static risk for actionType, defaulting to
// critical for any action type the table does not recognize (spec.md §7's
// fail-safe posture: an unknown action is never assumed safe).
func classifyRisk(actionType domain.ActionType) domain.RiskLevel {
	if risk, ok := actionRiskTable[actionType]; ok {
		return risk
	}
	return domain.RiskCritical
}
