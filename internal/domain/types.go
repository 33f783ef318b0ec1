package domain

import "time"

// Stage is a point in the issue lifecycle state machine (spec.md §4.7).
type Stage string

const (
	StageObserve        Stage = "observe"
	StageDetectPatterns Stage = "detect_patterns"
	StageAnalyze        Stage = "analyze"
	StageDecide         Stage = "decide"
	StageAssessRisk     Stage = "assess_risk"
	StageWaitApproval   Stage = "wait_approval"
	StageExecute        Stage = "execute"
	StageRecord         Stage = "record"
	StageComplete       Stage = "complete"
)

// ValidStages enumerates every stage the store and state machine accept.
var ValidStages = map[Stage]bool{
	StageObserve: true, StageDetectPatterns: true, StageAnalyze: true,
	StageDecide: true, StageAssessRisk: true, StageWaitApproval: true,
	StageExecute: true, StageRecord: true, StageComplete: true,
}

// ResolutionKind records why an issue reached its terminal stage.
type ResolutionKind string

const (
	ResolutionResolved    ResolutionKind = "resolved"
	ResolutionRateLimited ResolutionKind = "rate_limited"
	ResolutionRejected    ResolutionKind = "rejected"
	ResolutionAborted     ResolutionKind = "aborted"
)

// RiskLevel categorizes an action's potential for harm (spec.md §4.7, §6).
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Severity categorizes an incoming signal's urgency. Kept as a distinct type
// from RiskLevel even though the value sets coincide — a signal's severity
// and a chosen action's risk answer different questions.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SignalSource identifies where an observation originated.
type SignalSource string

const (
	SourceSupportTicket  SignalSource = "support_ticket"
	SourceAPIFailure     SignalSource = "api_failure"
	SourceCheckoutError  SignalSource = "checkout_error"
	SourceWebhookFailure SignalSource = "webhook_failure"
)

// RootCauseCategory is the analyzer's classification vocabulary (spec.md §6).
type RootCauseCategory string

const (
	CategoryMigrationMisstep   RootCauseCategory = "migration_misstep"
	CategoryPlatformRegression RootCauseCategory = "platform_regression"
	CategoryDocumentationGap   RootCauseCategory = "documentation_gap"
	CategoryConfigError        RootCauseCategory = "config_error"
)

// ActionType names a remediation the decide stage can select. The set is
// open-ended (new action types are added by the analyzer's recommendations),
// so this is a defined string type rather than a closed enum.
type ActionType string

const (
	ActionSupportGuidance        ActionType = "support_guidance"
	ActionTemporaryMitigation    ActionType = "temporary_mitigation"
	ActionConfigRollback         ActionType = "config_rollback"
	ActionEscalateToEngineering  ActionType = "escalate_to_engineering"
)

// ActionStatus tracks an action record through its (mostly) forward-only
// lifecycle. Rollback is the one backward transition (spec.md §3).
type ActionStatus string

const (
	ActionPending          ActionStatus = "pending"
	ActionPendingApproval  ActionStatus = "pending_approval"
	ActionInProgress       ActionStatus = "in_progress"
	ActionCompleted        ActionStatus = "completed"
	ActionFailed           ActionStatus = "failed"
	ActionRolledBack       ActionStatus = "rolled_back"
	ActionRejected         ActionStatus = "rejected"
)

// ApprovalStatus is only meaningful when Issue.RequiresApproval is true.
type ApprovalStatus string

const (
	ApprovalNotRequired ApprovalStatus = "not_required"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
)

// ReasoningStep is a structured explanation emitted by a stage handler
// (spec.md §4.12).
type ReasoningStep struct {
	Stage        Stage                  `json:"stage"`
	Summary      string                 `json:"summary"`
	Confidence   float64                `json:"confidence"`
	EvidenceRefs []string               `json:"evidence_refs,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Uncertainty  string                 `json:"uncertainty,omitempty"`
}

// Issue is the unit of coordination: the durable record of one merchant's
// journey through the reasoning pipeline (spec.md §3).
type Issue struct {
	ID                 string          `json:"id"`
	MerchantKey        string          `json:"merchant_key"`
	Stage              Stage           `json:"stage"`
	ResolutionKind      ResolutionKind  `json:"resolution_kind,omitempty"`
	RootCauseCategory  RootCauseCategory `json:"root_cause_category,omitempty"`
	RootCauseConfidence *float64       `json:"root_cause_confidence,omitempty"`
	RootCauseRationale string          `json:"root_cause_rationale,omitempty"`
	ActionType         ActionType      `json:"action_type,omitempty"`
	RiskLevel          RiskLevel       `json:"risk_level,omitempty"`
	RequiresApproval   bool            `json:"requires_approval"`
	ApprovalStatus     ApprovalStatus  `json:"approval_status"`
	SignalCount        int             `json:"signal_count"`
	PatternCount       int             `json:"pattern_count"`
	ErrorCount         int             `json:"error_count"`
	LastError          string          `json:"last_error,omitempty"`
	ReasoningChain     []ReasoningStep `json:"reasoning_chain"`
	SignalIDs          []string        `json:"signal_ids"`
	PatternIDs         []string        `json:"pattern_ids"`
	ActionID           string          `json:"action_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
}

// Terminal reports whether the issue has reached the complete stage.
func (i *Issue) Terminal() bool { return i.Stage == StageComplete }

// Signal is a single normalized observation arriving on the bus. Immutable
// once inserted (spec.md §3).
type Signal struct {
	ID               string                 `json:"id"`
	Source           SignalSource           `json:"source"`
	MerchantKey      string                 `json:"merchant_key"`
	Severity         Severity               `json:"severity"`
	MigrationStage   string                 `json:"migration_stage,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	ErrorCode        string                 `json:"error_code,omitempty"`
	Resource         string                 `json:"resource,omitempty"`
	RawPayload       map[string]interface{} `json:"raw_payload,omitempty"`
	Context          map[string]interface{} `json:"context,omitempty"`
	IssueID          string                 `json:"issue_id,omitempty"`
	ReceivedAt       time.Time              `json:"received_at"`
}

// Fingerprint is the identity a pattern clusters signals by: source,
// error code, and a normalized shape of the error message (spec.md §4.4).
type Fingerprint struct {
	Source           SignalSource
	ErrorCode        string
	NormalizedShape  string
}

// Pattern is a cluster of signals sharing a fingerprint (spec.md §3).
type Pattern struct {
	ID                string            `json:"id"`
	Type              string            `json:"type"`
	Confidence        float64           `json:"confidence"`
	SignalIDs         []string          `json:"signal_ids"`
	AffectedMerchants []string          `json:"affected_merchants"`
	FirstSeen         time.Time         `json:"first_seen"`
	LastSeen          time.Time         `json:"last_seen"`
	Frequency         int               `json:"frequency"`
	Characteristics   map[string]string `json:"characteristics,omitempty"`
}

// Action is a planned or executed remediation (spec.md §3).
type Action struct {
	ID           string                 `json:"id"`
	IssueID      string                 `json:"issue_id"`
	MerchantKey  string                 `json:"merchant_key"`
	ActionType   ActionType             `json:"action_type"`
	RiskLevel    RiskLevel              `json:"risk_level"`
	Status       ActionStatus           `json:"status"`
	Parameters   map[string]interface{} `json:"parameters,omitempty"`
	Result       map[string]interface{} `json:"result,omitempty"`
	Success      *bool                  `json:"success,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	RollbackData map[string]interface{} `json:"rollback_data,omitempty"`
	Reasoning    map[string]interface{} `json:"reasoning,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	ExecutedAt   *time.Time             `json:"executed_at,omitempty"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// AuditEntry is an immutable, hash-chained event (spec.md §3, §4.3).
type AuditEntry struct {
	ID           string                 `json:"id"`
	Timestamp    time.Time              `json:"timestamp"`
	IssueID      string                 `json:"issue_id"`
	EventType    string                 `json:"event_type"`
	Actor        string                 `json:"actor"`
	Inputs       map[string]interface{} `json:"inputs,omitempty"`
	Outputs      map[string]interface{} `json:"outputs,omitempty"`
	Reasoning    map[string]interface{} `json:"reasoning,omitempty"`
	SelfHash     string                 `json:"self_hash"`
	PreviousHash string                 `json:"previous_hash"`
}

// CheckpointState is the serialized snapshot an Agent state record carries.
// SchemaVersion lets the store reject a blob it does not know how to decode
// instead of silently misreading it (spec.md §9, SPEC_FULL.md supplement).
type CheckpointState struct {
	SchemaVersion  int             `json:"schema_version"`
	Signals        []Signal        `json:"signals"`
	Patterns       []Pattern       `json:"patterns"`
	RootCause      *RootCauseState `json:"root_cause,omitempty"`
	SelectedAction *Action         `json:"selected_action,omitempty"`
	ErrorCount     int             `json:"error_count"`
	LastError      string          `json:"last_error,omitempty"`
}

// CurrentCheckpointSchemaVersion is the only version this build can decode
// without a migration step.
const CurrentCheckpointSchemaVersion = 1

// RootCauseState is the analyzer's hypothesis as carried in a checkpoint.
type RootCauseState struct {
	Category   RootCauseCategory `json:"category"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
	Evidence   []string          `json:"evidence"`
}

// Checkpoint is the agent state record: one durable snapshot per issue,
// sufficient to resume after a crash (spec.md §3, §4.9).
type Checkpoint struct {
	IssueID        string          `json:"issue_id"`
	Stage          Stage           `json:"stage"`
	State          CheckpointState `json:"state"`
	CheckpointID   string          `json:"checkpoint_id"`
	ParentID       string          `json:"parent_id,omitempty"`
	ErrorCount     int             `json:"error_count"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
