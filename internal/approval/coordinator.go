// Package approval implements the single wait_approval gate spec.md §4.10
// requires: register an issue pending a human verdict, record the decision,
// list what is currently pending, and broadcast every verdict to optional
// subscribers. Narrowed from the teacher's full plan/step/error HITL surface
// (orchestration/hitl_interfaces.go's PlanApprover/StepApprover/
// ErrorEscalator composition, orchestration/hitl_controller.go's
// DefaultInterruptController functional-options + NoOp-safe logger
// construction, orchestration/hitl_checkpoint_store.go's checkpoint-backed
// pending-state idiom) down to the one gate this domain needs.
package approval

import (
	"sync"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
)

// Verdict is a human operator's decision on a pending action.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
)

// Pending describes one issue currently gated on a human decision.
type Pending struct {
	IssueID    string
	ActionID   string
	ActionType domain.ActionType
	RiskLevel  domain.RiskLevel
	RegisteredAt time.Time
}

// Decision is what an operator submitted, attached to the action's
// reasoning map as an operator_feedback record per spec.md §4.10.
type Decision struct {
	ActionID  string
	IssueID   string
	Operator  string
	Verdict   Verdict
	Feedback  string
	DecidedAt time.Time
}

// Listener receives every decision as it is recorded. Subscribers never
// hold the coordinator's lock: Decide removes the action from the pending
// set, releases the lock, and then calls each listener synchronously. The
// coordinator persists nothing itself.
type Listener func(Decision)

// Coordinator tracks issues in wait_approval and routes operator verdicts
// back to them.
type Coordinator struct {
	mu        sync.Mutex
	pending   map[string]Pending // keyed by action id
	listeners []Listener
	logger    logging.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger attaches a structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds an empty Coordinator.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		pending: make(map[string]Pending),
		logger:  logging.NoOp{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers a Listener notified of every future Decide call. It
// is the hook external systems (a websocket layer) use without the
// Coordinator depending on any specific receiver, per spec.md §4.10
// ("broadcasts ... but does not depend on them").
func (c *Coordinator) Subscribe(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Register marks an issue's action as awaiting a human verdict. Called when
// the assess_risk handler routes to wait_approval.
func (c *Coordinator) Register(issueID, actionID string, actionType domain.ActionType, risk domain.RiskLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[actionID] = Pending{
		IssueID:      issueID,
		ActionID:     actionID,
		ActionType:   actionType,
		RiskLevel:    risk,
		RegisteredAt: time.Now(),
	}
	c.logger.Info("action registered for approval", map[string]interface{}{
		"issue_id":  issueID,
		"action_id": actionID,
	})
}

// Decide records an operator's verdict for actionID and wakes the
// orchestrator by removing it from the pending set. Returns
// domain.ErrApprovalNotPending if actionID is not currently gated.
func (c *Coordinator) Decide(actionID, operator string, verdict Verdict, feedback string) (Decision, error) {
	c.mu.Lock()
	p, ok := c.pending[actionID]
	if !ok {
		c.mu.Unlock()
		return Decision{}, domain.Classify("approval.decide", domain.KindState, domain.ErrApprovalNotPending)
	}
	delete(c.pending, actionID)
	listeners := append([]Listener(nil), c.listeners...)
	c.mu.Unlock()

	decision := Decision{
		ActionID:  actionID,
		IssueID:   p.IssueID,
		Operator:  operator,
		Verdict:   verdict,
		Feedback:  feedback,
		DecidedAt: time.Now(),
	}
	for _, l := range listeners {
		l(decision)
	}
	return decision, nil
}

// Pending returns a snapshot of every currently gated action.
func (c *Coordinator) Pending() []Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Pending, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	return out
}

// IsPending reports whether actionID is currently gated.
func (c *Coordinator) IsPending(actionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[actionID]
	return ok
}
