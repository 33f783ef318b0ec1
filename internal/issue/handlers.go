package issue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/analyzer"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/executor"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/explain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/retry"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/telemetry"
)

// handlerFunc is the uniform shape of a stage handler: mutate issue
// in place, including its Stage, or return an error and leave issue
// unmodified in the committed sense (the caller discards the mutation by
// not persisting it). This is the "pure function from state to state' plus
// intents" spec.md §4.7 describes, with intents applied as direct store
// writes rather than returned and replayed.
type handlerFunc func(m *Machine, ctx context.Context, issue *domain.Issue) error

var handlers = map[domain.Stage]handlerFunc{
	domain.StageObserve:        (*Machine).handleObserve,
	domain.StageDetectPatterns: (*Machine).handleDetectPatterns,
	domain.StageAnalyze:        (*Machine).handleAnalyze,
	domain.StageDecide:         (*Machine).handleDecide,
	domain.StageAssessRisk:     (*Machine).handleAssessRisk,
	domain.StageExecute:        (*Machine).handleExecute,
	domain.StageRecord:         (*Machine).handleRecord,
}

// AppendSignal links signal to issue idempotently (dedup by signal id) and
// persists it, per spec.md §4.8 step 2. It is the orchestrator's job, done
// before Advance is called, so a handler never needs bus-message shape.
func (m *Machine) AppendSignal(ctx context.Context, iss *domain.Issue, signal *domain.Signal) error {
	for _, id := range iss.SignalIDs {
		if id == signal.ID {
			return nil
		}
	}
	signal.IssueID = iss.ID
	if err := m.store.SaveSignal(ctx, signal); err != nil {
		return domain.Classify("issue.append_signal", domain.KindDependency, err)
	}
	iss.SignalIDs = append(iss.SignalIDs, signal.ID)
	iss.SignalCount++
	iss.UpdatedAt = time.Now()
	return nil
}

// Advance repeatedly invokes the current stage's handler until the issue
// reaches a blocking stage (wait_approval, complete) or a handler fails. On
// every transition it writes the checkpoint blob and the updated issue row
// in a single transaction (spec.md §4.2, §4.9), so a crash between the two
// writes can never happen.
func (m *Machine) Advance(ctx context.Context, iss *domain.Issue) error {
	parentCheckpointID := ""
	if prev, err := m.store.LoadCheckpoint(ctx, iss.ID); err == nil {
		parentCheckpointID = prev.CheckpointID
	}

	for !Blocking(iss.Stage) {
		handler, ok := handlers[iss.Stage]
		if !ok {
			return domain.Classify("issue.advance", domain.KindState,
				fmt.Errorf("stage %s: %w", iss.Stage, domain.ErrWrongStage))
		}

		spanCtx, span := telemetry.StartStageSpan(ctx, string(iss.Stage), iss.ID, iss.MerchantKey)
		err := handler(m, spanCtx, iss)
		telemetry.RecordError(span, err)
		span.End()
		if err != nil {
			iss.ErrorCount++
			iss.LastError = err.Error()
			iss.UpdatedAt = time.Now()

			if iss.ErrorCount >= m.config.MaxConsecutiveErrors {
				iss.Stage = domain.StageComplete
				iss.ResolutionKind = domain.ResolutionAborted
				now := time.Now()
				iss.ResolvedAt = &now
				_, _ = m.audit.Append(ctx, iss.ID, "stage_error", "system",
					map[string]interface{}{"stage": string(iss.Stage)},
					nil,
					map[string]interface{}{"error": err.Error(), "consecutive_failures": iss.ErrorCount})
				cp, cpErr := m.buildCheckpoint(ctx, iss, parentCheckpointID)
				if cpErr == nil {
					_ = m.store.SaveCheckpoint(ctx, cp, iss)
					parentCheckpointID = cp.CheckpointID
				}
			}
			return err
		}

		iss.ErrorCount = 0
		iss.UpdatedAt = time.Now()
		cp, err := m.buildCheckpoint(ctx, iss, parentCheckpointID)
		if err != nil {
			return domain.Classify("issue.advance", domain.KindDependency, err)
		}
		if err := m.store.SaveCheckpoint(ctx, cp, iss); err != nil {
			return domain.Classify("issue.advance", domain.KindDependency, err)
		}
		parentCheckpointID = cp.CheckpointID
	}
	return nil
}

// buildCheckpoint assembles the agent state record for iss's current stage:
// the signals and patterns it has accumulated, its root-cause hypothesis
// (if analyzed), and its selected action (if chosen), per spec.md §3's
// "Agent state record" entity and §4.9's resumability requirement.
func (m *Machine) buildCheckpoint(ctx context.Context, iss *domain.Issue, parentID string) (*domain.Checkpoint, error) {
	signals, err := m.loadSignals(ctx, iss.SignalIDs)
	if err != nil {
		return nil, err
	}
	patterns, err := m.loadPatterns(ctx, iss.PatternIDs)
	if err != nil {
		return nil, err
	}

	var rootCause *domain.RootCauseState
	if iss.RootCauseConfidence != nil {
		rootCause = &domain.RootCauseState{
			Category:   iss.RootCauseCategory,
			Confidence: *iss.RootCauseConfidence,
			Reasoning:  iss.RootCauseRationale,
		}
	}

	var selectedAction *domain.Action
	if iss.ActionID != "" {
		action, err := m.store.LoadAction(ctx, iss.ActionID)
		if err != nil {
			return nil, err
		}
		selectedAction = action
	}

	return &domain.Checkpoint{
		IssueID: iss.ID,
		Stage:   iss.Stage,
		State: domain.CheckpointState{
			SchemaVersion:  domain.CurrentCheckpointSchemaVersion,
			Signals:        signals,
			Patterns:       patterns,
			RootCause:      rootCause,
			SelectedAction: selectedAction,
			ErrorCount:     iss.ErrorCount,
			LastError:      iss.LastError,
		},
		CheckpointID: m.newID(),
		ParentID:     parentID,
		ErrorCount:   iss.ErrorCount,
		LastError:    iss.LastError,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}, nil
}

// handleObserve emits the reasoning step for the most recently appended
// signal and moves to detect_patterns (spec.md §4.7).
func (m *Machine) handleObserve(ctx context.Context, iss *domain.Issue) error {
	if len(iss.SignalIDs) == 0 {
		return domain.Classify("issue.observe", domain.KindState, domain.ErrWrongStage)
	}
	signal, err := m.store.LoadSignal(ctx, iss.SignalIDs[len(iss.SignalIDs)-1])
	if err != nil {
		return domain.Classify("issue.observe", domain.KindDependency, err)
	}

	iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
		Stage:      domain.StageObserve,
		Summary:    fmt.Sprintf("Observed %s from %s", signal.Source, signal.MerchantKey),
		Confidence: 1,
	})
	return m.transition(iss, domain.StageDetectPatterns)
}

// handleDetectPatterns fingerprints the latest signal, resolves it to an
// existing pattern (cache hit at or above the promotion threshold) or seeds
// a new one, and moves to analyze (spec.md §4.4, §4.7).
func (m *Machine) handleDetectPatterns(ctx context.Context, iss *domain.Issue) error {
	if len(iss.SignalIDs) == 0 {
		return domain.Classify("issue.detect_patterns", domain.KindState, domain.ErrWrongStage)
	}
	signal, err := m.store.LoadSignal(ctx, iss.SignalIDs[len(iss.SignalIDs)-1])
	if err != nil {
		return domain.Classify("issue.detect_patterns", domain.KindDependency, err)
	}
	fp := computeFingerprint(*signal)

	entry, hit := m.fingerprint.Lookup(ctx, fp)
	entry, touchErr := m.fingerprint.Touch(ctx, fp, signal.MerchantKey)
	if touchErr != nil {
		return domain.Classify("issue.detect_patterns", domain.KindDependency, touchErr)
	}

	var patternID string
	if hit && entry.PatternID != "" && entry.Count >= m.config.PatternPromotionThreshold {
		pattern, err := m.store.LoadPattern(ctx, entry.PatternID)
		if err != nil {
			return domain.Classify("issue.detect_patterns", domain.KindDependency, err)
		}
		pattern.SignalIDs = append(pattern.SignalIDs, signal.ID)
		pattern.Frequency++
		pattern.LastSeen = time.Now()
		pattern.AffectedMerchants = appendUnique(pattern.AffectedMerchants, signal.MerchantKey)
		if err := m.store.SavePattern(ctx, pattern); err != nil {
			return domain.Classify("issue.detect_patterns", domain.KindDependency, err)
		}
		patternID = pattern.ID
	} else {
		pattern := &domain.Pattern{
			ID:                m.newID(),
			Type:              string(fp.Source),
			Confidence:        0.5,
			SignalIDs:         []string{signal.ID},
			AffectedMerchants: []string{signal.MerchantKey},
			FirstSeen:         time.Now(),
			LastSeen:          time.Now(),
			Frequency:         1,
			Characteristics: map[string]string{
				"error_code":      fp.ErrorCode,
				"normalized_shape": fp.NormalizedShape,
			},
		}
		if err := m.store.SavePattern(ctx, pattern); err != nil {
			return domain.Classify("issue.detect_patterns", domain.KindDependency, err)
		}
		if err := m.fingerprint.Assign(ctx, fp, pattern.ID); err != nil {
			return domain.Classify("issue.detect_patterns", domain.KindDependency, err)
		}
		patternID = pattern.ID
	}

	iss.PatternIDs = appendUnique(iss.PatternIDs, patternID)
	iss.PatternCount = len(iss.PatternIDs)
	iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
		Stage:      domain.StageDetectPatterns,
		Summary:    fmt.Sprintf("Linked signal to pattern %s (fingerprint hits=%d)", patternID, entry.Count),
		Confidence: 1,
		Data:       map[string]interface{}{"pattern_id": patternID},
	})
	return m.transition(iss, domain.StageAnalyze)
}

// handleAnalyze asks the external analyzer for a root-cause hypothesis. A
// failed or low-confidence response never blocks the pipeline: it is
// recorded as uncertainty and the issue still advances (spec.md §4.7).
func (m *Machine) handleAnalyze(ctx context.Context, iss *domain.Issue) error {
	signals, err := m.loadSignals(ctx, iss.SignalIDs)
	if err != nil {
		return domain.Classify("issue.analyze", domain.KindDependency, err)
	}
	patterns, err := m.loadPatterns(ctx, iss.PatternIDs)
	if err != nil {
		return domain.Classify("issue.analyze", domain.KindDependency, err)
	}

	// The analyzer call is read-only, so it is safe to retry on transient
	// dependency failures where an executor dispatch would not be (spec.md
	// §7: idempotent operations only, never one whose outcome is unknown).
	var resp analyzer.Response
	analyzeErr := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		depCtx, span := telemetry.StartDependencySpan(ctx, "analyzer")
		defer span.End()
		r, err := m.analyzer.Analyze(depCtx, analyzer.Request{
			IssueID:     iss.ID,
			MerchantKey: iss.MerchantKey,
			Signals:     signals,
			Patterns:    patterns,
		})
		telemetry.RecordError(span, err)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	step := domain.ReasoningStep{Stage: domain.StageAnalyze}
	if analyzeErr != nil {
		resp = analyzer.Response{
			Category:   domain.CategoryDocumentationGap,
			Confidence: 0,
			Reasoning:  "analyzer unavailable, falling back to low-confidence default",
			RecommendedActions: []analyzer.RecommendedAction{
				{ActionType: domain.ActionEscalateToEngineering, Confidence: 0, Rationale: "analyzer failure"},
			},
		}
		step.Uncertainty = analyzeErr.Error()
	} else if resp.Confidence < m.config.ConfidenceThreshold {
		step.Uncertainty = "analyzer confidence below threshold"
	}

	iss.RootCauseCategory = resp.Category
	confidence := resp.Confidence
	iss.RootCauseConfidence = &confidence
	iss.RootCauseRationale = resp.Reasoning

	step.Summary = fmt.Sprintf("Root cause hypothesis: %s (confidence %.2f)", resp.Category, resp.Confidence)
	step.Confidence = resp.Confidence
	step.EvidenceRefs = resp.EvidenceRefs
	step.Data = map[string]interface{}{"recommended_actions": resp.RecommendedActions}
	iss.ReasoningChain = append(iss.ReasoningChain, step)

	return m.transition(iss, domain.StageDecide)
}

// handleDecide selects the lowest-risk recommended action meeting the
// confidence threshold, escalating when none qualifies (spec.md §4.7).
func (m *Machine) handleDecide(ctx context.Context, iss *domain.Issue) error {
	recommendations := decodeRecommendedActions(lastStageData(iss, domain.StageAnalyze, "recommended_actions"))

	sort.SliceStable(recommendations, func(i, j int) bool {
		return riskRank(classifyRisk(recommendations[i].ActionType)) < riskRank(classifyRisk(recommendations[j].ActionType))
	})

	chosen := analyzer.RecommendedAction{ActionType: domain.ActionEscalateToEngineering, Confidence: 0, Rationale: "no recommendation met the confidence threshold"}
	for _, candidate := range recommendations {
		if candidate.Confidence >= m.config.ConfidenceThreshold {
			chosen = candidate
			break
		}
	}

	iss.ActionType = chosen.ActionType
	iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
		Stage:      domain.StageDecide,
		Summary:    fmt.Sprintf("Selected action %s: %s", chosen.ActionType, chosen.Rationale),
		Confidence: chosen.Confidence,
	})
	return m.transition(iss, domain.StageAssessRisk)
}

// handleAssessRisk classifies the chosen action's risk, creates its Action
// record, and routes to wait_approval or execute (spec.md §4.7).
func (m *Machine) handleAssessRisk(ctx context.Context, iss *domain.Issue) error {
	risk := classifyRisk(iss.ActionType)
	confidence := 0.0
	if iss.RootCauseConfidence != nil {
		confidence = *iss.RootCauseConfidence
	}
	requiresApproval := risk == domain.RiskHigh || risk == domain.RiskCritical || confidence < m.config.ApprovalConfidenceThreshold

	status := domain.ActionPending
	if requiresApproval {
		status = domain.ActionPendingApproval
	}
	action := &domain.Action{
		ID:          m.newID(),
		IssueID:     iss.ID,
		MerchantKey: iss.MerchantKey,
		ActionType:  iss.ActionType,
		RiskLevel:   risk,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	if err := m.store.SaveAction(ctx, action); err != nil {
		return domain.Classify("issue.assess_risk", domain.KindDependency, err)
	}

	iss.RiskLevel = risk
	iss.RequiresApproval = requiresApproval
	iss.ActionID = action.ID
	iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
		Stage:      domain.StageAssessRisk,
		Summary:    fmt.Sprintf("Assessed risk=%s requires_approval=%v", risk, requiresApproval),
		Confidence: confidence,
	})

	if requiresApproval {
		iss.ApprovalStatus = domain.ApprovalPending
		m.approval.Register(iss.ID, action.ID, action.ActionType, risk)
		return m.transition(iss, domain.StageWaitApproval)
	}
	iss.ApprovalStatus = domain.ApprovalNotRequired
	return m.transition(iss, domain.StageExecute)
}

// ApplyApprovalDecision wakes an issue parked at wait_approval once an
// operator verdict arrives, per spec.md §4.8 step 4 and §4.10. Approval
// routes to execute; rejection routes straight to complete, matching the
// table's wait_approval -> {execute, complete}.
func (m *Machine) ApplyApprovalDecision(ctx context.Context, iss *domain.Issue, verdict string, operator, feedback string) error {
	if iss.Stage != domain.StageWaitApproval {
		return domain.Classify("issue.apply_approval", domain.KindState, domain.ErrWrongStage)
	}
	action, err := m.store.LoadAction(ctx, iss.ActionID)
	if err != nil {
		return domain.Classify("issue.apply_approval", domain.KindDependency, err)
	}
	if action.Reasoning == nil {
		action.Reasoning = map[string]interface{}{}
	}
	action.Reasoning["operator_feedback"] = map[string]interface{}{
		"operator": operator,
		"verdict":  verdict,
		"feedback": feedback,
		"at":       time.Now().UTC().Format(time.RFC3339Nano),
	}

	switch verdict {
	case "approve":
		iss.ApprovalStatus = domain.ApprovalApproved
		action.Status = domain.ActionPending
		if err := m.store.SaveAction(ctx, action); err != nil {
			return domain.Classify("issue.apply_approval", domain.KindDependency, err)
		}
		iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
			Stage: domain.StageWaitApproval, Summary: fmt.Sprintf("Approved by %s", operator), Confidence: 1,
		})
		if err := m.transition(iss, domain.StageExecute); err != nil {
			return err
		}
	case "reject":
		iss.ApprovalStatus = domain.ApprovalRejected
		action.Status = domain.ActionRejected
		if err := m.store.SaveAction(ctx, action); err != nil {
			return domain.Classify("issue.apply_approval", domain.KindDependency, err)
		}
		iss.ResolutionKind = domain.ResolutionRejected
		now := time.Now()
		iss.ResolvedAt = &now
		iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
			Stage: domain.StageWaitApproval, Summary: fmt.Sprintf("Rejected by %s: %s", operator, feedback), Confidence: 1,
		})
		if err := m.transition(iss, domain.StageComplete); err != nil {
			return err
		}
	default:
		return domain.Classify("issue.apply_approval", domain.KindInput, fmt.Errorf("unknown verdict %q", verdict))
	}

	iss.UpdatedAt = time.Now()
	parentCheckpointID := ""
	if prev, err := m.store.LoadCheckpoint(ctx, iss.ID); err == nil {
		parentCheckpointID = prev.CheckpointID
	}
	cp, err := m.buildCheckpoint(ctx, iss, parentCheckpointID)
	if err != nil {
		return domain.Classify("issue.apply_approval", domain.KindDependency, err)
	}
	if err := m.store.SaveCheckpoint(ctx, cp, iss); err != nil {
		return domain.Classify("issue.apply_approval", domain.KindDependency, err)
	}
	return nil
}

// handleExecute persists the two-phase in_progress record with rollback
// data captured, invokes the executor, and records the outcome without
// failing the handler itself: rate-limit and dispatch failures are valid
// recorded outcomes, not pipeline errors (spec.md §4.9, §4.11, §7).
func (m *Machine) handleExecute(ctx context.Context, iss *domain.Issue) error {
	action, err := m.store.LoadAction(ctx, iss.ActionID)
	if err != nil {
		return domain.Classify("issue.execute", domain.KindDependency, err)
	}

	action.RollbackData = executor.CaptureRollback(*action)
	action.Status = domain.ActionInProgress
	if err := m.store.SaveAction(ctx, action); err != nil {
		return domain.Classify("issue.execute", domain.KindDependency, err)
	}

	now := time.Now()
	action.ExecutedAt = &now
	depCtx, span := telemetry.StartDependencySpan(ctx, "action_executor")
	result, dispatchErr := m.executor.Execute(depCtx, *action)
	telemetry.RecordError(span, dispatchErr)
	span.End()

	success := dispatchErr == nil && result.Success
	action.Success = &success
	completedAt := time.Now()
	action.CompletedAt = &completedAt

	dispatchKind, _ := domain.KindOf(dispatchErr)
	switch {
	case dispatchErr != nil && dispatchKind == domain.KindRateLimited:
		action.Status = domain.ActionRejected
		action.ErrorMessage = "rate limited"
		iss.ResolutionKind = domain.ResolutionRateLimited
		iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
			Stage: domain.StageExecute, Summary: "Action suppressed by rate limiter", Confidence: 1,
		})
	case dispatchErr != nil:
		action.Status = domain.ActionFailed
		action.ErrorMessage = dispatchErr.Error()
		iss.LastError = dispatchErr.Error()
		iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
			Stage: domain.StageExecute, Summary: fmt.Sprintf("Execution failed: %v", dispatchErr), Confidence: 0,
		})
	default:
		action.Status = domain.ActionCompleted
		action.Result = result.Output
		iss.ReasoningChain = append(iss.ReasoningChain, domain.ReasoningStep{
			Stage: domain.StageExecute, Summary: "Execution succeeded", Confidence: 1,
		})
	}

	if err := m.store.SaveAction(ctx, action); err != nil {
		return domain.Classify("issue.execute", domain.KindDependency, err)
	}
	return m.transition(iss, domain.StageRecord)
}

// handleRecord appends the full reasoning chain and outcome to the audit
// log and moves to complete (spec.md §4.7, §4.12).
func (m *Machine) handleRecord(ctx context.Context, iss *domain.Issue) error {
	action, err := m.store.LoadAction(ctx, iss.ActionID)
	if err != nil {
		return domain.Classify("issue.record", domain.KindDependency, err)
	}

	inputs := map[string]interface{}{"merchant_key": iss.MerchantKey, "signal_ids": iss.SignalIDs}
	outputs := map[string]interface{}{"action_id": action.ID, "action_status": string(action.Status)}
	explanation := explain.Build(iss)
	if _, err := m.audit.Append(ctx, iss.ID, "issue_resolved", "system", inputs, outputs, explanation.AsMap()); err != nil {
		return domain.Classify("issue.record", domain.KindDependency, err)
	}

	if iss.ResolutionKind == "" {
		iss.ResolutionKind = domain.ResolutionResolved
	}
	now := time.Now()
	iss.ResolvedAt = &now
	return m.transition(iss, domain.StageComplete)
}

// transition validates and applies a stage change in one place so every
// handler goes through the same guard.
func (m *Machine) transition(iss *domain.Issue, to domain.Stage) error {
	if err := ValidateTransition(iss.Stage, to); err != nil {
		return err
	}
	iss.Stage = to
	return nil
}

func (m *Machine) loadSignals(ctx context.Context, ids []string) ([]domain.Signal, error) {
	out := make([]domain.Signal, 0, len(ids))
	for _, id := range ids {
		s, err := m.store.LoadSignal(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *Machine) loadPatterns(ctx context.Context, ids []string) ([]domain.Pattern, error) {
	out := make([]domain.Pattern, 0, len(ids))
	for _, id := range ids {
		p, err := m.store.LoadPattern(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func riskRank(r domain.RiskLevel) int {
	switch r {
	case domain.RiskLow:
		return 0
	case domain.RiskMedium:
		return 1
	case domain.RiskHigh:
		return 2
	default:
		return 3
	}
}

// lastStageData returns data[key] from the most recent reasoning step
// recorded for the given stage, or nil if none exists.
func lastStageData(iss *domain.Issue, stage domain.Stage, key string) interface{} {
	for i := len(iss.ReasoningChain) - 1; i >= 0; i-- {
		step := iss.ReasoningChain[i]
		if step.Stage != stage {
			continue
		}
		if step.Data == nil {
			return nil
		}
		return step.Data[key]
	}
	return nil
}

// decodeRecommendedActions accepts either the in-process
// []analyzer.RecommendedAction (same Advance call as handleAnalyze) or the
// []interface{} of map[string]interface{} shape a reasoning step decodes
// to after a JSON round trip through the store (resume after crash).
func decodeRecommendedActions(v interface{}) []analyzer.RecommendedAction {
	switch recs := v.(type) {
	case []analyzer.RecommendedAction:
		return append([]analyzer.RecommendedAction(nil), recs...)
	case []interface{}:
		out := make([]analyzer.RecommendedAction, 0, len(recs))
		for _, raw := range recs {
			m, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			out = append(out, analyzer.RecommendedAction{
				ActionType: domain.ActionType(fmt.Sprint(m["ActionType"])),
				Confidence: toFloat(m["Confidence"]),
				Rationale:  fmt.Sprint(m["Rationale"]),
			})
		}
		return out
	default:
		return nil
	}
}

func toFloat(v interface{}) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case float32:
		return float64(f)
	default:
		return 0
	}
}
