// Package store implements the Postgres-backed durable record spec.md §6
// requires: issues, signals, patterns, actions, an append-only audit log,
// and checkpoints. Modeled on dshills-langgraph-go's graph/store/store.go
// Store[S] interface shape (Save/Load naming, one method per concern) and
// its sqlite.go schema-creation idiom, adapted here to pgx/v5 against
// Postgres with JSONB columns and a time-partitioned signals table.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
)

// Store is the durable record of every entity spec.md §3 defines. A single
// interface keeps the orchestrator's dependency surface small and mockable,
// mirroring the teacher-adjacent Store[S] shape.
type Store interface {
	SaveIssue(ctx context.Context, issue *domain.Issue) error
	LoadIssue(ctx context.Context, id string) (*domain.Issue, error)
	LoadActiveIssues(ctx context.Context) ([]*domain.Issue, error)
	LoadIssueByMerchant(ctx context.Context, merchantKey string) (*domain.Issue, error)

	// ListIssues is the query surface's filtered browse: an empty filter
	// returns every issue, newest first. Stage/MerchantKey/ResolutionKind
	// filter by exact match; zero-value fields are ignored.
	ListIssues(ctx context.Context, filter IssueFilter) ([]*domain.Issue, error)

	SaveSignal(ctx context.Context, signal *domain.Signal) error
	LoadSignal(ctx context.Context, id string) (*domain.Signal, error)

	SavePattern(ctx context.Context, pattern *domain.Pattern) error
	LoadPattern(ctx context.Context, id string) (*domain.Pattern, error)

	SaveAction(ctx context.Context, action *domain.Action) error
	LoadAction(ctx context.Context, id string) (*domain.Action, error)

	AppendAudit(ctx context.Context, entry *domain.AuditEntry) error
	LoadAuditTrail(ctx context.Context, issueID string) ([]domain.AuditEntry, error)

	// SaveCheckpoint upserts the agent state record and advances the issue's
	// own stage/updated_at in the same transaction, so a reader can never
	// observe a checkpoint that disagrees with the issue row it belongs to
	// (spec.md §4.2, §4.9).
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint, issue *domain.Issue) error
	LoadCheckpoint(ctx context.Context, issueID string) (*domain.Checkpoint, error)

	PruneSignalsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// ForceDeleteIssueAuditTrail is the admin escalation hook SPEC_FULL.md
	// supplements: audit rows are otherwise append-only. It exists for GDPR
	// erasure requests only and must never be reachable from ordinary
	// orchestrator code paths. Postgres writes a warning log line naming the
	// issue, operator and reason before deleting; no audit entry records the
	// erasure, and Memory deletes without logging.
	ForceDeleteIssueAuditTrail(ctx context.Context, issueID, operator, reason string) error

	Close()
}

// IssueFilter narrows ListIssues. Zero-value fields impose no constraint.
type IssueFilter struct {
	Stage          domain.Stage
	MerchantKey    string
	ResolutionKind domain.ResolutionKind
	Limit          int
}

var _ Store = (*Postgres)(nil)

// Postgres is the production Store.
type Postgres struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// Open connects to dsn and returns a Postgres-backed Store. It does not
// create schema; run the migrations in this package's schema.sql (or an
// external migration tool) before first use.
func Open(ctx context.Context, dsn string, logger logging.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, domain.Classify("store.open", domain.KindDependency, err)
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Postgres{pool: pool, logger: logger}, nil
}

func (s *Postgres) Close() { s.pool.Close() }

func marshal(op string, v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, domain.Classify(op, domain.KindInput, err)
	}
	return b, nil
}

func (s *Postgres) SaveIssue(ctx context.Context, issue *domain.Issue) error {
	reasoning, err := marshal("store.save_issue", issue.ReasoningChain)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO issues (
			id, merchant_key, stage, resolution_kind, root_cause_category,
			root_cause_confidence, root_cause_rationale, action_type, risk_level,
			requires_approval, approval_status, signal_count, pattern_count,
			error_count, last_error, reasoning_chain, signal_ids, pattern_ids,
			action_id, created_at, updated_at, resolved_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (id) DO UPDATE SET
			stage = EXCLUDED.stage,
			resolution_kind = EXCLUDED.resolution_kind,
			root_cause_category = EXCLUDED.root_cause_category,
			root_cause_confidence = EXCLUDED.root_cause_confidence,
			root_cause_rationale = EXCLUDED.root_cause_rationale,
			action_type = EXCLUDED.action_type,
			risk_level = EXCLUDED.risk_level,
			requires_approval = EXCLUDED.requires_approval,
			approval_status = EXCLUDED.approval_status,
			signal_count = EXCLUDED.signal_count,
			pattern_count = EXCLUDED.pattern_count,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			reasoning_chain = EXCLUDED.reasoning_chain,
			signal_ids = EXCLUDED.signal_ids,
			pattern_ids = EXCLUDED.pattern_ids,
			action_id = EXCLUDED.action_id,
			updated_at = EXCLUDED.updated_at,
			resolved_at = EXCLUDED.resolved_at`,
		issue.ID, issue.MerchantKey, issue.Stage, nullStr(string(issue.ResolutionKind)),
		nullStr(string(issue.RootCauseCategory)), issue.RootCauseConfidence, issue.RootCauseRationale,
		nullStr(string(issue.ActionType)), nullStr(string(issue.RiskLevel)), issue.RequiresApproval,
		issue.ApprovalStatus, issue.SignalCount, issue.PatternCount, issue.ErrorCount, issue.LastError,
		reasoning, issue.SignalIDs, issue.PatternIDs, nullStr(issue.ActionID),
		issue.CreatedAt, issue.UpdatedAt, issue.ResolvedAt,
	)
	if err != nil {
		return domain.Classify("store.save_issue", domain.KindDependency, err)
	}
	return nil
}

func (s *Postgres) LoadIssue(ctx context.Context, id string) (*domain.Issue, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, merchant_key, stage, resolution_kind, root_cause_category,
			root_cause_confidence, root_cause_rationale, action_type, risk_level,
			requires_approval, approval_status, signal_count, pattern_count,
			error_count, last_error, reasoning_chain, signal_ids, pattern_ids,
			action_id, created_at, updated_at, resolved_at
		FROM issues WHERE id = $1`, id)
	return scanIssue(row)
}

func (s *Postgres) LoadIssueByMerchant(ctx context.Context, merchantKey string) (*domain.Issue, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, merchant_key, stage, resolution_kind, root_cause_category,
			root_cause_confidence, root_cause_rationale, action_type, risk_level,
			requires_approval, approval_status, signal_count, pattern_count,
			error_count, last_error, reasoning_chain, signal_ids, pattern_ids,
			action_id, created_at, updated_at, resolved_at
		FROM issues WHERE merchant_key = $1 AND stage <> 'complete'
		ORDER BY created_at DESC LIMIT 1`, merchantKey)
	return scanIssue(row)
}

func (s *Postgres) LoadActiveIssues(ctx context.Context) ([]*domain.Issue, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, merchant_key, stage, resolution_kind, root_cause_category,
			root_cause_confidence, root_cause_rationale, action_type, risk_level,
			requires_approval, approval_status, signal_count, pattern_count,
			error_count, last_error, reasoning_chain, signal_ids, pattern_ids,
			action_id, created_at, updated_at, resolved_at
		FROM issues WHERE stage <> 'complete' ORDER BY created_at ASC`)
	if err != nil {
		return nil, domain.Classify("store.load_active_issues", domain.KindDependency, err)
	}
	defer rows.Close()

	var out []*domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Classify("store.load_active_issues", domain.KindDependency, err)
	}
	return out, nil
}

func (s *Postgres) ListIssues(ctx context.Context, filter IssueFilter) ([]*domain.Issue, error) {
	query := `
		SELECT id, merchant_key, stage, resolution_kind, root_cause_category,
			root_cause_confidence, root_cause_rationale, action_type, risk_level,
			requires_approval, approval_status, signal_count, pattern_count,
			error_count, last_error, reasoning_chain, signal_ids, pattern_ids,
			action_id, created_at, updated_at, resolved_at
		FROM issues WHERE 1=1`
	var args []interface{}
	if filter.Stage != "" {
		args = append(args, filter.Stage)
		query += fmt.Sprintf(" AND stage = $%d", len(args))
	}
	if filter.MerchantKey != "" {
		args = append(args, filter.MerchantKey)
		query += fmt.Sprintf(" AND merchant_key = $%d", len(args))
	}
	if filter.ResolutionKind != "" {
		args = append(args, string(filter.ResolutionKind))
		query += fmt.Sprintf(" AND resolution_kind = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.Classify("store.list_issues", domain.KindDependency, err)
	}
	defer rows.Close()

	var out []*domain.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Classify("store.list_issues", domain.KindDependency, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row rowScanner) (*domain.Issue, error) {
	var issue domain.Issue
	var resolutionKind, rootCauseCategory, actionType, riskLevel, actionID string
	var reasoning []byte
	err := row.Scan(
		&issue.ID, &issue.MerchantKey, &issue.Stage, &resolutionKind, &rootCauseCategory,
		&issue.RootCauseConfidence, &issue.RootCauseRationale, &actionType, &riskLevel,
		&issue.RequiresApproval, &issue.ApprovalStatus, &issue.SignalCount, &issue.PatternCount,
		&issue.ErrorCount, &issue.LastError, &reasoning, &issue.SignalIDs, &issue.PatternIDs,
		&actionID, &issue.CreatedAt, &issue.UpdatedAt, &issue.ResolvedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.Classify("store.load_issue", domain.KindState, domain.ErrIssueNotFound)
		}
		return nil, domain.Classify("store.load_issue", domain.KindDependency, err)
	}
	issue.ResolutionKind = domain.ResolutionKind(resolutionKind)
	issue.RootCauseCategory = domain.RootCauseCategory(rootCauseCategory)
	issue.ActionType = domain.ActionType(actionType)
	issue.RiskLevel = domain.RiskLevel(riskLevel)
	issue.ActionID = actionID
	if len(reasoning) > 0 {
		if jsonErr := json.Unmarshal(reasoning, &issue.ReasoningChain); jsonErr != nil {
			return nil, domain.Classify("store.load_issue", domain.KindIntegrity, jsonErr)
		}
	}
	return &issue, nil
}

// signals is time-partitioned (by received_at, monthly) at the schema level;
// this package only ever writes and reads through the parent table name.
func (s *Postgres) SaveSignal(ctx context.Context, signal *domain.Signal) error {
	rawPayload, err := marshal("store.save_signal", signal.RawPayload)
	if err != nil {
		return err
	}
	context, err := marshal("store.save_signal", signal.Context)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO signals (
			id, source, merchant_key, severity, migration_stage, error_message,
			error_code, resource, raw_payload, context, issue_id, received_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING`,
		signal.ID, signal.Source, signal.MerchantKey, signal.Severity, signal.MigrationStage,
		signal.ErrorMessage, signal.ErrorCode, signal.Resource, rawPayload, context,
		nullStr(signal.IssueID), signal.ReceivedAt,
	)
	if err != nil {
		return domain.Classify("store.save_signal", domain.KindDependency, err)
	}
	return nil
}

func (s *Postgres) LoadSignal(ctx context.Context, id string) (*domain.Signal, error) {
	var sig domain.Signal
	var rawPayload, context []byte
	var issueID string
	err := s.pool.QueryRow(ctx, `
		SELECT id, source, merchant_key, severity, migration_stage, error_message,
			error_code, resource, raw_payload, context, issue_id, received_at
		FROM signals WHERE id = $1`, id).Scan(
		&sig.ID, &sig.Source, &sig.MerchantKey, &sig.Severity, &sig.MigrationStage,
		&sig.ErrorMessage, &sig.ErrorCode, &sig.Resource, &rawPayload, &context,
		&issueID, &sig.ReceivedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.Classify("store.load_signal", domain.KindState, fmt.Errorf("signal %s: %w", id, domain.ErrIssueNotFound))
		}
		return nil, domain.Classify("store.load_signal", domain.KindDependency, err)
	}
	sig.IssueID = issueID
	_ = json.Unmarshal(rawPayload, &sig.RawPayload)
	_ = json.Unmarshal(context, &sig.Context)
	return &sig, nil
}

func (s *Postgres) SavePattern(ctx context.Context, pattern *domain.Pattern) error {
	characteristics, err := marshal("store.save_pattern", pattern.Characteristics)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patterns (
			id, type, confidence, signal_ids, affected_merchants, first_seen,
			last_seen, frequency, characteristics
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			confidence = EXCLUDED.confidence,
			signal_ids = EXCLUDED.signal_ids,
			affected_merchants = EXCLUDED.affected_merchants,
			last_seen = EXCLUDED.last_seen,
			frequency = EXCLUDED.frequency,
			characteristics = EXCLUDED.characteristics`,
		pattern.ID, pattern.Type, pattern.Confidence, pattern.SignalIDs, pattern.AffectedMerchants,
		pattern.FirstSeen, pattern.LastSeen, pattern.Frequency, characteristics,
	)
	if err != nil {
		return domain.Classify("store.save_pattern", domain.KindDependency, err)
	}
	return nil
}

func (s *Postgres) LoadPattern(ctx context.Context, id string) (*domain.Pattern, error) {
	var p domain.Pattern
	var characteristics []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, type, confidence, signal_ids, affected_merchants, first_seen,
			last_seen, frequency, characteristics
		FROM patterns WHERE id = $1`, id).Scan(
		&p.ID, &p.Type, &p.Confidence, &p.SignalIDs, &p.AffectedMerchants,
		&p.FirstSeen, &p.LastSeen, &p.Frequency, &characteristics,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.Classify("store.load_pattern", domain.KindState, fmt.Errorf("pattern %s not found", id))
		}
		return nil, domain.Classify("store.load_pattern", domain.KindDependency, err)
	}
	_ = json.Unmarshal(characteristics, &p.Characteristics)
	return &p, nil
}

func (s *Postgres) SaveAction(ctx context.Context, action *domain.Action) error {
	params, err := marshal("store.save_action", action.Parameters)
	if err != nil {
		return err
	}
	result, err := marshal("store.save_action", action.Result)
	if err != nil {
		return err
	}
	rollback, err := marshal("store.save_action", action.RollbackData)
	if err != nil {
		return err
	}
	reasoning, err := marshal("store.save_action", action.Reasoning)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO actions (
			id, issue_id, merchant_key, action_type, risk_level, status, parameters, result,
			success, error_message, rollback_data, reasoning, created_at,
			executed_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			success = EXCLUDED.success,
			error_message = EXCLUDED.error_message,
			rollback_data = EXCLUDED.rollback_data,
			executed_at = EXCLUDED.executed_at,
			completed_at = EXCLUDED.completed_at`,
		action.ID, action.IssueID, action.MerchantKey, action.ActionType, action.RiskLevel, action.Status,
		params, result, action.Success, action.ErrorMessage, rollback, reasoning,
		action.CreatedAt, action.ExecutedAt, action.CompletedAt,
	)
	if err != nil {
		return domain.Classify("store.save_action", domain.KindDependency, err)
	}
	return nil
}

func (s *Postgres) LoadAction(ctx context.Context, id string) (*domain.Action, error) {
	var a domain.Action
	var params, result, rollback, reasoning []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, issue_id, merchant_key, action_type, risk_level, status, parameters, result,
			success, error_message, rollback_data, reasoning, created_at,
			executed_at, completed_at
		FROM actions WHERE id = $1`, id).Scan(
		&a.ID, &a.IssueID, &a.MerchantKey, &a.ActionType, &a.RiskLevel, &a.Status, &params, &result,
		&a.Success, &a.ErrorMessage, &rollback, &reasoning, &a.CreatedAt, &a.ExecutedAt, &a.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.Classify("store.load_action", domain.KindState, domain.ErrActionNotFound)
		}
		return nil, domain.Classify("store.load_action", domain.KindDependency, err)
	}
	_ = json.Unmarshal(params, &a.Parameters)
	_ = json.Unmarshal(result, &a.Result)
	_ = json.Unmarshal(rollback, &a.RollbackData)
	_ = json.Unmarshal(reasoning, &a.Reasoning)
	return &a, nil
}

// AppendAudit inserts a new audit row. The audit_immutable trigger (see
// schema.sql) rejects UPDATE/DELETE at the database level, so this method
// never needs to distinguish insert-vs-update: audit rows are append-only by
// construction.
func (s *Postgres) AppendAudit(ctx context.Context, entry *domain.AuditEntry) error {
	inputs, err := marshal("store.append_audit", entry.Inputs)
	if err != nil {
		return err
	}
	outputs, err := marshal("store.append_audit", entry.Outputs)
	if err != nil {
		return err
	}
	reasoning, err := marshal("store.append_audit", entry.Reasoning)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (
			id, timestamp, issue_id, event_type, actor, inputs, outputs,
			reasoning, self_hash, previous_hash
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		entry.ID, entry.Timestamp, entry.IssueID, entry.EventType, entry.Actor,
		inputs, outputs, reasoning, entry.SelfHash, entry.PreviousHash,
	)
	if err != nil {
		return domain.Classify("store.append_audit", domain.KindDependency, err)
	}
	return nil
}

func (s *Postgres) LoadAuditTrail(ctx context.Context, issueID string) ([]domain.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, timestamp, issue_id, event_type, actor, inputs, outputs,
			reasoning, self_hash, previous_hash
		FROM audit_log WHERE issue_id = $1 ORDER BY timestamp ASC`, issueID)
	if err != nil {
		return nil, domain.Classify("store.load_audit_trail", domain.KindDependency, err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var inputs, outputs, reasoning []byte
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.IssueID, &e.EventType, &e.Actor,
			&inputs, &outputs, &reasoning, &e.SelfHash, &e.PreviousHash); err != nil {
			return nil, domain.Classify("store.load_audit_trail", domain.KindDependency, err)
		}
		_ = json.Unmarshal(inputs, &e.Inputs)
		_ = json.Unmarshal(outputs, &e.Outputs)
		_ = json.Unmarshal(reasoning, &e.Reasoning)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Classify("store.load_audit_trail", domain.KindDependency, err)
	}
	return out, nil
}

func (s *Postgres) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint, issue *domain.Issue) error {
	if cp.State.SchemaVersion == 0 {
		cp.State.SchemaVersion = domain.CurrentCheckpointSchemaVersion
	}
	if cp.State.SchemaVersion != domain.CurrentCheckpointSchemaVersion {
		return domain.Classify("store.save_checkpoint", domain.KindIntegrity, domain.ErrUnknownCheckpointVersion)
	}
	state, err := marshal("store.save_checkpoint", cp.State)
	if err != nil {
		return err
	}
	reasoning, err := marshal("store.save_checkpoint", issue.ReasoningChain)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Classify("store.save_checkpoint", domain.KindDependency, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO checkpoints (
			issue_id, stage, state, checkpoint_id, parent_id, error_count,
			last_error, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (issue_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			state = EXCLUDED.state,
			checkpoint_id = EXCLUDED.checkpoint_id,
			parent_id = EXCLUDED.parent_id,
			error_count = EXCLUDED.error_count,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		cp.IssueID, cp.Stage, state, cp.CheckpointID, nullStr(cp.ParentID),
		cp.ErrorCount, cp.LastError, cp.CreatedAt, cp.UpdatedAt,
	); err != nil {
		return domain.Classify("store.save_checkpoint", domain.KindDependency, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE issues SET stage = $2, resolution_kind = $3, root_cause_category = $4,
			root_cause_confidence = $5, root_cause_rationale = $6, action_type = $7,
			risk_level = $8, requires_approval = $9, approval_status = $10,
			signal_count = $11, pattern_count = $12, error_count = $13, last_error = $14,
			reasoning_chain = $15, signal_ids = $16, pattern_ids = $17, action_id = $18,
			updated_at = $19, resolved_at = $20
		WHERE id = $1`,
		issue.ID, issue.Stage, nullStr(string(issue.ResolutionKind)),
		nullStr(string(issue.RootCauseCategory)), issue.RootCauseConfidence, issue.RootCauseRationale,
		nullStr(string(issue.ActionType)), nullStr(string(issue.RiskLevel)), issue.RequiresApproval,
		issue.ApprovalStatus, issue.SignalCount, issue.PatternCount, issue.ErrorCount, issue.LastError,
		reasoning, issue.SignalIDs, issue.PatternIDs, nullStr(issue.ActionID),
		issue.UpdatedAt, issue.ResolvedAt,
	); err != nil {
		return domain.Classify("store.save_checkpoint", domain.KindDependency, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Classify("store.save_checkpoint", domain.KindDependency, err)
	}
	return nil
}

func (s *Postgres) LoadCheckpoint(ctx context.Context, issueID string) (*domain.Checkpoint, error) {
	var cp domain.Checkpoint
	var state []byte
	var parentID string
	err := s.pool.QueryRow(ctx, `
		SELECT issue_id, stage, state, checkpoint_id, parent_id, error_count,
			last_error, created_at, updated_at
		FROM checkpoints WHERE issue_id = $1`, issueID).Scan(
		&cp.IssueID, &cp.Stage, &state, &cp.CheckpointID, &parentID,
		&cp.ErrorCount, &cp.LastError, &cp.CreatedAt, &cp.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.Classify("store.load_checkpoint", domain.KindState, fmt.Errorf("no checkpoint for issue %s", issueID))
		}
		return nil, domain.Classify("store.load_checkpoint", domain.KindDependency, err)
	}
	cp.ParentID = parentID
	if err := json.Unmarshal(state, &cp.State); err != nil {
		return nil, domain.Classify("store.load_checkpoint", domain.KindIntegrity, err)
	}
	if cp.State.SchemaVersion != domain.CurrentCheckpointSchemaVersion {
		return nil, domain.Classify("store.load_checkpoint", domain.KindIntegrity, domain.ErrUnknownCheckpointVersion)
	}
	return &cp, nil
}

// PruneSignalsOlderThan deletes signals received before cutoff, returning
// the number of rows removed. It always issues a row DELETE against the
// parent signals table; it never drops partitions.
func (s *Postgres) PruneSignalsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, domain.Classify("store.prune_signals", domain.KindDependency, err)
	}
	return tag.RowsAffected(), nil
}

// ForceDeleteIssueAuditTrail is the admin escalation hook: it writes a
// warning log line with the issue, operator and reason before deleting. The
// erasure is not itself recorded in audit_log.
func (s *Postgres) ForceDeleteIssueAuditTrail(ctx context.Context, issueID, operator, reason string) error {
	s.logger.Warn("force-deleting issue audit trail", map[string]interface{}{
		"issue_id": issueID,
		"operator": operator,
		"reason":   reason,
	})
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Classify("store.force_delete_audit", domain.KindDependency, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT set_config('remediation.allow_audit_delete', 'on', true)`); err != nil {
		return domain.Classify("store.force_delete_audit", domain.KindDependency, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM audit_log WHERE issue_id = $1`, issueID); err != nil {
		return domain.Classify("store.force_delete_audit", domain.KindDependency, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Classify("store.force_delete_audit", domain.KindDependency, err)
	}
	return nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
