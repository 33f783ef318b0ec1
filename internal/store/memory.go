package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process Store for tests and for the orchestrator's unit
// tests that should not depend on a running Postgres instance. Thread-safe
// for concurrent access, modeled on dshills-langgraph-go's MemStore.
//
// Limitations: data is lost when the process terminates; the audit_immutable
// trigger is emulated in Go rather than enforced by the database, so tests
// exercising ForceDeleteIssueAuditTrail should not assume Postgres-specific
// session variable semantics.
type Memory struct {
	mu          sync.RWMutex
	issues      map[string]*domain.Issue
	signals     map[string]*domain.Signal
	patterns    map[string]*domain.Pattern
	actions     map[string]*domain.Action
	audit       map[string][]domain.AuditEntry
	checkpoints map[string]*domain.Checkpoint
}

// NewMemory returns an empty in-process Store.
func NewMemory() *Memory {
	return &Memory{
		issues:      make(map[string]*domain.Issue),
		signals:     make(map[string]*domain.Signal),
		patterns:    make(map[string]*domain.Pattern),
		actions:     make(map[string]*domain.Action),
		audit:       make(map[string][]domain.AuditEntry),
		checkpoints: make(map[string]*domain.Checkpoint),
	}
}

func (m *Memory) Close() {}

func clone[T any](v T) *T {
	cp := v
	return &cp
}

func (m *Memory) SaveIssue(_ context.Context, issue *domain.Issue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.ID] = clone(*issue)
	return nil
}

func (m *Memory) LoadIssue(_ context.Context, id string) (*domain.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	issue, ok := m.issues[id]
	if !ok {
		return nil, domain.Classify("store.load_issue", domain.KindState, domain.ErrIssueNotFound)
	}
	return clone(*issue), nil
}

func (m *Memory) LoadIssueByMerchant(_ context.Context, merchantKey string) (*domain.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *domain.Issue
	for _, issue := range m.issues {
		if issue.MerchantKey != merchantKey || issue.Terminal() {
			continue
		}
		if best == nil || issue.CreatedAt.After(best.CreatedAt) {
			best = issue
		}
	}
	if best == nil {
		return nil, domain.Classify("store.load_issue_by_merchant", domain.KindState, domain.ErrIssueNotFound)
	}
	return clone(*best), nil
}

func (m *Memory) LoadActiveIssues(_ context.Context) ([]*domain.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Issue
	for _, issue := range m.issues {
		if !issue.Terminal() {
			out = append(out, clone(*issue))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListIssues(_ context.Context, filter IssueFilter) ([]*domain.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.Issue
	for _, issue := range m.issues {
		if filter.Stage != "" && issue.Stage != filter.Stage {
			continue
		}
		if filter.MerchantKey != "" && issue.MerchantKey != filter.MerchantKey {
			continue
		}
		if filter.ResolutionKind != "" && issue.ResolutionKind != filter.ResolutionKind {
			continue
		}
		out = append(out, clone(*issue))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) SaveSignal(_ context.Context, signal *domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.signals[signal.ID]; exists {
		return nil
	}
	m.signals[signal.ID] = clone(*signal)
	return nil
}

func (m *Memory) LoadSignal(_ context.Context, id string) (*domain.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sig, ok := m.signals[id]
	if !ok {
		return nil, domain.Classify("store.load_signal", domain.KindState, domain.ErrIssueNotFound)
	}
	return clone(*sig), nil
}

func (m *Memory) SavePattern(_ context.Context, pattern *domain.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.patterns[pattern.ID] = clone(*pattern)
	return nil
}

func (m *Memory) LoadPattern(_ context.Context, id string) (*domain.Pattern, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patterns[id]
	if !ok {
		return nil, domain.Classify("store.load_pattern", domain.KindState, domain.ErrIssueNotFound)
	}
	return clone(*p), nil
}

func (m *Memory) SaveAction(_ context.Context, action *domain.Action) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions[action.ID] = clone(*action)
	return nil
}

func (m *Memory) LoadAction(_ context.Context, id string) (*domain.Action, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.actions[id]
	if !ok {
		return nil, domain.Classify("store.load_action", domain.KindState, domain.ErrActionNotFound)
	}
	return clone(*a), nil
}

func (m *Memory) AppendAudit(_ context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit[entry.IssueID] = append(m.audit[entry.IssueID], *entry)
	return nil
}

func (m *Memory) LoadAuditTrail(_ context.Context, issueID string) ([]domain.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.audit[issueID]
	out := make([]domain.AuditEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// SaveCheckpoint upserts cp and, in the same critical section, replaces the
// matching in-memory issue row with issue so the two never disagree,
// mirroring Postgres.SaveCheckpoint's single transaction.
func (m *Memory) SaveCheckpoint(_ context.Context, cp *domain.Checkpoint, issue *domain.Issue) error {
	if cp.State.SchemaVersion == 0 {
		cp.State.SchemaVersion = domain.CurrentCheckpointSchemaVersion
	}
	if cp.State.SchemaVersion != domain.CurrentCheckpointSchemaVersion {
		return domain.Classify("store.save_checkpoint", domain.KindIntegrity, domain.ErrUnknownCheckpointVersion)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[cp.IssueID] = clone(*cp)
	if issue != nil {
		m.issues[issue.ID] = clone(*issue)
	}
	return nil
}

func (m *Memory) LoadCheckpoint(_ context.Context, issueID string) (*domain.Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp, ok := m.checkpoints[issueID]
	if !ok {
		return nil, domain.Classify("store.load_checkpoint", domain.KindState, domain.ErrIssueNotFound)
	}
	if cp.State.SchemaVersion != domain.CurrentCheckpointSchemaVersion {
		return nil, domain.Classify("store.load_checkpoint", domain.KindIntegrity, domain.ErrUnknownCheckpointVersion)
	}
	return clone(*cp), nil
}

func (m *Memory) PruneSignalsOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, sig := range m.signals {
		if sig.ReceivedAt.Before(cutoff) {
			delete(m.signals, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ForceDeleteIssueAuditTrail(_ context.Context, issueID, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.audit, issueID)
	return nil
}
