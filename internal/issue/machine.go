package issue

import (
	"github.com/google/uuid"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/analyzer"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/approval"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/audit"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/executor"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/fingerprint"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

// Machine wires the seven stage handlers (wait_approval and complete have
// none) to the collaborators spec.md §4.7
// names: the durable store, the fingerprint cache, the external analyzer
// and executor, the approval coordinator, and the audit log. It holds no
// per-issue state itself — every method takes the issue it operates on —
// so one Machine serves every issue the orchestrator drives.
type Machine struct {
	store       store.Store
	fingerprint fingerprint.Cache
	analyzer    analyzer.Analyzer
	executor    *executor.Executor
	approval    *approval.Coordinator
	audit       *audit.Log
	logger      logging.Logger
	config      Config
	newID       func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger attaches a structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithConfig overrides the default policy thresholds.
func WithConfig(cfg Config) Option {
	return func(m *Machine) { m.config = cfg }
}

// WithIDGenerator overrides how new entity ids are minted. Tests use this
// for deterministic ids; production leaves it at the uuid default.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// New builds a Machine. All six collaborators are required: a stage
// handler with a nil dependency is a construction bug, not a runtime one.
func New(
	s store.Store,
	fp fingerprint.Cache,
	an analyzer.Analyzer,
	ex *executor.Executor,
	ap *approval.Coordinator,
	au *audit.Log,
	opts ...Option,
) *Machine {
	m := &Machine{
		store:       s,
		fingerprint: fp,
		analyzer:    an,
		executor:    ex,
		approval:    ap,
		audit:       au,
		logger:      logging.NoOp{},
		config:      DefaultConfig(),
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}
