// Package orchestrator implements the main loop spec.md §4.8 describes:
// drain a bounded batch from the signal bus, route each message to its
// issue, advance the issue's stage handlers until it blocks or completes,
// wake issues whose approval verdict arrived, and commit bus offsets once
// the batch is durably applied. Grounded on the teacher's
// orchestration/orchestrator.go (constructor-injected collaborators,
// functional-options config) and orchestration/task_worker.go's
// atomic-lifecycle worker-pool idiom (cancel func, sync.WaitGroup,
// atomic.Bool running flag), adapted from a generic task queue to this
// domain's issue-keyed signal pipeline.
package orchestrator

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/approval"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/issue"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/logging"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/signalbus"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/store"
)

// workItem is one unit routed to a shard: either a freshly arrived signal
// or an approval verdict waking a parked issue.
type workItem struct {
	merchantKey string
	signal      *domain.Signal
	decision    *approval.Decision
	done        chan error // nil for decision items; the listener fires and forgets
}

// shard owns a disjoint slice of merchants and their issues. Its items map
// is touched only by its own goroutine, so it needs no lock — the
// single-writer-per-key discipline spec.md §5 requires.
type shard struct {
	ch    chan workItem
	items map[string]*domain.Issue
}

// Orchestrator drives every active issue through the Machine's stage
// handlers, fed by a Bus and woken by an approval.Coordinator.
type Orchestrator struct {
	bus       signalbus.Bus
	st        store.Store
	machine   *issue.Machine
	approvals *approval.Coordinator
	logger    logging.Logger

	poolSize    int
	batchMax    int
	drainWindow time.Duration

	shards     []*shard
	issueOwner sync.Map // issue id -> merchant key, for routing approval wakes
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	running    atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPoolSize overrides the worker pool size (default: CPU cores x2, per
// spec.md §5).
func WithPoolSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithBatchMax overrides the bus batch size.
func WithBatchMax(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchMax = n
		}
	}
}

// WithDrainWindow overrides how long Stop waits for in-flight handlers to
// persist their current stage before forced termination (spec.md §5).
func WithDrainWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.drainWindow = d
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New builds an Orchestrator. It does not start consuming until Start is
// called.
func New(bus signalbus.Bus, st store.Store, machine *issue.Machine, approvals *approval.Coordinator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:         bus,
		st:          st,
		machine:     machine,
		approvals:   approvals,
		logger:      logging.NoOp{},
		poolSize:    runtime.NumCPU() * 2,
		batchMax:    100,
		drainWindow: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.poolSize < 1 {
		o.poolSize = 1
	}
	o.shards = make([]*shard, o.poolSize)
	for i := range o.shards {
		o.shards[i] = &shard{ch: make(chan workItem, 64), items: make(map[string]*domain.Issue)}
	}
	return o
}

// Start resumes every non-terminal issue from the durable store (spec.md
// §4.9), subscribes to approval verdicts, and launches the worker pool and
// the bus-draining dispatcher. It returns once everything is running;
// Stop (or ctx cancellation) tears it down.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	if err := o.resume(runCtx); err != nil {
		o.running.Store(false)
		cancel()
		return err
	}

	o.approvals.Subscribe(func(d approval.Decision) {
		o.handleDecision(runCtx, d)
	})

	for _, s := range o.shards {
		o.wg.Add(1)
		go o.runShard(runCtx, s)
	}
	o.wg.Add(1)
	go o.runDispatcher(runCtx)

	return nil
}

// Stop cancels the run context and waits up to the configured drain window
// for in-flight work to persist before returning. A handler still running
// at the end of the window leaves its issue at the last persisted stage;
// the next Start's resume picks it back up (spec.md §5).
func (o *Orchestrator) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(o.drainWindow):
		o.logger.Warn("orchestrator drain window elapsed with workers still running", nil)
	}
	_ = o.bus.Close()
}

// resume loads every active issue and seats it on the shard its merchant
// hashes to, so in-flight work after a restart lands exactly where it would
// have the first time.
func (o *Orchestrator) resume(ctx context.Context) error {
	active, err := o.st.LoadActiveIssues(ctx)
	if err != nil {
		return domain.Classify("orchestrator.resume", domain.KindDependency, err)
	}
	for _, iss := range active {
		s := o.shards[shardIndex(iss.MerchantKey, len(o.shards))]
		s.items[iss.MerchantKey] = iss
		o.issueOwner.Store(iss.ID, iss.MerchantKey)

		cp, err := o.st.LoadCheckpoint(ctx, iss.ID)
		switch {
		case err != nil:
			o.logger.Warn("resuming issue with no checkpoint", map[string]interface{}{
				"issue_id": iss.ID, "stage": string(iss.Stage),
			})
		case cp.Stage != iss.Stage:
			o.logger.Warn("checkpoint stage disagrees with issue row", map[string]interface{}{
				"issue_id": iss.ID, "issue_stage": string(iss.Stage), "checkpoint_stage": string(cp.Stage),
			})
		}
	}
	o.logger.Info("resumed active issues", map[string]interface{}{"count": len(active)})
	return nil
}

// runDispatcher drains bounded batches from the bus, routes each delivery
// to its shard, and commits (acks) the batch only after every item in it
// has finished processing (spec.md §4.8 steps 1, 2, 3, 5).
func (o *Orchestrator) runDispatcher(ctx context.Context) {
	defer o.wg.Done()
	for ctx.Err() == nil {
		deliveries, err := o.bus.Consume(ctx, o.batchMax)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.logger.Warn("bus consume failed", map[string]interface{}{"error": err.Error()})
			time.Sleep(time.Second)
			continue
		}
		if len(deliveries) == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		var batch sync.WaitGroup
		results := make([]error, len(deliveries))
		for i, d := range deliveries {
			i := i
			signal := d.Signal
			done := make(chan error, 1)
			batch.Add(1)
			o.submit(workItem{merchantKey: signal.MerchantKey, signal: &signal, done: done})
			go func() {
				defer batch.Done()
				results[i] = <-done
			}()
		}
		batch.Wait()
		for i, d := range deliveries {
			if err := results[i]; err != nil {
				o.logger.Warn("signal processing failed, requeueing", map[string]interface{}{"error": err.Error()})
				_ = d.Nack(true)
			} else {
				_ = d.Ack()
			}
		}
	}
}

// handleDecision routes an approval verdict to the shard that owns its
// issue. Decisions for an issue this process never saw (another instance
// handled assess_risk) are dropped with a warning — at most one instance
// should own an issue at a time, per spec.md §5's single-writer model.
func (o *Orchestrator) handleDecision(ctx context.Context, d approval.Decision) {
	merchantKey, ok := o.issueOwner.Load(d.IssueID)
	if !ok {
		o.logger.Warn("approval decision for unknown issue", map[string]interface{}{"issue_id": d.IssueID})
		return
	}
	decision := d
	o.submit(workItem{merchantKey: merchantKey.(string), decision: &decision})
}

// submit routes item to the shard its merchant key hashes to.
func (o *Orchestrator) submit(item workItem) {
	s := o.shards[shardIndex(item.merchantKey, len(o.shards))]
	s.ch <- item
}

// runShard is the single-writer loop for one shard: every signal and
// approval wake for the merchants it owns passes through here, one at a
// time, so no two goroutines ever advance the same issue concurrently.
func (o *Orchestrator) runShard(ctx context.Context, s *shard) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-s.ch:
			if !ok {
				return
			}
			err := o.process(ctx, s, item)
			if item.done != nil {
				item.done <- err
			}
		}
	}
}

func (o *Orchestrator) process(ctx context.Context, s *shard, item workItem) error {
	if item.signal != nil {
		iss, err := o.resolveOrCreateIssue(ctx, s, item.merchantKey)
		if err != nil {
			return err
		}
		if err := o.machine.AppendSignal(ctx, iss, item.signal); err != nil {
			return err
		}
		return o.machine.Advance(ctx, iss)
	}
	if item.decision != nil {
		iss, ok := s.items[item.merchantKey]
		if !ok {
			loaded, err := o.st.LoadIssue(ctx, item.decision.IssueID)
			if err != nil {
				return err
			}
			iss = loaded
			s.items[item.merchantKey] = iss
		}
		if err := o.machine.ApplyApprovalDecision(ctx, iss, string(item.decision.Verdict), item.decision.Operator, item.decision.Feedback); err != nil {
			return err
		}
		return o.machine.Advance(ctx, iss)
	}
	return nil
}

// resolveOrCreateIssue returns the shard-local in-memory issue for
// merchantKey, falling back to the durable store, and creating a new issue
// only when neither has one (spec.md §4.8 step 2).
func (o *Orchestrator) resolveOrCreateIssue(ctx context.Context, s *shard, merchantKey string) (*domain.Issue, error) {
	if iss, ok := s.items[merchantKey]; ok && !iss.Terminal() {
		return iss, nil
	}

	loaded, err := o.st.LoadIssueByMerchant(ctx, merchantKey)
	if err == nil {
		s.items[merchantKey] = loaded
		o.issueOwner.Store(loaded.ID, merchantKey)
		return loaded, nil
	}
	if !domain.IsStateError(err) {
		return nil, domain.Classify("orchestrator.resolve_issue", domain.KindDependency, err)
	}

	now := time.Now()
	iss := &domain.Issue{
		ID:             merchantKey + "-" + now.UTC().Format("20060102T150405.000000000"),
		MerchantKey:    merchantKey,
		Stage:          domain.StageObserve,
		ApprovalStatus: domain.ApprovalNotRequired,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.st.SaveIssue(ctx, iss); err != nil {
		return nil, domain.Classify("orchestrator.resolve_issue", domain.KindDependency, err)
	}
	s.items[merchantKey] = iss
	o.issueOwner.Store(iss.ID, merchantKey)
	return iss, nil
}
