package signalbus

import (
	"context"
	"sync"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
)

// MemoryBus is an in-process Bus, used by tests. The orchestrator does not
// fall back to it when the shared broker is unreachable; it retries Consume
// on the bus it was given. Publish and Consume are safe for concurrent use.
type MemoryBus struct {
	mu     sync.Mutex
	queue  []domain.Signal
	closed bool
}

// NewMemoryBus returns an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish enqueues signal for a future Consume call.
func (b *MemoryBus) Publish(_ context.Context, signal domain.Signal) error {
	if signal.ReceivedAt.IsZero() {
		signal.ReceivedAt = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, signal)
	return nil
}

// Consume returns up to maxBatch queued signals immediately; it never
// blocks (tests drive it synchronously; production callers use AMQPBus for
// the blocking pull). Ack/Nack are no-ops: the queue slice is already
// drained at return time.
func (b *MemoryBus) Consume(_ context.Context, maxBatch int) ([]Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if maxBatch <= 0 || maxBatch > len(b.queue) {
		maxBatch = len(b.queue)
	}
	batch := b.queue[:maxBatch]
	b.queue = b.queue[maxBatch:]

	out := make([]Delivery, 0, len(batch))
	for _, s := range batch {
		out = append(out, Delivery{
			Signal: s,
			ack:    func() error { return nil },
			nack:   func(bool) error { return nil },
		})
	}
	return out, nil
}

// Close marks the bus closed. Further Publish calls still succeed (tests
// may want to inspect queued state after close); Consume is unaffected.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Len reports the number of signals currently queued, for test assertions.
func (b *MemoryBus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
