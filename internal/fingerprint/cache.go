// Package fingerprint implements the pattern fingerprint cache spec.md §4.4
// describes: a process-local lookup of recent patterns by signal
// fingerprint, backed by a shared KV tier, with a configurable TTL. The
// cache is a hint only — the durable store remains the system of record.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/tejasbhor/migrationguard-ai-sub001/internal/domain"
	"github.com/tejasbhor/migrationguard-ai-sub001/internal/kv"
)

// Entry is what the cache remembers about a fingerprint.
type Entry struct {
	PatternID string          `json:"pattern_id"`
	FirstSeen time.Time       `json:"first_seen"`
	LastSeen  time.Time       `json:"last_seen"`
	Count     int             `json:"count"`
	Merchants map[string]bool `json:"merchants"`
}

// Stats mirrors the teacher's CacheStats for observability.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Cache is the contract the detect_patterns stage handler consults.
type Cache interface {
	// Lookup returns the current entry for fp, if any.
	Lookup(ctx context.Context, fp domain.Fingerprint) (Entry, bool)
	// Touch records an observation of fp for merchant, creating the entry on
	// first sight, and returns the updated entry.
	Touch(ctx context.Context, fp domain.Fingerprint, merchant string) (Entry, error)
	// Assign binds patternID to fp's entry once the caller has created (or
	// located) the durable Pattern record, so later hits on fp resolve
	// straight to it instead of re-deriving it from the store.
	Assign(ctx context.Context, fp domain.Fingerprint, patternID string) error
	Stats() Stats
}

// key renders a Fingerprint into a stable cache key.
func key(fp domain.Fingerprint) string {
	h := sha256.New()
	h.Write([]byte(fp.Source))
	h.Write([]byte{0})
	h.Write([]byte(fp.ErrorCode))
	h.Write([]byte{0})
	h.Write([]byte(fp.NormalizedShape))
	return "fingerprint:" + hex.EncodeToString(h.Sum(nil))
}

// InProcess is a two-tier cache: an in-memory map for the hot path plus a
// shared KV tier so independent orchestrator processes see each other's
// recent patterns. Modeled on the teacher's SimpleCache (orchestration/cache.go):
// RWMutex-guarded map, background cleanup goroutine, hit/miss counters.
type InProcess struct {
	mu              sync.RWMutex
	items           map[string]Entry
	ttl             time.Duration
	shared          kv.Store
	stats           Stats
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
}

// New builds an InProcess cache with the given TTL and optional shared KV
// tier (nil disables the shared tier; entries then live only in this
// process).
func New(ttl time.Duration, shared kv.Store) *InProcess {
	c := &InProcess{
		items:           make(map[string]Entry),
		ttl:             ttl,
		shared:          shared,
		cleanupInterval: ttl / 2,
		stopCleanup:     make(chan struct{}),
	}
	if c.cleanupInterval <= 0 {
		c.cleanupInterval = time.Minute
	}
	go c.cleanupLoop()
	return c
}

// Close stops the background cleanup goroutine.
func (c *InProcess) Close() { close(c.stopCleanup) }

func (c *InProcess) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *InProcess) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-c.ttl)
	for k, e := range c.items {
		if e.LastSeen.Before(cutoff) {
			delete(c.items, k)
			c.stats.Evictions++
		}
	}
}

func (c *InProcess) Lookup(ctx context.Context, fp domain.Fingerprint) (Entry, bool) {
	k := key(fp)

	c.mu.RLock()
	entry, ok := c.items[k]
	c.mu.RUnlock()
	if ok && time.Since(entry.LastSeen) <= c.ttl {
		c.mu.Lock()
		c.stats.Hits++
		c.mu.Unlock()
		return entry, true
	}

	if c.shared != nil {
		if raw, err := c.shared.Get(ctx, k); err == nil {
			var shared Entry
			if jsonErr := json.Unmarshal([]byte(raw), &shared); jsonErr == nil {
				c.mu.Lock()
				c.items[k] = shared
				c.stats.Hits++
				c.mu.Unlock()
				return shared, true
			}
		}
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	return Entry{}, false
}

func (c *InProcess) Touch(ctx context.Context, fp domain.Fingerprint, merchant string) (Entry, error) {
	k := key(fp)
	now := time.Now()

	c.mu.Lock()
	entry, ok := c.items[k]
	if !ok {
		entry = Entry{FirstSeen: now, Merchants: map[string]bool{}}
	}
	entry.LastSeen = now
	entry.Count++
	if entry.Merchants == nil {
		entry.Merchants = map[string]bool{}
	}
	entry.Merchants[merchant] = true
	c.items[k] = entry
	c.mu.Unlock()

	if c.shared != nil {
		if raw, err := json.Marshal(entry); err == nil {
			_ = c.shared.Set(ctx, k, string(raw), c.ttl)
		}
	}
	return entry, nil
}

// Assign records patternID against fp, overwriting whatever the entry
// currently holds. Called once by detect_patterns after it creates (or
// resolves) the durable Pattern for a fresh fingerprint.
func (c *InProcess) Assign(ctx context.Context, fp domain.Fingerprint, patternID string) error {
	k := key(fp)

	c.mu.Lock()
	entry, ok := c.items[k]
	if !ok {
		entry = Entry{FirstSeen: time.Now(), Merchants: map[string]bool{}}
	}
	entry.PatternID = patternID
	entry.LastSeen = time.Now()
	c.items[k] = entry
	c.mu.Unlock()

	if c.shared != nil {
		if raw, err := json.Marshal(entry); err == nil {
			_ = c.shared.Set(ctx, k, string(raw), c.ttl)
		}
	}
	return nil
}

func (c *InProcess) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}
