// Package cooldown tracks recent vote keys so repeat votes inside the
// cooldown window can be rejected instead of silently absorbed.
package cooldown

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Default tracker configuration constants.
const (
	defaultTTL     = 24 * time.Hour
	defaultMaxSize = 500_000
)

// Tracker records vote keys for the duration of the cooldown window.
type Tracker interface {
	// SeenAndRecord atomically checks whether key is inside its cooldown
	// and records it if not. Returns true if the key is still cooling
	// down, false if it was newly recorded. This is the ONLY method for
	// duplicate detection - thread-safe and atomic.
	SeenAndRecord(ctx context.Context, key string, now time.Time) bool

	// Unrecord removes a key, allowing an immediate retry. Used to roll
	// back when a vote was recorded here but the append failed.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryTracker implements Tracker with a map of expiry instants.
// Unlike a capacity-driven cache, entries age out by TTL; maxSize is only
// a safety bound that triggers a sweep of expired entries.
type inMemoryTracker struct {
	mu      sync.Mutex
	expiry  map[string]time.Time
	ttl     time.Duration
	maxSize int
	size    atomic.Int64
}

// NewInMemoryTracker creates a tracker with configuration options.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{
		ttl:     defaultTTL,
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(t)
	}

	t.expiry = make(map[string]time.Time)
	return t
}

// SeenAndRecord atomically checks whether key is cooling down and records
// it if not.
func (t *inMemoryTracker) SeenAndRecord(ctx context.Context, key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if until, ok := t.expiry[key]; ok {
		if now.Before(until) {
			return true
		}
		// Expired entry: fall through and re-record.
		delete(t.expiry, key)
		t.size.Add(-1)
	}

	if t.maxSize > 0 && len(t.expiry) >= t.maxSize {
		t.sweep(now)
	}

	t.expiry[key] = now.Add(t.ttl)
	t.size.Add(1)
	return false
}

// Unrecord removes a key, allowing an immediate retry.
func (t *inMemoryTracker) Unrecord(ctx context.Context, key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.expiry[key]; ok {
		delete(t.expiry, key)
		t.size.Add(-1)
	}
}

// sweep drops expired entries. Must be called with t.mu held.
func (t *inMemoryTracker) sweep(now time.Time) {
	for key, until := range t.expiry {
		if !now.Before(until) {
			delete(t.expiry, key)
			t.size.Add(-1)
		}
	}
}

// Size returns the current number of tracked keys.
func (t *inMemoryTracker) Size() int64 {
	return t.size.Load()
}
