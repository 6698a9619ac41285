package cooldown

import "time"

// Option applies a configuration option to the inMemoryTracker.
type Option func(*inMemoryTracker)

// WithTTL sets the cooldown window during which a key counts as seen.
func WithTTL(ttl time.Duration) Option {
	return func(t *inMemoryTracker) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithMaxSize sets the safety bound that triggers an expired-entry sweep.
// maxSize <= 0 disables the bound.
func WithMaxSize(maxSize int) Option {
	return func(t *inMemoryTracker) {
		t.maxSize = maxSize
	}
}
