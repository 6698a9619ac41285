package eventlog

import "sync"

// Option applies a configuration option to the Log.
type Option func(*Log)

// WithStripeCount sets the number of per-subject lock stripes.
func WithStripeCount(count int) Option {
	return func(l *Log) {
		if count > 0 {
			l.stripes = make([]sync.Mutex, count)
		}
	}
}

// WithAppendHook sets the callback invoked per affected subject after a
// successful append. The log uses it to trigger projection invalidation.
func WithAppendHook(hook func(Subject)) Option {
	return func(l *Log) {
		l.onAppend = hook
	}
}
