package karma

import "github.com/cvmap/cvmap/internal/domain/model"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithKindDeltas overrides karma deltas for the given kinds. Kinds outside
// the closed set are ignored.
func WithKindDeltas(deltas map[model.Kind]int64) Option {
	return func(e *Engine) {
		for k, d := range deltas {
			if k.Valid() {
				e.kindDeltas[k] = d
			}
		}
	}
}

// WithCredibilityCurve sets the base credibility for fresh identities and
// the maximum swing applied by the received-signal ratio.
func WithCredibilityCurve(base, swing float64) Option {
	return func(e *Engine) {
		if base >= credibilityMin && base <= credibilityMax {
			e.base = base
		}
		if swing > 0 {
			e.swing = swing
		}
	}
}

// WithPlaceholder sets the redacted display name for anonymous identities.
func WithPlaceholder(placeholder string) Option {
	return func(e *Engine) {
		if placeholder != "" {
			e.placeholder = placeholder
		}
	}
}
