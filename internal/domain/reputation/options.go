package reputation

import "time"

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithVoteWeights sets the weights applied per upvote and downvote.
func WithVoteWeights(up, down float64) Option {
	return func(e *Engine) {
		if up > 0 {
			e.upWeight = up
		}
		if down > 0 {
			e.downWeight = down
		}
	}
}

// WithDecay sets the decay mode and half-life. Invalid modes are ignored.
func WithDecay(mode DecayMode, halfLife time.Duration) Option {
	return func(e *Engine) {
		if mode.Valid() {
			e.decay = mode
		}
		if halfLife > 0 {
			e.halfLife = halfLife
		}
	}
}

// WithReportWindow sets the trailing window for recentlyReported counters.
func WithReportWindow(window time.Duration) Option {
	return func(e *Engine) {
		if window > 0 {
			e.reportWindow = window
		}
	}
}

// WithRemovalFloor enables the removed state for scores below floor.
func WithRemovalFloor(floor float64) Option {
	return func(e *Engine) {
		e.removalFloor = floor
	}
}
