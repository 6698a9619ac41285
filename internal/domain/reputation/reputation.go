// Package reputation folds a CVM's karma events into its score and
// windowed report counters.
package reputation

import (
	"math"
	"time"

	"github.com/cvmap/cvmap/internal/domain/model"
)

// Default engine configuration constants.
const (
	defaultUpWeight     = 1.0
	defaultDownWeight   = 1.0
	defaultReportWindow = 7 * 24 * time.Hour
	defaultHalfLife     = 30 * 24 * time.Hour
)

// DecayMode selects how event age discounts vote weight.
type DecayMode string

// Decay modes. DecayNone yields a plain running sum.
const (
	DecayNone        DecayMode = "none"
	DecayLinear      DecayMode = "linear"
	DecayExponential DecayMode = "exponential"
)

// Valid reports whether m is a known decay mode.
func (m DecayMode) Valid() bool {
	return m == DecayNone || m == DecayLinear || m == DecayExponential
}

// Engine computes score and recentlyReported projections. All methods are
// pure functions of (events, now), so recomputation is idempotent.
type Engine struct {
	upWeight     float64
	downWeight   float64
	decay        DecayMode
	halfLife     time.Duration
	reportWindow time.Duration
	removalFloor float64
}

// New creates an engine with default configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		upWeight:     defaultUpWeight,
		downWeight:   defaultDownWeight,
		decay:        DecayNone,
		halfLife:     defaultHalfLife,
		reportWindow: defaultReportWindow,
		removalFloor: math.Inf(-1), // removal disabled unless configured
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Score returns the weighted vote sum for the CVM's events at the given
// reference instant. Events with kinds outside the closed set are skipped
// and counted in skipped so the caller can flag the projection.
func (e *Engine) Score(events []model.Event, now time.Time) (score float64, skipped int) {
	for _, ev := range events {
		if !ev.Kind.Valid() {
			skipped++
			continue
		}
		switch ev.Kind {
		case model.KindUpvoteReceived:
			score += e.upWeight * e.decayFactor(now.Sub(ev.OccurredAt))
		case model.KindDownvoteReceived:
			score -= e.downWeight * e.decayFactor(now.Sub(ev.OccurredAt))
		}
	}
	return score, skipped
}

// RecentlyReported counts report_received events per reason inside the
// trailing window ending at now. Reports without a valid reason are
// counted in skipped.
func (e *Engine) RecentlyReported(events []model.Event, now time.Time) (counters model.ReportCounters, skipped int) {
	cutoff := now.Add(-e.reportWindow)
	for _, ev := range events {
		if ev.Kind != model.KindReportReceived || ev.IsCreation() {
			continue
		}
		if ev.OccurredAt.Before(cutoff) || ev.OccurredAt.After(now) {
			continue
		}
		switch ev.Reason {
		case model.ReasonMissing:
			counters.Missing++
		case model.ReasonSpam:
			counters.Spam++
		case model.ReasonInactive:
			counters.Inactive++
		case model.ReasonInaccessible:
			counters.Inaccessible++
		default:
			skipped++
		}
	}
	return counters, skipped
}

// Removed reports whether a score is below the removal floor, which
// excludes the CVM from clustering and viewport queries.
func (e *Engine) Removed(score float64) bool {
	return score < e.removalFloor
}

// decayFactor discounts a vote by its age. Pure function of elapsed time.
func (e *Engine) decayFactor(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	switch e.decay {
	case DecayLinear:
		// Reaches zero after two half-lives.
		f := 1 - age.Seconds()/(2*e.halfLife.Seconds())
		return math.Max(0, f)
	case DecayExponential:
		return math.Pow(0.5, age.Seconds()/e.halfLife.Seconds())
	default:
		return 1
	}
}
