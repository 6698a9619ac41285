// Package karma folds an identity's events into karma and credibility and
// projects identities into leaderboard members.
package karma

import (
	"math"

	"github.com/cvmap/cvmap/internal/domain/model"
)

// Default engine configuration constants.
const (
	defaultCredibilityBase  = 50.0
	defaultCredibilitySwing = 50.0
	credibilityMin          = 0.0
	credibilityMax          = 100.0
	defaultPlaceholder      = "anonymous scout"
)

// defaultKindDeltas are the karma deltas granted per event kind. The map is
// configuration; unknown kinds contribute nothing.
var defaultKindDeltas = map[model.Kind]int64{
	model.KindRegistration:     0,
	model.KindUpvoteReceived:   2,
	model.KindDownvoteReceived: -1,
	model.KindUpvoteCast:       1,
	model.KindDownvoteCast:     0,
	model.KindReportCast:       1,
	model.KindReportReceived:   0,
}

// Engine computes karma and credibility projections. All methods are pure
// functions of their inputs, so recomputation is idempotent.
type Engine struct {
	kindDeltas  map[model.Kind]int64
	base        float64
	swing       float64
	placeholder string
}

// New creates an engine with default configuration.
func New(opts ...Option) *Engine {
	e := &Engine{
		kindDeltas:  make(map[model.Kind]int64, len(defaultKindDeltas)),
		base:        defaultCredibilityBase,
		swing:       defaultCredibilitySwing,
		placeholder: defaultPlaceholder,
	}
	for k, d := range defaultKindDeltas {
		e.kindDeltas[k] = d
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// DeltaFor returns the configured karma delta for a kind. The append path
// stamps this onto the event so the log stays self-contained.
func (e *Engine) DeltaFor(kind model.Kind) int64 {
	return e.kindDeltas[kind]
}

// Karma returns the unbounded running sum of deltas across the identity's
// events. Events with kinds outside the closed set are skipped and counted.
func (e *Engine) Karma(events []model.Event) (karma int64, skipped int) {
	for _, ev := range events {
		if !ev.Kind.Valid() {
			skipped++
			continue
		}
		karma += ev.Delta
	}
	return karma, skipped
}

// Credibility derives the bounded trust signal from the identity's event
// history. It starts at the configured base and moves with the ratio of
// upvotes received to all received signals (votes and reports), clamped to
// [0,100]. Identities with no received signals stay at the base.
func (e *Engine) Credibility(events []model.Event) float64 {
	var positive, total float64
	for _, ev := range events {
		switch ev.Kind {
		case model.KindUpvoteReceived:
			positive++
			total++
		case model.KindDownvoteReceived:
			total++
		case model.KindReportReceived:
			if ev.IsCreation() {
				continue
			}
			total++
		}
	}
	if total == 0 {
		return e.base
	}
	cred := e.base + e.swing*(2*positive/total-1)
	return math.Min(credibilityMax, math.Max(credibilityMin, cred))
}

// Member projects an identity into its leaderboard shape. Absent display
// names are replaced by the placeholder so the raw identity is never
// echoed through the display field.
func (e *Engine) Member(info model.IdentInfo) model.LeaderboardMember {
	name := info.DisplayName
	if name == "" {
		name = e.placeholder
	}
	return model.LeaderboardMember{
		Identity:    info.Identity,
		DisplayName: name,
		Karma:       info.Karma,
	}
}
