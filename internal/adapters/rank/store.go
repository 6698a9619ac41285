// Package rank defines the leaderboard store interface and errors.
package rank

import (
	"context"
	"time"
)

// Member is a leaderboard row with the fields that drive its ordering.
type Member struct {
	Identity    string
	DisplayName string
	Karma       int64
	CreatedAt   time.Time
}

// Store provides read/write access to the ranking state.
//
// Ordering: karma DESC, then CreatedAt ASC (older identities rank higher
// on ties), then identity ASC. The order is total and deterministic.
type Store interface {
	// Upsert inserts or repositions a member after a karma change.
	Upsert(ctx context.Context, m Member)

	// Rank returns the 1-based rank and stored row for an identity.
	// Returns ErrNotFound if the identity is untracked.
	Rank(ctx context.Context, identity string) (int, Member, error)

	// Page returns members [offset, offset+limit) in ranking order.
	Page(ctx context.Context, offset, limit int) ([]Member, error)

	// Count returns the number of tracked members.
	Count(ctx context.Context) int
}
