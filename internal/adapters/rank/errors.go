package rank

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrNotFound     = errors.New("identity not ranked")
	ErrInvalidPage  = errors.New("invalid page bounds")
	ErrInvalidLimit = errors.New("invalid page limit")
)
