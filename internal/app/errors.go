package service

import "errors"

// Sentinel errors returned by the registry operations. The HTTP layer maps
// them onto response codes.
var (
	ErrNotFound                = errors.New("subject not found")
	ErrUnknownIdentity         = errors.New("unknown identity")
	ErrInvalidViewport         = errors.New("invalid viewport bounds")
	ErrInvalidPagination       = errors.New("invalid pagination parameters")
	ErrInvalidDirection        = errors.New("invalid vote direction")
	ErrInvalidReason           = errors.New("invalid report reason")
	ErrInvalidCoordinates      = errors.New("coordinates out of range")
	ErrInsufficientCredibility = errors.New("insufficient credibility")
	ErrDuplicateVote           = errors.New("vote is still cooling down")
)
