package eventlog

import "errors"

// Sentinel kinds for event log errors.
var (
	ErrInvalidEventKind  = errors.New("event kind outside the closed set")
	ErrUnknownSubject    = errors.New("unknown subject")
	ErrMissingReason     = errors.New("report event without a valid reason")
	ErrAlreadyRegistered = errors.New("identity already registered")
)
