package api

import (
	"errors"
	"net/http"

	service "github.com/cvmap/cvmap/internal/app"
)

// Error codes carried in the ErrorDto envelope.
const (
	CodeInvalidEventKind        = "invalid_event_kind"
	CodeUnknownSubject          = "unknown_subject"
	CodeInvalidViewport         = "invalid_viewport"
	CodeInvalidPagination       = "invalid_pagination"
	CodeInsufficientCredibility = "insufficient_credibility"
	CodeDuplicateVote           = "duplicate_vote"
	CodeNotFound                = "not_found"
	CodeForbidden               = "forbidden"
	CodeBadRequest              = "bad_request"
	CodeInternalError           = "internal_error"
)

// Sentinel kinds for API errors.
var (
	ErrMissingIdentity = errors.New("missing x-ident header")
	ErrBadRequest      = errors.New("bad request")
)

// writeServiceError maps service sentinel errors onto status and code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidViewport):
		writeError(w, r, http.StatusBadRequest, CodeInvalidViewport, err)
	case errors.Is(err, service.ErrInvalidPagination):
		writeError(w, r, http.StatusBadRequest, CodeInvalidPagination, err)
	case errors.Is(err, service.ErrInvalidDirection),
		errors.Is(err, service.ErrInvalidReason),
		errors.Is(err, service.ErrInvalidCoordinates):
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err)
	case errors.Is(err, service.ErrUnknownIdentity):
		writeError(w, r, http.StatusUnauthorized, CodeUnknownSubject, err)
	case errors.Is(err, service.ErrInsufficientCredibility):
		writeError(w, r, http.StatusForbidden, CodeInsufficientCredibility, err)
	case errors.Is(err, service.ErrDuplicateVote):
		writeError(w, r, http.StatusConflict, CodeDuplicateVote, err)
	case errors.Is(err, service.ErrNotFound):
		writeError(w, r, http.StatusNotFound, CodeNotFound, err)
	default:
		writeError(w, r, http.StatusInternalServerError, CodeInternalError, err)
	}
}
