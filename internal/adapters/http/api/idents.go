package api

import (
	"net/http"
	"strings"
)

// IdentsHandler serves identity registration and lookups.
type IdentsHandler struct {
	deps Dependencies
}

// NewIdentsHandler creates a new identity handler.
func NewIdentsHandler(deps Dependencies) *IdentsHandler {
	return &IdentsHandler{deps: deps}
}

// registerRequest mirrors the body of POST /v1/idents.
type registerRequest struct {
	DisplayName string `json:"displayName,omitempty"`
}

// HandleRegister handles POST /v1/idents. Registration is the only
// mutation that needs no x-ident header; it mints the identity.
func (h *IdentsHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, nil)
		return
	}

	req := registerRequest{}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, CodeBadRequest, err)
			return
		}
	}

	info, err := h.deps.Register(r.Context(), req.DisplayName)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// HandleIdent dispatches GET /v1/idents/{id}, GET /v1/idents/{id}/events
// and PUT /v1/idents/{id}.
func (h *IdentsHandler) HandleIdent(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/idents/")
	identity, sub, hasSub := strings.Cut(rest, "/")
	if identity == "" {
		writeError(w, r, http.StatusNotFound, CodeNotFound, nil)
		return
	}

	switch {
	case !hasSub && r.Method == http.MethodGet:
		h.handleGetIdent(w, r, identity)
	case !hasSub && r.Method == http.MethodPut:
		h.handlePutIdent(w, r, identity)
	case hasSub && sub == "events" && r.Method == http.MethodGet:
		h.handleGetEvents(w, r, identity)
	default:
		writeError(w, r, http.StatusNotFound, CodeNotFound, nil)
	}
}

func (h *IdentsHandler) handleGetIdent(w http.ResponseWriter, r *http.Request, identity string) {
	info, err := h.deps.Identity(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handlePutIdent updates the display name. Identities may only rename
// themselves.
func (h *IdentsHandler) handlePutIdent(w http.ResponseWriter, r *http.Request, identity string) {
	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}
	if actor != identity {
		writeError(w, r, http.StatusForbidden, CodeForbidden, nil)
		return
	}

	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err)
		return
	}

	if err := h.deps.SetDisplayName(r.Context(), identity, req.DisplayName); err != nil {
		writeServiceError(w, r, err)
		return
	}

	info, err := h.deps.Identity(r.Context(), identity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *IdentsHandler) handleGetEvents(w http.ResponseWriter, r *http.Request, identity string) {
	page, perPage, err := parsePagination(r, defaultPerPage)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidPagination, err)
		return
	}

	events, err := h.deps.IdentityEvents(r.Context(), identity, page, perPage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
