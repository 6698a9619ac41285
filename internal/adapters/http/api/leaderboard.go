package api

import (
	"net/http"
)

// defaultPerPage applies when paged queries omit perPage.
const defaultPerPage = 20

// LeaderboardHandler serves the karma ranking.
type LeaderboardHandler struct {
	deps Dependencies
}

// NewLeaderboardHandler creates a new leaderboard handler.
func NewLeaderboardHandler(deps Dependencies) *LeaderboardHandler {
	return &LeaderboardHandler{deps: deps}
}

// HandleGetLeaderboard handles GET /v1/leaderboard?page&perPage.
func (h *LeaderboardHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, nil)
		return
	}

	page, perPage, err := parsePagination(r, defaultPerPage)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, CodeInvalidPagination, err)
		return
	}

	board, err := h.deps.Leaderboard(r.Context(), page, perPage)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}
