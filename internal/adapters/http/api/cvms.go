package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/cvmap/cvmap/internal/domain/model"
)

// defaultZoom applies when the viewport query omits the zoom parameter.
const defaultZoom = 12

// CvmsHandler serves viewport queries and votes.
type CvmsHandler struct {
	deps Dependencies
}

// NewCvmsHandler creates a new CVM handler.
func NewCvmsHandler(deps Dependencies) *CvmsHandler {
	return &CvmsHandler{deps: deps}
}

// HandleMapView handles GET /v1/cvms?latMin&latMax&lonMin&lonMax&zoom.
// The x-ident header is optional; when present, singleton CVMs carry the
// caller's alreadyVoted personalization.
func (h *CvmsHandler) HandleMapView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, nil)
		return
	}

	vp, ok := parseViewport(w, r)
	if !ok {
		return
	}
	zoom := defaultZoom
	if raw := r.URL.Query().Get("zoom"); raw != "" {
		z, err := strconv.Atoi(raw)
		if err != nil || z < 0 {
			writeError(w, r, http.StatusBadRequest, CodeBadRequest, ErrBadRequest)
			return
		}
		zoom = z
	}

	items, err := h.deps.MapView(r.Context(), r.Header.Get(identHeader), vp, zoom)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// voteRequest mirrors the body of POST /v1/cvms/{id}/votes.
type voteRequest struct {
	Direction string `json:"direction"`
}

// HandleVote handles POST /v1/cvms/{id}/votes.
func (h *CvmsHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, nil)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/cvms/")
	cvmID, action, found := strings.Cut(rest, "/")
	if !found || cvmID == "" || action != "votes" {
		writeError(w, r, http.StatusNotFound, CodeNotFound, nil)
		return
	}

	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}

	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err)
		return
	}

	var direction model.Vote
	switch req.Direction {
	case "up":
		direction = model.VoteUp
	case "down":
		direction = model.VoteDown
	default:
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, ErrBadRequest)
		return
	}

	cvm, err := h.deps.CastVote(r.Context(), actor, cvmID, direction)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cvm)
}

// parseViewport reads the four bound parameters. Missing or non-numeric
// bounds are a bad request; semantic validation happens in the service.
func parseViewport(w http.ResponseWriter, r *http.Request) (model.Viewport, bool) {
	q := r.URL.Query()
	bounds := [4]float64{}
	for i, name := range []string{"latMin", "latMax", "lonMin", "lonMax"} {
		raw := q.Get(name)
		if raw == "" {
			writeError(w, r, http.StatusBadRequest, CodeInvalidViewport, ErrBadRequest)
			return model.Viewport{}, false
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, CodeInvalidViewport, err)
			return model.Viewport{}, false
		}
		bounds[i] = v
	}
	return model.Viewport{
		LatMin: bounds[0],
		LatMax: bounds[1],
		LonMin: bounds[2],
		LonMax: bounds[3],
	}, true
}
