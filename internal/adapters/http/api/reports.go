package api

import (
	"net/http"

	"github.com/cvmap/cvmap/internal/domain/model"
)

// ReportsHandler serves report submissions.
type ReportsHandler struct {
	deps Dependencies
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps Dependencies) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// reportRequest mirrors the body of POST /v1/reports.
type reportRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Reason    string  `json:"reason"`
}

// HandlePostReport handles POST /v1/reports. Reporting coordinates with no
// known CVM registers one.
func (h *ReportsHandler) HandlePostReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, r, http.StatusMethodNotAllowed, CodeBadRequest, nil)
		return
	}

	actor, ok := actorOrReject(w, r)
	if !ok {
		return
	}

	var req reportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, CodeBadRequest, err)
		return
	}

	cvm, err := h.deps.SubmitReport(r.Context(), actor, req.Latitude, req.Longitude, model.ReportReason(req.Reason))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cvm)
}
