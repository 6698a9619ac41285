// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cvmap/cvmap/internal/domain/model"
)

// identHeader carries the acting identity on authenticated requests.
const identHeader = "x-ident"

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Mutations. The actor is taken from the x-ident header.
	Register(ctx context.Context, displayName string) (model.IdentInfo, error)
	SetDisplayName(ctx context.Context, identity, displayName string) error
	CastVote(ctx context.Context, actor, cvmID string, direction model.Vote) (model.Cvm, error)
	SubmitReport(ctx context.Context, actor string, lat, lon float64, reason model.ReportReason) (model.Cvm, error)

	// Queries.
	MapView(ctx context.Context, actor string, vp model.Viewport, zoom int) ([]model.MapItem, error)
	Leaderboard(ctx context.Context, page, perPage int) (model.Page[model.LeaderboardMember], error)
	Identity(ctx context.Context, identity string) (model.IdentInfo, error)
	IdentityEvents(ctx context.Context, identity string, page, perPage int) (model.Page[model.Event], error)
}

// StatsProvider exposes runtime statistics for the /stats endpoint.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// Server wires HTTP routes for the registry API.
type Server struct {
	cvmsHandler        *CvmsHandler
	identsHandler      *IdentsHandler
	reportsHandler     *ReportsHandler
	leaderboardHandler *LeaderboardHandler
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		cvmsHandler:        NewCvmsHandler(deps),
		identsHandler:      NewIdentsHandler(deps),
		reportsHandler:     NewReportsHandler(deps),
		leaderboardHandler: NewLeaderboardHandler(deps),
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/v1/cvms", MetricsMiddleware(s.cvmsHandler.HandleMapView, "cvms"))
	mux.HandleFunc("/v1/cvms/", MetricsMiddleware(s.cvmsHandler.HandleVote, "votes"))
	mux.HandleFunc("/v1/reports", MetricsMiddleware(s.reportsHandler.HandlePostReport, "reports"))
	mux.HandleFunc("/v1/leaderboard", MetricsMiddleware(s.leaderboardHandler.HandleGetLeaderboard, "leaderboard"))
	mux.HandleFunc("/v1/idents", MetricsMiddleware(s.identsHandler.HandleRegister, "idents"))
	mux.HandleFunc("/v1/idents/", MetricsMiddleware(s.identsHandler.HandleIdent, "ident"))
}

// ErrorDto is the error envelope returned by every failing endpoint.
type ErrorDto struct {
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
	Details   string    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, ErrorDto{
		Code:      code,
		Timestamp: time.Now().UTC(),
		Message:   msg,
		Path:      r.URL.Path,
	})
}

// actorOrReject extracts the acting identity, rejecting the request when
// the header is absent. Mutations without an identity are unauthenticated.
func actorOrReject(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(identHeader)
	if actor == "" {
		writeError(w, r, http.StatusUnauthorized, CodeUnknownSubject, ErrMissingIdentity)
		return "", false
	}
	return actor, true
}
