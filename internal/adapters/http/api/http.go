// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/ascent/internal/adapters/repository"
	"github.com/okian/ascent/internal/domain/dedupe"
	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/leveling"
	"github.com/okian/ascent/internal/domain/model"
	"github.com/okian/ascent/internal/domain/rating"
	"github.com/okian/ascent/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	dedupe.Deduper

	// Enqueue pushes an event for async processing. Returns false on backpressure.
	Enqueue(ctx context.Context, e model.ActivityEvent) bool

	// Snapshot returns the full progression read shape for one user.
	Snapshot(ctx context.Context, userID string) (*types.Snapshot, error)

	// UpdateRating applies pushed aggregator metrics to one dimension.
	UpdateRating(ctx context.Context, userID string, d dimension.Dimension, m rating.Metrics) (*model.NELOChange, error)

	// RunDailySweep expires streaks and applies inactivity regression.
	RunDailySweep(ctx context.Context, userID string, asOf types.Day) (*model.SweepResult, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	snapshotHandler *SnapshotHandler
	ratingHandler   *RatingHandler
	sweepHandler    *SweepHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		eventsHandler:   NewEventsHandler(deps),
		snapshotHandler: NewSnapshotHandler(deps),
		ratingHandler:   NewRatingHandler(deps),
		sweepHandler:    NewSweepHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux, deps Dependencies) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("/snapshot/", MetricsMiddleware(s.snapshotHandler.HandleGetSnapshot, "snapshot"))
	mux.HandleFunc("/rating", MetricsMiddleware(s.ratingHandler.HandlePostRating, "rating"))
	mux.HandleFunc("/sweep", MetricsMiddleware(s.sweepHandler.HandlePostSweep, "sweep"))
}

// eventRequest mirrors the wire schema for POST /events.
type eventRequest struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Action  string `json:"action"`
	TS      string `json:"ts"`
}

func (e eventRequest) validate() error {
	switch {
	case strings.TrimSpace(e.EventID) == "":
		return errors.New("missing event_id")
	case strings.TrimSpace(e.UserID) == "":
		return errors.New("missing user_id")
	case strings.TrimSpace(e.Action) == "":
		return errors.New("missing action")
	case strings.TrimSpace(e.TS) == "":
		return errors.New("missing ts")
	}
	if _, err := time.Parse(time.RFC3339, e.TS); err != nil {
		return errors.New("invalid ts; must be RFC3339")
	}
	if _, _, err := leveling.BaseXPForAction(e.Action); err != nil {
		return err
	}
	return nil
}

type ackResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// isNotFound translates upstream uninitialized-user errors to 404.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotInitialized)
}
