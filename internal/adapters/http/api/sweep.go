// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/ascent/internal/domain/model"
	"github.com/okian/ascent/internal/domain/types"
)

// SweepDependencies defines the interface for sweep execution.
type SweepDependencies interface {
	RunDailySweep(ctx context.Context, userID string, asOf types.Day) (*model.SweepResult, error)
}

// SweepHandler triggers the daily sweep for one user. Scheduling is the
// caller's concern; this endpoint only executes a single run.
type SweepHandler struct {
	deps SweepDependencies
}

// NewSweepHandler creates a new sweep handler.
func NewSweepHandler(deps SweepDependencies) *SweepHandler {
	return &SweepHandler{deps: deps}
}

// sweepRequest mirrors the wire schema for POST /sweep.
type sweepRequest struct {
	UserID string `json:"user_id"`
	AsOf   string `json:"as_of,omitempty"` // YYYY-MM-DD, defaults to today
}

type sweepStreakEvent struct {
	Dimension  string `json:"dimension"`
	Kind       string `json:"kind"`
	Prev       int    `json:"prev"`
	Current    int    `json:"current"`
	FrozenUsed bool   `json:"frozen_used"`
	Reason     string `json:"reason,omitempty"`
}

type sweepRatingChange struct {
	Dimension string   `json:"dimension"`
	Prev      int      `json:"prev"`
	New       int      `json:"new"`
	Delta     int      `json:"delta"`
	Reasons   []string `json:"reasons,omitempty"`
}

type sweepResponse struct {
	AsOf    string              `json:"as_of"`
	Streaks []sweepStreakEvent  `json:"streaks"`
	Ratings []sweepRatingChange `json:"ratings"`
}

// HandlePostSweep handles POST /sweep requests.
func (h *SweepHandler) HandlePostSweep(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_sweep"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing user_id")))
		return
	}

	asOf := types.DayOf(time.Now())
	if req.AsOf != "" {
		day, err := types.ParseDay(req.AsOf)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		asOf = day
	}

	result, err := h.deps.RunDailySweep(r.Context(), req.UserID, asOf)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	resp := sweepResponse{
		AsOf:    result.AsOf.String(),
		Streaks: make([]sweepStreakEvent, 0, len(result.Streaks)),
		Ratings: make([]sweepRatingChange, 0, len(result.Ratings)),
	}
	for _, ev := range result.Streaks {
		resp.Streaks = append(resp.Streaks, sweepStreakEvent{
			Dimension:  ev.Dimension.String(),
			Kind:       string(ev.Kind),
			Prev:       ev.Prev,
			Current:    ev.Current,
			FrozenUsed: ev.FrozenUsed,
			Reason:     ev.Reason,
		})
	}
	for _, ch := range result.Ratings {
		resp.Ratings = append(resp.Ratings, sweepRatingChange{
			Dimension: ch.Dimension.String(),
			Prev:      ch.Prev,
			New:       ch.New,
			Delta:     ch.Delta,
			Reasons:   ch.Reasons,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
