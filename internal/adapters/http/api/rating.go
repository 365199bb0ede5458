// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/model"
	"github.com/okian/ascent/internal/domain/rating"
)

// RatingDependencies defines the interface for rating updates.
type RatingDependencies interface {
	UpdateRating(ctx context.Context, userID string, d dimension.Dimension, m rating.Metrics) (*model.NELOChange, error)
}

// RatingHandler accepts pushed metrics from the external aggregator.
type RatingHandler struct {
	deps RatingDependencies
}

// NewRatingHandler creates a new rating handler.
func NewRatingHandler(deps RatingDependencies) *RatingHandler {
	return &RatingHandler{deps: deps}
}

// ratingRequest mirrors the wire schema for POST /rating.
type ratingRequest struct {
	UserID          string             `json:"user_id"`
	Dimension       string             `json:"dimension"`
	RecentAvg       float64            `json:"recent_avg"`
	BaselineAvg     float64            `json:"baseline_avg"`
	DaysSinceActive *int               `json:"days_since_active,omitempty"`
	Additional      map[string]float64 `json:"additional,omitempty"`
}

func (rr ratingRequest) validate() error {
	switch {
	case strings.TrimSpace(rr.UserID) == "":
		return errors.New("missing user_id")
	case strings.TrimSpace(rr.Dimension) == "":
		return errors.New("missing dimension")
	}
	if _, err := dimension.Parse(rr.Dimension); err != nil {
		return err
	}
	return nil
}

// ratingResponse is the applied change, or a no-change acknowledgement.
type ratingResponse struct {
	Status    string   `json:"status"` // "applied" or "no_change"
	Dimension string   `json:"dimension"`
	Prev      int      `json:"prev,omitempty"`
	New       int      `json:"new,omitempty"`
	Delta     int      `json:"delta,omitempty"`
	KFactor   int      `json:"k_factor,omitempty"`
	Reasons   []string `json:"reasons,omitempty"`
}

// HandlePostRating handles POST /rating requests.
func (h *RatingHandler) HandlePostRating(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_rating"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	d, _ := dimension.Parse(req.Dimension) // validated above
	m := rating.Metrics{
		RecentAvg:       req.RecentAvg,
		BaselineAvg:     req.BaselineAvg,
		DaysSinceActive: -1,
		Additional:      req.Additional,
	}
	if req.DaysSinceActive != nil {
		m.DaysSinceActive = *req.DaysSinceActive
	}

	change, err := h.deps.UpdateRating(r.Context(), req.UserID, d, m)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	if change == nil {
		writeJSON(w, http.StatusOK, ratingResponse{Status: "no_change", Dimension: req.Dimension})
		return
	}
	writeJSON(w, http.StatusOK, ratingResponse{
		Status:    "applied",
		Dimension: req.Dimension,
		Prev:      change.Prev,
		New:       change.New,
		Delta:     change.Delta,
		KFactor:   change.KFactor,
		Reasons:   change.Reasons,
	})
}
