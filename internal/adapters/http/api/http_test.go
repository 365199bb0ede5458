package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/okian/ascent/internal/adapters/http/api"
	"github.com/okian/ascent/internal/adapters/repository"
	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/model"
	"github.com/okian/ascent/internal/domain/rating"
	"github.com/okian/ascent/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

// stubDeps implements api.Dependencies with scripted behavior.
type stubDeps struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	enqueued   []model.ActivityEvent
	rejectNext bool

	snapshotFn func(userID string) (*types.Snapshot, error)
	ratingFn   func(userID string, d dimension.Dimension, m rating.Metrics) (*model.NELOChange, error)
	sweepFn    func(userID string, asOf types.Day) (*model.SweepResult, error)
}

func newStubDeps() *stubDeps {
	return &stubDeps{seen: make(map[string]struct{})}
}

func (s *stubDeps) SeenAndRecord(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[id]; ok {
		return true
	}
	s.seen[id] = struct{}{}
	return false
}

func (s *stubDeps) Unrecord(_ context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, id)
}

func (s *stubDeps) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.seen))
}

func (s *stubDeps) Enqueue(_ context.Context, e model.ActivityEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectNext {
		return false
	}
	s.enqueued = append(s.enqueued, e)
	return true
}

func (s *stubDeps) Snapshot(_ context.Context, userID string) (*types.Snapshot, error) {
	if s.snapshotFn != nil {
		return s.snapshotFn(userID)
	}
	return &types.Snapshot{UserID: userID}, nil
}

func (s *stubDeps) UpdateRating(_ context.Context, userID string, d dimension.Dimension, m rating.Metrics) (*model.NELOChange, error) {
	if s.ratingFn != nil {
		return s.ratingFn(userID, d, m)
	}
	return nil, nil
}

func (s *stubDeps) RunDailySweep(_ context.Context, userID string, asOf types.Day) (*model.SweepResult, error) {
	if s.sweepFn != nil {
		return s.sweepFn(userID, asOf)
	}
	return &model.SweepResult{AsOf: asOf}, nil
}

type stubStats struct{}

func (stubStats) GetStats() map[string]interface{} {
	return map[string]interface{}{"started": true}
}

func newTestServer(deps *stubDeps) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(deps, stubStats{}).Register(context.Background(), mux, deps)
	return httptest.NewServer(mux)
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHandlePostEvent(t *testing.T) {
	Convey("Given the events endpoint", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		valid := map[string]string{
			"event_id": "ev-1",
			"user_id":  "u1",
			"action":   "focus_session",
			"ts":       time.Now().Format(time.RFC3339),
		}

		Convey("When a valid event is posted", func() {
			resp, body := postJSON(t, srv.URL+"/events", valid)
			So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
			So(body["status"], ShouldEqual, "accepted")
			So(body["duplicate"], ShouldEqual, false)
			So(len(deps.enqueued), ShouldEqual, 1)
			So(deps.enqueued[0].Action, ShouldEqual, "focus_session")

			Convey("And a replay of the same id is acknowledged as duplicate", func() {
				resp, body := postJSON(t, srv.URL+"/events", valid)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(body["status"], ShouldEqual, "duplicate")
				So(body["duplicate"], ShouldEqual, true)
				So(len(deps.enqueued), ShouldEqual, 1)
			})
		})

		Convey("When the queue pushes back", func() {
			deps.rejectNext = true
			resp, body := postJSON(t, srv.URL+"/events", valid)
			So(resp.StatusCode, ShouldEqual, http.StatusTooManyRequests)
			So(body["code"], ShouldEqual, "backpressure")

			Convey("Then the id is released for a retry", func() {
				deps.rejectNext = false
				resp, _ := postJSON(t, srv.URL+"/events", valid)
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
			})
		})

		Convey("When required fields are missing", func() {
			for _, field := range []string{"event_id", "user_id", "action", "ts"} {
				req := make(map[string]string, len(valid))
				for k, v := range valid {
					req[k] = v
				}
				delete(req, field)
				resp, body := postJSON(t, srv.URL+"/events", req)
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(body["code"], ShouldEqual, "bad_request")
			}
			So(deps.enqueued, ShouldBeEmpty)
		})

		Convey("When the action is unknown", func() {
			req := map[string]string{
				"event_id": "ev-2",
				"user_id":  "u1",
				"action":   "time_travel",
				"ts":       time.Now().Format(time.RFC3339),
			}
			resp, _ := postJSON(t, srv.URL+"/events", req)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the timestamp is malformed", func() {
			req := map[string]string{
				"event_id": "ev-3",
				"user_id":  "u1",
				"action":   "focus_session",
				"ts":       "yesterday",
			}
			resp, _ := postJSON(t, srv.URL+"/events", req)
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the method is wrong", func() {
			resp, err := http.Get(srv.URL + "/events")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestHandleGetSnapshot(t *testing.T) {
	Convey("Given the snapshot endpoint", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("When the user exists", func() {
			deps.snapshotFn = func(userID string) (*types.Snapshot, error) {
				return &types.Snapshot{
					UserID:       userID,
					TotalXP:      250,
					OverallLevel: 3,
					Dimensions: []types.DimensionSnapshot{
						{Dimension: "cognitive", XP: 250, Level: 3, NELO: 1250, CurrentStreak: 4},
					},
				}, nil
			}

			resp, body := getJSON(t, srv.URL+"/snapshot/u1")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["user_id"], ShouldEqual, "u1")
			So(body["total_xp"], ShouldEqual, 250)
			So(body["overall_level"], ShouldEqual, 3)
		})

		Convey("When the user is unknown", func() {
			deps.snapshotFn = func(userID string) (*types.Snapshot, error) {
				return nil, fmt.Errorf("%w: %s", repository.ErrNotInitialized, userID)
			}
			resp, body := getJSON(t, srv.URL+"/snapshot/ghost")
			So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "not_found")
		})

		Convey("When the path carries no user", func() {
			resp, _ := getJSON(t, srv.URL+"/snapshot/")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)

			resp, _ = getJSON(t, srv.URL+"/snapshot/u1/extra")
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHandlePostRating(t *testing.T) {
	Convey("Given the rating endpoint", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("When a change is applied", func() {
			var gotMetrics rating.Metrics
			deps.ratingFn = func(userID string, d dimension.Dimension, m rating.Metrics) (*model.NELOChange, error) {
				gotMetrics = m
				return &model.NELOChange{
					UserID: userID, Dimension: d,
					Prev: 1200, New: 1212, Delta: 12, KFactor: 24,
					Reasons: []string{"performance +60% above baseline"},
				}, nil
			}

			resp, body := postJSON(t, srv.URL+"/rating", map[string]any{
				"user_id":      "u1",
				"dimension":    "creative",
				"recent_avg":   160,
				"baseline_avg": 100,
			})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "applied")
			So(body["delta"], ShouldEqual, 12)
			So(gotMetrics.DaysSinceActive, ShouldEqual, -1) // absent means unknown
		})

		Convey("When the engine reports no change", func() {
			resp, body := postJSON(t, srv.URL+"/rating", map[string]any{
				"user_id":      "u1",
				"dimension":    "creative",
				"recent_avg":   101,
				"baseline_avg": 100,
			})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["status"], ShouldEqual, "no_change")
		})

		Convey("When days_since_active is present", func() {
			var gotMetrics rating.Metrics
			deps.ratingFn = func(_ string, _ dimension.Dimension, m rating.Metrics) (*model.NELOChange, error) {
				gotMetrics = m
				return nil, nil
			}
			resp, _ := postJSON(t, srv.URL+"/rating", map[string]any{
				"user_id":           "u1",
				"dimension":         "cognitive",
				"days_since_active": 0,
			})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(gotMetrics.DaysSinceActive, ShouldEqual, 0)
		})

		Convey("When the dimension is unknown", func() {
			resp, _ := postJSON(t, srv.URL+"/rating", map[string]any{
				"user_id":   "u1",
				"dimension": "charisma",
			})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestHandlePostSweep(t *testing.T) {
	Convey("Given the sweep endpoint", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("When a sweep produces transitions", func() {
			deps.sweepFn = func(userID string, asOf types.Day) (*model.SweepResult, error) {
				return &model.SweepResult{
					AsOf: asOf,
					Streaks: []model.StreakEvent{{
						UserID: userID, Dimension: dimension.Cognitive,
						Kind: model.StreakBroken, Prev: 5, Current: 0,
						Day: asOf, Reason: "no activity for 4 days",
					}},
					Ratings: []model.NELOChange{{
						UserID: userID, Dimension: dimension.Cognitive,
						Prev: 1200, New: 1140, Delta: -60, KFactor: 24,
					}},
				}, nil
			}

			resp, body := postJSON(t, srv.URL+"/sweep", map[string]string{
				"user_id": "u1",
				"as_of":   "2025-06-01",
			})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["as_of"], ShouldEqual, "2025-06-01")

			streaks := body["streaks"].([]any)
			So(len(streaks), ShouldEqual, 1)
			first := streaks[0].(map[string]any)
			So(first["kind"], ShouldEqual, "broken")
			So(first["dimension"], ShouldEqual, "cognitive")

			ratings := body["ratings"].([]any)
			So(len(ratings), ShouldEqual, 1)
			So(ratings[0].(map[string]any)["delta"], ShouldEqual, -60)
		})

		Convey("When as_of is omitted it defaults to today", func() {
			var gotAsOf types.Day
			deps.sweepFn = func(_ string, asOf types.Day) (*model.SweepResult, error) {
				gotAsOf = asOf
				return &model.SweepResult{AsOf: asOf}, nil
			}
			resp, _ := postJSON(t, srv.URL+"/sweep", map[string]string{"user_id": "u1"})
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(gotAsOf, ShouldEqual, types.DayOf(time.Now()))
		})

		Convey("When user_id is missing", func() {
			resp, _ := postJSON(t, srv.URL+"/sweep", map[string]string{"as_of": "2025-06-01"})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When as_of is malformed", func() {
			resp, _ := postJSON(t, srv.URL+"/sweep", map[string]string{
				"user_id": "u1",
				"as_of":   "June 1st",
			})
			So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestHealthAndStats(t *testing.T) {
	Convey("Given the operational endpoints", t, func() {
		deps := newStubDeps()
		srv := newTestServer(deps)
		defer srv.Close()

		Convey("When probing health", func() {
			resp, err := http.Get(srv.URL + "/healthz")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})

		Convey("When reading stats", func() {
			resp, body := getJSON(t, srv.URL+"/stats")
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			So(body["started"], ShouldEqual, true)
		})
	})
}
