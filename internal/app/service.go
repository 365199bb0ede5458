// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/ascent/internal/adapters/mq/queue"
	workerpool "github.com/okian/ascent/internal/adapters/mq/worker"
	repository "github.com/okian/ascent/internal/adapters/repository"
	"github.com/okian/ascent/internal/domain/dedupe"
	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/leveling"
	"github.com/okian/ascent/internal/domain/model"
	"github.com/okian/ascent/internal/domain/rating"
	"github.com/okian/ascent/internal/domain/streak"
	"github.com/okian/ascent/internal/domain/types"
	"github.com/okian/ascent/pkg/logger"
	"github.com/okian/ascent/pkg/metrics"
)

// Service implements the API dependencies for the progression system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	dbPath      string

	// State
	started bool
	stopCh  chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDBPath sets the SQLite file path. Empty selects the in-memory store.
func WithDBPath(path string) Option {
	return func(s *Service) {
		s.dbPath = path
	}
}

// WithStore injects a pre-built store, mainly for tests.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   100000,
		dedupeSize:  50000,
		stopCh:      make(chan struct{}),
		logger:      nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	// Initialize logger if not already set
	if s.logger == nil {
		s.logger = logger.Default()
	}

	s.logger.Info(ctx, "starting progression service...")

	// Initialize components
	if s.store == nil {
		if s.dbPath != "" {
			store, err := repository.NewSQLiteStore(ctx, s.dbPath)
			if err != nil {
				return fmt.Errorf("open sqlite store: %w", err)
			}
			s.store = store
			s.logger.Info(ctx, "using sqlite store", logger.String("path", s.dbPath))
		} else {
			s.store = repository.NewMemoryStore()
			s.logger.Info(ctx, "using in-memory store")
		}
	}
	s.deduper = dedupe.NewInMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)

	// Create and start worker pool; workers award XP through this service
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "progression service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping progression service...")

	// Stop worker pool
	if s.workerPool != nil {
		s.workerPool.Stop()
	}

	// Close queue
	if q, ok := s.eventQueue.(*eventqueue.InMemoryQueue); ok {
		_ = q.Close()
	}

	// Close store
	if s.store != nil {
		_ = s.store.Close()
	}

	// Signal cleanup loop to stop
	select {
	case <-s.stopCh:
		// Channel already closed
	default:
		close(s.stopCh)
	}

	s.started = false
	s.logger.Info(context.Background(), "progression service stopped")
}

// SeenAndRecord atomically checks if an event id was seen and records it if not.
// Returns true if the event was already seen, false if it was newly recorded.
// This is the ONLY method for deduplication - thread-safe and atomic.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordEventDuplicate()
	}
	return seen
}

// Unrecord removes an event ID from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Enqueue submits an event for asynchronous processing.
func (s *Service) Enqueue(ctx context.Context, e model.ActivityEvent) bool {
	success := s.eventQueue.Enqueue(ctx, e)
	if success {
		metrics.UpdateQueueSize(s.eventQueue.Len(ctx))
	}
	return success
}

// InitUser creates the progression aggregate for a user. Idempotent.
func (s *Service) InitUser(ctx context.Context, userID string) error {
	return s.store.Init(ctx, userID)
}

// AwardXP applies one activity event: base XP resolution, streak-derived
// multiplier, level recomputation, streak transition, and the appended log
// record, all inside a single transaction. Users are created on first
// activity. The multiplier reflects the streak as stored before this event;
// the day being recorded raises the multiplier of the next award, not its
// own.
func (s *Service) AwardXP(ctx context.Context, ev model.ActivityEvent) (*model.XPAward, error) {
	baseXP, dim, err := leveling.BaseXPForAction(ev.Action)
	if err != nil {
		return nil, err
	}

	ts := ev.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	day := types.DayOf(ts)

	if err := s.store.Init(ctx, ev.UserID); err != nil {
		metrics.RecordStoreError()
		return nil, fmt.Errorf("init user: %w", err)
	}

	var award *model.XPAward
	err = s.store.Update(ctx, ev.UserID, func(tx repository.Tx) error {
		st, err := tx.LevelState()
		if err != nil {
			return err
		}
		dimState, ok := st.Dimensions[dim]
		if !ok {
			return fmt.Errorf("dimension %s missing from aggregate", dim)
		}

		streakState, err := tx.StreakState(dim)
		if err != nil {
			return err
		}

		finalXP, mult, err := leveling.CalculateXP(baseXP, streakState.Current)
		if err != nil {
			return err
		}

		levelFrom := dimState.Level
		dimState.XP += finalXP
		dimState.Level = leveling.LevelForXP(dimState.XP)
		st.TotalXP += finalXP
		st.Overall = leveling.LevelForXP(st.TotalXP)
		if overall, ok := st.Dimensions[dimension.Overall]; ok {
			overall.XP = st.TotalXP
			overall.Level = st.Overall
		}
		st.UpdatedAt = ts

		streakEv := streakState.RecordActivity(ev.UserID, day)
		if streakEv != nil {
			if err := tx.PutStreakState(streakState); err != nil {
				return err
			}
		}

		if err := s.recordOverallStreak(tx, ev.UserID, day); err != nil {
			return err
		}

		if err := tx.PutLevelState(st); err != nil {
			return err
		}

		award = &model.XPAward{
			AwardID:    ev.EventID,
			UserID:     ev.UserID,
			Dimension:  dim,
			Action:     ev.Action,
			BaseXP:     baseXP,
			FinalXP:    finalXP,
			Multiplier: mult,
			LevelFrom:  levelFrom,
			LevelTo:    dimState.Level,
			LeveledUp:  dimState.Level > levelFrom,
			Streak:     streakEv,
			At:         ts,
		}

		payload, err := json.Marshal(award)
		if err != nil {
			return err
		}
		return tx.AppendEvent(repository.EventRecord{
			ID:        ev.EventID,
			UserID:    ev.UserID,
			Type:      repository.RecordXPAward,
			Dimension: dim,
			Day:       day,
			Payload:   string(payload),
			CreatedAt: ts,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordXPGranted(award.FinalXP)
	if award.LeveledUp {
		metrics.RecordLevelUp()
	}
	if award.Streak != nil {
		metrics.RecordStreakEvent(string(award.Streak.Kind))
		if award.Streak.FrozenUsed {
			metrics.RecordFreezeConsumed()
		}
	}

	return award, nil
}

// recordOverallStreak counts the primary dimensions active on day and,
// once the quorum is met, records the day on the synthetic overall streak.
// RecordActivity's same-day guard keeps this idempotent when later events
// on the same day re-reach the quorum.
func (s *Service) recordOverallStreak(tx repository.Tx, userID string, day types.Day) error {
	active := 0
	for _, p := range dimension.Primaries() {
		ps, err := tx.StreakState(p)
		if err != nil {
			return err
		}
		if ps.TotalActiveDays > 0 && ps.LastActiveDay == day {
			active++
		}
	}
	if active < streak.OverallQuorum {
		return nil
	}

	overall, err := tx.StreakState(dimension.Overall)
	if err != nil {
		return err
	}
	if ev := overall.RecordActivity(userID, day); ev != nil {
		metrics.RecordStreakEvent(string(ev.Kind))
		return tx.PutStreakState(overall)
	}
	return nil
}

// RecordActivity folds a qualifying day into one dimension's streak without
// granting XP. Used by streak backfills. The day is appended to
// the event log under the caller's event id so the streak cache stays
// re-derivable from the log; a replayed id is a no-op.
func (s *Service) RecordActivity(ctx context.Context, userID string, d dimension.Dimension, eventID string, day types.Day) (*model.StreakEvent, error) {
	if !d.Valid() || !d.IsPrimary() {
		return nil, dimension.ErrUnknownDimension
	}
	if err := s.store.Init(ctx, userID); err != nil {
		return nil, err
	}

	var out *model.StreakEvent
	err := s.store.Update(ctx, userID, func(tx repository.Tx) error {
		seen, err := tx.HasEvent(eventID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}

		state, err := tx.StreakState(d)
		if err != nil {
			return err
		}
		out = state.RecordActivity(userID, day)
		if out == nil {
			return nil
		}
		if err := tx.PutStreakState(state); err != nil {
			return err
		}

		payload, err := json.Marshal(out)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(repository.EventRecord{
			ID:        eventID,
			UserID:    userID,
			Type:      repository.RecordActivityDay,
			Dimension: d,
			Day:       day,
			Payload:   string(payload),
			CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return s.recordOverallStreak(tx, userID, day)
	})
	if err != nil {
		return nil, err
	}
	if out != nil {
		metrics.RecordStreakEvent(string(out.Kind))
	}
	return out, nil
}

// RebuildStreak re-derives one dimension's streak cache from the event log.
// The freeze counters are economy state the log cannot reproduce, so the
// persisted counters carry over.
func (s *Service) RebuildStreak(ctx context.Context, userID string, d dimension.Dimension, asOf types.Day) (*streak.State, error) {
	if !d.Valid() {
		return nil, dimension.ErrUnknownDimension
	}

	var rebuilt *streak.State
	err := s.store.Update(ctx, userID, func(tx repository.Tx) error {
		days, err := tx.ActivityDays(d)
		if err != nil {
			return err
		}
		prev, err := tx.StreakState(d)
		if err != nil {
			return err
		}
		next := streak.Rebuild(d, days, asOf)
		next.FreezesAvailable = prev.FreezesAvailable
		next.FreezesUsed = prev.FreezesUsed
		rebuilt = &next
		return tx.PutStreakState(&next)
	})
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}

// UpdateRating applies fresh aggregator metrics to one dimension's rating.
// A zero net delta produces no write, no log record, and a nil change.
func (s *Service) UpdateRating(ctx context.Context, userID string, d dimension.Dimension, m rating.Metrics) (*model.NELOChange, error) {
	if !d.Valid() {
		return nil, dimension.ErrUnknownDimension
	}

	var change *model.NELOChange
	err := s.store.Update(ctx, userID, func(tx repository.Tx) error {
		st, err := tx.LevelState()
		if err != nil {
			return err
		}
		dimState, ok := st.Dimensions[d]
		if !ok {
			return fmt.Errorf("dimension %s missing from aggregate", d)
		}

		ch := rating.ChangeFor(d, dimState.NELO, m)
		next := rating.Clamp(dimState.NELO + ch.Delta)
		if next == dimState.NELO {
			return nil // nothing to record
		}

		now := time.Now()
		change = &model.NELOChange{
			UserID:    userID,
			Dimension: d,
			Prev:      dimState.NELO,
			New:       next,
			Delta:     next - dimState.NELO,
			KFactor:   ch.KFactor,
			Reasons:   ch.Reasons,
			At:        now,
		}
		dimState.NELO = next
		st.UpdatedAt = now

		if err := tx.PutLevelState(st); err != nil {
			return err
		}
		payload, err := json.Marshal(change)
		if err != nil {
			return err
		}
		return tx.AppendEvent(repository.EventRecord{
			ID:        fmt.Sprintf("%s_%s_%d", userID, d, now.UnixNano()),
			UserID:    userID,
			Type:      repository.RecordNELOChange,
			Dimension: d,
			Day:       types.DayOf(now),
			Payload:   string(payload),
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	if change != nil {
		if change.Delta > 0 {
			metrics.RecordRatingChange("up")
		} else {
			metrics.RecordRatingChange("down")
		}
	}

	return change, nil
}

// RunDailySweep expires overdue streaks and applies inactivity regression
// for one user as of the given day. Re-running the sweep for the same day
// is a no-op: bridged days advance the streak cursor and already-broken
// streaks stay broken.
func (s *Service) RunDailySweep(ctx context.Context, userID string, asOf types.Day) (*model.SweepResult, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSweepDuration(float64(time.Since(start).Milliseconds()))
	}()

	result := &model.SweepResult{AsOf: asOf}
	err := s.store.Update(ctx, userID, func(tx repository.Tx) error {
		marker := fmt.Sprintf("sweep_%s_%s", userID, asOf)
		done, err := tx.HasEvent(marker)
		if err != nil {
			return err
		}
		if done {
			return nil // this day's sweep already ran
		}

		st, err := tx.LevelState()
		if err != nil {
			return err
		}

		progress := make(map[dimension.Dimension]rating.DimensionProgress, dimension.PrimaryCount)
		for _, d := range dimension.All() {
			state, err := tx.StreakState(d)
			if err != nil {
				return err
			}

			if ev := state.CheckExpired(userID, asOf); ev != nil {
				if err := tx.PutStreakState(state); err != nil {
					return err
				}
				payload, perr := json.Marshal(ev)
				if perr != nil {
					return perr
				}
				if err := tx.AppendEvent(repository.EventRecord{
					ID:        fmt.Sprintf("sweep_%s_%s_%s", userID, d, asOf),
					UserID:    userID,
					Type:      repository.RecordStreakEvent,
					Dimension: d,
					Day:       asOf,
					Payload:   string(payload),
					CreatedAt: start,
				}); err != nil {
					return err
				}
				metrics.RecordStreakEvent(string(ev.Kind))
				if ev.FrozenUsed {
					metrics.RecordFreezeConsumed()
				}
				result.Streaks = append(result.Streaks, *ev)
			}

			// Dimensions with no activity ever have nothing to regress.
			if d.IsPrimary() && state.TotalActiveDays > 0 {
				progress[d] = rating.DimensionProgress{
					Rating:          st.Dimensions[d].NELO,
					DaysSinceActive: int(asOf - state.LastActiveDay),
				}
			}
		}

		changes := rating.DailyRegression(progress)
		dirty := false
		for d, ch := range changes {
			dimState := st.Dimensions[d]
			next := rating.Clamp(dimState.NELO + ch.Delta)
			if next == dimState.NELO {
				continue
			}
			nc := model.NELOChange{
				UserID:    userID,
				Dimension: d,
				Prev:      dimState.NELO,
				New:       next,
				Delta:     next - dimState.NELO,
				KFactor:   ch.KFactor,
				Reasons:   ch.Reasons,
				At:        start,
			}
			dimState.NELO = next
			dirty = true
			payload, perr := json.Marshal(nc)
			if perr != nil {
				return perr
			}
			if err := tx.AppendEvent(repository.EventRecord{
				ID:        fmt.Sprintf("regress_%s_%s_%s", userID, d, asOf),
				UserID:    userID,
				Type:      repository.RecordNELOChange,
				Dimension: d,
				Day:       asOf,
				Payload:   string(payload),
				CreatedAt: start,
			}); err != nil {
				return err
			}
			metrics.RecordRatingChange("down")
			result.Ratings = append(result.Ratings, nc)
		}
		if dirty {
			st.UpdatedAt = start
			if err := tx.PutLevelState(st); err != nil {
				return err
			}
		}

		return tx.AppendEvent(repository.EventRecord{
			ID:        marker,
			UserID:    userID,
			Type:      repository.RecordSweepRun,
			Dimension: dimension.Overall,
			Day:       asOf,
			CreatedAt: start,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSweepRun()
	return result, nil
}

// Snapshot returns the full read shape for one user.
func (s *Service) Snapshot(ctx context.Context, userID string) (*types.Snapshot, error) {
	var snap *types.Snapshot
	err := s.store.View(ctx, userID, func(tx repository.ReadTx) error {
		st, err := tx.LevelState()
		if err != nil {
			return err
		}

		snap = &types.Snapshot{
			UserID:       userID,
			TotalXP:      st.TotalXP,
			OverallLevel: st.Overall,
			UpdatedAt:    st.UpdatedAt,
		}

		for _, d := range dimension.All() {
			dimState := st.Dimensions[d]
			state, err := tx.StreakState(d)
			if err != nil {
				return err
			}
			mult, tier := streak.MultiplierTier(state.Current)
			ds := types.DimensionSnapshot{
				Dimension:        d.String(),
				XP:               dimState.XP,
				Level:            dimState.Level,
				Progress:         leveling.ProgressInLevel(dimState.XP),
				NELO:             dimState.NELO,
				CurrentStreak:    state.Current,
				LongestStreak:    state.Longest,
				Multiplier:       mult,
				MultiplierTier:   tier,
				FreezesAvailable: state.FreezesAvailable,
				FreezesUsed:      state.FreezesUsed,
			}
			if state.TotalActiveDays > 0 {
				ds.LastActiveDay = state.LastActiveDay.String()
			}
			snap.Dimensions = append(snap.Dimensions, ds)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		stats["queueLength"] = queueLen
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateWorkerCount(s.workerCount)

		if users, err := s.store.Count(ctx); err == nil {
			stats["users"] = users
			metrics.UpdateTotalUsers(users)
		} else {
			metrics.RecordStoreError()
		}
	}

	return stats
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}
