// Package repository defines the progression store interface and errors.
//
// The store owns the only mutable shared state in the system: the per-user
// LevelState aggregate and the per-dimension streak cache rows, plus the
// append-only activity event log. Every mutation happens inside one
// transaction handed to the caller as an explicit unit of work; concurrent
// writers to the same user serialize, and readers always observe a
// committed aggregate.
package repository

import (
	"context"
	"time"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/streak"
	"github.com/okian/ascent/internal/domain/types"
)

// Record types appended to the activity log. RecordXPAward and
// RecordActivityDay rows count as qualifying activity for streak purposes.
const (
	RecordXPAward     = "xp_award"
	RecordActivityDay = "activity_day"
	RecordNELOChange  = "nelo_change"
	RecordStreakEvent = "streak_event"
	RecordSweepRun    = "sweep_run"
)

// DimensionState is one axis of the LevelState aggregate.
type DimensionState struct {
	XP    int64 // cumulative, never decreases
	Level int   // pure function of XP, recomputed on every commit
	NELO  int   // clamped to the rating bounds, rises and falls
}

// LevelState is the single mutable aggregate root, one per user. Level and
// NELO fields are always consistent with their defining functions at commit
// time; stale derived values are never persisted.
type LevelState struct {
	UserID     string
	TotalXP    int64
	Overall    int // overall level, pure function of TotalXP
	Dimensions map[dimension.Dimension]*DimensionState
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventRecord is an appended result record in the activity log. The log is
// append-only; soft-deleted records are honored by filtering, never
// physically removed here.
type EventRecord struct {
	ID        string
	UserID    string
	Type      string
	Dimension dimension.Dimension
	Day       types.Day
	Payload   string // opaque structured payload, JSON
	Deleted   bool
	CreatedAt time.Time
}

// ReadTx is the read view of one consistent aggregate.
type ReadTx interface {
	// LevelState returns the user's aggregate.
	// Returns ErrNotInitialized when the user has no aggregate yet.
	LevelState() (*LevelState, error)

	// StreakState returns the cached streak row for one dimension.
	StreakState(d dimension.Dimension) (*streak.State, error)

	// ActivityDays returns the distinct calendar days with a qualifying
	// event for the dimension, soft-deleted records excluded. This is the
	// authoritative input for rebuilding the streak cache.
	ActivityDays(d dimension.Dimension) ([]types.Day, error)

	// HasEvent reports whether a log record with the id exists.
	HasEvent(id string) (bool, error)
}

// Tx is the mutating unit of work. All writes commit atomically or not at
// all; a returned error from the transaction body discards everything.
type Tx interface {
	ReadTx

	PutLevelState(s *LevelState) error
	PutStreakState(s *streak.State) error
	AppendEvent(ev EventRecord) error
}

// Store provides transactional access to one user's progression state.
type Store interface {
	// Init creates the aggregate for a user. Idempotent: initializing an
	// existing user is a no-op.
	Init(ctx context.Context, userID string) error

	// Update runs fn inside a single write transaction scoped to userID.
	// Writers to the same user serialize; fn returning an error rolls
	// everything back.
	Update(ctx context.Context, userID string, fn func(tx Tx) error) error

	// View runs fn against a consistent read-only view of userID's state.
	View(ctx context.Context, userID string, fn func(tx ReadTx) error) error

	// Count returns the number of initialized users.
	Count(ctx context.Context) (int, error)

	Close() error
}

// NewLevelState returns a fresh aggregate with every axis at level 1 and
// the provisional rating.
func NewLevelState(userID string, now time.Time, initialNELO int) *LevelState {
	dims := make(map[dimension.Dimension]*DimensionState, len(dimension.All()))
	for _, d := range dimension.All() {
		dims[d] = &DimensionState{XP: 0, Level: 1, NELO: initialNELO}
	}
	return &LevelState{
		UserID:     userID,
		Overall:    1,
		Dimensions: dims,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
