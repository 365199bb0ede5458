// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/types"
)

// ActivityEvent represents a user action submitted by clients.
// Fields mirror the wire schema for /events.
type ActivityEvent struct {
	EventID string    // unique id for idempotency
	UserID  string    // subject identifier
	Action  string    // action kind, e.g. "focus_session"
	TS      time.Time // when the activity happened
}

// StreakKind names the transition a streak update produced.
type StreakKind string

const (
	StreakStarted  StreakKind = "started"
	StreakExtended StreakKind = "extended"
	StreakFrozen   StreakKind = "frozen"
	StreakBroken   StreakKind = "broken"
)

// XPAward describes one committed XP transaction. Ephemeral: forwarded to
// collaborators, never persisted by the core beyond the appended log record.
type XPAward struct {
	AwardID    string
	UserID     string
	Dimension  dimension.Dimension
	Action     string
	BaseXP     int64
	FinalXP    int64
	Multiplier float64
	LevelFrom  int
	LevelTo    int
	LeveledUp  bool
	Streak     *StreakEvent // transition triggered by this award, if any
	At         time.Time
}

// StreakEvent describes a single streak transition for one dimension.
type StreakEvent struct {
	UserID     string
	Dimension  dimension.Dimension
	Kind       StreakKind
	Prev       int // streak length before the transition
	Current    int // streak length after the transition
	Day        types.Day
	FrozenUsed bool // a freeze was consumed in the same transaction
	Reason     string
}

// NELOChange describes one applied rating delta for a dimension.
type NELOChange struct {
	UserID    string
	Dimension dimension.Dimension
	Prev      int
	New       int
	Delta     int
	KFactor   int
	Reasons   []string
	At        time.Time
}

// SweepResult aggregates everything a daily sweep produced for one user.
type SweepResult struct {
	AsOf    types.Day
	Streaks []StreakEvent
	Ratings []NELOChange
}
