// Package streak derives per-dimension activity streaks from calendar days.
//
// The state machine is implicit in (Current, LastActiveDay):
//   - Inactive: Current == 0
//   - Active:   Current > 0, LastActiveDay is the as-of day
//   - AtRisk:   Current > 0, LastActiveDay is exactly one day before as-of
//
// All gap arithmetic is calendar-day based. Breaking a streak is a normal
// result, not an error.
package streak

import (
	"fmt"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/model"
	"github.com/okian/ascent/internal/domain/types"
)

// Freeze economy constants.
const (
	// MaxFreezes caps the number of outstanding freezes.
	MaxFreezes = 5
)

// freezeAwards maps streak-length milestones to freezes earned on reaching
// them. Awards apply once, at the exact length, capped at MaxFreezes.
var freezeAwards = map[int]int{
	7:   1,
	30:  1,
	90:  2,
	180: 2,
	365: 3,
}

// OverallQuorum is how many primary dimensions must be active on a day for
// the synthetic overall dimension to count that day as active.
const OverallQuorum = 3

// Status is the derived lifecycle state of a streak as of a given day.
type Status int

const (
	Inactive Status = iota
	Active
	AtRisk
)

// String returns a human label for the status.
func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case AtRisk:
		return "at_risk"
	default:
		return "inactive"
	}
}

// State is the cached streak row for one dimension. It is a materialized
// view over the event log's activity-day set, never a source of truth;
// Rebuild re-derives the streak fields from scratch.
type State struct {
	Dimension        dimension.Dimension
	Current          int       // consecutive days, 0 when inactive
	Longest          int       // never decreases, always >= Current after updates
	LastActiveDay    types.Day // zero value means no activity ever
	StartedDay       types.Day // first day of the current run
	TotalActiveDays  int       // distinct days with real activity
	FreezesAvailable int       // bounded [0, MaxFreezes]
	FreezesUsed      int
}

// StatusOn reports the lifecycle state as of the given day.
func (s *State) StatusOn(asOf types.Day) Status {
	if s.Current == 0 {
		return Inactive
	}
	switch asOf - s.LastActiveDay {
	case 0:
		return Active
	case 1:
		return AtRisk
	default:
		return Inactive
	}
}

// RecordActivity folds one qualifying activity day into the state and
// returns the transition it produced, or nil when the day was already
// recorded (idempotent per calendar day).
//
// A gap of two or more days means the caller recorded activity after the
// daily sweep was missed: a freeze bridges the gap if one is available,
// otherwise the prior streak is reported broken and a new one starts at 1.
func (s *State) RecordActivity(userID string, day types.Day) *model.StreakEvent {
	if s.TotalActiveDays > 0 && day == s.LastActiveDay {
		return nil // same-day repeat
	}
	if s.TotalActiveDays > 0 && day < s.LastActiveDay {
		return nil // out-of-order history replay; the rebuild path handles these
	}

	prev := s.Current
	ev := &model.StreakEvent{
		UserID:    userID,
		Dimension: s.Dimension,
		Prev:      prev,
		Day:       day,
	}

	switch {
	case s.Current == 0:
		s.Current = 1
		s.StartedDay = day
		ev.Kind = model.StreakStarted
		ev.Reason = "first qualifying activity"
	case day-s.LastActiveDay == 1:
		s.Current++
		ev.Kind = model.StreakExtended
	case s.FreezesAvailable > 0 && day-s.LastActiveDay == 2:
		// Freeze consumption and the increment commit together; the caller
		// persists the whole row in one transaction.
		s.FreezesAvailable--
		s.FreezesUsed++
		s.Current++
		ev.Kind = model.StreakFrozen
		ev.FrozenUsed = true
		ev.Reason = "freeze bridged one missed day"
	default:
		s.Current = 1
		s.StartedDay = day
		ev.Kind = model.StreakBroken
		ev.Reason = fmt.Sprintf("gap of %d days", day-s.LastActiveDay)
	}

	s.LastActiveDay = day
	s.TotalActiveDays++
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	s.earnFreezes()

	ev.Current = s.Current
	return ev
}

// CheckExpired is the daily sweep step for one dimension. A gap of exactly
// one day is still within grace (AtRisk through end of day). A gap of two
// days auto-consumes a freeze when one is available, advancing LastActiveDay
// over the bridged day so a re-run of the same sweep is a no-op. Larger gaps,
// or a gap of two with no freeze, break the streak.
func (s *State) CheckExpired(userID string, asOf types.Day) *model.StreakEvent {
	if s.Current == 0 {
		return nil
	}
	gap := asOf - s.LastActiveDay
	if gap <= 1 {
		return nil
	}

	prev := s.Current
	if gap == 2 && s.FreezesAvailable > 0 {
		s.FreezesAvailable--
		s.FreezesUsed++
		s.LastActiveDay++ // mark the bridged day; does not count as real activity
		return &model.StreakEvent{
			UserID:     userID,
			Dimension:  s.Dimension,
			Kind:       model.StreakFrozen,
			Prev:       prev,
			Current:    s.Current,
			Day:        asOf,
			FrozenUsed: true,
			Reason:     "freeze bridged one missed day",
		}
	}

	s.Current = 0
	s.StartedDay = 0
	return &model.StreakEvent{
		UserID:    userID,
		Dimension: s.Dimension,
		Kind:      model.StreakBroken,
		Prev:      prev,
		Current:   0,
		Day:       asOf,
		Reason:    fmt.Sprintf("no activity for %d days", gap),
	}
}

// earnFreezes credits milestone freezes when the current length lands
// exactly on an award threshold.
func (s *State) earnFreezes() {
	award, ok := freezeAwards[s.Current]
	if !ok {
		return
	}
	s.FreezesAvailable += award
	if s.FreezesAvailable > MaxFreezes {
		s.FreezesAvailable = MaxFreezes
	}
}
