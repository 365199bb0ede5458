package streak

import (
	"sort"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/types"
)

// LongestRun scans a set of active calendar days for the maximal run of
// consecutive days. This is the authoritative definition of the longest
// streak; the cached Longest field must never fall below it.
func LongestRun(days []types.Day) int {
	if len(days) == 0 {
		return 0
	}
	sorted := append([]types.Day(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	longest, run := 1, 1
	for i := 1; i < len(sorted); i++ {
		switch sorted[i] - sorted[i-1] {
		case 0:
			// duplicate day
		case 1:
			run++
			if run > longest {
				longest = run
			}
		default:
			run = 1
		}
	}
	return longest
}

// Rebuild re-derives the streak fields for one dimension from the event
// log's activity-day set, as of a given day. The cache row is a materialized
// view; this is its recompute contract.
//
// The freeze counters are economy state, not derivable from activity days
// alone, so Rebuild leaves them zero: the store merges the persisted
// counters back in after a recompute.
func Rebuild(dim dimension.Dimension, days []types.Day, asOf types.Day) State {
	s := State{Dimension: dim}
	if len(days) == 0 {
		return s
	}

	sorted := append([]types.Day(nil), days...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	distinct := sorted[:1]
	for _, d := range sorted[1:] {
		if d != distinct[len(distinct)-1] {
			distinct = append(distinct, d)
		}
	}

	s.TotalActiveDays = len(distinct)
	s.Longest = LongestRun(distinct)
	s.LastActiveDay = distinct[len(distinct)-1]

	// The current streak is the run ending on the last active day, but only
	// if that day is still within grace of asOf (today or yesterday).
	if asOf-s.LastActiveDay > 1 {
		return s
	}
	run := 1
	start := s.LastActiveDay
	for i := len(distinct) - 2; i >= 0; i-- {
		if distinct[i+1]-distinct[i] != 1 {
			break
		}
		run++
		start = distinct[i]
	}
	s.Current = run
	s.StartedDay = start
	return s
}
