// Package leveling converts accumulated XP into discrete levels and applies
// streak multipliers to base awards. Every function is total over its valid
// input domain: non-negative XP and known action kinds.
package leveling

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/streak"
)

// Curve constants. XPRequiredForLevel(L) = xpCurveBase * (L-1)^2 grows
// super-linearly; the inverse is an integer square root, which keeps the
// round-trip invariant LevelForXP(XPRequiredForLevel(L)) == L exact.
const (
	xpCurveBase = 50
	MaxLevel    = 100
)

// actionSpec is one row of the base-XP lookup table.
type actionSpec struct {
	xp  int64
	dim dimension.Dimension
}

// actions is the fixed action-kind table. Closed set; unknown kinds are a
// caller contract violation.
var actions = map[string]actionSpec{
	"focus_session":    {50, dimension.Cognitive},
	"deep_work_block":  {80, dimension.Cognitive},
	"idea_captured":    {20, dimension.Creative},
	"creative_session": {60, dimension.Creative},
	"workout_logged":   {60, dimension.Physiological},
	"sleep_logged":     {30, dimension.Physiological},
	"habit_completed":  {25, dimension.Behavioral},
	"routine_finished": {40, dimension.Behavioral},
	"article_read":     {30, dimension.Knowledge},
	"course_lesson":    {70, dimension.Knowledge},
	"journal_entry":    {40, dimension.Reflection},
	"weekly_review":    {90, dimension.Reflection},
}

// Actions returns the known action kinds in lexical order.
func Actions() []string {
	out := make([]string, 0, len(actions))
	for a := range actions {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// BaseXPForAction looks up the base XP amount and target dimension for an
// action kind. Pure table lookup, no side effects.
func BaseXPForAction(action string) (int64, dimension.Dimension, error) {
	spec, ok := actions[action]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return spec.xp, spec.dim, nil
}

// XPRequiredForLevel returns the cumulative XP threshold at which the given
// level begins. Level 1 starts at zero.
func XPRequiredForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	n := int64(level - 1)
	return xpCurveBase * n * n
}

// LevelForXP maps cumulative XP to a level. Monotonic non-decreasing step
// function, idempotent under repeated evaluation, capped at MaxLevel.
func LevelForXP(totalXP int64) int {
	if totalXP <= 0 {
		return 1
	}
	level := 1 + isqrt(totalXP/xpCurveBase)
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// ProgressInLevel returns the fraction [0, 1) of progress between the XP
// threshold of the current level and the next. At MaxLevel it saturates at 1.
func ProgressInLevel(totalXP int64) float64 {
	if totalXP < 0 {
		totalXP = 0
	}
	level := LevelForXP(totalXP)
	if level >= MaxLevel {
		return 1
	}
	lo := XPRequiredForLevel(level)
	hi := XPRequiredForLevel(level + 1)
	return float64(totalXP-lo) / float64(hi-lo)
}

// CalculateXP applies the streak multiplier to a base amount and returns the
// final integer XP, floor-rounded. Never negative; never zero when the base
// is positive. Negative bases are rejected, not clamped.
func CalculateXP(baseXP int64, streakDays int) (int64, float64, error) {
	if baseXP < 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrNegativeXP, baseXP)
	}
	mult := streak.Multiplier(streakDays)
	final := int64(math.Floor(float64(baseXP) * mult))
	if baseXP > 0 && final < 1 {
		final = 1
	}
	return final, mult, nil
}

// isqrt is the floor integer square root.
func isqrt(n int64) int {
	if n <= 0 {
		return 0
	}
	r := int64(math.Sqrt(float64(n)))
	for r*r > n {
		r--
	}
	for (r+1)*(r+1) <= n {
		r++
	}
	return int(r)
}
