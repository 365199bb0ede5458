// Package types contains common types used across the application
package types

import "time"

// dayFormat is the canonical encoding of a calendar day.
const dayFormat = "2006-01-02"

// Day is a calendar day, counted in whole days since the Unix epoch.
// All streak and regression gap arithmetic is calendar-day based; wall-clock
// 24h comparisons are never used.
type Day int

// DayOf truncates t to its calendar day.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Day(midnight.Unix() / (24 * 60 * 60))
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Unix(int64(d)*24*60*60, 0).UTC()
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return d.Time().Format(dayFormat)
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return 0, err
	}
	return DayOf(t), nil
}

// DimensionSnapshot is the read shape for one axis of a user's progression.
type DimensionSnapshot struct {
	Dimension        string  `json:"dimension"`
	XP               int64   `json:"xp"`
	Level            int     `json:"level"`
	Progress         float64 `json:"progress"`
	NELO             int     `json:"nelo"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	Multiplier       float64 `json:"multiplier"`
	MultiplierTier   string  `json:"multiplier_tier"`
	FreezesAvailable int     `json:"freezes_available"`
	FreezesUsed      int     `json:"freezes_used"`
	LastActiveDay    string  `json:"last_active_day,omitempty"`
}

// Snapshot is the read shape for a user's full progression state.
type Snapshot struct {
	UserID       string              `json:"user_id"`
	TotalXP      int64               `json:"total_xp"`
	OverallLevel int                 `json:"overall_level"`
	Dimensions   []DimensionSnapshot `json:"dimensions"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
