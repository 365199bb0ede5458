package rating

import "github.com/okian/ascent/internal/domain/dimension"

// BonusRule reads one named auxiliary signal and contributes a bounded bonus
// when the signal meets its threshold.
type BonusRule struct {
	Key       string
	Threshold float64
	Bonus     int
	Reason    string
}

// DimensionRules is the fixed regression policy for one axis. Thresholds,
// grace periods, and rates are constants, not user-configurable; external
// consumers depend on these exact values.
type DimensionRules struct {
	// ImproveThreshold: recent/baseline ratio must exceed 1+x to earn the
	// performance gain.
	ImproveThreshold float64
	// DropThreshold: ratio at or below 1-x incurs the performance loss.
	// Zero disables the drop rule (decay-resistant axes).
	DropThreshold float64
	// PerfWeight scales both performance contributions.
	PerfWeight float64
	// GraceDays of inactivity before the decay penalty starts.
	GraceDays int
	// InactivityRate is the per-day fraction of the current rating lost
	// past the grace period.
	InactivityRate float64
	// Bonuses are auxiliary-signal rules applied on top.
	Bonuses []BonusRule
}

// rules is the per-dimension policy table. The synthetic overall axis has no
// entry: it carries a rating but is never regressed directly.
var rules = map[dimension.Dimension]DimensionRules{
	dimension.Cognitive: {
		ImproveThreshold: 0.10,
		DropThreshold:    0.40, // 3-day rolling average collapse
		PerfWeight:       1.0,
		GraceDays:        3,
		InactivityRate:   0.05,
		Bonuses: []BonusRule{
			{Key: "deep_work_minutes", Threshold: 120, Bonus: 8, Reason: "sustained deep work"},
		},
	},
	dimension.Creative: {
		ImproveThreshold: 0.10,
		DropThreshold:    0.50, // 30d output vs 60d window
		PerfWeight:       1.0,
		GraceDays:        7,
		InactivityRate:   0.03,
	},
	dimension.Physiological: {
		ImproveThreshold: 0.10,
		DropThreshold:    0.15, // HRV against the 7-day baseline
		PerfWeight:       1.0,
		GraceDays:        2,
		InactivityRate:   0.04,
		Bonuses: []BonusRule{
			{Key: "hrv_ratio", Threshold: 1.05, Bonus: 8, Reason: "hrv above baseline"},
		},
	},
	dimension.Behavioral: {
		ImproveThreshold: 0.10,
		DropThreshold:    0.30, // 7-day completion window
		PerfWeight:       1.0,
		GraceDays:        2,
		InactivityRate:   0.06,
		Bonuses: []BonusRule{
			{Key: "engagement_rate", Threshold: 0.8, Bonus: 10, Reason: "high engagement"},
		},
	},
	dimension.Knowledge: {
		ImproveThreshold: 0.10,
		PerfWeight:       1.0,
		GraceDays:        30, // decay-resistant
		InactivityRate:   0.01,
	},
	dimension.Reflection: {
		ImproveThreshold: 0.10,
		PerfWeight:       1.0,
		GraceDays:        7,
		InactivityRate:   0.02 / 7, // 2% per week, applied per day
	},
}

// Rules returns the policy for a dimension. The second return is false for
// axes without a regression policy (the synthetic overall axis).
func Rules(d dimension.Dimension) (DimensionRules, bool) {
	r, ok := rules[d]
	return r, ok
}
