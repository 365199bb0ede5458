// Package rating implements the NELO regression engine: an ELO-style
// per-dimension rating that rises with above-baseline performance and decays
// with inactivity or below-baseline performance.
//
// Everything here is pure; the caller owns persistence, clamping to the
// rating bounds, and suppressing zero-change writes.
package rating

import (
	"fmt"

	"github.com/okian/ascent/internal/domain/dimension"
)

// Rating bounds and defaults.
const (
	// MinRating is the hard floor of the NELO scale.
	MinRating = 800

	// MaxRating is the hard ceiling of the NELO scale.
	MaxRating = 2400

	// InitialRating is the provisional rating for a fresh dimension.
	InitialRating = 1200
)

// kBands maps rating bands to the K-factor, the volatility multiplier
// controlling how large a single update can be. 8 bands, from highly
// volatile below 1000 down to near-stable at 2200+, mirroring chess rating
// systems.
var kBands = []struct {
	floor int
	k     int
}{
	{2200, 8},
	{2000, 10},
	{1800, 12},
	{1600, 16},
	{1400, 20},
	{1200, 24},
	{1000, 32},
	{0, 40},
}

// KFactor returns the volatility factor for the band containing rating.
func KFactor(rating int) int {
	for _, b := range kBands {
		if rating >= b.floor {
			return b.k
		}
	}
	return kBands[len(kBands)-1].k
}

// Clamp restricts a rating to [MinRating, MaxRating].
func Clamp(r int) int {
	if r < MinRating {
		return MinRating
	}
	if r > MaxRating {
		return MaxRating
	}
	return r
}

// Metrics is the external aggregator's per-call input for one dimension.
// Zero or missing fields mean "no signal" and skip the corresponding term;
// they are never treated as a zero measurement.
type Metrics struct {
	RecentAvg       float64            // recent-window average
	BaselineAvg     float64            // baseline-window average
	DaysSinceActive int                // -1 when unknown
	Additional      map[string]float64 // named auxiliary signals by fixed key
}

// Change is the outcome of one engine invocation: the truncated integer
// delta, the K-factor used, and human-readable reasons for each
// contribution. A zero delta must not trigger a write or an emitted event.
type Change struct {
	Delta   int
	KFactor int
	Reasons []string
}

// ChangeFor computes the rating delta for one dimension from its current
// rating and fresh metrics. Contributions:
//
//   - performance: recent/baseline ratio against the dimension's
//     improvement and drop thresholds, each worth ±K × |ratio-1| × weight
//   - inactivity: rating × rate × (daysSinceActive - grace) past the grace
//     period, monotonically increasing with the gap
//   - bonuses: bounded additions read from Additional by fixed key
func ChangeFor(d dimension.Dimension, current int, m Metrics) Change {
	dim, ok := Rules(d)
	if !ok {
		return Change{KFactor: KFactor(current)} // no rule set, e.g. the synthetic overall axis
	}
	k := KFactor(current)
	var total float64
	var reasons []string

	if m.RecentAvg > 0 && m.BaselineAvg > 0 {
		ratio := m.RecentAvg / m.BaselineAvg
		switch {
		case ratio >= 1+dim.ImproveThreshold:
			gain := float64(k) * (ratio - 1) * dim.PerfWeight
			total += gain
			reasons = append(reasons, fmt.Sprintf("performance +%.0f%% above baseline", (ratio-1)*100))
		case dim.DropThreshold > 0 && ratio <= 1-dim.DropThreshold:
			loss := float64(k) * (1 - ratio) * dim.PerfWeight
			total -= loss
			reasons = append(reasons, fmt.Sprintf("performance -%.0f%% below baseline", (1-ratio)*100))
		}
	}

	if p := inactivityPenalty(dim, current, m.DaysSinceActive); p > 0 {
		total -= p
		reasons = append(reasons, fmt.Sprintf("inactive for %d days", m.DaysSinceActive))
	}

	for _, b := range dim.Bonuses {
		v, ok := m.Additional[b.Key]
		if !ok {
			continue // no signal
		}
		if v >= b.Threshold {
			total += float64(b.Bonus)
			reasons = append(reasons, b.Reason)
		}
	}

	return Change{Delta: int(total), KFactor: k, Reasons: reasons}
}

// DimensionProgress is the sweep-time view of one dimension: its current
// rating and how long it has been inactive.
type DimensionProgress struct {
	Rating          int
	DaysSinceActive int
}

// DailyRegression is the batch form used by the scheduler. It applies only
// the inactivity penalty; performance-ratio contributions need fresh metrics
// the sweep does not fetch. Dimensions still within grace are omitted.
func DailyRegression(progress map[dimension.Dimension]DimensionProgress) map[dimension.Dimension]Change {
	out := make(map[dimension.Dimension]Change)
	for d, p := range progress {
		rules, ok := Rules(d)
		if !ok {
			continue
		}
		penalty := inactivityPenalty(rules, p.Rating, p.DaysSinceActive)
		if penalty <= 0 {
			continue
		}
		delta := -int(penalty)
		if delta == 0 {
			continue
		}
		out[d] = Change{
			Delta:   delta,
			KFactor: KFactor(p.Rating),
			Reasons: []string{fmt.Sprintf("inactive for %d days", p.DaysSinceActive)},
		}
	}
	return out
}

// inactivityPenalty returns rating × rate × days-past-grace, or 0 inside the
// grace period. The penalty grows monotonically with the gap.
func inactivityPenalty(dim DimensionRules, rating, daysSince int) float64 {
	if daysSince < 0 || daysSince <= dim.GraceDays {
		return 0
	}
	return float64(rating) * dim.InactivityRate * float64(daysSince-dim.GraceDays)
}
