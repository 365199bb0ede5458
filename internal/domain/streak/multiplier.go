package streak

// Tier is one row of the XP multiplier step table.
type Tier struct {
	MinDays    int
	Multiplier float64
	Name       string
}

// tiers is sorted ascending by MinDays. Multiplier(d) is the row with the
// highest threshold <= d; no interpolation.
var tiers = []Tier{
	{0, 1.0, "none"},
	{3, 1.1, "kindling"},
	{7, 1.25, "flame"},
	{14, 1.5, "blaze"},
	{30, 1.75, "inferno"},
	{90, 2.0, "eternal"},
}

// Multiplier returns the XP multiplier for a streak of the given length.
func Multiplier(days int) float64 {
	m, _ := MultiplierTier(days)
	return m
}

// MultiplierTier returns the multiplier and the tier name for a streak
// length. Negative lengths are treated as zero.
func MultiplierTier(days int) (float64, string) {
	cur := tiers[0]
	for _, t := range tiers[1:] {
		if days < t.MinDays {
			break
		}
		cur = t
	}
	return cur.Multiplier, cur.Name
}

// Tiers returns a copy of the multiplier table, for display surfaces.
func Tiers() []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return out
}
