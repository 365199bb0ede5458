// Package dimension defines the closed set of skill axes tracked by the
// progression engines. The set is fixed; callers iterate Primaries() and
// switch exhaustively rather than dispatching on strings.
package dimension

import "fmt"

// Dimension identifies one skill axis. Overall is synthetic: it aggregates
// quorum activity across the six primary axes and is never awarded directly.
type Dimension int

const (
	Cognitive Dimension = iota
	Creative
	Physiological
	Behavioral
	Knowledge
	Reflection
	Overall
)

// PrimaryCount is the number of non-synthetic axes.
const PrimaryCount = 6

var names = [...]string{
	Cognitive:     "cognitive",
	Creative:      "creative",
	Physiological: "physiological",
	Behavioral:    "behavioral",
	Knowledge:     "knowledge",
	Reflection:    "reflection",
	Overall:       "overall",
}

// String returns the canonical lowercase name.
func (d Dimension) String() string {
	if d < Cognitive || d > Overall {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return names[d]
}

// Valid reports whether d is a member of the closed set.
func (d Dimension) Valid() bool {
	return d >= Cognitive && d <= Overall
}

// IsPrimary reports whether d is one of the six real axes (not Overall).
func (d Dimension) IsPrimary() bool {
	return d >= Cognitive && d <= Reflection
}

// Primaries returns the six primary axes in declaration order.
func Primaries() [PrimaryCount]Dimension {
	return [PrimaryCount]Dimension{Cognitive, Creative, Physiological, Behavioral, Knowledge, Reflection}
}

// All returns every axis including Overall.
func All() [PrimaryCount + 1]Dimension {
	return [PrimaryCount + 1]Dimension{Cognitive, Creative, Physiological, Behavioral, Knowledge, Reflection, Overall}
}

// Parse resolves a canonical name back to a Dimension.
// Unknown names are a caller contract violation, reported as an error.
func Parse(s string) (Dimension, error) {
	for d, name := range names {
		if s == name {
			return Dimension(d), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDimension, s)
}
