package leveling_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/okian/ascent/internal/domain/dimension"
	"github.com/okian/ascent/internal/domain/leveling"
	. "github.com/smartystreets/goconvey/convey"
)

func TestXPCurve(t *testing.T) {
	Convey("Given the XP curve", t, func() {
		Convey("When computing level thresholds", func() {
			So(leveling.XPRequiredForLevel(1), ShouldEqual, 0)
			So(leveling.XPRequiredForLevel(2), ShouldEqual, 50)
			So(leveling.XPRequiredForLevel(3), ShouldEqual, 200)
			So(leveling.XPRequiredForLevel(10), ShouldEqual, 4050)
			So(leveling.XPRequiredForLevel(100), ShouldEqual, 490050)
		})

		Convey("When level is below one", func() {
			So(leveling.XPRequiredForLevel(0), ShouldEqual, 0)
			So(leveling.XPRequiredForLevel(-5), ShouldEqual, 0)
		})

		Convey("Then the curve and its inverse round-trip exactly", func() {
			for level := 1; level <= leveling.MaxLevel; level++ {
				So(leveling.LevelForXP(leveling.XPRequiredForLevel(level)), ShouldEqual, level)
			}
		})

		Convey("Then one XP below a threshold stays at the previous level", func() {
			So(leveling.LevelForXP(leveling.XPRequiredForLevel(5)-1), ShouldEqual, 4)
			So(leveling.LevelForXP(leveling.XPRequiredForLevel(50)-1), ShouldEqual, 49)
		})

		Convey("When XP is zero or negative", func() {
			So(leveling.LevelForXP(0), ShouldEqual, 1)
			So(leveling.LevelForXP(-100), ShouldEqual, 1)
		})

		Convey("When XP exceeds the top threshold", func() {
			So(leveling.LevelForXP(100_000_000), ShouldEqual, leveling.MaxLevel)
		})

		Convey("Then the level function is monotonic non-decreasing", func() {
			prev := 1
			for xp := int64(0); xp <= 20000; xp += 37 {
				level := leveling.LevelForXP(xp)
				So(level, ShouldBeGreaterThanOrEqualTo, prev)
				prev = level
			}
		})
	})
}

func TestProgressInLevel(t *testing.T) {
	Convey("Given progress within a level", t, func() {
		Convey("When at a threshold", func() {
			So(leveling.ProgressInLevel(0), ShouldEqual, 0)
			So(leveling.ProgressInLevel(50), ShouldEqual, 0)
		})

		Convey("When halfway through level one", func() {
			So(leveling.ProgressInLevel(25), ShouldEqual, 0.5)
		})

		Convey("When at the level cap", func() {
			So(leveling.ProgressInLevel(leveling.XPRequiredForLevel(leveling.MaxLevel)), ShouldEqual, 1)
			So(leveling.ProgressInLevel(100_000_000), ShouldEqual, 1)
		})

		Convey("Then progress stays in [0, 1)", func() {
			for xp := int64(0); xp <= 10000; xp += 113 {
				p := leveling.ProgressInLevel(xp)
				So(p, ShouldBeGreaterThanOrEqualTo, 0)
				So(p, ShouldBeLessThan, 1)
			}
		})
	})
}

func TestBaseXPForAction(t *testing.T) {
	Convey("Given the action table", t, func() {
		Convey("When looking up known actions", func() {
			xp, dim, err := leveling.BaseXPForAction("focus_session")
			So(err, ShouldBeNil)
			So(xp, ShouldEqual, 50)
			So(dim, ShouldEqual, dimension.Cognitive)

			xp, dim, err = leveling.BaseXPForAction("weekly_review")
			So(err, ShouldBeNil)
			So(xp, ShouldEqual, 90)
			So(dim, ShouldEqual, dimension.Reflection)
		})

		Convey("When looking up an unknown action", func() {
			_, _, err := leveling.BaseXPForAction("time_travel")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, leveling.ErrUnknownAction), ShouldBeTrue)
		})

		Convey("Then every listed action resolves", func() {
			names := leveling.Actions()
			So(len(names), ShouldEqual, 12)
			So(sort.StringsAreSorted(names), ShouldBeTrue)
			for _, a := range names {
				xp, dim, err := leveling.BaseXPForAction(a)
				So(err, ShouldBeNil)
				So(xp, ShouldBeGreaterThan, 0)
				So(dim.IsPrimary(), ShouldBeTrue)
			}
		})
	})
}

func TestCalculateXP(t *testing.T) {
	Convey("Given the XP award calculation", t, func() {
		Convey("When no streak is active", func() {
			final, mult, err := leveling.CalculateXP(50, 0)
			So(err, ShouldBeNil)
			So(final, ShouldEqual, 50)
			So(mult, ShouldEqual, 1.0)
		})

		Convey("When a week-long streak applies", func() {
			final, mult, err := leveling.CalculateXP(50, 7)
			So(err, ShouldBeNil)
			So(mult, ShouldEqual, 1.25)
			So(final, ShouldEqual, 62) // floor(50 * 1.25) = 62
		})

		Convey("When the multiplied amount is fractional", func() {
			final, _, err := leveling.CalculateXP(25, 3)
			So(err, ShouldBeNil)
			So(final, ShouldEqual, 27) // floor(25 * 1.1)
		})

		Convey("When the base is zero", func() {
			final, _, err := leveling.CalculateXP(0, 30)
			So(err, ShouldBeNil)
			So(final, ShouldEqual, 0)
		})

		Convey("When the base is positive the award is never zero", func() {
			final, _, err := leveling.CalculateXP(1, 0)
			So(err, ShouldBeNil)
			So(final, ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("When the base is negative", func() {
			_, _, err := leveling.CalculateXP(-10, 0)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, leveling.ErrNegativeXP), ShouldBeTrue)
		})
	})
}
