package sla

import (
	"math/rand"
	"testing"
	"time"

	"github.com/ligoj/plugin-bt/internal/domain"
)

const (
	hour = int64(time.Hour / time.Millisecond)
	day  = domain.DayMillis
)

// 2014-03-01 is a Saturday, 2014-03-02 a Sunday, 2014-03-03 a Monday.
func date(y int, m time.Month, d int, clock ...int) time.Time {
	var hh, mm, ss int
	if len(clock) > 0 {
		hh = clock[0]
	}
	if len(clock) > 1 {
		mm = clock[1]
	}
	if len(clock) > 2 {
		ss = clock[2]
	}
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

// newRanges builds business-hour ranges from start/end hour couples.
func newRanges(hours ...int) []domain.BusinessHourRange {
	var out []domain.BusinessHourRange
	for i := 0; i < len(hours); i += 2 {
		out = append(out, domain.BusinessHourRange{Start: int64(hours[i]) * hour, End: int64(hours[i+1]) * hour})
	}
	return out
}

func checkCursor(t *testing.T, c *Cursor, wantDay time.Time, wantTime int64) {
	t.Helper()
	if !c.Cursor().Equal(wantDay) {
		t.Fatalf("cursor day = %v, want %v", c.Cursor(), wantDay)
	}
	if c.CursorTime() != wantTime {
		t.Fatalf("cursor time = %d, want %d", c.CursorTime(), wantTime)
	}
}

func TestResetWeekday(t *testing.T) {
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 3))
	checkCursor(t, c, date(2014, 3, 3), 0)
}

func TestResetSaturday(t *testing.T) {
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 1))
	checkCursor(t, c, date(2014, 3, 3), 0)
}

func TestResetSunday(t *testing.T) {
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 2))
	checkCursor(t, c, date(2014, 3, 3), 0)
}

func TestResetHoliday(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 1), date(2014, 3, 3), date(2014, 3, 5)}
	c := NewCursor(holidays, nil)
	c.Reset(date(2014, 3, 1))
	checkCursor(t, c, date(2014, 3, 4), 0)
}

func TestMoveForwardToSame(t *testing.T) {
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 3)); got != 0 {
		t.Fatalf("delta = %d, want 0", got)
	}
	checkCursor(t, c, date(2014, 3, 3), 0)
}

func TestMoveForwardToPlusOneMilli(t *testing.T) {
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 3))
	end := date(2014, 3, 3).Add(time.Millisecond)
	if got := c.MoveForwardTo(end); got != 1 {
		t.Fatalf("delta = %d, want 1", got)
	}
	checkCursor(t, c, date(2014, 3, 3), 1)
}

func TestMoveForwardToMidnightLessOne(t *testing.T) {
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 3))
	end := date(2014, 3, 4).Add(-time.Millisecond)
	if got := c.MoveForwardTo(end); got != day-1 {
		t.Fatalf("delta = %d, want %d", got, day-1)
	}
	checkCursor(t, c, date(2014, 3, 3), day-1)
}

func TestMoveForwardToOneWeek(t *testing.T) {
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 10)); got != 5*day {
		t.Fatalf("delta = %d, want %d", got, 5*day)
	}
	checkCursor(t, c, date(2014, 3, 10), 0)
}

func TestMoveForwardToPartialWeek(t *testing.T) {
	// Target falls on Saturday: the five business days are consumed and the
	// cursor lands on the following Monday.
	c := NewCursor(nil, nil)
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 8)); got != 5*day {
		t.Fatalf("delta = %d, want %d", got, 5*day)
	}
	checkCursor(t, c, date(2014, 3, 10), 0)
}

func TestMoveForwardToWeekWithHolidays(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 4), date(2014, 3, 6), date(2014, 3, 10)}
	c := NewCursor(holidays, nil)
	c.Reset(date(2014, 3, 1))
	if got := c.MoveForwardTo(date(2014, 3, 8)); got != 3*day {
		t.Fatalf("delta = %d, want %d", got, 3*day)
	}
	checkCursor(t, c, date(2014, 3, 11), 0)
}

func TestResetBusinessHoursFromWeekend(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 1))
	checkCursor(t, c, date(2014, 3, 3), 9*hour)
}

func TestResetBusinessHoursAfterLastRange(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3, 19, 0, 0))
	checkCursor(t, c, date(2014, 3, 4), 9*hour)
}

func TestResetBusinessHoursInsideGap(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3, 13, 59, 59))
	checkCursor(t, c, date(2014, 3, 3), 14*hour)
}

func TestResetBusinessHoursInsideRange(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3, 15, 0, 0))
	checkCursor(t, c, date(2014, 3, 3), 15*hour)
}

func TestResetHolidayThenBusinessHours(t *testing.T) {
	c := NewCursor([]time.Time{date(2014, 3, 3)}, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 1, 19, 0, 0))
	checkCursor(t, c, date(2014, 3, 4), 9*hour)
}

func TestMoveForwardToSameDayBusinessHour(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 3)); got != 0 {
		t.Fatalf("delta = %d, want 0", got)
	}
	checkCursor(t, c, date(2014, 3, 3), 9*hour)
}

func TestMoveForwardByWithinDay(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardBy(2 * hour); !got.Equal(date(2014, 3, 3, 11, 0, 0)) {
		t.Fatalf("position = %v, want %v", got, date(2014, 3, 3, 11, 0, 0))
	}
	checkCursor(t, c, date(2014, 3, 3), 11*hour)
}

func TestMoveForwardToNextDayMidnight(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 4)); got != 7*hour {
		t.Fatalf("delta = %d, want %d", got, 7*hour)
	}
	checkCursor(t, c, date(2014, 3, 4), 9*hour)
}

func TestMoveForwardByToNextDay(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardBy(7 * hour); !got.Equal(date(2014, 3, 4, 9, 0, 0)) {
		t.Fatalf("position = %v, want %v", got, date(2014, 3, 4, 9, 0, 0))
	}
	checkCursor(t, c, date(2014, 3, 4), 9*hour)
}

func TestMoveForwardToNextDayBeforeOpening(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 4, 8, 0, 0)); got != 7*hour {
		t.Fatalf("delta = %d, want %d", got, 7*hour)
	}
	checkCursor(t, c, date(2014, 3, 4), 9*hour)
}

func TestMoveForwardToTwoDaysBeforeOpening(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 5, 8, 0, 0)); got != 14*hour {
		t.Fatalf("delta = %d, want %d", got, 14*hour)
	}
	checkCursor(t, c, date(2014, 3, 5), 9*hour)
}

func TestMoveForwardByTwoFullDays(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardBy(14 * hour); !got.Equal(date(2014, 3, 5, 9, 0, 0)) {
		t.Fatalf("position = %v, want %v", got, date(2014, 3, 5, 9, 0, 0))
	}
	checkCursor(t, c, date(2014, 3, 5), 9*hour)
}

func TestMoveForwardToNextDayInsideRange(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 4, 15, 0, 0)); got != 11*hour {
		t.Fatalf("delta = %d, want %d", got, 11*hour)
	}
	checkCursor(t, c, date(2014, 3, 4), 15*hour)
}

func TestMoveForwardToTwoDaysInsideRange(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 5, 15, 0, 0)); got != 18*hour {
		t.Fatalf("delta = %d, want %d", got, 18*hour)
	}
	checkCursor(t, c, date(2014, 3, 5), 15*hour)
}

func TestResetNightRanges(t *testing.T) {
	c := NewCursor(nil, newRanges(0, 10, 22, 24))
	c.Reset(date(2014, 3, 3, 23, 0, 0))
	checkCursor(t, c, date(2014, 3, 3), 23*hour)
	c.Reset(date(2014, 3, 3, 8, 0, 0))
	checkCursor(t, c, date(2014, 3, 3), 8*hour)
}

func TestResetNightRangesFromGap(t *testing.T) {
	c := NewCursor(nil, newRanges(0, 10, 22, 24))
	c.Reset(date(2014, 3, 3, 10, 0, 0))
	checkCursor(t, c, date(2014, 3, 3), 22*hour)
}

func TestResetNightRangesFromMidnight(t *testing.T) {
	c := NewCursor(nil, newRanges(0, 10, 22, 24))
	c.Reset(date(2014, 3, 3))
	checkCursor(t, c, date(2014, 3, 3), 0)
}

func TestMoveForwardToNightRangesSameDayGap(t *testing.T) {
	c := NewCursor(nil, newRanges(0, 10, 22, 24))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 3, 15, 0, 0)); got != 10*hour {
		t.Fatalf("delta = %d, want %d", got, 10*hour)
	}
	checkCursor(t, c, date(2014, 3, 3), 22*hour)
}

func TestMoveForwardToNightRangesSameDay(t *testing.T) {
	c := NewCursor(nil, newRanges(0, 10, 22, 24))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 3, 23, 0, 0)); got != 11*hour {
		t.Fatalf("delta = %d, want %d", got, 11*hour)
	}
	checkCursor(t, c, date(2014, 3, 3), 23*hour)
}

func TestMoveForwardToNightRangesNextDay(t *testing.T) {
	c := NewCursor(nil, newRanges(0, 10, 12, 14, 22, 24))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 4, 15, 0, 0)); got != 26*hour {
		t.Fatalf("delta = %d, want %d", got, 26*hour)
	}
	checkCursor(t, c, date(2014, 3, 4), 22*hour)
}

func TestMoveForwardToNightRangesNextWeek(t *testing.T) {
	c := NewCursor(nil, newRanges(0, 10, 22, 23))
	c.Reset(date(2014, 3, 3, 7, 0, 0))

	// Mon 07:00->10:00 = 3h, Mon 22:00->23:00 = 1h, then 11h per business day
	// for Tue..Mon (5 days, the weekend is skipped)
	want := (3 + 1 + 5*11) * hour
	if got := c.MoveForwardTo(date(2014, 3, 10, 23, 30, 0)); got != want {
		t.Fatalf("delta = %d, want %d", got, want)
	}
	checkCursor(t, c, date(2014, 3, 11), 0)
}

func TestMoveForwardToAcrossClosedStretch(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 6), date(2014, 3, 7)}
	c := NewCursor(holidays, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 5, 19, 0, 0))
	if got := c.MoveForwardTo(date(2014, 3, 8, 8, 0, 0)); got != 0 {
		t.Fatalf("delta = %d, want 0", got)
	}
	// 03-08 Sat, 03-09 Sun
	checkCursor(t, c, date(2014, 3, 10), 9*hour)
}

func TestMoveForwardToAcrossClosedStretchHolidayAfterWeekend(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 6), date(2014, 3, 7), date(2014, 3, 10)}
	c := NewCursor(holidays, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 5, 19, 0, 0))
	if got := c.MoveForwardTo(date(2014, 3, 8, 8, 0, 0)); got != 0 {
		t.Fatalf("delta = %d, want 0", got)
	}
	checkCursor(t, c, date(2014, 3, 11), 9*hour)
}

func TestMoveForwardToAdjacentRanges(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 6), date(2014, 3, 7)}
	c := NewCursor(holidays, newRanges(9, 12, 14, 16, 16, 18))
	c.Reset(date(2014, 3, 5, 17, 59, 59))
	if got := c.MoveForwardTo(date(2014, 3, 8, 8, 0, 0)); got != 1000 {
		t.Fatalf("delta = %d, want 1000", got)
	}
	checkCursor(t, c, date(2014, 3, 10), 9*hour)
}

func TestMoveForwardToEmptyTrailingRange(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 6), date(2014, 3, 7)}
	c := NewCursor(holidays, newRanges(9, 12, 14, 18, 24, 24))
	c.Reset(date(2014, 3, 5, 17, 59, 59))
	if got := c.MoveForwardTo(date(2014, 3, 8, 8, 0, 0)); got != 1000 {
		t.Fatalf("delta = %d, want 1000", got)
	}
	checkCursor(t, c, date(2014, 3, 10), 9*hour)
}

func TestMoveForwardToOneWeekBusinessHours(t *testing.T) {
	// Mon 00:00 to next Mon 15:00 with 9-12/14-18: five 7h days plus 4h of
	// the final Monday.
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	if got := c.MoveForwardTo(date(2014, 3, 10, 15, 0, 0)); got != 5*7*hour+4*hour {
		t.Fatalf("delta = %d, want %d", got, 5*7*hour+4*hour)
	}
	checkCursor(t, c, date(2014, 3, 10), 15*hour)
}

func TestMoveForwardToSplitEqualsOneJump(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 4), date(2014, 3, 6)}
	for year := 2014; year < 2030; year++ {
		holidays = append(holidays, date(year, 3, 10))
	}
	ranges := newRanges(9, 12, 14, 18)

	last := date(2014, 3, 3)
	rnd := rand.New(rand.NewSource(1))
	instants := make([]time.Time, 0, 2000)
	for i := 0; i < 2000; i++ {
		last = last.Add(time.Duration(2500+rnd.Int63n(2*day-50)) * time.Millisecond)
		instants = append(instants, last)
	}

	split := NewCursor(holidays, ranges)
	split.Reset(date(2014, 3, 3))
	var sum int64
	for _, instant := range instants {
		d := split.MoveForwardTo(instant)
		if d < 0 {
			t.Fatalf("negative delta %d at %v", d, instant)
		}
		sum += d
	}

	jump := NewCursor(holidays, ranges)
	jump.Reset(date(2014, 3, 3))
	if total := jump.MoveForwardTo(instants[len(instants)-1]); total != sum {
		t.Fatalf("split sum %d != single jump %d", sum, total)
	}
}

func TestMoveForwardByInverseOfMoveForwardTo(t *testing.T) {
	holidays := []time.Time{date(2014, 3, 6)}
	ranges := newRanges(9, 12, 14, 18)
	for _, target := range []time.Time{
		date(2014, 3, 3, 15, 30, 0),
		date(2014, 3, 5, 9, 0, 1),
		date(2014, 3, 12, 17, 59, 59),
	} {
		measure := NewCursor(holidays, ranges)
		measure.Reset(date(2014, 3, 3))
		elapsed := measure.MoveForwardTo(target)

		apply := NewCursor(holidays, ranges)
		apply.Reset(date(2014, 3, 3))
		got := apply.MoveForwardBy(elapsed)

		snap := NewCursor(holidays, ranges)
		snap.Reset(target)
		if !got.Equal(snap.Position()) {
			t.Fatalf("moveForwardBy(%d) = %v, want %v", elapsed, got, snap.Position())
		}
	}
}

func TestMoveForwardToBackwardInstantKeepsState(t *testing.T) {
	c := NewCursor(nil, newRanges(9, 12, 14, 18))
	c.Reset(date(2014, 3, 3))
	c.MoveForwardTo(date(2014, 3, 3, 15, 0, 0))
	if got := c.MoveForwardTo(date(2014, 3, 3, 10, 0, 0)); got != 0 {
		t.Fatalf("delta = %d, want 0", got)
	}
	checkCursor(t, c, date(2014, 3, 3), 15*hour)
	// Later forward movement still measures from the untouched position
	if got := c.MoveForwardTo(date(2014, 3, 3, 16, 0, 0)); got != 1*hour {
		t.Fatalf("delta = %d, want %d", got, 1*hour)
	}
}
