/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package sla

import (
	"time"

	"github.com/ligoj/plugin-bt/internal/domain"
)

// Cursor walks calendar time while skipping weekends, holidays and
// non-business hours, measuring or applying business-time deltas. It is a
// plain mutable struct owned by a single computation; create one per logical
// computation and never share it across goroutines.
//
// All instants are interpreted in UTC and all arithmetic is integer
// milliseconds.
type Cursor struct {
	// holidays are day-normalized, ascending. May be empty.
	holidays []time.Time

	// ranges are sorted ascending by start and non-overlapping. Never empty:
	// an empty configuration is replaced by one whole-day range.
	ranges []domain.BusinessHourRange

	// cursor is the current day, truncated to 00:00:00.000 UTC.
	cursor time.Time

	// cursorTime is the offset within cursor, in [0, DayMillis].
	cursorTime int64

	// holidayIdx advances monotonically through holidays.
	holidayIdx int

	// rangeIdx is the current business-hour range within ranges.
	rangeIdx int

	// delta accumulates during a single moveForward pass.
	delta int64
}

// NewCursor builds a cursor over the given holiday days (day-normalized,
// ascending) and business-hour ranges (sorted, non-overlapping). An empty
// range list means the whole day is business time.
func NewCursor(holidays []time.Time, ranges []domain.BusinessHourRange) *Cursor {
	if len(ranges) == 0 {
		ranges = []domain.BusinessHourRange{{Start: 0, End: domain.DayMillis}}
	}
	return &Cursor{holidays: holidays, ranges: ranges}
}

// Cursor returns the current day, truncated to its start.
func (c *Cursor) Cursor() time.Time { return c.cursor }

// CursorTime returns the millisecond offset within the current day.
func (c *Cursor) CursorTime() int64 { return c.cursorTime }

// Position returns the wall-clock instant of the cursor.
func (c *Cursor) Position() time.Time {
	return c.cursor.Add(time.Duration(c.cursorTime) * time.Millisecond)
}

// Primed reports whether Reset has been called at least once.
func (c *Cursor) Primed() bool { return !c.cursor.IsZero() }

// Reset positions the cursor at the given instant, then moves it forward to
// the closest valid business day and hour. Subsequent elapsed computations
// are relative to this position.
func (c *Cursor) Reset(instant time.Time) {
	c.cursor = dayStart(instant)
	c.holidayIdx = 0
	c.cursorTime = timeOfDay(instant)
	c.snap()
}

// MoveForwardTo accumulates the business time between the current position
// and the given instant, advancing the cursor. Returns 0 and leaves the
// cursor untouched when the instant is not after the current position;
// feeding instants that go backward is a caller error and yields no defined
// delta beyond that.
func (c *Cursor) MoveForwardTo(instant time.Time) int64 {
	c.delta = 0
	end := instant.UTC()
	endDay := dayStart(end)
	endMillis := end.UnixMilli()
	for c.cursor.UnixMilli()+c.cursorTime < endMillis {
		if c.cursor.Equal(endDay) {
			// Elapsed ranges within the same day
			c.stepTo(timeOfDay(end))
		} else {
			// Consume the rest of this day
			c.stepTo(domain.DayMillis)
		}
	}
	return c.delta
}

// MoveForwardBy consumes the given amount of business milliseconds, walking
// through business-hour ranges and skipping non-business days, and returns
// the resulting wall-clock instant.
func (c *Cursor) MoveForwardBy(ms int64) time.Time {
	remaining := ms
	for remaining > 0 {
		c.delta = 0
		if c.cursorTime+remaining < domain.DayMillis {
			c.stepTo(c.cursorTime + remaining)
		} else {
			c.stepTo(domain.DayMillis)
		}
		remaining -= c.delta
	}
	return c.Position()
}

// snap moves the cursor to the next valid business day, then business hour.
// Does not touch delta.
func (c *Cursor) snap() {
	c.snapDay()
	c.snapHour()
}

// snapDay loops until the current day is neither a weekend day nor a holiday.
// A day can match a holiday only once per pass, so this terminates.
func (c *Cursor) snapDay() {
	for {
		prev := c.cursor
		if wd := c.cursor.Weekday(); wd == time.Saturday || wd == time.Sunday {
			c.tomorrow()
		}
		c.skipHolidays()
		if c.cursor.Equal(prev) {
			return
		}
	}
}

// skipHolidays advances the holiday index past every holiday at or before the
// current day, rolling to the next day when the current day is one of them.
func (c *Cursor) skipHolidays() {
	for c.holidayIdx < len(c.holidays) {
		h := c.holidays[c.holidayIdx]
		if h.After(c.cursor) {
			// The day is before the next known holiday
			break
		}
		c.holidayIdx++
		if h.Equal(c.cursor) {
			c.tomorrow()
		}
		// Stale holiday entries are only skipped
	}
}

// snapHour scans the ranges for the closest business hour at or after the
// time cursor, rolling to the next day when the day is exhausted.
func (c *Cursor) snapHour() {
	for c.rangeIdx = 0; c.rangeIdx < len(c.ranges); c.rangeIdx++ {
		r := c.ranges[c.rangeIdx]
		if c.cursorTime <= r.Start {
			// The range ahead is the closest one
			c.cursorTime = r.Start
			return
		}
		if c.cursorTime < r.End {
			// Already inside a range
			return
		}
	}
	// Past the last range of the day
	c.tomorrow()
}

// tomorrow rolls the cursor to the next day at the first range start, then
// snaps again. Does not touch delta.
func (c *Cursor) tomorrow() {
	c.cursor = c.cursor.Add(24 * time.Hour)
	c.rangeIdx = 0
	c.cursorTime = c.ranges[0].Start
	c.snap()
}

// stepTo accumulates elapsed business time on the current day up to the given
// time of day, walking ranges from the current index. When the target lies in
// a gap before the next range, the cursor snaps to that range start with zero
// delta. When the day is exhausted the cursor rolls to the next business day.
func (c *Cursor) stepTo(target int64) {
	for c.rangeIdx < len(c.ranges) {
		r := c.ranges[c.rangeIdx]
		if c.cursorTime < r.Start {
			// Crossed a gap between ranges
			c.cursorTime = r.Start
			return
		}
		if target < r.End {
			// Target ends inside the current range
			c.delta += target - c.cursorTime
			c.cursorTime = target
			return
		}

		// Current range is fully consumed
		c.delta += r.End - c.cursorTime
		c.cursorTime = r.End
		c.rangeIdx++
	}

	// End of day reached
	c.tomorrow()
}

// dayStart truncates an instant to the start of its UTC day.
func dayStart(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// timeOfDay returns the milliseconds elapsed since the start of the instant's
// UTC day.
func timeOfDay(t time.Time) int64 {
	u := t.UTC()
	return u.UnixMilli() - dayStart(u).UnixMilli()
}
