package calendar

import (
	"strings"
	"time"
)

// GridCells is the fixed size of a month grid: 6 rows of 7 days. Six rows
// always cover a month regardless of where its first day falls.
const GridCells = 42

// WeekStart selects which weekday begins a grid row.
type WeekStart int

const (
	WeekStartMonday WeekStart = iota
	WeekStartSunday
)

// ParseWeekStart parses the config value; anything unrecognized falls back
// to Monday.
func ParseWeekStart(s string) WeekStart {
	if strings.EqualFold(strings.TrimSpace(s), "sunday") {
		return WeekStartSunday
	}
	return WeekStartMonday
}

func (w WeekStart) weekday() time.Weekday {
	if w == WeekStartSunday {
		return time.Sunday
	}
	return time.Monday
}

// DayCell is one cell of a month grid. Cells outside the requested month
// belong to the trailing days of the previous month or the leading days of
// the next.
type DayCell struct {
	Date    time.Time
	InMonth bool
}

// MonthGrid produces the ordered 6x7 grid of day cells for the given month.
// The grid always begins on the configured first day of a week. Pure
// function: same input always yields the same output.
func MonthGrid(year int, month time.Month, start WeekStart, loc *time.Location) []DayCell {
	if loc == nil {
		loc = time.Local
	}

	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(first.Weekday()) - int(start.weekday()) + 7) % 7
	begin := first.AddDate(0, 0, -offset)

	cells := make([]DayCell, GridCells)
	for i := range cells {
		d := begin.AddDate(0, 0, i)
		cells[i] = DayCell{
			Date:    d,
			InMonth: d.Month() == month && d.Year() == year,
		}
	}
	return cells
}

// DayBucket zeroes out the time-of-day component of t in the given zone.
// Two instants fall on the same calendar day iff their buckets are equal.
func DayBucket(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DayBucket(a, loc).Equal(DayBucket(b, loc))
}
