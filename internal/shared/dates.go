package shared

import (
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date format used on the wire.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// NewDateRange normalises both bounds to UTC midnight and validates order.
func NewDateRange(start, end time.Time) (DateRange, error) {
	if start.IsZero() || end.IsZero() {
		return DateRange{}, Validation("date range requires start and end")
	}
	r := DateRange{Start: Day(start), End: Day(end)}
	if r.Start.After(r.End) {
		return DateRange{}, Validation("start date %s is after end date %s", r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	return r, nil
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	d = Day(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Widen returns the range extended by days on both ends.
func (r DateRange) Widen(days int) DateRange {
	return DateRange{Start: r.Start.AddDate(0, 0, -days), End: r.End.AddDate(0, 0, days)}
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b.
func DaysBetween(a, b time.Time) int {
	diff := Day(a).Sub(Day(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff.Hours() / 24)
}

// ParseDate parses a YYYY-MM-DD value into a UTC date.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, Validation("date is required")
	}
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, Validation("invalid date %q, expected YYYY-MM-DD", value)
	}
	return t, nil
}

// ParseDateRange parses a pair of YYYY-MM-DD values.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return DateRange{}, err
	}
	return NewDateRange(s, e)
}
