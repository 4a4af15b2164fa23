// Package temporal marks charge packets whose event date falls on a
// configured holiday.
package temporal

import "time"

// DateKey is a calendar date. Month is 1-based.
type DateKey struct {
	Day   int
	Month int
	Year  int
}

// DateKeyOf returns the calendar date of t in loc. A nil loc means UTC.
func DateKeyOf(t time.Time, loc *time.Location) DateKey {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return DateKey{Day: d, Month: int(m), Year: y}
}

// Midnight returns the first instant of the date in loc.
func (k DateKey) Midnight(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(k.Year, time.Month(k.Month), k.Day, 0, 0, 0, 0, loc)
}
