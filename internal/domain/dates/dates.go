// Package dates provides a calendar date with day-level granularity.
//
// External feeds post-date transactions to a calendar day with no
// time-of-day and no timezone, so the engine never handles a bare
// time.Time: every date crossing a boundary is converted to a Date
// at the edge.
package dates

import (
	"fmt"
	"time"
)

// Format is the ISO-8601 representation used on the wire and in storage.
const Format = "2006-01-02"

// Date represents a calendar day.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date for the given year, month, and day.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.time().Date()
	return d
}

// Today returns the current date.
func Today() Date { return New(time.Now().Date()) }

// FromTime truncates a time.Time to its calendar day in UTC.
func FromTime(t time.Time) Date { return New(t.UTC().Date()) }

// Parse parses an ISO-8601 (YYYY-MM-DD) date string.
func Parse(s string) (Date, error) {
	t, err := time.Parse(Format, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return New(t.Date()), nil
}

// time returns the canonical representation of the day: midnight UTC.
func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Time exposes the canonical midnight-UTC instant for storage drivers.
func (d Date) Time() time.Time { return d.time() }

func (d Date) Year() int         { return d.y }
func (d Date) Month() time.Month { return d.m }
func (d Date) Day() int          { return d.d }

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.time().Format(Format) }

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }

// Add returns a new Date with the given number of days added.
func (d Date) Add(days int) Date { return New(d.y, d.m, d.d+days) }

// Before reports whether d is before x.
func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }

// After reports whether d is after x.
func (d Date) After(x Date) bool { return d.time().After(x.time()) }

// DaysBetween returns the number of days from d to x (positive when x is later).
func DaysBetween(d, x Date) int {
	return int(x.time().Sub(d.time()) / (24 * time.Hour))
}

// AbsDaysBetween returns the absolute day distance between two dates.
func AbsDaysBetween(d, x Date) int {
	n := DaysBetween(d, x)
	if n < 0 {
		return -n
	}
	return n
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
