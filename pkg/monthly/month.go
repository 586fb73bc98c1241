// Package monthly provides calendar-month arithmetic on YYYY-MM-01 boundaries.
// Every derived table in the warehouse keys time by the first day of a month,
// so months are represented as an integer index (year*12 + month) rather than
// a time.Time, which makes ordering and distance arithmetic exact.
package monthly

import (
	"fmt"
	"time"
)

// Month is a calendar month, encoded as year*12 + (month-1).
// The zero value is invalid and means "no month".
type Month int

// FromParts builds a Month from a year and a 1-based month number.
func FromParts(year, month int) Month {
	return Month(year*12 + (month - 1))
}

// FromTime truncates a timestamp to its calendar month.
func FromTime(t time.Time) Month {
	return FromParts(t.Year(), int(t.Month()))
}

// Parse accepts "YYYY-MM", "YYYY-MM-01" or any "YYYY-MM-DD" and returns the
// month boundary. An empty or malformed string is an error, not a zero month.
func Parse(s string) (Month, error) {
	if len(s) >= 10 {
		t, err := time.Parse("2006-01-02", s[:10])
		if err != nil {
			return 0, fmt.Errorf("invalid month %q: %w", s, err)
		}
		return FromTime(t), nil
	}
	if len(s) == 7 {
		t, err := time.Parse("2006-01", s)
		if err != nil {
			return 0, fmt.Errorf("invalid month %q: %w", s, err)
		}
		return FromTime(t), nil
	}
	return 0, fmt.Errorf("invalid month %q: want YYYY-MM or YYYY-MM-DD", s)
}

// MustParse is Parse for tests and static data; it panics on malformed input.
func MustParse(s string) Month {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Year returns the calendar year.
func (m Month) Year() int { return int(m) / 12 }

// MonthOfYear returns the 1-based month number.
func (m Month) MonthOfYear() int { return int(m)%12 + 1 }

// Add moves n months forward (or backward for negative n).
func (m Month) Add(n int) Month { return m + Month(n) }

// Sub returns the number of months from other to m.
func (m Month) Sub(other Month) int { return int(m) - int(other) }

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool { return m < other }

// After reports whether m is strictly later than other.
func (m Month) After(other Month) bool { return m > other }

// IsZero reports whether m is the invalid zero month.
func (m Month) IsZero() bool { return m == 0 }

// Time returns midnight UTC on the first day of the month.
func (m Month) Time() time.Time {
	return time.Date(m.Year(), time.Month(m.MonthOfYear()), 1, 0, 0, 0, 0, time.UTC)
}

// String formats as the warehouse TEXT representation, YYYY-MM-01.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d-01", m.Year(), m.MonthOfYear())
}

// Range returns every month from start through end inclusive.
// An inverted interval (end before start) yields nil.
func Range(start, end Month) []Month {
	if end.Before(start) {
		return nil
	}
	out := make([]Month, 0, end.Sub(start)+1)
	for m := start; !m.After(end); m = m.Add(1) {
		out = append(out, m)
	}
	return out
}
