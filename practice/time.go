package practice

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH KEY - Calendar month identifier (YYYY-MM)
// =============================================================================

type MonthKey string

const monthKeyLayout = "2006-01"

// MonthOf returns the key of the month containing t.
func MonthOf(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format(monthKeyLayout))
}

// ParseMonthKey validates and parses a YYYY-MM key.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(monthKeyLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthOf(t), nil
}

// Start returns the first instant of the month in UTC.
func (m MonthKey) Start() time.Time {
	t, _ := time.Parse(monthKeyLayout, string(m))
	return t
}

// End returns the last day of the month (at midnight UTC).
func (m MonthKey) End() time.Time {
	s := m.Start()
	return EndOfMonth(s.Year(), s.Month())
}

// AddMonths returns the key n months later (or earlier for negative n).
func (m MonthKey) AddMonths(n int) MonthKey {
	return MonthOf(m.Start().AddDate(0, n, 0))
}

// Label returns a display label such as "Jan 2026".
func (m MonthKey) Label() string {
	return m.Start().Format("Jan 2006")
}

func (m MonthKey) String() string { return string(m) }

// MonthsBetween returns the number of whole months from a to b.
func MonthsBetween(a, b MonthKey) int {
	as, bs := a.Start(), b.Start()
	return (bs.Year()-as.Year())*12 + int(bs.Month()-as.Month())
}

// =============================================================================
// DATE RANGE - Inclusive due-date bounds
// =============================================================================

// DateRange bounds queries by due date. A zero Start or End is unbounded.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains returns true if t falls inside [Start, End] by calendar day.
func (r DateRange) Contains(t time.Time) bool {
	d := truncateDay(t)
	if !r.Start.IsZero() && d.Before(truncateDay(r.Start)) {
		return false
	}
	if !r.End.IsZero() && d.After(truncateDay(r.End)) {
		return false
	}
	return true
}

// Validate rejects ranges that end before they start.
func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && truncateDay(r.End).Before(truncateDay(r.Start)) {
		return ErrInvalidRange
	}
	return nil
}

func (r DateRange) String() string {
	return "[" + formatDay(r.Start) + ", " + formatDay(r.End) + "]"
}

// MonthRange returns the range covering months [from, to].
func MonthRange(from, to MonthKey) DateRange {
	return DateRange{Start: from.Start(), End: to.End()}
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

func StartOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func EndOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

func DaysInMonth(year int, month time.Month) int {
	return EndOfMonth(year, month).Day()
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
