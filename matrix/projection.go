/*
projection.go - Recurring template expansion for "virtual" demand

PURPOSE:
  A recurring template says "this client needs N hours of CPA work every
  quarter". The virtual forecast expands every active template into the
  occurrence dates that fall inside the forecast window and books N hours
  per occurrence into the month the occurrence lands in.

RECURRENCE RULES:
  weekly:        every Interval weeks, on StartDate's weekday
  monthly:       every Interval months
  quarterly:     every 3*Interval months
  semi_annually: every 6*Interval months
  annually:      every 12*Interval months, in MonthOfYear

  Month-based recurrences anchor on StartDate's month (or MonthOfYear for
  annual ones) and fall on DayOfMonth, clamped to the month's last day.
  Occurrences before StartDate or after EndDate never count.

EXAMPLE:
  Quarterly template starting 2025-02-15, window Jan..Dec 2026:
    occurrences: 2026-02-15, 2026-05-15, 2026-08-15, 2026-11-15

SEE ALSO:
  - generator.go: Books occurrences into demand cells
  - practice/types.go: Recurrence definition
*/
package matrix

import (
	"time"

	"github.com/warp/capacity-engine/practice"
)

// monthStep returns how many months separate occurrences, or 0 for
// day-based recurrences.
func monthStep(r practice.Recurrence) int {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	switch r.Type {
	case practice.RecurMonthly:
		return interval
	case practice.RecurQuarterly:
		return 3 * interval
	case practice.RecurSemiAnnually:
		return 6 * interval
	case practice.RecurAnnually:
		return 12 * interval
	default:
		return 0
	}
}

// Occurrences returns the dates in [from, to] on which the template produces work.
func Occurrences(rt practice.RecurringTask, from, to time.Time) []time.Time {
	from, to = dayOf(from), dayOf(to)
	if to.Before(from) || rt.StartDate.IsZero() {
		return nil
	}

	start := dayOf(rt.StartDate)
	last := to
	if rt.EndDate != nil && dayOf(*rt.EndDate).Before(last) {
		last = dayOf(*rt.EndDate)
	}
	if last.Before(start) || last.Before(from) {
		return nil
	}

	if rt.Recurrence.Type == practice.RecurWeekly {
		return weeklyOccurrences(rt.Recurrence, start, from, last)
	}

	step := monthStep(rt.Recurrence)
	if step == 0 {
		return nil
	}
	return monthlyOccurrences(rt.Recurrence, step, start, from, last)
}

func weeklyOccurrences(r practice.Recurrence, start, from, last time.Time) []time.Time {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	stepDays := 7 * interval

	current := start
	if current.Before(from) {
		gap := int(from.Sub(current).Hours() / 24)
		skips := gap / stepDays
		current = current.AddDate(0, 0, skips*stepDays)
		if current.Before(from) {
			current = current.AddDate(0, 0, stepDays)
		}
	}

	var dates []time.Time
	for !current.After(last) {
		dates = append(dates, current)
		current = current.AddDate(0, 0, stepDays)
	}
	return dates
}

func monthlyOccurrences(r practice.Recurrence, step int, start, from, last time.Time) []time.Time {
	dayOfMonth := r.DayOfMonth
	if dayOfMonth < 1 {
		dayOfMonth = start.Day()
	}

	anchor := practice.MonthOf(start)
	if r.Type == practice.RecurAnnually && r.MonthOfYear >= time.January && r.MonthOfYear <= time.December {
		anchor = practice.MonthOf(practice.StartOfMonth(start.Year(), r.MonthOfYear))
		if anchor < practice.MonthOf(start) {
			anchor = anchor.AddMonths(12)
		}
	}

	// Jump close to the window instead of walking from a distant start.
	current := anchor
	if ahead := practice.MonthsBetween(anchor, practice.MonthOf(from)); ahead > step {
		current = anchor.AddMonths((ahead / step) * step)
	}

	var dates []time.Time
	for !current.Start().After(last) {
		d := occurrenceDay(current, dayOfMonth)
		if !d.Before(start) && !d.Before(from) && !d.After(last) {
			dates = append(dates, d)
		}
		current = current.AddMonths(step)
	}
	return dates
}

func occurrenceDay(m practice.MonthKey, dayOfMonth int) time.Time {
	s := m.Start()
	if n := practice.DaysInMonth(s.Year(), s.Month()); dayOfMonth > n {
		dayOfMonth = n
	}
	return time.Date(s.Year(), s.Month(), dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
