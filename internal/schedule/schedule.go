// Package schedule computes recurrence dates and due status for recurring
// transaction templates.
package schedule

import (
	"time"

	"flow/internal/models"
)

// stepFunc advances t by exactly one period.
type stepFunc func(t time.Time) time.Time

var intervalSteps = map[models.RecurringInterval]stepFunc{
	models.RecurringDaily:   func(t time.Time) time.Time { return t.AddDate(0, 0, 1) },
	models.RecurringWeekly:  func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
	models.RecurringMonthly: func(t time.Time) time.Time { return addMonthsClamped(t, 1) },
	models.RecurringYearly:  func(t time.Time) time.Time { return addMonthsClamped(t, 12) },
}

// NextDate returns the occurrence one interval after start. Monthly and
// yearly steps clamp to the last day of the target month, so Jan 31 becomes
// Feb 28 (or 29) rather than rolling into March. Time of day and location
// are preserved. An unknown interval returns start unchanged.
func NextDate(start time.Time, interval models.RecurringInterval) time.Time {
	step, ok := intervalSteps[interval]
	if !ok {
		return start
	}
	return step(start)
}

// IsDue reports whether a template should be materialized at now. A template
// that never fired is always due.
func IsDue(t *models.Transaction, now time.Time) bool {
	if t == nil || !t.IsRecurring {
		return false
	}
	if t.LastProcessed == nil {
		return true
	}
	return t.NextRecurringDate != nil && !t.NextRecurringDate.After(now)
}

func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	target := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return target.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// MonthBounds returns the first and last instant of t's calendar month in
// t's location. Both ends are inclusive.
func MonthBounds(t time.Time) (start, end time.Time) {
	y, m, _ := t.Date()
	start = time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
	end = start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// SameMonth reports whether a and b fall in the same calendar month and year.
func SameMonth(a, b time.Time) bool {
	ay, am, _ := a.Date()
	by, bm, _ := b.Date()
	return ay == by && am == bm
}

// PreviousMonth returns the first instant of the month before t.
func PreviousMonth(t time.Time) time.Time {
	start, _ := MonthBounds(t)
	return start.AddDate(0, -1, 0)
}

// MonthLabel formats t as "January 2006".
func MonthLabel(t time.Time) string {
	return t.Format("January 2006")
}
