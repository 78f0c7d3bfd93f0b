// Package calendar holds the date arithmetic shared by loan schedules and
// card billing cycles. Every value it returns is a UTC midnight.
package calendar

import "time"

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DayOfMonth returns the given day in year/month, clamped to the last day of
// that month. month may be outside 1..12; it is normalised first.
func DayOfMonth(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if last := DaysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// AddMonths moves t by n calendar months keeping its day, clamped to month end
// (Jan 31 + 1 month = Feb 28/29), unlike time.AddDate which overflows.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return DayOfMonth(y, m+time.Month(n), d)
}

// OccurrenceOnOrBefore returns the latest date on or before asOf whose day of
// month is day (clamped in short months).
func OccurrenceOnOrBefore(day int, asOf time.Time) time.Time {
	asOf = DateOnly(asOf)
	candidate := DayOfMonth(asOf.Year(), asOf.Month(), day)
	if candidate.After(asOf) {
		candidate = DayOfMonth(asOf.Year(), asOf.Month()-1, day)
	}
	return candidate
}

// Period formats the month a date belongs to as YYYY-MM.
func Period(t time.Time) string {
	return t.UTC().Format("2006-01")
}
