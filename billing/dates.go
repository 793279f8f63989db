package billing

import (
	"time"
)

var monthLengths = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// IsLeapYear implements the Gregorian rule: divisible by 4, except
// centuries not divisible by 400
func IsLeapYear(year int) bool {
	if year%400 == 0 {
		return true
	}
	if year%100 == 0 {
		return false
	}
	return year%4 == 0
}

// DaysInMonth returns the calendar length of the given month
func DaysInMonth(year int, month time.Month) int {
	if month < time.January || month > time.December {
		return 0
	}
	if month == time.February && IsLeapYear(year) {
		return 29
	}
	return monthLengths[month]
}

// midnight truncates a timestamp to its calendar date, dropping the
// time-of-day and location so two dates subtract to whole days
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// InclusiveDays counts the days between two dates, both endpoints
// included, so a single-day range returns 1. A non-positive return means
// end is before start and the caller must treat the range as invalid.
func InclusiveDays(start, end time.Time) int {
	diff := midnight(end).Sub(midnight(start))
	return int(diff.Hours()/24) + 1
}

// sameCalendarMonth reports whether both dates fall in the same month of
// the same year
func sameCalendarMonth(start, end time.Time) bool {
	return start.Year() == end.Year() && start.Month() == end.Month()
}

// LastDayOfMonth returns the final calendar date of the given month
func LastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, DaysInMonth(year, month), 0, 0, 0, 0, time.UTC)
}

// FirstDayOfMonth returns the first calendar date of the given month
func FirstDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// PreviousMonth steps one month back from the given billing period tag
func PreviousMonth(year int, month time.Month) (int, time.Month) {
	if month == time.January {
		return year - 1, time.December
	}
	return year, month - 1
}
