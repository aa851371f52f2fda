/*
Package calendar computes working-day calendars for a month.

PURPOSE:
  Partitions the days of a calendar month into working days, weekends and
  public holidays. This is the foundation both the meal-voucher calculator
  and the forecast batch writer build on: a day is either worked, a weekend,
  or a holiday — never two of those at once.

DESIGN:
  - Pure functions, no storage or network access.
  - The holiday table is an injected HolidayProvider so tests can pin a
    deterministic calendar and other jurisdictions can be plugged in.
  - Re-evaluated on every call: holiday tables vary by year (movable feasts).

SEE ALSO:
  - france.go: the French national holiday table
  - voucher/: entitlement calculation on top of the month partition
*/
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidMonth is returned when a month outside [1,12] is requested.
var ErrInvalidMonth = errors.New("month must be between 1 and 12")

// HolidayProvider decides whether a given date is a public holiday.
type HolidayProvider interface {
	IsPublicHoliday(date time.Time) bool
}

// MonthCalendar is the partition of a month's days.
// Every day of the month appears in exactly one of the three slices.
type MonthCalendar struct {
	Year        int
	Month       time.Month
	WorkingDays []time.Time
	Holidays    []time.Time
	Weekends    []time.Time
}

// TotalDays returns the number of calendar days in the month.
func (mc MonthCalendar) TotalDays() int {
	return len(mc.WorkingDays) + len(mc.Holidays) + len(mc.Weekends)
}

// WorkingDaySet returns the working days keyed by date (midnight UTC).
func (mc MonthCalendar) WorkingDaySet() map[time.Time]bool {
	set := make(map[time.Time]bool, len(mc.WorkingDays))
	for _, d := range mc.WorkingDays {
		set[d] = true
	}
	return set
}

// ComputeMonth partitions the days of (year, month) using the given holiday
// table. Weekends win over holidays: a holiday falling on a Saturday is
// classified as a weekend day, matching how entitlement days are counted.
func ComputeMonth(year int, month time.Month, holidays HolidayProvider) (MonthCalendar, error) {
	if month < time.January || month > time.December {
		return MonthCalendar{}, fmt.Errorf("%w: got %d", ErrInvalidMonth, int(month))
	}

	mc := MonthCalendar{Year: year, Month: month}

	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		switch {
		case IsWeekend(d):
			mc.Weekends = append(mc.Weekends, d)
		case holidays != nil && holidays.IsPublicHoliday(d):
			mc.Holidays = append(mc.Holidays, d)
		default:
			mc.WorkingDays = append(mc.WorkingDays, d)
		}
	}

	return mc, nil
}

// IsWeekend reports whether the date falls on a Saturday or Sunday.
func IsWeekend(d time.Time) bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsWorkingDay reports whether the date is neither a weekend day nor a
// public holiday.
func IsWorkingDay(d time.Time, holidays HolidayProvider) bool {
	if IsWeekend(d) {
		return false
	}
	if holidays != nil && holidays.IsPublicHoliday(d) {
		return false
	}
	return true
}

// CountWorkingDays counts working days in [from, to], inclusive.
func CountWorkingDays(from, to time.Time, holidays HolidayProvider) int {
	count := 0
	for d := DateOnly(from); !d.After(DateOnly(to)); d = d.AddDate(0, 0, 1) {
		if IsWorkingDay(d, holidays) {
			count++
		}
	}
	return count
}

// DateOnly truncates a timestamp to midnight UTC. All calendar math in this
// package operates on day granularity.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthBounds returns the first and last day of (year, month).
func MonthBounds(year int, month time.Month) (first, last time.Time) {
	first = time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last = first.AddDate(0, 1, -1)
	return first, last
}
