/*
france.go - French national public holiday table

PURPOSE:
  Implements HolidayProvider for the French jurisdiction: the eight fixed
  national holidays plus the three Easter-derived movable feasts (Easter
  Monday, Ascension Thursday, Whit Monday).

DESIGN:
  Easter Sunday is computed with the anonymous Gregorian computus, so no
  holiday data files are needed and any year works. Computed years are
  memoized since the sync and voucher paths probe the same few years
  thousands of times.

ALSACE-MOSELLE:
  Good Friday and Boxing Day are NOT included; the table is the national
  one, matching the downstream voucher ordering contract.
*/
package calendar

import (
	"sync"
	"time"
)

// France is the French national holiday table.
type France struct {
	mu    sync.Mutex
	years map[int]map[time.Time]string
}

// NewFrance creates a French holiday provider.
func NewFrance() *France {
	return &France{years: make(map[int]map[time.Time]string)}
}

// IsPublicHoliday reports whether the date is a French national holiday.
func (f *France) IsPublicHoliday(date time.Time) bool {
	_, ok := f.holidaysFor(date.Year())[DateOnly(date)]
	return ok
}

// HolidayName returns the holiday's name, or "" when the date is not one.
func (f *France) HolidayName(date time.Time) string {
	return f.holidaysFor(date.Year())[DateOnly(date)]
}

func (f *France) holidaysFor(year int) map[time.Time]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if table, ok := f.years[year]; ok {
		return table
	}

	easter := easterSunday(year)
	day := func(month time.Month, d int) time.Time {
		return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
	}

	table := map[time.Time]string{
		day(time.January, 1):    "Jour de l'an",
		day(time.May, 1):        "Fête du Travail",
		day(time.May, 8):        "Victoire 1945",
		day(time.July, 14):      "Fête Nationale",
		day(time.August, 15):    "Assomption",
		day(time.November, 1):   "Toussaint",
		day(time.November, 11):  "Armistice 1918",
		day(time.December, 25):  "Noël",
		easter.AddDate(0, 0, 1):  "Lundi de Pâques",
		easter.AddDate(0, 0, 39): "Ascension",
		easter.AddDate(0, 0, 50): "Lundi de Pentecôte",
	}

	f.years[year] = table
	return table
}

// easterSunday computes Easter Sunday for a year in the Gregorian calendar
// (anonymous computus, Meeus/Jones/Butcher form).
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	g := (8*b + 13) / 25
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 19*l) / 433
	month := (h + l - 7*m + 90) / 25
	day := (h + l - 7*m + 33*month + 19) % 32

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
