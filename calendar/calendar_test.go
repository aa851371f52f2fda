package calendar

import (
	"errors"
	"testing"
	"time"
)

// fixedHolidays pins an explicit holiday set for deterministic tests.
type fixedHolidays map[time.Time]bool

func (f fixedHolidays) IsPublicHoliday(d time.Time) bool { return f[DateOnly(d)] }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// MONTH PARTITION TESTS
// =============================================================================

func TestComputeMonth_PartitionsEveryDayExactlyOnce(t *testing.T) {
	// GIVEN: every month of several years, French holiday table
	// THEN: working ∪ weekend ∪ holiday covers each day exactly once

	fr := NewFrance()
	for _, year := range []int{2023, 2024, 2025, 2026} {
		for month := time.January; month <= time.December; month++ {
			mc, err := ComputeMonth(year, month, fr)
			if err != nil {
				t.Fatalf("ComputeMonth(%d, %d): %v", year, month, err)
			}

			first, last := MonthBounds(year, month)
			daysInMonth := int(last.Sub(first).Hours()/24) + 1
			if mc.TotalDays() != daysInMonth {
				t.Errorf("%d-%02d: partition has %d days, month has %d",
					year, month, mc.TotalDays(), daysInMonth)
			}

			seen := make(map[time.Time]int)
			for _, d := range mc.WorkingDays {
				seen[d]++
			}
			for _, d := range mc.Weekends {
				seen[d]++
			}
			for _, d := range mc.Holidays {
				seen[d]++
			}
			for d, n := range seen {
				if n != 1 {
					t.Errorf("%d-%02d: day %s classified %d times", year, month, d.Format("2006-01-02"), n)
				}
			}
		}
	}
}

func TestComputeMonth_InvalidMonthRejected(t *testing.T) {
	for _, m := range []int{0, 13, -1} {
		_, err := ComputeMonth(2025, time.Month(m), nil)
		if !errors.Is(err, ErrInvalidMonth) {
			t.Errorf("month %d: want ErrInvalidMonth, got %v", m, err)
		}
	}
}

func TestComputeMonth_HolidayOnWeekendClassifiedAsWeekend(t *testing.T) {
	// GIVEN: a holiday pinned to a Saturday (2025-03-01)
	hp := fixedHolidays{day(2025, time.March, 1): true}

	mc, err := ComputeMonth(2025, time.March, hp)
	if err != nil {
		t.Fatal(err)
	}

	// THEN: the day counts as a weekend, not a holiday
	if len(mc.Holidays) != 0 {
		t.Errorf("expected no holidays, got %v", mc.Holidays)
	}
	for _, d := range mc.Weekends {
		if d.Equal(day(2025, time.March, 1)) {
			return
		}
	}
	t.Error("2025-03-01 missing from weekends")
}

func TestComputeMonth_March2025WithOnePinnedHoliday(t *testing.T) {
	// GIVEN: March 2025 (31 days, 10 weekend days) and one mid-week holiday
	hp := fixedHolidays{day(2025, time.March, 12): true}

	mc, err := ComputeMonth(2025, time.March, hp)
	if err != nil {
		t.Fatal(err)
	}

	if len(mc.Weekends) != 10 {
		t.Errorf("weekends = %d, want 10", len(mc.Weekends))
	}
	if len(mc.Holidays) != 1 {
		t.Errorf("holidays = %d, want 1", len(mc.Holidays))
	}
	if len(mc.WorkingDays) != 20 {
		t.Errorf("working days = %d, want 20", len(mc.WorkingDays))
	}
}

// =============================================================================
// FRENCH HOLIDAY TABLE TESTS
// =============================================================================

func TestFrance_FixedHolidays(t *testing.T) {
	fr := NewFrance()

	fixed := []time.Time{
		day(2025, time.January, 1),
		day(2025, time.May, 1),
		day(2025, time.May, 8),
		day(2025, time.July, 14),
		day(2025, time.August, 15),
		day(2025, time.November, 1),
		day(2025, time.November, 11),
		day(2025, time.December, 25),
	}
	for _, d := range fixed {
		if !fr.IsPublicHoliday(d) {
			t.Errorf("%s should be a holiday", d.Format("2006-01-02"))
		}
	}

	if fr.IsPublicHoliday(day(2025, time.March, 12)) {
		t.Error("2025-03-12 is not a French holiday")
	}
}

func TestFrance_MovableFeasts(t *testing.T) {
	// Easter Sunday reference dates: 2024-03-31, 2025-04-20, 2026-04-05.
	fr := NewFrance()

	cases := []struct {
		name string
		date time.Time
	}{
		{"Easter Monday 2024", day(2024, time.April, 1)},
		{"Ascension 2024", day(2024, time.May, 9)},
		{"Whit Monday 2024", day(2024, time.May, 20)},
		{"Easter Monday 2025", day(2025, time.April, 21)},
		{"Ascension 2025", day(2025, time.May, 29)},
		{"Whit Monday 2025", day(2025, time.June, 9)},
		{"Easter Monday 2026", day(2026, time.April, 6)},
	}
	for _, c := range cases {
		if !fr.IsPublicHoliday(c.date) {
			t.Errorf("%s (%s) should be a holiday", c.name, c.date.Format("2006-01-02"))
		}
	}
}

func TestCountWorkingDays_InclusiveRange(t *testing.T) {
	// GIVEN: Mon 2025-03-10 .. Fri 2025-03-14, no holidays inside
	fr := NewFrance()
	got := CountWorkingDays(day(2025, time.March, 10), day(2025, time.March, 14), fr)
	if got != 5 {
		t.Errorf("working days = %d, want 5", got)
	}

	// Spanning a weekend adds nothing
	got = CountWorkingDays(day(2025, time.March, 14), day(2025, time.March, 17), fr)
	if got != 2 {
		t.Errorf("working days over weekend = %d, want 2", got)
	}
}
