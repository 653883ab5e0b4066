package calendar

import (
	"testing"
	"time"

	"github.com/refinement-bot/refinery/internal/config"
)

func newTestClock(t *testing.T, cfg config.CalendarConfig) *Clock {
	t.Helper()
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestIsBusinessDayWeekend(t *testing.T) {
	c := newTestClock(t, config.CalendarConfig{})

	saturday := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	if c.IsBusinessDay(saturday) {
		t.Error("Saturday reported as business day")
	}
	sunday := saturday.AddDate(0, 0, 1)
	if c.IsBusinessDay(sunday) {
		t.Error("Sunday reported as business day")
	}
	monday := saturday.AddDate(0, 0, 2)
	if !c.IsBusinessDay(monday) {
		t.Error("Monday reported as non-business day")
	}
}

func TestIsBusinessDayCustomDate(t *testing.T) {
	c := newTestClock(t, config.CalendarConfig{CustomDates: []string{"2026-03-09"}})

	monday := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	if c.IsBusinessDay(monday) {
		t.Error("custom holiday reported as business day")
	}
	name, ok := c.HolidayName(monday)
	if !ok || name != "Custom Holiday" {
		t.Errorf("HolidayName = %q, %v; want Custom Holiday, true", name, ok)
	}
}

func TestIsBusinessDayUSHoliday(t *testing.T) {
	c := newTestClock(t, config.CalendarConfig{Country: "US"})

	christmas := time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC) // a Friday
	if c.IsBusinessDay(christmas) {
		t.Error("Christmas reported as business day")
	}
	thanksgiving := time.Date(2026, 11, 26, 10, 0, 0, 0, time.UTC) // 4th Thursday
	if c.IsBusinessDay(thanksgiving) {
		t.Error("Thanksgiving reported as business day")
	}
	// July 4 2026 is a Saturday; July 3 is the observed holiday.
	observed := time.Date(2026, 7, 3, 10, 0, 0, 0, time.UTC)
	if c.IsBusinessDay(observed) {
		t.Error("observed Independence Day reported as business day")
	}
	mlk := time.Date(2026, 1, 19, 10, 0, 0, 0, time.UTC) // 3rd Monday of January
	if name, ok := c.HolidayName(mlk); !ok || name != "Birthday of Martin Luther King, Jr." {
		t.Errorf("HolidayName(MLK) = %q, %v", name, ok)
	}
}

func TestAddBusinessHoursWeekdaySpan(t *testing.T) {
	c := newTestClock(t, config.CalendarConfig{})

	// Monday 09:00 + 48h lands Wednesday 09:00 with no adjustment.
	monday := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	got := c.AddBusinessHours(monday, 48)
	want := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddBusinessHours = %v, want %v", got, want)
	}
}

func TestAddBusinessHoursSkipsWeekend(t *testing.T) {
	c := newTestClock(t, config.CalendarConfig{})

	// Friday 15:00 + 48h crosses the weekend and lands Tuesday 15:00.
	friday := time.Date(2026, 3, 6, 15, 0, 0, 0, time.UTC)
	got := c.AddBusinessHours(friday, 48)
	want := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddBusinessHours = %v, want %v", got, want)
	}
}

func TestAddBusinessHoursSkipsHolidayMonday(t *testing.T) {
	c := newTestClock(t, config.CalendarConfig{CustomDates: []string{"2026-03-09"}})

	// Friday 15:00 + 48h with the following Monday blocked lands Wednesday.
	friday := time.Date(2026, 3, 6, 15, 0, 0, 0, time.UTC)
	got := c.AddBusinessHours(friday, 48)
	want := time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("AddBusinessHours = %v, want %v", got, want)
	}
}

func TestFormatDeadline(t *testing.T) {
	c := newTestClock(t, config.CalendarConfig{Country: "US"})

	plain := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	if got := c.FormatDeadline(plain); got != "2026-03-10 15:00 UTC" {
		t.Errorf("FormatDeadline = %q", got)
	}
	christmas := time.Date(2026, 12, 25, 15, 0, 0, 0, time.UTC)
	if got := c.FormatDeadline(christmas); got != "2026-12-25 15:00 UTC - Note: Christmas Day" {
		t.Errorf("FormatDeadline = %q", got)
	}
}

func TestNextBusinessDayFallback(t *testing.T) {
	// Every day blocked: the bounded search gives up and advances one day.
	var dates []string
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 30; i++ {
		dates = append(dates, start.AddDate(0, 0, i).Format("2006-01-02"))
	}
	c := newTestClock(t, config.CalendarConfig{CustomDates: dates})

	got := c.nextBusinessDay(start)
	want := start.AddDate(0, 0, 1)
	if !got.Equal(want) {
		t.Errorf("nextBusinessDay = %v, want fallback %v", got, want)
	}
}
