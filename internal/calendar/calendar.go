// Package calendar implements the business calendar used for batch deadlines:
// weekends and holidays do not consume deadline hours.
package calendar

import (
	"fmt"
	"time"

	"github.com/refinement-bot/refinery/internal/config"
)

// maxNextDaySearch bounds the next-business-day scan. Two weeks is enough to
// clear any realistic holiday run; past that we fall back to a plain +1 day.
const maxNextDaySearch = 14

// Clock answers business-day questions and shifts deadlines across
// non-business days. All reasoning happens in the configured time zone.
type Clock struct {
	loc     *time.Location
	country string
	custom  map[string]bool // "YYYY-MM-DD" dates that are never business days
}

// New creates a Clock from calendar configuration.
func New(cfg config.CalendarConfig) (*Clock, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar: load timezone %q: %w", cfg.Timezone, err)
	}
	custom := make(map[string]bool, len(cfg.CustomDates))
	for _, d := range cfg.CustomDates {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return nil, fmt.Errorf("calendar: custom date %q: %w", d, err)
		}
		custom[d] = true
	}
	return &Clock{loc: loc, country: cfg.Country, custom: custom}, nil
}

// IsBusinessDay reports whether t falls on a business day: a weekday that is
// neither a configured custom date nor a national holiday.
func (c *Clock) IsBusinessDay(t time.Time) bool {
	local := t.In(c.loc)
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	date := local.Format("2006-01-02")
	if c.custom[date] {
		return false
	}
	if _, ok := c.nationalHoliday(local); ok {
		return false
	}
	return true
}

// AddBusinessHours returns start plus the given wall-clock hours, pushed
// forward one calendar day for every non-business day the span crosses.
func (c *Clock) AddBusinessHours(start time.Time, hours int) time.Time {
	start = start.In(c.loc)
	target := start.Add(time.Duration(hours) * time.Hour)
	check := start
	for check.Before(target) {
		if !c.IsBusinessDay(check) {
			next := c.nextBusinessDay(check)
			target = target.AddDate(0, 0, daysBetween(check, next))
			check = next
		} else {
			check = check.AddDate(0, 0, 1)
		}
	}
	return target
}

// nextBusinessDay returns the first business day after t, preserving the
// time of day. Bounded search with a one-day fallback.
func (c *Clock) nextBusinessDay(t time.Time) time.Time {
	current := t.AddDate(0, 0, 1)
	for i := 0; i < maxNextDaySearch; i++ {
		if c.IsBusinessDay(current) {
			return current
		}
		current = current.AddDate(0, 0, 1)
	}
	return t.AddDate(0, 0, 1)
}

// HolidayName returns the holiday falling on t's date, if any. Custom dates
// report as "Custom Holiday".
func (c *Clock) HolidayName(t time.Time) (string, bool) {
	local := t.In(c.loc)
	if c.custom[local.Format("2006-01-02")] {
		return "Custom Holiday", true
	}
	return c.nationalHoliday(local)
}

// FormatDeadline renders a deadline for chat display, annotated when it
// lands on a holiday.
func (c *Clock) FormatDeadline(t time.Time) string {
	local := t.In(c.loc)
	s := local.Format("2006-01-02 15:04 MST")
	if name, ok := c.HolidayName(t); ok {
		s += " - Note: " + name
	}
	return s
}

// daysBetween counts whole calendar days from a's date to b's date.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad) / (24 * time.Hour))
}
