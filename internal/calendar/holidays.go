package calendar

import "time"

// nationalHoliday looks up t's date in the configured national holiday
// table. Only the US federal table is built in; an empty or unknown country
// means no national holidays.
func (c *Clock) nationalHoliday(local time.Time) (string, bool) {
	if c.country != "US" {
		return "", false
	}
	name, ok := usFederalHolidays(local.Year())[local.Format("2006-01-02")]
	return name, ok
}

// usFederalHolidays returns the US federal holidays for a year, keyed by
// "YYYY-MM-DD". Fixed-date holidays falling on a weekend also get an
// observed entry on the adjacent weekday.
func usFederalHolidays(year int) map[string]string {
	h := make(map[string]string, 16)

	fixed := func(month time.Month, day int, name string) {
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		h[d.Format("2006-01-02")] = name
		switch d.Weekday() {
		case time.Saturday:
			h[d.AddDate(0, 0, -1).Format("2006-01-02")] = name + " (observed)"
		case time.Sunday:
			h[d.AddDate(0, 0, 1).Format("2006-01-02")] = name + " (observed)"
		}
	}

	fixed(time.January, 1, "New Year's Day")
	fixed(time.June, 19, "Juneteenth National Independence Day")
	fixed(time.July, 4, "Independence Day")
	fixed(time.November, 11, "Veterans Day")
	fixed(time.December, 25, "Christmas Day")

	h[nthWeekday(year, time.January, time.Monday, 3)] = "Birthday of Martin Luther King, Jr."
	h[nthWeekday(year, time.February, time.Monday, 3)] = "Washington's Birthday"
	h[lastWeekday(year, time.May, time.Monday)] = "Memorial Day"
	h[nthWeekday(year, time.September, time.Monday, 1)] = "Labor Day"
	h[nthWeekday(year, time.October, time.Monday, 2)] = "Columbus Day"
	h[nthWeekday(year, time.November, time.Thursday, 4)] = "Thanksgiving Day"

	return h
}

// nthWeekday returns the date string of the nth weekday of a month.
func nthWeekday(year int, month time.Month, wd time.Weekday, n int) string {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	d = d.AddDate(0, 0, offset+(n-1)*7)
	return d.Format("2006-01-02")
}

// lastWeekday returns the date string of the last weekday of a month.
func lastWeekday(year int, month time.Month, wd time.Weekday) string {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset).Format("2006-01-02")
}
