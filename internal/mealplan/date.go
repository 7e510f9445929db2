package mealplan

import "time"

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date drops the clock part of t, keeping t's calendar day, and returns it as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day as seen in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}

// AddDays moves a calendar date by n days.
func AddDays(d time.Time, n int) time.Time {
	return Date(d).AddDate(0, 0, n)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}
