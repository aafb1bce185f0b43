// ABOUTME: Calendar date helpers shared by the engine, scheduler and stores
// ABOUTME: Dates are day-precision values in Location; times of day are HH:MM strings
package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Location is the business time zone used for "today" and for event times.
var Location = time.Local

// DateOf truncates t to midnight of its calendar day in Location.
func DateOf(t time.Time) time.Time {
	t = t.In(Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Location)
}

// DaysBetween returns the number of calendar days from a to b (negative if b is before a).
func DaysBetween(a, b time.Time) int {
	da, db := DateOf(a), DateOf(b)
	// Round to absorb DST shifts.
	return int(db.Sub(da).Round(24*time.Hour) / (24 * time.Hour))
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return DateOf(a).Equal(DateOf(b))
}

// FormatDate renders a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD in Location.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, Location)
}

// ClockOf renders the time of day of t as HH:MM.
func ClockOf(t time.Time) string {
	return t.In(Location).Format(ClockLayout)
}

// ParseClock validates an HH:MM time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// At combines a date with an HH:MM time of day. An invalid clock yields midnight.
func At(date time.Time, clock string) time.Time {
	d := DateOf(date)
	h, m, err := ParseClock(clock)
	if err != nil {
		return d
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, Location)
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays parses weekday names such as "mon" or "Friday".
func ParseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return nil, fmt.Errorf("invalid weekday %q", n)
		}
		days = append(days, wd)
	}
	return days, nil
}
