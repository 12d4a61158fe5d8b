// Package worktime provides business-day arithmetic and tolerant parsing of
// Jira timestamps.
package worktime

import (
	"fmt"
	"time"
)

// Jira emits timestamps with or without fractional seconds depending on the
// endpoint and server version.
const (
	layoutWithMillis    = "2006-01-02T15:04:05.000-0700"
	layoutWithoutMillis = "2006-01-02T15:04:05-0700"
)

// HoursPerBusinessDay is the working-hours weight of one weekday.
const HoursPerBusinessDay = 8

// ParseTimestamp parses a Jira timestamp in either supported layout.
func ParseTimestamp(raw string) (time.Time, error) {
	if parsed, err := time.Parse(layoutWithMillis, raw); err == nil {
		return parsed, nil
	}
	parsed, err := time.Parse(layoutWithoutMillis, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", raw, err)
	}
	return parsed, nil
}

// BusinessHours returns the number of working hours between start and end,
// counting every weekday from start's date through end's date inclusive at
// eight hours apiece. It is a coarse trend metric, not payroll accounting:
// partial start and end days count in full. Both instants are evaluated in
// start's location so mixed offsets cannot shift a date boundary.
func BusinessHours(start, end time.Time) float64 {
	if end.Before(start) {
		return 0
	}
	return float64(weekdaysInclusive(start, end.In(start.Location())) * HoursPerBusinessDay)
}

// BusinessDaysSince counts weekdays strictly between t's date and now's date,
// exclusive of both endpoints' same-day overlap. A ticket updated today or on
// the previous calendar day yields zero. t is evaluated in now's location,
// since Jira timestamps carry the site offset while now carries the host's.
func BusinessDaysSince(t, now time.Time) int {
	day := dateOf(t.In(now.Location())).AddDate(0, 0, 1)
	today := dateOf(now)
	count := 0
	for day.Before(today) {
		if isWeekday(day) {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}

func weekdaysInclusive(start, end time.Time) int {
	day := dateOf(start)
	last := dateOf(end)
	count := 0
	for !day.After(last) {
		if isWeekday(day) {
			count++
		}
		day = day.AddDate(0, 0, 1)
	}
	return count
}

func isWeekday(day time.Time) bool {
	weekday := day.Weekday()
	return weekday != time.Saturday && weekday != time.Sunday
}

func dateOf(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
