// Package workday models the daily work window and the non-work-day
// calendar used by the sweep scheduler and the bandwidth calculator.
package workday

import (
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ClockTime is a wall-clock time of day without a date.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:MM" (24h, zero-padded). Anything beyond
// the five characters is rejected.
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return ClockTime{}, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On anchors the clock time to the date of t, in t's location.
func (ct ClockTime) On(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), ct.Hour, ct.Minute, 0, 0, t.Location())
}

// Minutes returns the time of day as minutes from midnight.
func (ct ClockTime) Minutes() int { return ct.Hour*60 + ct.Minute }

func (ct ClockTime) String() string { return fmt.Sprintf("%02d:%02d", ct.Hour, ct.Minute) }

// Calendar combines the daily work window with weekend days and holiday
// date patterns. Holiday patterns are globs matched against the date
// formatted as YYYY-MM-DD, so "*-12-25" recurs yearly while
// "2026-07-06" names a single day.
type Calendar struct {
	WindowStart ClockTime
	WindowEnd   ClockTime
	Weekend     map[time.Weekday]bool
	Holidays    []string
	Location    *time.Location
}

// IsWorkDay reports whether t falls on a working day.
func (c *Calendar) IsWorkDay(t time.Time) bool {
	t = t.In(c.loc())
	if c.Weekend[t.Weekday()] {
		return false
	}
	date := t.Format("2006-01-02")
	for _, pattern := range c.Holidays {
		if ok, err := doublestar.Match(pattern, date); err == nil && ok {
			return false
		}
	}
	return true
}

// Window returns the work window anchored to the date of t.
func (c *Calendar) Window(t time.Time) (start, end time.Time) {
	t = t.In(c.loc())
	return c.WindowStart.On(t), c.WindowEnd.On(t)
}

// InWindow reports whether t falls inside the day's work window on a
// working day. Time outside of it counts as extra hours.
func (c *Calendar) InWindow(t time.Time) bool {
	if !c.IsWorkDay(t) {
		return false
	}
	start, end := c.Window(t)
	return !t.Before(start) && t.Before(end)
}

// ClampSpan intersects [from, to) with the work window of from's day and
// returns the resulting duration. Zero when the span misses the window.
func (c *Calendar) ClampSpan(from, to time.Time) time.Duration {
	start, end := c.Window(from)
	if from.Before(start) {
		from = start
	}
	if to.After(end) {
		to = end
	}
	if !to.After(from) {
		return 0
	}
	return to.Sub(from)
}

// DayBounds returns midnight-to-midnight bounds for the date of t.
func (c *Calendar) DayBounds(t time.Time) (from, to time.Time) {
	t = t.In(c.loc())
	from = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return from, from.AddDate(0, 0, 1)
}

// Loc returns the calendar's location, defaulting to time.Local.
func (c *Calendar) Loc() *time.Location { return c.loc() }

func (c *Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}
