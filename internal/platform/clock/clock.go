// Package clock isolates wall-clock access and clinic-zone calendar math.
// Storage and ordering use absolute instants; day bucketing, cycle counting
// and time-of-day matching go through the helpers here.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultZone is the clinic timezone used when none is configured.
const DefaultZone = "America/Caracas"

// Clock returns the current instant and the clinic location.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

// System is the production clock.
type System struct {
	loc *time.Location
}

// NewSystem returns a clock bound to the given clinic zone.
func NewSystem(loc *time.Location) *System {
	return &System{loc: loc}
}

func (s *System) Now() time.Time            { return time.Now().In(s.loc) }
func (s *System) Location() *time.Location { return s.loc }

// Fixed always returns the same instant. Used by tests and one-shot CLI runs.
type Fixed struct {
	At  time.Time
	Loc *time.Location
}

func (f *Fixed) Now() time.Time            { return f.At.In(f.Loc) }
func (f *Fixed) Location() *time.Location { return f.Loc }

// Today returns local midnight of the current clinic day.
func Today(c Clock) time.Time {
	return DayStart(c.Now(), c.Location())
}

// DayStart returns midnight of t's calendar day in loc.
func DayStart(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Date builds a local calendar date.
func Date(year int, month time.Month, day int, loc *time.Location) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// AddDays shifts a local date by n calendar days.
func AddDays(day time.Time, n int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day()+n, 0, 0, 0, 0, day.Location())
}

// DaysBetween returns the number of calendar days from a to b (b - a),
// ignoring the wall-clock part and any DST shift in between.
func DaysBetween(a, b time.Time) int {
	ca := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	cb := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(cb.Sub(ca).Hours() / 24)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// FormatDay renders a local date as YYYY-MM-DD.
func FormatDay(day time.Time) string {
	return day.Format("2006-01-02")
}

// ParseHHMM parses "H:M" / "HH:MM" into hour and minute.
func ParseHHMM(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("time %q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q has an invalid hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q has an invalid minute", s)
	}
	return hour, minute, nil
}

// AtLocalTime returns the absolute instant of "HH:MM" on the given local day.
func AtLocalTime(day time.Time, hhmm string) (time.Time, error) {
	h, m, err := ParseHHMM(hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location()), nil
}

// LoadZone resolves an IANA zone name, defaulting to DefaultZone.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return loc, nil
}

// InZone reinterprets the calendar date of d (as scanned from a DATE column)
// as a local day in loc.
func InZone(d time.Time, loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}
