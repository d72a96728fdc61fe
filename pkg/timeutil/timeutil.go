// Package timeutil provides wall-clock helpers for the classroom.
// Classroom time is local wall-clock time: there is no timezone arithmetic beyond
// choosing the location that "today" is evaluated in.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	locMu    sync.RWMutex
	location = time.Local
)

// SetLocation overrides the location used to evaluate dates and clock times.
// Passing nil restores time.Local.
func SetLocation(loc *time.Location) {
	locMu.Lock()
	defer locMu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	location = loc
}

// Location returns the classroom location.
func Location() *time.Location {
	locMu.RLock()
	defer locMu.RUnlock()
	return location
}

// LoadLocation resolves an IANA name; an empty name means the host's local zone.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// Now returns the current time in the classroom location.
func Now() time.Time {
	return time.Now().In(Location())
}

// ToLocal converts a time to the classroom location.
func ToLocal(t time.Time) time.Time {
	return t.In(Location())
}

// Date creates a midnight time in the classroom location.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, Location())
}

// DateTime creates a time in the classroom location with the given date and clock.
func DateTime(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, Location())
}

// StartOfDay returns the start of the day (00:00:00) in the classroom location.
func StartOfDay(t time.Time) time.Time {
	l := ToLocal(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// IsSameDay checks if two times fall on the same calendar date.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := ToLocal(t1), ToLocal(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
// Time of day is ignored, and DST transitions do not shorten a day.
func DaysBetween(t1, t2 time.Time) int {
	a1, a2 := ToLocal(t1), ToLocal(t2)
	d1 := time.Date(a1.Year(), a1.Month(), a1.Day(), 0, 0, 0, 0, time.UTC)
	d2 := time.Date(a2.Year(), a2.Month(), a2.Day(), 0, 0, 0, 0, time.UTC)
	return int(d2.Sub(d1).Hours() / 24)
}

// IsWeekend checks if the given time is on a weekend.
func IsWeekend(t time.Time) bool {
	wd := ToLocal(t).Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsWorkday checks if the given time is on a school day (Mon-Fri).
func IsWorkday(t time.Time) bool {
	return !IsWeekend(t)
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatTime is the standard clock format (HH:MM).
	FormatTime = "15:04"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatHumanDate is a human-readable format.
	FormatHumanDate = "Mon 2 Jan 2006"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD).
func FormatDateStr(t time.Time) string {
	return ToLocal(t).Format(FormatDate)
}

// FormatTimeStr formats a time as a clock string (HH:MM).
func FormatTimeStr(t time.Time) string {
	return ToLocal(t).Format(FormatTime)
}

// ParseDate parses a YYYY-MM-DD string into local midnight.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, strings.TrimSpace(value), Location())
}

// ─────────────────────────────────────────────────────────────────────────────
// Clock times (minutes since midnight)
// ─────────────────────────────────────────────────────────────────────────────

// MinutesSinceMidnight returns the wall-clock minute of the day.
func MinutesSinceMidnight(t time.Time) int {
	l := ToLocal(t)
	return l.Hour()*60 + l.Minute()
}

// ParseClock parses an "H:MM" or "HH:MM" 24-hour clock string into minutes since midnight.
func ParseClock(value string) (int, error) {
	v := strings.TrimSpace(value)
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock time %q: expected HH:MM", value)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock time %q: hour out of range", value)
	}
	if len(m) != 2 {
		return 0, fmt.Errorf("invalid clock time %q: expected two-digit minutes", value)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock time %q: minute out of range", value)
	}
	return hour*60 + minute, nil
}

// NormalizeClock reformats a clock string to zero-padded HH:MM.
func NormalizeClock(value string) (string, error) {
	mins, err := ParseClock(value)
	if err != nil {
		return "", err
	}
	return FormatClock(mins), nil
}

// FormatClock renders minutes since midnight as HH:MM.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// FormatDaysAgo returns a short human string for a day count.
func FormatDaysAgo(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "yesterday"
	default:
		return fmt.Sprintf("%d days ago", days)
	}
}
