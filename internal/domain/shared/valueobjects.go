// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// Calendar Date
// ═══════════════════════════════════════════════════════════════════════════

// DateLayout is the persisted form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar date in local wall-clock terms, stored as YYYY-MM-DD.
// The zero value means "no date".
type Date string

// DateOf returns the calendar date of t in the classroom location
// (timeutil.Location), the same zone schedule weekdays are read in.
func DateOf(t time.Time) Date {
	return Date(timeutil.ToLocal(t).Format(DateLayout))
}

// ParseDate validates and normalizes a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return "", WrapError("date", "Parse", ErrInvalidFormat, fmt.Sprintf("invalid date %q", s), err)
	}
	return Date(t.Format(DateLayout)), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d == ""
}

// String returns the YYYY-MM-DD form.
func (d Date) String() string {
	return string(d)
}

// Time returns midnight UTC of the date. Only useful for date arithmetic.
func (d Date) Time() time.Time {
	t, err := time.Parse(DateLayout, string(d))
	if err != nil {
		return time.Time{}
	}
	return t
}

// DaysUntil returns the whole number of days from d to other.
// It is negative when other is earlier.
func (d Date) DaysUntil(other Date) int {
	if d.IsZero() || other.IsZero() {
		return 0
	}
	return int(other.Time().Sub(d.Time()).Hours() / 24)
}

// Before reports whether d is strictly earlier than other.
func (d Date) Before(other Date) bool {
	// YYYY-MM-DD sorts lexically.
	return string(d) < string(other)
}

// ═══════════════════════════════════════════════════════════════════════════
// Grade
// ═══════════════════════════════════════════════════════════════════════════

// Grade is a school year level.
type Grade int

// DefaultGrade is used when an import row carries no grade.
const DefaultGrade Grade = 4

// MaxGrade bounds accepted grade values.
const MaxGrade Grade = 13

// IsValid checks the grade is in the accepted range.
func (g Grade) IsValid() bool {
	return g >= 0 && g <= MaxGrade
}

// String returns the decimal form.
func (g Grade) String() string {
	return strconv.Itoa(int(g))
}

// ParseGrade parses a grade, tolerating a leading "grade-" or "Year " prefix.
func ParseGrade(s string) (Grade, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "grade-")
	v = strings.TrimPrefix(v, "grade ")
	v = strings.TrimPrefix(v, "year ")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, WrapError("grade", "Parse", ErrInvalidFormat, fmt.Sprintf("invalid grade %q", s), err)
	}
	g := Grade(n)
	if !g.IsValid() {
		return 0, ErrInvalidGrade
	}
	return g, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Identifiers
// ═══════════════════════════════════════════════════════════════════════════

// DefaultClassroomID is the aggregate id used for classroom-wide events.
const DefaultClassroomID = "classroom"
