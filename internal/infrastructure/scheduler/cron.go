package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// CRON EXPRESSION
// ══════════════════════════════════════════════════════════════════════════════

// CronExpression is a parsed 5-field cron expression:
// minute hour day-of-month month day-of-week.
//
//	"*/5 * * * *"  every 5 minutes
//	"1 0 * * *"    every day at 00:01
//	"0 7 * * 1-5"  school days at 07:00
//
// Times are matched in the location of the time passed to Next.
type CronExpression struct {
	raw      string
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

type cronField struct {
	name     string
	min, max int
}

var cronFields = [5]cronField{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day", 1, 31},
	{"month", 1, 12},
	{"weekday", 0, 6},
}

// ParseCronExpression parses a cron expression string.
// Supports: *, */n, n, n-m, n-m/s, and comma lists of those.
func ParseCronExpression(expr string) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}

	var parsed [5][]int
	for i, f := range fields {
		values, err := parseField(f, cronFields[i].min, cronFields[i].max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", cronFields[i].name, err)
		}
		parsed[i] = values
	}

	return &CronExpression{
		raw:      strings.Join(fields, " "),
		minutes:  parsed[0],
		hours:    parsed[1],
		days:     parsed[2],
		months:   parsed[3],
		weekdays: parsed[4],
	}, nil
}

// MustParseCronExpression parses a cron expression or panics.
// Use only for compile-time constants.
func MustParseCronExpression(expr string) *CronExpression {
	ce, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return ce
}

// parseField expands one field into its sorted set of values.
func parseField(field string, min, max int) ([]int, error) {
	set := make(map[int]struct{})
	for _, part := range strings.Split(field, ",") {
		lo, hi, step, err := parseRange(strings.TrimSpace(part), min, max)
		if err != nil {
			return nil, err
		}
		for v := lo; v <= hi; v += step {
			set[v] = struct{}{}
		}
	}

	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func parseRange(part string, min, max int) (lo, hi, step int, err error) {
	step = 1
	base, s, stepped := strings.Cut(part, "/")
	if stepped {
		step, err = strconv.Atoi(s)
		if err != nil || step <= 0 {
			return 0, 0, 0, fmt.Errorf("invalid step %q", s)
		}
		part = base
	}

	switch {
	case part == "*":
		return min, max, step, nil
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		if lo, err = strconv.Atoi(a); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range start %q", a)
		}
		if hi, err = strconv.Atoi(b); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid range end %q", b)
		}
	default:
		if lo, err = strconv.Atoi(part); err != nil {
			return 0, 0, 0, fmt.Errorf("invalid value %q", part)
		}
		hi = lo
		if stepped {
			hi = max
		}
	}

	if lo < min || hi > max || lo > hi {
		return 0, 0, 0, fmt.Errorf("value %q out of range [%d-%d]", part, min, max)
	}
	return lo, hi, step, nil
}

// String returns the normalized expression.
func (ce *CronExpression) String() string {
	return ce.raw
}

// Next returns the first matching minute strictly after the given time.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.Truncate(time.Minute).Add(time.Minute)

	// Four years of minutes covers every satisfiable expression, Feb 29 included.
	const maxIterations = 4 * 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		switch {
		case !contains(ce.months, int(t.Month())):
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
		case !contains(ce.days, t.Day()) || !contains(ce.weekdays, int(t.Weekday())):
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location())
		case !contains(ce.hours, t.Hour()):
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, t.Location())
		case !contains(ce.minutes, t.Minute()):
			t = t.Add(time.Minute)
		default:
			return t
		}
	}
	return time.Time{}
}

func contains(sorted []int, v int) bool {
	i := sort.SearchInts(sorted, v)
	return i < len(sorted) && sorted[i] == v
}

// ══════════════════════════════════════════════════════════════════════════════
// OTHER SCHEDULES
// ══════════════════════════════════════════════════════════════════════════════

// Every runs a job at a fixed interval.
type Every time.Duration

// Next returns t plus the interval.
func (e Every) Next(t time.Time) time.Time {
	return t.Add(time.Duration(e))
}

func (e Every) String() string {
	return "@every " + time.Duration(e).String()
}

// AnyOf fires whenever any of its schedules fires.
type AnyOf []Schedule

// Next returns the earliest next time among the schedules.
func (a AnyOf) Next(t time.Time) time.Time {
	var best time.Time
	for _, s := range a {
		n := s.Next(t)
		if n.IsZero() {
			continue
		}
		if best.IsZero() || n.Before(best) {
			best = n
		}
	}
	return best
}

func (a AnyOf) String() string {
	parts := make([]string, len(a))
	for i, s := range a {
		parts[i] = s.String()
	}
	return strings.Join(parts, " | ")
}

// ParseSchedule accepts "@every <duration>", "@hourly", "@daily", or a cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	switch {
	case strings.HasPrefix(spec, "@every "):
		d, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(spec, "@every ")))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid interval in %q", spec)
		}
		return Every(d), nil
	case spec == "@hourly":
		return ParseCronExpression("0 * * * *")
	case spec == "@daily" || spec == "@midnight":
		return ParseCronExpression("0 0 * * *")
	default:
		return ParseCronExpression(spec)
	}
}
