// Package schedule содержит недельное расписание уроков и отвечает
// на вопрос "какой предмет идёт сейчас".
package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKDAY
// ══════════════════════════════════════════════════════════════════════════════

// Weekday - учебный день недели. В субботу и воскресенье уроков нет.
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
)

// SchoolDays - учебные дни по порядку.
var SchoolDays = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// IsValid проверяет, что день учебный.
func (d Weekday) IsValid() bool {
	switch d {
	case Monday, Tuesday, Wednesday, Thursday, Friday:
		return true
	default:
		return false
	}
}

// Title возвращает имя дня с заглавной буквы.
func (d Weekday) Title() string {
	s := string(d)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ParseWeekday разбирает "Monday", "mon", "MONDAY".
func ParseWeekday(s string) (Weekday, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, d := range SchoolDays {
		if v == string(d) || (len(v) >= 3 && strings.HasPrefix(string(d), v)) {
			return d, nil
		}
	}
	return "", shared.ErrInvalidWeekday
}

// WeekdayOf возвращает учебный день для момента t; ok=false в выходные.
func WeekdayOf(t time.Time) (Weekday, bool) {
	switch timeutil.ToLocal(t).Weekday() {
	case time.Monday:
		return Monday, true
	case time.Tuesday:
		return Tuesday, true
	case time.Wednesday:
		return Wednesday, true
	case time.Thursday:
		return Thursday, true
	case time.Friday:
		return Friday, true
	default:
		return "", false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PERIOD
// ══════════════════════════════════════════════════════════════════════════════

// Period - один урок: предмет и интервал [start, end) в формате HH:MM.
type Period struct {
	Subject   string `json:"subject" yaml:"subject" validate:"required,max=100"`
	StartTime string `json:"startTime" yaml:"startTime" validate:"required"`
	EndTime   string `json:"endTime" yaml:"endTime" validate:"required"`
}

// NewPeriod нормализует время и проверяет, что урок начинается раньше, чем кончается.
func NewPeriod(subject, start, end string) (Period, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return Period{}, shared.ErrInvalidPeriod
	}
	s, err := timeutil.ParseClock(start)
	if err != nil {
		return Period{}, shared.WrapError("schedule", "NewPeriod", shared.ErrInvalidFormat, "invalid start time", err)
	}
	e, err := timeutil.ParseClock(end)
	if err != nil {
		return Period{}, shared.WrapError("schedule", "NewPeriod", shared.ErrInvalidFormat, "invalid end time", err)
	}
	if s >= e {
		return Period{}, shared.ErrInvalidPeriod
	}
	return Period{
		Subject:   subject,
		StartTime: timeutil.FormatClock(s),
		EndTime:   timeutil.FormatClock(e),
	}, nil
}

// StartMinutes возвращает начало урока в минутах от полуночи (-1 при ошибке формата).
func (p Period) StartMinutes() int {
	m, err := timeutil.ParseClock(p.StartTime)
	if err != nil {
		return -1
	}
	return m
}

// EndMinutes возвращает конец урока в минутах от полуночи (-1 при ошибке формата).
func (p Period) EndMinutes() int {
	m, err := timeutil.ParseClock(p.EndTime)
	if err != nil {
		return -1
	}
	return m
}

// Contains проверяет start <= minute < end.
func (p Period) Contains(minute int) bool {
	s, e := p.StartMinutes(), p.EndMinutes()
	if s < 0 || e < 0 {
		return false
	}
	return s <= minute && minute < e
}

// ══════════════════════════════════════════════════════════════════════════════
// TABLE
// ══════════════════════════════════════════════════════════════════════════════

// Table - недельное расписание: день -> упорядоченные уроки.
// Пересечения уроков не проверяются, за это отвечает учитель.
type Table map[Weekday][]Period

// NewTable возвращает пустое расписание.
func NewTable() Table {
	return Table{}
}

// ActiveSubject возвращает предмет первого урока, идущего в момент now.
// ok=false, если урока нет (перемена, выходной, пустое расписание).
func (t Table) ActiveSubject(now time.Time) (subject string, ok bool) {
	p, _, ok := t.activePeriod(now)
	if !ok {
		return "", false
	}
	return p.Subject, true
}

// ActivePeriod возвращает текущий урок и его индекс в дне.
func (t Table) ActivePeriod(now time.Time) (Period, int, bool) {
	return t.activePeriod(now)
}

func (t Table) activePeriod(now time.Time) (Period, int, bool) {
	day, ok := WeekdayOf(now)
	if !ok {
		return Period{}, -1, false
	}
	minute := timeutil.MinutesSinceMidnight(now)
	for i, p := range t[day] {
		if p.Contains(minute) {
			return p, i, true
		}
	}
	return Period{}, -1, false
}

// AllPeriodsToday возвращает копию уроков дня now (пусто в выходные).
func (t Table) AllPeriodsToday(now time.Time) []Period {
	day, ok := WeekdayOf(now)
	if !ok {
		return []Period{}
	}
	return t.Day(day)
}

// Day возвращает копию уроков дня.
func (t Table) Day(day Weekday) []Period {
	return append([]Period{}, t[day]...)
}

// PeriodAt листает уроки сегодняшнего дня: offset=0 - текущий урок
// (или ближайший следующий, если сейчас перемена), -1 - предыдущий, +1 - следующий.
func (t Table) PeriodAt(now time.Time, offset int) (Period, bool) {
	periods := t.AllPeriodsToday(now)
	if len(periods) == 0 {
		return Period{}, false
	}

	_, idx, ok := t.activePeriod(now)
	if !ok {
		minute := timeutil.MinutesSinceMidnight(now)
		idx = len(periods)
		for i, p := range periods {
			if p.StartMinutes() > minute {
				idx = i
				break
			}
		}
		// Между уроками "предыдущий" - это последний завершившийся.
		if offset < 0 {
			offset++
			idx--
		}
	}

	target := idx + offset
	if target < 0 || target >= len(periods) {
		return Period{}, false
	}
	return periods[target], true
}

// ─────────────────────────────────────────────────────────────────────────────
// Editing
// ─────────────────────────────────────────────────────────────────────────────

// ReplaceWeek заменяет расписание целиком (загрузка CSV).
func (t Table) ReplaceWeek(week map[Weekday][]Period) error {
	for day := range week {
		if !day.IsValid() {
			return shared.ErrInvalidWeekday
		}
	}
	for k := range t {
		delete(t, k)
	}
	for day, periods := range week {
		if len(periods) == 0 {
			continue
		}
		t[day] = sortedCopy(periods)
	}
	return nil
}

// Append добавляет уроки к дню (массовый ввод текстом) и сортирует по началу.
func (t Table) Append(day Weekday, periods ...Period) error {
	if !day.IsValid() {
		return shared.ErrInvalidWeekday
	}
	t[day] = sortedCopy(append(t.Day(day), periods...))
	return nil
}

// DeletePeriod удаляет урок по индексу.
func (t Table) DeletePeriod(day Weekday, index int) (Period, error) {
	if !day.IsValid() {
		return Period{}, shared.ErrInvalidWeekday
	}
	periods := t[day]
	if index < 0 || index >= len(periods) {
		return Period{}, shared.ErrPeriodNotFound
	}
	removed := periods[index]
	rest := append(append([]Period{}, periods[:index]...), periods[index+1:]...)
	if len(rest) == 0 {
		delete(t, day)
	} else {
		t[day] = rest
	}
	return removed, nil
}

// ClearDay удаляет все уроки дня.
func (t Table) ClearDay(day Weekday) error {
	if !day.IsValid() {
		return shared.ErrInvalidWeekday
	}
	delete(t, day)
	return nil
}

// ClearWeek удаляет всё расписание.
func (t Table) ClearWeek() {
	for k := range t {
		delete(t, k)
	}
}

// PeriodCount возвращает общее число уроков за неделю.
func (t Table) PeriodCount() int {
	n := 0
	for _, p := range t {
		n += len(p)
	}
	return n
}

// Clone возвращает копию расписания.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for d, p := range t {
		c[d] = append([]Period{}, p...)
	}
	return c
}

// Sanitize отбрасывает выходные и некорректные уроки после приёма внешних данных.
func (t Table) Sanitize() Table {
	clean := NewTable()
	for day, periods := range t {
		d, err := ParseWeekday(string(day))
		if err != nil {
			continue
		}
		for _, p := range periods {
			np, err := NewPeriod(p.Subject, p.StartTime, p.EndTime)
			if err != nil {
				continue
			}
			clean[d] = append(clean[d], np)
		}
	}
	for d := range clean {
		clean[d] = sortedCopy(clean[d])
	}
	return clean
}

func sortedCopy(periods []Period) []Period {
	out := append([]Period{}, periods...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartMinutes() < out[j].StartMinutes()
	})
	return out
}
