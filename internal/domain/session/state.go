// Package session содержит эфемерное состояние урока и алгоритмы,
// которые им управляют: выбор следующего ученика и политику сбросов.
// Потеря этого состояния не теряет долговременных данных.
package session

import (
	"strconv"
	"strings"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADE FILTER
// ══════════════════════════════════════════════════════════════════════════════

// GradeFilter ограничивает выбор одним классом: "all" или "grade-N".
type GradeFilter string

// FilterAll - без ограничений.
const FilterAll GradeFilter = "all"

// ForGrade возвращает фильтр для одного класса.
func ForGrade(g shared.Grade) GradeFilter {
	return GradeFilter("grade-" + g.String())
}

// ParseGradeFilter разбирает "all", "grade-4" или просто "4".
func ParseGradeFilter(s string) (GradeFilter, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" || v == string(FilterAll) {
		return FilterAll, nil
	}
	g, err := shared.ParseGrade(v)
	if err != nil {
		return "", shared.ErrInvalidGradeFilter
	}
	return ForGrade(g), nil
}

// Grade возвращает класс фильтра; ok=false для "all".
func (f GradeFilter) Grade() (shared.Grade, bool) {
	v, ok := strings.CutPrefix(string(f), "grade-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return shared.Grade(n), true
}

// Matches проверяет, проходит ли ученик класса g через фильтр.
func (f GradeFilter) Matches(g shared.Grade) bool {
	want, ok := f.Grade()
	if !ok {
		return true
	}
	return want == g
}

// Next переключает фильтр по кругу: all -> levels[0] -> levels[1] -> ... -> all.
func (f GradeFilter) Next(levels []shared.Grade) GradeFilter {
	if len(levels) == 0 {
		return FilterAll
	}
	g, ok := f.Grade()
	if !ok {
		return ForGrade(levels[0])
	}
	for i, l := range levels {
		if l == g {
			if i+1 < len(levels) {
				return ForGrade(levels[i+1])
			}
			return FilterAll
		}
	}
	return FilterAll
}

// String возвращает строковое представление.
func (f GradeFilter) String() string {
	if f == "" {
		return string(FilterAll)
	}
	return string(f)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE
// ══════════════════════════════════════════════════════════════════════════════

// State - состояние текущего урока. Каждое поле - отдельный ключ хранилища.
type State struct {
	// Pool - ученики, которых ещё не вызывали в текущем круге.
	Pool []string `json:"sessionPool"`

	// AbsentToday - отсутствующие сегодня.
	AbsentToday []string `json:"absentToday"`

	// GradeFilter - текущий фильтр по классу.
	GradeFilter GradeFilter `json:"gradeFilter"`

	// CurrentStudent - ученик у доски ("" - никого).
	CurrentStudent string `json:"currentStudent,omitempty"`

	// CallsToday - число разрешённых вызовов за день.
	CallsToday int `json:"callsToday"`

	// LastResetDate - дата последнего ежедневного сброса.
	LastResetDate shared.Date `json:"lastResetDate,omitempty"`

	// LastSubject - последний замеченный активный предмет.
	LastSubject string `json:"lastSubject,omitempty"`
}

// NewState возвращает пустое состояние.
func NewState() State {
	return State{
		Pool:        []string{},
		AbsentToday: []string{},
		GradeFilter: FilterAll,
	}
}

// HasCurrent сообщает, ждёт ли кто-то у доски.
func (s *State) HasCurrent() bool {
	return s.CurrentStudent != ""
}

// ClearCurrent снимает ученика с доски.
func (s *State) ClearCurrent() {
	s.CurrentStudent = ""
}

// InPool проверяет, есть ли ученик в пуле.
func (s *State) InPool(id string) bool {
	return contains(s.Pool, id)
}

// RemoveFromPool убирает ученика из пула. Возвращает true, если он там был.
func (s *State) RemoveFromPool(id string) bool {
	var removed bool
	s.Pool, removed = without(s.Pool, id)
	return removed
}

// IsAbsent проверяет отметку об отсутствии.
func (s *State) IsAbsent(id string) bool {
	return contains(s.AbsentToday, id)
}

// MarkAbsent добавляет ученика в отсутствующие (без дублей).
func (s *State) MarkAbsent(id string) bool {
	if s.IsAbsent(id) {
		return false
	}
	s.AbsentToday = append(s.AbsentToday, id)
	return true
}

// UnmarkAbsent снимает отметку об отсутствии.
func (s *State) UnmarkAbsent(id string) bool {
	var removed bool
	s.AbsentToday, removed = without(s.AbsentToday, id)
	return removed
}

// Forget убирает ученика из всех наборов (при удалении из журнала).
func (s *State) Forget(id string) {
	s.RemoveFromPool(id)
	s.UnmarkAbsent(id)
	if s.CurrentStudent == id {
		s.ClearCurrent()
	}
}

// Clone возвращает копию состояния.
func (s State) Clone() State {
	c := s
	c.Pool = append([]string{}, s.Pool...)
	c.AbsentToday = append([]string{}, s.AbsentToday...)
	return c
}

// Normalize убирает дубли и ссылки на несуществующих учеников.
func (s *State) Normalize(exists func(id string) bool) {
	s.Pool = dedupe(s.Pool, exists)
	s.AbsentToday = dedupe(s.AbsentToday, exists)
	if s.CurrentStudent != "" && !exists(s.CurrentStudent) {
		s.CurrentStudent = ""
	}
	if s.GradeFilter == "" {
		s.GradeFilter = FilterAll
	}
	if s.CallsToday < 0 {
		s.CallsToday = 0
	}
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) ([]string, bool) {
	out := make([]string, 0, len(ids))
	removed := false
	for _, v := range ids {
		if v == id {
			removed = true
			continue
		}
		out = append(out, v)
	}
	return out, removed
}

func dedupe(ids []string, exists func(string) bool) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok || !exists(v) {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
