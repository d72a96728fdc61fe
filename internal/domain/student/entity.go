// Package student содержит доменную модель ученика класса.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package student

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Absence - отметка об отсутствии ученика.
type Absence struct {
	Date    shared.Date `json:"date" yaml:"date"`
	Subject string      `json:"subject,omitempty" yaml:"subject,omitempty"`
}

// GoalRecord - архивная запись о цели ученика.
type GoalRecord struct {
	Goal          string      `json:"goal" yaml:"goal"`
	DateSet       shared.Date `json:"dateSet,omitempty" yaml:"dateSet,omitempty"`
	DateCompleted shared.Date `json:"dateCompleted,omitempty" yaml:"dateCompleted,omitempty"`
}

// Interests - внеклассные увлечения, сильные стороны и заметки учителя.
type Interests struct {
	Extracurriculars []string `json:"extracurriculars" yaml:"extracurriculars"`
	Strengths        []string `json:"strengths" yaml:"strengths"`
	Notes            string   `json:"notes" yaml:"notes"`
}

// NewInterests нормализует списки: обрезает пробелы, убирает пустые и дубли.
func NewInterests(extracurriculars, strengths []string, notes string) Interests {
	return Interests{
		Extracurriculars: normalizeSet(extracurriculars),
		Strengths:        normalizeSet(strengths),
		Notes:            strings.TrimSpace(notes),
	}
}

// SplitList разбивает строку "шахматы, футбол" на элементы.
func SplitList(s string) []string {
	return normalizeSet(strings.Split(s, ","))
}

func normalizeSet(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		v := strings.TrimSpace(it)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - ученик класса со всей историей участия.
type Student struct {
	// ID - непрозрачный стабильный идентификатор, никогда не переиспользуется.
	ID string `json:"id" yaml:"id"`

	// Name - полное имя "Имя Фамилия", ключ дедупликации при импорте.
	Name string `json:"name" yaml:"name"`

	// Grade - год обучения.
	Grade shared.Grade `json:"grade" yaml:"grade"`

	// Goal - текущая цель (пустая строка - цели нет).
	Goal string `json:"goal,omitempty" yaml:"goal,omitempty"`

	// GoalSetOn - дата установки текущей цели.
	GoalSetOn shared.Date `json:"goalSetOn,omitempty" yaml:"goalSetOn,omitempty"`

	// GoalHistory - прошлые цели в порядке архивации.
	GoalHistory []GoalRecord `json:"goalHistory" yaml:"goalHistory"`

	// Participation - статистика вызовов к доске.
	Participation Participation `json:"participation" yaml:"participation"`

	// Connections - история MGC.
	Connections Connections `json:"connections" yaml:"connections"`

	// Interests - увлечения и заметки.
	Interests Interests `json:"interests" yaml:"interests"`

	// Absences - отметки об отсутствии.
	Absences []Absence `json:"absences" yaml:"absences"`

	// CreatedAt - время добавления в журнал.
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrMissingID - не передан идентификатор.
	ErrMissingID = errors.New("student id is required")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentParams содержит параметры для создания нового ученика.
type NewStudentParams struct {
	ID        string
	FirstName string
	LastName  string
	Grade     shared.Grade
	Now       time.Time
}

// FullName собирает имя так же, как его видит учитель: "Имя Фамилия".
func FullName(first, last string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(first+" "+last)), " ")
}

// NameKey - ключ сравнения имён: регистр и лишние пробелы не важны.
func NameKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// NewStudent создаёт ученика с обнулёнными подзаписями.
func NewStudent(params NewStudentParams) (*Student, error) {
	if params.ID == "" {
		return nil, ErrMissingID
	}

	name := FullName(params.FirstName, params.LastName)
	if name == "" || len(name) > 200 {
		return nil, shared.ErrInvalidStudentName
	}

	if !params.Grade.IsValid() {
		return nil, shared.ErrInvalidGrade
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}

	return &Student{
		ID:            params.ID,
		Name:          name,
		Grade:         params.Grade,
		GoalHistory:   []GoalRecord{},
		Participation: NewParticipation(),
		Connections:   Connections{History: []MGCEntry{}},
		Interests:     NewInterests(nil, nil, ""),
		Absences:      []Absence{},
		CreatedAt:     now.UTC(),
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// SetGoal ставит новую цель. Прежняя цель, если она отличается, уходит в архив.
func (s *Student) SetGoal(goal string, today shared.Date) {
	goal = strings.TrimSpace(goal)
	if goal == s.Goal {
		return
	}
	if s.Goal != "" {
		s.GoalHistory = append(s.GoalHistory, GoalRecord{
			Goal:          s.Goal,
			DateSet:       s.GoalSetOn,
			DateCompleted: today,
		})
	}
	s.Goal = goal
	s.GoalSetOn = ""
	if goal != "" {
		s.GoalSetOn = today
	}
}

// CompleteGoal архивирует текущую цель как выполненную.
func (s *Student) CompleteGoal(today shared.Date) error {
	if s.Goal == "" {
		return shared.ErrNoGoal
	}
	s.GoalHistory = append(s.GoalHistory, GoalRecord{
		Goal:          s.Goal,
		DateSet:       s.GoalSetOn,
		DateCompleted: today,
	})
	s.Goal = ""
	s.GoalSetOn = ""
	return nil
}

// UpdateInterests заменяет увлечения целиком.
func (s *Student) UpdateInterests(in Interests) {
	s.Interests = NewInterests(in.Extracurriculars, in.Strengths, in.Notes)
}

// RecordAbsence добавляет отметку {дата, предмет}. Участие не меняется.
func (s *Student) RecordAbsence(date shared.Date, subject string) {
	s.Absences = append(s.Absences, Absence{Date: date, Subject: subject})
}

// ClearAbsence убирает отметки за указанную дату. Возвращает число удалённых.
func (s *Student) ClearAbsence(date shared.Date) int {
	kept := s.Absences[:0]
	removed := 0
	for _, a := range s.Absences {
		if a.Date == date {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.Absences = kept
	return removed
}

// AbsenceCount возвращает число отмеченных пропусков.
func (s *Student) AbsenceCount() int {
	return len(s.Absences)
}

// Sanitize пересчитывает производные поля после приёма внешних данных:
// totalCalls, weight, totalMGCs, lastConnection не принимаются на веру.
func (s *Student) Sanitize() {
	s.Name = strings.Join(strings.Fields(s.Name), " ")
	if s.GoalHistory == nil {
		s.GoalHistory = []GoalRecord{}
	}
	if s.Absences == nil {
		s.Absences = []Absence{}
	}
	s.Participation.recompute()
	s.Connections.recompute()
	s.Interests = NewInterests(s.Interests.Extracurriculars, s.Interests.Strengths, s.Interests.Notes)
}

// Clone возвращает глубокую копию ученика.
func (s *Student) Clone() *Student {
	c := *s
	c.GoalHistory = append([]GoalRecord(nil), s.GoalHistory...)
	c.Absences = append([]Absence(nil), s.Absences...)
	c.Interests.Extracurriculars = append([]string(nil), s.Interests.Extracurriculars...)
	c.Interests.Strengths = append([]string(nil), s.Interests.Strengths...)
	c.Participation = s.Participation.clone()
	c.Connections.History = append([]MGCEntry(nil), s.Connections.History...)
	return &c
}

// SortByName сортирует учеников по имени (для отчётов).
func SortByName(students []*Student) {
	sort.SliceStable(students, func(i, j int) bool {
		return NameKey(students[i].Name) < NameKey(students[j].Name)
	})
}
