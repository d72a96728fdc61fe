// Package classroom содержит агрегат "класс": журнал, расписание,
// метаданные и состояние урока. Это явная структура состояния приложения,
// которую передают в каждую операцию ядра, глобальных переменных нет.
package classroom

import (
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// METADATA
// ══════════════════════════════════════════════════════════════════════════════

// Metadata - сведения о классе для отчётов и экспорта.
type Metadata struct {
	SchoolYear string `json:"schoolYear" yaml:"schoolYear"`
	Term       string `json:"term" yaml:"term"`
	Teacher    string `json:"teacher" yaml:"teacher"`
	ClassName  string `json:"class" yaml:"class"`
}

// DefaultMetadata возвращает значения по умолчанию.
func DefaultMetadata() Metadata {
	return Metadata{
		SchoolYear: "2024-2025",
		Term:       "Term 4",
		ClassName:  "Year 4-5",
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Classroom - полное состояние приложения.
type Classroom struct {
	Registry *student.Registry
	Schedule schedule.Table
	Metadata Metadata
	Session  session.State

	// Version - версия хранилища, с которой состояние было загружено.
	Version int64
}

// New возвращает пустой класс.
func New() *Classroom {
	return &Classroom{
		Registry: student.NewRegistry(nil),
		Schedule: schedule.NewTable(),
		Metadata: DefaultMetadata(),
		Session:  session.NewState(),
	}
}

// ActiveSubject - предмет, идущий по расписанию в момент now.
func (c *Classroom) ActiveSubject(now time.Time) (string, bool) {
	return c.Schedule.ActiveSubject(now)
}

// subjectOrEmpty возвращает активный предмет или "".
func (c *Classroom) subjectOrEmpty(now time.Time) string {
	s, _ := c.ActiveSubject(now)
	return s
}

// Current возвращает ученика у доски.
func (c *Classroom) Current() (*student.Student, bool) {
	if !c.Session.HasCurrent() {
		return nil, false
	}
	s, err := c.Registry.Get(c.Session.CurrentStudent)
	if err != nil {
		return nil, false
	}
	return s, true
}

// Normalize чинит ссылки состояния урока на удалённых учеников.
func (c *Classroom) Normalize() {
	c.Session.Normalize(c.Registry.Has)
}

// Clone возвращает глубокую копию (для отката при ошибке сохранения).
func (c *Classroom) Clone() *Classroom {
	return &Classroom{
		Registry: c.Registry.Clone(),
		Schedule: c.Schedule.Clone(),
		Metadata: c.Metadata,
		Session:  c.Session.Clone(),
		Version:  c.Version,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER & DATA MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// DeleteStudent удаляет ученика и все ссылки на него в состоянии урока.
func (c *Classroom) DeleteStudent(id string) error {
	if err := c.Registry.Delete(id); err != nil {
		return err
	}
	c.Session.Forget(id)
	return nil
}

// DeleteAllStudents очищает журнал вместе с пулом, пропусками и доской.
func (c *Classroom) DeleteAllStudents() int {
	n := c.Registry.DeleteAll()
	c.Session.Pool = []string{}
	c.Session.AbsentToday = []string{}
	c.Session.ClearCurrent()
	return n
}

// ResetAllParticipation обнуляет статистику всех учеников и текущий круг.
func (c *Classroom) ResetAllParticipation() int {
	n := c.Registry.WipeAllParticipation()
	c.Session.Pool = []string{}
	c.Session.ClearCurrent()
	return n
}

// ClearAll удаляет все данные класса.
func (c *Classroom) ClearAll() {
	version := c.Version
	*c = *New()
	c.Version = version
}

// ReplaceContents загружает журнал, расписание и метаданные из документа
// экспорта. Производные поля пересчитываются, состояние урока очищается.
func (c *Classroom) ReplaceContents(students []*student.Student, table schedule.Table, meta Metadata) {
	for _, s := range students {
		s.Sanitize()
	}
	c.Registry = student.NewRegistry(students)
	c.Schedule = table.Sanitize()
	c.Metadata = meta
	lastReset := c.Session.LastResetDate
	c.Session = session.NewState()
	c.Session.LastResetDate = lastReset
}

// Today возвращает дату момента now.
func Today(now time.Time) shared.Date {
	return shared.DateOf(now)
}
