package classroom

import (
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT DOCUMENT
// Полный документ класса для экспорта и обратного импорта без потерь.
// ══════════════════════════════════════════════════════════════════════════════

// Document - журнал, расписание и метаданные одним документом.
type Document struct {
	Students   []*student.Student `json:"students" yaml:"students"`
	Schedules  schedule.Table     `json:"schedules" yaml:"schedules"`
	Metadata   Metadata           `json:"metadata" yaml:"metadata"`
	ExportDate time.Time          `json:"exportDate" yaml:"exportDate"`
}

// Document собирает документ экспорта из текущего состояния.
func (c *Classroom) Document(now time.Time) Document {
	students := make([]*student.Student, 0, c.Registry.Len())
	for _, s := range c.Registry.All() {
		students = append(students, s.Clone())
	}
	return Document{
		Students:   students,
		Schedules:  c.Schedule.Clone(),
		Metadata:   c.Metadata,
		ExportDate: now.UTC(),
	}
}

// ImportDocument заменяет журнал, расписание и метаданные содержимым документа.
// Производные поля пересчитываются, ссылки состояния урока сбрасываются.
// Возвращает ключи для записи.
func (c *Classroom) ImportDocument(doc Document) []Key {
	students := make([]*student.Student, 0, len(doc.Students))
	for _, s := range doc.Students {
		if s == nil || s.ID == "" {
			continue
		}
		students = append(students, s.Clone())
	}
	table := doc.Schedules
	if table == nil {
		table = schedule.NewTable()
	}
	meta := doc.Metadata
	if meta == (Metadata{}) {
		meta = DefaultMetadata()
	}
	c.ReplaceContents(students, table, meta)
	return []Key{
		KeyStudents, KeySchedules, KeyMetadata,
		KeyAbsentToday, KeySessionPool, KeyCurrentStudent, KeyGradeFilter,
		KeyCallsToday, KeyLastSubject,
	}
}
