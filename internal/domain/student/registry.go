package student

import (
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REGISTRY
// Единственный владелец записей учеников. Остальные компоненты
// меняют ученика только через методы Student и Registry.
// ══════════════════════════════════════════════════════════════════════════════

// Registry - упорядоченный журнал учеников (порядок добавления сохраняется).
type Registry struct {
	students []*Student
	byID     map[string]*Student
}

// NewRegistry строит журнал из готовых записей.
func NewRegistry(students []*Student) *Registry {
	r := &Registry{
		students: make([]*Student, 0, len(students)),
		byID:     make(map[string]*Student, len(students)),
	}
	for _, s := range students {
		if s == nil || s.ID == "" {
			continue
		}
		if _, dup := r.byID[s.ID]; dup {
			continue
		}
		r.students = append(r.students, s)
		r.byID[s.ID] = s
	}
	return r
}

// All возвращает учеников в порядке добавления. Срез нельзя изменять.
func (r *Registry) All() []*Student {
	return r.students
}

// Len возвращает число учеников.
func (r *Registry) Len() int {
	return len(r.students)
}

// Get возвращает ученика по ID.
func (r *Registry) Get(id string) (*Student, error) {
	s, ok := r.byID[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	return s, nil
}

// Has проверяет наличие ученика.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// FindByName ищет ученика по полному имени без учёта регистра.
func (r *Registry) FindByName(name string) (*Student, bool) {
	key := NameKey(name)
	for _, s := range r.students {
		if NameKey(s.Name) == key {
			return s, true
		}
	}
	return nil, false
}

// Add добавляет ученика. Имя должно быть уникальным.
func (r *Registry) Add(s *Student) error {
	if _, exists := r.FindByName(s.Name); exists {
		return shared.ErrDuplicateStudent
	}
	if r.Has(s.ID) {
		return shared.ErrDuplicateStudent
	}
	r.students = append(r.students, s)
	r.byID[s.ID] = s
	return nil
}

// Delete удаляет ученика из журнала.
func (r *Registry) Delete(id string) error {
	if !r.Has(id) {
		return shared.ErrStudentNotFound
	}
	delete(r.byID, id)
	for i, s := range r.students {
		if s.ID == id {
			r.students = append(r.students[:i], r.students[i+1:]...)
			break
		}
	}
	return nil
}

// DeleteAll очищает журнал и возвращает число удалённых.
func (r *Registry) DeleteAll() int {
	n := len(r.students)
	r.students = nil
	r.byID = make(map[string]*Student)
	return n
}

// ResetAllWeights возвращает вес каждого ученика к 1.0.
func (r *Registry) ResetAllWeights() int {
	for _, s := range r.students {
		s.Participation.ResetWeight()
	}
	return len(r.students)
}

// WipeAllParticipation полностью обнуляет статистику всех учеников.
func (r *Registry) WipeAllParticipation() int {
	for _, s := range r.students {
		s.Participation.Wipe()
	}
	return len(r.students)
}

// ─────────────────────────────────────────────────────────────────────────────
// Import
// ─────────────────────────────────────────────────────────────────────────────

// ImportRow - строка импорта {имя, фамилия, класс}.
type ImportRow struct {
	FirstName string       `json:"firstname" yaml:"firstname" validate:"required,max=100"`
	LastName  string       `json:"lastname" yaml:"lastname" validate:"max=100"`
	Grade     shared.Grade `json:"grade" yaml:"grade" validate:"gte=0,lte=13"`
}

// ImportResult - итог импорта.
type ImportResult struct {
	Added   []*Student
	Skipped []string
}

// Import добавляет строки, пропуская дубликаты по полному имени
// (и среди уже записанных, и внутри самого импорта).
func (r *Registry) Import(rows []ImportRow, newID func() string, now time.Time) (ImportResult, error) {
	var res ImportResult
	for _, row := range rows {
		name := FullName(row.FirstName, row.LastName)
		if _, exists := r.FindByName(name); exists {
			res.Skipped = append(res.Skipped, name)
			continue
		}
		s, err := NewStudent(NewStudentParams{
			ID:        newID(),
			FirstName: row.FirstName,
			LastName:  row.LastName,
			Grade:     row.Grade,
			Now:       now,
		})
		if err != nil {
			return res, err
		}
		if err := r.Add(s); err != nil {
			return res, err
		}
		res.Added = append(res.Added, s)
	}
	return res, nil
}

// Clone возвращает глубокую копию журнала.
func (r *Registry) Clone() *Registry {
	cp := make([]*Student, len(r.students))
	for i, s := range r.students {
		cp[i] = s.Clone()
	}
	return NewRegistry(cp)
}
