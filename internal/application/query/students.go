package query

import (
	"context"
	"sort"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListStudentsQuery - параметры списка учеников.
type ListStudentsQuery struct {
	// GradeFilter - ограничить одним классом (пусто - все).
	GradeFilter session.GradeFilter

	// SortByName - сортировать по имени вместо порядка журнала.
	SortByName bool
}

// StudentsHandler отдаёт списки учеников.
type StudentsHandler struct {
	source Source
	clock  Clock
}

// NewStudentsHandler создаёт обработчик.
func NewStudentsHandler(source Source, clock Clock) *StudentsHandler {
	return &StudentsHandler{source: source, clock: defaultClock(clock)}
}

// List возвращает учеников.
func (h *StudentsHandler) List(ctx context.Context, q ListStudentsQuery) ([]StudentDTO, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	today := classroom.Today(h.clock())

	students := append([]*student.Student(nil), c.Registry.All()...)
	if q.SortByName {
		student.SortByName(students)
	}

	out := make([]StudentDTO, 0, len(students))
	for _, s := range students {
		if q.GradeFilter != "" && !q.GradeFilter.Matches(s.Grade) {
			continue
		}
		out = append(out, NewStudentDTO(s, &c.Session, today))
	}
	return out, nil
}

// Get возвращает полную запись ученика.
func (h *StudentsHandler) Get(ctx context.Context, id string) (*student.Student, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	return c.Registry.Get(id)
}

// ══════════════════════════════════════════════════════════════════════════════
// NEGLECTED CONNECTIONS QUERY
// Кому давно не уделяли внимания: сначала те, с кем связи не было
// вовсе, затем по убыванию дней с последней связи.
// ══════════════════════════════════════════════════════════════════════════════

// NeglectedDTO - строка списка.
type NeglectedDTO struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Grade          int         `json:"grade"`
	TotalMGCs      int         `json:"total_mgcs"`
	LastConnection shared.Date `json:"last_connection,omitempty"`
	DaysSince      *int        `json:"days_since"`
	NeverConnected bool        `json:"never_connected"`
}

// Neglected возвращает учеников, отсортированных от самых забытых.
// limit <= 0 - без ограничения.
func (h *StudentsHandler) Neglected(ctx context.Context, limit int) ([]NeglectedDTO, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	return BuildNeglected(c.Registry.All(), classroom.Today(h.clock()), limit), nil
}

// BuildNeglected сортирует учеников по давности последней связи.
func BuildNeglected(students []*student.Student, today shared.Date, limit int) []NeglectedDTO {
	out := make([]NeglectedDTO, 0, len(students))
	for _, s := range students {
		row := NeglectedDTO{
			ID:             s.ID,
			Name:           s.Name,
			Grade:          int(s.Grade),
			TotalMGCs:      s.Connections.TotalMGCs,
			LastConnection: s.Connections.LastConnection,
		}
		if days, ok := s.DaysSinceConnection(today); ok {
			row.DaysSince = &days
		} else {
			row.NeverConnected = true
		}
		out = append(out, row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.NeverConnected != b.NeverConnected {
			return a.NeverConnected
		}
		if a.NeverConnected {
			return student.NameKey(a.Name) < student.NameKey(b.Name)
		}
		if *a.DaysSince != *b.DaysSince {
			return *a.DaysSince > *b.DaysSince
		}
		return student.NameKey(a.Name) < student.NameKey(b.Name)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
