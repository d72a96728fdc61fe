package query

import (
	"context"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SESSION STATUS QUERY
// Что сейчас происходит на уроке: кто у доски, какой предмет, сколько
// учеников осталось в круге.
// ══════════════════════════════════════════════════════════════════════════════

// SessionStatusDTO - состояние урока.
type SessionStatusDTO struct {
	CurrentStudent *StudentDTO `json:"current_student"`

	// ActiveSubject - пусто, если сейчас нет урока.
	ActiveSubject string `json:"active_subject,omitempty"`
	HasActive     bool   `json:"has_active_subject"`

	GradeFilter   session.GradeFilter `json:"grade_filter"`
	PoolSize      int                 `json:"pool_size"`
	EligibleCount int                 `json:"eligible_count"`
	AbsentToday   []StudentRef        `json:"absent_today"`
	CallsToday    int                 `json:"calls_today"`
	LastResetDate shared.Date         `json:"last_reset_date,omitempty"`
	LastSubject   string              `json:"last_subject,omitempty"`
	TotalStudents int                 `json:"total_students"`
}

// StudentRef - краткая ссылка на ученика.
type StudentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GetSessionStatusHandler обрабатывает запрос состояния урока.
type GetSessionStatusHandler struct {
	source Source
	clock  Clock
}

// NewGetSessionStatusHandler создаёт обработчик.
func NewGetSessionStatusHandler(source Source, clock Clock) *GetSessionStatusHandler {
	return &GetSessionStatusHandler{source: source, clock: defaultClock(clock)}
}

// Handle возвращает состояние урока.
func (h *GetSessionStatusHandler) Handle(ctx context.Context) (*SessionStatusDTO, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	return BuildSessionStatus(c, h.clock()), nil
}

// BuildSessionStatus собирает DTO из загруженного класса.
func BuildSessionStatus(c *classroom.Classroom, now time.Time) *SessionStatusDTO {
	today := classroom.Today(now)
	st := c.Session

	dto := &SessionStatusDTO{
		GradeFilter:   st.GradeFilter,
		PoolSize:      len(st.Pool),
		EligibleCount: len(session.Eligible(c.Registry, &st)),
		AbsentToday:   make([]StudentRef, 0, len(st.AbsentToday)),
		CallsToday:    st.CallsToday,
		LastResetDate: st.LastResetDate,
		LastSubject:   st.LastSubject,
		TotalStudents: c.Registry.Len(),
	}
	dto.ActiveSubject, dto.HasActive = c.ActiveSubject(now)

	if s, ok := c.Current(); ok {
		cur := NewStudentDTO(s, &st, today)
		dto.CurrentStudent = &cur
	}
	for _, id := range st.AbsentToday {
		if s, err := c.Registry.Get(id); err == nil {
			dto.AbsentToday = append(dto.AbsentToday, StudentRef{ID: s.ID, Name: s.Name})
		}
	}
	return dto
}
