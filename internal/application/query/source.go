// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ИСТОЧНИКИ ДАННЫХ
// ══════════════════════════════════════════════════════════════════════════════

// Source отдаёт текущее состояние класса (command.Executor подходит).
type Source interface {
	Read(ctx context.Context) (*classroom.Classroom, error)
}

// Clock возвращает текущее время.
type Clock func() time.Time

// Cache - кэш готовых read-моделей (Redis или ничего).
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT DTO
// ══════════════════════════════════════════════════════════════════════════════

// StudentDTO - ученик с вычисленными полями для UI.
type StudentDTO struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Grade shared.Grade `json:"grade"`
	Goal  string       `json:"goal,omitempty"`

	TotalCalls       int     `json:"total_calls"`
	CorrectAnswers   int     `json:"correct_answers"`
	IncorrectAnswers int     `json:"incorrect_answers"`
	Accuracy         float64 `json:"accuracy"`
	Weight           float64 `json:"weight"`

	TotalMGCs      int         `json:"total_mgcs"`
	LastConnection shared.Date `json:"last_connection,omitempty"`

	// DaysSinceLastMGC - nil, если связей ещё не было.
	DaysSinceLastMGC *int `json:"days_since_last_mgc"`

	Absences    int  `json:"absences"`
	AbsentToday bool `json:"absent_today"`
	InPool      bool `json:"in_pool"`
	IsCurrent   bool `json:"is_current"`
}

// NewStudentDTO строит DTO. Производные поля вычисляются на чтении.
func NewStudentDTO(s *student.Student, st *session.State, today shared.Date) StudentDTO {
	p := s.Participation
	dto := StudentDTO{
		ID:               s.ID,
		Name:             s.Name,
		Grade:            s.Grade,
		Goal:             s.Goal,
		TotalCalls:       p.TotalCalls,
		CorrectAnswers:   p.CorrectAnswers,
		IncorrectAnswers: p.IncorrectAnswers,
		Accuracy:         p.Accuracy(),
		Weight:           s.SelectionWeight(),
		TotalMGCs:        s.Connections.TotalMGCs,
		LastConnection:   s.Connections.LastConnection,
		Absences:         s.AbsenceCount(),
	}
	if days, ok := s.DaysSinceConnection(today); ok {
		dto.DaysSinceLastMGC = &days
	}
	if st != nil {
		dto.AbsentToday = st.IsAbsent(s.ID)
		dto.InPool = st.InPool(s.ID)
		dto.IsCurrent = st.CurrentStudent == s.ID
	}
	return dto
}

func defaultClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}
