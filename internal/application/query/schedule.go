package query

import (
	"context"

	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE QUERIES
// Расписание недели, уроки сегодня и листание уроков вперёд/назад.
// ══════════════════════════════════════════════════════════════════════════════

// TodayDTO - уроки сегодняшнего дня.
type TodayDTO struct {
	Day           schedule.Weekday  `json:"day,omitempty"`
	SchoolDay     bool              `json:"school_day"`
	Periods       []schedule.Period `json:"periods"`
	ActiveIndex   int               `json:"active_index"`
	ActiveSubject string            `json:"active_subject,omitempty"`
}

// ScheduleHandler отдаёт расписание.
type ScheduleHandler struct {
	source Source
	clock  Clock
}

// NewScheduleHandler создаёт обработчик.
func NewScheduleHandler(source Source, clock Clock) *ScheduleHandler {
	return &ScheduleHandler{source: source, clock: defaultClock(clock)}
}

// Week возвращает расписание недели.
func (h *ScheduleHandler) Week(ctx context.Context) (schedule.Table, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	return c.Schedule, nil
}

// Today возвращает уроки сегодня и индекс текущего (-1, если урока нет).
func (h *ScheduleHandler) Today(ctx context.Context) (*TodayDTO, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	now := h.clock()

	dto := &TodayDTO{Periods: c.Schedule.AllPeriodsToday(now), ActiveIndex: -1}
	dto.Day, dto.SchoolDay = schedule.WeekdayOf(now)
	if p, idx, ok := c.Schedule.ActivePeriod(now); ok {
		dto.ActiveIndex = idx
		dto.ActiveSubject = p.Subject
	}
	return dto, nil
}

// PeriodAt возвращает урок со смещением offset от текущего.
func (h *ScheduleHandler) PeriodAt(ctx context.Context, offset int) (schedule.Period, bool, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return schedule.Period{}, false, err
	}
	p, ok := c.Schedule.PeriodAt(h.clock(), offset)
	return p, ok, nil
}
