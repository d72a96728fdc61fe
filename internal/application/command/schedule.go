package command

import (
	"context"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// ReplaceScheduleCommand replaces the whole week (CSV upload).
type ReplaceScheduleCommand struct {
	Week map[schedule.Weekday][]schedule.Period
}

// AppendPeriodsCommand adds periods to one day (bulk text entry).
type AppendPeriodsCommand struct {
	Day     schedule.Weekday
	Periods []schedule.Period
}

// DeletePeriodCommand removes one period by its index in the day.
type DeletePeriodCommand struct {
	Day   schedule.Weekday
	Index int
}

// ScheduleHandler handles schedule commands.
type ScheduleHandler struct {
	exec *Executor
	log  *logger.Logger
}

// NewScheduleHandler creates a new ScheduleHandler.
func NewScheduleHandler(exec *Executor, log *logger.Logger) *ScheduleHandler {
	return &ScheduleHandler{exec: exec, log: handlerLogger(log, "schedule")}
}

// Replace replaces the weekly timetable.
func (h *ScheduleHandler) Replace(ctx context.Context, cmd ReplaceScheduleCommand) (schedule.Table, error) {
	return h.edit(ctx, "replace_schedule", func(t schedule.Table) error {
		return t.ReplaceWeek(cmd.Week)
	})
}

// Append adds periods to a day and re-sorts it by start time.
func (h *ScheduleHandler) Append(ctx context.Context, cmd AppendPeriodsCommand) (schedule.Table, error) {
	if len(cmd.Periods) == 0 {
		return nil, shared.ErrInvalidPeriod
	}
	return h.edit(ctx, "append_periods", func(t schedule.Table) error {
		return t.Append(cmd.Day, cmd.Periods...)
	})
}

// DeletePeriod removes one period.
func (h *ScheduleHandler) DeletePeriod(ctx context.Context, cmd DeletePeriodCommand) (schedule.Table, error) {
	return h.edit(ctx, "delete_period", func(t schedule.Table) error {
		_, err := t.DeletePeriod(cmd.Day, cmd.Index)
		return err
	})
}

// ClearDay removes every period of a day.
func (h *ScheduleHandler) ClearDay(ctx context.Context, day schedule.Weekday) (schedule.Table, error) {
	return h.edit(ctx, "clear_day", func(t schedule.Table) error {
		return t.ClearDay(day)
	})
}

// ClearWeek removes the whole timetable.
func (h *ScheduleHandler) ClearWeek(ctx context.Context) (schedule.Table, error) {
	return h.edit(ctx, "clear_week", func(t schedule.Table) error {
		t.ClearWeek()
		return nil
	})
}

func (h *ScheduleHandler) edit(ctx context.Context, op string, fn func(t schedule.Table) error) (schedule.Table, error) {
	c, _, err := h.exec.Execute(ctx, op, func(c *classroom.Classroom, _ time.Time) (Change, error) {
		if err := fn(c.Schedule); err != nil {
			return Change{}, err
		}
		return Change{
			Keys: []classroom.Key{classroom.KeySchedules},
			Events: []shared.Event{shared.NewClassroomEvent(shared.EventScheduleUpdated, shared.DefaultClassroomID,
				map[string]interface{}{"operation": op, "periods": c.Schedule.PeriodCount()})},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("schedule updated", logger.Operation(op), logger.Int("periods", c.Schedule.PeriodCount()))
	return c.Schedule, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// METADATA & DOCUMENT COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateMetadataCommand sets class metadata. nil fields are left unchanged.
type UpdateMetadataCommand struct {
	SchoolYear *string
	Term       *string
	Teacher    *string
	ClassName  *string
}

// DocumentHandler handles metadata edits and whole-document import.
type DocumentHandler struct {
	exec *Executor
	log  *logger.Logger
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(exec *Executor, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{exec: exec, log: handlerLogger(log, "document")}
}

// UpdateMetadata applies the non-nil fields.
func (h *DocumentHandler) UpdateMetadata(ctx context.Context, cmd UpdateMetadataCommand) (classroom.Metadata, error) {
	c, _, err := h.exec.Execute(ctx, "update_metadata", func(c *classroom.Classroom, _ time.Time) (Change, error) {
		m := c.Metadata
		setIf(&m.SchoolYear, cmd.SchoolYear)
		setIf(&m.Term, cmd.Term)
		setIf(&m.Teacher, cmd.Teacher)
		setIf(&m.ClassName, cmd.ClassName)
		if m == c.Metadata {
			return Change{}, nil
		}
		c.Metadata = m
		return Change{
			Keys:   []classroom.Key{classroom.KeyMetadata},
			Events: []shared.Event{shared.NewClassroomEvent(shared.EventMetadataUpdated, shared.DefaultClassroomID, nil)},
		}, nil
	})
	if err != nil {
		return classroom.Metadata{}, err
	}
	return c.Metadata, nil
}

// ImportDocument replaces roster, schedule and metadata with an exported document.
// Derived participation and connection fields are recomputed, never trusted.
func (h *DocumentHandler) ImportDocument(ctx context.Context, doc classroom.Document) (int, error) {
	var n int
	_, _, err := h.exec.Execute(ctx, "import_document", func(c *classroom.Classroom, _ time.Time) (Change, error) {
		keys := c.ImportDocument(doc)
		n = c.Registry.Len()
		return Change{
			Keys: keys,
			Events: []shared.Event{shared.NewClassroomEvent(shared.EventClassroomImported, shared.DefaultClassroomID,
				map[string]interface{}{"students": n, "periods": c.Schedule.PeriodCount()})},
		}, nil
	})
	if err != nil {
		return 0, err
	}

	h.log.Info("classroom document imported", logger.Int("students", n))
	return n, nil
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
