package command

import (
	"context"
	"fmt"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SELECT STUDENT COMMAND
// Runs both reset checks and then puts the next student on the spot.
// ══════════════════════════════════════════════════════════════════════════════

// SelectStudentCommand requests the next student.
type SelectStudentCommand struct {
	// CorrelationID for tracing.
	CorrelationID string
}

// SelectStudentResult contains the selected student.
type SelectStudentResult struct {
	Student       *student.Student
	Subject       string
	Weight        float64
	Candidates    int
	PoolRemaining int
	PoolRefilled  bool
	Strategy      session.Strategy
	DailyReset    bool
	SubjectReset  bool
	SelectedAt    time.Time
}

// SelectStudentHandler handles SelectStudentCommand.
type SelectStudentHandler struct {
	exec     *Executor
	selector *session.Selector
	log      *logger.Logger
}

// NewSelectStudentHandler creates a new SelectStudentHandler.
func NewSelectStudentHandler(exec *Executor, selector *session.Selector, log *logger.Logger) *SelectStudentHandler {
	return &SelectStudentHandler{exec: exec, selector: selector, log: handlerLogger(log, "select_student")}
}

// Handle executes the select student command.
func (h *SelectStudentHandler) Handle(ctx context.Context, cmd SelectStudentCommand) (*SelectStudentResult, error) {
	var res SelectStudentResult

	c, _, err := h.exec.Execute(ctx, "select_student", func(c *classroom.Classroom, now time.Time) (Change, error) {
		res = SelectStudentResult{SelectedAt: now}
		var ch Change

		daily, keys := c.DailyResetIfNeeded(now)
		ch.Keys = append(ch.Keys, keys...)
		if daily.Performed {
			res.DailyReset = true
			ch.Events = append(ch.Events, shared.NewDailyResetEvent(shared.DefaultClassroomID, daily.Current, daily.StudentsReset))
		}

		subj, keys := c.SubjectResetIfNeeded(now)
		ch.Keys = append(ch.Keys, keys...)
		if subj.Performed {
			res.SubjectReset = true
			ch.Events = append(ch.Events, shared.NewSubjectResetEvent(shared.DefaultClassroomID, subj.Previous, subj.Current, subj.StudentsReset))
		}

		picked, err := c.SelectNext(h.selector, now)
		if err != nil {
			return Change{}, err
		}
		ch.Keys = append(ch.Keys, picked.Keys...)

		if picked.PoolRefilled {
			ch.Events = append(ch.Events, shared.NewPoolRefilledEvent(shared.DefaultClassroomID, picked.RefillSize, c.Session.GradeFilter.String()))
		}
		selected := shared.NewStudentSelectedEvent(
			picked.Student.ID, picked.Student.Name, picked.Subject, picked.Weight,
			len(c.Session.Pool), string(picked.Strategy),
		)
		selected.BaseEvent = selected.BaseEvent.WithCorrelationID(cmd.CorrelationID)
		ch.Events = append(ch.Events, selected)

		res.Student = picked.Student
		res.Subject = picked.Subject
		res.Weight = picked.Weight
		res.Candidates = picked.Candidates
		res.PoolRefilled = picked.PoolRefilled
		res.Strategy = picked.Strategy
		return ch, nil
	})
	if err != nil {
		if shared.IsNoOp(err) {
			h.log.Info("nothing to select", logger.Err(err))
		}
		return nil, err
	}

	res.PoolRemaining = len(c.Session.Pool)
	h.log.Info("student selected",
		logger.StudentID(res.Student.ID),
		logger.Subject(res.Subject),
		logger.Float64("weight", res.Weight),
		logger.PoolSize(res.PoolRemaining),
	)
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD OUTCOME COMMAND
// Resolves the current call. The student record, pool and current student
// are written together.
// ══════════════════════════════════════════════════════════════════════════════

// RecordOutcomeCommand contains the outcome of the current call.
type RecordOutcomeCommand struct {
	Outcome student.Outcome

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordOutcomeCommand) Validate() error {
	if !c.Outcome.IsValid() {
		return shared.ErrInvalidOutcome
	}
	return nil
}

// RecordOutcomeResult contains the updated student.
type RecordOutcomeResult struct {
	Student    *student.Student
	Outcome    student.Outcome
	Subject    string
	CallsToday int
}

// RecordOutcomeHandler handles RecordOutcomeCommand.
type RecordOutcomeHandler struct {
	exec *Executor
	log  *logger.Logger
}

// NewRecordOutcomeHandler creates a new RecordOutcomeHandler.
func NewRecordOutcomeHandler(exec *Executor, log *logger.Logger) *RecordOutcomeHandler {
	return &RecordOutcomeHandler{exec: exec, log: handlerLogger(log, "record_outcome")}
}

// Handle executes the record outcome command.
func (h *RecordOutcomeHandler) Handle(ctx context.Context, cmd RecordOutcomeCommand) (*RecordOutcomeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var res RecordOutcomeResult
	c, _, err := h.exec.Execute(ctx, "record_outcome", func(c *classroom.Classroom, now time.Time) (Change, error) {
		out, err := c.RecordOutcome(cmd.Outcome, now)
		if err != nil {
			return Change{}, err
		}
		res = RecordOutcomeResult{Student: out.Student, Outcome: out.Outcome, Subject: out.Subject}
		p := out.Student.Participation
		return Change{
			Keys: out.Keys,
			Events: []shared.Event{
				shared.NewOutcomeRecordedEvent(out.Student.ID, string(out.Outcome), out.Subject, p.TotalCalls, p.Weight),
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	res.CallsToday = c.Session.CallsToday
	h.log.Info("outcome recorded",
		logger.StudentID(res.Student.ID),
		logger.Outcome(string(res.Outcome)),
		logger.Subject(res.Subject),
		logger.Float64("weight", res.Student.Participation.Weight),
	)
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ABSENCE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// RecordAbsenceCommand marks a student absent for today.
type RecordAbsenceCommand struct {
	// StudentID of the absent student. Empty means the current student.
	StudentID string
}

// ClearAbsenceCommand removes today's absence mark.
type ClearAbsenceCommand struct {
	StudentID string
}

// Validate validates the command.
func (c ClearAbsenceCommand) Validate() error {
	return requireStudentID("clear_absence", c.StudentID)
}

// AbsenceResult contains the affected student.
type AbsenceResult struct {
	Student       *student.Student
	Date          shared.Date
	Subject       string
	AlreadyMarked bool
}

// AbsenceHandler handles absence commands.
type AbsenceHandler struct {
	exec *Executor
	log  *logger.Logger
}

// NewAbsenceHandler creates a new AbsenceHandler.
func NewAbsenceHandler(exec *Executor, log *logger.Logger) *AbsenceHandler {
	return &AbsenceHandler{exec: exec, log: handlerLogger(log, "absence")}
}

// Handle marks the student absent.
func (h *AbsenceHandler) Handle(ctx context.Context, cmd RecordAbsenceCommand) (*AbsenceResult, error) {
	var res AbsenceResult
	_, _, err := h.exec.Execute(ctx, "record_absence", func(c *classroom.Classroom, now time.Time) (Change, error) {
		out, err := c.RecordAbsence(cmd.StudentID, now)
		if err != nil {
			return Change{}, err
		}
		res = AbsenceResult{Student: out.Student, Date: out.Date, Subject: out.Subject, AlreadyMarked: out.AlreadyMarked}
		ch := Change{Keys: out.Keys}
		if !out.AlreadyMarked {
			ch.Events = append(ch.Events, shared.NewAbsenceRecordedEvent(out.Student.ID, out.Date.String(), out.Subject))
		}
		return ch, nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("absence recorded",
		logger.StudentID(res.Student.ID),
		logger.Subject(res.Subject),
		logger.Bool("already_marked", res.AlreadyMarked),
	)
	return &res, nil
}

// HandleClear removes today's absence mark.
func (h *AbsenceHandler) HandleClear(ctx context.Context, cmd ClearAbsenceCommand) (*AbsenceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var res AbsenceResult
	_, _, err := h.exec.Execute(ctx, "clear_absence", func(c *classroom.Classroom, now time.Time) (Change, error) {
		out, err := c.ClearAbsence(cmd.StudentID, now)
		if err != nil {
			return Change{}, err
		}
		res = AbsenceResult{Student: out.Student, Date: out.Date, AlreadyMarked: out.AlreadyMarked}
		return Change{
			Keys:   out.Keys,
			Events: []shared.Event{shared.NewAbsenceClearedEvent(out.Student.ID, out.Date.String())},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("absence cleared", logger.StudentID(res.Student.ID))
	return &res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TOGGLE GRADE FILTER COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ToggleGradeFilterResult contains the new filter.
type ToggleGradeFilterResult struct {
	Previous session.GradeFilter
	Current  session.GradeFilter
}

// ToggleGradeFilterHandler cycles the grade filter: all -> levels... -> all.
type ToggleGradeFilterHandler struct {
	exec   *Executor
	levels []shared.Grade
	log    *logger.Logger
}

// NewToggleGradeFilterHandler creates a new ToggleGradeFilterHandler.
func NewToggleGradeFilterHandler(exec *Executor, levels []shared.Grade, log *logger.Logger) *ToggleGradeFilterHandler {
	return &ToggleGradeFilterHandler{exec: exec, levels: levels, log: handlerLogger(log, "toggle_grade_filter")}
}

// Handle executes the toggle.
func (h *ToggleGradeFilterHandler) Handle(ctx context.Context) (*ToggleGradeFilterResult, error) {
	var res ToggleGradeFilterResult
	_, _, err := h.exec.Execute(ctx, "toggle_grade_filter", func(c *classroom.Classroom, _ time.Time) (Change, error) {
		res.Previous = c.Session.GradeFilter
		f, keys := c.ToggleGradeFilter(h.levels)
		res.Current = f
		return Change{
			Keys: keys,
			Events: []shared.Event{shared.NewClassroomEvent(shared.EventGradeFilterToggled, shared.DefaultClassroomID,
				map[string]interface{}{"previous": res.Previous.String(), "grade_filter": f.String()})},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("grade filter toggled", logger.GradeFilter(res.Current.String()))
	return &res, nil
}

func handlerLogger(log *logger.Logger, op string) *logger.Logger {
	if log == nil {
		log = logger.Nop()
	}
	return log.With(logger.Component("command"), logger.Operation(op))
}

func requireStudentID(op, id string) error {
	if id == "" {
		return shared.NewDomainError("student", op, shared.ErrInvalidInput, fmt.Sprintf("%s: student id is required", op))
	}
	return nil
}
