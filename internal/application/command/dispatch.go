package command

import (
	"context"
	"strings"

	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND SURFACE
// A closed set of named commands (keyboard shortcuts, CLI verbs, HTTP
// command endpoint). Strings are parsed once at the edge; dispatch is a switch.
// ══════════════════════════════════════════════════════════════════════════════

// Kind is a named classroom command.
type Kind string

const (
	KindSelectStudent     Kind = "select-student"
	KindMarkCorrect       Kind = "mark-correct"
	KindMarkIncorrect     Kind = "mark-incorrect"
	KindMarkAbsent        Kind = "mark-absent"
	KindToggleGradeFilter Kind = "toggle-grade-filter"
)

// Kinds lists every command kind.
var Kinds = []Kind{KindSelectStudent, KindMarkCorrect, KindMarkIncorrect, KindMarkAbsent, KindToggleGradeFilter}

// ParseKind parses a command name. Underscores are accepted in place of dashes.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	for _, v := range Kinds {
		if v == k {
			return k, nil
		}
	}
	return "", shared.ErrUnknownCommand
}

// DispatchResult is the uniform result of a dispatched command.
// Exactly one of the typed results is set.
type DispatchResult struct {
	Kind     Kind
	Selected *SelectStudentResult
	Outcome  *RecordOutcomeResult
	Absence  *AbsenceResult
	Filter   *ToggleGradeFilterResult
}

// Student returns the student the command acted on, if any.
func (r *DispatchResult) Student() *student.Student {
	switch {
	case r.Selected != nil:
		return r.Selected.Student
	case r.Outcome != nil:
		return r.Outcome.Student
	case r.Absence != nil:
		return r.Absence.Student
	default:
		return nil
	}
}

// GradeFilter returns the new filter for a toggle command.
func (r *DispatchResult) GradeFilter() (session.GradeFilter, bool) {
	if r.Filter == nil {
		return "", false
	}
	return r.Filter.Current, true
}

// Dispatcher maps command kinds to core handlers.
type Dispatcher struct {
	selectStudent *SelectStudentHandler
	outcome       *RecordOutcomeHandler
	absence       *AbsenceHandler
	toggle        *ToggleGradeFilterHandler
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	selectStudent *SelectStudentHandler,
	outcome *RecordOutcomeHandler,
	absence *AbsenceHandler,
	toggle *ToggleGradeFilterHandler,
) *Dispatcher {
	return &Dispatcher{
		selectStudent: selectStudent,
		outcome:       outcome,
		absence:       absence,
		toggle:        toggle,
	}
}

// Dispatch runs the command.
func (d *Dispatcher) Dispatch(ctx context.Context, kind Kind, correlationID string) (*DispatchResult, error) {
	res := &DispatchResult{Kind: kind}
	var err error

	switch kind {
	case KindSelectStudent:
		res.Selected, err = d.selectStudent.Handle(ctx, SelectStudentCommand{CorrelationID: correlationID})
	case KindMarkCorrect:
		res.Outcome, err = d.outcome.Handle(ctx, RecordOutcomeCommand{Outcome: student.OutcomeCorrect, CorrelationID: correlationID})
	case KindMarkIncorrect:
		res.Outcome, err = d.outcome.Handle(ctx, RecordOutcomeCommand{Outcome: student.OutcomeIncorrect, CorrelationID: correlationID})
	case KindMarkAbsent:
		res.Absence, err = d.absence.Handle(ctx, RecordAbsenceCommand{})
	case KindToggleGradeFilter:
		res.Filter, err = d.toggle.Handle(ctx)
	default:
		return nil, shared.ErrUnknownCommand
	}

	if err != nil {
		return nil, err
	}
	return res, nil
}
