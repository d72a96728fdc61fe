package command

import (
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// Handlers groups every command handler sharing one Executor.
type Handlers struct {
	Executor      *Executor
	SelectStudent *SelectStudentHandler
	RecordOutcome *RecordOutcomeHandler
	Absence       *AbsenceHandler
	ToggleFilter  *ToggleGradeFilterHandler
	Reset         *ResetHandler
	Roster        *RosterHandler
	Profile       *ProfileHandler
	Schedule      *ScheduleHandler
	Document      *DocumentHandler
	Dispatcher    *Dispatcher
}

// NewHandlers wires all command handlers.
func NewHandlers(
	exec *Executor,
	selector *session.Selector,
	gradeLevels []shared.Grade,
	newID IDGenerator,
	log *logger.Logger,
) *Handlers {
	h := &Handlers{
		Executor:      exec,
		SelectStudent: NewSelectStudentHandler(exec, selector, log),
		RecordOutcome: NewRecordOutcomeHandler(exec, log),
		Absence:       NewAbsenceHandler(exec, log),
		ToggleFilter:  NewToggleGradeFilterHandler(exec, gradeLevels, log),
		Reset:         NewResetHandler(exec, log),
		Roster:        NewRosterHandler(exec, newID, log),
		Profile:       NewProfileHandler(exec, log),
		Schedule:      NewScheduleHandler(exec, log),
		Document:      NewDocumentHandler(exec, log),
	}
	h.Dispatcher = NewDispatcher(h.SelectStudent, h.RecordOutcome, h.Absence, h.ToggleFilter)
	return h
}
