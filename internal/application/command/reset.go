package command

import (
	"context"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET COMMAND
// Daily and subject resets are idempotent checks; the participation wipe
// is an explicit teacher action.
// ══════════════════════════════════════════════════════════════════════════════

// ResetScope selects which reset to run.
type ResetScope string

const (
	// ResetDaily runs the daily rollover check.
	ResetDaily ResetScope = "daily"

	// ResetSubject runs the subject-change check.
	ResetSubject ResetScope = "subject"

	// ResetParticipation zeroes every student's statistics.
	ResetParticipation ResetScope = "participation"
)

// IsValid checks the scope is known.
func (s ResetScope) IsValid() bool {
	switch s {
	case ResetDaily, ResetSubject, ResetParticipation:
		return true
	default:
		return false
	}
}

// ResetCommand contains the reset request.
type ResetCommand struct {
	Scope ResetScope
}

// Validate validates the command.
func (c ResetCommand) Validate() error {
	if !c.Scope.IsValid() {
		return shared.NewDomainError("reset", "Validate", shared.ErrInvalidInput, "scope must be daily, subject or participation")
	}
	return nil
}

// ResetResult describes what the reset changed.
type ResetResult struct {
	Scope         ResetScope
	Performed     bool
	Initialized   bool
	Previous      string
	Current       string
	StudentsReset int
}

// ResetHandler handles ResetCommand.
type ResetHandler struct {
	exec *Executor
	log  *logger.Logger
}

// NewResetHandler creates a new ResetHandler.
func NewResetHandler(exec *Executor, log *logger.Logger) *ResetHandler {
	return &ResetHandler{exec: exec, log: handlerLogger(log, "reset")}
}

// Handle executes the reset.
func (h *ResetHandler) Handle(ctx context.Context, cmd ResetCommand) (*ResetResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res := ResetResult{Scope: cmd.Scope}
	_, _, err := h.exec.Execute(ctx, "reset_"+string(cmd.Scope), func(c *classroom.Classroom, now time.Time) (Change, error) {
		res = ResetResult{Scope: cmd.Scope}

		switch cmd.Scope {
		case ResetDaily:
			r, keys := c.DailyResetIfNeeded(now)
			res.Performed, res.Previous, res.Current, res.StudentsReset = r.Performed, r.Previous, r.Current, r.StudentsReset
			ch := Change{Keys: keys}
			if r.Performed {
				ch.Events = []shared.Event{shared.NewDailyResetEvent(shared.DefaultClassroomID, r.Current, r.StudentsReset)}
			}
			return ch, nil

		case ResetSubject:
			r, keys := c.SubjectResetIfNeeded(now)
			res.Performed, res.Initialized = r.Performed, r.Initialized
			res.Previous, res.Current, res.StudentsReset = r.Previous, r.Current, r.StudentsReset
			ch := Change{Keys: keys}
			if r.Performed {
				ch.Events = []shared.Event{shared.NewSubjectResetEvent(shared.DefaultClassroomID, r.Previous, r.Current, r.StudentsReset)}
			}
			return ch, nil

		default:
			n := c.ResetAllParticipation()
			res.Performed, res.StudentsReset = true, n
			return Change{
				Keys: []classroom.Key{classroom.KeyStudents, classroom.KeySessionPool, classroom.KeyCurrentStudent},
				Events: []shared.Event{shared.NewClassroomEvent(shared.EventParticipationWiped, shared.DefaultClassroomID,
					map[string]interface{}{"students_reset": n})},
			}, nil
		}
	})
	if err != nil {
		return nil, err
	}

	if res.Performed {
		h.log.Info("reset performed",
			logger.String("scope", string(res.Scope)),
			logger.String("previous", res.Previous),
			logger.String("current", res.Current),
			logger.Int("students_reset", res.StudentsReset),
		)
	}
	return &res, nil
}
