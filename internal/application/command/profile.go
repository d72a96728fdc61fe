package command

import (
	"context"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROFILE COMMANDS
// Goals, interests and meaningful greeting connections (MGC).
// ══════════════════════════════════════════════════════════════════════════════

// SetGoalCommand sets the student's current goal.
type SetGoalCommand struct {
	StudentID string
	Goal      string
}

// UpdateInterestsCommand replaces the student's interests.
type UpdateInterestsCommand struct {
	StudentID        string
	Extracurriculars []string
	Strengths        []string
	Notes            string
}

// RecordConnectionCommand logs an MGC for today.
type RecordConnectionCommand struct {
	StudentID string
	Note      string
}

// RecordConnectionResult contains the connection outcome.
type RecordConnectionResult struct {
	Student *student.Student
	Result  student.ConnectionResult
	Date    shared.Date
	Subject string
}

// ProfileHandler handles profile commands.
type ProfileHandler struct {
	exec *Executor
	log  *logger.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(exec *Executor, log *logger.Logger) *ProfileHandler {
	return &ProfileHandler{exec: exec, log: handlerLogger(log, "profile")}
}

// SetGoal sets a goal; a different previous goal is archived.
func (h *ProfileHandler) SetGoal(ctx context.Context, cmd SetGoalCommand) (*student.Student, error) {
	if err := requireStudentID("set_goal", cmd.StudentID); err != nil {
		return nil, err
	}
	return h.updateStudent(ctx, "set_goal", cmd.StudentID, func(s *student.Student, now time.Time) (shared.Event, error) {
		s.SetGoal(cmd.Goal, classroom.Today(now))
		return shared.NewClassroomEvent(shared.EventGoalSet, s.ID, map[string]interface{}{"goal": s.Goal}), nil
	})
}

// CompleteGoal archives the current goal as completed today.
func (h *ProfileHandler) CompleteGoal(ctx context.Context, studentID string) (*student.Student, error) {
	if err := requireStudentID("complete_goal", studentID); err != nil {
		return nil, err
	}
	return h.updateStudent(ctx, "complete_goal", studentID, func(s *student.Student, now time.Time) (shared.Event, error) {
		goal := s.Goal
		if err := s.CompleteGoal(classroom.Today(now)); err != nil {
			return nil, err
		}
		return shared.NewClassroomEvent(shared.EventGoalCompleted, s.ID, map[string]interface{}{"goal": goal}), nil
	})
}

// UpdateInterests replaces the interests record.
func (h *ProfileHandler) UpdateInterests(ctx context.Context, cmd UpdateInterestsCommand) (*student.Student, error) {
	if err := requireStudentID("update_interests", cmd.StudentID); err != nil {
		return nil, err
	}
	return h.updateStudent(ctx, "update_interests", cmd.StudentID, func(s *student.Student, _ time.Time) (shared.Event, error) {
		s.UpdateInterests(student.NewInterests(cmd.Extracurriculars, cmd.Strengths, cmd.Notes))
		return shared.NewClassroomEvent(shared.EventInterestsUpdated, s.ID, nil), nil
	})
}

// RecordConnection logs or edits today's MGC for the student.
func (h *ProfileHandler) RecordConnection(ctx context.Context, cmd RecordConnectionCommand) (*RecordConnectionResult, error) {
	if err := requireStudentID("record_connection", cmd.StudentID); err != nil {
		return nil, err
	}

	var res RecordConnectionResult
	_, _, err := h.exec.Execute(ctx, "record_connection", func(c *classroom.Classroom, now time.Time) (Change, error) {
		out, err := c.RecordConnection(cmd.StudentID, cmd.Note, now)
		if err != nil {
			return Change{}, err
		}
		res = RecordConnectionResult{Student: out.Student, Result: out.Result, Date: out.Date, Subject: out.Subject}
		ch := Change{Keys: out.Keys}
		if out.Result != student.ConnectionIgnored {
			ch.Events = []shared.Event{shared.NewConnectionRecordedEvent(out.Student.ID, out.Date.String(), out.Subject,
				out.Result == student.ConnectionEdited, out.Student.Connections.TotalMGCs)}
		}
		return ch, nil
	})
	if err != nil {
		return nil, err
	}

	if res.Result != student.ConnectionIgnored {
		h.log.Info("connection recorded",
			logger.StudentID(res.Student.ID),
			logger.Subject(res.Subject),
			logger.Bool("edited", res.Result == student.ConnectionEdited),
		)
	}
	return &res, nil
}

func (h *ProfileHandler) updateStudent(
	ctx context.Context,
	op, id string,
	fn func(s *student.Student, now time.Time) (shared.Event, error),
) (*student.Student, error) {
	var updated *student.Student
	_, _, err := h.exec.Execute(ctx, op, func(c *classroom.Classroom, now time.Time) (Change, error) {
		s, err := c.Registry.Get(id)
		if err != nil {
			return Change{}, err
		}
		ev, err := fn(s, now)
		if err != nil {
			return Change{}, err
		}
		updated = s
		return Change{Keys: []classroom.Key{classroom.KeyStudents}, Events: []shared.Event{ev}}, nil
	})
	if err != nil {
		return nil, err
	}

	h.log.Info("student updated", logger.Operation(op), logger.StudentID(id))
	return updated, nil
}
