package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER COMMANDS
// Adding, importing and deleting students. Import deduplicates by full name.
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator produces new student ids.
type IDGenerator func() string

// AddStudentCommand adds one student manually.
type AddStudentCommand struct {
	FirstName string
	LastName  string

	// Grade defaults to shared.DefaultGrade when nil.
	Grade *shared.Grade
}

// Validate validates the command.
func (c AddStudentCommand) Validate() error {
	if student.FullName(c.FirstName, c.LastName) == "" {
		return shared.ErrInvalidStudentName
	}
	if c.Grade != nil && !c.Grade.IsValid() {
		return shared.ErrInvalidGrade
	}
	return nil
}

func (c AddStudentCommand) row() student.ImportRow {
	grade := shared.DefaultGrade
	if c.Grade != nil {
		grade = *c.Grade
	}
	return student.ImportRow{FirstName: c.FirstName, LastName: c.LastName, Grade: grade}
}

// ImportRosterCommand imports parsed roster rows.
type ImportRosterCommand struct {
	Rows []student.ImportRow

	// Source names where the rows came from (csv, text, inbox file name).
	Source string
}

// ImportRosterResult contains the import outcome.
type ImportRosterResult struct {
	Added   []*student.Student
	Skipped []string
}

// RosterHandler handles roster commands.
type RosterHandler struct {
	exec  *Executor
	newID IDGenerator
	log   *logger.Logger
}

// NewRosterHandler creates a new RosterHandler. newID defaults to random UUIDs.
func NewRosterHandler(exec *Executor, newID IDGenerator, log *logger.Logger) *RosterHandler {
	if newID == nil {
		newID = uuid.NewString
	}
	return &RosterHandler{exec: exec, newID: newID, log: handlerLogger(log, "roster")}
}

// AddStudent adds one student. A student with the same full name is rejected.
func (h *RosterHandler) AddStudent(ctx context.Context, cmd AddStudentCommand) (*student.Student, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	res, err := h.importRows(ctx, "add_student", []student.ImportRow{cmd.row()}, "manual")
	if err != nil {
		return nil, err
	}
	if len(res.Added) == 0 {
		return nil, shared.ErrDuplicateStudent
	}
	return res.Added[0], nil
}

// Import adds every row whose full name is not yet in the roster.
func (h *RosterHandler) Import(ctx context.Context, cmd ImportRosterCommand) (*ImportRosterResult, error) {
	if len(cmd.Rows) == 0 {
		return &ImportRosterResult{}, nil
	}
	res, err := h.importRows(ctx, "import_roster", cmd.Rows, cmd.Source)
	if err != nil {
		return nil, err
	}
	h.log.Info("roster imported",
		logger.String("source", cmd.Source),
		logger.Int("added", len(res.Added)),
		logger.Int("skipped", len(res.Skipped)),
	)
	return res, nil
}

func (h *RosterHandler) importRows(ctx context.Context, op string, rows []student.ImportRow, source string) (*ImportRosterResult, error) {
	var res ImportRosterResult
	_, _, err := h.exec.Execute(ctx, op, func(c *classroom.Classroom, now time.Time) (Change, error) {
		out, err := c.Registry.Import(rows, h.newID, now)
		if err != nil {
			return Change{}, err
		}
		res = ImportRosterResult{Added: out.Added, Skipped: out.Skipped}
		if len(out.Added) == 0 {
			return Change{}, nil
		}

		ch := Change{Keys: []classroom.Key{classroom.KeyStudents}}
		if op == "add_student" {
			s := out.Added[0]
			ch.Events = append(ch.Events, shared.NewClassroomEvent(shared.EventStudentAdded, s.ID,
				map[string]interface{}{"name": s.Name, "grade": int(s.Grade)}))
		} else {
			ch.Events = append(ch.Events, shared.NewClassroomEvent(shared.EventRosterImported, shared.DefaultClassroomID,
				map[string]interface{}{"source": source, "added": len(out.Added), "skipped": len(out.Skipped)}))
		}
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// DeleteStudent removes a student and every session reference to them.
func (h *RosterHandler) DeleteStudent(ctx context.Context, id string) error {
	if err := requireStudentID("delete_student", id); err != nil {
		return err
	}

	_, _, err := h.exec.Execute(ctx, "delete_student", func(c *classroom.Classroom, _ time.Time) (Change, error) {
		if err := c.DeleteStudent(id); err != nil {
			return Change{}, err
		}
		return Change{
			Keys: []classroom.Key{
				classroom.KeyStudents, classroom.KeySessionPool,
				classroom.KeyAbsentToday, classroom.KeyCurrentStudent,
			},
			Events: []shared.Event{shared.NewClassroomEvent(shared.EventStudentDeleted, id, nil)},
		}, nil
	})
	if err != nil {
		return err
	}

	h.log.Info("student deleted", logger.StudentID(id))
	return nil
}

// DeleteAllStudents empties the roster and the session sets.
func (h *RosterHandler) DeleteAllStudents(ctx context.Context) (int, error) {
	var n int
	_, _, err := h.exec.Execute(ctx, "delete_all_students", func(c *classroom.Classroom, _ time.Time) (Change, error) {
		n = c.DeleteAllStudents()
		return Change{
			Keys: []classroom.Key{
				classroom.KeyStudents, classroom.KeySessionPool,
				classroom.KeyAbsentToday, classroom.KeyCurrentStudent,
			},
			Events: []shared.Event{shared.NewClassroomEvent(shared.EventRosterCleared, shared.DefaultClassroomID,
				map[string]interface{}{"deleted": n})},
		}, nil
	})
	if err != nil {
		return 0, err
	}

	h.log.Info("roster cleared", logger.Int("deleted", n))
	return n, nil
}

// ClearAllData removes students, schedule, metadata and session state.
func (h *RosterHandler) ClearAllData(ctx context.Context) error {
	_, _, err := h.exec.Execute(ctx, "clear_all_data", func(c *classroom.Classroom, _ time.Time) (Change, error) {
		c.ClearAll()
		return Change{
			Keys:   classroom.AllKeys,
			Events: []shared.Event{shared.NewClassroomEvent(shared.EventClassroomCleared, shared.DefaultClassroomID, nil)},
		}, nil
	})
	if err != nil {
		return err
	}

	h.log.Warn("all classroom data cleared")
	return nil
}
