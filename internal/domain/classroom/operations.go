package classroom

import (
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// CORE OPERATIONS
// Каждая операция меняет агрегат в памяти и сообщает, какие ключи
// хранилища нужно записать одной атомарной записью.
// ══════════════════════════════════════════════════════════════════════════════

// SelectResult - итог выбора ученика.
type SelectResult struct {
	session.Selection
	Subject string
	Keys    []Key
}

// SelectNext выбирает следующего ученика по текущему предмету.
func (c *Classroom) SelectNext(sel *session.Selector, now time.Time) (SelectResult, error) {
	subject := c.subjectOrEmpty(now)
	s, err := sel.SelectNext(c.Registry, &c.Session, subject)
	if err != nil {
		return SelectResult{}, err
	}
	return SelectResult{
		Selection: s,
		Subject:   subject,
		Keys:      []Key{KeySessionPool, KeyCurrentStudent},
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Participation Accountant
// ─────────────────────────────────────────────────────────────────────────────

// OutcomeResult - итог учёта ответа.
type OutcomeResult struct {
	Student *student.Student
	Outcome student.Outcome
	Subject string
	Keys    []Key
}

// RecordOutcome засчитывает ответ ученику у доски и снимает его с доски.
// Запись ученика, пула и доски сохраняется вместе.
func (c *Classroom) RecordOutcome(outcome student.Outcome, now time.Time) (OutcomeResult, error) {
	if !outcome.IsValid() {
		return OutcomeResult{}, shared.ErrInvalidOutcome
	}
	s, ok := c.Current()
	if !ok {
		c.Session.ClearCurrent()
		return OutcomeResult{}, shared.ErrNothingPending
	}

	subject := c.subjectOrEmpty(now)
	if err := s.RecordOutcome(outcome, subject); err != nil {
		return OutcomeResult{}, err
	}
	c.Session.CallsToday++
	c.Session.ClearCurrent()

	return OutcomeResult{
		Student: s,
		Outcome: outcome,
		Subject: subject,
		Keys:    []Key{KeyStudents, KeySessionPool, KeyCurrentStudent, KeyCallsToday},
	}, nil
}

// AbsenceResult - итог отметки об отсутствии.
type AbsenceResult struct {
	Student       *student.Student
	Date          shared.Date
	Subject       string
	AlreadyMarked bool
	Keys          []Key
}

// RecordAbsence отмечает ученика отсутствующим: убирает из пула,
// добавляет запись {дата, предмет}, снимает с доски. Пустой id -
// ученик у доски. Участие не меняется.
func (c *Classroom) RecordAbsence(id string, now time.Time) (AbsenceResult, error) {
	if id == "" {
		if !c.Session.HasCurrent() {
			return AbsenceResult{}, shared.ErrNothingPending
		}
		id = c.Session.CurrentStudent
	}
	s, err := c.Registry.Get(id)
	if err != nil {
		return AbsenceResult{}, err
	}

	res := AbsenceResult{
		Student: s,
		Date:    Today(now),
		Subject: c.subjectOrEmpty(now),
		Keys:    []Key{KeyStudents, KeyAbsentToday, KeySessionPool, KeyCurrentStudent},
	}

	// Повторная отметка не дублирует ни набор, ни историю пропусков.
	if c.Session.MarkAbsent(id) {
		s.RecordAbsence(res.Date, res.Subject)
	} else {
		res.AlreadyMarked = true
	}
	c.Session.RemoveFromPool(id)
	if c.Session.CurrentStudent == id {
		c.Session.ClearCurrent()
	}
	return res, nil
}

// ClearAbsence снимает сегодняшнюю отметку об отсутствии. В пул ученик
// вернётся при следующем пополнении.
func (c *Classroom) ClearAbsence(id string, now time.Time) (AbsenceResult, error) {
	s, err := c.Registry.Get(id)
	if err != nil {
		return AbsenceResult{}, err
	}
	today := Today(now)
	wasMarked := c.Session.UnmarkAbsent(id)
	s.ClearAbsence(today)
	return AbsenceResult{
		Student:       s,
		Date:          today,
		AlreadyMarked: !wasMarked,
		Keys:          []Key{KeyStudents, KeyAbsentToday},
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Filter & Resets
// ─────────────────────────────────────────────────────────────────────────────

// ToggleGradeFilter переключает фильтр all -> gradeA -> gradeB -> all.
// Пул очищается: следующий выбор наполнит его под новый фильтр.
func (c *Classroom) ToggleGradeFilter(levels []shared.Grade) (session.GradeFilter, []Key) {
	c.Session.GradeFilter = c.Session.GradeFilter.Next(levels)
	c.Session.Pool = []string{}
	return c.Session.GradeFilter, []Key{KeyGradeFilter, KeySessionPool}
}

// SetGradeFilter ставит фильтр напрямую.
func (c *Classroom) SetGradeFilter(f session.GradeFilter) []Key {
	c.Session.GradeFilter = f
	c.Session.Pool = []string{}
	return []Key{KeyGradeFilter, KeySessionPool}
}

// DailyResetIfNeeded - ежедневный сброс, если наступил новый день.
func (c *Classroom) DailyResetIfNeeded(now time.Time) (session.ResetResult, []Key) {
	res := session.DailyResetIfNeeded(&c.Session, c.Registry, Today(now))
	if !res.Changed() {
		return res, nil
	}
	return res, []Key{
		KeyStudents, KeyAbsentToday, KeySessionPool, KeyCurrentStudent,
		KeyCallsToday, KeyLastResetDate, KeyLastSubject,
	}
}

// SubjectResetIfNeeded - сброс при смене предмета по расписанию.
func (c *Classroom) SubjectResetIfNeeded(now time.Time) (session.ResetResult, []Key) {
	subject, active := c.ActiveSubject(now)
	res := session.SubjectResetIfNeeded(&c.Session, c.Registry, subject, active)
	switch {
	case res.Performed:
		return res, []Key{KeyStudents, KeySessionPool, KeyCurrentStudent, KeyLastSubject}
	case res.Initialized:
		return res, []Key{KeyLastSubject}
	default:
		return res, nil
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Connection Tracker
// ─────────────────────────────────────────────────────────────────────────────

// ConnectionOutcome - итог записи MGC.
type ConnectionOutcome struct {
	Student *student.Student
	Result  student.ConnectionResult
	Date    shared.Date
	Subject string
	Keys    []Key
}

// RecordConnection сохраняет MGC для ученика на дату момента at.
func (c *Classroom) RecordConnection(id, note string, at time.Time) (ConnectionOutcome, error) {
	s, err := c.Registry.Get(id)
	if err != nil {
		return ConnectionOutcome{}, err
	}
	subject := c.subjectOrEmpty(at)
	r := s.RecordConnection(note, subject, at)
	out := ConnectionOutcome{Student: s, Result: r, Date: Today(at), Subject: subject}
	if r != student.ConnectionIgnored {
		out.Keys = []Key{KeyStudents}
	}
	return out, nil
}
