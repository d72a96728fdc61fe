package session

import (
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET POLICY
// Оба сброса идемпотентны: повторный вызов в том же дне или на том же
// предмете ничего не меняет.
// ══════════════════════════════════════════════════════════════════════════════

// ResetResult описывает, что сделал сброс.
type ResetResult struct {
	// Performed - состояние было сброшено.
	Performed bool

	// Initialized - предмет замечен впервые и просто запомнен (без сброса).
	Initialized bool

	// Previous - прежнее значение (дата или предмет).
	Previous string

	// Current - новое значение (дата или предмет).
	Current string

	// StudentsReset - у скольких учеников вес возвращён к 1.0.
	StudentsReset int
}

// Changed сообщает, нужно ли сохранять состояние.
func (r ResetResult) Changed() bool {
	return r.Performed || r.Initialized
}

// DailyResetIfNeeded сбрасывает день, если today отличается от LastResetDate:
// очищает отсутствующих, пул, ученика у доски и счётчик вызовов,
// возвращает всем вес 1.0. Счётчики ответов сохраняются.
func DailyResetIfNeeded(st *State, reg *student.Registry, today shared.Date) ResetResult {
	if st.LastResetDate == today {
		return ResetResult{Current: today.String()}
	}

	res := ResetResult{
		Performed: true,
		Previous:  st.LastResetDate.String(),
		Current:   today.String(),
	}

	st.AbsentToday = []string{}
	st.Pool = []string{}
	st.ClearCurrent()
	st.CallsToday = 0
	st.LastResetDate = today
	// Первый урок нового дня не считается сменой предмета.
	st.LastSubject = ""

	res.StudentsReset = reg.ResetAllWeights()
	return res
}

// SubjectResetIfNeeded сбрасывает пул и веса при смене активного предмета.
// Без активного урока ничего не делает. Первое наблюдение предмета
// только запоминает его.
func SubjectResetIfNeeded(st *State, reg *student.Registry, subject string, active bool) ResetResult {
	if !active || subject == "" {
		return ResetResult{Previous: st.LastSubject}
	}

	if st.LastSubject == "" {
		st.LastSubject = subject
		return ResetResult{Initialized: true, Current: subject}
	}

	if st.LastSubject == subject {
		return ResetResult{Previous: subject, Current: subject}
	}

	res := ResetResult{
		Performed: true,
		Previous:  st.LastSubject,
		Current:   subject,
	}

	st.Pool = []string{}
	st.ClearCurrent()
	st.LastSubject = subject

	res.StudentsReset = reg.ResetAllWeights()
	return res
}
