package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

type selectResponse struct {
	Student       query.StudentDTO `json:"student"`
	Subject       string           `json:"subject,omitempty"`
	Weight        float64          `json:"weight"`
	Candidates    int              `json:"candidates"`
	PoolRemaining int              `json:"pool_remaining"`
	PoolRefilled  bool             `json:"pool_refilled"`
	Strategy      session.Strategy `json:"strategy"`
	DailyReset    bool             `json:"daily_reset"`
	SubjectReset  bool             `json:"subject_reset"`
	SelectedAt    time.Time        `json:"selected_at"`
}

type outcomeResponse struct {
	Student    query.StudentDTO `json:"student"`
	Outcome    student.Outcome  `json:"outcome"`
	Subject    string           `json:"subject,omitempty"`
	CallsToday int              `json:"calls_today"`
}

type absenceResponse struct {
	Student       query.StudentDTO `json:"student"`
	Date          shared.Date      `json:"date"`
	Subject       string           `json:"subject,omitempty"`
	AlreadyMarked bool             `json:"already_marked"`
}

type filterResponse struct {
	Previous session.GradeFilter `json:"previous"`
	Current  session.GradeFilter `json:"current"`
}

type commandResponse struct {
	Kind     command.Kind     `json:"kind"`
	Selected *selectResponse  `json:"selected,omitempty"`
	Outcome  *outcomeResponse `json:"outcome,omitempty"`
	Absence  *absenceResponse `json:"absence,omitempty"`
	Filter   *filterResponse  `json:"filter,omitempty"`
}

func (s *Server) studentDTO(st *student.Student) query.StudentDTO {
	return query.NewStudentDTO(st, nil, s.today())
}

func (s *Server) toSelect(r *command.SelectStudentResult) *selectResponse {
	return &selectResponse{
		Student:       s.studentDTO(r.Student),
		Subject:       r.Subject,
		Weight:        r.Weight,
		Candidates:    r.Candidates,
		PoolRemaining: r.PoolRemaining,
		PoolRefilled:  r.PoolRefilled,
		Strategy:      r.Strategy,
		DailyReset:    r.DailyReset,
		SubjectReset:  r.SubjectReset,
		SelectedAt:    r.SelectedAt,
	}
}

func (s *Server) toOutcome(r *command.RecordOutcomeResult) *outcomeResponse {
	return &outcomeResponse{
		Student:    s.studentDTO(r.Student),
		Outcome:    r.Outcome,
		Subject:    r.Subject,
		CallsToday: r.CallsToday,
	}
}

func (s *Server) toAbsence(r *command.AbsenceResult) *absenceResponse {
	return &absenceResponse{
		Student:       s.studentDTO(r.Student),
		Date:          r.Date,
		Subject:       r.Subject,
		AlreadyMarked: r.AlreadyMarked,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND SURFACE
// ══════════════════════════════════════════════════════════════════════════════

// POST /api/v1/commands/{kind}
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	kind, err := command.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Commands.Dispatcher.Dispatch(r.Context(), kind, middleware.GetReqID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := commandResponse{Kind: res.Kind}
	switch {
	case res.Selected != nil:
		out.Selected = s.toSelect(res.Selected)
	case res.Outcome != nil:
		out.Outcome = s.toOutcome(res.Outcome)
	case res.Absence != nil:
		out.Absence = s.toAbsence(res.Absence)
	case res.Filter != nil:
		out.Filter = &filterResponse{Previous: res.Filter.Previous, Current: res.Filter.Current}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

// GET /api/v1/session
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Queries.Session.Handle(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// POST /api/v1/session/select
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Commands.SelectStudent.Handle(r.Context(), command.SelectStudentCommand{
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.toSelect(res))
}

type outcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=correct incorrect"`
}

// POST /api/v1/session/outcome {"outcome": "correct"}
func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	var req outcomeRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	outcome, err := student.ParseOutcome(req.Outcome)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Commands.RecordOutcome.Handle(r.Context(), command.RecordOutcomeCommand{
		Outcome:       outcome,
		CorrelationID: middleware.GetReqID(r.Context()),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.toOutcome(res))
}

type absenceRequest struct {
	StudentID string `json:"student_id"`
}

// POST /api/v1/session/absence {"student_id": "..."}; empty body marks the current student.
func (s *Server) handleAbsence(w http.ResponseWriter, r *http.Request) {
	var req absenceRequest
	if r.ContentLength != 0 {
		if err := s.decodeJSON(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.deps.Commands.Absence.Handle(r.Context(), command.RecordAbsenceCommand{StudentID: req.StudentID})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.toAbsence(res))
}

// POST /api/v1/session/filter/toggle
func (s *Server) handleToggleFilter(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Commands.ToggleFilter.Handle(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, filterResponse{Previous: res.Previous, Current: res.Current})
}

// POST /api/v1/session/reset/{daily|subject|participation}
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	scope := command.ResetScope(chi.URLParam(r, "scope"))
	if scope == command.ResetParticipation {
		if err := confirmed(r); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	res, err := s.deps.Commands.Reset.Handle(r.Context(), command.ResetCommand{Scope: scope})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"scope":          res.Scope,
		"performed":      res.Performed,
		"initialized":    res.Initialized,
		"previous":       res.Previous,
		"current":        res.Current,
		"students_reset": res.StudentsReset,
	})
}
