package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/importer"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER
// ══════════════════════════════════════════════════════════════════════════════

// GET /api/v1/students?grade=5&sort=name
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	q := query.ListStudentsQuery{SortByName: r.URL.Query().Get("sort") == "name"}
	if g := r.URL.Query().Get("grade"); g != "" {
		f, err := session.ParseGradeFilter(g)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		q.GradeFilter = f
	}

	list, err := s.deps.Queries.Students.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// GET /api/v1/students/{id}
func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Queries.Students.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

type addStudentRequest struct {
	FirstName string        `json:"first_name" validate:"required,max=100"`
	LastName  string        `json:"last_name" validate:"required,max=100"`
	Grade     *shared.Grade `json:"grade,omitempty"`
}

// POST /api/v1/students
func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var req addStudentRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	st, err := s.deps.Commands.Roster.AddStudent(r.Context(), command.AddStudentCommand{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Grade:     req.Grade,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, s.studentDTO(st))
}

// DELETE /api/v1/students/{id}
func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Commands.Roster.DeleteStudent(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"deleted": id})
}

// DELETE /api/v1/students?confirm=true
func (s *Server) handleDeleteAllStudents(w http.ResponseWriter, r *http.Request) {
	if err := confirmed(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.deps.Commands.Roster.DeleteAllStudents(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"deleted": n})
}

// DELETE /api/v1/data?confirm=true
func (s *Server) handleClearAllData(w http.ResponseWriter, r *http.Request) {
	if err := confirmed(r); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.deps.Commands.Roster.ClearAllData(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"cleared": true})
}

type importRosterResponse struct {
	Added    []query.StudentDTO `json:"added"`
	Skipped  []string           `json:"skipped"`
	Rejected []string           `json:"rejected"`
}

// POST /api/v1/students/import
// text/csv: "firstname,lastname,grade" rows; text/plain: one "First Last [grade]" per line;
// application/json: {"rows": [{"firstname", "lastname", "grade"}]}.
func (s *Server) handleImportRoster(w http.ResponseWriter, r *http.Request) {
	var (
		parsed importer.RosterResult
		err    error
		source string
	)
	switch mediaType(r) {
	case "text/csv":
		source = "csv"
		parsed, err = importer.ParseRosterCSV(r.Body)
	case "text/plain":
		source = "text"
		var body []byte
		if body, err = io.ReadAll(r.Body); err == nil {
			parsed, err = importer.ParseRosterText(string(body))
		}
	default:
		source = "json"
		var req struct {
			Rows []student.ImportRow `json:"rows" validate:"required,min=1,dive"`
		}
		if err = s.decodeJSON(r, &req); err == nil {
			parsed.Rows = req.Rows
			for i := range parsed.Rows {
				if parsed.Rows[i].Grade == 0 {
					parsed.Rows[i].Grade = shared.DefaultGrade
				}
			}
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(parsed.Rows) == 0 {
		s.writeError(w, r, parsed.Rejected.Err())
		return
	}

	res, err := s.deps.Commands.Roster.Import(r.Context(), command.ImportRosterCommand{Rows: parsed.Rows, Source: source})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := importRosterResponse{
		Added:    make([]query.StudentDTO, 0, len(res.Added)),
		Skipped:  append([]string{}, res.Skipped...),
		Rejected: make([]string, 0, len(parsed.Rejected)),
	}
	for _, st := range res.Added {
		out.Added = append(out.Added, s.studentDTO(st))
	}
	for _, rej := range parsed.Rejected {
		out.Rejected = append(out.Rejected, rej.Error())
	}
	writeJSON(w, r, http.StatusOK, out)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

type connectionRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

// POST /api/v1/students/{id}/connections {"note": "..."}
func (s *Server) handleRecordConnection(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.deps.Commands.Profile.RecordConnection(r.Context(), command.RecordConnectionCommand{
		StudentID: chi.URLParam(r, "id"),
		Note:      req.Note,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result := "ignored"
	switch res.Result {
	case student.ConnectionAdded:
		result = "added"
	case student.ConnectionEdited:
		result = "edited"
	}
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"student": s.studentDTO(res.Student),
		"result":  result,
		"date":    res.Date,
		"subject": res.Subject,
	})
}

type goalRequest struct {
	Goal string `json:"goal" validate:"max=500"`
}

// PUT /api/v1/students/{id}/goal {"goal": "..."}; an empty goal archives the current one.
func (s *Server) handleSetGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.deps.Commands.Profile.SetGoal(r.Context(), command.SetGoalCommand{
		StudentID: chi.URLParam(r, "id"),
		Goal:      req.Goal,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// POST /api/v1/students/{id}/goal/complete
func (s *Server) handleCompleteGoal(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Commands.Profile.CompleteGoal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// interestsRequest accepts lists or comma-separated strings.
type interestsRequest struct {
	Extracurriculars stringList `json:"extracurriculars"`
	Strengths        stringList `json:"strengths"`
	Notes            string     `json:"notes" validate:"max=5000"`
}

// PUT /api/v1/students/{id}/interests
func (s *Server) handleUpdateInterests(w http.ResponseWriter, r *http.Request) {
	var req interestsRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	st, err := s.deps.Commands.Profile.UpdateInterests(r.Context(), command.UpdateInterestsCommand{
		StudentID:        chi.URLParam(r, "id"),
		Extracurriculars: req.Extracurriculars,
		Strengths:        req.Strengths,
		Notes:            req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, st)
}

// DELETE /api/v1/students/{id}/absence
func (s *Server) handleClearAbsence(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Commands.Absence.HandleClear(r.Context(), command.ClearAbsenceCommand{StudentID: chi.URLParam(r, "id")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, s.toAbsence(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// READ MODELS
// ══════════════════════════════════════════════════════════════════════════════

// GET /api/v1/connections/neglected?limit=10
func (s *Server) handleNeglected(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.deps.Queries.Students.Neglected(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, list)
}

// GET /api/v1/summary
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.deps.Queries.Summary.Handle(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// stringList decodes either ["a","b"] or "a, b".
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "\"") {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = student.SplitList(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}
