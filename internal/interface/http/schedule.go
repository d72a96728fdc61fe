package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/importer"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE READS
// ══════════════════════════════════════════════════════════════════════════════

// GET /api/v1/schedule
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	week, err := s.deps.Queries.Schedule.Week(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, week)
}

// GET /api/v1/schedule/today
func (s *Server) handleScheduleToday(w http.ResponseWriter, r *http.Request) {
	today, err := s.deps.Queries.Schedule.Today(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, today)
}

// GET /api/v1/schedule/period?offset=-1
func (s *Server) handlePeriodAt(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, ok, err := s.deps.Queries.Schedule.PeriodAt(r.Context(), offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]interface{}{"offset": offset, "period": nil}
	if ok {
		resp["period"] = p
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE EDITS
// ══════════════════════════════════════════════════════════════════════════════

// PUT /api/v1/schedule
// text/csv: "Day,Subject,Start Time,End Time"; JSON: {"monday": [{"subject","startTime","endTime"}]}.
// Any bad row rejects the whole upload.
func (s *Server) handleReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	var week map[schedule.Weekday][]schedule.Period

	if mediaType(r) == "text/csv" {
		parsed, err := importer.ParseScheduleCSV(r.Body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := parsed.Rejected.Err(); err != nil {
			s.writeError(w, r, err)
			return
		}
		week = parsed.Week
	} else {
		var raw map[string][]schedule.Period
		if err := s.decodeJSON(r, &raw); err != nil {
			s.writeError(w, r, err)
			return
		}
		var err error
		if week, err = normalizeWeek(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	table, err := s.deps.Commands.Schedule.Replace(r.Context(), command.ReplaceScheduleCommand{Week: week})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, table)
}

// POST /api/v1/schedule/{day}/periods
// text/plain: "Subject, HH:MM, HH:MM" per line; JSON: [{"subject","startTime","endTime"}].
func (s *Server) handleAppendPeriods(w http.ResponseWriter, r *http.Request) {
	day, err := schedule.ParseWeekday(chi.URLParam(r, "day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var periods []schedule.Period
	if mediaType(r) == "text/plain" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		parsed, err := importer.ParseScheduleText(string(body))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := parsed.Rejected.Err(); err != nil {
			s.writeError(w, r, err)
			return
		}
		periods = parsed.Periods
	} else {
		var raw []schedule.Period
		if err := s.decodeJSON(r, &raw); err != nil {
			s.writeError(w, r, err)
			return
		}
		if periods, err = normalizePeriods(raw); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	table, err := s.deps.Commands.Schedule.Append(r.Context(), command.AppendPeriodsCommand{Day: day, Periods: periods})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, table)
}

// DELETE /api/v1/schedule/{day}/periods/{index}
func (s *Server) handleDeletePeriod(w http.ResponseWriter, r *http.Request) {
	day, err := schedule.ParseWeekday(chi.URLParam(r, "day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, shared.ErrPeriodNotFound)
		return
	}

	table, err := s.deps.Commands.Schedule.DeletePeriod(r.Context(), command.DeletePeriodCommand{Day: day, Index: index})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, table)
}

// DELETE /api/v1/schedule/{day}
func (s *Server) handleClearDay(w http.ResponseWriter, r *http.Request) {
	day, err := schedule.ParseWeekday(chi.URLParam(r, "day"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	table, err := s.deps.Commands.Schedule.ClearDay(r.Context(), day)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, table)
}

// DELETE /api/v1/schedule
func (s *Server) handleClearWeek(w http.ResponseWriter, r *http.Request) {
	table, err := s.deps.Commands.Schedule.ClearWeek(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, table)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func normalizeWeek(raw map[string][]schedule.Period) (map[schedule.Weekday][]schedule.Period, error) {
	week := make(map[schedule.Weekday][]schedule.Period, len(raw))
	for name, periods := range raw {
		day, err := schedule.ParseWeekday(name)
		if err != nil {
			return nil, err
		}
		clean, err := normalizePeriods(periods)
		if err != nil {
			return nil, err
		}
		week[day] = append(week[day], clean...)
	}
	return week, nil
}

func normalizePeriods(raw []schedule.Period) ([]schedule.Period, error) {
	out := make([]schedule.Period, 0, len(raw))
	for _, p := range raw {
		np, err := schedule.NewPeriod(p.Subject, p.StartTime, p.EndTime)
		if err != nil {
			return nil, err
		}
		out = append(out, np)
	}
	return out, nil
}
