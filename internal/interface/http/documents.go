package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/exporter"
)

// ══════════════════════════════════════════════════════════════════════════════
// METADATA
// ══════════════════════════════════════════════════════════════════════════════

type metadataRequest struct {
	SchoolYear *string `json:"school_year" validate:"omitempty,max=50"`
	Term       *string `json:"term" validate:"omitempty,max=50"`
	Teacher    *string `json:"teacher" validate:"omitempty,max=100"`
	ClassName  *string `json:"class" validate:"omitempty,max=100"`
}

// PUT /api/v1/metadata
func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req metadataRequest
	if err := s.decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	meta, err := s.deps.Commands.Document.UpdateMetadata(r.Context(), command.UpdateMetadataCommand{
		SchoolYear: req.SchoolYear,
		Term:       req.Term,
		Teacher:    req.Teacher,
		ClassName:  req.ClassName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, meta)
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT / IMPORT
// ══════════════════════════════════════════════════════════════════════════════

// GET /api/v1/export?format=json|yaml|csv|markdown
// The body is the raw file, not the JSON envelope.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(exporter.FormatJSON)
	}
	format, err := exporter.ParseFormat(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := s.deps.Queries.Export.Handle(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	today := s.deps.Queries.Export.Today()
	var buf bytes.Buffer
	if err := exporter.Write(&buf, format, doc, today); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, exporter.FileName(format, today)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// POST /api/v1/import?format=json|yaml
// Replaces students, schedules and metadata with an exported document.
func (s *Server) handleImportDocument(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = "json"
		if ct := mediaType(r); strings.Contains(ct, "yaml") {
			name = "yaml"
		}
	}
	format, err := exporter.ParseFormat(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc, err := exporter.Decode(r.Body, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	n, err := s.deps.Commands.Document.ImportDocument(r.Context(), doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"students": n})
}

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GET /api/v1/events?limit=50&aggregate=<student id>
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	events, err := s.deps.Events.Recent(r.Context(), r.URL.Query().Get("aggregate"), limit)
	if err != nil {
		s.writeError(w, r, shared.StorageError("RecentEvents", err))
		return
	}
	writeJSON(w, r, http.StatusOK, events)
}

// GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.Jobs.ListJobs())
}

// POST /api/v1/jobs/{name}/run
func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Jobs.RunNow(r.Context(), chi.URLParam(r, "name"))
	if err != nil && res.JobName == "" {
		s.writeError(w, r, err)
		return
	}

	resp := map[string]interface{}{
		"job":         res.JobName,
		"started_at":  res.StartedAt,
		"duration_ms": res.Duration.Milliseconds(),
		"success":     res.Success(),
	}
	if res.Error != nil {
		resp["error"] = res.Error.Error()
	}
	writeJSON(w, r, http.StatusOK, resp)
}
