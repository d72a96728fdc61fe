package http

import (
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/badger"
	"github.com/classroom-hub/participation-tracker/internal/interface/http/handlers"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST HARNESS
// ══════════════════════════════════════════════════════════════════════════════

// Monday 4 March 2024, 09:30 UTC.
var fixedNow = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func newTestServer(t *testing.T, mutate ...func(*Config)) *Server {
	t.Helper()

	timeutil.SetLocation(time.UTC)
	t.Cleanup(func() { timeutil.SetLocation(nil) })

	store, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := func() time.Time { return fixedNow }
	exec := command.NewExecutor(store, nil, logger.Nop(), command.WithClock(clock))

	selector, err := session.NewSelector(session.StrategyWeightedPool, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimit = 0
	for _, m := range mutate {
		m(&cfg)
	}

	return NewServer(cfg, Dependencies{
		Commands: command.NewHandlers(exec, selector, []shared.Grade{4, 5}, nil, logger.Nop()),
		Queries:  query.NewHandlers(exec, nil, clock),
		Clock:    clock,
		Logger:   logger.Nop(),
	})
}

func do(t *testing.T, srv *Server, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func addStudent(t *testing.T, srv *Server, first, last string) query.StudentDTO {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/v1/students", "application/json",
		`{"first_name":"`+first+`","last_name":"`+last+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var dto query.StudentDTO
	decode(t, rec, &dto)
	return dto
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_AddAndListStudents(t *testing.T) {
	srv := newTestServer(t)

	ana := addStudent(t, srv, "Ana", "Lopez")
	assert.Equal(t, "Ana Lopez", ana.Name)
	assert.Equal(t, shared.DefaultGrade, ana.Grade)
	assert.Equal(t, 1.0, ana.Weight)
	assert.Nil(t, ana.DaysSinceLastMGC)

	rec := do(t, srv, http.MethodPost, "/api/v1/students", "application/json",
		`{"first_name":"Ben","last_name":"Ng","grade":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/students?sort=name", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []query.StudentDTO
	env := decode(t, rec, &list)
	assert.True(t, env.Success)
	require.Len(t, list, 2)
	assert.Equal(t, "Ana Lopez", list[0].Name)
	assert.Equal(t, "Ben Ng", list[1].Name)

	rec = do(t, srv, http.MethodGet, "/api/v1/students?grade=5", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list = nil
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Ben Ng", list[0].Name)
}

func TestServer_AddStudentDuplicate(t *testing.T) {
	srv := newTestServer(t)
	addStudent(t, srv, "Ana", "Lopez")

	rec := do(t, srv, http.MethodPost, "/api/v1/students", "application/json",
		`{"first_name":"ana","last_name":"LOPEZ"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "already_exists", env.Error.Code)
}

func TestServer_AddStudentValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/students", "application/json", `{"first_name":"Ana"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/students", "application/json", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, "invalid_request", env.Error.Code)
}

func TestServer_ImportRosterCSV(t *testing.T) {
	srv := newTestServer(t)
	addStudent(t, srv, "Ana", "Lopez")

	body := "firstname,lastname,grade\nAna,Lopez,4\nBen,Ng,5\nCara,Diaz,\n,Nobody,4\n"
	rec := do(t, srv, http.MethodPost, "/api/v1/students/import", "text/csv", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Added    []query.StudentDTO `json:"added"`
		Skipped  []string           `json:"skipped"`
		Rejected []string           `json:"rejected"`
	}
	decode(t, rec, &res)
	require.Len(t, res.Added, 2)
	assert.Equal(t, "Ben Ng", res.Added[0].Name)
	assert.Equal(t, shared.DefaultGrade, res.Added[1].Grade)
	assert.Equal(t, []string{"Ana Lopez"}, res.Skipped)
	assert.Len(t, res.Rejected, 1)
}

func TestServer_UnknownStudent(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/students/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec, nil)
	assert.False(t, env.Success)
	assert.Equal(t, "not_found", env.Error.Code)

	rec = do(t, srv, http.MethodDelete, "/api/v1/students/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DestructiveOperationsNeedConfirm(t *testing.T) {
	srv := newTestServer(t)
	addStudent(t, srv, "Ana", "Lopez")

	rec := do(t, srv, http.MethodDelete, "/api/v1/students", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/session/reset/participation", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/v1/students?confirm=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res map[string]int
	decode(t, rec, &res)
	assert.Equal(t, 1, res["deleted"])
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_SelectThenOutcome(t *testing.T) {
	srv := newTestServer(t)
	ana := addStudent(t, srv, "Ana", "Lopez")

	rec := do(t, srv, http.MethodPost, "/api/v1/session/select", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sel selectResponse
	decode(t, rec, &sel)
	assert.Equal(t, ana.ID, sel.Student.ID)
	assert.Equal(t, 1, sel.Candidates)

	rec = do(t, srv, http.MethodPost, "/api/v1/session/outcome", "application/json", `{"outcome":"incorrect"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out outcomeResponse
	decode(t, rec, &out)
	assert.Equal(t, ana.ID, out.Student.ID)
	assert.Equal(t, 1, out.Student.TotalCalls)
	assert.Equal(t, 1, out.Student.IncorrectAnswers)
	assert.InDelta(t, 1.3, out.Student.Weight, 1e-9)

	// The pending student was consumed.
	rec = do(t, srv, http.MethodPost, "/api/v1/session/outcome", "application/json", `{"outcome":"correct"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, "no_current_student", env.Error.Code)
}

func TestServer_OutcomeRejectsUnknownValue(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/session/outcome", "application/json", `{"outcome":"maybe"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SelectWithEmptyRoster(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/session/select", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Empty(t, rec.Header().Get("Retry-After"))
	env := decode(t, rec, nil)
	assert.Equal(t, "no_eligible_students", env.Error.Code)
}

func TestServer_CommandSurface(t *testing.T) {
	srv := newTestServer(t)
	addStudent(t, srv, "Ana", "Lopez")

	rec := do(t, srv, http.MethodPost, "/api/v1/commands/select-student", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res commandResponse
	decode(t, rec, &res)
	require.NotNil(t, res.Selected)
	assert.Equal(t, "Ana Lopez", res.Selected.Student.Name)

	rec = do(t, srv, http.MethodPost, "/api/v1/commands/dance", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_AbsenceForCurrentStudent(t *testing.T) {
	srv := newTestServer(t)
	ana := addStudent(t, srv, "Ana", "Lopez")

	rec := do(t, srv, http.MethodPost, "/api/v1/session/absence", "", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/v1/session/absence", "application/json", `{"student_id":"`+ana.ID+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res absenceResponse
	decode(t, rec, &res)
	assert.Equal(t, shared.Date("2024-03-04"), res.Date)
	assert.Equal(t, 1, res.Student.Absences)
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_ScheduleUploadAndToday(t *testing.T) {
	srv := newTestServer(t)

	csv := "Day,Subject,Start Time,End Time\nMonday,Maths,09:00,10:00\nMonday,Reading,10:15,11:00\nTuesday,Art,09:00,10:00\n"
	rec := do(t, srv, http.MethodPut, "/api/v1/schedule", "text/csv", csv)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/schedule/today", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var today query.TodayDTO
	decode(t, rec, &today)
	assert.True(t, today.SchoolDay)
	assert.Len(t, today.Periods, 2)
	assert.Equal(t, 0, today.ActiveIndex)
	assert.Equal(t, "Maths", today.ActiveSubject)

	rec = do(t, srv, http.MethodGet, "/api/v1/schedule/period?offset=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Reading")
}

func TestServer_ScheduleUploadRejectsBadRow(t *testing.T) {
	srv := newTestServer(t)

	csv := "Day,Subject,Start Time,End Time\nMonday,Maths,09:00,10:00\nSaturday,Chess,09:00,10:00\n"
	rec := do(t, srv, http.MethodPut, "/api/v1/schedule", "text/csv", csv)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/schedule", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Maths")
}

func TestServer_AppendAndDeletePeriod(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/v1/schedule/mon/periods", "text/plain", "Science, 13:00, 14:00\nMaths, 9:00, 10:00\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodDelete, "/api/v1/schedule/monday/periods/0", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/schedule/today", "", "")
	var today query.TodayDTO
	decode(t, rec, &today)
	require.Len(t, today.Periods, 1)
	assert.Equal(t, "Science", today.Periods[0].Subject)

	rec = do(t, srv, http.MethodDelete, "/api/v1/schedule/monday/periods/5", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_ExportFormats(t *testing.T) {
	srv := newTestServer(t)
	addStudent(t, srv, "Ana", "Lopez")

	rec := do(t, srv, http.MethodGet, "/api/v1/export?format=csv", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "student-tracker-2024-03-04.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Name,Grade,Total Calls"))
	assert.Contains(t, lines[1], "Ana Lopez")

	rec = do(t, srv, http.MethodGet, "/api/v1/export?format=markdown", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# Student Tracker Report")
	assert.Contains(t, rec.Body.String(), "### Ana Lopez (Grade 4)")

	rec = do(t, srv, http.MethodGet, "/api/v1/export?format=pdf", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ImportDocumentReplacesClassroom(t *testing.T) {
	srv := newTestServer(t)
	addStudent(t, srv, "Ana", "Lopez")

	doc := `{
		"students": [{"id": "s-1", "name": "Cara Diaz", "grade": 5,
			"participation": {"correctAnswers": 3, "incorrectAnswers": 0, "totalCalls": 99, "weight": 7}}],
		"schedules": {"monday": [{"subject": "Maths", "startTime": "09:00", "endTime": "10:00"}]},
		"metadata": {"schoolYear": "2024", "term": "1", "teacher": "Ms Rangi", "class": "Room 5"},
		"exportDate": "2024-03-01T10:00:00Z"
	}`
	rec := do(t, srv, http.MethodPost, "/api/v1/import", "application/json", doc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/v1/students", "", "")
	var list []query.StudentDTO
	decode(t, rec, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Cara Diaz", list[0].Name)
	// Derived fields are recomputed, not trusted.
	assert.Equal(t, 3, list[0].TotalCalls)
	assert.Equal(t, 0.5, list[0].Weight)

	rec = do(t, srv, http.MethodPost, "/api/v1/import", "application/json", `{"students": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING & AUTH
// ══════════════════════════════════════════════════════════════════════════════

func TestServer_HealthAndNotFound(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/v1/nothing-here", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	env := decode(t, rec, nil)
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestServer_APIKeyRequired(t *testing.T) {
	hash, err := handlers.HashAPIKey("classroom-secret")
	require.NoError(t, err)
	srv := newTestServer(t, func(c *Config) { c.APIKeyHash = hash })

	rec := do(t, srv, http.MethodGet, "/api/v1/students", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/students", nil)
	req.Header.Set(handlers.APIKeyHeader, "classroom-secret")
	ok := httptest.NewRecorder()
	srv.Handler().ServeHTTP(ok, req)
	assert.Equal(t, http.StatusOK, ok.Code)

	// Health stays open.
	rec = do(t, srv, http.MethodGet, "/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
