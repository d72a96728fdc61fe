// Package http implements the JSON API of the participation tracker:
// classroom commands, read models, import/export and operational endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/classroom-hub/participation-tracker/config"
	"github.com/classroom-hub/participation-tracker/internal/application/command"
	"github.com/classroom-hub/participation-tracker/internal/application/query"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/postgres"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/scheduler"
	"github.com/classroom-hub/participation-tracker/internal/interface/http/handlers"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr - host:port to bind.
	Addr string

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// MaxBodyBytes - limit for uploaded rosters, timetables and documents.
	MaxBodyBytes int64

	// APIKeyHash - bcrypt hash of the API key; empty leaves /api/v1 open.
	APIKeyHash string

	// RateLimit - requests per second per client (0 = disabled).
	RateLimit float64

	// RateBurst - token bucket size per client.
	RateBurst int

	// MetricsPath - where the Prometheus handler is mounted.
	MetricsPath string

	// Version is reported by /health.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 4 << 20,
		RateLimit:    10,
		RateBurst:    20,
		MetricsPath:  "/metrics",
	}
}

// ConfigFrom maps the application configuration.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Addr = cfg.HTTP.Addr
	c.APIKeyHash = cfg.HTTP.APIKeyHash
	c.RateLimit = cfg.HTTP.RateLimit
	c.RateBurst = cfg.HTTP.RateBurst
	if cfg.HTTP.ReadTimeout > 0 {
		c.ReadTimeout = cfg.HTTP.ReadTimeout
	}
	if cfg.HTTP.WriteTimeout > 0 {
		c.WriteTimeout = cfg.HTTP.WriteTimeout
	}
	if cfg.Metrics.Path != "" {
		c.MetricsPath = cfg.Metrics.Path
	}
	c.Version = cfg.App.Version
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// EventHistory lists logged domain events.
type EventHistory interface {
	Recent(ctx context.Context, aggregateID string, limit int) ([]postgres.LoggedEvent, error)
}

// JobRunner exposes the worker's scheduler.
type JobRunner interface {
	ListJobs() []scheduler.JobInfo
	RunNow(ctx context.Context, jobName string) (scheduler.JobResult, error)
}

// Dependencies contains everything the handlers call.
type Dependencies struct {
	Commands *command.Handlers
	Queries  *query.Handlers

	// Clock is used for "today" in responses.
	Clock func() time.Time

	// Optional.
	HealthChecker  handlers.HealthChecker
	MetricsHandler http.Handler
	Events         EventHistory
	Jobs           JobRunner

	Logger *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	logger     *logger.Logger
	validate   *validator.Validate

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewNoopHealthChecker()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	s := &Server{
		config:   cfg,
		deps:     deps,
		logger:   deps.Logger.With(logger.Component("http")),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

// Handler returns the root handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(handlers.SecurityHeadersMiddleware)

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Metrics
	// ─────────────────────────────────────────────────────────────────────────
	r.Get("/health", s.handleHealth)
	r.Get("/live", s.handleLive)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, s.config.MetricsPath, s.deps.MetricsHandler)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1
	// ─────────────────────────────────────────────────────────────────────────
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(handlers.NewRateLimiter(s.config.RateLimit, s.config.RateBurst).Middleware)
		api.Use(handlers.NewAPIKeyAuth(s.config.APIKeyHash).Middleware)
		api.Use(handlers.NoCacheMiddleware)
		api.Use(handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes))

		api.Post("/commands/{kind}", s.handleCommand)

		api.Route("/session", func(sr chi.Router) {
			sr.Get("/", s.handleSessionStatus)
			sr.Post("/select", s.handleSelect)
			sr.Post("/outcome", s.handleOutcome)
			sr.Post("/absence", s.handleAbsence)
			sr.Post("/filter/toggle", s.handleToggleFilter)
			sr.Post("/reset/{scope}", s.handleReset)
		})

		api.Route("/students", func(sr chi.Router) {
			sr.Get("/", s.handleListStudents)
			sr.Post("/", s.handleAddStudent)
			sr.Delete("/", s.handleDeleteAllStudents)
			sr.Post("/import", s.handleImportRoster)

			sr.Route("/{id}", func(one chi.Router) {
				one.Get("/", s.handleGetStudent)
				one.Delete("/", s.handleDeleteStudent)
				one.Post("/connections", s.handleRecordConnection)
				one.Put("/goal", s.handleSetGoal)
				one.Post("/goal/complete", s.handleCompleteGoal)
				one.Put("/interests", s.handleUpdateInterests)
				one.Delete("/absence", s.handleClearAbsence)
			})
		})

		api.Get("/connections/neglected", s.handleNeglected)
		api.Get("/summary", s.handleSummary)

		api.Route("/schedule", func(sr chi.Router) {
			sr.Get("/", s.handleGetSchedule)
			sr.Put("/", s.handleReplaceSchedule)
			sr.Delete("/", s.handleClearWeek)
			sr.Get("/today", s.handleScheduleToday)
			sr.Get("/period", s.handlePeriodAt)
			sr.Post("/{day}/periods", s.handleAppendPeriods)
			sr.Delete("/{day}/periods/{index}", s.handleDeletePeriod)
			sr.Delete("/{day}", s.handleClearDay)
		})

		api.Put("/metadata", s.handleUpdateMetadata)
		api.Get("/export", s.handleExport)
		api.Post("/import", s.handleImportDocument)
		api.Delete("/data", s.handleClearAllData)

		if s.deps.Events != nil {
			api.Get("/events", s.handleEvents)
		}
		if s.deps.Jobs != nil {
			api.Get("/jobs", s.handleListJobs)
			api.Post("/jobs/{name}/run", s.handleRunJob)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusNotFound, "not_found", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if status.Version == "" {
		status.Version = s.config.Version
	}
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// JSONResponse represents a standard JSON response.
type JSONResponse struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta(r),
	})
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(JSONResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: message},
		Meta:    meta(r),
	})
}

func meta(r *http.Request) *ResponseMeta {
	return &ResponseMeta{
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetReqID(r.Context()),
	}
}

// writeError maps domain errors to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if shared.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.Err(err),
		)
		if status == http.StatusInternalServerError {
			msg = "An unexpected error occurred"
		}
	}
	writeJSONError(w, r, status, code, msg)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, shared.ErrNoCurrentStudent):
		return http.StatusConflict, "no_current_student"
	case errors.Is(err, shared.ErrNoEligibleStudents):
		return http.StatusConflict, "no_eligible_students"
	case errors.Is(err, shared.ErrNoAvailableInPool):
		return http.StatusConflict, "pool_exhausted"
	case shared.IsNotFound(err), errors.Is(err, scheduler.ErrJobNotFound):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsConflict(err), errors.Is(err, scheduler.ErrJobBusy):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case shared.IsValidation(err), errors.Is(err, shared.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid_request"
	case shared.IsStorageUnavailable(err):
		return http.StatusServiceUnavailable, "storage_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeJSON reads a JSON body and runs struct validation.
func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "malformed JSON body", err)
	}
	if err := s.validate.Struct(dst); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return nil
		}
		return shared.WrapError("http", "Validate", shared.ErrInvalidInput, err.Error(), err)
	}
	return nil
}

func mediaType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, shared.WrapError("http", "Query", shared.ErrInvalidFormat, fmt.Sprintf("%s must be an integer", key), err)
	}
	return n, nil
}

func confirmed(r *http.Request) error {
	switch strings.ToLower(r.URL.Query().Get("confirm")) {
	case "true", "yes", "1":
		return nil
	}
	return shared.NewDomainError("http", "Confirm", shared.ErrInvalidInput, "destructive operation: repeat with ?confirm=true")
}

func (s *Server) today() shared.Date {
	return shared.DateOf(s.deps.Clock())
}
