// Package scheduler runs the tracker's periodic jobs: the daily rollover
// and the subject-change check. Jobs never overlap themselves and the
// total number of concurrently running jobs is bounded.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping or the job times out.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Error       error
	Manual      bool
}

// Success reports whether the run finished without error.
func (r JobResult) Success() bool {
	return r.Error == nil
}

// Observer receives every finished run. metrics.Recorder.JobRun fits.
type Observer func(job string, err error)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the Scheduler.
type Config struct {
	// Logger for structured logging.
	Logger *slog.Logger

	// Location for schedule calculations (default: time.Local).
	Location *time.Location

	// MaxConcurrentJobs bounds how many jobs run at once (default: 2).
	MaxConcurrentJobs int

	// JobTimeout cancels a run that takes too long (0 disables).
	JobTimeout time.Duration

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration

	// MaxHistorySize is the number of results kept for inspection.
	MaxHistorySize int

	// Observer is called after every run.
	Observer Observer

	// Now overrides the clock.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger:            slog.Default(),
		Location:          time.Local,
		MaxConcurrentJobs: 2,
		JobTimeout:        30 * time.Second,
		TickInterval:      time.Second,
		MaxHistorySize:    200,
	}
}

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.Mutex

	cfg  Config
	sem  *semaphore.Weighted
	jobs map[string]*scheduledJob

	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	history []JobResult
}

type scheduledJob struct {
	job        Job
	schedule   Schedule
	runOnStart bool

	enabled   bool
	active    bool
	lastRun   time.Time
	nextRun   time.Time
	runCount  int64
	failCount int64
	last      *JobResult
}

// New creates a Scheduler. Zero fields in cfg take defaults.
func New(cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = def.MaxConcurrentJobs
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxHistorySize <= 0 {
		cfg.MaxHistorySize = def.MaxHistorySize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		cfg:  cfg,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrentJobs)),
		jobs: make(map[string]*scheduledJob),
	}
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Now().In(s.cfg.Location)
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// RegisterOption tweaks a registration.
type RegisterOption func(*scheduledJob)

// RunOnStart runs the job once as soon as the scheduler starts.
func RunOnStart() RegisterOption {
	return func(sj *scheduledJob) {
		sj.runOnStart = true
	}
}

// Register adds a job with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule, opts ...RegisterOption) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(s.now()),
	}
	for _, opt := range opts {
		opt(sj)
	}
	s.jobs[name] = sj

	s.cfg.Logger.Info("job registered",
		"job", name,
		"schedule", schedule.String(),
		"next_run", sj.nextRun.Format(time.RFC3339),
	)
	return nil
}

// SetEnabled turns a job on or off.
func (s *Scheduler) SetEnabled(jobName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, exists := s.jobs[jobName]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	sj.enabled = enabled
	if enabled {
		sj.nextRun = sj.schedule.Next(s.now())
	}
	s.cfg.Logger.Info("job toggled", "job", jobName, "enabled", enabled)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop. Jobs registered with RunOnStart are
// launched immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	var startup []*scheduledJob
	for _, sj := range s.jobs {
		if sj.runOnStart && sj.enabled {
			startup = append(startup, sj)
		}
	}
	count := len(s.jobs)
	s.mu.Unlock()

	s.cfg.Logger.Info("scheduler started", "jobs_count", count)

	for _, sj := range startup {
		s.launch(ctx, sj, false)
	}

	s.wg.Add(1)
	go s.loop(ctx)
	return nil
}

// Stop cancels the loop and waits for running jobs to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.cfg.Logger.Info("scheduler stopped")
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if sj.enabled && !sj.active && !sj.nextRun.IsZero() && !now.Before(sj.nextRun) {
			due = append(due, sj)
		}
	}
	s.mu.Unlock()

	for _, sj := range due {
		s.launch(ctx, sj, false)
	}
}

// launch starts sj in its own goroutine unless it is already running.
func (s *Scheduler) launch(ctx context.Context, sj *scheduledJob, manual bool) {
	s.mu.Lock()
	if sj.active {
		s.mu.Unlock()
		return
	}
	sj.active = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, sj, manual)
	}()
}

// execute runs one job under the concurrency limit and records the result.
func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob, manual bool) JobResult {
	name := sj.job.Name()
	defer func() {
		s.mu.Lock()
		sj.active = false
		s.mu.Unlock()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return JobResult{JobName: name, Error: err, Manual: manual}
	}
	defer s.sem.Release(1)

	startedAt := s.now()
	s.mu.Lock()
	sj.lastRun = startedAt
	sj.nextRun = sj.schedule.Next(startedAt)
	sj.runCount++
	s.mu.Unlock()

	runCtx := ctx
	if s.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
		defer cancel()
	}

	err := safeRun(runCtx, sj.job)
	completedAt := s.now()
	result := JobResult{
		JobName:     name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Error:       err,
		Manual:      manual,
	}

	s.mu.Lock()
	if err != nil {
		sj.failCount++
	}
	sj.last = &result
	s.history = append(s.history, result)
	if over := len(s.history) - s.cfg.MaxHistorySize; over > 0 {
		s.history = s.history[over:]
	}
	s.mu.Unlock()

	if err != nil {
		s.cfg.Logger.Error("job failed", "job", name, "duration", result.Duration.String(), "error", err)
	} else {
		s.cfg.Logger.Debug("job completed", "job", name, "duration", result.Duration.String())
	}
	if s.cfg.Observer != nil {
		s.cfg.Observer(name, err)
	}
	return result
}

func safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job synchronously, ignoring its schedule. It fails
// with ErrJobBusy when the job is already running.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (JobResult, error) {
	s.mu.Lock()
	sj, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.active {
		s.mu.Unlock()
		return JobResult{}, fmt.Errorf("%w: %s", ErrJobBusy, jobName)
	}
	sj.active = true
	s.mu.Unlock()

	result := s.execute(ctx, sj, true)
	return result, result.Error
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Schedule    string     `json:"schedule"`
	Enabled     bool       `json:"enabled"`
	Running     bool       `json:"running"`
	LastRun     time.Time  `json:"last_run"`
	NextRun     time.Time  `json:"next_run"`
	RunCount    int64      `json:"run_count"`
	FailCount   int64      `json:"fail_count"`
	LastError   string     `json:"last_error,omitempty"`
	LastResult  *JobResult `json:"-"`
}

// ListJobs returns information about all registered jobs, sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			Enabled:     sj.enabled,
			Running:     sj.active,
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  sj.last,
		}
		if sj.last != nil && sj.last.Error != nil {
			info.LastError = sj.last.Error.Error()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// History returns up to limit recent results, oldest first.
func (s *Scheduler) History(limit int) []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]JobResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrNilJob is returned when trying to register a nil job.
	ErrNilJob = errors.New("job cannot be nil")

	// ErrNilSchedule is returned when trying to register a job with nil schedule.
	ErrNilSchedule = errors.New("schedule cannot be nil")

	// ErrJobAlreadyExists is returned when a job with the same name already exists.
	ErrJobAlreadyExists = errors.New("job already exists")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobBusy is returned by RunNow while the job is already running.
	ErrJobBusy = errors.New("job is already running")

	// ErrJobPanicked wraps a recovered panic.
	ErrJobPanicked = errors.New("job panicked")

	// ErrSchedulerAlreadyRunning is returned when Start is called on a running scheduler.
	ErrSchedulerAlreadyRunning = errors.New("scheduler is already running")

	// ErrSchedulerNotRunning is returned when Stop is called on a stopped scheduler.
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)
