// Package jobs contains the scheduled jobs of the participation tracker.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET JOBS
// Both checks are idempotent: running them more often than needed only
// costs a store read.
// ══════════════════════════════════════════════════════════════════════════════

// Resetter runs a reset check. command.ResetHandler implements it.
type Resetter interface {
	Handle(ctx context.Context, cmd command.ResetCommand) (*command.ResetResult, error)
}

// ResetStats describes the last run of a reset job.
type ResetStats struct {
	RanAt         time.Time
	Performed     bool
	Previous      string
	Current       string
	StudentsReset int
}

// ResetJob runs one reset scope on a schedule.
type ResetJob struct {
	scope    command.ResetScope
	resetter Resetter
	enabled  func() bool
	logger   *slog.Logger

	lastRun atomic.Pointer[ResetStats]
}

// NewDailyResetJob returns the job that rolls the session over to a new day.
func NewDailyResetJob(resetter Resetter, logger *slog.Logger) *ResetJob {
	return newResetJob(command.ResetDaily, resetter, nil, logger)
}

// NewSubjectResetJob returns the job that clears the session when the
// scheduled subject changes. enabled may be nil.
func NewSubjectResetJob(resetter Resetter, enabled func() bool, logger *slog.Logger) *ResetJob {
	return newResetJob(command.ResetSubject, resetter, enabled, logger)
}

func newResetJob(scope command.ResetScope, resetter Resetter, enabled func() bool, logger *slog.Logger) *ResetJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResetJob{
		scope:    scope,
		resetter: resetter,
		enabled:  enabled,
		logger:   logger.With("job", string(scope)+"_reset"),
	}
}

// Name returns the job name.
func (j *ResetJob) Name() string {
	return string(j.scope) + "_reset"
}

// Description returns a human-readable description.
func (j *ResetJob) Description() string {
	switch j.scope {
	case command.ResetDaily:
		return "Clear absences, call counters and the session pool when a new school day starts"
	default:
		return "Clear the session pool and current student when the scheduled subject changes"
	}
}

// Run performs the check.
func (j *ResetJob) Run(ctx context.Context) error {
	if j.enabled != nil && !j.enabled() {
		return nil
	}

	res, err := j.resetter.Handle(ctx, command.ResetCommand{Scope: j.scope})
	if err != nil {
		return err
	}

	stats := &ResetStats{
		RanAt:         time.Now(),
		Performed:     res.Performed,
		Previous:      res.Previous,
		Current:       res.Current,
		StudentsReset: res.StudentsReset,
	}
	j.lastRun.Store(stats)

	if res.Performed {
		j.logger.Info("reset applied",
			"previous", res.Previous,
			"current", res.Current,
			"students_reset", res.StudentsReset,
		)
	}
	return nil
}

// LastRun returns stats of the last successful run, or nil.
func (j *ResetJob) LastRun() *ResetStats {
	return j.lastRun.Load()
}
