package jobs

import (
	"context"
	"log/slog"
)

// Pinger checks the durable store. persistence.Backend implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreHealthJob pings the store so the health gauge stays current even
// when nobody is using the tracker.
type StoreHealthJob struct {
	store  Pinger
	logger *slog.Logger
	failed bool
}

// NewStoreHealthJob creates the job.
func NewStoreHealthJob(store Pinger, logger *slog.Logger) *StoreHealthJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreHealthJob{store: store, logger: logger.With("job", "store_health")}
}

// Name returns the job name.
func (j *StoreHealthJob) Name() string { return "store_health" }

// Description returns a human-readable description.
func (j *StoreHealthJob) Description() string { return "Ping the classroom store" }

// Run pings the store. Recovery is logged once.
func (j *StoreHealthJob) Run(ctx context.Context) error {
	err := j.store.Ping(ctx)
	switch {
	case err != nil:
		j.failed = true
		return err
	case j.failed:
		j.failed = false
		j.logger.Info("classroom store reachable again")
	}
	return nil
}
