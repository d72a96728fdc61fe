// Package metrics exposes Prometheus collectors for the participation tracker.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTORS
// ══════════════════════════════════════════════════════════════════════════════

const namespace = "participation_tracker"

var (
	// selectionsTotal counts students put on the spot.
	// Labels: strategy
	selectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "selections_total",
		Help:      "Students selected by the selection engine",
	}, []string{"strategy"})

	// poolRefillsTotal counts session pool refills (start of a new rotation).
	poolRefillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "pool_refills_total",
		Help:      "Session pool refills",
	})

	// outcomesTotal counts resolved calls.
	// Labels: outcome (correct, incorrect)
	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "outcomes_total",
		Help:      "Call outcomes recorded",
	}, []string{"outcome"})

	// absencesTotal counts absence marks.
	absencesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "absences_total",
		Help:      "Students marked absent",
	})

	// resetsTotal counts resets that actually changed state.
	// Labels: scope (daily, subject, participation)
	resetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reset",
		Name:      "performed_total",
		Help:      "Resets that changed classroom state",
	}, []string{"scope"})

	// connectionsTotal counts MGC entries.
	// Labels: kind (added, edited)
	connectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connections",
		Name:      "recorded_total",
		Help:      "Meaningful greeting connections recorded",
	}, []string{"kind"})

	// eventsTotal counts domain events seen by observers.
	// Labels: type
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "observed_total",
		Help:      "Domain events observed",
	}, []string{"type"})

	// mutationLatency measures executor load-mutate-save cycles.
	// Labels: operation, status (ok, noop, conflict, storage_error, retry, rejected)
	mutationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "mutation_duration_seconds",
		Help:      "Classroom mutation latency including the atomic save",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"operation", "status"})

	// storeUp reports whether the last health check reached the store.
	// Labels: backend
	storeUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "up",
		Help:      "1 when the durable store answered the last health check",
	}, []string{"backend"})

	// jobRuns counts scheduler job runs.
	// Labels: job, status (success, error)
	jobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduler job runs",
	}, []string{"job", "status"})

	// importsTotal counts roster and schedule imports.
	// Labels: kind (roster, schedule, document), source
	importsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "files_total",
		Help:      "Imports applied to the classroom",
	}, []string{"kind", "source"})
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORDER
// ══════════════════════════════════════════════════════════════════════════════

// Recorder records classroom metrics. The zero value is ready to use.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// StudentSelected records a selection.
func (*Recorder) StudentSelected(strategy string) {
	selectionsTotal.WithLabelValues(strategy).Inc()
}

// PoolRefilled records a pool refill.
func (*Recorder) PoolRefilled() {
	poolRefillsTotal.Inc()
}

// OutcomeRecorded records a resolved call.
func (*Recorder) OutcomeRecorded(outcome string) {
	outcomesTotal.WithLabelValues(outcome).Inc()
}

// AbsenceRecorded records an absence mark.
func (*Recorder) AbsenceRecorded() {
	absencesTotal.Inc()
}

// ResetPerformed records a reset.
func (*Recorder) ResetPerformed(scope string) {
	resetsTotal.WithLabelValues(scope).Inc()
}

// ConnectionRecorded records an MGC.
func (*Recorder) ConnectionRecorded(edited bool) {
	kind := "added"
	if edited {
		kind = "edited"
	}
	connectionsTotal.WithLabelValues(kind).Inc()
}

// EventObserved counts any domain event.
func (*Recorder) EventObserved(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}

// ImportApplied counts an import.
func (*Recorder) ImportApplied(kind, source string) {
	importsTotal.WithLabelValues(kind, source).Inc()
}

// JobRun counts a scheduler job run.
func (*Recorder) JobRun(job string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	jobRuns.WithLabelValues(job, status).Inc()
}

// StoreUp sets the store health gauge.
func (*Recorder) StoreUp(backend string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	storeUp.WithLabelValues(backend).Set(v)
}

// ObserveMutation is a command.ExecObserver.
func (*Recorder) ObserveMutation(op string, latency time.Duration, err error) {
	mutationLatency.WithLabelValues(op, MutationStatus(err)).Observe(latency.Seconds())
}

// MutationStatus maps an executor error to a metric label.
func MutationStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case shared.IsNoOp(err):
		return "noop"
	case shared.IsConflict(err):
		return "conflict"
	case shared.IsStorageUnavailable(err):
		return "storage_error"
	case errors.Is(err, shared.ErrNoAvailableInPool):
		return "retry"
	default:
		return "rejected"
	}
}
