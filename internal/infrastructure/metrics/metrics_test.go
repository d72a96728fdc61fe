package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// Collectors are process-wide, so every assertion compares against the value
// read just before the call.

func TestRecorder_OutcomeRecorded(t *testing.T) {
	r := NewRecorder()
	correct := outcomesTotal.WithLabelValues("correct")
	incorrect := outcomesTotal.WithLabelValues("incorrect")
	beforeCorrect := testutil.ToFloat64(correct)
	beforeIncorrect := testutil.ToFloat64(incorrect)

	r.OutcomeRecorded("correct")
	r.OutcomeRecorded("correct")
	r.OutcomeRecorded("incorrect")

	assert.Equal(t, beforeCorrect+2, testutil.ToFloat64(correct))
	assert.Equal(t, beforeIncorrect+1, testutil.ToFloat64(incorrect))
}

func TestRecorder_ResetPerformed(t *testing.T) {
	r := NewRecorder()
	daily := resetsTotal.WithLabelValues("daily")
	subject := resetsTotal.WithLabelValues("subject")
	beforeDaily := testutil.ToFloat64(daily)
	beforeSubject := testutil.ToFloat64(subject)

	r.ResetPerformed("daily")

	assert.Equal(t, beforeDaily+1, testutil.ToFloat64(daily))
	assert.Equal(t, beforeSubject, testutil.ToFloat64(subject))
}

func TestRecorder_ConnectionRecorded(t *testing.T) {
	r := NewRecorder()
	added := connectionsTotal.WithLabelValues("added")
	edited := connectionsTotal.WithLabelValues("edited")
	beforeAdded := testutil.ToFloat64(added)
	beforeEdited := testutil.ToFloat64(edited)

	r.ConnectionRecorded(false)
	r.ConnectionRecorded(true)
	r.ConnectionRecorded(true)

	assert.Equal(t, beforeAdded+1, testutil.ToFloat64(added))
	assert.Equal(t, beforeEdited+2, testutil.ToFloat64(edited))
}

func TestRecorder_StoreUp(t *testing.T) {
	r := NewRecorder()

	r.StoreUp("badger", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(storeUp.WithLabelValues("badger")))

	r.StoreUp("badger", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(storeUp.WithLabelValues("badger")))
}

func TestRecorder_JobRun(t *testing.T) {
	r := NewRecorder()
	ok := jobRuns.WithLabelValues("daily_reset_test", "success")
	failed := jobRuns.WithLabelValues("daily_reset_test", "error")
	beforeOK := testutil.ToFloat64(ok)
	beforeFailed := testutil.ToFloat64(failed)

	r.JobRun("daily_reset_test", nil)
	r.JobRun("daily_reset_test", errors.New("store down"))

	assert.Equal(t, beforeOK+1, testutil.ToFloat64(ok))
	assert.Equal(t, beforeFailed+1, testutil.ToFloat64(failed))
}

func TestRecorder_ObserveMutationAddsSeries(t *testing.T) {
	r := NewRecorder()
	before := testutil.CollectAndCount(mutationLatency)

	r.ObserveMutation("observe_mutation_test", 3*time.Millisecond, shared.ErrStaleClassroomWrite)
	r.ObserveMutation("observe_mutation_test", 2*time.Millisecond, shared.ErrStaleClassroomWrite)

	assert.Equal(t, before+1, testutil.CollectAndCount(mutationLatency))
}

func TestMutationStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "ok"},
		{"nothing pending", shared.ErrNothingPending, "noop"},
		{"empty roster", shared.ErrEmptyRoster, "noop"},
		{"stale write", shared.ErrStaleClassroomWrite, "conflict"},
		{"storage", shared.StorageError("Save", errors.New("disk full")), "storage_error"},
		{"pool exhausted", shared.ErrPoolExhausted, "retry"},
		{"wrapped pool exhausted", fmt.Errorf("select: %w", shared.ErrPoolExhausted), "retry"},
		{"validation", shared.ErrInvalidGrade, "rejected"},
		{"plain error", errors.New("boom"), "rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MutationStatus(tt.err))
		})
	}
}
