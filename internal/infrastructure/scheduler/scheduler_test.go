package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
	panic bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }
func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func testScheduler(obs Observer) *Scheduler {
	return New(Config{
		TickInterval: 5 * time.Millisecond,
		Location:     time.UTC,
		Observer:     obs,
	})
}

func TestRegister_RejectsDuplicatesAndNils(t *testing.T) {
	s := testScheduler(nil)
	job := &countingJob{name: "a"}

	require.NoError(t, s.Register(job, Every(time.Hour)))
	assert.ErrorIs(t, s.Register(job, Every(time.Hour)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Hour)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "b"}, nil), ErrNilSchedule)
}

func TestStart_RunsOnStartJobsImmediately(t *testing.T) {
	var mu sync.Mutex
	observed := map[string]error{}
	s := testScheduler(func(job string, err error) {
		mu.Lock()
		defer mu.Unlock()
		observed[job] = err
	})

	job := &countingJob{name: "daily_reset"}
	require.NoError(t, s.Register(job, Every(time.Hour), RunOnStart()))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	err, ok := observed["daily_reset"]
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestLoop_RunsDueJobsRepeatedly(t *testing.T) {
	s := testScheduler(nil)
	job := &countingJob{name: "subject_reset"}
	require.NoError(t, s.Register(job, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
}

func TestLoop_DoesNotOverlapARunningJob(t *testing.T) {
	s := testScheduler(nil)
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), job.runs.Load())

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobBusy)

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestRunNow_RecordsFailuresAndPanics(t *testing.T) {
	s := testScheduler(nil)
	failing := &countingJob{name: "failing", err: errors.New("store down")}
	panicky := &countingJob{name: "panicky", panic: true}
	require.NoError(t, s.Register(failing, Every(time.Hour)))
	require.NoError(t, s.Register(panicky, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "failing")
	require.Error(t, err)
	assert.False(t, res.Success())
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "panicky")
	assert.ErrorIs(t, err, ErrJobPanicked)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "failing", infos[0].Name)
	assert.Equal(t, int64(1), infos[0].FailCount)
	assert.Equal(t, "store down", infos[0].LastError)

	assert.Len(t, s.History(0), 2)
	assert.Len(t, s.History(1), 1)
}

func TestSetEnabled_SkipsDisabledJobs(t *testing.T) {
	s := testScheduler(nil)
	job := &countingJob{name: "off"}
	require.NoError(t, s.Register(job, Every(time.Millisecond), RunOnStart()))
	require.NoError(t, s.SetEnabled("off", false))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(0), job.runs.Load())
	assert.ErrorIs(t, s.SetEnabled("missing", true), ErrJobNotFound)
}

func TestStartStop_Errors(t *testing.T) {
	s := testScheduler(nil)
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	require.NoError(t, s.Stop())
}
