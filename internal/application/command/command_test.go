package command

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/internal/infrastructure/persistence/badger"
	"github.com/classroom-hub/participation-tracker/pkg/logger"
	"github.com/classroom-hub/participation-tracker/pkg/retry"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEST DOUBLES
// ══════════════════════════════════════════════════════════════════════════════

// flakyStore wraps a real store and fails a number of saves or loads.
type flakyStore struct {
	classroom.Store

	mu        sync.Mutex
	staleLeft int
	loadErr   error
	saves     int
}

func (s *flakyStore) Load(ctx context.Context, keys ...classroom.Key) (classroom.Snapshot, error) {
	s.mu.Lock()
	err := s.loadErr
	s.mu.Unlock()
	if err != nil {
		return classroom.Snapshot{}, err
	}
	return s.Store.Load(ctx, keys...)
}

func (s *flakyStore) Save(ctx context.Context, expected int64, values map[classroom.Key][]byte) (int64, error) {
	s.mu.Lock()
	s.saves++
	stale := s.staleLeft > 0
	if stale {
		s.staleLeft--
	}
	s.mu.Unlock()
	if stale {
		return 0, shared.ErrStaleClassroomWrite
	}
	return s.Store.Save(ctx, expected, values)
}

type publisherSpy struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *publisherSpy) Publish(ev shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *publisherSpy) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.EventType())
	}
	return out
}

// Monday 4 March 2024, 09:30.
func mondayMorning() time.Time {
	return timeutil.DateTime(2024, time.March, 4, 9, 30)
}

type fixture struct {
	store    *flakyStore
	events   *publisherSpy
	exec     *Executor
	handlers *Handlers
}

func newFixture(t *testing.T, opts ...ExecutorOption) *fixture {
	t.Helper()

	timeutil.SetLocation(time.UTC)
	t.Cleanup(func() { timeutil.SetLocation(nil) })

	inner, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = inner.Close() })

	store := &flakyStore{Store: inner}
	events := &publisherSpy{}
	fast := retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(2*time.Millisecond),
		retry.WithRetryIf(shared.IsConflict),
	)
	opts = append([]ExecutorOption{WithClock(mondayMorning), WithRetrier(fast)}, opts...)
	exec := NewExecutor(store, events, logger.Nop(), opts...)

	selector, err := session.NewSelector(session.StrategyWeightedPool, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	seq := 0
	newID := func() string {
		seq++
		return fmt.Sprintf("s-%d", seq)
	}

	return &fixture{
		store:    store,
		events:   events,
		exec:     exec,
		handlers: NewHandlers(exec, selector, []shared.Grade{4, 5}, newID, logger.Nop()),
	}
}

func grade(g int) *shared.Grade {
	v := shared.Grade(g)
	return &v
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTOR
// ══════════════════════════════════════════════════════════════════════════════

func TestExecutor_RetriesStaleWrite(t *testing.T) {
	f := newFixture(t)
	f.store.staleLeft = 1

	s, err := f.handlers.Roster.AddStudent(context.Background(), AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)
	// The mutation ran twice, so the second generated id won.
	assert.Equal(t, "s-2", s.ID)
	assert.Equal(t, 2, f.store.saves)

	c, err := f.exec.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, c.Registry.Len())
}

func TestExecutor_GivesUpOnPersistentConflict(t *testing.T) {
	f := newFixture(t)
	f.store.staleLeft = 100

	_, err := f.handlers.Roster.AddStudent(context.Background(), AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.Error(t, err)
	assert.True(t, shared.IsConflict(err))
	assert.Equal(t, 3, f.store.saves)
	assert.Empty(t, f.events.types())
}

func TestExecutor_StorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.loadErr = errors.New("disk detached")

	_, err := f.handlers.Roster.AddStudent(context.Background(), AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.Error(t, err)
	assert.True(t, shared.IsStorageUnavailable(err))
	assert.Equal(t, 0, f.store.saves)
}

func TestExecutor_DomainErrorSavesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.handlers.RecordOutcome.Handle(context.Background(), RecordOutcomeCommand{Outcome: student.OutcomeCorrect})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrNoCurrentStudent)
	assert.Equal(t, 0, f.store.saves)
}

func TestExecutor_ObserverAndEvents(t *testing.T) {
	var ops []string
	f := newFixture(t, WithObserver(func(op string, _ time.Duration, err error) {
		if err == nil {
			ops = append(ops, op)
		}
	}))

	_, err := f.handlers.Roster.AddStudent(context.Background(), AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)

	require.Len(t, ops, 1)
	types := f.events.types()
	assert.Contains(t, types, shared.EventStudentAdded)
	assert.Equal(t, shared.EventStateChanged, types[len(types)-1])
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER
// ══════════════════════════════════════════════════════════════════════════════

func TestRoster_AddStudentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "  "})
	assert.ErrorIs(t, err, shared.ErrInvalidStudentName)

	_, err = f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez", Grade: grade(14)})
	assert.ErrorIs(t, err, shared.ErrInvalidGrade)

	s, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez", Grade: grade(5)})
	require.NoError(t, err)
	assert.Equal(t, shared.Grade(5), s.Grade)

	_, err = f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "ANA", LastName: "lopez"})
	assert.ErrorIs(t, err, shared.ErrDuplicateStudent)
}

func TestRoster_ImportSkipsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)

	res, err := f.handlers.Roster.Import(ctx, ImportRosterCommand{
		Source: "csv",
		Rows: []student.ImportRow{
			{FirstName: "Ana", LastName: "Lopez", Grade: 4},
			{FirstName: "Ben", LastName: "Ng", Grade: 5},
			{FirstName: "ben", LastName: "NG", Grade: 5},
		},
	})
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	assert.Equal(t, "Ben Ng", res.Added[0].Name)
	assert.Len(t, res.Skipped, 2)

	c, err := f.exec.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Registry.Len())
}

func TestRoster_DeleteStudentClearsSessionReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)
	_, err = f.handlers.SelectStudent.Handle(ctx, SelectStudentCommand{})
	require.NoError(t, err)

	require.NoError(t, f.handlers.Roster.DeleteStudent(ctx, s.ID))

	c, err := f.exec.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, c.Registry.Len())
	assert.False(t, c.Session.HasCurrent())

	assert.ErrorIs(t, f.handlers.Roster.DeleteStudent(ctx, s.ID), shared.ErrStudentNotFound)
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func TestDispatcher_SelectThenMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)

	res, err := f.handlers.Dispatcher.Dispatch(ctx, KindSelectStudent, "corr-1")
	require.NoError(t, err)
	require.NotNil(t, res.Selected)
	assert.Equal(t, "Ana Lopez", res.Student().Name)

	res, err = f.handlers.Dispatcher.Dispatch(ctx, KindMarkCorrect, "corr-2")
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, 1, res.Outcome.Student.Participation.CorrectAnswers)
	assert.Equal(t, 1, res.Outcome.CallsToday)

	_, err = f.handlers.Dispatcher.Dispatch(ctx, KindMarkIncorrect, "corr-3")
	assert.ErrorIs(t, err, shared.ErrNoCurrentStudent)

	_, err = f.handlers.Dispatcher.Dispatch(ctx, Kind("juggle"), "")
	assert.ErrorIs(t, err, shared.ErrUnknownCommand)
}

func TestDispatcher_EmptyRoster(t *testing.T) {
	f := newFixture(t)

	_, err := f.handlers.Dispatcher.Dispatch(context.Background(), KindSelectStudent, "")
	assert.ErrorIs(t, err, shared.ErrNoEligibleStudents)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Mark_Correct")
	require.NoError(t, err)
	assert.Equal(t, KindMarkCorrect, k)

	_, err = ParseKind("explode")
	assert.ErrorIs(t, err, shared.ErrUnknownCommand)
}

func TestToggleGradeFilter_Cycles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	want := []session.GradeFilter{"grade-4", "grade-5", session.FilterAll}
	for _, w := range want {
		res, err := f.handlers.ToggleFilter.Handle(ctx)
		require.NoError(t, err)
		assert.Equal(t, w, res.Current)
	}
}

func TestReset_ParticipationWipesCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)
	_, err = f.handlers.SelectStudent.Handle(ctx, SelectStudentCommand{})
	require.NoError(t, err)
	_, err = f.handlers.RecordOutcome.Handle(ctx, RecordOutcomeCommand{Outcome: student.OutcomeIncorrect})
	require.NoError(t, err)

	res, err := f.handlers.Reset.Handle(ctx, ResetCommand{Scope: ResetParticipation})
	require.NoError(t, err)
	assert.True(t, res.Performed)
	assert.Equal(t, 1, res.StudentsReset)

	c, err := f.exec.Read(ctx)
	require.NoError(t, err)
	p := c.Registry.All()[0].Participation
	assert.Equal(t, 0, p.TotalCalls)
	assert.Equal(t, student.BaseWeight, p.Weight)

	_, err = f.handlers.Reset.Handle(ctx, ResetCommand{Scope: "weekly"})
	assert.Error(t, err)
}

func TestReset_DailyRunsOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.handlers.Reset.Handle(ctx, ResetCommand{Scope: ResetDaily})
	require.NoError(t, err)

	again, err := f.handlers.Reset.Handle(ctx, ResetCommand{Scope: ResetDaily})
	require.NoError(t, err)
	assert.False(t, again.Performed)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

func TestProfile_GoalLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)

	_, err = f.handlers.Profile.CompleteGoal(ctx, s.ID)
	assert.ErrorIs(t, err, shared.ErrNoGoal)

	s, err = f.handlers.Profile.SetGoal(ctx, SetGoalCommand{StudentID: s.ID, Goal: "Read two chapters"})
	require.NoError(t, err)
	assert.Equal(t, shared.Date("2024-03-04"), s.GoalSetOn)

	s, err = f.handlers.Profile.CompleteGoal(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, s.Goal)
	require.Len(t, s.GoalHistory, 1)
	assert.Equal(t, "Read two chapters", s.GoalHistory[0].Goal)
}

func TestProfile_RecordConnectionOncePerDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.handlers.Roster.AddStudent(ctx, AddStudentCommand{FirstName: "Ana", LastName: "Lopez"})
	require.NoError(t, err)

	first, err := f.handlers.Profile.RecordConnection(ctx, RecordConnectionCommand{StudentID: s.ID, Note: "talked about chess"})
	require.NoError(t, err)
	assert.Equal(t, student.ConnectionAdded, first.Result)
	assert.Equal(t, 1, first.Student.Connections.TotalMGCs)

	second, err := f.handlers.Profile.RecordConnection(ctx, RecordConnectionCommand{StudentID: s.ID, Note: "and football"})
	require.NoError(t, err)
	assert.Equal(t, student.ConnectionEdited, second.Result)
	assert.Equal(t, 1, second.Student.Connections.TotalMGCs)

	_, err = f.handlers.Profile.RecordConnection(ctx, RecordConnectionCommand{StudentID: "nope"})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}
