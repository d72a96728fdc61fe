package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// fixedRandom returns scripted values; after the script ends it repeats the last one.
type fixedRandom struct {
	floats []float64
	ints   []int
}

func (f *fixedRandom) Float64() float64 {
	if len(f.floats) == 0 {
		return 0
	}
	v := f.floats[0]
	if len(f.floats) > 1 {
		f.floats = f.floats[1:]
	}
	return v
}

func (f *fixedRandom) Intn(n int) int {
	if len(f.ints) == 0 {
		return 0
	}
	v := f.ints[0]
	if len(f.ints) > 1 {
		f.ints = f.ints[1:]
	}
	return v % n
}

func newStudent(t *testing.T, id, first string, grade shared.Grade) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{
		ID:        id,
		FirstName: first,
		LastName:  "Test",
		Grade:     grade,
		Now:       time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return s
}

func newSelector(t *testing.T, strategy Strategy, rnd RandomSource) *Selector {
	t.Helper()
	sel, err := NewSelector(strategy, rnd)
	require.NoError(t, err)
	return sel
}

func TestSelectNext_WeightedDraw(t *testing.T) {
	alice := newStudent(t, "a", "Alice", 4)
	bob := newStudent(t, "b", "Bob", 4)
	require.NoError(t, bob.RecordOutcome(student.OutcomeIncorrect, "Math"))
	require.Equal(t, 1.3, bob.SelectionWeight())

	reg := student.NewRegistry([]*student.Student{alice, bob})

	// Total weight 2.3: draws below 1.0 land on Alice, the rest on Bob.
	st := NewState()
	sel := newSelector(t, StrategyWeightedPool, &fixedRandom{floats: []float64{0.5}})
	got, err := sel.SelectNext(reg, &st, "Math")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Student.ID)
	assert.True(t, got.PoolRefilled)
	assert.Equal(t, 2, got.RefillSize)
	assert.Equal(t, []string{"a"}, st.Pool)
	assert.Equal(t, "b", st.CurrentStudent)

	st = NewState()
	sel = newSelector(t, StrategyWeightedPool, &fixedRandom{floats: []float64{0.4}})
	got, err = sel.SelectNext(reg, &st, "Math")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Student.ID)
}

func TestSelectNext_EveryoneOncePerCycle(t *testing.T) {
	reg := student.NewRegistry([]*student.Student{
		newStudent(t, "a", "Alice", 4),
		newStudent(t, "b", "Bob", 4),
		newStudent(t, "c", "Cara", 4),
	})
	st := NewState()
	sel := newSelector(t, StrategyWeightedPool, &fixedRandom{floats: []float64{0.0}})

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		got, err := sel.SelectNext(reg, &st, "")
		require.NoError(t, err)
		seen[got.Student.ID]++
	}
	assert.Len(t, seen, 3)
	assert.Empty(t, st.Pool)

	// The fourth call starts a new cycle.
	got, err := sel.SelectNext(reg, &st, "")
	require.NoError(t, err)
	assert.True(t, got.PoolRefilled)
	assert.Len(t, st.Pool, 2)
}

func TestSelectNext_EmptyRoster(t *testing.T) {
	st := NewState()
	sel := newSelector(t, StrategyWeightedPool, &fixedRandom{})

	_, err := sel.SelectNext(student.NewRegistry(nil), &st, "")
	assert.ErrorIs(t, err, shared.ErrNoEligibleStudents)
	assert.Equal(t, "", st.CurrentStudent)
}

func TestSelectNext_AbsentAndFilteredAreNotEligible(t *testing.T) {
	reg := student.NewRegistry([]*student.Student{
		newStudent(t, "a", "Alice", 4),
		newStudent(t, "b", "Bob", 5),
	})
	st := NewState()
	st.MarkAbsent("a")
	sel := newSelector(t, StrategyWeightedPool, &fixedRandom{})

	got, err := sel.SelectNext(reg, &st, "")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Student.ID)

	st = NewState()
	st.GradeFilter = ForGrade(5)
	st.MarkAbsent("b")
	_, err = sel.SelectNext(reg, &st, "")
	assert.ErrorIs(t, err, shared.ErrNoEligibleStudents)
}

func TestSelectNext_PoolWithoutEligibleMembers(t *testing.T) {
	reg := student.NewRegistry([]*student.Student{
		newStudent(t, "a", "Alice", 4),
		newStudent(t, "b", "Bob", 4),
	})
	st := NewState()
	st.Pool = []string{"a"}
	st.MarkAbsent("a")
	sel := newSelector(t, StrategyWeightedPool, &fixedRandom{})

	_, err := sel.SelectNext(reg, &st, "")
	assert.ErrorIs(t, err, shared.ErrNoAvailableInPool)
	assert.Equal(t, []string{"a"}, st.Pool)
	assert.False(t, st.HasCurrent())
}

func TestSelectNext_ZeroTotalWeightPicksUniformly(t *testing.T) {
	a := newStudent(t, "a", "Alice", 4)
	b := newStudent(t, "b", "Bob", 4)
	a.Participation.Weight = 0
	b.Participation.Weight = 0
	reg := student.NewRegistry([]*student.Student{a, b})

	st := NewState()
	sel := newSelector(t, StrategyWeightedPool, &fixedRandom{ints: []int{1}})
	got, err := sel.SelectNext(reg, &st, "")
	require.NoError(t, err)
	assert.Equal(t, "b", got.Student.ID)
}

func TestSelectNext_LeastCalledRandom(t *testing.T) {
	a := newStudent(t, "a", "Alice", 4)
	b := newStudent(t, "b", "Bob", 4)
	c := newStudent(t, "c", "Cara", 4)
	require.NoError(t, a.RecordOutcome(student.OutcomeCorrect, "Math"))
	require.NoError(t, c.RecordOutcome(student.OutcomeCorrect, "Reading"))
	reg := student.NewRegistry([]*student.Student{a, b, c})

	st := NewState()
	sel := newSelector(t, StrategyLeastCalledRandom, &fixedRandom{ints: []int{1}})
	got, err := sel.SelectNext(reg, &st, "Math")
	require.NoError(t, err)

	// b and c have no Math calls; index 1 of the ties is c.
	assert.Equal(t, "c", got.Student.ID)
	assert.Equal(t, 2, got.Candidates)
	assert.Empty(t, st.Pool)
	assert.Equal(t, "c", st.CurrentStudent)
}

func TestSelectNext_LeastCalledRandomWithoutSubject(t *testing.T) {
	a := newStudent(t, "a", "Alice", 4)
	b := newStudent(t, "b", "Bob", 4)
	c := newStudent(t, "c", "Cara", 4)
	require.NoError(t, a.RecordOutcome(student.OutcomeCorrect, "Math"))
	require.NoError(t, c.RecordOutcome(student.OutcomeCorrect, "Reading"))
	reg := student.NewRegistry([]*student.Student{a, b, c})

	st := NewState()
	sel := newSelector(t, StrategyLeastCalledRandom, &fixedRandom{ints: []int{0}})
	got, err := sel.SelectNext(reg, &st, "")
	require.NoError(t, err)

	// Without a subject only b has zero total calls.
	assert.Equal(t, "b", got.Student.ID)
	assert.Equal(t, 1, got.Candidates)
	assert.Equal(t, "b", st.CurrentStudent)
}

func TestGradeFilter_Cycle(t *testing.T) {
	levels := []shared.Grade{4, 5}

	f := FilterAll
	f = f.Next(levels)
	assert.Equal(t, GradeFilter("grade-4"), f)
	f = f.Next(levels)
	assert.Equal(t, GradeFilter("grade-5"), f)
	f = f.Next(levels)
	assert.Equal(t, FilterAll, f)

	assert.Equal(t, FilterAll, GradeFilter("grade-9").Next(levels))
	assert.True(t, FilterAll.Matches(7))
	assert.False(t, ForGrade(4).Matches(5))

	parsed, err := ParseGradeFilter("5")
	require.NoError(t, err)
	assert.Equal(t, GradeFilter("grade-5"), parsed)

	_, err = ParseGradeFilter("grade-x")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestDailyReset_Idempotent(t *testing.T) {
	a := newStudent(t, "a", "Alice", 4)
	require.NoError(t, a.RecordOutcome(student.OutcomeIncorrect, "Math"))
	reg := student.NewRegistry([]*student.Student{a})

	st := NewState()
	st.LastResetDate = "2025-03-02"
	st.Pool = []string{"a"}
	st.CurrentStudent = "a"
	st.CallsToday = 5
	st.MarkAbsent("a")
	st.LastSubject = "Math"

	res := DailyResetIfNeeded(&st, reg, "2025-03-03")
	assert.True(t, res.Performed)
	assert.Equal(t, 1, res.StudentsReset)
	assert.Empty(t, st.Pool)
	assert.Empty(t, st.AbsentToday)
	assert.False(t, st.HasCurrent())
	assert.Equal(t, 0, st.CallsToday)
	assert.Equal(t, shared.Date("2025-03-03"), st.LastResetDate)
	assert.Equal(t, 1.0, a.SelectionWeight())
	assert.Equal(t, 1, a.Participation.IncorrectAnswers)

	before := st.Clone()
	res = DailyResetIfNeeded(&st, reg, "2025-03-03")
	assert.False(t, res.Changed())
	assert.Equal(t, before, st)
}

func TestSubjectReset(t *testing.T) {
	a := newStudent(t, "a", "Alice", 4)
	require.NoError(t, a.RecordOutcome(student.OutcomeIncorrect, "Math"))
	require.NoError(t, a.RecordOutcome(student.OutcomeIncorrect, "Math"))
	reg := student.NewRegistry([]*student.Student{a})

	st := NewState()
	res := SubjectResetIfNeeded(&st, reg, "Math", true)
	assert.True(t, res.Initialized)
	assert.False(t, res.Performed)
	assert.Equal(t, "Math", st.LastSubject)

	st.Pool = []string{"a"}
	res = SubjectResetIfNeeded(&st, reg, "Math", true)
	assert.False(t, res.Changed())
	assert.Equal(t, []string{"a"}, st.Pool)

	// No active period leaves everything alone.
	res = SubjectResetIfNeeded(&st, reg, "", false)
	assert.False(t, res.Changed())
	assert.Equal(t, "Math", st.LastSubject)

	res = SubjectResetIfNeeded(&st, reg, "Reading", true)
	assert.True(t, res.Performed)
	assert.Equal(t, "Math", res.Previous)
	assert.Empty(t, st.Pool)
	assert.Equal(t, "Reading", st.LastSubject)
	assert.Equal(t, 1.0, a.SelectionWeight())
	assert.Equal(t, 2, a.Participation.TotalCalls)
	assert.Equal(t, 2, a.Participation.SubjectCalls("Math"))
}

func TestState_AbsenceBookkeeping(t *testing.T) {
	st := NewState()
	st.Pool = []string{"a", "b"}
	st.CurrentStudent = "a"

	assert.True(t, st.MarkAbsent("a"))
	assert.False(t, st.MarkAbsent("a"))
	assert.Equal(t, []string{"a"}, st.AbsentToday)

	assert.True(t, st.UnmarkAbsent("a"))
	assert.False(t, st.IsAbsent("a"))

	st.Forget("a")
	assert.Equal(t, []string{"b"}, st.Pool)
	assert.False(t, st.HasCurrent())
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("least-called-random")
	require.NoError(t, err)
	assert.Equal(t, StrategyLeastCalledRandom, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyWeightedPool, s)

	_, err = ParseStrategy("round_robin")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
