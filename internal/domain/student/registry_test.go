package student

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("s%d", n)
	}
}

func TestRegistry_ImportDeduplicatesByFullName(t *testing.T) {
	reg := NewRegistry(nil)
	newID := sequentialIDs()

	res, err := reg.Import([]ImportRow{
		{FirstName: "Alice", LastName: "Smith", Grade: 4},
		{FirstName: "Bob", LastName: "Jones", Grade: 5},
		{FirstName: "alice", LastName: " smith ", Grade: 5},
	}, newID, time.Now())
	require.NoError(t, err)
	assert.Len(t, res.Added, 2)
	assert.Equal(t, []string{"alice smith"}, res.Skipped)

	res, err = reg.Import([]ImportRow{
		{FirstName: "Bob", LastName: "Jones", Grade: 5},
		{FirstName: "Cara", LastName: "Lee", Grade: 4},
	}, newID, time.Now())
	require.NoError(t, err)
	assert.Len(t, res.Added, 1)
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, "Cara Lee", reg.All()[2].Name)
}

func TestRegistry_DeleteAndGet(t *testing.T) {
	reg := NewRegistry(nil)
	_, err := reg.Import([]ImportRow{{FirstName: "A", LastName: "B", Grade: 4}}, sequentialIDs(), time.Now())
	require.NoError(t, err)

	_, err = reg.Get("s1")
	assert.NoError(t, err)

	assert.NoError(t, reg.Delete("s1"))
	assert.ErrorIs(t, reg.Delete("s1"), shared.ErrNotFound)
	_, err = reg.Get("s1")
	assert.True(t, shared.IsNotFound(err))
}

func TestNewStudent_Validation(t *testing.T) {
	_, err := NewStudent(NewStudentParams{ID: "x", FirstName: " ", Grade: 4})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = NewStudent(NewStudentParams{ID: "x", FirstName: "A", Grade: 40})
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	_, err = NewStudent(NewStudentParams{FirstName: "A", Grade: 4})
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestGoals(t *testing.T) {
	s, err := NewStudent(NewStudentParams{ID: "1", FirstName: "A", LastName: "B", Grade: 4})
	require.NoError(t, err)

	s.SetGoal("Read 5 books", "2025-03-01")
	s.SetGoal("Read 5 books", "2025-03-02")
	assert.Empty(t, s.GoalHistory)

	s.SetGoal("Learn times tables", "2025-03-10")
	require.Len(t, s.GoalHistory, 1)
	assert.Equal(t, GoalRecord{Goal: "Read 5 books", DateSet: "2025-03-01", DateCompleted: "2025-03-10"}, s.GoalHistory[0])

	require.NoError(t, s.CompleteGoal("2025-04-01"))
	assert.Empty(t, s.Goal)
	assert.Len(t, s.GoalHistory, 2)
	assert.ErrorIs(t, s.CompleteGoal("2025-04-02"), shared.ErrInvalidState)
}

func TestInterests_Normalized(t *testing.T) {
	in := NewInterests(SplitList(" chess, Football ,, chess"), []string{"maths", "Maths"}, "  likes dogs ")
	assert.Equal(t, []string{"chess", "Football"}, in.Extracurriculars)
	assert.Equal(t, []string{"maths"}, in.Strengths)
	assert.Equal(t, "likes dogs", in.Notes)
}

func TestClone_IsDeep(t *testing.T) {
	s, err := NewStudent(NewStudentParams{ID: "1", FirstName: "A", LastName: "B", Grade: 4})
	require.NoError(t, err)
	require.NoError(t, s.RecordOutcome(OutcomeCorrect, "Math"))

	c := s.Clone()
	require.NoError(t, c.RecordOutcome(OutcomeIncorrect, "Math"))

	assert.Equal(t, 1, s.Participation.TotalCalls)
	assert.Equal(t, SubjectTally{Correct: 1}, s.Participation.SubjectBreakdown["Math"])
}
