package query

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ТЕСТОВЫЕ ДВОЙНИКИ
// ══════════════════════════════════════════════════════════════════════════════

type staticSource struct {
	c     *classroom.Classroom
	err   error
	reads int
}

func (s *staticSource) Read(context.Context) (*classroom.Classroom, error) {
	s.reads++
	if s.err != nil {
		return nil, s.err
	}
	return s.c, nil
}

type mapCache struct {
	data map[string][]byte
}

func (m *mapCache) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

// Понедельник, 4 марта 2024, 09:30 UTC.
var monday = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return monday }

func newStudent(t *testing.T, id, first, last string, g shared.Grade) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{ID: id, FirstName: first, LastName: last, Grade: g, Now: monday})
	require.NoError(t, err)
	return s
}

func sampleClassroom(t *testing.T) *classroom.Classroom {
	t.Helper()
	timeutil.SetLocation(time.UTC)
	t.Cleanup(func() { timeutil.SetLocation(nil) })

	c := classroom.New()

	ana := newStudent(t, "a", "Ana", "Lopez", 4)
	require.NoError(t, ana.RecordOutcome(student.OutcomeCorrect, "Maths"))
	require.NoError(t, ana.RecordOutcome(student.OutcomeIncorrect, "Maths"))
	ana.RecordConnection("chess club", "Maths", monday.AddDate(0, 0, -3))

	ben := newStudent(t, "b", "Ben", "Ng", 5)
	require.NoError(t, ben.RecordOutcome(student.OutcomeCorrect, "Reading"))
	ben.RecordConnection("football", "", monday.AddDate(0, 0, -10))

	cara := newStudent(t, "c", "Cara", "Diaz", 5)

	for _, s := range []*student.Student{ana, ben, cara} {
		require.NoError(t, c.Registry.Add(s))
	}

	maths, err := schedule.NewPeriod("Maths", "09:00", "10:00")
	require.NoError(t, err)
	reading, err := schedule.NewPeriod("Reading", "10:15", "11:00")
	require.NoError(t, err)
	require.NoError(t, c.Schedule.Append(schedule.Monday, maths, reading))

	c.Session.CurrentStudent = "b"
	c.Session.AbsentToday = []string{"c"}
	c.Session.CallsToday = 3
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STATUS
// ══════════════════════════════════════════════════════════════════════════════

func TestSessionStatus(t *testing.T) {
	c := sampleClassroom(t)
	h := NewGetSessionStatusHandler(&staticSource{c: c}, fixedClock)

	dto, err := h.Handle(context.Background())
	require.NoError(t, err)

	require.NotNil(t, dto.CurrentStudent)
	assert.Equal(t, "Ben Ng", dto.CurrentStudent.Name)
	assert.True(t, dto.CurrentStudent.IsCurrent)
	assert.True(t, dto.HasActive)
	assert.Equal(t, "Maths", dto.ActiveSubject)
	assert.Equal(t, session.FilterAll, dto.GradeFilter)
	assert.Equal(t, []StudentRef{{ID: "c", Name: "Cara Diaz"}}, dto.AbsentToday)
	assert.Equal(t, 3, dto.CallsToday)
	assert.Equal(t, 3, dto.TotalStudents)
}

func TestSessionStatus_SourceError(t *testing.T) {
	h := NewGetSessionStatusHandler(&staticSource{err: shared.StorageError("Load", errors.New("gone"))}, fixedClock)

	_, err := h.Handle(context.Background())
	assert.True(t, shared.IsStorageUnavailable(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestStudents_ListWithFilterAndSort(t *testing.T) {
	c := sampleClassroom(t)
	h := NewStudentsHandler(&staticSource{c: c}, fixedClock)

	all, err := h.List(context.Background(), ListStudentsQuery{SortByName: true})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Ana Lopez", "Ben Ng", "Cara Diaz"}, []string{all[0].Name, all[1].Name, all[2].Name})

	fifth, err := h.List(context.Background(), ListStudentsQuery{GradeFilter: session.ForGrade(5)})
	require.NoError(t, err)
	require.Len(t, fifth, 2)
	assert.True(t, fifth[1].AbsentToday)
}

func TestStudentDTO_DerivedFields(t *testing.T) {
	c := sampleClassroom(t)
	ana, err := c.Registry.Get("a")
	require.NoError(t, err)

	dto := NewStudentDTO(ana, nil, classroom.Today(monday))
	assert.Equal(t, 2, dto.TotalCalls)
	assert.Equal(t, 0.5, dto.Accuracy)
	assert.InDelta(t, 1.3, dto.Weight, 1e-9)
	require.NotNil(t, dto.DaysSinceLastMGC)
	assert.Equal(t, 3, *dto.DaysSinceLastMGC)
	assert.False(t, dto.IsCurrent)

	cara, err := c.Registry.Get("c")
	require.NoError(t, err)
	assert.Nil(t, NewStudentDTO(cara, nil, classroom.Today(monday)).DaysSinceLastMGC)
}

func TestStudents_GetUnknown(t *testing.T) {
	h := NewStudentsHandler(&staticSource{c: classroom.New()}, fixedClock)

	_, err := h.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestNeglected_Ordering(t *testing.T) {
	c := sampleClassroom(t)
	h := NewStudentsHandler(&staticSource{c: c}, fixedClock)

	rows, err := h.Neglected(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Сначала те, с кем связи не было, затем по убыванию дней.
	assert.Equal(t, "c", rows[0].ID)
	assert.True(t, rows[0].NeverConnected)
	assert.Equal(t, "b", rows[1].ID)
	assert.Equal(t, 10, *rows[1].DaysSince)
	assert.Equal(t, "a", rows[2].ID)

	limited, err := h.Neglected(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY
// ══════════════════════════════════════════════════════════════════════════════

func TestSummary_Totals(t *testing.T) {
	c := sampleClassroom(t)
	dto := BuildSummary(c, monday)

	assert.Equal(t, 3, dto.TotalStudents)
	assert.Equal(t, 3, dto.TotalCalls)
	assert.Equal(t, 2, dto.TotalMGCs)
	// Средняя по вызванным: (0.5 + 1.0) / 2.
	assert.Equal(t, 0.75, dto.AverageAccuracy)
	assert.Equal(t, 1, dto.AbsentToday)

	require.Len(t, dto.Subjects, 2)
	assert.Equal(t, SubjectSummaryDTO{Subject: "Maths", Correct: 1, Incorrect: 1, Accuracy: 0.5}, dto.Subjects[0])
	assert.Equal(t, "Reading", dto.Subjects[1].Subject)
}

func TestSummary_UsesCache(t *testing.T) {
	c := sampleClassroom(t)
	src := &staticSource{c: c}
	cache := &mapCache{data: map[string][]byte{}}
	h := NewGetSummaryHandler(src, cache, fixedClock)

	first, err := h.Handle(context.Background())
	require.NoError(t, err)
	second, err := h.Handle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, src.reads)
	assert.Equal(t, first.TotalCalls, second.TotalCalls)

	require.NoError(t, h.Invalidate(context.Background()))
	_, err = h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.reads)
}

func TestSummary_NilCache(t *testing.T) {
	h := NewGetSummaryHandler(&staticSource{c: classroom.New()}, nil, fixedClock)

	dto, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, dto.TotalStudents)
	assert.Empty(t, dto.Subjects)
	assert.NoError(t, h.Invalidate(context.Background()))
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE & EXPORT
// ══════════════════════════════════════════════════════════════════════════════

func TestSchedule_TodayAndPeriodAt(t *testing.T) {
	c := sampleClassroom(t)
	h := NewScheduleHandler(&staticSource{c: c}, fixedClock)

	today, err := h.Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schedule.Monday, today.Day)
	assert.True(t, today.SchoolDay)
	assert.Equal(t, 0, today.ActiveIndex)
	assert.Equal(t, "Maths", today.ActiveSubject)

	next, ok, err := h.PeriodAt(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Reading", next.Subject)

	_, ok, err = h.PeriodAt(context.Background(), -1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExport_Document(t *testing.T) {
	c := sampleClassroom(t)
	h := NewExportHandler(&staticSource{c: c}, fixedClock)

	doc, err := h.Handle(context.Background())
	require.NoError(t, err)
	assert.Len(t, doc.Students, 3)
	assert.Len(t, doc.Schedules[schedule.Monday], 2)
	assert.Equal(t, monday, doc.ExportDate)
	assert.Equal(t, shared.Date("2024-03-04"), h.Today())

	// Документ - копия: правка не трогает исходный класс.
	doc.Students[0].Name = "Changed"
	ana, _ := c.Registry.Get("a")
	assert.Equal(t, "Ana Lopez", ana.Name)
}
