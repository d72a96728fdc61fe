package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

// 2025-03-03 is a Monday.
func monday(hour, min int) time.Time {
	return timeutil.DateTime(2025, time.March, 3, hour, min)
}

func mustPeriod(t *testing.T, subject, start, end string) Period {
	t.Helper()
	p, err := NewPeriod(subject, start, end)
	require.NoError(t, err)
	return p
}

func testTable(t *testing.T) Table {
	table := NewTable()
	require.NoError(t, table.Append(Monday,
		mustPeriod(t, "Reading", "10:00", "11:00"),
		mustPeriod(t, "Math", "9:00", "10:00"),
	))
	return table
}

func TestActiveSubject_Boundaries(t *testing.T) {
	table := testTable(t)

	_, ok := table.ActiveSubject(monday(8, 59))
	assert.False(t, ok)

	subject, ok := table.ActiveSubject(monday(9, 0))
	assert.True(t, ok)
	assert.Equal(t, "Math", subject)

	// End time is exclusive: 10:00 belongs to the next period.
	subject, _ = table.ActiveSubject(monday(10, 0))
	assert.Equal(t, "Reading", subject)

	_, ok = table.ActiveSubject(monday(11, 0))
	assert.False(t, ok)
}

func TestActiveSubject_Weekend(t *testing.T) {
	table := testTable(t)
	saturday := timeutil.DateTime(2025, time.March, 8, 9, 30)

	_, ok := table.ActiveSubject(saturday)
	assert.False(t, ok)
	assert.Empty(t, table.AllPeriodsToday(saturday))
}

func TestAllPeriodsToday_SortedCopy(t *testing.T) {
	table := testTable(t)
	periods := table.AllPeriodsToday(monday(12, 0))

	require.Len(t, periods, 2)
	assert.Equal(t, "Math", periods[0].Subject)
	assert.Equal(t, "09:00", periods[0].StartTime)

	periods[0].Subject = "changed"
	assert.Equal(t, "Math", table[Monday][0].Subject)
}

func TestPeriodAt_Browsing(t *testing.T) {
	table := testTable(t)

	p, ok := table.PeriodAt(monday(9, 30), 1)
	assert.True(t, ok)
	assert.Equal(t, "Reading", p.Subject)

	_, ok = table.PeriodAt(monday(9, 30), -1)
	assert.False(t, ok)

	// Before school the current slot is the first upcoming period.
	p, ok = table.PeriodAt(monday(8, 0), 0)
	assert.True(t, ok)
	assert.Equal(t, "Math", p.Subject)

	// After school "previous" is the last finished period.
	p, ok = table.PeriodAt(monday(15, 0), -1)
	assert.True(t, ok)
	assert.Equal(t, "Reading", p.Subject)
}

func TestNewPeriod_Validation(t *testing.T) {
	_, err := NewPeriod("Math", "10:00", "09:00")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewPeriod("", "09:00", "10:00")
	assert.Error(t, err)

	_, err = NewPeriod("Math", "9am", "10:00")
	assert.ErrorIs(t, err, shared.ErrInvalidFormat)
}

func TestEditing(t *testing.T) {
	table := testTable(t)

	removed, err := table.DeletePeriod(Monday, 0)
	require.NoError(t, err)
	assert.Equal(t, "Math", removed.Subject)

	_, err = table.DeletePeriod(Monday, 5)
	assert.True(t, shared.IsNotFound(err))

	require.NoError(t, table.Append(Tuesday, mustPeriod(t, "Art", "13:00", "14:00")))
	assert.Equal(t, 2, table.PeriodCount())

	require.NoError(t, table.ClearDay(Monday))
	assert.Equal(t, 1, table.PeriodCount())

	table.ClearWeek()
	assert.Equal(t, 0, table.PeriodCount())

	assert.ErrorIs(t, table.Append(Weekday("saturday")), shared.ErrInvalidInput)
}

func TestReplaceWeek(t *testing.T) {
	table := testTable(t)
	err := table.ReplaceWeek(map[Weekday][]Period{
		Friday: {mustPeriod(t, "PE", "14:00", "15:00")},
	})
	require.NoError(t, err)

	assert.Empty(t, table[Monday])
	assert.Len(t, table[Friday], 1)
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("WEDNESDAY")
	require.NoError(t, err)
	assert.Equal(t, Wednesday, d)

	d, err = ParseWeekday("thu")
	require.NoError(t, err)
	assert.Equal(t, Thursday, d)

	_, err = ParseWeekday("Sunday")
	assert.Error(t, err)
}

func TestSanitize_DropsInvalid(t *testing.T) {
	raw := Table{
		"Monday":   {{Subject: "Math", StartTime: "9:00", EndTime: "10:00"}, {Subject: "Bad", StartTime: "11:00", EndTime: "10:00"}},
		"saturday": {{Subject: "Chess", StartTime: "9:00", EndTime: "10:00"}},
	}
	clean := raw.Sanitize()

	require.Len(t, clean[Monday], 1)
	assert.Equal(t, "09:00", clean[Monday][0].StartTime)
	assert.Equal(t, 1, clean.PeriodCount())
}

func TestWeekdayOf_AgreesWithDateOf(t *testing.T) {
	timeutil.SetLocation(time.FixedZone("UTC+5", 5*60*60))
	t.Cleanup(func() { timeutil.SetLocation(nil) })

	// Вечер воскресенья по UTC - уже понедельник в классе.
	at := time.Date(2025, time.March, 2, 22, 0, 0, 0, time.UTC)

	day, ok := WeekdayOf(at)
	require.True(t, ok)
	assert.Equal(t, Monday, day)
	assert.Equal(t, shared.Date("2025-03-03"), shared.DateOf(at))

	subject, ok := testTable(t).ActiveSubject(time.Date(2025, time.March, 3, 4, 30, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "Math", subject)
}
