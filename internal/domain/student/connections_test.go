package student

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

func day(d int, hour int) time.Time {
	return timeutil.DateTime(2025, time.March, d, hour, 15)
}

func TestRecordConnection_OnePerDay(t *testing.T) {
	var c Connections

	assert.Equal(t, ConnectionAdded, c.RecordConnection("asked about football", "Math", day(3, 9)))
	assert.Equal(t, ConnectionEdited, c.RecordConnection("asked about the match", "Reading", day(3, 14)))

	assert.Equal(t, 1, c.TotalMGCs)
	assert.Len(t, c.History, 1)
	assert.Equal(t, "asked about the match", c.History[0].Note)
	assert.Equal(t, "14:15", c.History[0].Time)
	assert.Equal(t, "Math", c.History[0].Subject)

	assert.Equal(t, ConnectionAdded, c.RecordConnection("new puppy", "", day(5, 10)))
	assert.Equal(t, 2, c.TotalMGCs)
	assert.Equal(t, len(c.History), c.TotalMGCs)
	assert.Equal(t, shared.Date("2025-03-05"), c.LastConnection)
}

func TestRecordConnection_EmptyNoteOnNewDateIsIgnored(t *testing.T) {
	var c Connections
	assert.Equal(t, ConnectionIgnored, c.RecordConnection("   ", "Math", day(3, 9)))
	assert.Equal(t, 0, c.TotalMGCs)
	assert.Empty(t, c.History)
	assert.True(t, c.LastConnection.IsZero())
}

func TestRecordConnection_UsesClassroomLocation(t *testing.T) {
	timeutil.SetLocation(time.FixedZone("UTC+5", 5*60*60))
	t.Cleanup(func() { timeutil.SetLocation(nil) })

	var c Connections
	// 22:15 UTC на 3 марта - это уже 03:15 4 марта в классе.
	at := time.Date(2025, time.March, 3, 22, 15, 0, 0, time.UTC)
	assert.Equal(t, ConnectionAdded, c.RecordConnection("lost tooth", "", at))

	assert.Equal(t, shared.Date("2025-03-04"), c.History[0].Date)
	assert.Equal(t, "03:15", c.History[0].Time)
	assert.Equal(t, shared.Date("2025-03-04"), c.LastConnection)
}

func TestDaysSince(t *testing.T) {
	var c Connections
	_, ok := c.DaysSince("2025-03-10")
	assert.False(t, ok)

	c.RecordConnection("chat", "", day(3, 23))
	days, ok := c.DaysSince("2025-03-10")
	assert.True(t, ok)
	assert.Equal(t, 7, days)

	days, _ = c.DaysSince("2025-03-03")
	assert.Equal(t, 0, days)
}

func TestConnections_RecomputeCollapsesDuplicateDates(t *testing.T) {
	c := Connections{
		TotalMGCs: 10,
		History: []MGCEntry{
			{Date: "2025-03-01", Note: "a"},
			{Date: "2025-03-02", Note: "b"},
			{Date: "2025-03-01", Note: "c"},
		},
	}
	c.recompute()

	assert.Equal(t, 2, c.TotalMGCs)
	assert.Equal(t, "c", c.History[0].Note)
	assert.Equal(t, shared.Date("2025-03-02"), c.LastConnection)
}
