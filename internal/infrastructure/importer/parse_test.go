package importer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

func TestParseRosterCSV(t *testing.T) {
	in := "\ufefffirstname,lastname,grade\n" +
		"Ana,Lopez,4\n" +
		"Ben,Ng,\n" +
		"# comment line\n" +
		"\n" +
		"Cara,,5\n" +
		"Dev,Patel,twelve\n" +
		"\"Mary Jo\",\"O'Neil\",5\n"

	res, err := ParseRosterCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []student.ImportRow{
		{FirstName: "Ana", LastName: "Lopez", Grade: 4},
		{FirstName: "Ben", LastName: "Ng", Grade: shared.DefaultGrade},
		{FirstName: "Mary Jo", LastName: "O'Neil", Grade: 5},
	}, res.Rows)

	require.Len(t, res.Rejected, 2)
	assert.ErrorIs(t, res.Rejected.Err(), shared.ErrInvalidInput)
}

func TestParseRosterCSV_WithoutHeader(t *testing.T) {
	res, err := ParseRosterCSV(strings.NewReader("Ana,Lopez\n"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, shared.DefaultGrade, res.Rows[0].Grade)
	assert.NoError(t, res.Rejected.Err())
}

func TestParseRosterCSV_Empty(t *testing.T) {
	_, err := ParseRosterCSV(strings.NewReader("firstname,lastname,grade\n"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseRosterText(t *testing.T) {
	res, err := ParseRosterText("Ana Lopez 5\n  \nMary Jo Smith\nPrince\nBad Grade 40\n")
	require.NoError(t, err)

	assert.Equal(t, []student.ImportRow{
		{FirstName: "Ana", LastName: "Lopez", Grade: 5},
		{FirstName: "Mary Jo", LastName: "Smith", Grade: shared.DefaultGrade},
	}, res.Rows)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, 4, res.Rejected[0].Line)
	assert.Equal(t, 5, res.Rejected[1].Line)
}

func TestParseScheduleCSV(t *testing.T) {
	in := "Day,Subject,Start Time,End Time\n" +
		"Monday,Maths,9:00,10:00\n" +
		"monday,Reading,10:15,11:00\n" +
		"Friday,Art,13:00,14:00\n" +
		"Saturday,Sport,9:00,10:00\n" +
		"Tuesday,Science,11:00,10:00\n"

	res, err := ParseScheduleCSV(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Periods)
	require.Len(t, res.Week[schedule.Monday], 2)
	assert.Equal(t, schedule.Period{Subject: "Maths", StartTime: "09:00", EndTime: "10:00"}, res.Week[schedule.Monday][0])
	assert.Len(t, res.Week[schedule.Friday], 1)
	require.Len(t, res.Rejected, 2)
	assert.ErrorIs(t, res.Rejected[0], shared.ErrInvalidWeekday)
	assert.ErrorIs(t, res.Rejected[1], shared.ErrInvalidPeriod)
}

func TestParseScheduleCSV_WrongColumns(t *testing.T) {
	res, err := ParseScheduleCSV(strings.NewReader("Monday,Maths,09:00\n"))
	require.NoError(t, err)
	assert.Zero(t, res.Periods)
	assert.Len(t, res.Rejected, 1)
}

func TestParseScheduleText(t *testing.T) {
	res, err := ParseScheduleText("Maths, 09:00, 10:00\nReading 10:00 11:00\nArt, 13:00, 13:45\n")
	require.NoError(t, err)

	require.Len(t, res.Periods, 2)
	assert.Equal(t, "Art", res.Periods[1].Subject)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 2, res.Rejected[0].Line)
}
