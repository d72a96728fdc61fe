package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/pkg/timeutil"
)

func TestDateOf_UsesClassroomLocation(t *testing.T) {
	timeutil.SetLocation(time.FixedZone("UTC+5", 5*60*60))
	t.Cleanup(func() { timeutil.SetLocation(nil) })

	late := time.Date(2025, time.March, 3, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, Date("2025-03-04"), DateOf(late))

	early := time.Date(2025, time.March, 3, 18, 59, 0, 0, time.UTC)
	assert.Equal(t, Date("2025-03-03"), DateOf(early))

	assert.Equal(t, Date("2025-03-03"), DateOf(timeutil.DateTime(2025, time.March, 3, 0, 0)))
}

func TestParseDate_IgnoresClassroomLocation(t *testing.T) {
	timeutil.SetLocation(time.FixedZone("UTC-8", -8*60*60))
	t.Cleanup(func() { timeutil.SetLocation(nil) })

	d, err := ParseDate(" 2025-03-03 ")
	require.NoError(t, err)
	assert.Equal(t, Date("2025-03-03"), d)

	_, err = ParseDate("03/03/2025")
	assert.ErrorIs(t, err, ErrInvalidFormat)
	assert.True(t, IsValidation(err))
}
