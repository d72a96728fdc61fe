package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCronExpression_Invalid(t *testing.T) {
	for _, expr := range []string{
		"",
		"* * * *",
		"60 * * * *",
		"* 24 * * *",
		"*/0 * * * *",
		"5-1 * * * *",
		"a * * * *",
	} {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, expr)
	}
}

func TestCronExpression_Next(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC) // Friday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"*/5 * * * *", time.Date(2024, 3, 15, 10, 35, 0, 0, time.UTC)},
		{"1 0 * * *", time.Date(2024, 3, 16, 0, 1, 0, 0, time.UTC)},
		{"0 7 * * 1-5", time.Date(2024, 3, 18, 7, 0, 0, 0, time.UTC)},
		{"30 10 * * *", time.Date(2024, 3, 16, 10, 30, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)},
		{"15,45 * * * *", time.Date(2024, 3, 15, 10, 45, 0, 0, time.UTC)},
		{"0 0 29 2 *", time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ce, err := ParseCronExpression(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ce.Next(base))
		})
	}
}

func TestCronExpression_NextKeepsLocation(t *testing.T) {
	loc := time.FixedZone("school", 5*3600)
	ce := MustParseCronExpression("1 0 * * *")

	next := ce.Next(time.Date(2024, 3, 15, 23, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 16, 0, 1, 0, 0, loc), next)
	assert.Equal(t, loc, next.Location())
}

func TestAnyOf_PicksEarliest(t *testing.T) {
	base := time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)
	s := AnyOf{MustParseCronExpression("1 0 * * *"), Every(time.Hour)}

	assert.Equal(t, time.Date(2024, 3, 16, 0, 1, 0, 0, time.UTC), s.Next(base))
	assert.Equal(t, "1 0 * * * | @every 1h0m0s", s.String())
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule("@every 90s")
	require.NoError(t, err)
	assert.Equal(t, Every(90*time.Second), s)

	s, err = ParseSchedule("@daily")
	require.NoError(t, err)
	assert.Equal(t, "0 0 * * *", s.String())

	_, err = ParseSchedule("@every soon")
	assert.Error(t, err)
}
