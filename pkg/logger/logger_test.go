package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel(" WARNING "))
	assert.Equal(t, LevelError, ParseLevel("Error"))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
	assert.Equal(t, LevelInfo, ParseLevel("panic"))
	assert.Equal(t, LevelInfo, ParseLevel("dpanic"))
	assert.Equal(t, LevelInfo, ParseLevel("FATAL"))
	assert.Equal(t, "WARN", LevelWarn.String())
}

func TestNew_JSONWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Output: &buf, Level: LevelInfo, Format: FormatJSON})

	log.Debug("hidden")
	log.With(Component("session")).Info("student selected",
		StudentID("s-1"), PoolSize(3), Err(nil), Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "student selected", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "s-1", entry["student_id"])
	assert.Equal(t, float64(3), entry["pool_size"])
	assert.Equal(t, "boom", entry["error"])
}

func TestFromContext(t *testing.T) {
	nop := Nop()
	assert.Same(t, nop, FromContext(WithContext(context.Background(), nop)))
	assert.NotNil(t, FromContext(context.Background()))
}
