package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"
	assert.Equal(t,
		"host=localhost port=5432 dbname=tracker user=tracker password=secret sslmode=disable connect_timeout=10",
		cfg.DSN(),
	)

	cfg.URL = "postgres://tracker@db/tracker"
	assert.Equal(t, cfg.URL, cfg.DSN())
}

func TestGetMigrations_Ordered(t *testing.T) {
	migs := GetMigrations()
	require.NotEmpty(t, migs)
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.UpSQL)
		assert.NotEmpty(t, m.DownSQL)
	}
}

// integrationStore connects to TRACKER_TEST_POSTGRES_URL or skips.
func integrationStore(t *testing.T) (*DocumentStore, *Connection) {
	t.Helper()
	url := os.Getenv("TRACKER_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TRACKER_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	conn, err := Open(ctx, Config{URL: url})
	require.NoError(t, err)
	require.NoError(t, NewMigrator(conn).Migrate(ctx))

	id := "test-" + t.Name()
	t.Cleanup(func() {
		_, _ = conn.Exec(ctx, `DELETE FROM classroom_state WHERE classroom_id = $1`, id)
		_, _ = conn.Exec(ctx, `DELETE FROM classroom_version WHERE classroom_id = $1`, id)
		_, _ = conn.Exec(ctx, `DELETE FROM classroom_events WHERE classroom_id = $1`, id)
		conn.Close()
	})
	return NewDocumentStore(conn, id), conn
}

func TestDocumentStore_Integration(t *testing.T) {
	store, _ := integrationStore(t)
	ctx := context.Background()

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Version)

	v, err := store.Save(ctx, 0, map[classroom.Key][]byte{
		classroom.KeyCallsToday:  []byte(`2`),
		classroom.KeyLastSubject:  []byte(`"Math"`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = store.Save(ctx, 0, map[classroom.Key][]byte{classroom.KeyCallsToday: []byte(`9`)})
	assert.ErrorIs(t, err, shared.ErrStaleClassroomWrite)

	snap, err = store.Load(ctx, classroom.KeyCallsToday)
	require.NoError(t, err)
	assert.JSONEq(t, `2`, string(snap.Values[classroom.KeyCallsToday]))
}

func TestEventLog_Integration(t *testing.T) {
	store, conn := integrationStore(t)
	ctx := context.Background()

	log := NewEventLog(conn, store.classroomID)
	e := shared.NewOutcomeRecordedEvent("a", "correct", "Math", 1, 1.0)
	e.BaseEvent = e.BaseEvent.WithCorrelationID("req-7")
	require.NoError(t, log.Append(ctx, e))

	events, err := log.Recent(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(shared.EventOutcomeRecorded), events[0].Type)
	assert.Equal(t, "req-7", events[0].CorrelationID)
	assert.Equal(t, "correct", events[0].Payload["outcome"])
}
