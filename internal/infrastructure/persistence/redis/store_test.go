package redis

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// integrationClient connects to TRACKER_TEST_REDIS_ADDR or skips.
func integrationClient(t *testing.T) (*redis.Client, string) {
	t.Helper()
	addr := os.Getenv("TRACKER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRACKER_TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prefix := "tracker-test:" + t.Name() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		_ = client.Close()
	})
	return client, prefix
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", DefaultConfig().Addr())
}

func TestDocumentStore_Integration(t *testing.T) {
	client, prefix := integrationClient(t)
	store := NewDocumentStore(client, prefix)
	ctx := context.Background()

	v, err := store.Save(ctx, 0, map[classroom.Key][]byte{
		classroom.KeyStudents:   []byte(`[]`),
		classroom.KeyCallsToday: []byte(`4`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = store.Save(ctx, 0, map[classroom.Key][]byte{classroom.KeyCallsToday: []byte(`5`)})
	assert.ErrorIs(t, err, shared.ErrStaleClassroomWrite)

	snap, err := store.Load(ctx, classroom.KeyCallsToday, classroom.KeyLastSubject)
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	assert.Equal(t, []byte(`4`), snap.Values[classroom.KeyCallsToday])
	assert.NotContains(t, snap.Values, classroom.KeyLastSubject)
}

func TestCache_Integration(t *testing.T) {
	client, prefix := integrationClient(t)
	cache := NewCache(client, prefix)
	ctx := context.Background()

	var out map[string]int
	assert.ErrorIs(t, cache.Get(ctx, "summary", &out), ErrCacheMiss)

	require.NoError(t, cache.Set(ctx, "summary", map[string]int{"calls": 3}, 0))
	require.NoError(t, cache.Get(ctx, "summary", &out))
	assert.Equal(t, 3, out["calls"])

	require.NoError(t, cache.Delete(ctx, "summary"))
	assert.ErrorIs(t, cache.Get(ctx, "summary", &out), ErrCacheMiss)
}

func TestCache_RejectsEmptyKeyAndNil(t *testing.T) {
	cache := NewCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	assert.ErrorIs(t, cache.Set(context.Background(), "", 1, 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, cache.Set(context.Background(), "k", nil, 0), ErrCacheNilValue)
}

func TestCache_RejectsUnencodableValue(t *testing.T) {
	cache := NewCache(redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), "")
	assert.ErrorIs(t, cache.Set(context.Background(), "k", make(chan int), 0), ErrCacheSerialization)
}
