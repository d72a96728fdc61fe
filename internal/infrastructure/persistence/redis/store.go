package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT STORE
// The classroom document lives in one hash: one field per persistence key
// plus a version field. Save uses WATCH/MULTI so a write either lands with
// every key or not at all.
// ══════════════════════════════════════════════════════════════════════════════

const versionField = "__version"

// DocumentStore implements classroom.Store on a Redis hash.
type DocumentStore struct {
	client redis.UniversalClient
	key    string
}

// NewDocumentStore creates a store keeping the document at prefix+"classroom".
func NewDocumentStore(client redis.UniversalClient, prefix string) *DocumentStore {
	return &DocumentStore{client: client, key: prefix + "classroom"}
}

// Load reads the requested fields (all when keys is empty).
func (s *DocumentStore) Load(ctx context.Context, keys ...classroom.Key) (classroom.Snapshot, error) {
	if len(keys) == 0 {
		keys = classroom.AllKeys
	}

	fields := make([]string, 0, len(keys)+1)
	fields = append(fields, versionField)
	for _, k := range keys {
		fields = append(fields, string(k))
	}

	vals, err := s.client.HMGet(ctx, s.key, fields...).Result()
	if err != nil {
		return classroom.Snapshot{}, fmt.Errorf("hmget %s: %w", s.key, err)
	}

	snap := classroom.Snapshot{Values: make(map[classroom.Key][]byte, len(keys))}
	if v, ok := vals[0].(string); ok {
		snap.Version, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return classroom.Snapshot{}, fmt.Errorf("parse version %q: %w", v, err)
		}
	}
	for i, k := range keys {
		if v, ok := vals[i+1].(string); ok {
			snap.Values[k] = []byte(v)
		}
	}
	return snap, nil
}

// Save writes every value and bumps the version, or returns
// shared.ErrStaleClassroomWrite if someone else wrote first.
func (s *DocumentStore) Save(ctx context.Context, expectedVersion int64, values map[classroom.Key][]byte) (int64, error) {
	newVersion := expectedVersion + 1

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, s.key, versionField).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != expectedVersion {
			return shared.ErrStaleClassroomWrite
		}

		args := make([]interface{}, 0, 2*len(values)+2)
		for k, v := range values {
			args = append(args, string(k), v)
		}
		args = append(args, versionField, newVersion)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, s.key, args...)
			return nil
		})
		return err
	}

	err := s.client.Watch(ctx, txf, s.key)
	switch {
	case err == nil:
		return newVersion, nil
	case errors.Is(err, redis.TxFailedErr):
		return 0, shared.ErrStaleClassroomWrite
	default:
		return 0, err
	}
}

// Ping checks if Redis is reachable.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op: the client is shared with the cache and event bus.
func (s *DocumentStore) Close() error {
	return nil
}
