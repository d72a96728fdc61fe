package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOCUMENT STORE
// ══════════════════════════════════════════════════════════════════════════════

// DocumentStore implements classroom.Store on the classroom_state and
// classroom_version tables.
type DocumentStore struct {
	conn        *Connection
	classroomID string
}

// NewDocumentStore creates a store for the given classroom.
func NewDocumentStore(conn *Connection, classroomID string) *DocumentStore {
	if classroomID == "" {
		classroomID = shared.DefaultClassroomID
	}
	return &DocumentStore{conn: conn, classroomID: classroomID}
}

// Load reads the requested keys and the version in one read-only transaction.
func (s *DocumentStore) Load(ctx context.Context, keys ...classroom.Key) (classroom.Snapshot, error) {
	if len(keys) == 0 {
		keys = classroom.AllKeys
	}
	names := classroom.KeyStrings(keys)

	snap := classroom.Snapshot{Values: make(map[classroom.Key][]byte, len(keys))}
	err := s.conn.WithTx(ctx, ReadOnly, func(tx pgx.Tx) error {
		version, err := s.version(ctx, tx, false)
		if err != nil {
			return err
		}
		snap.Version = version

		rows, err := tx.Query(ctx,
			`SELECT key, value FROM classroom_state WHERE classroom_id = $1 AND key = ANY($2)`,
			s.classroomID, names,
		)
		if err != nil {
			return fmt.Errorf("query classroom_state: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var key string
			var value []byte
			if err := rows.Scan(&key, &value); err != nil {
				return fmt.Errorf("scan classroom_state: %w", err)
			}
			snap.Values[classroom.Key(key)] = value
		}
		return rows.Err()
	})
	if err != nil {
		return classroom.Snapshot{}, err
	}
	return snap, nil
}

// Save upserts every value and bumps the version inside one transaction.
// The version row is locked first, so concurrent writers serialize on it.
func (s *DocumentStore) Save(ctx context.Context, expectedVersion int64, values map[classroom.Key][]byte) (int64, error) {
	newVersion := expectedVersion + 1

	err := s.conn.WithTx(ctx, ReadWrite, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO classroom_version (classroom_id, version) VALUES ($1, 0) ON CONFLICT (classroom_id) DO NOTHING`,
			s.classroomID,
		); err != nil {
			return fmt.Errorf("ensure version row: %w", err)
		}

		current, err := s.version(ctx, tx, true)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return shared.ErrStaleClassroomWrite
		}

		batch := &pgx.Batch{}
		for k, v := range values {
			batch.Queue(
				`INSERT INTO classroom_state (classroom_id, key, value, updated_at)
				 VALUES ($1, $2, $3, NOW())
				 ON CONFLICT (classroom_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
				s.classroomID, string(k), v,
			)
		}
		batch.Queue(
			`UPDATE classroom_version SET version = $2, updated_at = NOW() WHERE classroom_id = $1`,
			s.classroomID, newVersion,
		)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write classroom_state: %w", err)
		}
		return nil
	})
	switch {
	case err == nil:
		return newVersion, nil
	case errors.Is(err, shared.ErrStaleClassroomWrite), IsSerializationFailure(err):
		return 0, shared.ErrStaleClassroomWrite
	default:
		return 0, err
	}
}

func (s *DocumentStore) version(ctx context.Context, tx pgx.Tx, lock bool) (int64, error) {
	q := `SELECT version FROM classroom_version WHERE classroom_id = $1`
	if lock {
		q += ` FOR UPDATE`
	}

	var v int64
	err := tx.QueryRow(ctx, q, s.classroomID).Scan(&v)
	if IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read classroom_version: %w", err)
	}
	return v, nil
}

// Ping checks the connection.
func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the pool.
func (s *DocumentStore) Close() error {
	s.conn.Close()
	return nil
}
