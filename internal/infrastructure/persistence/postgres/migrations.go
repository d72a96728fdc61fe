package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CLASSROOM DOCUMENT
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per persistence key of a classroom document.
CREATE TABLE IF NOT EXISTS classroom_state (
    classroom_id VARCHAR(64) NOT NULL,
    key VARCHAR(32) NOT NULL,
    value JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (classroom_id, key)
);

-- Optimistic concurrency: every successful save bumps the version.
CREATE TABLE IF NOT EXISTS classroom_version (
    classroom_id VARCHAR(64) PRIMARY KEY,
    version BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_version CHECK (version >= 0)
);
`

const migration001Down = `
DROP TABLE IF EXISTS classroom_version;
DROP TABLE IF EXISTS classroom_state;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: EVENT LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Append-only audit trail of domain events.
CREATE TABLE IF NOT EXISTS classroom_events (
    id BIGSERIAL PRIMARY KEY,
    classroom_id VARCHAR(64) NOT NULL,
    event_type VARCHAR(64) NOT NULL,
    aggregate_id VARCHAR(64) NOT NULL,
    correlation_id VARCHAR(64),
    payload JSONB NOT NULL DEFAULT '{}'::jsonb,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_classroom_events_occurred_at ON classroom_events(classroom_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_classroom_events_aggregate ON classroom_events(aggregate_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_classroom_events_type ON classroom_events(event_type);
`

const migration002Down = `
DROP TABLE IF EXISTS classroom_events;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one schema step. AppliedAt and IsApplied are filled by Status.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// migrationLockKey serializes migrators across processes: the worker and a
// "tracker db migrate" may start at the same time.
const migrationLockKey = 0x7472616b // "trak"

const migrationTable = `
CREATE TABLE IF NOT EXISTS tracker_schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
)`

// Migrator applies the embedded migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator over GetMigrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: GetMigrations()}
}

// Migrate applies every pending migration, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	for _, mig := range m.migrations {
		err := m.locked(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
			if _, ok := applied[mig.Version]; ok {
				return nil
			}
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO tracker_schema_migrations (version, name) VALUES ($1, $2)`, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
	}
	return nil
}

// Rollback reverts the newest applied migration. Nothing applied is not an error.
func (m *Migrator) Rollback(ctx context.Context) error {
	return m.locked(ctx, func(tx pgx.Tx, applied map[int]time.Time) error {
		for i := len(m.migrations) - 1; i >= 0; i-- {
			mig := m.migrations[i]
			if _, ok := applied[mig.Version]; !ok {
				continue
			}
			if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
				return fmt.Errorf("postgres: rollback %03d_%s: %w", mig.Version, mig.Name, err)
			}
			_, err := tx.Exec(ctx, `DELETE FROM tracker_schema_migrations WHERE version = $1`, mig.Version)
			return err
		}
		return nil
	})
}

// Status lists every known migration with its applied time.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	var out []Migration
	err := m.locked(ctx, func(_ pgx.Tx, applied map[int]time.Time) error {
		out = make([]Migration, len(m.migrations))
		copy(out, m.migrations)
		for i := range out {
			if at, ok := applied[out[i].Version]; ok {
				out[i].IsApplied = true
				out[i].AppliedAt = at
			}
		}
		return nil
	})
	return out, err
}

// locked runs fn in a transaction holding the migration advisory lock,
// with the bookkeeping table created and read.
func (m *Migrator) locked(ctx context.Context, fn func(tx pgx.Tx, applied map[int]time.Time) error) error {
	return m.conn.WithTx(ctx, ReadWrite, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, migrationTable); err != nil {
			return fmt.Errorf("create migration table: %w", err)
		}

		rows, err := tx.Query(ctx, `SELECT version, applied_at FROM tracker_schema_migrations`)
		if err != nil {
			return err
		}
		applied, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (appliedRow, error) {
			var r appliedRow
			err := row.Scan(&r.version, &r.at)
			return r, err
		})
		if err != nil {
			return fmt.Errorf("read applied migrations: %w", err)
		}

		byVersion := make(map[int]time.Time, len(applied))
		for _, r := range applied {
			byVersion[r.version] = r.at
		}
		return fn(tx, byVersion)
	})
}

type appliedRow struct {
	version int
	at      time.Time
}

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_classroom_state",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_classroom_events",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
