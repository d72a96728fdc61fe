package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

const keyPrefix = "classroom/"

var versionKey = []byte(keyPrefix + "__version")

// Store implements classroom.Store. Every persistence key is its own
// Badger entry; Save writes them and the version in one transaction.
type Store struct {
	db *badger.DB

	stopGC chan struct{}
	gcDone chan struct{}
	once   sync.Once
}

// Open opens the database and starts background GC when configured.
func Open(cfg Config) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio >= 1 {
			ratio = 0.5
		}
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go gcLoop(db, cfg.GCInterval, ratio, cfg.Logger, s.stopGC, s.gcDone)
	}
	return s, nil
}

// OpenInMemory opens a throwaway store.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

func entryKey(k classroom.Key) []byte {
	return []byte(keyPrefix + string(k))
}

// Load reads the requested keys (all when none are given).
func (s *Store) Load(ctx context.Context, keys ...classroom.Key) (classroom.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return classroom.Snapshot{}, err
	}
	if len(keys) == 0 {
		keys = classroom.AllKeys
	}

	snap := classroom.Snapshot{Values: make(map[classroom.Key][]byte, len(keys))}
	err := s.db.View(func(txn *badger.Txn) error {
		v, err := readVersion(txn)
		if err != nil {
			return err
		}
		snap.Version = v

		for _, k := range keys {
			item, err := txn.Get(entryKey(k))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", k, err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", k, err)
			}
			snap.Values[k] = val
		}
		return nil
	})
	if err != nil {
		return classroom.Snapshot{}, err
	}
	return snap, nil
}

// Save writes all values atomically if the stored version still equals expectedVersion.
func (s *Store) Save(ctx context.Context, expectedVersion int64, values map[classroom.Key][]byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	newVersion := expectedVersion + 1
	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readVersion(txn)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return shared.ErrStaleClassroomWrite
		}

		for k, v := range values {
			if err := txn.Set(entryKey(k), v); err != nil {
				return fmt.Errorf("set %s: %w", k, err)
			}
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(newVersion))
		return txn.Set(versionKey, buf)
	})
	switch {
	case err == nil:
		return newVersion, nil
	case errors.Is(err, badger.ErrConflict):
		return 0, shared.ErrStaleClassroomWrite
	default:
		return 0, err
	}
}

func readVersion(txn *badger.Txn) (int64, error) {
	item, err := txn.Get(versionKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}

	var v int64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt version entry (%d bytes)", len(val))
		}
		v = int64(binary.BigEndian.Uint64(val))
		return nil
	})
	return v, err
}

// Ping reports whether the database is open.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return errors.New("badger: database is closed")
	}
	return nil
}

// Close stops GC and closes the database. Safe to call twice.
func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		if s.stopGC != nil {
			close(s.stopGC)
			<-s.gcDone
		}
		err = s.db.Close()
	})
	return err
}
