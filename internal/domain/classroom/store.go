package classroom

import "context"

// ══════════════════════════════════════════════════════════════════════════════
// STORE PORT
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot - значения ключей и версия хранилища на момент чтения.
type Snapshot struct {
	Values  map[Key][]byte
	Version int64
}

// Store - долговременное хранилище документа класса.
type Store interface {
	// Load читает указанные ключи (все, если список пуст).
	// Отсутствующие ключи просто не попадают в Values.
	Load(ctx context.Context, keys ...Key) (Snapshot, error)

	// Save атомарно записывает все значения сразу или ничего.
	// Если версия хранилища не равна expectedVersion, возвращает
	// shared.ErrStaleClassroomWrite. Возвращает новую версию.
	Save(ctx context.Context, expectedVersion int64, values map[Key][]byte) (int64, error)

	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error

	// Close освобождает ресурсы.
	Close() error
}

// LoadClassroom читает и декодирует весь документ.
func LoadClassroom(ctx context.Context, store Store) (*Classroom, error) {
	snap, err := store.Load(ctx, AllKeys...)
	if err != nil {
		return nil, err
	}
	return Decode(snap)
}
