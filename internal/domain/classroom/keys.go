package classroom

import (
	"encoding/json"
	"fmt"

	"github.com/classroom-hub/participation-tracker/internal/domain/schedule"
	"github.com/classroom-hub/participation-tracker/internal/domain/session"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE KEYS
// Состояние хранится плоским набором независимо адресуемых ключей
// одного документа. Любое подмножество можно прочитать или записать.
// ══════════════════════════════════════════════════════════════════════════════

// Key - имя поля документа в хранилище.
type Key string

const (
	KeyStudents       Key = "students"
	KeySchedules      Key = "schedules"
	KeyMetadata       Key = "metadata"
	KeyAbsentToday    Key = "absentToday"
	KeyGradeFilter    Key = "gradeFilter"
	KeySessionPool    Key = "sessionPool"
	KeyCurrentStudent Key = "currentStudent"
	KeyCallsToday     Key = "callsToday"
	KeyLastResetDate  Key = "lastResetDate"
	KeyLastSubject    Key = "lastSubject"
)

// AllKeys - все ключи документа.
var AllKeys = []Key{
	KeyStudents, KeySchedules, KeyMetadata,
	KeyAbsentToday, KeyGradeFilter, KeySessionPool,
	KeyCurrentStudent, KeyCallsToday, KeyLastResetDate, KeyLastSubject,
}

// SessionKeys - ключи эфемерного состояния урока.
var SessionKeys = []Key{
	KeyAbsentToday, KeyGradeFilter, KeySessionPool,
	KeyCurrentStudent, KeyCallsToday, KeyLastResetDate, KeyLastSubject,
}

// IsValid проверяет, что ключ известен.
func (k Key) IsValid() bool {
	for _, v := range AllKeys {
		if v == k {
			return true
		}
	}
	return false
}

// KeyStrings переводит ключи в строки (для событий и логов).
func KeyStrings(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// CODEC
// ══════════════════════════════════════════════════════════════════════════════

// Encode сериализует выбранные ключи в JSON.
func (c *Classroom) Encode(keys ...Key) (map[Key][]byte, error) {
	out := make(map[Key][]byte, len(keys))
	for _, k := range keys {
		v, err := c.fieldValue(k)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out[k] = data
	}
	return out, nil
}

func (c *Classroom) fieldValue(k Key) (any, error) {
	switch k {
	case KeyStudents:
		return c.Registry.All(), nil
	case KeySchedules:
		return c.Schedule, nil
	case KeyMetadata:
		return c.Metadata, nil
	case KeyAbsentToday:
		return c.Session.AbsentToday, nil
	case KeyGradeFilter:
		return c.Session.GradeFilter, nil
	case KeySessionPool:
		return c.Session.Pool, nil
	case KeyCurrentStudent:
		if c.Session.CurrentStudent == "" {
			return nil, nil
		}
		return c.Session.CurrentStudent, nil
	case KeyCallsToday:
		return c.Session.CallsToday, nil
	case KeyLastResetDate:
		if c.Session.LastResetDate.IsZero() {
			return nil, nil
		}
		return c.Session.LastResetDate, nil
	case KeyLastSubject:
		if c.Session.LastSubject == "" {
			return nil, nil
		}
		return c.Session.LastSubject, nil
	default:
		return nil, shared.NewDomainError("classroom", "Encode", shared.ErrInvalidInput, "unknown key "+string(k))
	}
}

// Decode собирает класс из снимка хранилища. Отсутствующие ключи
// получают значения по умолчанию.
func Decode(snap Snapshot) (*Classroom, error) {
	c := New()
	c.Version = snap.Version

	for k, data := range snap.Values {
		if len(data) == 0 || string(data) == "null" {
			continue
		}
		if err := c.decodeKey(k, data); err != nil {
			return nil, shared.WrapError("classroom", "Decode", shared.ErrInvalidFormat, "corrupt value for "+string(k), err)
		}
	}

	c.Normalize()
	return c, nil
}

func (c *Classroom) decodeKey(k Key, data []byte) error {
	switch k {
	case KeyStudents:
		var students []*student.Student
		if err := json.Unmarshal(data, &students); err != nil {
			return err
		}
		c.Registry = student.NewRegistry(students)
	case KeySchedules:
		table := schedule.NewTable()
		if err := json.Unmarshal(data, &table); err != nil {
			return err
		}
		c.Schedule = table
	case KeyMetadata:
		return json.Unmarshal(data, &c.Metadata)
	case KeyAbsentToday:
		return json.Unmarshal(data, &c.Session.AbsentToday)
	case KeyGradeFilter:
		var f session.GradeFilter
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		c.Session.GradeFilter = f
	case KeySessionPool:
		return json.Unmarshal(data, &c.Session.Pool)
	case KeyCurrentStudent:
		return json.Unmarshal(data, &c.Session.CurrentStudent)
	case KeyCallsToday:
		return json.Unmarshal(data, &c.Session.CallsToday)
	case KeyLastResetDate:
		return json.Unmarshal(data, &c.Session.LastResetDate)
	case KeyLastSubject:
		return json.Unmarshal(data, &c.Session.LastSubject)
	}
	// Неизвестные ключи игнорируются: их мог записать более новый клиент.
	return nil
}
