// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"errors"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ВИДЫ ОШИБОК
// Сравниваются через errors.Is. Конкретные ошибки ниже несут один из видов.
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("empty value")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	ErrInvalidState           = errors.New("invalid state")
	ErrConcurrentModification = errors.New("concurrent modification")

	// Ядро класса: выбор и оценка.
	ErrNoEligibleStudents = errors.New("no eligible students")
	ErrNoAvailableInPool  = errors.New("no available student in session pool")
	ErrNoCurrentStudent   = errors.New("no student is currently selected")

	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERROR
// ══════════════════════════════════════════════════════════════════════════════

// DomainError - ошибка с местом возникновения (Domain.Op), видом и текстом
// для учителя. Err - необязательная причина.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	b.WriteByte('.')
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap отдаёт причину, а если её нет - вид.
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is совпадает по виду, даже когда Unwrap ведёт к причине.
func (e *DomainError) Is(target error) bool {
	return e.Kind != nil && errors.Is(e.Kind, target)
}

// NewDomainError создаёт ошибку без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError создаёт ошибку с причиной err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ══════════════════════════════════════════════════════════════════════════════
// ОШИБКИ ПО ОБЛАСТЯМ
// ══════════════════════════════════════════════════════════════════════════════

// Ученики
var (
	ErrStudentNotFound    = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrDuplicateStudent   = NewDomainError("student", "Add", ErrAlreadyExists, "a student with this name already exists")
	ErrInvalidStudentName = NewDomainError("student", "Validate", ErrEmptyValue, "student name is required")
	ErrInvalidGrade       = NewDomainError("student", "Validate", ErrValueOutOfRange, "grade must be between 0 and 13")
	ErrNoGoal             = NewDomainError("student", "CompleteGoal", ErrInvalidState, "student has no current goal")
)

// Расписание
var (
	ErrInvalidWeekday   = NewDomainError("schedule", "Validate", ErrInvalidInput, "day must be Monday to Friday")
	ErrInvalidPeriod    = NewDomainError("schedule", "Validate", ErrInvalidInput, "period needs a subject and start before end")
	ErrPeriodNotFound   = NewDomainError("schedule", "DeletePeriod", ErrNotFound, "period not found")
	ErrInvalidClockTime = NewDomainError("schedule", "Validate", ErrInvalidFormat, "time must be HH:MM")
)

// Сессия
var (
	ErrEmptyRoster         = NewDomainError("session", "SelectNext", ErrNoEligibleStudents, "no eligible students to select")
	ErrPoolExhausted       = NewDomainError("session", "SelectNext", ErrNoAvailableInPool, "no available student in the pool, try again")
	ErrNothingPending      = NewDomainError("session", "Resolve", ErrNoCurrentStudent, "no student is waiting for an outcome")
	ErrInvalidOutcome      = NewDomainError("session", "RecordOutcome", ErrInvalidInput, "outcome must be correct or incorrect")
	ErrInvalidStrategy     = NewDomainError("session", "Select", ErrInvalidInput, "unknown selection strategy")
	ErrInvalidGradeFilter  = NewDomainError("session", "ParseFilter", ErrInvalidInput, "invalid grade filter")
	ErrUnknownCommand      = NewDomainError("session", "Dispatch", ErrInvalidInput, "unknown command")
	ErrStaleClassroomWrite = NewDomainError("classroom", "Save", ErrConcurrentModification, "classroom changed since it was loaded")
)

// StorageError оборачивает сбой хранилища в StorageUnavailable.
func StorageError(op string, err error) *DomainError {
	return WrapError("store", op, ErrStorageUnavailable, "classroom state not saved", err)
}

// ══════════════════════════════════════════════════════════════════════════════
// ПРОВЕРКИ
// ══════════════════════════════════════════════════════════════════════════════

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConcurrentModification) }

// IsValidation - запрос отклонён из-за неверных данных.
func IsValidation(err error) bool {
	for _, kind := range []error{ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange, ErrInvalidFormat} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsStorageUnavailable - хранилище не ответило или не приняло запись.
func IsStorageUnavailable(err error) bool { return errors.Is(err, ErrStorageUnavailable) }

// IsRetryable - тот же запрос имеет смысл повторить позже.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoAvailableInPool) ||
		errors.Is(err, ErrConcurrentModification) ||
		errors.Is(err, ErrStorageUnavailable)
}

// IsNoOp - запрос ничего не изменил. Показывается как подсказка, а не как сбой.
func IsNoOp(err error) bool {
	return errors.Is(err, ErrNoCurrentStudent) || errors.Is(err, ErrNoEligibleStudents)
}
