// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every persisted mutation produces at least one of these,
// followed by EventStateChanged listing the store keys that were written.
const (
	// Session events
	EventStudentSelected    EventType = "session.student_selected"
	EventPoolRefilled       EventType = "session.pool_refilled"
	EventOutcomeRecorded    EventType = "session.outcome_recorded"
	EventAbsenceRecorded    EventType = "session.absence_recorded"
	EventAbsenceCleared     EventType = "session.absence_cleared"
	EventGradeFilterToggled EventType = "session.grade_filter_toggled"
	EventDailyReset         EventType = "reset.daily"
	EventSubjectReset       EventType = "reset.subject"
	EventParticipationWiped EventType = "reset.participation"
	EventConnectionRecorded EventType = "connection.recorded"
	EventRosterImported     EventType = "roster.imported"
	EventStudentAdded       EventType = "roster.student_added"
	EventStudentDeleted     EventType = "roster.student_deleted"
	EventRosterCleared      EventType = "roster.cleared"
	EventGoalSet            EventType = "student.goal_set"
	EventGoalCompleted      EventType = "student.goal_completed"
	EventInterestsUpdated   EventType = "student.interests_updated"
	EventScheduleUpdated    EventType = "schedule.updated"
	EventMetadataUpdated    EventType = "classroom.metadata_updated"
	EventClassroomImported  EventType = "classroom.imported"
	EventClassroomCleared   EventType = "classroom.cleared"
	EventStateChanged       EventType = "classroom.changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// Correlation returns the correlation ID, empty when none was set.
func (e BaseEvent) Correlation() string {
	return e.CorrelationID
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// StudentSelectedEvent is emitted when a student is put on the spot.
type StudentSelectedEvent struct {
	BaseEvent
	Name          string  `json:"name"`
	Subject       string  `json:"subject,omitempty"`
	Weight        float64 `json:"weight"`
	PoolRemaining int     `json:"pool_remaining"`
	Strategy      string  `json:"strategy"`
}

// Payload implements Event interface.
func (e StudentSelectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"name":           e.Name,
		"subject":        e.Subject,
		"weight":         e.Weight,
		"pool_remaining": e.PoolRemaining,
		"strategy":       e.Strategy,
	}
}

// NewStudentSelectedEvent creates a new StudentSelectedEvent.
func NewStudentSelectedEvent(studentID, name, subject string, weight float64, poolRemaining int, strategy string) StudentSelectedEvent {
	return StudentSelectedEvent{
		BaseEvent:     NewBaseEvent(EventStudentSelected, studentID),
		Name:          name,
		Subject:       subject,
		Weight:        weight,
		PoolRemaining: poolRemaining,
		Strategy:      strategy,
	}
}

// PoolRefilledEvent is emitted when an empty session pool is refilled with every eligible student.
type PoolRefilledEvent struct {
	BaseEvent
	Size        int    `json:"size"`
	GradeFilter string `json:"grade_filter"`
}

// Payload implements Event interface.
func (e PoolRefilledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"size":         e.Size,
		"grade_filter": e.GradeFilter,
	}
}

// NewPoolRefilledEvent creates a new PoolRefilledEvent.
func NewPoolRefilledEvent(classroomID string, size int, gradeFilter string) PoolRefilledEvent {
	return PoolRefilledEvent{
		BaseEvent:   NewBaseEvent(EventPoolRefilled, classroomID),
		Size:        size,
		GradeFilter: gradeFilter,
	}
}

// OutcomeRecordedEvent is emitted when a called student's answer is resolved.
type OutcomeRecordedEvent struct {
	BaseEvent
	Outcome    string  `json:"outcome"`
	Subject    string  `json:"subject,omitempty"`
	TotalCalls int     `json:"total_calls"`
	Weight     float64 `json:"weight"`
}

// Payload implements Event interface.
func (e OutcomeRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"outcome":     e.Outcome,
		"subject":     e.Subject,
		"total_calls": e.TotalCalls,
		"weight":      e.Weight,
	}
}

// NewOutcomeRecordedEvent creates a new OutcomeRecordedEvent.
func NewOutcomeRecordedEvent(studentID, outcome, subject string, totalCalls int, weight float64) OutcomeRecordedEvent {
	return OutcomeRecordedEvent{
		BaseEvent:  NewBaseEvent(EventOutcomeRecorded, studentID),
		Outcome:    outcome,
		Subject:    subject,
		TotalCalls: totalCalls,
		Weight:     weight,
	}
}

// AbsenceEvent is emitted when a student is marked absent or the mark is cleared.
type AbsenceEvent struct {
	BaseEvent
	Date    string `json:"date"`
	Subject string `json:"subject,omitempty"`
}

// Payload implements Event interface.
func (e AbsenceEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"date":    e.Date,
		"subject": e.Subject,
	}
}

// NewAbsenceRecordedEvent creates an absence event.
func NewAbsenceRecordedEvent(studentID, date, subject string) AbsenceEvent {
	return AbsenceEvent{
		BaseEvent: NewBaseEvent(EventAbsenceRecorded, studentID),
		Date:      date,
		Subject:   subject,
	}
}

// NewAbsenceClearedEvent creates an absence-cleared event.
func NewAbsenceClearedEvent(studentID, date string) AbsenceEvent {
	return AbsenceEvent{
		BaseEvent: NewBaseEvent(EventAbsenceCleared, studentID),
		Date:      date,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reset Events
// ═══════════════════════════════════════════════════════════════════════════

// ResetEvent is emitted by the daily, subject-change and full participation resets.
type ResetEvent struct {
	BaseEvent
	Date            string `json:"date,omitempty"`
	PreviousSubject string `json:"previous_subject,omitempty"`
	Subject         string `json:"subject,omitempty"`
	StudentsReset   int    `json:"students_reset"`
}

// Payload implements Event interface.
func (e ResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"date":             e.Date,
		"previous_subject": e.PreviousSubject,
		"subject":          e.Subject,
		"students_reset":   e.StudentsReset,
	}
}

// NewDailyResetEvent creates a daily reset event.
func NewDailyResetEvent(classroomID, date string, studentsReset int) ResetEvent {
	return ResetEvent{
		BaseEvent:     NewBaseEvent(EventDailyReset, classroomID),
		Date:          date,
		StudentsReset: studentsReset,
	}
}

// NewSubjectResetEvent creates a subject-change reset event.
func NewSubjectResetEvent(classroomID, previous, subject string, studentsReset int) ResetEvent {
	return ResetEvent{
		BaseEvent:       NewBaseEvent(EventSubjectReset, classroomID),
		PreviousSubject: previous,
		Subject:         subject,
		StudentsReset:   studentsReset,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Connection Events
// ═══════════════════════════════════════════════════════════════════════════

// ConnectionRecordedEvent is emitted when an MGC note is saved.
type ConnectionRecordedEvent struct {
	BaseEvent
	Date      string `json:"date"`
	Subject   string `json:"subject,omitempty"`
	Edited    bool   `json:"edited"`
	TotalMGCs int    `json:"total_mgcs"`
}

// Payload implements Event interface.
func (e ConnectionRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"date":       e.Date,
		"subject":    e.Subject,
		"edited":     e.Edited,
		"total_mgcs": e.TotalMGCs,
	}
}

// NewConnectionRecordedEvent creates a new ConnectionRecordedEvent.
func NewConnectionRecordedEvent(studentID, date, subject string, edited bool, total int) ConnectionRecordedEvent {
	return ConnectionRecordedEvent{
		BaseEvent: NewBaseEvent(EventConnectionRecorded, studentID),
		Date:      date,
		Subject:   subject,
		Edited:    edited,
		TotalMGCs: total,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Generic Classroom Events
// ═══════════════════════════════════════════════════════════════════════════

// ClassroomEvent carries edits that need no dedicated type (roster, goals,
// interests, schedule, metadata).
type ClassroomEvent struct {
	BaseEvent
	Data map[string]interface{} `json:"data,omitempty"`
}

// Payload implements Event interface.
func (e ClassroomEvent) Payload() map[string]interface{} {
	if e.Data == nil {
		return map[string]interface{}{}
	}
	return e.Data
}

// NewClassroomEvent creates a generic classroom event.
func NewClassroomEvent(eventType EventType, aggregateID string, data map[string]interface{}) ClassroomEvent {
	return ClassroomEvent{
		BaseEvent: NewBaseEvent(eventType, aggregateID),
		Data:      data,
	}
}

// StateChangedEvent lists the persistence keys written by one atomic save.
// Observers re-read those keys; receiving it twice must be harmless.
type StateChangedEvent struct {
	BaseEvent
	Keys           []string `json:"keys"`
	StoreVersion   int64    `json:"store_version"`
	CausedByEvents int      `json:"caused_by_events"`
}

// Payload implements Event interface.
func (e StateChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"keys":             e.Keys,
		"store_version":    e.StoreVersion,
		"caused_by_events": e.CausedByEvents,
	}
}

// NewStateChangedEvent creates a new StateChangedEvent.
func NewStateChangedEvent(classroomID string, keys []string, version int64, caused int) StateChangedEvent {
	return StateChangedEvent{
		BaseEvent:      NewBaseEvent(EventStateChanged, classroomID),
		Keys:           keys,
		StoreVersion:   version,
		CausedByEvents: caused,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Source        string          `json:"source,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
