package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT LOG
// ══════════════════════════════════════════════════════════════════════════════

// EventLog appends domain events to classroom_events. It is subscribed to
// the event bus by the worker; redelivery adds a duplicate row, which the
// history endpoint tolerates.
type EventLog struct {
	conn        *Connection
	classroomID string
	timeout     time.Duration
}

// NewEventLog creates an event log for the given classroom.
func NewEventLog(conn *Connection, classroomID string) *EventLog {
	if classroomID == "" {
		classroomID = shared.DefaultClassroomID
	}
	return &EventLog{conn: conn, classroomID: classroomID, timeout: 5 * time.Second}
}

// Handle implements shared.EventHandler.
func (l *EventLog) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	return l.Append(ctx, event)
}

// Append writes one event.
func (l *EventLog) Append(ctx context.Context, event shared.Event) error {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	_, err = l.conn.Exec(ctx,
		`INSERT INTO classroom_events (classroom_id, event_type, aggregate_id, correlation_id, payload, occurred_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		l.classroomID, string(event.EventType()), event.AggregateID(), correlationID(event), payload, event.OccurredAt(),
	)
	if err != nil {
		return fmt.Errorf("insert classroom_events: %w", err)
	}
	return nil
}

// LoggedEvent is one row of the event log.
type LoggedEvent struct {
	ID            int64                  `json:"id"`
	Type          string                 `json:"type"`
	AggregateID   string                 `json:"aggregate_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// Recent returns the newest events, optionally for one aggregate.
func (l *EventLog) Recent(ctx context.Context, aggregateID string, limit int) ([]LoggedEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	rows, err := l.conn.Query(ctx,
		`SELECT id, event_type, aggregate_id, COALESCE(correlation_id, ''), payload, occurred_at
		 FROM classroom_events
		 WHERE classroom_id = $1 AND ($2 = '' OR aggregate_id = $2)
		 ORDER BY occurred_at DESC, id DESC
		 LIMIT $3`,
		l.classroomID, aggregateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query classroom_events: %w", err)
	}
	defer rows.Close()

	var out []LoggedEvent
	for rows.Next() {
		var e LoggedEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.AggregateID, &e.CorrelationID, &payload, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan classroom_events: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func correlationID(event shared.Event) string {
	type correlated interface{ Correlation() string }
	if c, ok := event.(correlated); ok {
		return c.Correlation()
	}
	return ""
}
