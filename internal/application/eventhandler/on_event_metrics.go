// Package eventhandler содержит обработчики доменных событий.
// Все обработчики идемпотентны: уведомления доставляются как минимум один раз.
package eventhandler

import (
	"strings"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// METRICS HANDLER
// Переводит доменные события в счётчики. Повторная доставка события
// даёт лишний инкремент, но не ломает состояние.
// ═══════════════════════════════════════════════════════════════════════════

// MetricsRecorder - то, что умеет записывать метрики (infrastructure/metrics.Recorder).
type MetricsRecorder interface {
	StudentSelected(strategy string)
	PoolRefilled()
	OutcomeRecorded(outcome string)
	AbsenceRecorded()
	ResetPerformed(scope string)
	ConnectionRecorded(edited bool)
	EventObserved(eventType string)
}

// MetricsHandler считает события.
type MetricsHandler struct {
	recorder MetricsRecorder
}

// NewMetricsHandler создаёт обработчик.
func NewMetricsHandler(recorder MetricsRecorder) *MetricsHandler {
	return &MetricsHandler{recorder: recorder}
}

// Handle обрабатывает любое событие.
func (h *MetricsHandler) Handle(event shared.Event) error {
	h.recorder.EventObserved(string(event.EventType()))

	switch e := event.(type) {
	case shared.StudentSelectedEvent:
		h.recorder.StudentSelected(e.Strategy)
	case shared.PoolRefilledEvent:
		h.recorder.PoolRefilled()
	case shared.OutcomeRecordedEvent:
		h.recorder.OutcomeRecorded(e.Outcome)
	case shared.AbsenceEvent:
		if e.EventType() == shared.EventAbsenceRecorded {
			h.recorder.AbsenceRecorded()
		}
	case shared.ResetEvent:
		h.recorder.ResetPerformed(strings.TrimPrefix(string(e.EventType()), "reset."))
	case shared.ConnectionRecordedEvent:
		h.recorder.ConnectionRecorded(e.Edited)
	default:
		if event.EventType() == shared.EventParticipationWiped {
			h.recorder.ResetPerformed("participation")
		}
	}
	return nil
}
