package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STATE CHANGED HANDLER
// Реагирует на атомарную запись в хранилище: сбрасывает кэш сводки
// и запоминает последнюю увиденную версию состояния.
// Повторная доставка того же события ничего не меняет.
// ═══════════════════════════════════════════════════════════════════════════

// SummaryInvalidator сбрасывает закэшированную сводку (query.GetSummaryHandler).
type SummaryInvalidator interface {
	Invalidate(ctx context.Context) error
}

// StateChangedConfig содержит конфигурацию обработчика.
type StateChangedConfig struct {
	// InvalidateTimeout - сколько ждать кэш при сбросе.
	InvalidateTimeout time.Duration
}

// DefaultStateChangedConfig возвращает конфигурацию по умолчанию.
func DefaultStateChangedConfig() StateChangedConfig {
	return StateChangedConfig{InvalidateTimeout: 2 * time.Second}
}

// OnStateChangedHandler обрабатывает classroom.changed.
type OnStateChangedHandler struct {
	summary SummaryInvalidator
	logger  *slog.Logger
	config  StateChangedConfig

	mu          sync.Mutex
	lastVersion int64
	lastKeys    []string
}

// NewOnStateChangedHandler создаёт обработчик. summary может быть nil.
func NewOnStateChangedHandler(summary SummaryInvalidator, logger *slog.Logger, config StateChangedConfig) *OnStateChangedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.InvalidateTimeout <= 0 {
		config.InvalidateTimeout = DefaultStateChangedConfig().InvalidateTimeout
	}
	return &OnStateChangedHandler{
		summary: summary,
		logger:  logger.With("handler", "on_state_changed"),
		config:  config,
	}
}

// Handle обрабатывает событие.
func (h *OnStateChangedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.StateChangedEvent)
	if !ok {
		return fmt.Errorf("on_state_changed: unexpected event type %T", event)
	}

	h.mu.Lock()
	// Версия уже обработана: повторный сброс кэша не нужен.
	duplicate := e.StoreVersion != 0 && e.StoreVersion <= h.lastVersion
	if !duplicate {
		h.lastVersion = e.StoreVersion
		h.lastKeys = append([]string(nil), e.Keys...)
	}
	h.mu.Unlock()

	if duplicate {
		h.logger.Debug("state change already seen",
			"version", e.StoreVersion,
		)
		return nil
	}

	if h.summary != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.InvalidateTimeout)
		defer cancel()
		if err := h.summary.Invalidate(ctx); err != nil {
			// Кэш живёт минуту, сводка всё равно обновится.
			h.logger.Warn("failed to invalidate summary cache",
				"version", e.StoreVersion,
				"error", err,
			)
		}
	}

	h.logger.Debug("state changed",
		"version", e.StoreVersion,
		"keys", e.Keys,
		"caused_by_events", e.CausedByEvents,
	)
	return nil
}

// LastSeen возвращает последнюю обработанную версию и её ключи.
func (h *OnStateChangedHandler) LastSeen() (int64, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastVersion, append([]string(nil), h.lastKeys...)
}

// ═══════════════════════════════════════════════════════════════════════════
// REGISTRATION
// ═══════════════════════════════════════════════════════════════════════════

// Register подписывает обработчики на шину. Любой из них может быть nil.
func Register(bus shared.EventSubscriber, metrics *MetricsHandler, state *OnStateChangedHandler) error {
	if metrics != nil {
		if err := bus.SubscribeAll(metrics.Handle); err != nil {
			return fmt.Errorf("subscribe metrics handler: %w", err)
		}
	}
	if state != nil {
		if err := bus.Subscribe(shared.EventStateChanged, state.Handle); err != nil {
			return fmt.Errorf("subscribe state handler: %w", err)
		}
	}
	return nil
}
