package query

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/classroom-hub/participation-tracker/internal/domain/classroom"
	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SUMMARY QUERY
// Сводка по классу. Результат кэшируется и сбрасывается по событию
// classroom.changed.
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCacheKey - ключ сводки в кэше.
const SummaryCacheKey = "summary:classroom"

// SummaryCacheTTL - время жизни сводки, если событие об изменении потерялось.
const SummaryCacheTTL = time.Minute

// SummaryDTO - сводная статистика класса.
type SummaryDTO struct {
	TotalStudents int `json:"total_students"`
	TotalCalls    int `json:"total_calls"`
	TotalMGCs     int `json:"total_mgcs"`

	// AverageAccuracy - средняя точность по ученикам, которых вызывали (0..1).
	AverageAccuracy float64 `json:"average_accuracy"`

	CallsToday  int `json:"calls_today"`
	AbsentToday int `json:"absent_today"`

	Subjects    []SubjectSummaryDTO `json:"subjects"`
	Metadata    classroom.Metadata  `json:"metadata"`
	Version     int64               `json:"version"`
	GeneratedAt time.Time           `json:"generated_at"`
}

// SubjectSummaryDTO - итог по одному предмету.
type SubjectSummaryDTO struct {
	Subject   string  `json:"subject"`
	Correct   int     `json:"correct"`
	Incorrect int     `json:"incorrect"`
	Accuracy  float64 `json:"accuracy"`
}

// GetSummaryHandler обрабатывает запрос сводки.
type GetSummaryHandler struct {
	source Source
	cache  Cache
	clock  Clock
}

// NewGetSummaryHandler создаёт обработчик. cache может быть nil.
func NewGetSummaryHandler(source Source, cache Cache, clock Clock) *GetSummaryHandler {
	return &GetSummaryHandler{source: source, cache: cache, clock: defaultClock(clock)}
}

// Handle возвращает сводку.
func (h *GetSummaryHandler) Handle(ctx context.Context) (*SummaryDTO, error) {
	if h.cache != nil {
		var cached SummaryDTO
		if err := h.cache.Get(ctx, SummaryCacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	c, err := h.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	dto := BuildSummary(c, h.clock())

	if h.cache != nil {
		// Ошибка кэша не ломает запрос.
		_ = h.cache.Set(ctx, SummaryCacheKey, dto, SummaryCacheTTL)
	}
	return dto, nil
}

// Invalidate сбрасывает кэш сводки.
func (h *GetSummaryHandler) Invalidate(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	return h.cache.Delete(ctx, SummaryCacheKey)
}

// BuildSummary считает сводку по загруженному классу.
func BuildSummary(c *classroom.Classroom, now time.Time) *SummaryDTO {
	dto := &SummaryDTO{
		TotalStudents: c.Registry.Len(),
		CallsToday:    c.Session.CallsToday,
		AbsentToday:   len(c.Session.AbsentToday),
		Metadata:      c.Metadata,
		Version:       c.Version,
		GeneratedAt:   now.UTC(),
		Subjects:      []SubjectSummaryDTO{},
	}

	bySubject := map[string]*SubjectSummaryDTO{}
	var accuracySum float64
	var called int

	for _, s := range c.Registry.All() {
		p := s.Participation
		dto.TotalCalls += p.TotalCalls
		dto.TotalMGCs += s.Connections.TotalMGCs
		if p.TotalCalls > 0 {
			accuracySum += p.Accuracy()
			called++
		}
		for subject, tally := range p.SubjectBreakdown {
			row, ok := bySubject[subject]
			if !ok {
				row = &SubjectSummaryDTO{Subject: subject}
				bySubject[subject] = row
			}
			row.Correct += tally.Correct
			row.Incorrect += tally.Incorrect
		}
	}

	if called > 0 {
		dto.AverageAccuracy = round2(accuracySum / float64(called))
	}
	for _, row := range bySubject {
		if total := row.Correct + row.Incorrect; total > 0 {
			row.Accuracy = round2(float64(row.Correct) / float64(total))
		}
		dto.Subjects = append(dto.Subjects, *row)
	}
	sort.Slice(dto.Subjects, func(i, j int) bool {
		return dto.Subjects[i].Subject < dto.Subjects[j].Subject
	})
	return dto
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT DOCUMENT QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ExportHandler отдаёт полный документ класса.
type ExportHandler struct {
	source Source
	clock  Clock
}

// NewExportHandler создаёт обработчик.
func NewExportHandler(source Source, clock Clock) *ExportHandler {
	return &ExportHandler{source: source, clock: defaultClock(clock)}
}

// Handle возвращает документ экспорта.
func (h *ExportHandler) Handle(ctx context.Context) (classroom.Document, error) {
	c, err := h.source.Read(ctx)
	if err != nil {
		return classroom.Document{}, err
	}
	return c.Document(h.clock()), nil
}

// Today возвращает текущую дату по часам обработчика.
func (h *ExportHandler) Today() shared.Date {
	return classroom.Today(h.clock())
}
