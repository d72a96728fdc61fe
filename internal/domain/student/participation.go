package student

import (
	"math"
	"strings"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEIGHT FORMULA
// ══════════════════════════════════════════════════════════════════════════════

const (
	// BaseWeight - вес ученика без истории и после сброса.
	BaseWeight = 1.0

	// IncorrectPenalty - прибавка к весу за каждый неверный ответ.
	IncorrectPenalty = 0.3

	// MasteryWeight - вес уверенно отвечающего ученика.
	MasteryWeight = 0.5

	// MasteryMinCalls - минимум вызовов, после которого действует скидка.
	MasteryMinCalls = 3

	// MasteryAccuracy - порог точности для скидки.
	MasteryAccuracy = 0.8
)

// ComputeWeight вычисляет вес выбора по счётчикам ответов.
//
//	weight = 1.0 + incorrect*0.3
//	weight = 0.5, если вызовов >= 3 и точность >= 0.8
func ComputeWeight(correct, incorrect int) float64 {
	total := correct + incorrect
	if total >= MasteryMinCalls && float64(correct)/float64(total) >= MasteryAccuracy {
		return MasteryWeight
	}
	// Округление убирает хвосты вида 1.2999999999999998.
	return math.Round((BaseWeight+float64(incorrect)*IncorrectPenalty)*1e9) / 1e9
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTCOME
// ══════════════════════════════════════════════════════════════════════════════

// Outcome - результат ответа у доски.
type Outcome string

const (
	// OutcomeCorrect - верный ответ.
	OutcomeCorrect Outcome = "correct"
	// OutcomeIncorrect - неверный ответ.
	OutcomeIncorrect Outcome = "incorrect"
)

// IsValid проверяет, что результат известен.
func (o Outcome) IsValid() bool {
	return o == OutcomeCorrect || o == OutcomeIncorrect
}

// ParseOutcome разбирает строку результата.
func ParseOutcome(s string) (Outcome, error) {
	o := Outcome(strings.ToLower(strings.TrimSpace(s)))
	if !o.IsValid() {
		return "", shared.ErrInvalidOutcome
	}
	return o, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPATION
// ══════════════════════════════════════════════════════════════════════════════

// SubjectTally - счётчики ответов по одному предмету.
type SubjectTally struct {
	Correct   int `json:"correct" yaml:"correct"`
	Incorrect int `json:"incorrect" yaml:"incorrect"`
}

// Participation - статистика вызовов. TotalCalls и Weight производные:
// их меняют только методы этого типа.
type Participation struct {
	TotalCalls       int                     `json:"totalCalls" yaml:"totalCalls"`
	CorrectAnswers   int                     `json:"correctAnswers" yaml:"correctAnswers"`
	IncorrectAnswers int                     `json:"incorrectAnswers" yaml:"incorrectAnswers"`
	Weight           float64                 `json:"weight" yaml:"weight"`
	SubjectBreakdown map[string]SubjectTally `json:"subjectBreakdown" yaml:"subjectBreakdown"`
}

// NewParticipation возвращает обнулённую статистику.
func NewParticipation() Participation {
	return Participation{
		Weight:           BaseWeight,
		SubjectBreakdown: map[string]SubjectTally{},
	}
}

// Accuracy возвращает долю верных ответов (0, если вызовов не было).
func (p Participation) Accuracy() float64 {
	if p.TotalCalls == 0 {
		return 0
	}
	return float64(p.CorrectAnswers) / float64(p.TotalCalls)
}

// SubjectCalls возвращает число вызовов по предмету.
func (p Participation) SubjectCalls(subject string) int {
	t := p.SubjectBreakdown[subject]
	return t.Correct + t.Incorrect
}

// Record учитывает ответ: счётчики, пересчёт веса, разбивка по предмету.
// Пустой subject означает, что по расписанию сейчас нет урока,
// тогда разбивка не трогается.
func (p *Participation) Record(outcome Outcome, subject string) error {
	if !outcome.IsValid() {
		return shared.ErrInvalidOutcome
	}
	if p.SubjectBreakdown == nil {
		p.SubjectBreakdown = map[string]SubjectTally{}
	}

	tally := p.SubjectBreakdown[subject]
	switch outcome {
	case OutcomeCorrect:
		p.CorrectAnswers++
		tally.Correct++
	case OutcomeIncorrect:
		p.IncorrectAnswers++
		tally.Incorrect++
	}
	if subject != "" {
		p.SubjectBreakdown[subject] = tally
	}

	p.TotalCalls = p.CorrectAnswers + p.IncorrectAnswers
	p.Weight = ComputeWeight(p.CorrectAnswers, p.IncorrectAnswers)
	return nil
}

// ResetWeight возвращает вес к 1.0. Счётчики и разбивка сохраняются.
func (p *Participation) ResetWeight() {
	p.Weight = BaseWeight
}

// Wipe полностью обнуляет статистику.
func (p *Participation) Wipe() {
	*p = NewParticipation()
}

// recompute восстанавливает производные поля после импорта.
func (p *Participation) recompute() {
	if p.CorrectAnswers < 0 {
		p.CorrectAnswers = 0
	}
	if p.IncorrectAnswers < 0 {
		p.IncorrectAnswers = 0
	}
	if p.SubjectBreakdown == nil {
		p.SubjectBreakdown = map[string]SubjectTally{}
	}
	p.TotalCalls = p.CorrectAnswers + p.IncorrectAnswers
	p.Weight = ComputeWeight(p.CorrectAnswers, p.IncorrectAnswers)
}

func (p Participation) clone() Participation {
	c := p
	c.SubjectBreakdown = make(map[string]SubjectTally, len(p.SubjectBreakdown))
	for k, v := range p.SubjectBreakdown {
		c.SubjectBreakdown[k] = v
	}
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT SHORTCUTS
// ══════════════════════════════════════════════════════════════════════════════

// RecordOutcome учитывает ответ ученика по активному предмету.
func (s *Student) RecordOutcome(outcome Outcome, subject string) error {
	return s.Participation.Record(outcome, subject)
}

// SelectionWeight возвращает текущий (кэшированный) вес выбора.
func (s *Student) SelectionWeight() float64 {
	if s.Participation.Weight < 0 {
		return 0
	}
	return s.Participation.Weight
}
