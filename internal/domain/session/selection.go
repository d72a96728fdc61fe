package session

import (
	"strings"

	"github.com/classroom-hub/participation-tracker/internal/domain/shared"
	"github.com/classroom-hub/participation-tracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STRATEGY
// ══════════════════════════════════════════════════════════════════════════════

// Strategy - алгоритм выбора следующего ученика.
type Strategy string

const (
	// StrategyWeightedPool - круг по пулу с выбором пропорционально весу.
	// Каждый подходящий ученик вызывается раз за круг до любых повторов.
	StrategyWeightedPool Strategy = "weighted_pool"

	// StrategyLeastCalledRandom - случайный ученик среди тех, кого меньше
	// всех вызывали по текущему предмету. Пул не используется.
	// Без активного предмета сравнивается TotalCalls.
	StrategyLeastCalledRandom Strategy = "least_called_random"
)

// IsValid проверяет, что стратегия известна.
func (s Strategy) IsValid() bool {
	return s == StrategyWeightedPool || s == StrategyLeastCalledRandom
}

// ParseStrategy разбирает имя стратегии ("weighted-pool" тоже допустимо).
func ParseStrategy(v string) (Strategy, error) {
	s := Strategy(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_"))
	if s == "" {
		return StrategyWeightedPool, nil
	}
	if !s.IsValid() {
		return "", shared.ErrInvalidStrategy
	}
	return s, nil
}

// RandomSource - источник случайности; *rand.Rand подходит.
type RandomSource interface {
	// Float64 возвращает число из [0, 1).
	Float64() float64
	// Intn возвращает число из [0, n).
	Intn(n int) int
}

// ══════════════════════════════════════════════════════════════════════════════
// SELECTION ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Selection - результат выбора.
type Selection struct {
	Student      *student.Student
	Weight       float64
	Candidates   int
	PoolRefilled bool
	RefillSize   int
	Strategy     Strategy
}

// Selector выбирает следующего ученика.
type Selector struct {
	strategy Strategy
	rnd      RandomSource
}

// NewSelector создаёт селектор.
func NewSelector(strategy Strategy, rnd RandomSource) (*Selector, error) {
	if !strategy.IsValid() {
		return nil, shared.ErrInvalidStrategy
	}
	if rnd == nil {
		return nil, shared.NewDomainError("session", "NewSelector", shared.ErrInvalidInput, "random source is required")
	}
	return &Selector{strategy: strategy, rnd: rnd}, nil
}

// Strategy возвращает стратегию селектора.
func (s *Selector) Strategy() Strategy {
	return s.strategy
}

// Eligible возвращает учеников, прошедших фильтр по классу и не отсутствующих,
// в порядке журнала.
func Eligible(reg *student.Registry, st *State) []*student.Student {
	out := make([]*student.Student, 0, reg.Len())
	for _, s := range reg.All() {
		if !st.GradeFilter.Matches(s.Grade) || st.IsAbsent(s.ID) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SelectNext выбирает ученика, ставит его CurrentStudent и для WeightedPool
// убирает из пула. subject - активный предмет ("" - урока нет).
// При ошибке состояние не меняется.
func (s *Selector) SelectNext(reg *student.Registry, st *State, subject string) (Selection, error) {
	eligible := Eligible(reg, st)
	if len(eligible) == 0 {
		return Selection{}, shared.ErrEmptyRoster
	}

	switch s.strategy {
	case StrategyLeastCalledRandom:
		return s.leastCalled(eligible, st, subject), nil
	default:
		return s.weightedPool(eligible, st)
	}
}

func (s *Selector) weightedPool(eligible []*student.Student, st *State) (Selection, error) {
	sel := Selection{Strategy: StrategyWeightedPool}

	pool := st.Pool
	if len(pool) == 0 {
		pool = make([]string, 0, len(eligible))
		for _, e := range eligible {
			pool = append(pool, e.ID)
		}
		sel.PoolRefilled = true
		sel.RefillSize = len(pool)
	}

	candidates := make([]*student.Student, 0, len(eligible))
	for _, e := range eligible {
		if contains(pool, e.ID) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return Selection{}, shared.ErrPoolExhausted
	}

	chosen := s.drawWeighted(candidates)

	st.Pool, _ = without(pool, chosen.ID)
	st.CurrentStudent = chosen.ID

	sel.Student = chosen
	sel.Weight = chosen.SelectionWeight()
	sel.Candidates = len(candidates)
	return sel, nil
}

// drawWeighted тянет кандидата с вероятностью, пропорциональной весу:
// равномерное число из [0, total), побеждает первый, чья накопленная сумма
// больше числа. Из-за округления может не победить никто - тогда последний.
func (s *Selector) drawWeighted(candidates []*student.Student) *student.Student {
	total := 0.0
	for _, c := range candidates {
		total += c.SelectionWeight()
	}
	if total <= 0 {
		return candidates[s.rnd.Intn(len(candidates))]
	}

	draw := s.rnd.Float64() * total
	cumulative := 0.0
	for _, c := range candidates {
		cumulative += c.SelectionWeight()
		if cumulative > draw {
			return c
		}
	}
	return candidates[len(candidates)-1]
}

// leastCalled считает вызовы по subject, а при пустом subject - TotalCalls.
func (s *Selector) leastCalled(eligible []*student.Student, st *State, subject string) Selection {
	calls := func(c *student.Student) int {
		if subject == "" {
			return c.Participation.TotalCalls
		}
		return c.Participation.SubjectCalls(subject)
	}

	least := calls(eligible[0])
	for _, e := range eligible[1:] {
		if n := calls(e); n < least {
			least = n
		}
	}

	ties := make([]*student.Student, 0, len(eligible))
	for _, e := range eligible {
		if calls(e) == least {
			ties = append(ties, e)
		}
	}

	chosen := ties[s.rnd.Intn(len(ties))]
	st.CurrentStudent = chosen.ID

	return Selection{
		Student:    chosen,
		Weight:     chosen.SelectionWeight(),
		Candidates: len(ties),
		Strategy:   StrategyLeastCalledRandom,
	}
}
