// Package matching сопоставляет анкету пользователя с каталогом программ.
package matching

import (
	"github.com/mmeshcher/scheme-eligibility/internal/catalog"
	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/rules"
)

// Options управляет порядком результатов.
type Options struct {
	// SortEligibleFirst ставит подходящие программы перед неподходящими, сохраняя порядок каталога внутри групп.
	SortEligibleFirst bool
}

// Summary содержит агрегаты по набору вердиктов.
type Summary struct {
	TotalSchemes  int
	EligibleCount int
}

// Observer получает каждый вычисленный вердикт. Используется для метрик.
type Observer interface {
	ObserveVerdict(v model.Verdict)
}

// Engine вычисляет вердикты. Не хранит изменяемого состояния, вызовы независимы.
type Engine struct {
	observer Observer
}

// NewEngine создаёт движок сопоставления. observer может быть nil.
func NewEngine(observer Observer) *Engine {
	return &Engine{observer: observer}
}

// Match вычисляет вердикты по всем программам каталога.
func (e *Engine) Match(profile model.UserProfile, c *catalog.Catalog, opts Options) []model.Verdict {
	schemes := c.List()
	verdicts := make([]model.Verdict, 0, len(schemes))
	for _, s := range schemes {
		verdicts = append(verdicts, e.verdict(profile, s))
	}
	if opts.SortEligibleFirst {
		verdicts = eligibleFirst(verdicts)
	}
	return verdicts
}

// MatchOne вычисляет вердикт по одной программе. Возвращает model.ErrNotFound для неизвестной программы.
func (e *Engine) MatchOne(profile model.UserProfile, schemeID string, c *catalog.Catalog) (model.Verdict, error) {
	s, err := c.Get(schemeID)
	if err != nil {
		return model.Verdict{}, err
	}
	return e.verdict(profile, s), nil
}

func (e *Engine) verdict(profile model.UserProfile, s catalog.Scheme) model.Verdict {
	res := rules.Evaluate(profile, s.Rule)
	v := model.Verdict{
		SchemeID:         s.ID,
		Eligible:         res.Eligible,
		Reason:           res.Reason,
		FailedConditions: res.FailedConditions,
	}
	if e != nil && e.observer != nil {
		e.observer.ObserveVerdict(v)
	}
	return v
}

// eligibleFirst выполняет устойчивое разбиение: подходящие, затем остальные.
func eligibleFirst(verdicts []model.Verdict) []model.Verdict {
	out := make([]model.Verdict, 0, len(verdicts))
	for _, v := range verdicts {
		if v.Eligible {
			out = append(out, v)
		}
	}
	for _, v := range verdicts {
		if !v.Eligible {
			out = append(out, v)
		}
	}
	return out
}

// Summarize пересчитывает агрегаты по вердиктам. Значения не хранятся отдельно.
func Summarize(verdicts []model.Verdict) Summary {
	s := Summary{TotalSchemes: len(verdicts)}
	for _, v := range verdicts {
		if v.Eligible {
			s.EligibleCount++
		}
	}
	return s
}
