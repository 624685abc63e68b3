package rules

import (
	"strings"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

const (
	reasonNoConditions = "No eligibility conditions"
	reasonAllMet       = "All eligibility conditions are met"
	reasonPrefix       = "Not eligible: "
)

// Result описывает итог проверки одного правила.
type Result struct {
	Eligible         bool
	Reason           string
	FailedConditions []string
}

// Evaluate вычисляет правило для анкеты. Функция чистая: одинаковые аргументы дают одинаковый результат.
// Отсутствующие или некорректные поля анкеты не приводят к ошибке, а делают условие невыполненным.
func Evaluate(p model.UserProfile, rule Node) Result {
	if rule == nil {
		return Result{Eligible: true, Reason: reasonNoConditions, FailedConditions: []string{}}
	}

	var failed []string
	ok := rule.eval(p, &failed)
	if ok {
		return Result{Eligible: true, Reason: reasonAllMet, FailedConditions: []string{}}
	}

	failed = dedupe(failed)
	return Result{
		Eligible:         false,
		Reason:           reasonPrefix + strings.Join(failed, "; "),
		FailedConditions: failed,
	}
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}
