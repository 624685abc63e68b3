package rules

import (
	"sort"
	"strings"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
	"github.com/mmeshcher/scheme-eligibility/internal/validation"
)

type fieldKind int

const (
	kindInt fieldKind = iota
	kindString
)

// field описывает поле анкеты, доступное в условиях правил.
type field struct {
	name    string
	kind    fieldKind
	ordered bool
	allowed []string

	intValue func(p model.UserProfile) *int64
	strValue func(p model.UserProfile) string
	valid    func(p model.UserProfile) bool
}

var fields = map[string]*field{
	"age": {
		name:     "age",
		kind:     kindInt,
		intValue: func(p model.UserProfile) *int64 { return p.Age },
		valid:    func(p model.UserProfile) bool { return validation.IsValidAge(*p.Age) },
	},
	"income": {
		name:     "income",
		kind:     kindInt,
		intValue: func(p model.UserProfile) *int64 { return p.Income },
		valid:    func(p model.UserProfile) bool { return validation.IsValidIncome(*p.Income) },
	},
	"gender": {
		name:     "gender",
		kind:     kindString,
		allowed:  validation.Genders(),
		strValue: func(p model.UserProfile) string { return string(p.Gender) },
		valid:    func(p model.UserProfile) bool { return validation.IsValidGender(p.Gender) },
	},
	"state": {
		name:     "state",
		kind:     kindString,
		strValue: func(p model.UserProfile) string { return p.State },
	},
	"district": {
		name:     "district",
		kind:     kindString,
		strValue: func(p model.UserProfile) string { return p.District },
	},
	"occupation": {
		name:     "occupation",
		kind:     kindString,
		strValue: func(p model.UserProfile) string { return p.Occupation },
	},
	"pincode": {
		name:     "pincode",
		kind:     kindString,
		strValue: func(p model.UserProfile) string { return p.Pincode },
		valid:    func(p model.UserProfile) bool { return validation.IsValidPincode(p.Pincode) },
	},
	"category": {
		name:     "category",
		kind:     kindString,
		allowed:  validation.Categories(),
		strValue: func(p model.UserProfile) string { return string(p.Category) },
		valid:    func(p model.UserProfile) bool { return validation.IsValidCategory(p.Category) },
	},
	"education": {
		name:     "education",
		kind:     kindString,
		ordered:  true,
		allowed:  validation.EducationLevels(),
		strValue: func(p model.UserProfile) string { return string(p.Education) },
		valid:    func(p model.UserProfile) bool { return validation.IsValidEducation(p.Education) },
	},
	"ration_card_type": {
		name:     "ration_card_type",
		kind:     kindString,
		allowed:  validation.RationCards(),
		strValue: func(p model.UserProfile) string { return string(p.RationCardType) },
		valid:    func(p model.UserProfile) bool { return validation.IsValidRationCard(p.RationCardType) },
	},
}

var fieldAliases = map[string]string{
	"caste":         "category",
	"annual_income": "income",
	"ration_card":   "ration_card_type",
}

func lookupField(name string) (*field, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := fieldAliases[name]; ok {
		name = alias
	}
	f, ok := fields[name]
	return f, ok
}

// Fields возвращает имена полей анкеты, которые можно использовать в правилах.
func Fields() []string {
	out := make([]string, 0, len(fields))
	for name := range fields {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// present сообщает, заполнено ли поле в анкете.
func (f *field) present(p model.UserProfile) bool {
	if f.kind == kindInt {
		return f.intValue(p) != nil
	}
	return strings.TrimSpace(f.strValue(p)) != ""
}
