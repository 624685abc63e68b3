// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

// MaxAge ограничивает правдоподобный возраст заявителя.
const MaxAge = 150

// FieldError описывает некорректное значение поля анкеты.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	genders     = []string{string(model.GenderMale), string(model.GenderFemale), string(model.GenderOther)}
	categories  = []string{string(model.CategoryGeneral), string(model.CategoryOBC), string(model.CategorySC), string(model.CategoryST)}
	rationCards = []string{string(model.RationCardAPL), string(model.RationCardBPL), string(model.RationCardAAY)}
)

// Genders возвращает допустимые значения пола.
func Genders() []string { return append([]string(nil), genders...) }

// Categories возвращает допустимые значения категории.
func Categories() []string { return append([]string(nil), categories...) }

// RationCards возвращает допустимые типы продовольственных карточек.
func RationCards() []string { return append([]string(nil), rationCards...) }

// EducationLevels возвращает допустимые уровни образования.
func EducationLevels() []string {
	out := make([]string, 0, len(model.EducationLevels))
	for _, e := range model.EducationLevels {
		out = append(out, string(e))
	}
	return out
}

// IsValidAge проверяет, что возраст неотрицателен и правдоподобен.
func IsValidAge(age int64) bool {
	return age >= 0 && age <= MaxAge
}

// IsValidIncome проверяет, что годовой доход неотрицателен.
func IsValidIncome(income int64) bool {
	return income >= 0
}

// IsValidPincode проверяет индийский почтовый индекс: шесть цифр, первая не ноль.
func IsValidPincode(pin string) bool {
	if len(pin) != 6 || pin[0] == '0' {
		return false
	}
	for _, ch := range pin {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}

// Canonical возвращает значение из списка, совпадающее с v без учёта регистра.
func Canonical(v string, allowed []string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, a := range allowed {
		if strings.EqualFold(a, v) {
			return a, true
		}
	}
	return "", false
}

// IsValidGender проверяет значение пола.
func IsValidGender(g model.Gender) bool {
	_, ok := Canonical(string(g), genders)
	return ok
}

// IsValidCategory проверяет значение категории.
func IsValidCategory(c model.Category) bool {
	_, ok := Canonical(string(c), categories)
	return ok
}

// IsValidEducation проверяет уровень образования.
func IsValidEducation(e model.Education) bool {
	_, ok := model.EducationRank(e)
	return ok
}

// IsValidRationCard проверяет тип продовольственной карточки.
func IsValidRationCard(r model.RationCard) bool {
	_, ok := Canonical(string(r), rationCards)
	return ok
}

// Normalize приводит перечислимые поля анкеты к каноническому написанию.
// Значение "None" для образования и карточки трактуется как отсутствие значения.
func Normalize(p model.UserProfile) model.UserProfile {
	p.Name = strings.TrimSpace(p.Name)
	p.State = strings.TrimSpace(p.State)
	p.District = strings.TrimSpace(p.District)
	p.Address = strings.TrimSpace(p.Address)
	p.Pincode = strings.TrimSpace(p.Pincode)
	p.Occupation = strings.TrimSpace(p.Occupation)

	if v, ok := Canonical(string(p.Gender), genders); ok {
		p.Gender = model.Gender(v)
	}
	if v, ok := Canonical(string(p.Category), categories); ok {
		p.Category = model.Category(v)
	}
	if strings.EqualFold(strings.TrimSpace(string(p.RationCardType)), "none") {
		p.RationCardType = ""
	} else if v, ok := Canonical(string(p.RationCardType), rationCards); ok {
		p.RationCardType = model.RationCard(v)
	}
	if strings.EqualFold(strings.TrimSpace(string(p.Education)), "none") {
		p.Education = ""
	} else if v, ok := Canonical(string(p.Education), EducationLevels()); ok {
		p.Education = model.Education(v)
	}
	return p
}

// ValidateProfile проверяет заполненные поля анкеты. Отсутствующие поля не считаются ошибкой.
func ValidateProfile(p model.UserProfile) error {
	var errs []error
	if p.Age != nil && !IsValidAge(*p.Age) {
		errs = append(errs, &FieldError{Field: "age", Message: fmt.Sprintf("must be between 0 and %d", MaxAge)})
	}
	if p.Income != nil && !IsValidIncome(*p.Income) {
		errs = append(errs, &FieldError{Field: "income", Message: "must not be negative"})
	}
	if p.Gender != "" && !IsValidGender(p.Gender) {
		errs = append(errs, &FieldError{Field: "gender", Message: fmt.Sprintf("must be one of %v", genders)})
	}
	if p.Pincode != "" && !IsValidPincode(p.Pincode) {
		errs = append(errs, &FieldError{Field: "pincode", Message: "must be six digits"})
	}
	if p.Category != "" && !IsValidCategory(p.Category) {
		errs = append(errs, &FieldError{Field: "caste", Message: fmt.Sprintf("must be one of %v", categories)})
	}
	if p.Education != "" && !IsValidEducation(p.Education) {
		errs = append(errs, &FieldError{Field: "education", Message: fmt.Sprintf("must be one of %v", EducationLevels())})
	}
	if p.RationCardType != "" && !IsValidRationCard(p.RationCardType) {
		errs = append(errs, &FieldError{Field: "ration_card_type", Message: fmt.Sprintf("must be one of %v", rationCards)})
	}
	return errors.Join(errs...)
}
