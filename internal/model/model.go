// Package model содержит доменные сущности сервиса подбора государственных программ.
package model

import (
	"strings"
	"time"
)

// Gender описывает пол заявителя.
type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderOther  Gender = "Other"
)

// Category описывает социальную категорию (касту) заявителя.
type Category string

const (
	CategoryGeneral Category = "General"
	CategoryOBC     Category = "OBC"
	CategorySC      Category = "SC"
	CategoryST      Category = "ST"
)

// Education описывает уровень образования заявителя.
type Education string

const (
	EducationNone         Education = "None"
	EducationPrimary      Education = "Primary"
	EducationSecondary    Education = "Secondary"
	EducationGraduate     Education = "Graduate"
	EducationPostGraduate Education = "Post-Graduate"
)

// EducationLevels перечисляет уровни образования по возрастанию.
var EducationLevels = []Education{
	EducationNone,
	EducationPrimary,
	EducationSecondary,
	EducationGraduate,
	EducationPostGraduate,
}

// EducationRank возвращает порядковый номер уровня образования.
func EducationRank(e Education) (int, bool) {
	for i, lvl := range EducationLevels {
		if strings.EqualFold(string(lvl), string(e)) {
			return i, true
		}
	}
	return 0, false
}

// RationCard описывает тип продовольственной карточки.
type RationCard string

const (
	RationCardAPL RationCard = "APL"
	RationCardBPL RationCard = "BPL"
	RationCardAAY RationCard = "AAY"
)

// UserProfile описывает анкету пользователя. Пустая строка или nil означают отсутствие значения.
type UserProfile struct {
	UserID         int64      `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Age            *int64     `json:"age" yaml:"age"`
	Gender         Gender     `json:"gender" yaml:"gender"`
	State          string     `json:"state" yaml:"state"`
	District       string     `json:"district,omitempty" yaml:"district"`
	Address        string     `json:"address,omitempty" yaml:"address"`
	Pincode        string     `json:"pincode,omitempty" yaml:"pincode"`
	Occupation     string     `json:"occupation" yaml:"occupation"`
	Income         *int64     `json:"income" yaml:"income"`
	Category       Category   `json:"caste,omitempty" yaml:"caste"`
	Education      Education  `json:"education,omitempty" yaml:"education"`
	RationCardType RationCard `json:"ration_card_type,omitempty" yaml:"ration_card_type"`
}

// Completed сообщает, заполнены ли все обязательные поля анкеты.
func (p UserProfile) Completed() bool {
	return strings.TrimSpace(p.Name) != "" &&
		p.Age != nil &&
		p.Gender != "" &&
		strings.TrimSpace(p.State) != "" &&
		strings.TrimSpace(p.Occupation) != "" &&
		p.Income != nil
}

// Verdict описывает результат проверки права пользователя на одну программу.
type Verdict struct {
	SchemeID         string
	Eligible         bool
	Reason           string
	FailedConditions []string
}

// ApplicationStatus описывает этап рассмотрения заявки.
type ApplicationStatus string

const (
	ApplicationStatusPending     ApplicationStatus = "pending"
	ApplicationStatusSubmitted   ApplicationStatus = "submitted"
	ApplicationStatusUnderReview ApplicationStatus = "under_review"
	ApplicationStatusApproved    ApplicationStatus = "approved"
	ApplicationStatusRejected    ApplicationStatus = "rejected"
)

// ParseApplicationStatus разбирает строковое представление статуса.
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	switch st := ApplicationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ApplicationStatusPending, ApplicationStatusSubmitted, ApplicationStatusUnderReview,
		ApplicationStatusApproved, ApplicationStatusRejected:
		return st, true
	}
	return "", false
}

// Terminal сообщает, является ли статус конечным.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

// Application описывает заявку пользователя на участие в программе.
type Application struct {
	ID        string
	UserID    int64
	SchemeID  string
	Status    ApplicationStatus
	Documents []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active сообщает, что заявка не отклонена.
func (a Application) Active() bool {
	return a.Status != ApplicationStatusRejected
}

// Clone возвращает копию заявки, не разделяющую список документов с оригиналом.
func (a Application) Clone() Application {
	c := a
	if a.Documents != nil {
		c.Documents = append([]string(nil), a.Documents...)
	}
	return c
}
