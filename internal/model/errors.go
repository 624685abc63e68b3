package model

import "errors"

var (
	// ErrNotFound возвращается, если программа, заявка или пользователь не найдены.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState возвращается при операции, недопустимой в текущем статусе заявки.
	ErrInvalidState = errors.New("invalid application state")
	// ErrInvalidTransition возвращается при попытке перехода, отсутствующего в графе статусов.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrProfileIncomplete возвращается, если анкета пользователя не заполнена.
	ErrProfileIncomplete = errors.New("please complete your profile first")
	// ErrNotEligible возвращается, если пользователь не проходит по условиям программы.
	ErrNotEligible = errors.New("not eligible")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrProfileReadOnly возвращается при попытке изменить анкету, которая ведётся во внешнем сервисе.
	ErrProfileReadOnly = errors.New("profile is managed by the user service")
	// ErrForbidden возвращается при обращении к чужим данным.
	ErrForbidden = errors.New("forbidden")
)
