package repository

import "errors"

// ErrDuplicateActive возвращается при попытке создать вторую активную заявку пользователя на ту же программу.
var ErrDuplicateActive = errors.New("active application already exists")
