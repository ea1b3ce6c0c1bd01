package repository

import "errors"

var (
	ErrNotFound        = errors.New("не найдено")
	ErrVersionConflict = errors.New("конфликт версий")
	ErrAlreadyExists   = errors.New("уже существует")
)
