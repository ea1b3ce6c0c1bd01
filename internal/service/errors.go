package service

import (
	"errors"
	"fmt"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/lifecycle"
	"fieldTracker/internal/locking"
	rep "fieldTracker/internal/repository"
)

const (
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeLocationRequired  = "LOCATION_REQUIRED"
	CodeVersionConflict   = "VERSION_CONFLICT"
	CodeInvalidGeometry   = "INVALID_GEOMETRY"
	CodeAlreadyExists     = "ALREADY_EXISTS"
	CodeTaskLocked        = "TASK_LOCKED"
)

type Resource string

const (
	ResourceTask     Resource = "задача"
	ResourceGeofence Resource = "геозона"
)

type BusinessError struct {
	Code    string
	Message string
	Details map[string]any
	Err     error
}

type Detail struct {
	Key     string
	Payload any
}

func (b *BusinessError) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", b.Code, b.Message, b.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", b.Code, b.Message)
}

func (b *BusinessError) Unwrap() error {
	return b.Err
}

func ToDetail(key string, payload any) Detail {
	return Detail{
		Key:     key,
		Payload: payload,
	}
}

func NewBusinessError(code string, message string, details ...Detail) *BusinessError {
	busErr := &BusinessError{
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}

	for _, detail := range details {
		busErr.Details[detail.Key] = detail.Payload
	}

	return busErr
}

func NewNotFound(resource Resource, id string) *BusinessError {
	return &BusinessError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s не найдена", resource, id),
		Details: map[string]any{
			"resource": string(resource),
			"id":       id,
		},
		Err: rep.ErrNotFound,
	}
}

func NewValidationError(field, reason string) *BusinessError {
	return &BusinessError{
		Code:    CodeValidation,
		Message: fmt.Sprintf("Неверное значение поля '%s': %s", field, reason),
		Details: map[string]any{
			"field":  field,
			"reason": reason,
		},
	}
}

func NewGeometryError(field string, err error) *BusinessError {
	return &BusinessError{
		Code:    CodeInvalidGeometry,
		Message: fmt.Sprintf("Неверная геометрия '%s'", field),
		Details: map[string]any{
			"field": field,
		},
		Err: err,
	}
}

func NewVersionConflict(id string) *BusinessError {
	return &BusinessError{
		Code:    CodeVersionConflict,
		Message: "Задача изменена другим запросом, повторите с актуальными данными",
		Details: map[string]any{
			"id": id,
		},
		Err: rep.ErrVersionConflict,
	}
}

// toBusiness переводит ошибки нижних слоёв в типизированные, прочие возвращает как есть
func toBusiness(err error, resource Resource, id string) error {
	var (
		transErr *lifecycle.TransitionError
		locErr   *lifecycle.LocationError
	)

	switch {
	case err == nil:
		return nil
	case errors.As(err, new(*BusinessError)):
		return err
	case errors.As(err, &transErr):
		return &BusinessError{
			Code:    CodeInvalidTransition,
			Message: transErr.Error(),
			Details: map[string]any{
				"current_status": string(transErr.From),
				"action":         string(transErr.Action),
			},
			Err: err,
		}
	case errors.As(err, &locErr):
		return &BusinessError{
			Code:    CodeLocationRequired,
			Message: locErr.Error(),
			Details: map[string]any{
				"kind":        string(locErr.Kind),
				"location_id": locErr.LocationID.String(),
			},
			Err: err,
		}
	case errors.Is(err, rep.ErrNotFound):
		return NewNotFound(resource, id)
	case errors.Is(err, rep.ErrVersionConflict):
		return NewVersionConflict(id)
	case errors.Is(err, rep.ErrAlreadyExists):
		return &BusinessError{
			Code:    CodeAlreadyExists,
			Message: fmt.Sprintf("%s %s уже существует", resource, id),
			Details: map[string]any{"id": id},
			Err:     err,
		}
	case errors.Is(err, locking.ErrNotObtained):
		return &BusinessError{
			Code:    CodeTaskLocked,
			Message: "Задача занята другим запросом, повторите позже",
			Details: map[string]any{"id": id},
			Err:     err,
		}
	case errors.Is(err, geo.ErrInvalidGeometry):
		return NewGeometryError("location", err)
	}
	return err
}
