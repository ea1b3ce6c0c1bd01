package lifecycle

import (
	"errors"
	"fmt"

	"fieldTracker/internal/models/task"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrLocationRequired  = errors.New("location required")
)

// TransitionError - переход недопустим из текущего статуса
type TransitionError struct {
	From   task.Status
	Action task.Action
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("переход %q недопустим из статуса %q", e.Action, e.From)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// LocationError - не получено обязательное событие прибытия или убытия
type LocationError struct {
	Kind       task.EventKind
	LocationID uuid.UUID
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("нет события %q для точки %s", e.Kind, e.LocationID)
}

func (e *LocationError) Is(target error) bool {
	return target == ErrLocationRequired
}
