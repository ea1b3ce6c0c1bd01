package repository

import (
	"time"

	"fieldTracker/internal/models/task"

	"github.com/google/uuid"
)

// TaskFilter - фильтр списка задач, пустые поля не ограничивают выборку
type TaskFilter struct {
	Statuses []task.Status
	WorkerID string
	Page     int
	Limit    int
}

func (f TaskFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// DueQuery - страница задач со статусом Status и дедлайном раньше Before.
// Выборка упорядочена по uuid и начинается строго после After
type DueQuery struct {
	Status task.Status
	Before time.Time
	After  uuid.UUID
	Limit  int
}
