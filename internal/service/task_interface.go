package service

import (
	"context"

	"fieldTracker/internal/models/task"
	rep "fieldTracker/internal/repository"

	"github.com/google/uuid"
)

type TaskRepository interface {
	HealthCheck(context.Context) error

	Create(context.Context, *task.Task) error
	Update(context.Context, *task.Task) error
	GetByID(context.Context, uuid.UUID) (*task.Task, error)
	Delete(context.Context, uuid.UUID) error
	List(context.Context, rep.TaskFilter) ([]*task.Task, error)
	ListDue(context.Context, rep.DueQuery) ([]*task.Task, error)

	CreateGeofence(context.Context, *task.Geofence) error
	GetGeofence(context.Context, uuid.UUID) (*task.Geofence, error)
	UpdateGeofence(context.Context, *task.Geofence) error
	ListGeofences(context.Context) ([]task.Geofence, error)

	AppendEvent(context.Context, task.LocationEvent) error
	ListEvents(context.Context, uuid.UUID) ([]task.LocationEvent, error)
	AppendLog(context.Context, task.LogEntry) error
	ListLogs(context.Context, uuid.UUID) ([]task.LogEntry, error)
}
