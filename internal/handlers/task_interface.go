package handlers

import (
	"context"
	"time"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/models/task"
	"fieldTracker/internal/route"
	"fieldTracker/internal/service"
	"fieldTracker/internal/worker"

	"github.com/google/uuid"
)

type TaskService interface {
	HealthCheck(ctx context.Context) error

	CreateTask(ctx context.Context, in service.TaskInput) (*task.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error)
	ListTasks(ctx context.Context, status task.Status, workerID string, page, limit int) ([]*task.Task, error)
	UpdateTask(ctx context.Context, id uuid.UUID, options ...task.TaskOption) (*task.Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error

	StartTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error)
	PauseTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error)
	ResumeTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error)
	CompleteTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error)
	RescheduleTask(ctx context.Context, id uuid.UUID, due time.Time, actor string) (*task.Task, error)

	TaskTiming(ctx context.Context, id uuid.UUID) (service.Timing, error)
	TaskEvents(ctx context.Context, id uuid.UUID) ([]task.LocationEvent, error)
	TaskLog(ctx context.Context, id uuid.UUID) ([]task.LogEntry, error)

	CreateGeofence(ctx context.Context, in service.GeofenceInput) (*task.Geofence, error)
	GetGeofence(ctx context.Context, id uuid.UUID) (*task.Geofence, error)
	ListGeofences(ctx context.Context) ([]task.Geofence, error)
	UpdateGeofence(ctx context.Context, id uuid.UUID, in service.GeofenceInput) (*task.Geofence, error)
	DeactivateGeofence(ctx context.Context, id uuid.UUID) (*task.Geofence, error)

	ReportPosition(ctx context.Context, workerID string, pos geo.Point, at time.Time) (*service.PositionReport, error)
	PlanRoute(ctx context.Context, workerID string, origin geo.Point) (route.Plan, error)
	PlanRoutes(ctx context.Context, requests []service.RouteRequest) ([]route.Plan, error)
}

// Forwarder - ручной запуск переноса просроченных задач
type Forwarder interface {
	Run(ctx context.Context) (worker.Report, error)
}
