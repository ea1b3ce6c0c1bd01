package service

import (
	"context"
	"fmt"
	"time"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/models/task"
	rep "fieldTracker/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	actorGeofence  = "geofence"
	positionsBatch = 100
	// допустимое расхождение часов устройства и сервера
	maxSampleSkew = time.Minute
)

type GeofenceInput struct {
	Name         string
	Center       geo.Point
	RadiusMeters int
}

func validateGeofence(in GeofenceInput) error {
	if in.Name == "" {
		return NewValidationError("name", "не может быть пустым")
	}
	circle := geo.Circle{Center: in.Center, RadiusMeters: in.RadiusMeters}
	if err := circle.Validate(); err != nil {
		return NewGeometryError("geofence", err)
	}
	return nil
}

func (s *TaskService) CreateGeofence(ctx context.Context, in GeofenceInput) (*task.Geofence, error) {
	if err := validateGeofence(in); err != nil {
		return nil, err
	}

	g := &task.Geofence{
		UUID:         uuid.New(),
		Name:         in.Name,
		Center:       in.Center,
		RadiusMeters: in.RadiusMeters,
		Active:       true,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.CreateGeofence(ctx, g); err != nil {
		return nil, toBusiness(err, ResourceGeofence, g.UUID.String())
	}

	logger.Info("Service: Геозона создана", zap.String("geofence_id", g.UUID.String()), zap.Int("radius_m", g.RadiusMeters))
	return g, nil
}

func (s *TaskService) GetGeofence(ctx context.Context, id uuid.UUID) (*task.Geofence, error) {
	g, err := s.repo.GetGeofence(ctx, id)
	if err != nil {
		return nil, toBusiness(err, ResourceGeofence, id.String())
	}
	return g, nil
}

func (s *TaskService) ListGeofences(ctx context.Context) ([]task.Geofence, error) {
	list, err := s.repo.ListGeofences(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение геозон: %w", err)
	}
	return list, nil
}

// UpdateGeofence меняет центр и радиус. Ссылающиеся точки видят изменения сразу
func (s *TaskService) UpdateGeofence(ctx context.Context, id uuid.UUID, in GeofenceInput) (*task.Geofence, error) {
	if err := validateGeofence(in); err != nil {
		return nil, err
	}

	g, err := s.repo.GetGeofence(ctx, id)
	if err != nil {
		return nil, toBusiness(err, ResourceGeofence, id.String())
	}
	g.Name = in.Name
	g.Center = in.Center
	g.RadiusMeters = in.RadiusMeters
	now := s.clock.Now()
	g.UpdatedAt = &now

	if err := s.repo.UpdateGeofence(ctx, g); err != nil {
		return nil, toBusiness(err, ResourceGeofence, id.String())
	}
	logger.Info("Service: Геозона обновлена", zap.String("geofence_id", id.String()))
	return g, nil
}

// DeactivateGeofence - мягкое отключение, геозона остаётся для истории
func (s *TaskService) DeactivateGeofence(ctx context.Context, id uuid.UUID) (*task.Geofence, error) {
	g, err := s.repo.GetGeofence(ctx, id)
	if err != nil {
		return nil, toBusiness(err, ResourceGeofence, id.String())
	}
	if !g.Active {
		return g, nil
	}

	g.Active = false
	now := s.clock.Now()
	g.UpdatedAt = &now
	if err := s.repo.UpdateGeofence(ctx, g); err != nil {
		return nil, toBusiness(err, ResourceGeofence, id.String())
	}
	logger.Info("Service: Геозона отключена", zap.String("geofence_id", id.String()))
	return g, nil
}

type LocationCheck struct {
	TaskID         uuid.UUID `json:"task_id"`
	LocationID     uuid.UUID `json:"location_id"`
	Inside         bool      `json:"inside"`
	DistanceMeters float64   `json:"distance_meters"`
}

type AutoTransition struct {
	TaskID uuid.UUID   `json:"task_id"`
	Action task.Action `json:"action"`
	Status task.Status `json:"status"`
}

type PositionReport struct {
	Checks      []LocationCheck      `json:"checks"`
	Events      []task.LocationEvent `json:"events"`
	Transitions []AutoTransition     `json:"transitions"`
}

// ReportPosition прогоняет позицию исполнителя через детектор по всем его открытым задачам.
// Прибытие на обязательную точку запускает задачу, убытие с обязательной точки завершает начатую.
// Нулевое at заменяется текущим временем. Ошибки автопереходов только логируются,
// ошибка записи события возвращается
func (s *TaskService) ReportPosition(ctx context.Context, workerID string, pos geo.Point, at time.Time) (*PositionReport, error) {
	if workerID == "" {
		return nil, NewValidationError("worker_id", "не может быть пустым")
	}
	if err := pos.Validate(); err != nil {
		return nil, NewGeometryError("position", err)
	}
	now := s.clock.Now()
	if at.IsZero() {
		at = now
	}
	if at.After(now.Add(maxSampleSkew)) {
		return nil, NewValidationError("timestamp", "замер из будущего")
	}

	tasks, err := s.openTasks(ctx, workerID)
	if err != nil {
		return nil, err
	}

	report := &PositionReport{
		Checks:      []LocationCheck{},
		Events:      []task.LocationEvent{},
		Transitions: []AutoTransition{},
	}
	geofences := map[uuid.UUID]*task.Geofence{}

	for _, t := range tasks {
		var arrived, departed bool

		for _, loc := range t.Locations {
			area, ok := s.resolveArea(ctx, loc, geofences)
			if !ok {
				continue
			}

			res, kind, err := s.detector.Observe(ctx, workerID, loc.UUID, pos, area)
			if err != nil {
				return nil, fmt.Errorf("детектор геозон: %w", err)
			}
			report.Checks = append(report.Checks, LocationCheck{
				TaskID:         t.UUID,
				LocationID:     loc.UUID,
				Inside:         res.Inside,
				DistanceMeters: res.DistanceMeters,
			})
			if kind == nil {
				continue
			}

			event := task.LocationEvent{
				UUID:           uuid.New(),
				TaskID:         t.UUID,
				TaskLocationID: loc.UUID,
				WorkerID:       workerID,
				Kind:           *kind,
				Position:       pos,
				DistanceMeters: res.DistanceMeters,
				OccurredAt:     at,
			}
			if err := s.repo.AppendEvent(ctx, event); err != nil {
				logger.Error("Service: Не удалось записать событие геозоны", err,
					zap.String("task_id", t.UUID.String()),
					zap.String("location_id", loc.UUID.String()))
				// смена состояния откатывается, следующий замер выдаст событие снова
				restoreErr := s.detector.Restore(ctx, workerID, loc.UUID, !res.Inside)
				return nil, multierr.Append(fmt.Errorf("запись события геозоны: %w", err), restoreErr)
			}
			s.metrics.GeofenceEvent(string(*kind))
			report.Events = append(report.Events, event)

			switch {
			case *kind == task.EventArrival && loc.ArrivalRequired:
				arrived = true
			case *kind == task.EventDeparture && loc.DepartureRequired:
				departed = true
			}
		}

		if tr, ok := s.autoTransition(ctx, t, arrived, departed); ok {
			report.Transitions = append(report.Transitions, tr)
		}
	}

	return report, nil
}

func (s *TaskService) openTasks(ctx context.Context, workerID string) ([]*task.Task, error) {
	var res []*task.Task
	for page := 1; ; page++ {
		batch, err := s.repo.List(ctx, rep.TaskFilter{
			Statuses: task.OpenStatuses,
			WorkerID: workerID,
			Page:     page,
			Limit:    positionsBatch,
		})
		if err != nil {
			return nil, fmt.Errorf("получение задач исполнителя: %w", err)
		}
		res = append(res, batch...)
		if len(batch) < positionsBatch {
			return res, nil
		}
	}
}

// resolveArea читает геозону при каждом замере, отключённые пропускаются
func (s *TaskService) resolveArea(ctx context.Context, loc task.TaskLocation, cache map[uuid.UUID]*task.Geofence) (geo.Circle, bool) {
	if loc.GeofenceID == nil {
		return loc.Inline(), true
	}

	g, ok := cache[*loc.GeofenceID]
	if !ok {
		var err error
		g, err = s.repo.GetGeofence(ctx, *loc.GeofenceID)
		if err != nil {
			logger.Warn("Service: Геозона точки недоступна",
				zap.String("geofence_id", loc.GeofenceID.String()),
				zap.Error(err))
			g = nil
		}
		cache[*loc.GeofenceID] = g
	}
	if g == nil || !g.Active {
		return geo.Circle{}, false
	}
	return g.Circle(), true
}

func (s *TaskService) autoTransition(ctx context.Context, t *task.Task, arrived, departed bool) (AutoTransition, bool) {
	var (
		updated *task.Task
		action  task.Action
		err     error
	)

	switch {
	case departed && (t.Status == task.StatusInProgress || t.Status == task.StatusPaused):
		action = task.ActionCompleted
		updated, err = s.CompleteTask(ctx, t.UUID, actorGeofence)
	case arrived && t.Status == task.StatusPaused:
		action = task.ActionResume
		updated, err = s.ResumeTask(ctx, t.UUID, actorGeofence)
	case arrived && t.Status != task.StatusInProgress && t.Status != task.StatusCompleted:
		action = task.ActionStart
		updated, err = s.StartTask(ctx, t.UUID, actorGeofence)
	default:
		return AutoTransition{}, false
	}

	if err != nil {
		logger.Warn("Service: Автопереход по геозоне не выполнен",
			zap.String("task_id", t.UUID.String()),
			zap.String("action", string(action)),
			zap.Error(err))
		return AutoTransition{}, false
	}
	return AutoTransition{TaskID: t.UUID, Action: action, Status: updated.Status}, true
}
