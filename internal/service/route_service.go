package service

import (
	"context"
	"fmt"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/models/task"
	"fieldTracker/internal/route"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RouteRequest struct {
	WorkerID string
	Origin   geo.Point
}

// PlanRoute строит маршрут по открытым незавершённым задачам исполнителя.
// Задачи без доступной точки в маршрут не попадают
func (s *TaskService) PlanRoute(ctx context.Context, workerID string, origin geo.Point) (route.Plan, error) {
	plans, err := s.PlanRoutes(ctx, []RouteRequest{{WorkerID: workerID, Origin: origin}})
	if err != nil {
		return route.Plan{}, err
	}
	return plans[0], nil
}

// PlanRoutes строит маршруты для нескольких исполнителей параллельно
func (s *TaskService) PlanRoutes(ctx context.Context, requests []RouteRequest) ([]route.Plan, error) {
	if len(requests) == 0 {
		return nil, NewValidationError("requests", "пустой список")
	}

	batch := make([]route.Request, 0, len(requests))
	geofences := map[uuid.UUID]*task.Geofence{}
	for i, req := range requests {
		if req.WorkerID == "" {
			return nil, NewValidationError(fmt.Sprintf("requests[%d].worker_id", i), "не может быть пустым")
		}
		if err := req.Origin.Validate(); err != nil {
			return nil, NewGeometryError(fmt.Sprintf("requests[%d].origin", i), err)
		}

		candidates, err := s.candidates(ctx, req.WorkerID, geofences)
		if err != nil {
			return nil, err
		}
		batch = append(batch, route.Request{WorkerID: req.WorkerID, Origin: req.Origin, Candidates: candidates})
	}

	plans, err := route.PlanAll(ctx, s.sequencer, batch, s.routeLimit)
	if err != nil {
		return nil, fmt.Errorf("построение маршрутов: %w", err)
	}

	for i, p := range plans {
		logger.Info("Service: Маршрут построен",
			zap.String("worker_id", requests[i].WorkerID),
			zap.Int("stops", len(p.Stops)),
			zap.Float64("distance_km", p.TotalDistanceKm))
	}
	return plans, nil
}

// candidates - по одной точке на задачу: первая, у которой известен центр
func (s *TaskService) candidates(ctx context.Context, workerID string, geofences map[uuid.UUID]*task.Geofence) ([]route.Candidate, error) {
	tasks, err := s.openTasks(ctx, workerID)
	if err != nil {
		return nil, err
	}

	res := make([]route.Candidate, 0, len(tasks))
	for _, t := range tasks {
		for _, loc := range t.Locations {
			area, ok := s.resolveArea(ctx, loc, geofences)
			if !ok {
				continue
			}
			res = append(res, route.Candidate{
				TaskID:      t.UUID,
				Title:       t.Title,
				Description: t.Description,
				Location:    area.Center,
				Priority:    t.Priority,
				DueDate:     t.DueDate,
				Reward:      t.Reward,
			})
			break
		}
	}
	return res, nil
}
