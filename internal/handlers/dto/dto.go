package dto

import (
	"time"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/ledger"
	"fieldTracker/internal/models/task"
	"fieldTracker/internal/route"

	"github.com/google/uuid"
)

type Point struct {
	Lat *float64 `json:"lat" validate:"required"`
	Lng *float64 `json:"lng" validate:"required"`
}

func (p Point) ToPoint() geo.Point {
	var res geo.Point
	if p.Lat != nil {
		res.Lat = *p.Lat
	}
	if p.Lng != nil {
		res.Lng = *p.Lng
	}
	return res
}

type LocationRequest struct {
	GeofenceID        *uuid.UUID `json:"geofence_id,omitempty"`
	Center            *Point     `json:"center,omitempty" validate:"required_without=GeofenceID"`
	RadiusMeters      int        `json:"radius_meters"`
	ArrivalRequired   bool       `json:"arrival_required"`
	DepartureRequired bool       `json:"departure_required"`
}

type CreateTaskRequest struct {
	Title            string            `json:"title" validate:"required,max=200"`
	Description      string            `json:"description" validate:"max=4000"`
	Priority         string            `json:"priority" validate:"required,oneof=low medium high"`
	WorkerID         string            `json:"worker_id" validate:"required,max=100"`
	StartDate        time.Time         `json:"start_date" validate:"required"`
	EndDate          time.Time         `json:"end_date" validate:"required,gtefield=StartDate"`
	DueDate          time.Time         `json:"due_date" validate:"required"`
	EstimatedMinutes int               `json:"estimated_minutes" validate:"gte=0"`
	Reward           float64           `json:"reward" validate:"gte=0"`
	Status           string            `json:"status,omitempty" validate:"omitempty,oneof=planned not_started"`
	Locations        []LocationRequest `json:"locations,omitempty" validate:"omitempty,max=20,dive"`
}

type UpdateTaskRequest struct {
	Title            *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description      *string    `json:"description,omitempty" validate:"omitempty,max=4000"`
	Priority         *string    `json:"priority,omitempty" validate:"omitempty,oneof=low medium high"`
	WorkerID         *string    `json:"worker_id,omitempty" validate:"omitempty,min=1,max=100"`
	StartDate        *time.Time `json:"start_date,omitempty" validate:"required_with=EndDate"`
	EndDate          *time.Time `json:"end_date,omitempty" validate:"required_with=StartDate"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	EstimatedMinutes *int       `json:"estimated_minutes,omitempty" validate:"omitempty,gte=0"`
	Reward           *float64   `json:"reward,omitempty" validate:"omitempty,gte=0"`
}

// Options - изменения из запроса в виде опций задачи
func (r UpdateTaskRequest) Options() []task.TaskOption {
	var opts []task.TaskOption
	if r.Title != nil {
		opts = append(opts, task.WithTitle(*r.Title))
	}
	if r.Description != nil {
		opts = append(opts, task.WithDescription(*r.Description))
	}
	if r.Priority != nil {
		p, _ := task.ParsePriority(*r.Priority)
		opts = append(opts, task.WithPriority(p))
	}
	if r.WorkerID != nil {
		opts = append(opts, task.WithWorker(*r.WorkerID))
	}
	if r.StartDate != nil && r.EndDate != nil {
		opts = append(opts, task.WithWindow(*r.StartDate, *r.EndDate))
	}
	if r.DueDate != nil {
		opts = append(opts, task.WithDueDate(*r.DueDate))
	}
	if r.EstimatedMinutes != nil {
		opts = append(opts, task.WithEstimatedMinutes(*r.EstimatedMinutes))
	}
	if r.Reward != nil {
		opts = append(opts, task.WithReward(*r.Reward))
	}
	return opts
}

type RescheduleRequest struct {
	DueDate time.Time `json:"due_date" validate:"required"`
}

type GeofenceRequest struct {
	Name         string `json:"name" validate:"required,max=100"`
	Center       Point  `json:"center"`
	RadiusMeters int    `json:"radius_meters"`
}

type PositionRequest struct {
	Point
	// время замера на устройстве, без него берётся время сервера
	Timestamp *time.Time `json:"timestamp"`
}

func (p PositionRequest) SampledAt() time.Time {
	if p.Timestamp == nil {
		return time.Time{}
	}
	return *p.Timestamp
}

type RouteRequest struct {
	Origin Point `json:"origin"`
}

type WorkerRoute struct {
	WorkerID string `json:"worker_id" validate:"required"`
	Origin   Point  `json:"origin"`
}

type RoutesRequest struct {
	Requests []WorkerRoute `json:"requests" validate:"required,min=1,max=50,unique=WorkerID,dive"`
}

type LocationResponse struct {
	UUID              uuid.UUID  `json:"id"`
	GeofenceID        *uuid.UUID `json:"geofence_id,omitempty"`
	Center            *geo.Point `json:"center,omitempty"`
	RadiusMeters      int        `json:"radius_meters,omitempty"`
	ArrivalRequired   bool       `json:"arrival_required"`
	DepartureRequired bool       `json:"departure_required"`
}

type TaskResponse struct {
	UUID             uuid.UUID          `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Priority         string             `json:"priority"`
	WorkerID         string             `json:"worker_id"`
	Status           string             `json:"status"`
	StartDate        time.Time          `json:"start_date"`
	EndDate          time.Time          `json:"end_date"`
	DueDate          time.Time          `json:"due_date"`
	OriginalDueDate  *time.Time         `json:"original_due_date,omitempty"`
	ForwardedAt      *time.Time         `json:"forwarded_at,omitempty"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	LastPauseAt      *time.Time         `json:"last_pause_at,omitempty"`
	TotalPauseMs     int64              `json:"total_pause_ms"`
	EstimatedMinutes int                `json:"estimated_minutes"`
	Reward           float64            `json:"reward"`
	Locations        []LocationResponse `json:"locations"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        *time.Time         `json:"updated_at,omitempty"`
	Version          int                `json:"version"`
	IsOverdue        bool               `json:"is_overdue"`
}

func FromTask(t *task.Task, now time.Time) TaskResponse {
	res := TaskResponse{
		UUID:             t.UUID,
		Title:            t.Title,
		Description:      t.Description,
		Priority:         t.Priority.String(),
		WorkerID:         t.WorkerID,
		Status:           string(t.Status),
		StartDate:        t.StartDate,
		EndDate:          t.EndDate,
		DueDate:          t.DueDate,
		OriginalDueDate:  t.OriginalDueDate,
		ForwardedAt:      t.ForwardedAt,
		StartedAt:        t.StartedAt,
		CompletedAt:      t.CompletedAt,
		LastPauseAt:      t.LastPauseAt,
		TotalPauseMs:     ledger.EncodeMillis(t.TotalPauseDuration),
		EstimatedMinutes: t.EstimatedMinutes,
		Reward:           t.Reward,
		Locations:        make([]LocationResponse, 0, len(t.Locations)),
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
		Version:          t.Version,
		IsOverdue: t.Status == task.StatusPending ||
			(t.Status != task.StatusCompleted && t.DueDate.Before(now)),
	}

	for _, l := range t.Locations {
		loc := LocationResponse{
			UUID:              l.UUID,
			GeofenceID:        l.GeofenceID,
			ArrivalRequired:   l.ArrivalRequired,
			DepartureRequired: l.DepartureRequired,
		}
		if l.GeofenceID == nil {
			center := l.Center
			loc.Center = &center
			loc.RadiusMeters = l.RadiusMeters
		}
		res.Locations = append(res.Locations, loc)
	}
	return res
}

func FromTaskList(tasks []*task.Task, now time.Time) []TaskResponse {
	result := make([]TaskResponse, len(tasks))
	for i, t := range tasks {
		result[i] = FromTask(t, now)
	}
	return result
}

type StopResponse struct {
	Order         int       `json:"order"`
	TaskID        uuid.UUID `json:"task_id"`
	Title         string    `json:"title"`
	Location      geo.Point `json:"location"`
	Priority      string    `json:"priority"`
	Reward        float64   `json:"reward"`
	LegDistanceKm float64   `json:"leg_distance_km"`
	TravelMs      int64     `json:"travel_ms"`
	WorkMs        int64     `json:"work_ms"`
	Score         float64   `json:"score"`
}

type PlanResponse struct {
	Stops           []StopResponse `json:"stops"`
	TotalDistanceKm float64        `json:"total_distance_km"`
	TotalDurationMs int64          `json:"total_duration_ms"`
	TotalReward     float64        `json:"total_reward"`
	RewardPerHour   float64        `json:"reward_per_hour"`
}

func FromPlan(p route.Plan) PlanResponse {
	res := PlanResponse{
		Stops:           make([]StopResponse, 0, len(p.Stops)),
		TotalDistanceKm: p.TotalDistanceKm,
		TotalDurationMs: ledger.EncodeMillis(p.TotalDuration),
		TotalReward:     p.TotalReward,
		RewardPerHour:   p.RewardPerHour,
	}
	for _, s := range p.Stops {
		res.Stops = append(res.Stops, StopResponse{
			Order:         s.Order,
			TaskID:        s.TaskID,
			Title:         s.Title,
			Location:      s.Location,
			Priority:      s.Priority.String(),
			Reward:        s.Reward,
			LegDistanceKm: s.LegDistanceKm,
			TravelMs:      ledger.EncodeMillis(s.TravelTime),
			WorkMs:        ledger.EncodeMillis(s.WorkTime),
			Score:         s.Score,
		})
	}
	return res
}
