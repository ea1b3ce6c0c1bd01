package task

import (
	"time"

	"fieldTracker/internal/geo"

	"github.com/google/uuid"
)

type Task struct {
	UUID        uuid.UUID `json:"uuid" db:"uuid"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Priority    Priority  `json:"priority" db:"priority"`
	WorkerID    string    `json:"worker_id" db:"worker_id"`

	// окно выполнения и дедлайн
	StartDate       time.Time  `json:"start_date" db:"start_date"`
	EndDate         time.Time  `json:"end_date" db:"end_date"`
	DueDate         time.Time  `json:"due_date" db:"due_date"`
	OriginalDueDate *time.Time `json:"original_due_date,omitempty" db:"original_due_date"`
	ForwardedAt     *time.Time `json:"forwarded_at,omitempty" db:"forwarded_at"`

	StartedAt          *time.Time    `json:"started_at,omitempty" db:"started_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty" db:"completed_at"`
	LastPauseAt        *time.Time    `json:"last_pause_at,omitempty" db:"last_pause_at"`
	TotalPauseDuration time.Duration `json:"total_pause_duration" db:"total_pause_ms"`

	Status           Status         `json:"status" db:"status"`
	EstimatedMinutes int            `json:"estimated_minutes" db:"estimated_minutes"`
	Reward           float64        `json:"reward" db:"reward"`
	Locations        []TaskLocation `json:"locations,omitempty"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at,omitempty"`
	Version   int        `db:"version" json:"version"`
}

type Status string

const StatusPlanned Status = "planned"
const StatusNotStarted Status = "not_started"
const StatusInProgress Status = "in_progress"
const StatusPaused Status = "paused"
const StatusCompleted Status = "completed"
const StatusPending Status = "pending"

func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusNotStarted, StatusInProgress, StatusPaused, StatusCompleted, StatusPending:
		return true
	}
	return false
}

// статусы, с которыми исполнитель ещё может работать
var OpenStatuses = []Status{StatusPlanned, StatusNotStarted, StatusPending, StatusInProgress, StatusPaused}

type Priority int

const (
	PriorityLow    Priority = 1
	PriorityMedium Priority = 2
	PriorityHigh   Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

func ParsePriority(s string) (Priority, bool) {
	switch s {
	case "low", "1":
		return PriorityLow, true
	case "medium", "2":
		return PriorityMedium, true
	case "high", "3":
		return PriorityHigh, true
	}
	return 0, false
}

// TaskLocation - либо ссылка на Geofence, либо своя окружность
type TaskLocation struct {
	UUID              uuid.UUID  `json:"uuid" db:"uuid"`
	TaskID            uuid.UUID  `json:"task_id" db:"task_id"`
	GeofenceID        *uuid.UUID `json:"geofence_id,omitempty" db:"geofence_id"`
	Center            geo.Point  `json:"center" db:"-"`
	RadiusMeters      int        `json:"radius_meters" db:"radius_m"`
	ArrivalRequired   bool       `json:"arrival_required" db:"arrival_required"`
	DepartureRequired bool       `json:"departure_required" db:"departure_required"`
}

func (l TaskLocation) Inline() geo.Circle {
	return geo.Circle{Center: l.Center, RadiusMeters: l.RadiusMeters}
}

type Geofence struct {
	UUID         uuid.UUID  `json:"uuid" db:"uuid"`
	Name         string     `json:"name" db:"name"`
	Center       geo.Point  `json:"center" db:"-"`
	RadiusMeters int        `json:"radius_meters" db:"radius_m"`
	Active       bool       `json:"active" db:"active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

func (g Geofence) Circle() geo.Circle {
	return geo.Circle{Center: g.Center, RadiusMeters: g.RadiusMeters}
}

type EventKind string

const EventArrival EventKind = "arrival"
const EventDeparture EventKind = "departure"

// LocationEvent после записи не изменяется
type LocationEvent struct {
	UUID           uuid.UUID `json:"uuid" db:"uuid"`
	TaskID         uuid.UUID `json:"task_id" db:"task_id"`
	TaskLocationID uuid.UUID `json:"task_location_id" db:"task_location_id"`
	WorkerID       string    `json:"worker_id" db:"worker_id"`
	Kind           EventKind `json:"kind" db:"kind"`
	Position       geo.Point `json:"position" db:"-"`
	DistanceMeters float64   `json:"distance_meters" db:"distance_m"`
	OccurredAt     time.Time `json:"occurred_at" db:"occurred_at"`
}

type Action string

const ActionStart Action = "start"
const ActionResume Action = "resume"
const ActionPause Action = "pause"
const ActionCompleted Action = "completed"
const ActionRescheduled Action = "rescheduled"

// запись аудита, только на запись
type LogEntry struct {
	UUID   uuid.UUID `json:"uuid" db:"uuid"`
	TaskID uuid.UUID `json:"task_id" db:"task_id"`
	Action Action    `json:"action" db:"action"`
	At     time.Time `json:"at" db:"occurred_at"`
	Actor  string    `json:"actor" db:"actor"`
}

// Clone - глубокая копия, хранилища отдают только копии
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.OriginalDueDate = cloneTime(t.OriginalDueDate)
	c.ForwardedAt = cloneTime(t.ForwardedAt)
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.LastPauseAt = cloneTime(t.LastPauseAt)
	c.UpdatedAt = cloneTime(t.UpdatedAt)
	if t.Locations != nil {
		c.Locations = make([]TaskLocation, len(t.Locations))
		for i, l := range t.Locations {
			c.Locations[i] = l
			if l.GeofenceID != nil {
				id := *l.GeofenceID
				c.Locations[i].GeofenceID = &id
			}
		}
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
