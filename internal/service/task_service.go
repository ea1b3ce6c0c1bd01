package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fieldTracker/internal/clock"
	"fieldTracker/internal/geo"
	"fieldTracker/internal/geofence"
	"fieldTracker/internal/ledger"
	"fieldTracker/internal/lifecycle"
	"fieldTracker/internal/locking"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/metrics"
	"fieldTracker/internal/models/task"
	rep "fieldTracker/internal/repository"
	"fieldTracker/internal/route"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultLockTTL    = 5 * time.Second
	defaultAuditWait  = 5 * time.Second
	defaultRouteLimit = 4
	maxPageLimit      = 100
)

// Deps - зависимости сервиса, незаданные заменяются реализациями в памяти
type Deps struct {
	Locker     locking.Locker
	Detector   *geofence.Detector
	Sequencer  route.Sequencer
	Metrics    *metrics.Metrics
	Clock      clock.Clock
	LockTTL    time.Duration
	RouteLimit int
}

type TaskService struct {
	repo       TaskRepository
	locker     locking.Locker
	detector   *geofence.Detector
	sequencer  route.Sequencer
	metrics    *metrics.Metrics
	clock      clock.Clock
	lockTTL    time.Duration
	routeLimit int
	ledger     ledger.Ledger
	machine    lifecycle.Machine

	audit sync.WaitGroup
}

func NewTaskService(repo TaskRepository, deps Deps) (*TaskService, error) {
	s := &TaskService{
		repo:       repo,
		locker:     deps.Locker,
		detector:   deps.Detector,
		sequencer:  deps.Sequencer,
		metrics:    deps.Metrics,
		clock:      deps.Clock,
		lockTTL:    deps.LockTTL,
		routeLimit: deps.RouteLimit,
	}

	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.locker == nil {
		s.locker = locking.NewMemoryLocker()
	}
	if s.detector == nil {
		presence, err := geofence.NewMemoryPresence(10000)
		if err != nil {
			return nil, fmt.Errorf("хранилище присутствия: %w", err)
		}
		s.detector = geofence.NewDetector(presence)
	}
	if s.sequencer == nil {
		s.sequencer = route.NewGreedy(s.clock, nil)
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.routeLimit <= 0 {
		s.routeLimit = defaultRouteLimit
	}

	s.ledger = ledger.Ledger{OnAnomaly: s.durationAnomaly}
	s.machine = lifecycle.Machine{Ledger: s.ledger}

	return s, nil
}

func (s *TaskService) durationAnomaly(t *task.Task, raw time.Duration) {
	logger.Warn("Service: Отрицательная длительность приведена к нулю",
		zap.String("task_id", t.UUID.String()),
		zap.Duration("raw", raw))
	s.metrics.DurationAnomaly()
}

func (s *TaskService) HealthCheck(ctx context.Context) error {
	if err := s.repo.HealthCheck(ctx); err != nil {
		return fmt.Errorf("проверка здоровья сервиса: %w", err)
	}
	return nil
}

// Wait дожидается фоновых записей журнала
func (s *TaskService) Wait() {
	s.audit.Wait()
}

type LocationInput struct {
	GeofenceID        *uuid.UUID
	Center            *geo.Point
	RadiusMeters      int
	ArrivalRequired   bool
	DepartureRequired bool
}

type TaskInput struct {
	Title            string
	Description      string
	Priority         task.Priority
	WorkerID         string
	StartDate        time.Time
	EndDate          time.Time
	DueDate          time.Time
	EstimatedMinutes int
	Reward           float64
	// Planned или NotStarted, пустой - NotStarted
	Status    task.Status
	Locations []LocationInput
}

func (s *TaskService) CreateTask(ctx context.Context, in TaskInput) (*task.Task, error) {
	if err := s.validateTask(in); err != nil {
		return nil, err
	}

	locations := make([]task.TaskLocation, 0, len(in.Locations))
	for i, l := range in.Locations {
		loc, err := s.buildLocation(ctx, i, l)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}

	status := in.Status
	if status == "" {
		status = task.StatusNotStarted
	}

	t := &task.Task{
		UUID:             uuid.New(),
		Title:            in.Title,
		Description:      in.Description,
		Priority:         in.Priority,
		WorkerID:         in.WorkerID,
		StartDate:        in.StartDate,
		EndDate:          in.EndDate,
		DueDate:          in.DueDate,
		Status:           status,
		EstimatedMinutes: in.EstimatedMinutes,
		Reward:           in.Reward,
		Locations:        locations,
		CreatedAt:        s.clock.Now(),
	}

	if err := s.repo.Create(ctx, t); err != nil {
		logger.Error("Service: Не удалось создать задачу", err, zap.String("task_id", t.UUID.String()))
		if errors.Is(err, rep.ErrNotFound) {
			return nil, NewNotFound(ResourceGeofence, "")
		}
		return nil, toBusiness(fmt.Errorf("создание задачи: %w", err), ResourceTask, t.UUID.String())
	}

	logger.Info("Service: Задача создана",
		zap.String("task_id", t.UUID.String()),
		zap.String("worker_id", t.WorkerID),
		zap.Int("locations", len(t.Locations)))
	return t, nil
}

func (s *TaskService) validateTask(in TaskInput) error {
	switch {
	case in.Title == "":
		return NewValidationError("title", "не может быть пустым")
	case in.WorkerID == "":
		return NewValidationError("worker_id", "не может быть пустым")
	case in.Priority < task.PriorityLow || in.Priority > task.PriorityHigh:
		return NewValidationError("priority", "допустимо low, medium, high")
	case in.StartDate.IsZero() || in.EndDate.IsZero():
		return NewValidationError("start_date", "окно выполнения должно быть задано")
	case in.EndDate.Before(in.StartDate):
		return NewValidationError("end_date", "раньше start_date")
	case in.DueDate.IsZero():
		return NewValidationError("due_date", "дедлайн должен быть задан")
	case in.EstimatedMinutes < 0:
		return NewValidationError("estimated_minutes", "не может быть отрицательным")
	case in.Reward < 0:
		return NewValidationError("reward", "не может быть отрицательной")
	}
	if in.Status != "" && in.Status != task.StatusPlanned && in.Status != task.StatusNotStarted {
		return NewValidationError("status", "новая задача может быть только planned или not_started")
	}
	return nil
}

// buildLocation проверяет, что точка задана ровно одним способом и геометрия корректна
func (s *TaskService) buildLocation(ctx context.Context, i int, in LocationInput) (task.TaskLocation, error) {
	field := fmt.Sprintf("locations[%d]", i)
	loc := task.TaskLocation{
		UUID:              uuid.New(),
		ArrivalRequired:   in.ArrivalRequired,
		DepartureRequired: in.DepartureRequired,
	}

	switch {
	case in.GeofenceID != nil && in.Center != nil:
		return loc, NewValidationError(field, "нужна либо геозона, либо центр с радиусом")
	case in.GeofenceID != nil:
		g, err := s.repo.GetGeofence(ctx, *in.GeofenceID)
		if err != nil {
			return loc, toBusiness(err, ResourceGeofence, in.GeofenceID.String())
		}
		if !g.Active {
			return loc, NewValidationError(field, "геозона отключена")
		}
		id := *in.GeofenceID
		loc.GeofenceID = &id
	case in.Center != nil:
		circle := geo.Circle{Center: *in.Center, RadiusMeters: in.RadiusMeters}
		if err := circle.Validate(); err != nil {
			return loc, NewGeometryError(field, err)
		}
		loc.Center = *in.Center
		loc.RadiusMeters = in.RadiusMeters
	default:
		return loc, NewValidationError(field, "нужна либо геозона, либо центр с радиусом")
	}
	return loc, nil
}

func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, rep.ErrNotFound) {
			logger.Info("Service: Задача не найдена", zap.String("target_id", id.String()))
		}
		return nil, toBusiness(err, ResourceTask, id.String())
	}
	return t, nil
}

func (s *TaskService) ListTasks(ctx context.Context, status task.Status, workerID string, page, limit int) ([]*task.Task, error) {
	if page < 1 {
		return nil, NewValidationError("page", "должна быть не меньше 1")
	}
	if limit < 1 || limit > maxPageLimit {
		return nil, NewValidationError("limit", fmt.Sprintf("допустимо от 1 до %d", maxPageLimit))
	}

	filter := rep.TaskFilter{WorkerID: workerID, Page: page, Limit: limit}
	if status != "" {
		if !status.Valid() {
			return nil, NewValidationError("status", "неизвестный статус")
		}
		filter.Statuses = []task.Status{status}
	}

	tasks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	return tasks, nil
}

// UpdateTask меняет описательные поля. Статус меняется только переходами
func (s *TaskService) UpdateTask(ctx context.Context, id uuid.UUID, options ...task.TaskOption) (*task.Task, error) {
	var updated *task.Task
	err := s.withTaskLock(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if t.Status == task.StatusCompleted {
			return NewBusinessError(CodeInvalidTransition, "Завершённую задачу нельзя изменить",
				ToDetail("current_status", string(t.Status)))
		}

		for _, opt := range options {
			if opt != nil {
				opt(t)
			}
		}
		if t.EndDate.Before(t.StartDate) {
			return NewValidationError("end_date", "раньше start_date")
		}

		now := s.clock.Now()
		t.UpdatedAt = &now
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, toBusiness(err, ResourceTask, id.String())
	}

	logger.Info("Service: Задача обновлена", zap.String("task_id", id.String()), zap.Int("version", updated.Version))
	return updated, nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	err := s.withTaskLock(ctx, id, func() error {
		return s.repo.Delete(ctx, id)
	})
	if err != nil {
		return toBusiness(err, ResourceTask, id.String())
	}
	logger.Info("Service: Задача удалена", zap.String("task_id", id.String()))
	return nil
}

// Timing - длительности в миллисекундах, Elapsed в виде H:MM:SS
type Timing struct {
	ElapsedMs  int64  `json:"elapsed_ms"`
	Elapsed    string `json:"elapsed"`
	PausedMs   int64  `json:"paused_ms"`
	Efficiency *int   `json:"efficiency,omitempty"`
}

func (s *TaskService) TaskTiming(ctx context.Context, id uuid.UUID) (Timing, error) {
	t, err := s.GetTask(ctx, id)
	if err != nil {
		return Timing{}, err
	}

	now := s.clock.Now()
	elapsed := s.ledger.ElapsedActiveDuration(t, now)
	timing := Timing{
		ElapsedMs: ledger.EncodeMillis(elapsed),
		Elapsed:   ledger.FormatInterval(elapsed),
		PausedMs:  ledger.EncodeMillis(t.TotalPauseDuration),
	}
	if ratio, ok := s.ledger.EfficiencyRatio(t, now); ok {
		timing.Efficiency = &ratio
	}
	return timing, nil
}

func (s *TaskService) TaskEvents(ctx context.Context, id uuid.UUID) ([]task.LocationEvent, error) {
	events, err := s.repo.ListEvents(ctx, id)
	if err != nil {
		return nil, toBusiness(err, ResourceTask, id.String())
	}
	return events, nil
}

func (s *TaskService) TaskLog(ctx context.Context, id uuid.UUID) ([]task.LogEntry, error) {
	entries, err := s.repo.ListLogs(ctx, id)
	if err != nil {
		return nil, toBusiness(err, ResourceTask, id.String())
	}
	return entries, nil
}

// withTaskLock выполняет fn под блокировкой задачи
func (s *TaskService) withTaskLock(ctx context.Context, id uuid.UUID, fn func() error) error {
	lock, err := s.locker.Acquire(ctx, locking.TaskKey(id), s.lockTTL)
	if err != nil {
		logger.Warn("Service: Не удалось получить блокировку", zap.String("task_id", id.String()), zap.Error(err))
		return err
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Service: Ошибка снятия блокировки", zap.String("task_id", id.String()), zap.Error(err))
		}
	}()

	return fn()
}
