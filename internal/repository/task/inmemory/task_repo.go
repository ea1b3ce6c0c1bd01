package inmemory

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"fieldTracker/internal/logger"
	"fieldTracker/internal/models/task"
	repo "fieldTracker/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Storage хранит копии записей, наружу тоже отдаются только копии
type Storage struct {
	mtx *sync.RWMutex

	tasks map[uuid.UUID]*task.Task
	ids   []uuid.UUID

	geofences   map[uuid.UUID]task.Geofence
	geofenceIDs []uuid.UUID

	events map[uuid.UUID][]task.LocationEvent
	logs   map[uuid.UUID][]task.LogEntry
}

func NewStorage() *Storage {
	return &Storage{
		mtx:       &sync.RWMutex{},
		tasks:     make(map[uuid.UUID]*task.Task),
		ids:       []uuid.UUID{},
		geofences: make(map[uuid.UUID]task.Geofence),
		events:    make(map[uuid.UUID][]task.LocationEvent),
		logs:      make(map[uuid.UUID][]task.LogEntry),
	}
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	logger.Info("Repository: Соединение стабильно")
	return nil
}

func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.tasks[taskToCreate.UUID]; ok {
		return repo.ErrAlreadyExists
	}

	if taskToCreate.CreatedAt.IsZero() {
		taskToCreate.CreatedAt = time.Now()
	}
	taskToCreate.Version = 1
	for i := range taskToCreate.Locations {
		taskToCreate.Locations[i].TaskID = taskToCreate.UUID
	}

	s.tasks[taskToCreate.UUID] = taskToCreate.Clone()
	s.ids = append(s.ids, taskToCreate.UUID)
	return nil
}

// Update сохраняет задачу, если её версия совпадает с хранимой. Точки задачи не меняются
func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.tasks[taskToUpdate.UUID]
	if !ok {
		return repo.ErrNotFound
	}
	if existed.Version != taskToUpdate.Version {
		logger.Warn("Repository: Конфликт версий при обновлении задачи",
			zap.String("task_id", taskToUpdate.UUID.String()),
			zap.Int("expected_version", taskToUpdate.Version))
		return repo.ErrVersionConflict
	}

	if taskToUpdate.UpdatedAt == nil {
		now := time.Now()
		taskToUpdate.UpdatedAt = &now
	}
	taskToUpdate.Version++

	stored := taskToUpdate.Clone()
	stored.Locations = existed.Locations
	s.tasks[taskToUpdate.UUID] = stored

	return nil
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	taskToGet, ok := s.tasks[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return taskToGet.Clone(), nil
}

// удаление вместе с точками, событиями и журналом
func (s *Storage) Delete(ctx context.Context, id uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return repo.ErrNotFound
	}

	delete(s.tasks, id)
	delete(s.events, id)
	delete(s.logs, id)
	s.ids = slices.DeleteFunc(s.ids, func(v uuid.UUID) bool { return v == id })

	return nil
}

func (s *Storage) List(ctx context.Context, filter repo.TaskFilter) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*task.Task{}
	skip := filter.Offset()

	for _, id := range s.ids {
		if filter.Limit > 0 && len(res) >= filter.Limit {
			break
		}

		t := s.tasks[id]
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		if filter.WorkerID != "" && t.WorkerID != filter.WorkerID {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}

		res = append(res, t.Clone())
	}

	return res, nil
}

func (s *Storage) ListDue(ctx context.Context, q repo.DueQuery) ([]*task.Task, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := []*task.Task{}
	for _, t := range s.tasks {
		if t.Status != q.Status || !t.DueDate.Before(q.Before) {
			continue
		}
		if bytes.Compare(t.UUID[:], q.After[:]) <= 0 {
			continue
		}
		res = append(res, t)
	}

	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].UUID[:], res[j].UUID[:]) < 0
	})
	if q.Limit > 0 && len(res) > q.Limit {
		res = res[:q.Limit]
	}

	for i, t := range res {
		res[i] = t.Clone()
	}
	return res, nil
}

func (s *Storage) CreateGeofence(ctx context.Context, g *task.Geofence) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.geofences[g.UUID]; ok {
		return repo.ErrAlreadyExists
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	s.geofences[g.UUID] = *g
	s.geofenceIDs = append(s.geofenceIDs, g.UUID)
	return nil
}

func (s *Storage) GetGeofence(ctx context.Context, id uuid.UUID) (*task.Geofence, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	g, ok := s.geofences[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &g, nil
}

func (s *Storage) UpdateGeofence(ctx context.Context, g *task.Geofence) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	existed, ok := s.geofences[g.UUID]
	if !ok {
		return repo.ErrNotFound
	}
	if g.UpdatedAt == nil {
		now := time.Now()
		g.UpdatedAt = &now
	}
	g.CreatedAt = existed.CreatedAt

	s.geofences[g.UUID] = *g
	return nil
}

func (s *Storage) ListGeofences(ctx context.Context) ([]task.Geofence, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := make([]task.Geofence, 0, len(s.geofenceIDs))
	for _, id := range s.geofenceIDs {
		res = append(res, s.geofences[id])
	}
	return res, nil
}

func (s *Storage) AppendEvent(ctx context.Context, e task.LocationEvent) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.tasks[e.TaskID]; !ok {
		return repo.ErrNotFound
	}
	s.events[e.TaskID] = append(s.events[e.TaskID], e)
	return nil
}

func (s *Storage) ListEvents(ctx context.Context, taskID uuid.UUID) ([]task.LocationEvent, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := slices.Clone(s.events[taskID])
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].OccurredAt.Before(res[j].OccurredAt)
	})
	if res == nil {
		res = []task.LocationEvent{}
	}
	return res, nil
}

func (s *Storage) AppendLog(ctx context.Context, entry task.LogEntry) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.tasks[entry.TaskID]; !ok {
		return repo.ErrNotFound
	}
	s.logs[entry.TaskID] = append(s.logs[entry.TaskID], entry)
	return nil
}

func (s *Storage) ListLogs(ctx context.Context, taskID uuid.UUID) ([]task.LogEntry, error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()

	res := slices.Clone(s.logs[taskID])
	if res == nil {
		res = []task.LogEntry{}
	}
	return res, nil
}
