package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/ledger"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/models/task"
	repo "fieldTracker/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const foreignKeyViolation = "23503"

type Options struct {
	MaxConns    int32
	MinConns    int32
	IdleTimeout time.Duration
}

type Storage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string, opts Options) (*Storage, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		logger.Error("Repository: Ошибка загрузки конфига", err)
		return nil, fmt.Errorf("загрузка конфига: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnIdleTime = time.Minute * 5
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		config.MinConns = opts.MinConns
	}
	if opts.IdleTimeout > 0 {
		config.MaxConnIdleTime = opts.IdleTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		logger.Error("Repository: Ошибка создания пула", err)
		return nil, fmt.Errorf("создание пула: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		logger.Error("Repository: Неудачная проверка ping", err)
		return nil, fmt.Errorf("проверка соединения ping: %w", err)
	}

	logger.Info("Repository: Успешное создание подключения к PostgreSQL")
	return &Storage{pool: pool}, nil
}

func (s *Storage) Close() {
	s.pool.Close()
	logger.Info("Repository: Закрытие всех соединений PostgreSQL")
}

func (s *Storage) HealthCheck(ctx context.Context) error {
	err := s.pool.Ping(ctx)
	if err != nil {
		logger.Error("Repository: Неудачная проверка ping", err)
		return fmt.Errorf("проверка соединения ping: %w", err)
	}
	return nil
}

func warnSlow(start time.Time, limit time.Duration, op string) {
	if elapsed := time.Since(start); elapsed > limit {
		logger.Warn("Repository: Медленный запрос", zap.String("op", op), zap.Duration("ms", elapsed))
	}
}

const taskColumns = `uuid, title, description, priority, worker_id,
	start_date, end_date, due_date, original_due_date, forwarded_at,
	started_at, completed_at, last_pause_at, total_pause_ms,
	status, estimated_minutes, reward, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	t := &task.Task{}
	var (
		priority   int
		startDate  *time.Time
		endDate    *time.Time
		totalPause int64
	)

	err := row.Scan(
		&t.UUID,
		&t.Title,
		&t.Description,
		&priority,
		&t.WorkerID,
		&startDate,
		&endDate,
		&t.DueDate,
		&t.OriginalDueDate,
		&t.ForwardedAt,
		&t.StartedAt,
		&t.CompletedAt,
		&t.LastPauseAt,
		&totalPause,
		&t.Status,
		&t.EstimatedMinutes,
		&t.Reward,
		&t.CreatedAt,
		&t.UpdatedAt,
		&t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.Priority = task.Priority(priority)
	t.TotalPauseDuration = ledger.DecodeMillis(totalPause)
	if startDate != nil {
		t.StartDate = *startDate
	}
	if endDate != nil {
		t.EndDate = *endDate
	}
	return t, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Create сохраняет задачу вместе с её точками в одной транзакции
func (s *Storage) Create(ctx context.Context, taskToCreate *task.Task) error {
	start := time.Now()

	if taskToCreate.CreatedAt.IsZero() {
		taskToCreate.CreatedAt = time.Now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		logger.Error("Repository: Не удалось начать транзакцию", err)
		return fmt.Errorf("начало транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, 1)`

	_, err = tx.Exec(ctx, query,
		taskToCreate.UUID,
		taskToCreate.Title,
		taskToCreate.Description,
		int(taskToCreate.Priority),
		taskToCreate.WorkerID,
		nullableTime(taskToCreate.StartDate),
		nullableTime(taskToCreate.EndDate),
		taskToCreate.DueDate,
		taskToCreate.OriginalDueDate,
		taskToCreate.ForwardedAt,
		taskToCreate.StartedAt,
		taskToCreate.CompletedAt,
		taskToCreate.LastPauseAt,
		ledger.EncodeMillis(taskToCreate.TotalPauseDuration),
		string(taskToCreate.Status),
		taskToCreate.EstimatedMinutes,
		taskToCreate.Reward,
		taskToCreate.CreatedAt,
		taskToCreate.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось добавить задачу", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("добавление задачи: %w", err)
	}

	for i := range taskToCreate.Locations {
		l := &taskToCreate.Locations[i]
		l.TaskID = taskToCreate.UUID

		var lat, lng *float64
		var radius *int
		if l.GeofenceID == nil {
			lat, lng, radius = &l.Center.Lat, &l.Center.Lng, &l.RadiusMeters
		}

		_, err = tx.Exec(ctx, `INSERT INTO task_locations
				(uuid, task_id, position, geofence_id, lat, lng, radius_m, arrival_required, departure_required)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			l.UUID, l.TaskID, i, l.GeofenceID, lat, lng, radius, l.ArrivalRequired, l.DepartureRequired,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
				return fmt.Errorf("точка задачи ссылается на геозону: %w", repo.ErrNotFound)
			}
			logger.Error("Repository: Не удалось добавить точку задачи", err)
			return fmt.Errorf("добавление точки задачи: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		logger.Error("Repository: Не удалось зафиксировать транзакцию", err)
		return fmt.Errorf("фиксация транзакции: %w", err)
	}

	taskToCreate.Version = 1
	warnSlow(start, 50*time.Millisecond, "create")
	return nil
}

// Update записывает изменённые поля одним запросом с проверкой версии. Точки задачи не меняются
func (s *Storage) Update(ctx context.Context, taskToUpdate *task.Task) error {
	start := time.Now()

	query := `UPDATE tasks
			SET title = $1,
				description = $2,
				priority = $3,
				worker_id = $4,
				start_date = $5,
				end_date = $6,
				due_date = $7,
				original_due_date = $8,
				forwarded_at = $9,
				started_at = $10,
				completed_at = $11,
				last_pause_at = $12,
				total_pause_ms = $13,
				status = $14,
				estimated_minutes = $15,
				reward = $16,
				updated_at = COALESCE($17, NOW()),
				version = version + 1
			WHERE uuid = $18 AND version = $19
			RETURNING updated_at, version`

	err := s.pool.QueryRow(ctx, query,
		taskToUpdate.Title,
		taskToUpdate.Description,
		int(taskToUpdate.Priority),
		taskToUpdate.WorkerID,
		nullableTime(taskToUpdate.StartDate),
		nullableTime(taskToUpdate.EndDate),
		taskToUpdate.DueDate,
		taskToUpdate.OriginalDueDate,
		taskToUpdate.ForwardedAt,
		taskToUpdate.StartedAt,
		taskToUpdate.CompletedAt,
		taskToUpdate.LastPauseAt,
		ledger.EncodeMillis(taskToUpdate.TotalPauseDuration),
		string(taskToUpdate.Status),
		taskToUpdate.EstimatedMinutes,
		taskToUpdate.Reward,
		taskToUpdate.UpdatedAt,
		taskToUpdate.UUID,
		taskToUpdate.Version,
	).Scan(&taskToUpdate.UpdatedAt, &taskToUpdate.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.missingOrConflict(ctx, taskToUpdate)
		}
		logger.Error("Repository: Не удалось обновить задачу", err)
		return fmt.Errorf("обновление задачи: %w", err)
	}

	warnSlow(start, 100*time.Millisecond, "update")
	return nil
}

func (s *Storage) missingOrConflict(ctx context.Context, t *task.Task) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tasks WHERE uuid = $1)`, t.UUID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("проверка существования задачи: %w", err)
	}
	if !exists {
		return repo.ErrNotFound
	}

	logger.Warn("Repository: Конфликт версий при обновлении задачи",
		zap.String("task_id", t.UUID.String()),
		zap.Int("expected_version", t.Version))
	return repo.ErrVersionConflict
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	start := time.Now()

	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE uuid = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("получение задачи: %w", repo.ErrNotFound)
		}
		logger.Error("Repository: Не удалось получить задачу", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("получение задачи: %w", err)
	}

	if err := s.attachLocations(ctx, []*task.Task{t}); err != nil {
		return nil, err
	}

	warnSlow(start, 100*time.Millisecond, "get")
	return t, nil
}

// удаление каскадом забирает точки, события и журнал
func (s *Storage) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()

	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE uuid = $1`, id)
	if err != nil {
		logger.Error("Repository: Удаление задачи", err, zap.Duration("ms", time.Since(start)))
		return fmt.Errorf("удаление задачи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}

	warnSlow(start, 100*time.Millisecond, "delete")
	return nil
}

func (s *Storage) List(ctx context.Context, filter repo.TaskFilter) ([]*task.Task, error) {
	start := time.Now()

	var statuses []string
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	query := `SELECT ` + taskColumns + ` FROM tasks
			WHERE ($1::text[] IS NULL OR status = ANY($1))
				AND ($2::text = '' OR worker_id = $2)
			ORDER BY created_at, uuid
			LIMIT $3 OFFSET $4`

	tasks, err := s.queryTasks(ctx, query, statuses, filter.WorkerID, limit, filter.Offset())
	if err != nil {
		return nil, err
	}

	warnSlow(start, 50*time.Millisecond+10*time.Millisecond*time.Duration(filter.Limit), "list")
	return tasks, nil
}

func (s *Storage) ListDue(ctx context.Context, q repo.DueQuery) ([]*task.Task, error) {
	start := time.Now()

	var limit any
	if q.Limit > 0 {
		limit = q.Limit
	}

	query := `SELECT ` + taskColumns + ` FROM tasks
			WHERE status = $1 AND due_date < $2 AND uuid > $3
			ORDER BY uuid
			LIMIT $4`

	tasks, err := s.queryTasks(ctx, query, string(q.Status), q.Before, q.After, limit)
	if err != nil {
		return nil, err
	}

	warnSlow(start, 50*time.Millisecond+10*time.Millisecond*time.Duration(q.Limit), "list_due")
	return tasks, nil
}

func (s *Storage) queryTasks(ctx context.Context, query string, args ...any) ([]*task.Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		logger.Error("Repository: Не удалось получить задачи", err)
		return nil, fmt.Errorf("получение задач: %w", err)
	}
	defer rows.Close()

	tasks := []*task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			logger.Error("Repository: Ошибка сканирования задачи", err)
			return nil, fmt.Errorf("сканирование задачи: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Repository: Ошибка итерации по строкам", err)
		return nil, fmt.Errorf("итерация по строкам: %w", err)
	}

	if err := s.attachLocations(ctx, tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Storage) attachLocations(ctx context.Context, tasks []*task.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(tasks))
	byID := make(map[uuid.UUID]*task.Task, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.UUID)
		byID[t.UUID] = t
	}

	rows, err := s.pool.Query(ctx, `SELECT uuid, task_id, geofence_id, lat, lng, radius_m, arrival_required, departure_required
			FROM task_locations
			WHERE task_id = ANY($1)
			ORDER BY task_id, position`, ids)
	if err != nil {
		logger.Error("Repository: Не удалось получить точки задач", err)
		return fmt.Errorf("получение точек задач: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l        task.TaskLocation
			lat, lng *float64
			radius   *int
		)
		if err := rows.Scan(&l.UUID, &l.TaskID, &l.GeofenceID, &lat, &lng, &radius, &l.ArrivalRequired, &l.DepartureRequired); err != nil {
			return fmt.Errorf("сканирование точки задачи: %w", err)
		}
		if lat != nil && lng != nil {
			l.Center = geo.Point{Lat: *lat, Lng: *lng}
		}
		if radius != nil {
			l.RadiusMeters = *radius
		}

		t := byID[l.TaskID]
		t.Locations = append(t.Locations, l)
	}
	return rows.Err()
}
