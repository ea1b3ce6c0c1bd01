package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldTracker/internal/geo"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/models/task"
	repo "fieldTracker/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func (s *Storage) CreateGeofence(ctx context.Context, g *task.Geofence) error {
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, `INSERT INTO geofences (uuid, name, lat, lng, radius_m, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		g.UUID, g.Name, g.Center.Lat, g.Center.Lng, g.RadiusMeters, g.Active, g.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repo.ErrAlreadyExists
		}
		logger.Error("Repository: Не удалось добавить геозону", err)
		return fmt.Errorf("добавление геозоны: %w", err)
	}
	return nil
}

func (s *Storage) GetGeofence(ctx context.Context, id uuid.UUID) (*task.Geofence, error) {
	g, err := scanGeofence(s.pool.QueryRow(ctx, `SELECT uuid, name, lat, lng, radius_m, active, created_at, updated_at
			FROM geofences WHERE uuid = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("получение геозоны: %w", repo.ErrNotFound)
		}
		logger.Error("Repository: Не удалось получить геозону", err)
		return nil, fmt.Errorf("получение геозоны: %w", err)
	}
	return g, nil
}

func (s *Storage) UpdateGeofence(ctx context.Context, g *task.Geofence) error {
	err := s.pool.QueryRow(ctx, `UPDATE geofences
			SET name = $1, lat = $2, lng = $3, radius_m = $4, active = $5, updated_at = COALESCE($6, NOW())
			WHERE uuid = $7
			RETURNING created_at, updated_at`,
		g.Name, g.Center.Lat, g.Center.Lng, g.RadiusMeters, g.Active, g.UpdatedAt, g.UUID,
	).Scan(&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось обновить геозону", err)
		return fmt.Errorf("обновление геозоны: %w", err)
	}
	return nil
}

func (s *Storage) ListGeofences(ctx context.Context) ([]task.Geofence, error) {
	rows, err := s.pool.Query(ctx, `SELECT uuid, name, lat, lng, radius_m, active, created_at, updated_at
			FROM geofences ORDER BY created_at, uuid`)
	if err != nil {
		logger.Error("Repository: Не удалось получить геозоны", err)
		return nil, fmt.Errorf("получение геозон: %w", err)
	}
	defer rows.Close()

	res := []task.Geofence{}
	for rows.Next() {
		g, err := scanGeofence(rows)
		if err != nil {
			return nil, fmt.Errorf("сканирование геозоны: %w", err)
		}
		res = append(res, *g)
	}
	return res, rows.Err()
}

func scanGeofence(row rowScanner) (*task.Geofence, error) {
	g := &task.Geofence{}
	err := row.Scan(&g.UUID, &g.Name, &g.Center.Lat, &g.Center.Lng, &g.RadiusMeters, &g.Active, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (s *Storage) AppendEvent(ctx context.Context, e task.LocationEvent) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO location_events
			(uuid, task_id, task_location_id, worker_id, kind, lat, lng, distance_m, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.UUID, e.TaskID, e.TaskLocationID, e.WorkerID, string(e.Kind), e.Position.Lat, e.Position.Lng, e.DistanceMeters, e.OccurredAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось записать событие геозоны", err)
		return fmt.Errorf("запись события: %w", err)
	}
	return nil
}

func (s *Storage) ListEvents(ctx context.Context, taskID uuid.UUID) ([]task.LocationEvent, error) {
	rows, err := s.pool.Query(ctx, `SELECT uuid, task_id, task_location_id, worker_id, kind, lat, lng, distance_m, occurred_at
			FROM location_events
			WHERE task_id = $1
			ORDER BY occurred_at, uuid`, taskID)
	if err != nil {
		logger.Error("Repository: Не удалось получить события", err)
		return nil, fmt.Errorf("получение событий: %w", err)
	}
	defer rows.Close()

	res := []task.LocationEvent{}
	for rows.Next() {
		var (
			e        task.LocationEvent
			lat, lng float64
		)
		if err := rows.Scan(&e.UUID, &e.TaskID, &e.TaskLocationID, &e.WorkerID, &e.Kind, &lat, &lng, &e.DistanceMeters, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("сканирование события: %w", err)
		}
		e.Position = geo.Point{Lat: lat, Lng: lng}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s *Storage) AppendLog(ctx context.Context, entry task.LogEntry) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO task_logs (uuid, task_id, action, occurred_at, actor)
			VALUES ($1, $2, $3, $4, $5)`,
		entry.UUID, entry.TaskID, string(entry.Action), entry.At, entry.Actor,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return repo.ErrNotFound
		}
		logger.Error("Repository: Не удалось записать журнал", err)
		return fmt.Errorf("запись журнала: %w", err)
	}
	return nil
}

func (s *Storage) ListLogs(ctx context.Context, taskID uuid.UUID) ([]task.LogEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT uuid, task_id, action, occurred_at, actor
			FROM task_logs
			WHERE task_id = $1
			ORDER BY occurred_at, uuid`, taskID)
	if err != nil {
		logger.Error("Repository: Не удалось получить журнал", err)
		return nil, fmt.Errorf("получение журнала: %w", err)
	}
	defer rows.Close()

	res := []task.LogEntry{}
	for rows.Next() {
		var entry task.LogEntry
		if err := rows.Scan(&entry.UUID, &entry.TaskID, &entry.Action, &entry.At, &entry.Actor); err != nil {
			return nil, fmt.Errorf("сканирование журнала: %w", err)
		}
		res = append(res, entry)
	}
	return res, rows.Err()
}
