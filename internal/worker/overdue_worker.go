package worker

import (
	"context"
	"fmt"
	"time"

	"fieldTracker/internal/clock"
	"fieldTracker/internal/lifecycle"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/metrics"
	"fieldTracker/internal/models/task"
	rep "fieldTracker/internal/repository"
	"fieldTracker/internal/service"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultInterval  = 5 * time.Minute
	defaultBatchSize = 100
)

type Options struct {
	Interval  time.Duration
	BatchSize int
	Location  *time.Location
	Clock     clock.Clock
	Metrics   *metrics.Metrics
}

// Report - итог одного прохода
type Report struct {
	Scanned   int           `json:"scanned"`
	Forwarded int           `json:"forwarded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"-"`
}

// OverdueForwarder переносит просроченные запланированные задачи в ожидание
type OverdueForwarder struct {
	repo      service.TaskRepository
	interval  time.Duration
	batchSize int
	location  *time.Location
	clock     clock.Clock
	metrics   *metrics.Metrics
}

func NewOverdueForwarder(repo service.TaskRepository, opts Options) *OverdueForwarder {
	w := &OverdueForwarder{
		repo:      repo,
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		location:  opts.Location,
		clock:     opts.Clock,
		metrics:   opts.Metrics,
	}
	if w.interval <= 0 {
		w.interval = defaultInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.location == nil {
		w.location = time.UTC
	}
	if w.clock == nil {
		w.clock = clock.System{}
	}
	return w
}

func (w *OverdueForwarder) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logger.Info("Worker: Фоновый перенос просроченных задач", zap.Time("started_at", w.clock.Now()))
			if _, err := w.Run(ctx); err != nil {
				logger.Warn("Worker: Проход завершён с ошибками", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Info("Worker: Фоновый перенос останавливается")
			return
		}
	}
}

// Run - один проход по всем просроченным задачам. Ошибка одной задачи не прерывает проход,
// все ошибки собираются и возвращаются вместе с отчётом
func (w *OverdueForwarder) Run(ctx context.Context) (Report, error) {
	started := time.Now()
	now := w.clock.Now()
	cutoff := lifecycle.StartOfDay(now, w.location)

	var (
		report Report
		errs   error
		after  uuid.UUID
	)

	for {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		page, err := w.repo.ListDue(ctx, rep.DueQuery{
			Status: task.StatusPlanned,
			Before: cutoff,
			After:  after,
			Limit:  w.batchSize,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("получение просроченных задач: %w", err))
			break
		}

		for _, t := range page {
			report.Scanned++
			after = t.UUID

			forwarded, err := w.forward(ctx, t, now)
			if err != nil {
				report.Failed++
				errs = multierr.Append(errs, err)
				continue
			}
			if forwarded {
				report.Forwarded++
			}
		}

		if len(page) < w.batchSize {
			break
		}
	}

	report.Duration = time.Since(started)
	w.metrics.Forwarded(report.Forwarded)
	w.metrics.ForwardFailures(report.Failed)

	logger.Info(
		"Worker: Завершение переноса задач",
		zap.Duration("ms", report.Duration),
		zap.Int("checked", report.Scanned),
		zap.Int("forwarded", report.Forwarded),
		zap.Int("failed", report.Failed),
	)
	return report, errs
}

// forward пишет статус и оба дедлайна одним обновлением с проверкой версии
func (w *OverdueForwarder) forward(ctx context.Context, t *task.Task, now time.Time) (bool, error) {
	if !lifecycle.Forward(t, now, w.location) {
		return false, nil
	}
	t.UpdatedAt = &now

	if err := w.repo.Update(ctx, t); err != nil {
		logger.Warn("Worker: Ошибка переноса задачи",
			zap.String("task_id", t.UUID.String()),
			zap.Error(err))
		return false, fmt.Errorf("перенос задачи %s: %w", t.UUID, err)
	}
	return true, nil
}
