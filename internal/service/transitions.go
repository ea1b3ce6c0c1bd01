package service

import (
	"context"
	"errors"
	"time"

	"fieldTracker/internal/lifecycle"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/models/task"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transitionFunc - чистый переход над прочитанной задачей и её событиями
type transitionFunc func(t *task.Task, events []task.LocationEvent, now time.Time) (task.Action, error)

func (s *TaskService) StartTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error) {
	return s.transition(ctx, id, actor, lifecycle.Start)
}

func (s *TaskService) PauseTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error) {
	return s.transition(ctx, id, actor, func(t *task.Task, _ []task.LocationEvent, now time.Time) (task.Action, error) {
		return lifecycle.Pause(t, now)
	})
}

func (s *TaskService) ResumeTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error) {
	return s.transition(ctx, id, actor, func(t *task.Task, _ []task.LocationEvent, now time.Time) (task.Action, error) {
		return s.machine.Resume(t, now)
	})
}

func (s *TaskService) CompleteTask(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error) {
	return s.transition(ctx, id, actor, s.machine.Complete)
}

// RescheduleTask возвращает перенесённую задачу в план
func (s *TaskService) RescheduleTask(ctx context.Context, id uuid.UUID, due time.Time, actor string) (*task.Task, error) {
	if due.IsZero() {
		return nil, NewValidationError("due_date", "дедлайн должен быть задан")
	}
	return s.transition(ctx, id, actor, func(t *task.Task, _ []task.LocationEvent, _ time.Time) (task.Action, error) {
		return lifecycle.Reschedule(t, due)
	})
}

// transition: блокировка, чтение, чистый переход, запись с проверкой версии,
// затем журнал в фоне и метрика
func (s *TaskService) transition(ctx context.Context, id uuid.UUID, actor string, apply transitionFunc) (*task.Task, error) {
	var (
		updated *task.Task
		action  task.Action
		now     time.Time
	)

	err := s.withTaskLock(ctx, id, func() error {
		t, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		events, err := s.repo.ListEvents(ctx, id)
		if err != nil {
			return err
		}

		now = s.clock.Now()
		action, err = apply(t, events, now)
		if err != nil {
			return err
		}

		t.UpdatedAt = &now
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		s.reject(id, err)
		return nil, toBusiness(err, ResourceTask, id.String())
	}

	s.metrics.Transition(string(action))
	s.appendLog(ctx, task.LogEntry{
		UUID:   uuid.New(),
		TaskID: id,
		Action: action,
		At:     now,
		Actor:  actor,
	})

	logger.Info("Service: Переход выполнен",
		zap.String("task_id", id.String()),
		zap.String("action", string(action)),
		zap.String("status", string(updated.Status)),
		zap.String("actor", actor))
	return updated, nil
}

func (s *TaskService) reject(id uuid.UUID, err error) {
	var reason string
	switch {
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		reason = "invalid_transition"
	case errors.Is(err, lifecycle.ErrLocationRequired):
		reason = "location_required"
	default:
		return
	}
	s.metrics.Rejection(reason)
	logger.Info("Service: Переход отклонён", zap.String("task_id", id.String()), zap.Error(err))
}

// appendLog пишет запись аудита в фоне, ошибка только логируется
func (s *TaskService) appendLog(ctx context.Context, entry task.LogEntry) {
	s.audit.Add(1)
	go func() {
		defer s.audit.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultAuditWait)
		defer cancel()

		if err := s.repo.AppendLog(ctx, entry); err != nil {
			logger.Warn("Service: Не удалось записать журнал",
				zap.String("task_id", entry.TaskID.String()),
				zap.String("action", string(entry.Action)),
				zap.Error(err))
		}
	}()
}
