package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"fieldTracker/internal/clock"
	"fieldTracker/internal/handlers/dto"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/models/task"
	"fieldTracker/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	serviceName     = "field-tracker"
	defaultPage     = 1
	defaultPageSize = 20
)

type TaskHandler struct {
	TaskService TaskService
	Forwarder   Forwarder
	Clock       clock.Clock
}

func NewTaskHandler(taskService TaskService, forwarder Forwarder, clk clock.Clock) *TaskHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &TaskHandler{
		TaskService: taskService,
		Forwarder:   forwarder,
		Clock:       clk,
	}
}

func (s *TaskHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP: Health check")

	if err := s.TaskService.HealthCheck(r.Context()); err != nil {
		logger.Error("HTTP: Сервис недоступен", err)
		responseWithJSON(w, http.StatusServiceUnavailable,
			toPayload("status", "unavailable"),
			toPayload("service", serviceName),
		)
		return
	}
	responseWithJSON(w, http.StatusOK,
		toPayload("status", "ok"),
		toPayload("service", serviceName),
	)
}

func (s *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	query := r.URL.Query()
	page, ok := intParam(w, query.Get("page"), "page", defaultPage)
	if !ok {
		return
	}
	limit, ok := intParam(w, query.Get("limit"), "limit", defaultPageSize)
	if !ok {
		return
	}

	tasks, err := s.TaskService.ListTasks(r.Context(), task.Status(query.Get("status")), query.Get("worker_id"), page, limit)
	if err != nil {
		handleServiceError(w, err, "не удалось получить задачи")
		return
	}

	logger.Info("HTTP_OUT: Задачи получены",
		zap.Int("count", len(tasks)),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK,
		toPayload("tasks", dto.FromTaskList(tasks, s.Clock.Now())),
		toPayload("page", page),
		toPayload("limit", limit),
	)
}

func (s *TaskHandler) PostTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.CreateTaskRequest
	if !decodeBody(w, r, &request) {
		return
	}

	priority, _ := task.ParsePriority(request.Priority)
	in := service.TaskInput{
		Title:            request.Title,
		Description:      request.Description,
		Priority:         priority,
		WorkerID:         request.WorkerID,
		StartDate:        request.StartDate,
		EndDate:          request.EndDate,
		DueDate:          request.DueDate,
		EstimatedMinutes: request.EstimatedMinutes,
		Reward:           request.Reward,
		Status:           task.Status(request.Status),
	}
	for _, l := range request.Locations {
		loc := service.LocationInput{
			GeofenceID:        l.GeofenceID,
			RadiusMeters:      l.RadiusMeters,
			ArrivalRequired:   l.ArrivalRequired,
			DepartureRequired: l.DepartureRequired,
		}
		if l.Center != nil {
			center := l.Center.ToPoint()
			loc.Center = &center
		}
		in.Locations = append(in.Locations, loc)
	}

	logger.Info("HTTP: Вызов сервиса создания задачи")
	created, err := s.TaskService.CreateTask(r.Context(), in)
	if err != nil {
		handleServiceError(w, err, "не удалось создать задачу")
		return
	}

	logger.Info("HTTP_OUT: Задача создана",
		zap.String("task_id", created.UUID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithJSON(w, http.StatusCreated, toPayload("task", dto.FromTask(created, s.Clock.Now())))
}

func (s *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	t, err := s.TaskService.GetTask(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "не удалось получить задачу")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(t, s.Clock.Now())))
}

func (s *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	var request dto.UpdateTaskRequest
	if !decodeBody(w, r, &request) {
		return
	}

	logger.Info("HTTP: Запрос к сервису обновления задачи")
	updated, err := s.TaskService.UpdateTask(r.Context(), id, request.Options()...)
	if err != nil {
		handleServiceError(w, err, "не удалось обновить задачу")
		return
	}

	logger.Info("HTTP_OUT: Задача обновлена",
		zap.String("task_id", id.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusOK))

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated, s.Clock.Now())))
}

func (s *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if err := s.TaskService.DeleteTask(r.Context(), id); err != nil {
		handleServiceError(w, err, "не удалось удалить задачу")
		return
	}

	logger.Info("HTTP_OUT: Задача удалена",
		zap.String("task_id", id.String()),
		zap.Int("http_status", http.StatusNoContent))

	w.WriteHeader(http.StatusNoContent)
}

type transitionCall func(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error)

func (s *TaskHandler) StartTask(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, string(task.ActionStart), s.TaskService.StartTask)
}

func (s *TaskHandler) PauseTask(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, string(task.ActionPause), s.TaskService.PauseTask)
}

func (s *TaskHandler) ResumeTask(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, string(task.ActionResume), s.TaskService.ResumeTask)
}

func (s *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	s.handleTransition(w, r, string(task.ActionCompleted), s.TaskService.CompleteTask)
}

func (s *TaskHandler) RescheduleTask(w http.ResponseWriter, r *http.Request) {
	var request dto.RescheduleRequest
	if !decodeBody(w, r, &request) {
		return
	}
	s.handleTransition(w, r, string(task.ActionRescheduled), func(ctx context.Context, id uuid.UUID, actor string) (*task.Task, error) {
		return s.TaskService.RescheduleTask(ctx, id, request.DueDate, actor)
	})
}

func (s *TaskHandler) handleTransition(w http.ResponseWriter, r *http.Request, action string, call transitionCall) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	actor := actorFrom(r)
	updated, err := call(r.Context(), id, actor)
	if err != nil {
		handleServiceError(w, err, "не удалось изменить статус задачи")
		return
	}

	logger.Info("HTTP_OUT: Статус задачи изменён",
		zap.String("task_id", id.String()),
		zap.String("action", action),
		zap.String("actor", actor),
		zap.String("status", string(updated.Status)),
		zap.Duration("ms", time.Since(start)))

	responseWithJSON(w, http.StatusOK, toPayload("task", dto.FromTask(updated, s.Clock.Now())))
}

func (s *TaskHandler) GetTiming(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	timing, err := s.TaskService.TaskTiming(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "не удалось посчитать время задачи")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("timing", timing))
}

func (s *TaskHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	events, err := s.TaskService.TaskEvents(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "не удалось получить события задачи")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("events", events))
}

func (s *TaskHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	entries, err := s.TaskService.TaskLog(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "не удалось получить журнал задачи")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("log", entries))
}

func intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("HTTP: Ошибка получения параметра",
			zap.String("query", name),
			zap.Error(err))
		responseWithError(w, http.StatusBadRequest, "не удалось получить значение "+name+": "+err.Error())
		return 0, false
	}
	return v, true
}
