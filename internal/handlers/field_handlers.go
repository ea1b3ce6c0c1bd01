package handlers

import (
	"net/http"
	"time"

	"fieldTracker/internal/handlers/dto"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// PostPosition - замер позиции исполнителя
func (s *TaskHandler) PostPosition(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	workerID := chi.URLParam(r, "worker")
	var request dto.PositionRequest
	if !decodeBody(w, r, &request) {
		return
	}

	report, err := s.TaskService.ReportPosition(r.Context(), workerID, request.ToPoint(), request.SampledAt())
	if err != nil {
		handleServiceError(w, err, "не удалось обработать позицию")
		return
	}

	logger.Info("HTTP_OUT: Позиция обработана",
		zap.String("worker_id", workerID),
		zap.Int("events", len(report.Events)),
		zap.Int("transitions", len(report.Transitions)),
		zap.Duration("ms", time.Since(start)))

	responseWithJSON(w, http.StatusOK,
		toPayload("checks", report.Checks),
		toPayload("events", report.Events),
		toPayload("transitions", report.Transitions),
	)
}

func (s *TaskHandler) PostRoute(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	workerID := chi.URLParam(r, "worker")
	var request dto.RouteRequest
	if !decodeBody(w, r, &request) {
		return
	}

	plan, err := s.TaskService.PlanRoute(r.Context(), workerID, request.Origin.ToPoint())
	if err != nil {
		handleServiceError(w, err, "не удалось построить маршрут")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("route", dto.FromPlan(plan)))
}

func (s *TaskHandler) PostRoutes(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.RoutesRequest
	if !decodeBody(w, r, &request) {
		return
	}

	requests := make([]service.RouteRequest, len(request.Requests))
	for i, req := range request.Requests {
		requests[i] = service.RouteRequest{WorkerID: req.WorkerID, Origin: req.Origin.ToPoint()}
	}

	plans, err := s.TaskService.PlanRoutes(r.Context(), requests)
	if err != nil {
		handleServiceError(w, err, "не удалось построить маршруты")
		return
	}

	routes := make(map[string]dto.PlanResponse, len(plans))
	for i, p := range plans {
		routes[requests[i].WorkerID] = dto.FromPlan(p)
	}

	logger.Info("HTTP_OUT: Маршруты построены",
		zap.Int("workers", len(plans)),
		zap.Duration("ms", time.Since(start)))

	responseWithJSON(w, http.StatusOK, toPayload("routes", routes))
}

// PostForward запускает один проход переноса просроченных задач
func (s *TaskHandler) PostForward(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	if s.Forwarder == nil {
		responseWithError(w, http.StatusServiceUnavailable, "перенос задач не настроен")
		return
	}

	report, err := s.Forwarder.Run(r.Context())
	if err != nil {
		logger.Warn("HTTP: Перенос завершён с ошибками", zap.Error(err))
		responseWithJSON(w, http.StatusOK,
			toPayload("report", report),
			toPayload("errors", err.Error()),
		)
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("report", report))
}
