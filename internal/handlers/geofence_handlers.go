package handlers

import (
	"net/http"
	"time"

	"fieldTracker/internal/handlers/dto"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/service"

	"go.uber.org/zap"
)

func toGeofenceInput(request dto.GeofenceRequest) service.GeofenceInput {
	return service.GeofenceInput{
		Name:         request.Name,
		Center:       request.Center.ToPoint(),
		RadiusMeters: request.RadiusMeters,
	}
}

func (s *TaskHandler) PostGeofence(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	var request dto.GeofenceRequest
	if !decodeBody(w, r, &request) {
		return
	}

	g, err := s.TaskService.CreateGeofence(r.Context(), toGeofenceInput(request))
	if err != nil {
		handleServiceError(w, err, "не удалось создать геозону")
		return
	}

	logger.Info("HTTP_OUT: Геозона создана",
		zap.String("geofence_id", g.UUID.String()),
		zap.Duration("ms", time.Since(start)),
		zap.Int("http_status", http.StatusCreated))

	responseWithJSON(w, http.StatusCreated, toPayload("geofence", g))
}

func (s *TaskHandler) ListGeofences(w http.ResponseWriter, r *http.Request) {
	list, err := s.TaskService.ListGeofences(r.Context())
	if err != nil {
		handleServiceError(w, err, "не удалось получить геозоны")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("geofences", list))
}

func (s *TaskHandler) GetGeofence(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	g, err := s.TaskService.GetGeofence(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "не удалось получить геозону")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("geofence", g))
}

func (s *TaskHandler) UpdateGeofence(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var request dto.GeofenceRequest
	if !decodeBody(w, r, &request) {
		return
	}

	g, err := s.TaskService.UpdateGeofence(r.Context(), id, toGeofenceInput(request))
	if err != nil {
		handleServiceError(w, err, "не удалось обновить геозону")
		return
	}

	logger.Info("HTTP_OUT: Геозона обновлена",
		zap.String("geofence_id", id.String()),
		zap.Duration("ms", time.Since(start)))

	responseWithJSON(w, http.StatusOK, toPayload("geofence", g))
}

func (s *TaskHandler) DeactivateGeofence(w http.ResponseWriter, r *http.Request) {
	logger.HttpRequestInfo(r, "HTTP_IN:")

	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	g, err := s.TaskService.DeactivateGeofence(r.Context(), id)
	if err != nil {
		handleServiceError(w, err, "не удалось отключить геозону")
		return
	}
	responseWithJSON(w, http.StatusOK, toPayload("geofence", g))
}
