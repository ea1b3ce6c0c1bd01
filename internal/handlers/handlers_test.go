package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldTracker/internal/clock"
	"fieldTracker/internal/handlers"
	"fieldTracker/internal/repository/task/inmemory"
	"fieldTracker/internal/service"
	"fieldTracker/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)

// MockTaskService - мок сервиса, неиспользуемые методы не реализованы
type MockTaskService struct {
	mock.Mock
	handlers.TaskService
}

func (m *MockTaskService) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockTaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type stubForwarder struct {
	report worker.Report
	err    error
}

func (f stubForwarder) Run(context.Context) (worker.Report, error) {
	return f.report, f.err
}

type fixture struct {
	clock  *clock.Manual
	svc    *service.TaskService
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewManual(base)
	svc, err := service.NewTaskService(inmemory.NewStorage(), service.Deps{Clock: clk})
	require.NoError(t, err)
	t.Cleanup(svc.Wait)

	r := chi.NewRouter()
	handlers.NewTaskHandler(svc, stubForwarder{report: worker.Report{Scanned: 3, Forwarded: 2}}, clk).Routes(r)
	return &fixture{clock: clk, svc: svc, router: r}
}

func mockRouter(svc handlers.TaskService) http.Handler {
	r := chi.NewRouter()
	handlers.NewTaskHandler(svc, nil, clock.NewManual(base)).Routes(r)
	return r
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	return doRequest(t, f.router, method, path, body)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Actor", "dispatcher")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	}
	return rec, resp
}

func taskBody(extra map[string]any) map[string]any {
	body := map[string]any{
		"title":             "Замена счётчика",
		"priority":          "high",
		"worker_id":         "worker-1",
		"start_date":        base,
		"end_date":          base.Add(8 * time.Hour),
		"due_date":          base.Add(8 * time.Hour),
		"estimated_minutes": 60,
		"reward":            1500,
	}
	for k, v := range extra {
		body[k] = v
	}
	return body
}

func (f *fixture) createTask(t *testing.T, extra map[string]any) string {
	t.Helper()
	rec, resp := f.do(t, http.MethodPost, "/tasks", taskBody(extra))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return resp["task"].(map[string]any)["id"].(string)
}

func field(resp map[string]any, key, name string) any {
	return resp[key].(map[string]any)[name]
}

func TestHandler_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "storage down", err: errors.New("нет соединения"), wantStatus: http.StatusServiceUnavailable, wantBody: "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockTaskService)
			svc.On("HealthCheck", mock.Anything).Return(tt.err)

			rec, resp := doRequest(t, mockRouter(svc), http.MethodGet, "/health", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, resp["status"])
			assert.Equal(t, "field-tracker", resp["service"])
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_TaskLifecycle(t *testing.T) {
	f := newFixture(t)
	id := f.createTask(t, nil)

	rec, resp := f.do(t, http.MethodPost, "/tasks/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in_progress", field(resp, "task", "status"))

	f.clock.Advance(30 * time.Minute)
	rec, _ = f.do(t, http.MethodPost, "/tasks/"+id+"/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	f.clock.Advance(15 * time.Minute)
	rec, resp = f.do(t, http.MethodPost, "/tasks/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 15*60*1000, field(resp, "task", "total_pause_ms"))

	f.clock.Advance(30 * time.Minute)
	rec, resp = f.do(t, http.MethodGet, "/tasks/"+id+"/timing", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1:00:00", field(resp, "timing", "elapsed"))
	assert.EqualValues(t, 100, field(resp, "timing", "efficiency"))

	rec, resp = f.do(t, http.MethodPost, "/tasks/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", field(resp, "task", "status"))

	f.svc.Wait()
	rec, resp = f.do(t, http.MethodGet, "/tasks/"+id+"/log", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := resp["log"].([]any)
	require.Len(t, entries, 4)
	assert.Equal(t, "dispatcher", entries[0].(map[string]any)["actor"])
}

func TestHandler_PostTaskValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantField  string
	}{
		{
			name:       "no title",
			body:       taskBody(map[string]any{"title": ""}),
			wantStatus: http.StatusBadRequest,
			wantField:  "title",
		},
		{
			name:       "unknown priority",
			body:       taskBody(map[string]any{"priority": "urgent"}),
			wantStatus: http.StatusBadRequest,
			wantField:  "priority",
		},
		{
			name:       "window reversed",
			body:       taskBody(map[string]any{"end_date": base.Add(-time.Hour)}),
			wantStatus: http.StatusBadRequest,
			wantField:  "end_date",
		},
		{
			name:       "location without geometry",
			body:       taskBody(map[string]any{"locations": []any{map[string]any{"arrival_required": true}}}),
			wantStatus: http.StatusBadRequest,
			wantField:  "locations[0].center",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := f.do(t, http.MethodPost, "/tasks", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, service.CodeValidation, resp["error"])
			assert.Contains(t, resp["details"], tt.wantField)
		})
	}

	t.Run("radius out of range", func(t *testing.T) {
		body := taskBody(map[string]any{"locations": []any{map[string]any{
			"center":        map[string]any{"lat": 55.75, "lng": 37.61},
			"radius_meters": 0,
		}}})
		rec, resp := f.do(t, http.MethodPost, "/tasks", body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, service.CodeInvalidGeometry, resp["error"])
	})
}

func TestHandler_BadRequests(t *testing.T) {
	f := newFixture(t)

	t.Run("content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/tasks", bytes.NewBufferString(`{}`))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/tasks", taskBody(map[string]any{"deadline": "завтра"}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/tasks/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		rec, resp := f.do(t, http.MethodGet, "/tasks/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, service.CodeNotFound, resp["error"])
	})

	t.Run("bad page", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/tasks?page=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_TransitionErrors(t *testing.T) {
	f := newFixture(t)

	t.Run("invalid transition", func(t *testing.T) {
		id := f.createTask(t, nil)
		rec, resp := f.do(t, http.MethodPost, "/tasks/"+id+"/pause", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, service.CodeInvalidTransition, resp["error"])
		assert.Equal(t, "not_started", resp["details"].(map[string]any)["current_status"])
	})

	t.Run("location required", func(t *testing.T) {
		id := f.createTask(t, map[string]any{"locations": []any{map[string]any{
			"center":           map[string]any{"lat": 55.75, "lng": 37.61},
			"radius_meters":    100,
			"arrival_required": true,
		}}})
		rec, resp := f.do(t, http.MethodPost, "/tasks/"+id+"/start", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Equal(t, service.CodeLocationRequired, resp["error"])
	})

	t.Run("reschedule needs pending", func(t *testing.T) {
		id := f.createTask(t, map[string]any{"status": "planned"})
		rec, resp := f.do(t, http.MethodPost, "/tasks/"+id+"/reschedule", map[string]any{"due_date": base.Add(48 * time.Hour)})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, service.CodeInvalidTransition, resp["error"])
	})
}

func TestHandler_DeleteLocked(t *testing.T) {
	id := uuid.New()
	svc := new(MockTaskService)
	svc.On("DeleteTask", mock.Anything, id).
		Return(service.NewBusinessError(service.CodeTaskLocked, "задача занята")).Once()
	svc.On("DeleteTask", mock.Anything, id).Return(nil).Once()

	rec, resp := doRequest(t, mockRouter(svc), http.MethodDelete, "/tasks/"+id.String(), nil)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.Equal(t, service.CodeTaskLocked, resp["error"])

	rec, _ = doRequest(t, mockRouter(svc), http.MethodDelete, "/tasks/"+id.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	svc.AssertExpectations(t)
}

func TestHandler_UpdateAndList(t *testing.T) {
	f := newFixture(t)
	id := f.createTask(t, nil)
	f.createTask(t, map[string]any{"worker_id": "worker-2"})

	rec, resp := f.do(t, http.MethodPatch, "/tasks/"+id, map[string]any{"title": "Поверка счётчика", "reward": 2000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Поверка счётчика", field(resp, "task", "title"))
	assert.EqualValues(t, 2000, field(resp, "task", "reward"))

	rec, _ = f.do(t, http.MethodPatch, "/tasks/"+id, map[string]any{"start_date": base})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "окно меняется только целиком")

	rec, resp = f.do(t, http.MethodGet, "/tasks?worker_id=worker-1&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["tasks"], 1)
	assert.EqualValues(t, 1, resp["page"])
}

func TestHandler_GeofenceAndPositions(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodPost, "/geofences", map[string]any{
		"name":          "Склад",
		"center":        map[string]any{"lat": 55.75, "lng": 37.61},
		"radius_meters": 150,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	geofenceID := field(resp, "geofence", "uuid").(string)

	id := f.createTask(t, map[string]any{"locations": []any{map[string]any{
		"geofence_id":        geofenceID,
		"arrival_required":   true,
		"departure_required": true,
	}}})

	rec, resp = f.do(t, http.MethodPost, "/workers/worker-1/positions", map[string]any{"lat": 55.7501, "lng": 37.6101})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	transitions := resp["transitions"].([]any)
	require.Len(t, transitions, 1)
	assert.Equal(t, id, transitions[0].(map[string]any)["task_id"])
	assert.Equal(t, "in_progress", transitions[0].(map[string]any)["status"])

	rec, resp = f.do(t, http.MethodGet, "/tasks/"+id+"/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp["events"], 1)

	rec, _ = f.do(t, http.MethodPost, "/geofences/"+geofenceID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = f.do(t, http.MethodGet, "/geofences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp["geofences"].([]any)[0].(map[string]any)["active"])

	rec, resp = f.do(t, http.MethodPut, "/geofences/"+geofenceID, map[string]any{
		"name":          "Склад",
		"center":        map[string]any{"lat": 95.0, "lng": 37.61},
		"radius_meters": 150,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, service.CodeInvalidGeometry, resp["error"])

	rec, _ = f.do(t, http.MethodPost, "/workers/worker-1/positions", map[string]any{"lat": 55.75})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Routes(t *testing.T) {
	f := newFixture(t)
	for i, lat := range []float64{55.76, 55.80} {
		f.createTask(t, map[string]any{
			"title": fmt.Sprintf("Точка %d", i),
			"locations": []any{map[string]any{
				"center":        map[string]any{"lat": lat, "lng": 37.61},
				"radius_meters": 100,
			}},
		})
	}

	rec, resp := f.do(t, http.MethodPost, "/workers/worker-1/route", map[string]any{
		"origin": map[string]any{"lat": 55.75, "lng": 37.61},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stops := field(resp, "route", "stops").([]any)
	require.Len(t, stops, 2)
	assert.Equal(t, "Точка 0", stops[0].(map[string]any)["title"])
	assert.Greater(t, field(resp, "route", "total_distance_km").(float64), 0.0)

	rec, resp = f.do(t, http.MethodPost, "/routes", map[string]any{"requests": []any{
		map[string]any{"worker_id": "worker-1", "origin": map[string]any{"lat": 55.75, "lng": 37.61}},
		map[string]any{"worker_id": "worker-9", "origin": map[string]any{"lat": 55.75, "lng": 37.61}},
	}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	routes := resp["routes"].(map[string]any)
	assert.Len(t, routes["worker-1"].(map[string]any)["stops"], 2)
	assert.Empty(t, routes["worker-9"].(map[string]any)["stops"])

	rec, _ = f.do(t, http.MethodPost, "/routes", map[string]any{"requests": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = f.do(t, http.MethodPost, "/routes", map[string]any{"requests": []any{
		map[string]any{"worker_id": "worker-1", "origin": map[string]any{"lat": 55.75, "lng": 37.61}},
		map[string]any{"worker_id": "worker-1", "origin": map[string]any{"lat": 55.80, "lng": 37.61}},
	}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unique", resp["details"].(map[string]any)["requests"])
}

func TestHandler_PositionTimestamp(t *testing.T) {
	f := newFixture(t)
	id := f.createTask(t, map[string]any{"locations": []any{map[string]any{
		"center":           map[string]any{"lat": 55.75, "lng": 37.61},
		"radius_meters":    100,
		"arrival_required": true,
	}}})
	f.clock.Advance(10 * time.Minute)

	sampled := base.Add(3 * time.Minute)
	rec, resp := f.do(t, http.MethodPost, "/workers/worker-1/positions", map[string]any{
		"lat": 55.75, "lng": 37.61, "timestamp": sampled,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	events := resp["events"].([]any)
	require.Len(t, events, 1)
	occurred, err := time.Parse(time.RFC3339Nano, events[0].(map[string]any)["occurred_at"].(string))
	require.NoError(t, err)
	assert.True(t, sampled.Equal(occurred))

	rec, resp = f.do(t, http.MethodGet, "/tasks/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "in_progress", field(resp, "task", "status"))

	rec, resp = f.do(t, http.MethodPost, "/workers/worker-1/positions", map[string]any{
		"lat": 55.75, "lng": 37.61, "timestamp": base.Add(time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, service.CodeValidation, resp["error"])
}

func TestHandler_Forward(t *testing.T) {
	f := newFixture(t)
	rec, resp := f.do(t, http.MethodPost, "/admin/forward", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, field(resp, "report", "forwarded"))

	rec, _ = doRequest(t, mockRouter(new(MockTaskService)), http.MethodPost, "/admin/forward", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
