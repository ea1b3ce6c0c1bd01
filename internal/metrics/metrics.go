package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics - счётчики сервиса. Методы безопасны для nil, чтобы метрики можно было не подключать
type Metrics struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	rejections      *prometheus.CounterVec
	geofenceEvents  *prometheus.CounterVec
	forwarded       prometheus.Counter
	forwardFailures prometheus.Counter
	durationAnomaly prometheus.Counter
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_transitions_total",
			Help: "Успешные переходы статуса задачи",
		}, []string{"action"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "task_transition_rejections_total",
			Help: "Отклонённые переходы статуса по причине",
		}, []string{"reason"}),
		geofenceEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geofence_events_total",
			Help: "События прибытия и убытия",
		}, []string{"kind"}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forwarder_tasks_forwarded_total",
			Help: "Задачи, перенесённые в ожидание",
		}),
		forwardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forwarder_failures_total",
			Help: "Ошибки переноса отдельных задач",
		}),
		durationAnomaly: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_negative_duration_total",
			Help: "Отрицательные длительности, обнулённые при расчёте",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	m.registry.MustRegister(
		m.transitions,
		m.rejections,
		m.geofenceEvents,
		m.forwarded,
		m.forwardFailures,
		m.durationAnomaly,
		m.requestsTotal,
		m.requestDuration,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Transition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

func (m *Metrics) Rejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) GeofenceEvent(kind string) {
	if m == nil {
		return
	}
	m.geofenceEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) Forwarded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.forwarded.Add(float64(n))
}

func (m *Metrics) ForwardFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.forwardFailures.Add(float64(n))
}

func (m *Metrics) DurationAnomaly() {
	if m == nil {
		return
	}
	m.durationAnomaly.Inc()
}

func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}
