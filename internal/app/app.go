package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fieldTracker/internal/config"
	"fieldTracker/internal/geofence"
	"fieldTracker/internal/handlers"
	"fieldTracker/internal/locking"
	"fieldTracker/internal/logger"
	"fieldTracker/internal/metrics"
	"fieldTracker/internal/middleware"
	"fieldTracker/internal/repository/task/inmemory"
	"fieldTracker/internal/repository/task/postgres"
	"fieldTracker/internal/service"
	"fieldTracker/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	config     *config.Config
	server     *http.Server
	router     *chi.Mux
	repository service.TaskRepository
	service    *service.TaskService
	worker     *worker.OverdueForwarder
	metrics    *metrics.Metrics
	shutdowns  []func() // функции для graceful shutdown
}

func New(cfg *config.Config) *App {
	return &App{
		config:    cfg,
		shutdowns: make([]func(), 0),
	}
}

func (a *App) Init(ctx context.Context) (*App, error) {
	if err := logger.Init(a.config.Logging.Development, a.config.Logging.Level); err != nil {
		return nil, fmt.Errorf("инициализация логгера: %w", err)
	}
	a.onShutdown(func() {
		logger.Info("Завершение работы логгирования...")
		logger.Sync()
	})

	a.metrics = metrics.New()

	repo, err := a.initRepository(ctx)
	if err != nil {
		return nil, err
	}
	a.repository = repo

	deps := service.Deps{
		Metrics:    a.metrics,
		LockTTL:    a.config.Locking.TTL,
		RouteLimit: a.config.Route.Parallel,
	}
	if err := a.initRedis(ctx, &deps); err != nil {
		return nil, err
	}
	if deps.Detector == nil {
		presence, err := geofence.NewMemoryPresence(a.config.Presence.Capacity)
		if err != nil {
			return nil, fmt.Errorf("хранилище присутствия: %w", err)
		}
		deps.Detector = geofence.NewDetector(presence)
	}

	a.service, err = service.NewTaskService(a.repository, deps)
	if err != nil {
		return nil, fmt.Errorf("инициализация сервиса: %w", err)
	}
	a.onShutdown(func() {
		logger.Info("Ожидание записи журнала...")
		a.service.Wait()
	})

	loc, err := a.config.Location()
	if err != nil {
		return nil, err
	}
	a.worker = worker.NewOverdueForwarder(a.repository, worker.Options{
		Interval:  a.config.Forwarder.Interval,
		BatchSize: a.config.Forwarder.BatchSize,
		Location:  loc,
		Metrics:   a.metrics,
	})

	a.router = a.routes()
	a.server = &http.Server{
		Addr:         a.config.GetServerAddr(),
		Handler:      otelhttp.NewHandler(a.router, "field-tracker"),
		ReadTimeout:  a.config.Server.ReadTimeout,
		WriteTimeout: a.config.Server.WriteTimeout,
	}

	return a, nil
}

func (a *App) initRepository(ctx context.Context) (service.TaskRepository, error) {
	switch a.config.Repository.Type {
	case "postgres":
		if a.config.Database.Migrate {
			if err := postgres.MigrateUp(a.config.Database.URL); err != nil {
				return nil, fmt.Errorf("миграции: %w", err)
			}
		}
		storage, err := postgres.New(ctx, a.config.Database.URL, postgres.Options{
			MaxConns:    a.config.Database.MaxConnections,
			MinConns:    a.config.Database.MinConnections,
			IdleTimeout: a.config.Database.IdleTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("подключение к postgres: %w", err)
		}
		a.onShutdown(func() {
			logger.Info("Закрытие пула postgres...")
			storage.Close()
		})
		logger.Info("Хранилище: postgres")
		return storage, nil
	default:
		logger.Info("Хранилище: inmemory")
		return inmemory.NewStorage(), nil
	}
}

// initRedis подключает общие блокировки и присутствие, если задан адрес
func (a *App) initRedis(ctx context.Context, deps *service.Deps) error {
	cfg := a.config.Redis
	if cfg.Addr == "" {
		deps.Locker = locking.NewMemoryLocker()
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("подключение к redis %s: %w", cfg.Addr, err)
	}
	a.onShutdown(func() {
		logger.Info("Закрытие соединения с redis...")
		if err := client.Close(); err != nil {
			logger.Error("Ошибка закрытия redis", err)
		}
	})

	deps.Locker = locking.NewRedisLocker(client, a.config.Locking.Backoff, a.config.Locking.Wait)
	deps.Detector = geofence.NewDetector(geofence.NewRedisPresence(client, a.config.Presence.TTL))
	logger.Info("Блокировки и присутствие: redis", zap.String("addr", cfg.Addr))
	return nil
}

func (a *App) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(a.metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.config.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", "X-Actor"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(middleware.RateLimit(a.config.RateLimit.RPM, a.config.RateLimit.Burst))

	handlers.NewTaskHandler(a.service, a.worker, nil).Routes(r)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	return r
}

func (a *App) onShutdown(fn func()) {
	a.shutdowns = append(a.shutdowns, fn)
}

// Forwarder - для ручного прохода из CLI
func (a *App) Forwarder() *worker.OverdueForwarder {
	return a.worker
}

// Run запускает HTTP сервер и фоновый перенос задач до отмены ctx
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.config.Forwarder.Enabled {
		g.Go(func() error {
			a.worker.Start(ctx)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Сервер запущен", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http сервер: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.ShutdownTimeout)
		defer cancel()

		logger.Info("Остановка сервера...")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("остановка сервера: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close выполняет функции завершения в обратном порядке
func (a *App) Close() {
	for i := len(a.shutdowns) - 1; i >= 0; i-- {
		a.shutdowns[i]()
	}
}
