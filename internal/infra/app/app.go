package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/resourceldg/cuiot-sub001/internal/core/port"
	"github.com/resourceldg/cuiot-sub001/internal/infra/config"
	"github.com/resourceldg/cuiot-sub001/internal/infra/database"
	kafkainfra "github.com/resourceldg/cuiot-sub001/internal/infra/kafka"
	"github.com/resourceldg/cuiot-sub001/internal/infra/logger"
	redisinfra "github.com/resourceldg/cuiot-sub001/internal/infra/redis"
	postgresrepo "github.com/resourceldg/cuiot-sub001/internal/repository/postgres"
	redisrepo "github.com/resourceldg/cuiot-sub001/internal/repository/redis"
	"github.com/resourceldg/cuiot-sub001/internal/transport/http/middleware"
	"github.com/resourceldg/cuiot-sub001/internal/transport/http/routes"
	"github.com/resourceldg/cuiot-sub001/internal/usecase"
)

// Application bundles the wired service and its owned resources.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
}

// New wires the full application: storage, cache, event publisher, services,
// and the HTTP engine. The reconciler runs once before the server accepts
// traffic so the system roles exist from the first request.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	roleCache := redisrepo.NewRoleCache(redisClient.Client(), cfg.Redis.RoleCachePrefix, cfg.Redis.RoleCacheTTL)

	repos := postgresrepo.NewRepositories(pool)

	var (
		eventPublisher port.EventPublisher
		producer       *kafkainfra.Producer
	)
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	roleService := usecase.NewRoleService(repos.Roles, roleCache, eventPublisher, log)
	assignmentService := usecase.NewAssignmentService(repos.Assignments, repos.Roles, roleCache, eventPublisher, log)
	authorizer := usecase.NewAuthorizer(repos.Assignments, log)
	reconciler := usecase.NewReconciler(repos.Roles, repos.Assignments, roleCache, eventPublisher, cfg.Auth.BootstrapAdminID, log)

	if err := reconciler.Run(ctx); err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("startup reconciliation: %w", err)
	}

	metrics, err := middleware.NewHTTPMetrics(nil)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Roles:       roleService,
			Assignments: assignmentService,
			Authorizer:  authorizer,
			Reconciler:  reconciler,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			_ = a.producer.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting authorization API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
