package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/reactive-engine/internal/api/http"
	"github.com/spec-kit/reactive-engine/internal/api/http/handlers"
	"github.com/spec-kit/reactive-engine/internal/auth"
	"github.com/spec-kit/reactive-engine/internal/clock"
	"github.com/spec-kit/reactive-engine/internal/config"
	"github.com/spec-kit/reactive-engine/internal/events"
	"github.com/spec-kit/reactive-engine/internal/kv"
	"github.com/spec-kit/reactive-engine/internal/observability"
	"github.com/spec-kit/reactive-engine/internal/persistence"
	"github.com/spec-kit/reactive-engine/internal/repository"
	"github.com/spec-kit/reactive-engine/internal/scheduler"
	"github.com/spec-kit/reactive-engine/internal/service"
	"github.com/spec-kit/reactive-engine/internal/ticketstore"
	"github.com/spec-kit/reactive-engine/internal/worker"
)

const redisNamespace = "reactive:"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := clock.Real()
	metrics := observability.NewMetrics(nil)
	dispatcher := events.NewInMemoryDispatcher()
	healthDeps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}

	var history repository.MergeHistoryRepository
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()
	if pool := pg.PoolHandle(); pool != nil {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		history = repository.NewMergeHistoryRepository(pool)
		healthDeps["postgres"] = pg
	}

	retention := cfg.Reactive.Retention()
	var (
		state    kv.Store
		memState *kv.MemoryStore
		comms    repository.CommsLogRepository
	)
	switch cfg.Reactive.StateBackend {
	case config.StateBackendRedis:
		redis, err := persistence.NewRedis(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Fatal("failed to connect redis", zap.Error(err))
		}
		defer redis.Close()
		state = kv.NewRedisStore(redis.Client, redisNamespace)
		comms = repository.NewRedisCommsLog(redis.Client, clk, retention, redisNamespace)
		healthDeps["redis"] = redis
	default:
		memState = kv.NewMemoryStore(clk)
		state = memState
		comms = repository.NewMemoryCommsLog(clk, retention)
		logger.Warn("coordination state is process-local; pending merges, locks and the comms log are lost on restart")
	}

	var store ticketstore.Store
	if cfg.Zendesk.Enabled() {
		store = ticketstore.NewZendeskClient(cfg.Zendesk, logger)
	} else {
		logger.Warn("zendesk credentials not provided; using in-memory ticket store")
		store = ticketstore.NewMemoryStore(clk, cfg.App.Name)
	}

	merges := service.NewMergeService(service.MergeDependencies{
		Store:        store,
		Scheduler:    scheduler.New(clk),
		PendingRepo:  repository.NewPendingMergeRepository(state),
		HistoryRepo:  history,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
		Clock:        clk,
		Logger:       logger,
		GracePeriod:  cfg.Reactive.GracePeriod(),
		MergeTimeout: cfg.Reactive.MergeTimeout(),
	})
	gate := service.NewOutboundGateService(service.OutboundGateDependencies{
		CommsLog:        comms,
		Store:           store,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Clock:           clk,
		Logger:          logger,
		SendWindow:      cfg.Reactive.SendWindow(),
		ProactiveWindow: cfg.Reactive.ProactiveWindow(),
		SaturationSpan:  retention,
		SaturationLimit: cfg.Reactive.SaturationLimit,
	})
	locks := service.NewLockService(service.LockDependencies{
		LockRepo:   repository.NewLockRepository(state),
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Clock:      clk,
		Logger:     logger,
		StaleAfter: cfg.Reactive.LockStale(),
	})
	reactive, err := service.NewReactiveService(service.ReactiveDependencies{
		Store:           store,
		Merges:          merges,
		Locks:           locks,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Clock:           clk,
		Logger:          logger,
		DeliveryWindow:  cfg.Reactive.DedupeWindow(),
		DuplicateWindow: cfg.Reactive.DuplicateSubjectWindow(),
	})
	if err != nil {
		logger.Fatal("failed to build reactive service", zap.Error(err))
	}

	notifications := service.NewNotificationService(dispatcher, logger, cfg.Notification)
	worker.StartNotificationWorker(ctx, notifications)

	janitorDeps := worker.JanitorDependencies{
		Comms:    comms,
		Metrics:  metrics,
		Logger:   logger,
		Schedule: cfg.Reactive.JanitorSchedule,
	}
	if memState != nil {
		janitorDeps.State = memState
	}
	janitor := worker.NewJanitor(janitorDeps)
	if err := janitor.Start(); err != nil {
		logger.Fatal("failed to start janitor", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Reactive:       handlers.NewReactiveHandler(reactive, merges, gate, locks),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("state_backend", string(cfg.Reactive.StateBackend)))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	janitor.Stop(shutdownCtx)
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
