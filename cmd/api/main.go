package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/cache"
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/worker"
)

const shutdownTimeout = 10 * time.Second

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

	if err := observability.InitSentry(cfg.Logger, cfg.App); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer observability.FlushSentry(2 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.OpenStore(ctx, cfg.Storage, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to open storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}
	defer store.Close()

	if cfg.Storage.RunMigrations {
		if err := store.Migrate(ctx, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var statsCache cache.Cacher
	if redis != nil {
		statsCache = cache.NewRedisCache(redis.Client)
	}

	ticketRepo, historyRepo := buildRepositories(store)

	ticketClassifier, err := classifier.New(ctx, cfg.Classifier, logger)
	if err != nil {
		logger.Fatal("failed to init classifier", zap.Error(err))
	}
	defer ticketClassifier.Close() //nolint:errcheck

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: historyRepo,
		Classifier:  ticketClassifier,
		Dispatcher:  dispatcher,
		Cache:       statsCache,
		StatsTTL:    cfg.Stats.CacheTTL(),
		Metrics:     metrics,
		Logger:      logger,
	})
	notificationService := service.NewNotificationService(dispatcher, logger, cfg.Notification, ticketService)
	worker.StartNotificationWorker(notificationService)

	scheduler, err := worker.StartStatsRefresher(cfg.Stats.RefreshSchedule, ticketService, logger)
	if err != nil {
		logger.Warn("stats refresher disabled", zap.Error(err))
	}

	checks := []handlers.DependencyCheck{{Name: store.Driver, Ping: store.Ping}}
	if redis != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Ping: redis.Ping, Optional: true})
	}

	app := httptransport.NewApp(httptransport.AppConfig{
		Name:           cfg.App.Name,
		RequestTimeout: cfg.App.RequestTimeout(),
		Logger:         logger,
		Metrics:        metrics,
	}, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, ticketClassifier.ProviderName(), metrics, checks...),
		Tickets: handlers.NewTicketsHandler(ticketService),
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	notificationService.Wait()
}

func buildRepositories(store *persistence.Store) (repository.TicketRepository, repository.TicketHistoryRepository) {
	if store.Postgres != nil {
		pool := store.Postgres.PoolHandle()
		return repository.NewTicketRepository(pool), repository.NewTicketHistoryRepository(pool)
	}
	return repository.NewSQLiteTicketRepository(store.SQLite.DB), repository.NewSQLiteTicketHistoryRepository(store.SQLite.DB)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
