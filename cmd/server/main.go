package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"schoolbus/internal/app"
	"schoolbus/internal/config"
	"schoolbus/internal/domain"
	"schoolbus/internal/handler"
	"schoolbus/internal/logging"
	"schoolbus/internal/metrics"
	"schoolbus/internal/middleware"
	"schoolbus/internal/publisher"
	internalRedis "schoolbus/internal/redis"
	"schoolbus/internal/repository"
	"schoolbus/internal/repository/postgres"
	"schoolbus/internal/seed"
	"schoolbus/internal/service"
	"schoolbus/internal/sim"
	"schoolbus/internal/store"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.NewStructuredLogger(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logging.LogError(logger, "failed to initialize New Relic", err)
		} else {
			logger.Info("New Relic enabled", slog.String("app", cfg.NewRelic.AppName))
		}
	}

	collector := metrics.NewCollector(cfg.Simulation.StepDelay)

	b, err := openBackend(ctx, cfg, nrApp, logger)
	if err != nil {
		logging.LogError(logger, "failed to open store", err, slog.String("driver", cfg.Store.Driver))
		os.Exit(1)
	}
	defer b.close()

	if cfg.Seed.File != "" {
		fixture, err := seed.Load(cfg.Seed.File)
		if err != nil {
			logging.LogError(logger, "failed to load seed file", err)
			os.Exit(1)
		}
		if err := seed.Apply(ctx, fixture, b.riders, b.guardians, b.vehicles, logger); err != nil {
			logging.LogError(logger, "failed to apply seed", err)
			os.Exit(1)
		}
	}

	// Telemetry is optional; leave the interface nil when NATS is not configured.
	var telemetry service.TelemetryPublisher
	var natsPub *publisher.NATSPublisher
	if cfg.NATS.URL != "" {
		natsPub, err = publisher.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger, collector)
		if err != nil {
			logging.LogError(logger, "NATS unavailable, telemetry disabled", err)
		} else {
			defer natsPub.Close()
			telemetry = natsPub
		}
	}

	// Wire dependencies.
	notifications := service.NewNotificationService(logger)
	if natsPub != nil && cfg.NATS.PushSubject != "" {
		if _, err := natsPub.SubscribePush(cfg.NATS.PushSubject, func(m publisher.PushMessage) {
			notifications.HandlePush(context.Background(), service.PushMessage{
				Recipient: m.Recipient,
				Title:     m.Title,
				Body:      m.Body,
			})
		}); err != nil {
			logging.LogError(logger, "push subscription failed", err)
		}
	}

	// The geo index is Redis-only; keep both views of it untyped nil otherwise.
	var index service.LocationIndex
	var nearby service.NearbyIndex
	if b.index != nil {
		index, nearby = b.index, b.index
	}

	boarding := service.NewBoardingService(b.riders, notifications, collector, logger)
	fleet := service.NewFleetService(service.FleetDeps{
		Riders:        b.riders,
		Vehicles:      b.vehicles,
		Boarding:      boarding,
		Notifications: notifications,
		Index:         index,
		Telemetry:     telemetry,
		Locker:        b.locker,
		Metrics:       collector,
		Logger:        logger,
	}, service.OrchestratorConfig{
		Motion: sim.Options{
			Steps:     cfg.Simulation.Steps,
			StepDelay: cfg.Simulation.StepDelay,
		},
		BoardingPoll: cfg.Simulation.BoardingPoll,
		LockTTL:      cfg.Simulation.LockTTL,
	})
	if err := fleet.Load(ctx); err != nil {
		logging.LogError(logger, "failed to load fleet", err)
		os.Exit(1)
	}

	viewer := service.NewViewerService(b.riders, b.guardians, b.vehicles, nearby, notifications, collector, logger)
	auth := service.NewAuthService(b.guardians, b.vehicles, b.sessions, logger)

	// Metrics go on their own listener when configured, otherwise on the API port.
	var metricsHandler http.Handler
	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		metricsServer = collector.Serve(cfg.Metrics.Addr, logger)
	} else {
		metricsHandler = collector.Handler()
	}

	router := app.NewRouter(app.RouterDeps{
		AuthHandler:    handler.NewAuthHandler(auth),
		RiderHandler:   handler.NewRiderHandler(viewer, notifications),
		VehicleHandler: handler.NewVehicleHandler(fleet, viewer, notifications),
		StreamHandler:  handler.NewStreamHandler(viewer, auth, logger),
		Sessions:       auth,
		ResponseCache:  b.cache,
		Metrics:        metricsHandler,
		NewRelicApp:    nrApp,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine.
	go func() {
		logger.Info("starting server", slog.String("port", cfg.Server.Port), slog.String("store", cfg.Store.Driver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.LogError(logger, "server error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.LogError(logger, "server forced to shutdown", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
	fleet.Close()
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logger.Info("server exited")
}

// backend is the store selected by STORE_DRIVER. The Redis-backed members are
// nil under the memory driver.
type backend struct {
	riders    *store.Collection[*domain.Rider]
	guardians *store.Collection[*domain.Guardian]
	vehicles  *store.Collection[*domain.Vehicle]
	sessions  repository.SessionStore

	index  *internalRedis.LocationStore
	locker service.TripLocker
	cache  middleware.ResponseCache

	closers []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, nrApp *newrelic.Application, logger *slog.Logger) (*backend, error) {
	if cfg.Store.Driver == config.StoreDriverMemory {
		logger.Warn("using in-memory store; state is lost on restart")
		notifier := store.NewLocalNotifier()
		return &backend{
			riders:    store.NewCollection[*domain.Rider](repository.CollectionRiders, store.NewMemoryDocuments[*domain.Rider](), notifier, logger),
			guardians: store.NewCollection[*domain.Guardian](repository.CollectionGuardians, store.NewMemoryDocuments[*domain.Guardian](), notifier, logger),
			vehicles:  store.NewCollection[*domain.Vehicle](repository.CollectionVehicles, store.NewMemoryDocuments[*domain.Vehicle](), notifier, logger),
			sessions:  store.NewMemorySessions(),
		}, nil
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to PostgreSQL")
	if cfg.Database.Migrate {
		if err := app.Migrate(db, logger); err != nil {
			logging.SafeClose(db, logger, "close database")
			return nil, err
		}
	}

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logging.SafeClose(db, logger, "close database")
		return nil, err
	}
	logger.Info("connected to Redis")

	b := wirePostgres(db, redisClient, logger)
	b.closers = append(b.closers,
		func() { logging.SafeClose(db, logger, "close database") },
		func() { logging.SafeClose(redisClient, logger, "close redis") },
	)
	return b, nil
}

// wirePostgres builds the collections over Postgres with Redis for change
// notification, sessions, the geo index, trip locks and idempotency.
func wirePostgres(db *sql.DB, redisClient *redis.Client, logger *slog.Logger) *backend {
	notifier := internalRedis.NewNotifier(redisClient)
	return &backend{
		riders:    store.NewCollection[*domain.Rider](repository.CollectionRiders, postgres.NewRiderRepository(db), notifier, logger),
		guardians: store.NewCollection[*domain.Guardian](repository.CollectionGuardians, postgres.NewGuardianRepository(db), notifier, logger),
		vehicles:  store.NewCollection[*domain.Vehicle](repository.CollectionVehicles, postgres.NewVehicleRepository(db), notifier, logger),
		sessions:  internalRedis.NewSessionStore(redisClient),
		index:     internalRedis.NewLocationStore(redisClient),
		locker:    internalRedis.NewLockStore(redisClient),
		cache:     internalRedis.NewResponseCache(redisClient),
	}
}
