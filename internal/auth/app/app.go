package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	httpapi "github.com/aussiebroadwan/proptrust/internal/auth/http"
	"github.com/aussiebroadwan/proptrust/internal/auth/notify"
	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/internal/auth/store/drivers/redisstore"
	"github.com/aussiebroadwan/proptrust/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/proptrust/pkg/cryptox"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"

	metricsNamespace = "proptrust_auth"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db         *sqlite.Store
	blacklist  store.Blacklist
	redis      *redis.Client // nil when the blacklist lives in SQLite
	publisher  notify.Publisher
	keyManager *jwtx.KeyManager
	metrics    *metricsx.Metrics

	// Services
	services            *service.Services
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metricsx.New(metricsNamespace),
	}

	if err := cryptox.LoadPepper(app.cfg.PepperFile); err != nil {
		return nil, fmt.Errorf("failed to load pepper: %w", err)
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initBlacklist(); err != nil {
		_ = app.closeBackends()
		return nil, err
	}
	if err := app.initPublisher(); err != nil {
		_ = app.closeBackends()
		return nil, err
	}

	keyManager, err := InitAuthKeys(context.Background(), app.cfg, app.db, app.logger)
	if err != nil {
		_ = app.closeBackends()
		return nil, fmt.Errorf("failed to initialize JWT keys: %w", err)
	}
	app.keyManager = keyManager

	if err := app.initServices(); err != nil {
		_ = app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.closeBackends()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.closeBackends(); err != nil {
		app.logger.Error("error closing backends", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

func (app *Application) closeBackends() error {
	var errs []error
	if app.publisher != nil {
		errs = append(errs, app.publisher.Close())
	}
	if app.redis != nil {
		errs = append(errs, app.redis.Close())
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initBlacklist selects Redis when configured, else the SQLite table.
func (app *Application) initBlacklist() error {
	if app.cfg.RedisURL == "" {
		app.blacklist = sqlite.NewBlacklist(app.db)
		app.logger.Info("blacklist backend", "driver", "sqlite")
		return nil
	}

	bl, rdb, err := redisstore.Open(app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to configure redis blacklist: %w", err)
	}
	app.redis = rdb

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bl.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach redis: %w", err)
	}

	app.blacklist = bl
	app.logger.Info("blacklist backend", "driver", "redis")
	return nil
}

// initPublisher connects to the broker when configured. Without one,
// notifications are logged and dropped.
func (app *Application) initPublisher() error {
	if app.cfg.AMQPURL == "" {
		app.publisher = notify.LogPublisher{Logger: app.logger}
		app.logger.Warn("no AMQP broker configured; notifications will not be delivered")
		return nil
	}

	pub, err := notify.NewAMQPPublisher(app.cfg.AMQPURL, app.cfg.NotifyExchange)
	if err != nil {
		return fmt.Errorf("failed to connect notification broker: %w", err)
	}
	app.publisher = pub
	app.logger.Info("notification broker connected", "exchange", app.cfg.NotifyExchange)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	profiles, err := service.NewProfileRegistry(service.DefaultProfileProviders())
	if err != nil {
		return fmt.Errorf("failed to build profile registry: %w", err)
	}

	app.services = service.New(service.Options{
		Store:      app.db,
		Blacklist:  app.blacklist,
		KeyManager: app.keyManager,
		Notifier:   notify.NewNotifier(app.publisher),
		Profiles:   profiles,
		Metrics:    app.metrics,

		Issuer:   app.cfg.Issuer,
		Audience: app.cfg.Audience,

		AccessTTL:        app.cfg.AccessTTL,
		RefreshTTL:       app.cfg.RefreshTTL,
		LockoutThreshold: app.cfg.LockoutThreshold,
		LockoutDuration:  app.cfg.LockoutDuration,
		BlacklistGrace:   app.cfg.BlacklistGrace,
		SuspiciousWindow: app.cfg.SuspiciousWindow,
	})

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.blacklist,
		app.metrics,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Keys = app.keyManager
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.services,
		app.keyManager.KeySet,
		app.db,
		app.blacklist,
		app.metrics,
		BuildVersion,
		app.logger,
	)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
