package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/mdm/internal/mdm/http"
	"github.com/aussiebroadwan/mdm/internal/mdm/service"
	"github.com/aussiebroadwan/mdm/internal/mdm/store"
	"github.com/aussiebroadwan/mdm/internal/mdm/store/drivers/sqlite"
	"github.com/aussiebroadwan/mdm/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the MDM service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db store.Store

	tokenService        *service.TokenService
	accountService      *service.AccountService
	deviceService       *service.DeviceService
	housekeepingService *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "mdm-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHTTP()

	if err := app.seedAdmin(context.Background()); err != nil {
		return nil, err
	}

	return app, nil
}

// Handler exposes the HTTP entry point, mainly so tests can mount the whole
// service on an in-process server.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("mdm service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
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

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down mdm service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("mdm service stopped")
	return nil
}

// Close releases resources without the graceful server dance. For tests that
// never call Run.
func (app *Application) Close() error {
	app.housekeepingService.Stop()
	return app.db.Close()
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

func (app *Application) initServices() error {
	signingKey := []byte(app.cfg.SigningKey)
	if len(signingKey) == 0 {
		// Ephemeral key: tokens do not survive a restart
		signingKey = make([]byte, 32)
		if _, err := rand.Read(signingKey); err != nil {
			return fmt.Errorf("failed to generate signing key: %w", err)
		}
		app.logger.Warn("no signing key configured, using an ephemeral key")
	}

	app.tokenService = &service.TokenService{
		Store:      app.db,
		SigningKey: signingKey,
		Issuer:     app.cfg.Issuer,
		TokenTTL:   app.cfg.TokenTTL,
	}
	app.accountService = &service.AccountService{Store: app.db}
	app.deviceService = &service.DeviceService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	return nil
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.TokenService = app.tokenService
	router.AccountService = app.accountService
	router.DeviceService = app.deviceService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// seedAdmin creates the configured admin account if it does not exist yet.
func (app *Application) seedAdmin(ctx context.Context) error {
	if app.cfg.AdminUser == "" || app.cfg.AdminPassword == "" {
		return nil
	}

	_, err := app.accountService.GetAccountByUsername(ctx, app.cfg.AdminUser)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if _, err := app.accountService.CreateAccount(ctx, app.cfg.AdminUser, app.cfg.AdminPassword); err != nil {
		return fmt.Errorf("failed to seed admin account: %w", err)
	}
	app.logger.Info("seeded admin account", "username", app.cfg.AdminUser)
	return nil
}
