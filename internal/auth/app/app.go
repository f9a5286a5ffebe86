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

	httpapi "github.com/aussiebroadwan/miniokta/internal/auth/http"
	"github.com/aussiebroadwan/miniokta/internal/auth/identity"
	"github.com/aussiebroadwan/miniokta/internal/auth/service"
	"github.com/aussiebroadwan/miniokta/internal/auth/store"
	"github.com/aussiebroadwan/miniokta/internal/auth/store/drivers/mongo"
	"github.com/aussiebroadwan/miniokta/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/miniokta/pkg/cryptox"
	"github.com/aussiebroadwan/miniokta/pkg/httpx"
	"github.com/aussiebroadwan/miniokta/pkg/jwtx"
	"github.com/aussiebroadwan/miniokta/pkg/slogx"
	"github.com/jonboulle/clockwork"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger
	clock  clockwork.Clock

	// Core dependencies
	db     store.Store
	signer jwtx.Signer
	saml   *identity.SAMLProvider // nil unless configured

	// Services
	tokenService        *service.TokenService
	authService         *service.AuthService
	mfaService          *service.MFAService
	userService         *service.UserService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "miniokta-auth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
	return NewWithLogger(cfg, logger)
}

// NewWithLogger is New with a caller supplied logger.
func NewWithLogger(cfg Config, logger *slog.Logger) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg:    cfg,
		logger: logger,
		clock:  clockwork.NewRealClock(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	signer, err := InitSigner(cfg, logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing key: %w", err)
	}
	app.signer = signer

	if err := app.initSAML(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initHTTP(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Run starts the application and blocks until SIGINT/SIGTERM or a server error.
func (app *Application) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.RunContext(ctx)
}

// RunContext starts the application and blocks until ctx is cancelled or
// the server fails, then shuts down gracefully.
func (app *Application) RunContext(ctx context.Context) error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion, "store", app.cfg.StoreDriver)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.housekeepingService.Stop()
			_ = app.db.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		app.logger.Info("shutdown signal received")
	}

	if err := app.Shutdown(); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Close store connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initStore opens the configured driver and applies migrations
func (app *Application) initStore(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.StoreDriver {
	case StoreMongo:
		db, err = mongo.NewStore(ctx, mongo.Config{
			URI:      app.cfg.MongoURI,
			Database: app.cfg.MongoDatabase,
		})
	default:
		db, err = sqlite.NewStore(app.cfg.DatabaseFile)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize %s store: %w", app.cfg.StoreDriver, err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply store migrations: %w", err)
	}

	app.logger.Info("store migrations applied successfully", "driver", app.cfg.StoreDriver)
	return nil
}

func (app *Application) initSAML(ctx context.Context) error {
	if !app.cfg.SAML.Enabled() {
		app.logger.Info("saml login disabled")
		return nil
	}

	client := &http.Client{Timeout: 10 * time.Second}
	p, err := identity.NewSAMLProvider(ctx, app.cfg.SAML, client)
	if err != nil {
		return fmt.Errorf("failed to initialize saml: %w", err)
	}
	app.saml = p

	app.logger.Info("saml login enabled", "acs_url", p.ACSURL(), "idp_metadata", app.cfg.SAML.IDPMetadataURL)
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	pepper, err := cryptox.LoadOrCreatePepper(app.cfg.PepperFile)
	if err != nil {
		return fmt.Errorf("failed to load pepper: %w", err)
	}
	hasher, err := cryptox.NewPasswordHasher(app.cfg.PasswordAlgorithm, pepper)
	if err != nil {
		return err
	}
	if app.cfg.BcryptCost > 0 {
		hasher.BcryptCost = app.cfg.BcryptCost
	}

	app.tokenService = service.NewTokenService(app.signer, app.cfg.Issuer, app.cfg.TokenTTL, app.clock)

	app.mfaService = service.NewMFAService(app.db, app.cfg.MFAIssuer, app.clock)
	app.mfaService.Skew = app.cfg.MFASkew
	app.mfaService.AllowReplay = !app.cfg.MFAReplayProtection
	if app.mfaService.AllowReplay {
		app.logger.Warn("mfa replay protection disabled, a code may be used more than once within its window")
	}

	app.authService = &service.AuthService{
		Store:             app.db,
		Hasher:            hasher,
		Tokens:            app.tokenService,
		MFA:               app.mfaService,
		Clock:             app.clock,
		MinPasswordLength: app.cfg.MinPasswordLength,
	}
	app.userService = &service.UserService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.clock,
		app.cfg.HousekeepingInterval,
		app.cfg.PendingEnrollmentMaxAge,
	)
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() error {
	proxies, err := httpx.ParseTrustedProxies(app.cfg.TrustedProxies)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(
		app.tokenService,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.AuthService = app.authService
	router.MFAService = app.mfaService
	router.UserService = app.userService
	router.SAML = app.saml // nil when SAML is not configured
	router.RateLimits = httpx.RateLimitsFromEnv(httpx.DefaultRateLimits())
	router.RequestTimeout = app.cfg.RequestTimeout
	router.TrustedProxies = proxies
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return nil
}
