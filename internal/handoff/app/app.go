package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	httpapi "github.com/driftboard/handoff/internal/handoff/http"
	"github.com/driftboard/handoff/internal/handoff/provider"
	"github.com/driftboard/handoff/internal/handoff/service"
	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/driftboard/handoff/internal/handoff/store/drivers/sqlite"
	"github.com/driftboard/handoff/pkg/cryptox"
	"github.com/driftboard/handoff/pkg/idx"
	"github.com/driftboard/handoff/pkg/jwtx"
	"github.com/driftboard/handoff/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags
	BuildVersion = "v0.1.0"
)

// Application encapsulates the handoff broker with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store
	signer   jwtx.Signer
	keys     *jwtx.KeySet
	verifier jwtx.Verifier

	// Services
	handoffService      *service.HandoffService
	invitationService   *service.InvitationService
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
			Service: "handoff-broker",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	// Key material for sealing provider tokens at rest
	cryptox.SetSealKeyPath(cfg.SealKeyFile)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initKeys(); err != nil {
		return nil, err
	}

	if err := app.initServices(); err != nil {
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("handoff broker starting", "port", app.cfg.Port, "version", BuildVersion)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
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

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down handoff broker...")

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

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("handoff broker stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
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

// initKeys generates the ephemeral signing key pair. Access tokens are
// short-lived; a restart only forces clients through a fresh handoff.
func (app *Application) initKeys() error {
	signer, err := jwtx.GenerateSignerEdDSA(idx.New().String())
	if err != nil {
		return fmt.Errorf("failed to generate signing key: %w", err)
	}

	keys := jwtx.NewKeySet()
	if err := keys.AddJWK(signer.PublicJWK()); err != nil {
		return fmt.Errorf("failed to register signing key: %w", err)
	}

	app.signer = signer
	app.keys = keys
	app.verifier = jwtx.NewVerifierEdDSA(keys, app.cfg.Issuer, app.cfg.Audience)

	app.logger.Info("signing key generated", "kid", signer.KID(), "alg", signer.Alg())
	return nil
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	registry, err := app.buildProviderRegistry()
	if err != nil {
		return err
	}

	app.handoffService = &service.HandoffService{
		Store:                app.db,
		Providers:            registry,
		Signer:               app.signer,
		Issuer:               app.cfg.Issuer,
		Audience:             app.cfg.Audience,
		SessionTTL:           app.cfg.SessionTTL,
		AccessTokenTTL:       app.cfg.AccessTokenTTL,
		MaxRedeemAttempts:    app.cfg.MaxRedeemAttempts,
		AllowedReturnTargets: app.cfg.ReturnToAllowList,
	}

	app.invitationService = &service.InvitationService{
		Store: app.db,
		TTL:   app.cfg.InvitationTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.SessionRetention,
	)

	return nil
}

// buildProviderRegistry registers an adapter for every provider with
// credentials configured.
func (app *Application) buildProviderRegistry() (*provider.Registry, error) {
	redirectURL := strings.TrimSuffix(app.cfg.CallbackBaseURL, "/") + "/oauth/web/callback"

	var adapters []provider.Adapter
	if app.cfg.GitHubClientID != "" {
		adapters = append(adapters, provider.NewGitHub(provider.GitHubConfig{
			ClientID:     app.cfg.GitHubClientID,
			ClientSecret: app.cfg.GitHubClientSecret,
			RedirectURL:  redirectURL,
		}))
	}
	if app.cfg.GoogleClientID != "" {
		adapters = append(adapters, provider.NewGoogle(provider.GoogleConfig{
			ClientID:     app.cfg.GoogleClientID,
			ClientSecret: app.cfg.GoogleClientSecret,
			RedirectURL:  redirectURL,
		}))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no providers configured: set HANDOFF_GITHUB_CLIENT_ID or HANDOFF_GOOGLE_CLIENT_ID")
	}

	registry := provider.NewRegistry(adapters...)
	app.logger.Info("providers registered", "providers", registry.Names(), "redirect_url", redirectURL)
	return registry, nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keys,
		app.verifier,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.HandoffService = app.handoffService
	router.InvitationService = app.invitationService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
