package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"openfeedback/internal/api"
	"openfeedback/internal/api/handlers"
	"openfeedback/internal/api/middleware"
	"openfeedback/internal/engine/github"
	"openfeedback/internal/engine/installstate"
	"openfeedback/internal/engine/tenant"
	"openfeedback/internal/pkg/logger"
	"openfeedback/internal/platform/audit"
	"openfeedback/internal/platform/auth"
	"openfeedback/internal/platform/cache"
	"openfeedback/internal/platform/config"
	"openfeedback/internal/platform/database"
	"openfeedback/internal/platform/repositories"
	"openfeedback/migrations"
)

var (
	version = "dev"
	cli     struct {
		Config      string           `help:"Path to the config file." default:"configs/config.yaml" env:"OPENFEEDBACK_CONFIG" type:"path"`
		Debug       bool             `help:"Enable debug logging."`
		AutoMigrate bool             `help:"Apply database migrations on startup." env:"OPENFEEDBACK_AUTO_MIGRATE"`
		Version     kong.VersionFlag `help:"Print the version and exit."`
	}
)

func main() {
	ctx := kong.Parse(&cli,
		kong.Name("openfeedback-server"),
		kong.Description("OpenFeedback tenant and GitHub installation API."),
		kong.Vars{"version": version},
	)
	ctx.FatalIfErrorf(run())
}

func run() error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if cli.Debug {
		cfg.Logging.Level = "debug"
	}
	logger.Init(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cli.AutoMigrate {
		if _, err := database.Migrate(ctx, db, migrations.FS); err != nil {
			return err
		}
	}

	teamCache, err := cache.New(cfg.Cache)
	if err != nil {
		return err
	}
	if mem, ok := teamCache.(*cache.MemoryCache); ok {
		mem.StartJanitor(ctx, time.Minute)
	}
	if rc, ok := teamCache.(*cache.RedisCache); ok {
		defer rc.Close()
	}

	resolver := tenant.NewResolver(
		tenant.NewHostParser(cfg.Tenant.RootDomain, cfg.Tenant.ReservedSubdomains),
		repositories.NewTeamRepository(db),
		teamCache,
		cfg.Cache.TeamTTL,
	)

	signer, err := installstate.NewSigner(cfg.GitHub.StateSecret, cfg.GitHub.StateWindow)
	if err != nil {
		return err
	}

	var accounts github.AccountFetcher
	if cfg.GitHub.AppConfigured() {
		client, err := github.NewAPIClient(cfg.GitHub)
		if err != nil {
			return err
		}
		accounts = client
	} else {
		log.Warn().Msg("github app credentials not configured, installation accounts will not be fetched")
	}

	auditLog := audit.NewLogger(db)
	defer auditLog.Wait()

	githubSvc, err := github.NewService(
		repositories.NewInstallationRepository(db),
		signer,
		accounts,
		auditLog,
		cfg.GitHub.AppName,
		cfg.App.FrontendURL,
	)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimits)
	rateLimiter.StartCleanup(ctx, 10*time.Minute)

	router := api.NewRouter(&api.Dependencies{
		TenantHandler:        handlers.NewTenantHandler(),
		GitHubHandler:        handlers.NewGitHubHandler(githubSvc),
		GitHubWebhookHandler: handlers.NewGitHubWebhookHandler(githubSvc, cfg.GitHub.WebhookSecret),
		HealthHandler:        handlers.NewHealthHandler(db, handlers.PingerFunc(teamCache.Ping)),
		MetricsHandler:       handlers.NewMetricsHandler(resolver),
		AuthMiddleware:       middleware.NewAuthMiddleware(auth.NewTokenService(cfg.JWT)),
		TenantMiddleware:     middleware.NewTenantMiddleware(resolver),
		RateLimiter:          rateLimiter,
		CORS:                 cfg.CORS,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
