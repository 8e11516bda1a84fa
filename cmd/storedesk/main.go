package main

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

	"github.com/storedesk/storedesk/internal/access"
	"github.com/storedesk/storedesk/internal/apiclient"
	"github.com/storedesk/storedesk/internal/app"
	"github.com/storedesk/storedesk/internal/assistant"
	"github.com/storedesk/storedesk/internal/auth"
	"github.com/storedesk/storedesk/internal/bills"
	"github.com/storedesk/storedesk/internal/dashboard"
	"github.com/storedesk/storedesk/internal/guard"
	"github.com/storedesk/storedesk/internal/observability"
	"github.com/storedesk/storedesk/internal/platform/cache"
	"github.com/storedesk/storedesk/internal/platform/db"
	"github.com/storedesk/storedesk/internal/products"
	"github.com/storedesk/storedesk/internal/reports"
	"github.com/storedesk/storedesk/internal/shared"
	"github.com/storedesk/storedesk/internal/users"
	"github.com/storedesk/storedesk/internal/view"
	"github.com/storedesk/storedesk/report"
)

var version = "dev"

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(cfg, logger); err != nil {
		logger.Error("storedesk stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// run owns every resource it opens, so its deferred cleanups execute on
// both clean shutdown and startup failure.
func run(cfg *app.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTraceProvider(ctx, cfg.OTelEndpoint, version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", slog.Any("error", err))
		}
	}()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	checks := map[string]app.Pinger{
		"redis": app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
	}

	var auditLogger view.Auditor = shared.NopAuditLogger{}
	if cfg.PGDSN != "" {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			return fmt.Errorf("prepare session audit schema: %w", err)
		}
		auditLogger = shared.NewAuditLogger(pool)
		checks["postgres"] = app.PingFunc(pool.Ping)
	} else {
		logger.Info("PG_DSN not set, session audit disabled")
	}

	metrics := observability.NewMetrics()

	client := apiclient.NewClient(apiclient.Config{
		BaseURL:  cfg.APIBaseURL,
		Timeout:  cfg.APITimeout,
		Logger:   logger,
		Observer: metrics,
	})
	checks["api"] = client

	pdf := report.NewClient(cfg.GotenbergURL, 0)
	if cfg.GotenbergURL != "" {
		checks["gotenberg"] = pdf
	}

	sessionManager := shared.NewSessionManager(redisClient, "storedesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	registry := access.MustDefaultRegistry()
	routeGuard := guard.New(registry, logger, metrics)
	pages := view.NewPages(templates, registry, csrfManager, auditLogger, logger)

	handlers := []app.RouteMounter{
		auth.NewHandler(auth.Deps{
			Logger:   logger,
			Service:  auth.NewService(client),
			Pages:    pages,
			Sessions: sessionManager,
			CSRF:     csrfManager,
			Guard:    routeGuard,
			Audit:    auditLogger,
			Recorder: metrics,
		}),
		dashboard.NewHandler(logger, client, pages, routeGuard, cfg.LowStockThreshold),
		products.NewHandler(logger, client, pages, routeGuard, cfg.LowStockThreshold),
		bills.NewHandler(logger, client, pdf, pages, routeGuard),
		reports.NewHandler(logger, client, pages, routeGuard),
		users.NewHandler(logger, users.NewService(client), pages, routeGuard),
		assistant.NewHandler(logger, client, pages, routeGuard),
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Guard:          routeGuard,
		Handlers:       handlers,
		Metrics:        metrics,
		Checks:         checks,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("api", cfg.APIBaseURL))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
