package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/ledgerline/internal/app"
	bankinghttp "github.com/ledgerline/ledgerline/internal/banking/http"
	"github.com/ledgerline/ledgerline/internal/importer"
	"github.com/ledgerline/ledgerline/internal/observability"
	"github.com/ledgerline/ledgerline/internal/platform/cache"
	"github.com/ledgerline/ledgerline/internal/platform/db"
	"github.com/ledgerline/ledgerline/internal/platform/gotenberg"
	reconhttp "github.com/ledgerline/ledgerline/internal/reconciliation/http"
	"github.com/ledgerline/ledgerline/internal/reports/export"
	reportshttp "github.com/ledgerline/ledgerline/internal/reports/http"
	"github.com/ledgerline/ledgerline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Reports fall back to direct builds and locks to row locks only.
		logger.Warn("redis unavailable, continuing without cache", slog.Any("error", err))
		_ = redisClient.Close()
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services, err := app.BuildServices(cfg, logger, pool, redisClient, metrics)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}

	if err := services.ReportCache.ListenForInvalidation(ctx, func(companyID, version int64) {
		logger.Debug("report cache invalidated", slog.Int64("company_id", companyID), slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe report invalidations", slog.Any("error", err))
	}

	pdfClient := gotenberg.NewClient(cfg.GotenbergURL)
	renderer, err := export.NewRenderer(pdfClient)
	if err != nil {
		logger.Error("init statement renderer", slog.Any("error", err))
		os.Exit(1)
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	checks := map[string]app.ReadinessCheck{"postgres": pool.Ping}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Metrics:        metrics,
		ReconHandler:   reconhttp.NewHandler(logger, services.Reconciliation),
		ReportsHandler: reportshttp.NewHandler(logger, services.Reports, renderer),
		BankingHandler: bankinghttp.NewHandler(logger, services.Banking, importer.DefaultRegistry()),
		JobHandler:     jobs.NewHandler(inspector, logger),
		Checks:         checks,
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
