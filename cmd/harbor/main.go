package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harbor-fin/harbor/internal/app"
	"github.com/harbor-fin/harbor/internal/balances"
	"github.com/harbor-fin/harbor/internal/coa"
	"github.com/harbor-fin/harbor/internal/fx"
	"github.com/harbor-fin/harbor/internal/journal"
	"github.com/harbor-fin/harbor/internal/observability"
	"github.com/harbor-fin/harbor/internal/periods"
	"github.com/harbor-fin/harbor/internal/platform/cache"
	"github.com/harbor-fin/harbor/internal/platform/db"
	"github.com/harbor-fin/harbor/internal/recon"
	"github.com/harbor-fin/harbor/internal/reports"
	"github.com/harbor-fin/harbor/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping server startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, advisory locks degrade to storage checks", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	metrics := observability.NewMetrics()
	auditLog := shared.NewAuditLogger(pool)
	locks := shared.NewAdvisoryLock(redisClient, cfg.LockTTL)

	balanceStore := balances.NewStore(pool).WithObserver(metrics)

	coaService := coa.NewService(coa.NewRepository(pool), auditLog)
	periodService := periods.NewService(periods.NewRepository(pool), auditLog, locks)
	journalService := journal.NewService(journal.NewRepository(pool, balanceStore), fx.NewRepository(pool), auditLog)
	journalService.WithObserver(metrics)
	journalService.WithRetries(cfg.BalanceRetries)
	reportService := reports.NewService(balanceStore)
	reconService := recon.NewService(recon.NewRepository(pool), balanceStore, locks, auditLog)
	reconService.WithWindowDays(cfg.ReconWindowDays)

	router := app.NewRouter(app.RouterParams{
		Config:         cfg,
		Logger:         logger,
		AccountHandler: coa.NewHandler(logger, coaService),
		PeriodHandler:  periods.NewHandler(periodService),
		JournalHandler: journal.NewHandler(journalService),
		ReportHandler:  reports.NewHandler(reportService),
		ReconHandler:   recon.NewHandler(reconService),
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
