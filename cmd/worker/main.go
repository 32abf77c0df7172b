package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/harbor-fin/harbor/internal/app"
	"github.com/harbor-fin/harbor/internal/observability"
	"github.com/harbor-fin/harbor/internal/outbox"
	"github.com/harbor-fin/harbor/internal/periods"
	"github.com/harbor-fin/harbor/internal/platform/cache"
	"github.com/harbor-fin/harbor/internal/platform/db"
	"github.com/harbor-fin/harbor/internal/shared"
	"github.com/harbor-fin/harbor/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLog := shared.NewAuditLogger(pool)
	locks := shared.NewAdvisoryLock(redisClient, cfg.LockTTL)

	periodService := periods.NewService(periods.NewRepository(pool), auditLog, locks)
	integrity := jobs.NewGLIntegrityChecker(pool, periodService, metrics, logger)
	drainer := jobs.NewOutboxDrainer(outbox.NewRepository(pool), jobs.LogSink{Logger: logger}, logger)

	drainTask, err := jobs.NewOutboxDrainTask(jobs.OutboxDrainPayload{BatchSize: 100})
	if err != nil {
		logger.Error("build drain task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			integrity.TaskHandler(),
			drainer.TaskHandler(),
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/1 * * * *", Task: drainTask},
			{Spec: "30 1 * * *", Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
