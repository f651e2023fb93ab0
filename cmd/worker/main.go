package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/summitsafety/academy/internal/app"
	jobmetrics "github.com/summitsafety/academy/internal/jobs"
	"github.com/summitsafety/academy/internal/platform/db"
	"github.com/summitsafety/academy/internal/shared"
	"github.com/summitsafety/academy/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	metrics := jobmetrics.NewMetrics(nil)

	mailer := jobs.NewMailer(jobs.MailerConfig{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUsername,
		Password:      cfg.SMTPPassword,
		From:          cfg.SMTPFrom,
		OpsAlertEmail: cfg.OpsAlertEmail,
		Logger:        logger,
		Metrics:       metrics,
	})

	idempotencyStore := shared.NewIdempotencyStore(pool)
	cleaner := jobs.NewIdempotencyCleaner(idempotencyStore, cfg.IdempotencyRetention, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Mailer:    mailer,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeIdempotencyCleanup, Handler: cleaner.HandleCleanup},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: jobs.NewIdempotencyCleanupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
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
