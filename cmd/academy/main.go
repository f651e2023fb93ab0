package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/summitsafety/academy/internal/app"
	"github.com/summitsafety/academy/internal/capacity"
	"github.com/summitsafety/academy/internal/catalog"
	"github.com/summitsafety/academy/internal/codes"
	"github.com/summitsafety/academy/internal/enrollment"
	"github.com/summitsafety/academy/internal/observability"
	"github.com/summitsafety/academy/internal/platform/cache"
	"github.com/summitsafety/academy/internal/platform/db"
	"github.com/summitsafety/academy/internal/shared"
	"github.com/summitsafety/academy/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	queueClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()
	notifier := jobs.NewNotifier(queueClient)

	capacityRepo := capacity.NewRepository(dbpool)
	capacityService := capacity.NewService(capacityRepo)

	catalogRepo := catalog.NewRepository(dbpool)
	scheduleCache := catalog.NewScheduleCache(redisClient, cfg.ScheduleCacheTTL)
	catalogService := catalog.NewService(catalogRepo, capacityService, scheduleCache)
	catalogHandler := catalog.NewHandler(logger, catalogService)

	capacityHandler := capacity.NewHandler(logger, capacityService, catalogService)

	enrollmentRepo := enrollment.NewRepository(dbpool)
	enrollmentService := enrollment.NewService(logger, enrollmentRepo, capacityService, catalogService, idempotencyStore, notifier, metrics)
	enrollmentHandler := enrollment.NewHandler(logger, enrollmentService)

	webhookVerifier := enrollment.NewWebhookVerifier(cfg.PaymentWebhookSecret)
	webhookHandler := enrollment.NewWebhookHandler(logger, enrollmentService, webhookVerifier, metrics)

	codesRepo := codes.NewRepository(dbpool)
	codesService := codes.NewService(logger, codesRepo, catalogService, enrollmentService)
	codesHandler := codes.NewHandler(logger, codesService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		CatalogHandler:    catalogHandler,
		CapacityHandler:   capacityHandler,
		EnrollmentHandler: enrollmentHandler,
		CodesHandler:      codesHandler,
		WebhookHandler:    webhookHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
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
