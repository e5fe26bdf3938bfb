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

	"github.com/odyssey-erp/docledger/internal/app"
	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/inventory"
	"github.com/odyssey-erp/docledger/internal/loyalty"
	"github.com/odyssey-erp/docledger/internal/observability"
	"github.com/odyssey-erp/docledger/internal/platform/cache"
	"github.com/odyssey-erp/docledger/internal/platform/db"
	"github.com/odyssey-erp/docledger/internal/shared"
	"github.com/odyssey-erp/docledger/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
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
	jobMetrics := metrics.Jobs()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := cache.NewLocker(redisClient, cfg.SweepLockTTL)

	documentService := documents.NewService(documents.NewRepository(pool), auditLogger, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, idempotencyStore, metrics, logger)
	loyaltyService := loyalty.NewService(loyalty.NewRepository(pool), auditLogger, logger)
	sweeper := loyalty.NewSweeper(loyaltyService, locker, logger, cfg.LoyaltySweepParallel)

	notifyJob := jobs.NewDocumentNotifyJob(documentService, jobs.LogSender{Logger: logger}, logger, jobMetrics)
	expireJob := jobs.NewLoyaltyExpireJob(sweeper, cfg.LoyaltySweepCompanies, logger, jobMetrics)
	verifyJob := jobs.NewStockVerifyJob(inventoryService, locker, logger, jobMetrics)
	cleanupJob := &jobs.IdempotencyCleanupJob{Store: idempotencyStore, Logger: logger, Metrics: jobMetrics}

	expireTask, err := jobs.NewLoyaltyExpireTask(jobs.LoyaltyExpirePayload{})
	if err != nil {
		logger.Error("build loyalty expire task", slog.Any("error", err))
		os.Exit(1)
	}
	verifyTask, err := jobs.NewStockVerifyTask(jobs.StockVerifyPayload{Repair: cfg.StockVerifyRepair})
	if err != nil {
		logger.Error("build stock verify task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskDocumentNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskLoyaltyExpire, Handler: expireJob.Handle},
			{Type: jobs.TaskStockVerify, Handler: verifyJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.LoyaltySweepCron, Task: expireTask},
			{Spec: cfg.StockVerifyCron, Task: verifyTask},
			{Spec: "0 4 * * *", Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := metrics.Server(cfg.WorkerMetricsAddr)
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("worker metrics shutdown", slog.Any("error", err))
		}
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
