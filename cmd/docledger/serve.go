package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/docledger/internal/app"
	"github.com/odyssey-erp/docledger/internal/audit"
	"github.com/odyssey-erp/docledger/internal/documents"
	"github.com/odyssey-erp/docledger/internal/inventory"
	"github.com/odyssey-erp/docledger/internal/loyalty"
	"github.com/odyssey-erp/docledger/internal/observability"
	"github.com/odyssey-erp/docledger/internal/payments"
	"github.com/odyssey-erp/docledger/internal/platform/cache"
	"github.com/odyssey-erp/docledger/internal/platform/db"
	"github.com/odyssey-erp/docledger/internal/shared"
	"github.com/odyssey-erp/docledger/jobs"
)

func serve(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			return err
		}
		logger.Info("schema applied")
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	locker := cache.NewLocker(redisClient, cfg.SweepLockTTL)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	documentService := documents.NewService(documents.NewRepository(pool), auditLogger, logger)
	paymentService := payments.NewService(payments.NewRepository(pool), auditLogger, logger)
	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, idempotencyStore, metrics, logger)
	loyaltyService := loyalty.NewService(loyalty.NewRepository(pool), auditLogger, logger)
	sweeper := loyalty.NewSweeper(loyaltyService, locker, logger, cfg.LoyaltySweepParallel)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DocumentsHandler: documents.NewHandler(logger, documentService, jobsClient),
		PaymentsHandler:  payments.NewHandler(logger, paymentService, jobsClient),
		InventoryHandler: inventory.NewHandler(logger, inventoryService),
		LoyaltyHandler:   loyalty.NewHandler(logger, loyaltyService, sweeper),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool))),
		JobHandler:       jobs.NewHandler(inspector, jobsClient, logger),
		Metrics:          metrics,
		Checks: map[string]app.HealthChecker{
			"postgres": func(r *http.Request) error { return pool.Ping(r.Context()) },
			"redis":    func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() },
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
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
