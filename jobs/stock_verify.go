package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/docledger/internal/inventory"
	jobmetrics "github.com/odyssey-erp/docledger/internal/jobs"
	"github.com/odyssey-erp/docledger/internal/platform/cache"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// StockVerifier checks cached stock against the movement ledger.
type StockVerifier interface {
	Companies(ctx context.Context) ([]int64, error)
	VerifyCompany(ctx context.Context, companyID int64) ([]inventory.StockCheck, error)
	RepairStock(ctx context.Context, companyID, itemID int64) (inventory.Item, error)
}

// Locker runs fn under a named distributed lock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// StockVerifyJob reports, and optionally repairs, items whose cached stock
// disagrees with their latest movement.
type StockVerifyJob struct {
	Inventory StockVerifier
	Locker    Locker
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewStockVerifyJob builds the handler. locker may be nil.
func NewStockVerifyJob(inv StockVerifier, locker Locker, logger *slog.Logger, metrics *jobmetrics.Metrics) *StockVerifyJob {
	return &StockVerifyJob{Inventory: inv, Locker: locker, Logger: logger, Metrics: metrics}
}

// Handle processes TaskStockVerify tasks.
func (j *StockVerifyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inventory == nil {
		return errors.New("stock verify: handler not configured")
	}
	var payload StockVerifyPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.metrics().Track(TaskStockVerify)

	companies := payload.CompanyIDs
	if len(companies) == 0 {
		ids, err := j.Inventory.Companies(ctx)
		if err != nil {
			return tracker.End(fmt.Errorf("list companies: %w", err))
		}
		companies = ids
	}

	var drifted int
	for _, companyID := range companies {
		n, err := j.verify(ctx, companyID, payload.Repair)
		if errors.Is(err, cache.ErrLocked) {
			j.logger().Warn("stock verification skipped", slog.Int64("company_id", companyID), slog.Any("error", err))
			continue
		}
		if err != nil {
			return tracker.End(fmt.Errorf("company %d: %w", companyID, err))
		}
		drifted += n
	}
	j.logger().Info("stock verification completed",
		slog.Int("companies", len(companies)),
		slog.Int("drifted", drifted),
		slog.Bool("repair", payload.Repair))
	return tracker.End(nil)
}

func (j *StockVerifyJob) verify(ctx context.Context, companyID int64, repair bool) (int, error) {
	var drifted int
	run := func(ctx context.Context) error {
		drift, err := j.Inventory.VerifyCompany(ctx, companyID)
		if err != nil {
			return err
		}
		drifted = len(drift)
		j.metrics().AddStockDrift(companyID, drifted)
		if !repair {
			return nil
		}
		for _, check := range drift {
			if _, err := j.Inventory.RepairStock(ctx, companyID, check.ItemID); err != nil {
				return fmt.Errorf("repair item %d: %w", check.ItemID, err)
			}
		}
		return nil
	}
	var err error
	if j.Locker == nil {
		err = run(ctx)
	} else {
		err = j.Locker.WithLock(ctx, shared.StockVerifyLockKey(companyID), run)
	}
	if errors.Is(err, cache.ErrLocked) {
		return 0, fmt.Errorf("%w: stock verification already running for company %d: %w", shared.ErrTransient, companyID, err)
	}
	return drifted, err
}

func (j *StockVerifyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStockVerify))
	}
	return slog.Default().With(slog.String("job", TaskStockVerify))
}

func (j *StockVerifyJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
