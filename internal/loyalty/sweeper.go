package loyalty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/docledger/internal/platform/cache"
	"github.com/odyssey-erp/docledger/internal/shared"
)

// Locker runs fn under a named distributed lock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

// Sweeper runs expiration sweeps so that two runs for the same tenant never
// overlap, whether they come from the scheduler or an operator.
type Sweeper struct {
	service     *Service
	locker      Locker
	logger      *slog.Logger
	concurrency int
}

// NewSweeper builds Sweeper. A nil locker runs sweeps unguarded.
func NewSweeper(service *Service, locker Locker, logger *slog.Logger, concurrency int) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Sweeper{service: service, locker: locker, logger: logger, concurrency: concurrency}
}

// Sweep expires one tenant's due points under the tenant lock. A sweep already
// running elsewhere surfaces as a transient failure that also matches
// cache.ErrLocked.
func (s *Sweeper) Sweep(ctx context.Context, companyID int64, now time.Time) (SweepResult, error) {
	var result SweepResult
	run := func(ctx context.Context) error {
		var err error
		result, err = s.service.ExpireDuePoints(ctx, companyID, now)
		return err
	}
	var err error
	if s.locker == nil {
		err = run(ctx)
	} else {
		err = s.locker.WithLock(ctx, shared.LoyaltySweepLockKey(companyID), run)
	}
	if errors.Is(err, cache.ErrLocked) {
		return SweepResult{CompanyID: companyID}, fmt.Errorf("%w: expiration sweep already running for company %d: %w", shared.ErrTransient, companyID, err)
	}
	return result, err
}

// SweepAll sweeps the given tenants concurrently, or every tenant holding due
// points when companyIDs is empty. Tenants locked by another worker are
// skipped. Any other failure, transient database errors included, cancels the
// remaining sweeps and is returned so the caller can retry.
func (s *Sweeper) SweepAll(ctx context.Context, companyIDs []int64, now time.Time) ([]SweepResult, error) {
	if len(companyIDs) == 0 {
		ids, err := s.service.CompaniesWithDuePoints(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("list companies with due points: %w", err)
		}
		companyIDs = ids
	}
	var (
		mu      sync.Mutex
		results = make([]SweepResult, 0, len(companyIDs))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, companyID := range companyIDs {
		g.Go(func() error {
			res, err := s.Sweep(gctx, companyID, now)
			if errors.Is(err, cache.ErrLocked) {
				s.logger.Warn("loyalty sweep skipped", slog.Int64("company_id", companyID), slog.Any("error", err))
				return nil
			}
			if err != nil {
				return fmt.Errorf("company %d: %w", companyID, err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return results, err
}
