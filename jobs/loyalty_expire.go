package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/docledger/internal/jobs"
	"github.com/odyssey-erp/docledger/internal/loyalty"
)

// ExpirationSweeper runs the per-tenant loyalty expiration.
type ExpirationSweeper interface {
	SweepAll(ctx context.Context, companyIDs []int64, now time.Time) ([]loyalty.SweepResult, error)
}

// LoyaltyExpireJob converts due GAIN points into EXPIRATION movements.
type LoyaltyExpireJob struct {
	Sweeper   ExpirationSweeper
	Companies []int64
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewLoyaltyExpireJob builds the handler. companies restricts scheduled runs to
// the given tenants; empty means every tenant with due points.
func NewLoyaltyExpireJob(sweeper ExpirationSweeper, companies []int64, logger *slog.Logger, metrics *jobmetrics.Metrics) *LoyaltyExpireJob {
	return &LoyaltyExpireJob{
		Sweeper:   sweeper,
		Companies: companies,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskLoyaltyExpire tasks.
func (j *LoyaltyExpireJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("loyalty expire: handler not configured")
	}
	var payload LoyaltyExpirePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	companies := payload.CompanyIDs
	if len(companies) == 0 {
		companies = j.Companies
	}
	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}

	start := j.now()
	tracker := j.metrics().Track(TaskLoyaltyExpire)
	results, err := j.Sweeper.SweepAll(ctx, companies, asOf)
	if err != nil {
		return tracker.End(err)
	}

	var clients int
	var points int64
	for _, res := range results {
		j.metrics().AddExpiredPoints(res.CompanyID, res.PointsExpired)
		clients += res.ClientsExpired
		points += res.PointsExpired
	}
	j.logger().Info("loyalty expiration completed",
		slog.Int("companies", len(results)),
		slog.Int("clients", clients),
		slog.Int64("points", points),
		slog.Time("as_of", asOf),
		slog.Duration("duration", j.now().Sub(start)))
	return tracker.End(nil)
}

func (j *LoyaltyExpireJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLoyaltyExpire))
	}
	return slog.Default().With(slog.String("job", TaskLoyaltyExpire))
}

func (j *LoyaltyExpireJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *LoyaltyExpireJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
