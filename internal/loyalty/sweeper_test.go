package loyalty

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/docledger/internal/platform/cache"
	"github.com/odyssey-erp/docledger/internal/shared"
)

func newTestSweeper(t *testing.T, svc *Service) (*Sweeper, *cache.Locker) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewLocker(client, time.Minute)
	// the in-memory repository is not safe for concurrent tenants
	return NewSweeper(svc, locker, nil, 1), locker
}

func TestSweepAllDiscoversTenants(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	for _, companyID := range []int64{1, 2} {
		c := newClient(t, svc, companyID)
		_, _, err := svc.GrantPoints(ctx, companyID, c.ID, 25, yesterday(), "")
		require.NoError(t, err)
	}
	sweeper, _ := newTestSweeper(t, svc)

	results, err := sweeper.SweepAll(ctx, nil, sweepNow)
	require.NoError(t, err)
	require.Len(t, results, 2)
	sort.Slice(results, func(i, j int) bool { return results[i].CompanyID < results[j].CompanyID })
	require.Equal(t, int64(25), results[0].PointsExpired)
	require.Equal(t, int64(25), results[1].PointsExpired)

	results, err = sweeper.SweepAll(ctx, nil, sweepNow)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSweepSkipsLockedTenant(t *testing.T) {
	repo := newMemoryRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	c := newClient(t, svc, 1)
	_, _, err := svc.GrantPoints(ctx, 1, c.ID, 10, yesterday(), "")
	require.NoError(t, err)
	sweeper, locker := newTestSweeper(t, svc)

	err = locker.WithLock(ctx, shared.LoyaltySweepLockKey(1), func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx, 1, sweepNow)
		require.ErrorIs(t, err, shared.ErrTransient)

		results, err := sweeper.SweepAll(ctx, []int64{1}, sweepNow)
		require.NoError(t, err)
		require.Empty(t, results)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), repo.clients[c.ID].PointsBalance)

	res, err := sweeper.Sweep(ctx, 1, sweepNow)
	require.NoError(t, err)
	require.Equal(t, int64(10), res.PointsExpired)
}

type unavailableRepo struct {
	*memoryRepo
	err error
}

func (r unavailableRepo) WithTx(context.Context, func(context.Context, TxRepository) error) error {
	return r.err
}

func TestSweepAllReturnsDatabaseFailure(t *testing.T) {
	outage := fmt.Errorf("%w: platform/db: begin tx: connection refused", shared.ErrTransient)
	svc := NewService(unavailableRepo{memoryRepo: newMemoryRepo(), err: outage}, nil, nil)
	sweeper, _ := newTestSweeper(t, svc)

	results, err := sweeper.SweepAll(context.Background(), []int64{1, 2, 3}, sweepNow)
	require.ErrorIs(t, err, shared.ErrTransient)
	require.NotErrorIs(t, err, cache.ErrLocked)
	require.Empty(t, results)
}
