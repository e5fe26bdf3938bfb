package loyalty

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func at(days int) *time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return &t
}

func TestPlanExpirationCapsAtBalance(t *testing.T) {
	now := *at(10)
	gains := []Movement{
		{ID: 1, ClientID: 1, Type: MovementGain, Points: 100, Remaining: 100, ExpiresAt: at(9)},
		{ID: 2, ClientID: 1, Type: MovementGain, Points: 50, Remaining: 20, ExpiresAt: at(10)},
		{ID: 3, ClientID: 2, Type: MovementGain, Points: 80, Remaining: 80, ExpiresAt: at(1)},
		{ID: 4, ClientID: 3, Type: MovementGain, Points: 30, Remaining: 30, ExpiresAt: at(2)},
		{ID: 5, ClientID: 1, Type: MovementGain, Points: 10, Remaining: 10, ExpiresAt: at(11)},
		{ID: 6, ClientID: 1, Type: MovementGain, Points: 10, Remaining: 10},
	}
	plan := PlanExpiration(gains, map[int64]int64{1: 500, 2: 30, 3: 0}, now)

	require.Len(t, plan, 3)
	require.Equal(t, Expiration{ClientID: 1, Pending: 120, Points: 120, GainIDs: []int64{1, 2}}, plan[0])
	require.Equal(t, Expiration{ClientID: 2, Pending: 80, Points: 30, GainIDs: []int64{3}}, plan[1])
	require.Equal(t, int64(0), plan[2].Points)
	require.Equal(t, []int64{4}, plan[2].GainIDs)
}

func TestPlanExpirationIgnoresClosedGains(t *testing.T) {
	gains := []Movement{{ID: 1, ClientID: 1, Type: MovementGain, Points: 100, Remaining: 0, ExpiresAt: at(0)}}
	require.Empty(t, PlanExpiration(gains, map[int64]int64{1: 100}, *at(5)))
}

func TestPlanConsumptionSoonestExpiryFirst(t *testing.T) {
	gains := []Movement{
		{ID: 1, Type: MovementGain, Remaining: 40},
		{ID: 2, Type: MovementGain, Remaining: 30, ExpiresAt: at(20)},
		{ID: 3, Type: MovementGain, Remaining: 25, ExpiresAt: at(5)},
		{ID: 4, Type: MovementGain, Remaining: 0, ExpiresAt: at(1)},
	}
	require.Equal(t, map[int64]int64{3: 0, 2: 15}, PlanConsumption(gains, 40))
	require.Equal(t, map[int64]int64{3: 0, 2: 0, 1: 0}, PlanConsumption(gains, 500))
	require.Empty(t, PlanConsumption(gains, 0))
}

func TestSum(t *testing.T) {
	require.Equal(t, int64(35), Sum([]Movement{{Points: 100}, {Points: -50}, {Points: -15}}))
}
