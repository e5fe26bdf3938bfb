package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsRunsAndFailures(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("loyalty:expire").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("loyalty:expire").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("loyalty:expire", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("loyalty:expire", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("loyalty:expire")))
}

func TestDomainCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.AddExpiredPoints(7, 40)
	m.AddExpiredPoints(7, 0)
	m.AddStockDrift(7, 2)
	m.IncNotification("PAID")

	require.Equal(t, 40.0, testutil.ToFloat64(m.expiredPoints.WithLabelValues("7")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.stockDrift.WithLabelValues("7")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("PAID")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddExpiredPoints(1, 10)
	m.AddStockDrift(1, 1)
	m.IncNotification("SENT")
	require.NoError(t, m.Track("x").End(nil))
}
