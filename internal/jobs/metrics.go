package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	expiredPoints *prometheus.CounterVec
	stockDrift    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddExpiredPoints counts loyalty points removed by an expiration sweep.
func (m *Metrics) AddExpiredPoints(companyID, points int64) {
	if m == nil || points <= 0 {
		return
	}
	m.expiredPoints.WithLabelValues(formatInt(companyID)).Add(float64(points))
}

// AddStockDrift counts items whose cached stock disagreed with the ledger.
func (m *Metrics) AddStockDrift(companyID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.stockDrift.WithLabelValues(formatInt(companyID)).Add(float64(count))
}

// IncNotification counts document notifications by target status.
func (m *Metrics) IncNotification(status string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(status).Inc()
}

func formatInt(v int64) string {
	if v <= 0 {
		return "0"
	}
	return strconv.FormatInt(v, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docledger_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docledger_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docledger_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	expired := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docledger_loyalty_points_expired_total",
		Help: "Loyalty points expired by the sweep, per company.",
	}, []string{"company"})
	drift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docledger_stock_drift_items_total",
		Help: "Stock items whose cached quantity disagreed with the movement ledger.",
	}, []string{"company"})
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "docledger_document_notifications_total",
		Help: "Document notifications delivered, by document status.",
	}, []string{"status"})
	registerer.MustRegister(runs, failures, duration, expired, drift, notifications)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		expiredPoints: expired,
		stockDrift:    drift,
		notifications: notifications,
	}
}
