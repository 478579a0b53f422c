package telemetry

import (
	"time"

	"github.com/erp/catalogsync/internal/domain/integration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SyncMetrics holds the Prometheus collectors of the reconciliation engine.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	attempts          *prometheus.CounterVec
	attemptDuration   *prometheus.HistogramVec
	platformCalls     *prometheus.CounterVec
	retries           *prometheus.CounterVec
	limiterWait       *prometheus.HistogramVec
	loopSuppressed    *prometheus.CounterVec
	cascadeFanout     prometheus.Histogram
	notificationSends *prometheus.CounterVec
	brokerHealthy     prometheus.Gauge
}

// NewSyncMetrics registers the collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_sync_attempts_total",
			Help: "Sync attempts by platform, operation and outcome",
		}, []string{"platform", "operation", "outcome"}),

		attemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catsync_sync_attempt_duration_seconds",
			Help:    "Wall time of one sync attempt, retries and limiter waits included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"platform", "operation"}),

		platformCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_platform_calls_total",
			Help: "External calls made by sync attempts",
		}, []string{"platform"}),

		retries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_platform_retries_total",
			Help: "Platform calls repeated after a transient failure",
		}, []string{"platform"}),

		limiterWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catsync_rate_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter slot",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"platform"}),

		loopSuppressed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_loop_guard_suppressed_total",
			Help: "Changes suppressed by the loop guard",
		}, []string{"reason"}),

		cascadeFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "catsync_cascade_fanout",
			Help:    "Dependents re-synced per referenced-entity change",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
		}),

		notificationSends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_notification_sends_total",
			Help: "Notification send requests by status",
		}, []string{"status"}),

		brokerHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "catsync_broker_healthy",
			Help: "1 when the attempt broker connection is open",
		}),
	}
}

// RecordAttempt counts a finished attempt
func (m *SyncMetrics) RecordAttempt(a *integration.SyncAttempt) {
	if m == nil || a == nil {
		return
	}
	platform := string(a.Platform)
	m.attempts.WithLabelValues(platform, string(a.Operation), string(a.Outcome)).Inc()
	m.attemptDuration.WithLabelValues(platform, string(a.Operation)).Observe(a.Duration.Seconds())
	if a.Calls > 0 {
		m.platformCalls.WithLabelValues(platform).Add(float64(a.Calls))
	}
}

// IncRetry counts one repeated platform call
func (m *SyncMetrics) IncRetry(platform integration.PlatformCode) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(string(platform)).Inc()
}

// ObserveLimiterWait records a granted rate limiter slot. Its signature matches
// ratelimit.WaitObserver.
func (m *SyncMetrics) ObserveLimiterWait(platform integration.PlatformCode, waited time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.WithLabelValues(string(platform)).Observe(waited.Seconds())
}

// IncLoopSuppressed counts a change dropped by the loop guard
func (m *SyncMetrics) IncLoopSuppressed(reason string) {
	if m == nil {
		return
	}
	m.loopSuppressed.WithLabelValues(reason).Inc()
}

// ObserveCascade records how many dependents one change fanned out to
func (m *SyncMetrics) ObserveCascade(dependents int) {
	if m == nil {
		return
	}
	m.cascadeFanout.Observe(float64(dependents))
}

// IncNotification counts a notification send by its resulting status
func (m *SyncMetrics) IncNotification(status string) {
	if m == nil {
		return
	}
	m.notificationSends.WithLabelValues(status).Inc()
}

// SetBrokerHealthy reports the attempt broker connection state
func (m *SyncMetrics) SetBrokerHealthy(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.brokerHealthy.Set(1)
		return
	}
	m.brokerHealthy.Set(0)
}
