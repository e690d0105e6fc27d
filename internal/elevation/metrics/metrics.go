// Package metrics provides observability for the elevation module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the elevation lifecycle.
type Metrics struct {
	// Requests by outcome: "approved", "denied", "failed".
	Requests *prometheus.CounterVec

	// Denials by reason: "policy", "mfa_required", "mfa_failed",
	// "mfa_not_configured", "duration_exceeded", "forbidden_scope",
	// "invalid_request".
	Denials *prometheus.CounterVec

	// Verifications by result: "valid", "token_not_found",
	// "tenant_not_authorized", "market_not_authorized", "revoked", "expired".
	Verifications *prometheus.CounterVec

	// Revocations by outcome: "revoked", "already_revoked", "unauthorized".
	Revocations *prometheus.CounterVec

	// Usage reports by policy result: "allowed", "denied".
	UsageReports *prometheus.CounterVec

	// Expirations swept by the reaper.
	ExpirationsSwept prometheus.Counter

	// Granted elevation window length.
	GrantDuration prometheus.Histogram

	// End-to-end request pipeline latency.
	RequestLatency prometheus.Histogram
}

// New creates and registers all elevation metrics.
func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_elevation_requests_total",
			Help: "Total elevation requests by outcome",
		}, []string{"outcome"}),

		Denials: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_elevation_denials_total",
			Help: "Total elevation denials by reason",
		}, []string{"reason"}),

		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_elevation_verifications_total",
			Help: "Total token verifications by result",
		}, []string{"result"}),

		Revocations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_elevation_revocations_total",
			Help: "Total revocation attempts by outcome",
		}, []string{"outcome"}),

		UsageReports: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "keystone_elevation_usage_reports_total",
			Help: "Total usage reports by policy result",
		}, []string{"result"}),

		ExpirationsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "keystone_elevation_expirations_swept_total",
			Help: "Total active records transitioned to expired by the reaper",
		}),

		GrantDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "keystone_elevation_grant_duration_seconds",
			Help:    "Length of granted elevation windows",
			Buckets: []float64{300, 900, 1800, 3600, 7200, 14400, 28800, 86400},
		}),

		RequestLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "keystone_elevation_request_duration_seconds",
			Help:    "Duration of the full request/approval pipeline",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// IncRequest records a request outcome.
func (m *Metrics) IncRequest(outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}

// IncDenial records a denial reason.
func (m *Metrics) IncDenial(reason string) {
	if m != nil {
		m.Denials.WithLabelValues(reason).Inc()
	}
}

// IncVerification records a verification result.
func (m *Metrics) IncVerification(result string) {
	if m != nil {
		m.Verifications.WithLabelValues(result).Inc()
	}
}

// IncRevocation records a revocation outcome.
func (m *Metrics) IncRevocation(outcome string) {
	if m != nil {
		m.Revocations.WithLabelValues(outcome).Inc()
	}
}

// IncUsageReport records a usage report result.
func (m *Metrics) IncUsageReport(result string) {
	if m != nil {
		m.UsageReports.WithLabelValues(result).Inc()
	}
}

// AddExpirationsSwept records reaper sweep volume.
func (m *Metrics) AddExpirationsSwept(n int) {
	if m != nil {
		m.ExpirationsSwept.Add(float64(n))
	}
}

// ObserveGrantDuration records the length of a granted window.
func (m *Metrics) ObserveGrantDuration(d time.Duration) {
	if m != nil {
		m.GrantDuration.Observe(d.Seconds())
	}
}

// ObserveRequestLatency records pipeline duration.
func (m *Metrics) ObserveRequestLatency(d time.Duration) {
	if m != nil {
		m.RequestLatency.Observe(d.Seconds())
	}
}
