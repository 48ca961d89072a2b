package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskhub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	sessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_session_events_total",
		Help: "Session lifecycle events by kind",
	}, []string{"event"})

	guardDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_guard_decisions_total",
		Help: "Authorization guard outcomes per guarded request",
	}, []string{"decision"})

	roleChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_role_changes_total",
		Help: "Role change attempts by result",
	}, []string{"result"})

	invites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_invites_total",
		Help: "User invite attempts by result",
	}, []string{"result"})

	sweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_sweeps_total",
		Help: "Overdue sweep runs by source and result",
	}, []string{"source", "result"})

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskhub_sweep_duration_seconds",
		Help:    "Duration of overdue sweep runs",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	overdueFlagged = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskhub_overdue_flagged_last_sweep",
		Help: "Instances whose overdue flag changed in the last sweep",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveSession records a session lifecycle event
// (established, refreshed, refresh_rejected, destroyed).
func ObserveSession(event string) {
	sessionEvents.WithLabelValues(event).Inc()
}

// ObserveGuard records a guard outcome (proceed, login_redirect, role_redirect).
func ObserveGuard(decision string) {
	guardDecisions.WithLabelValues(decision).Inc()
}

// ObserveRoleChange records a role change attempt with a result label.
func ObserveRoleChange(result string) {
	roleChanges.WithLabelValues(result).Inc()
}

// ObserveInvite records an invite attempt with a result label.
func ObserveInvite(result string) {
	invites.WithLabelValues(result).Inc()
}

// ObserveSweep records a sweep run and how many flags it touched.
func ObserveSweep(source, result string, flagged int64, duration time.Duration) {
	sweeps.WithLabelValues(source, result).Inc()
	sweepDuration.WithLabelValues(result).Observe(duration.Seconds())
	if result == "success" {
		overdueFlagged.Set(float64(flagged))
	}
}
