package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/platinummonkey/ehrops/pkg/apperrors"
)

// Metrics holds the Prometheus collectors for the access-control engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Authorization metrics
	PermissionChecksTotal  *prometheus.CounterVec
	AccessEvaluationsTotal *prometheus.CounterVec
	SimulationsTotal       *prometheus.CounterVec

	// Invitation metrics
	InvitationEventsTotal     *prometheus.CounterVec
	InvitationsExpiredTotal   prometheus.Counter
	NotificationFailuresTotal *prometheus.CounterVec

	// Control plane
	SeedRunsTotal *prometheus.CounterVec

	// Storage metrics
	OperationDuration  *prometheus.HistogramVec
	StorageErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ehrops_permission_checks_total",
				Help: "Total number of permission checks by result",
			},
			[]string{"result"},
		),
		AccessEvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ehrops_access_evaluations_total",
				Help: "Total number of access-rule evaluations by role level",
			},
			[]string{"level"},
		),
		SimulationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ehrops_role_simulations_total",
				Help: "Total number of role simulation requests",
			},
			[]string{"status"},
		),
		InvitationEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ehrops_invitation_events_total",
				Help: "Total number of invitation lifecycle events",
			},
			[]string{"event"},
		),
		InvitationsExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ehrops_invitations_expired_total",
				Help: "Total number of invitations moved to expired by sweeps",
			},
		),
		NotificationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ehrops_notification_failures_total",
				Help: "Total number of invitation notifications that could not be delivered",
			},
			[]string{"notifier"},
		),
		SeedRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ehrops_seed_runs_total",
				Help: "Total number of base catalog seed runs by outcome",
			},
			[]string{"status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ehrops_operation_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ehrops_storage_errors_total",
				Help: "Total number of persistence failures",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.PermissionChecksTotal,
		m.AccessEvaluationsTotal,
		m.SimulationsTotal,
		m.InvitationEventsTotal,
		m.InvitationsExpiredTotal,
		m.NotificationFailuresTotal,
		m.SeedRunsTotal,
		m.OperationDuration,
		m.StorageErrorsTotal,
	)

	return m
}

// RecordPermissionCheck counts a hasPermission decision
func (m *Metrics) RecordPermissionCheck(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.PermissionChecksTotal.WithLabelValues(result).Inc()
}

// RecordAccessEvaluation counts an access-rule evaluation
func (m *Metrics) RecordAccessEvaluation(level string) {
	if m == nil {
		return
	}
	m.AccessEvaluationsTotal.WithLabelValues(level).Inc()
}

// RecordSimulation counts a role simulation request
func (m *Metrics) RecordSimulation(status string) {
	if m == nil {
		return
	}
	m.SimulationsTotal.WithLabelValues(status).Inc()
}

// RecordInvitationEvent counts an invitation transition (created, resent, revoked, accepted)
func (m *Metrics) RecordInvitationEvent(event string) {
	if m == nil {
		return
	}
	m.InvitationEventsTotal.WithLabelValues(event).Inc()
}

// RecordInvitationsExpired adds the result of an expiry sweep
func (m *Metrics) RecordInvitationsExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.InvitationsExpiredTotal.Add(float64(n))
}

// RecordNotificationFailure counts a failed invitation notification
func (m *Metrics) RecordNotificationFailure(notifier string) {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.WithLabelValues(notifier).Inc()
}

// RecordSeedRun counts a seed run by outcome (seeded, skipped, failed)
func (m *Metrics) RecordSeedRun(status string) {
	if m == nil {
		return
	}
	m.SeedRunsTotal.WithLabelValues(status).Inc()
}

// ObserveOperation records the duration of an engine operation and counts
// dependency failures.
func (m *Metrics) ObserveOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if apperrors.IsDependency(err) {
		m.StorageErrorsTotal.WithLabelValues(operation).Inc()
	}
}

// MetricsHandler returns the /metrics handler for a registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
