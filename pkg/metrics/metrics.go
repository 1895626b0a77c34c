package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InvitationValidations counts validator decisions by outcome code (ok|NO_INVITE|...).
	InvitationValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authinvite_invitation_validations_total",
			Help: "Total number of invitation validations by outcome",
		},
		[]string{"result"},
	)

	// Signups counts completed and rejected signups (success|rejected|error).
	Signups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authinvite_signups_total",
			Help: "Total number of invitation based signup attempts",
		},
		[]string{"result"},
	)

	// LifecycleUsers counts per-user outcomes of the inactivity sweep.
	LifecycleUsers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authinvite_lifecycle_users_total",
			Help: "Users processed by the inactive user task by phase and result",
		},
		[]string{"phase", "result"},
	)

	// AuthAttempts records authentication attempts by result (success|failure|prohibited).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authinvite_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// EmailsSent counts outbound notification mails by template and result.
	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authinvite_emails_total",
			Help: "Outbound notification emails by template and result",
		},
		[]string{"template", "result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authinvite_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// ActiveSessions tracks sessions issued and not yet revoked or expired.
var ActiveSessions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "authinvite_active_sessions",
		Help: "Number of active login sessions",
	},
)
