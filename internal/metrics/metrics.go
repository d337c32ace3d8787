// Package metrics holds the Prometheus collectors of the realtime pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeQueued    = "queued"
	OutcomeFlushed   = "flushed"
	OutcomeImmediate = "immediate"
	OutcomeDiscarded = "discarded"
	OutcomeError     = "error"
	OutcomeDelivered = "delivered"
	OutcomeInvalid   = "invalid"
	OutcomeScheduled = "scheduled"
	OutcomeExhausted = "exhausted"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RouterMessages     *prometheus.CounterVec
	BrokerPublishes    *prometheus.CounterVec
	FanoutMessages     *prometheus.CounterVec
	CacheInvalidations *prometheus.CounterVec
	SessionErrors      *prometheus.CounterVec
	RecoveryAttempts   *prometheus.CounterVec
	ActiveConnections  prometheus.Gauge
	HealthStatus       prometheus.Gauge
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RouterMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_router_messages_total",
			Help: "Messages handled by the message router by outcome",
		}, []string{"outcome"}),
		BrokerPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_broker_publish_total",
			Help: "Broker publishes by logical channel and outcome",
		}, []string{"channel", "outcome"}),
		FanoutMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_fanout_messages_total",
			Help: "Broker messages received by the local fan-out by channel and outcome",
		}, []string{"channel", "outcome"}),
		CacheInvalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_cache_invalidations_total",
			Help: "Cache invalidation steps by operation and outcome",
		}, []string{"op", "outcome"}),
		SessionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_session_errors_total",
			Help: "Push-channel session errors by type",
		}, []string{"type"}),
		RecoveryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "realtime_recovery_attempts_total",
			Help: "Session recovery attempts by outcome",
		}, []string{"outcome"}),
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_active_connections",
			Help: "Live push-channel sessions",
		}),
		HealthStatus: f.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_health_status",
			Help: "Aggregate session health (0 healthy, 1 warning, 2 degraded, 3 error)",
		}),
	}
}

func (m *Metrics) IncRouter(outcome string) {
	if m == nil {
		return
	}
	m.RouterMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncPublish(channel, outcome string) {
	if m == nil {
		return
	}
	m.BrokerPublishes.WithLabelValues(labelOrUnknown(channel), outcome).Inc()
}

func (m *Metrics) IncFanout(channel, outcome string) {
	if m == nil {
		return
	}
	m.FanoutMessages.WithLabelValues(labelOrUnknown(channel), outcome).Inc()
}

func (m *Metrics) IncInvalidation(op, outcome string) {
	if m == nil {
		return
	}
	m.CacheInvalidations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) IncSessionError(errorType string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(labelOrUnknown(errorType)).Inc()
}

func (m *Metrics) IncRecovery(outcome string) {
	if m == nil {
		return
	}
	m.RecoveryAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetActiveConnections(n int64) {
	if m == nil {
		return
	}
	m.ActiveConnections.Set(float64(n))
}

func (m *Metrics) SetHealthStatus(level float64) {
	if m == nil {
		return
	}
	m.HealthStatus.Set(level)
}

func labelOrUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
