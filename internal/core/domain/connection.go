package domain

import "time"

// HealthStatus is the aggregate state of the push-channel sessions.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthError    HealthStatus = "ERROR"
)

// Level maps the status onto a gauge value (0 healthy .. 3 error).
func (s HealthStatus) Level() float64 {
	switch s {
	case HealthWarning:
		return 1
	case HealthDegraded:
		return 2
	case HealthError:
		return 3
	}
	return 0
}

// ConnectionInfo is a point-in-time view of one live session.
type ConnectionInfo struct {
	SessionID         string    `json:"sessionId"`
	Username          string    `json:"username,omitempty"`
	ConnectedAt       time.Time `json:"connectedAt"`
	LastActivity      time.Time `json:"lastActivity"`
	SubscriptionCount int64     `json:"subscriptionCount"`
	MessagesReceived  int64     `json:"messagesReceived"`
	MessagesSent      int64     `json:"messagesSent"`
	Active            bool      `json:"active"`
}

// IsStale reports whether the session has been idle longer than threshold.
func (c ConnectionInfo) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(c.LastActivity) > threshold
}

// HealthSnapshot is the aggregate read surface of the health monitor.
type HealthSnapshot struct {
	Status                HealthStatus `json:"status"`
	ActiveConnections     int64        `json:"activeConnections"`
	TotalConnections      int64        `json:"totalConnections"`
	TotalMessagesReceived int64        `json:"totalMessagesReceived"`
	TotalMessagesSent     int64        `json:"totalMessagesSent"`
	TotalSubscriptions    int64        `json:"totalSubscriptions"`
	StaleConnections      int64        `json:"staleConnections"`
	LastCheck             time.Time    `json:"lastCheck"`
}

// ClassifyHealth derives the aggregate status from the number of stale sessions.
func ClassifyHealth(active, stale int64) HealthStatus {
	switch {
	case active > 0 && stale*2 > active:
		return HealthDegraded
	case stale > 0:
		return HealthWarning
	}
	return HealthHealthy
}
