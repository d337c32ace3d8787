package domain

import (
	"strings"
	"time"
)

// ErrorType classifies a per-session delivery or connection error.
type ErrorType string

const (
	ErrorConnectionFailed     ErrorType = "CONNECTION_FAILED"
	ErrorMessageSendFailed    ErrorType = "MESSAGE_SEND_FAILED"
	ErrorSubscriptionFailed   ErrorType = "SUBSCRIPTION_FAILED"
	ErrorHeartbeatTimeout     ErrorType = "HEARTBEAT_TIMEOUT"
	ErrorAuthenticationFailed ErrorType = "AUTHENTICATION_FAILED"
	ErrorUnknown              ErrorType = "UNKNOWN"
)

// Severity is the operator-facing weight of an error type.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// ParseErrorType accepts the enum name in any case and falls back to UNKNOWN.
func ParseErrorType(raw string) ErrorType {
	t := ErrorType(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case ErrorConnectionFailed, ErrorMessageSendFailed, ErrorSubscriptionFailed,
		ErrorHeartbeatTimeout, ErrorAuthenticationFailed:
		return t
	}
	return ErrorUnknown
}

func (t ErrorType) Severity() Severity {
	switch t {
	case ErrorAuthenticationFailed:
		return SeverityCritical
	case ErrorConnectionFailed, ErrorHeartbeatTimeout:
		return SeverityHigh
	case ErrorMessageSendFailed, ErrorSubscriptionFailed:
		return SeverityMedium
	}
	return SeverityLow
}

// ErrorInfo tracks one session's current error episode.
type ErrorInfo struct {
	SessionID      string    `json:"sessionId"`
	FirstErrorTime time.Time `json:"firstErrorTime"`
	LastErrorTime  time.Time `json:"lastErrorTime"`
	ErrorCount     int64     `json:"errorCount"`
	RetryAttempts  int       `json:"retryAttempts"`
	ErrorType      ErrorType `json:"errorType"`
	LastMessage    string    `json:"lastMessage,omitempty"`
	Recovering     bool      `json:"recovering"`
	Exhausted      bool      `json:"exhausted"`
}

// ErrorStats is the read surface of the error recovery manager.
type ErrorStats struct {
	TotalErrors         int64               `json:"totalErrors"`
	ActiveErrorSessions int                 `json:"activeErrorSessions"`
	TotalRetryAttempts  int64               `json:"totalRetryAttempts"`
	AnyRecovering       bool                `json:"anyRecovering"`
	ErrorsByType        map[ErrorType]int64 `json:"errorsByType,omitempty"`
}

// RecoveryOutcome is the result broadcast at the end of a recovery episode.
type RecoveryOutcome string

const (
	RecoverySucceeded RecoveryOutcome = "RECOVERY_SUCCESS"
	RecoveryFailed    RecoveryOutcome = "RECOVERY_FAILED"
)

// RecoveryNotification is the payload published on the recovery topic.
type RecoveryNotification struct {
	SessionID string          `json:"sessionId"`
	Outcome   RecoveryOutcome `json:"outcome"`
	ErrorType ErrorType       `json:"errorType"`
	Severity  Severity        `json:"severity"`
	Attempts  int             `json:"attempts"`
	Message   string          `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}
