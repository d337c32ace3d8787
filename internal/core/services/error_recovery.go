package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/metrics"
)

var errSubscriberDown = errors.New("fan-out subscriber is not running")

// RecoveryConfig holds the retry budget and backoff bounds.
type RecoveryConfig struct {
	MaxRetryAttempts int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	Retention        time.Duration
	ProbeTimeout     time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultRecoveryConfig returns the production settings.
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		MaxRetryAttempts: 5,
		BaseDelay:        time.Second,
		MaxDelay:         30 * time.Second,
		Retention:        time.Hour,
		ProbeTimeout:     5 * time.Second,
	}
}

// BackoffDelay returns min(base*2^(attempt-1), ceiling).
func BackoffDelay(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d >= ceiling/2 {
			return ceiling
		}
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

// TimeScheduler schedules with time.AfterFunc.
type TimeScheduler struct{}

func (TimeScheduler) AfterFunc(delay time.Duration, fn func()) ports.Timer {
	return time.AfterFunc(delay, fn)
}

type errorEntry struct {
	mu      sync.Mutex
	info    domain.ErrorInfo
	timer   ports.Timer
	removed bool
}

// ErrorRecoveryManager records per-session errors and drives a bounded,
// exponentially backed-off recovery episode for each failing session.
type ErrorRecoveryManager struct {
	cfg           RecoveryConfig
	prober        ports.Prober
	router        ports.MessageRouter
	scheduler     ports.Scheduler
	liveness      func() bool
	sourceService string
	logger        *slog.Logger
	metrics       *metrics.Metrics

	baseCtx context.Context
	cancel  context.CancelFunc

	entries       *xsync.MapOf[string, *errorEntry]
	byType        *xsync.MapOf[domain.ErrorType, *atomic.Int64]
	totalErrors   atomic.Int64
	totalAttempts atomic.Int64
}

// NewErrorRecoveryManager creates a manager. liveness, when set, reports
// whether the fan-out subscription is up and is checked by subscription
// recoveries.
func NewErrorRecoveryManager(
	cfg RecoveryConfig,
	prober ports.Prober,
	router ports.MessageRouter,
	scheduler ports.Scheduler,
	liveness func() bool,
	sourceService string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *ErrorRecoveryManager {
	defaults := DefaultRecoveryConfig()
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = defaults.MaxRetryAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaults.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaults.MaxDelay
	}
	if cfg.Retention <= 0 {
		cfg.Retention = defaults.Retention
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if scheduler == nil {
		scheduler = TimeScheduler{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ErrorRecoveryManager{
		cfg:           cfg,
		prober:        prober,
		router:        router,
		scheduler:     scheduler,
		liveness:      liveness,
		sourceService: sourceService,
		logger:        logger.With("component", "error_recovery"),
		metrics:       m,
		baseCtx:       ctx,
		cancel:        cancel,
		entries:       xsync.NewMapOf[string, *errorEntry](),
		byType:        xsync.NewMapOf[domain.ErrorType, *atomic.Int64](),
	}
}

// RecordError counts an error for sessionID and starts a recovery episode
// unless one is already running or the session's budget is spent.
func (m *ErrorRecoveryManager) RecordError(sessionID, message string, errorType domain.ErrorType) {
	if sessionID == "" {
		m.logger.Warn("session error without session id ignored", "error_type", errorType)
		return
	}
	now := m.cfg.Now().UTC()

	m.totalErrors.Add(1)
	counter, _ := m.byType.LoadOrCompute(errorType, func() *atomic.Int64 { return new(atomic.Int64) })
	counter.Add(1)
	m.metrics.IncSessionError(string(errorType))

	for {
		e, _ := m.entries.LoadOrCompute(sessionID, func() *errorEntry {
			return &errorEntry{info: domain.ErrorInfo{SessionID: sessionID, FirstErrorTime: now}}
		})
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}
		e.info.ErrorCount++
		e.info.LastErrorTime = now
		e.info.ErrorType = errorType
		e.info.LastMessage = message

		var notify *domain.RecoveryNotification
		if !e.info.Recovering && !e.info.Exhausted {
			notify = m.scheduleLocked(e)
		}
		count := e.info.ErrorCount
		e.mu.Unlock()

		m.logger.Warn("session error recorded",
			"session_id", sessionID,
			"error_type", errorType,
			"severity", errorType.Severity(),
			"error_count", count,
			"message", message,
		)
		m.publish(notify)
		return
	}
}

// scheduleLocked schedules the next attempt, or marks the episode exhausted
// and returns the failure notification. e.mu must be held.
func (m *ErrorRecoveryManager) scheduleLocked(e *errorEntry) *domain.RecoveryNotification {
	if e.info.RetryAttempts >= m.cfg.MaxRetryAttempts {
		e.info.Recovering = false
		e.info.Exhausted = true
		e.timer = nil
		m.metrics.IncRecovery(metrics.OutcomeExhausted)
		m.logger.Error("session recovery exhausted",
			"session_id", e.info.SessionID,
			"error_type", e.info.ErrorType,
			"attempts", e.info.RetryAttempts,
		)
		return m.notification(e.info, domain.RecoveryFailed,
			"recovery failed after maximum retry attempts")
	}

	e.info.RetryAttempts++
	e.info.Recovering = true
	attempt := e.info.RetryAttempts
	delay := BackoffDelay(attempt, m.cfg.BaseDelay, m.cfg.MaxDelay)
	m.totalAttempts.Add(1)
	m.metrics.IncRecovery(metrics.OutcomeScheduled)

	sessionID := e.info.SessionID
	e.timer = m.scheduler.AfterFunc(delay, func() { m.attempt(sessionID, e, attempt) })

	m.logger.Info("session recovery scheduled",
		"session_id", sessionID,
		"attempt", attempt,
		"delay", delay,
	)
	return nil
}

func (m *ErrorRecoveryManager) attempt(sessionID string, e *errorEntry, attempt int) {
	e.mu.Lock()
	if e.removed || !e.info.Recovering || e.info.RetryAttempts != attempt {
		e.mu.Unlock()
		return
	}
	errorType := e.info.ErrorType
	e.mu.Unlock()

	err := m.runRecovery(errorType)

	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return
	}
	if err == nil {
		e.removed = true
		e.timer = nil
		info := e.info
		e.mu.Unlock()
		m.deleteEntry(sessionID, e)

		m.metrics.IncRecovery(metrics.OutcomeSuccess)
		m.logger.Info("session recovered", "session_id", sessionID, "attempt", attempt)
		m.publish(m.notification(info, domain.RecoverySucceeded, "connection recovered"))
		return
	}

	e.info.Recovering = false
	m.metrics.IncRecovery(metrics.OutcomeFailure)
	m.logger.Warn("session recovery attempt failed",
		"session_id", sessionID,
		"attempt", attempt,
		"error", err,
	)
	notify := m.scheduleLocked(e)
	e.mu.Unlock()
	m.publish(notify)
}

// runRecovery performs the type-specific probe.
func (m *ErrorRecoveryManager) runRecovery(errorType domain.ErrorType) error {
	ctx, cancel := context.WithTimeout(m.baseCtx, m.cfg.ProbeTimeout)
	defer cancel()

	switch errorType {
	case domain.ErrorMessageSendFailed:
		return m.prober.Probe(ctx, ports.ProbePublish)
	case domain.ErrorHeartbeatTimeout:
		return m.prober.Probe(ctx, ports.ProbeHeartbeat)
	case domain.ErrorSubscriptionFailed:
		if err := m.prober.Probe(ctx, ports.ProbePing); err != nil {
			return err
		}
		if m.liveness != nil && !m.liveness() {
			return errSubscriberDown
		}
		return nil
	default:
		return m.prober.Probe(ctx, ports.ProbePing)
	}
}

func (m *ErrorRecoveryManager) notification(info domain.ErrorInfo, outcome domain.RecoveryOutcome, message string) *domain.RecoveryNotification {
	return &domain.RecoveryNotification{
		SessionID: info.SessionID,
		Outcome:   outcome,
		ErrorType: info.ErrorType,
		Severity:  info.ErrorType.Severity(),
		Attempts:  info.RetryAttempts,
		Message:   message,
		Timestamp: m.cfg.Now().UTC(),
	}
}

func (m *ErrorRecoveryManager) publish(n *domain.RecoveryNotification) {
	if n == nil {
		return
	}
	m.router.Route(m.baseCtx, domain.TopicHealthRecovery, n, string(n.Outcome), m.sourceService)
}

func (m *ErrorRecoveryManager) deleteEntry(sessionID string, e *errorEntry) {
	m.entries.Compute(sessionID, func(old *errorEntry, loaded bool) (*errorEntry, bool) {
		if loaded && old != e {
			return old, false
		}
		return nil, true
	})
}

func (m *ErrorRecoveryManager) removeEntry(sessionID string, e *errorEntry) {
	e.mu.Lock()
	e.removed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.mu.Unlock()
	m.deleteEntry(sessionID, e)
}

// ClearSession drops the session's error state and cancels any pending attempt.
func (m *ErrorRecoveryManager) ClearSession(sessionID string) {
	if e, ok := m.entries.Load(sessionID); ok {
		m.removeEntry(sessionID, e)
	}
}

// Cleanup purges idle or exhausted episodes whose last error is older than
// the retention period. It returns the number of purged sessions.
func (m *ErrorRecoveryManager) Cleanup(now time.Time) int {
	purged := 0
	m.entries.Range(func(sessionID string, e *errorEntry) bool {
		e.mu.Lock()
		expired := !e.info.Recovering && now.Sub(e.info.LastErrorTime) > m.cfg.Retention
		e.mu.Unlock()
		if expired {
			m.removeEntry(sessionID, e)
			purged++
		}
		return true
	})
	if purged > 0 {
		m.logger.Info("expired session errors purged", "count", purged)
	}
	return purged
}

// Close cancels all pending attempts.
func (m *ErrorRecoveryManager) Close() {
	m.cancel()
	m.entries.Range(func(sessionID string, e *errorEntry) bool {
		m.removeEntry(sessionID, e)
		return true
	})
}

// Stats returns the aggregate error statistics.
func (m *ErrorRecoveryManager) Stats() domain.ErrorStats {
	stats := domain.ErrorStats{
		TotalErrors:         m.totalErrors.Load(),
		ActiveErrorSessions: m.entries.Size(),
		TotalRetryAttempts:  m.totalAttempts.Load(),
		ErrorsByType:        make(map[domain.ErrorType]int64),
	}
	m.entries.Range(func(_ string, e *errorEntry) bool {
		e.mu.Lock()
		recovering := e.info.Recovering
		e.mu.Unlock()
		if recovering {
			stats.AnyRecovering = true
			return false
		}
		return true
	})
	m.byType.Range(func(t domain.ErrorType, n *atomic.Int64) bool {
		stats.ErrorsByType[t] = n.Load()
		return true
	})
	return stats
}

// Errors lists the sessions with an open error episode.
func (m *ErrorRecoveryManager) Errors() []domain.ErrorInfo {
	out := make([]domain.ErrorInfo, 0, m.entries.Size())
	m.entries.Range(func(_ string, e *errorEntry) bool {
		e.mu.Lock()
		out = append(out, e.info)
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].FirstErrorTime.Before(out[j].FirstErrorTime)
	})
	return out
}

// Session returns one session's error state.
func (m *ErrorRecoveryManager) Session(sessionID string) (domain.ErrorInfo, bool) {
	e, ok := m.entries.Load(sessionID)
	if !ok {
		return domain.ErrorInfo{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info, true
}
