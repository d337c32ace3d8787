package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/infrastructure/logging"
	"github.com/lorrc/backoffice-realtime/internal/metrics"
)

// HealthConfig holds the health monitor timings.
type HealthConfig struct {
	SweepInterval     time.Duration
	BroadcastInterval time.Duration
	StaleThreshold    time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// DefaultHealthConfig returns the production timings.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		SweepInterval:     30 * time.Second,
		BroadcastInterval: 60 * time.Second,
		StaleThreshold:    2 * time.Minute,
	}
}

type sessionState struct {
	sessionID    string
	username     string
	connectedAt  time.Time
	lastActivity atomic.Int64
	subs         atomic.Int64
	received     atomic.Int64
	sent         atomic.Int64
}

func (s *sessionState) touch(now time.Time) { s.lastActivity.Store(now.UnixNano()) }

func (s *sessionState) info() domain.ConnectionInfo {
	return domain.ConnectionInfo{
		SessionID:         s.sessionID,
		Username:          s.username,
		ConnectedAt:       s.connectedAt,
		LastActivity:      time.Unix(0, s.lastActivity.Load()).UTC(),
		SubscriptionCount: s.subs.Load(),
		MessagesReceived:  s.received.Load(),
		MessagesSent:      s.sent.Load(),
		Active:            true,
	}
}

// HealthMonitor tracks live push-channel sessions and derives an aggregate
// health status from how many of them have gone quiet.
type HealthMonitor struct {
	cfg           HealthConfig
	router        ports.MessageRouter
	sourceService string
	logger        *slog.Logger
	metrics       *metrics.Metrics

	sessions *xsync.MapOf[string, *sessionState]

	totalConnections atomic.Int64
	totalReceived    atomic.Int64
	totalSent        atomic.Int64
	stale            atomic.Int64
	status           atomic.Value
	lastCheck        atomic.Int64

	hooksMu    sync.Mutex
	sweepHooks []func(now time.Time)

	ticks sync.WaitGroup
}

// NewHealthMonitor creates a monitor broadcasting through router.
func NewHealthMonitor(cfg HealthConfig, router ports.MessageRouter, sourceService string, logger *slog.Logger, m *metrics.Metrics) *HealthMonitor {
	defaults := DefaultHealthConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = defaults.BroadcastInterval
	}
	if cfg.StaleThreshold <= 0 {
		cfg.StaleThreshold = defaults.StaleThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	h := &HealthMonitor{
		cfg:           cfg,
		router:        router,
		sourceService: sourceService,
		logger:        logger.With("component", "health_monitor"),
		metrics:       m,
		sessions:      xsync.NewMapOf[string, *sessionState](),
	}
	h.status.Store(domain.HealthHealthy)
	return h
}

// OnSweep registers fn to run at the end of every sweep.
func (h *HealthMonitor) OnSweep(fn func(now time.Time)) {
	h.hooksMu.Lock()
	defer h.hooksMu.Unlock()
	h.sweepHooks = append(h.sweepHooks, fn)
}

func (h *HealthMonitor) SessionConnected(sessionID, username string) {
	now := h.cfg.Now()
	s := &sessionState{sessionID: sessionID, username: username, connectedAt: now.UTC()}
	s.touch(now)
	h.sessions.Store(sessionID, s)
	h.totalConnections.Add(1)
	h.metrics.SetActiveConnections(int64(h.sessions.Size()))
	h.logger.Info("session connected", "session_id", sessionID, "username", username)
}

func (h *HealthMonitor) SessionDisconnected(sessionID string) {
	s, ok := h.sessions.LoadAndDelete(sessionID)
	if !ok {
		return
	}
	h.metrics.SetActiveConnections(int64(h.sessions.Size()))
	h.logger.Info("session disconnected",
		"session_id", sessionID,
		"messages_received", s.received.Load(),
		"messages_sent", s.sent.Load(),
	)
}

func (h *HealthMonitor) Subscribed(sessionID, destination string) {
	s, ok := h.sessions.Load(sessionID)
	if !ok {
		return
	}
	s.subs.Add(1)
	s.touch(h.cfg.Now())
}

// Unsubscribed decrements the session's subscription count, never below zero.
func (h *HealthMonitor) Unsubscribed(sessionID, destination string) {
	s, ok := h.sessions.Load(sessionID)
	if !ok {
		return
	}
	s.touch(h.cfg.Now())
	for {
		n := s.subs.Load()
		if n <= 0 {
			return
		}
		if s.subs.CompareAndSwap(n, n-1) {
			return
		}
	}
}

func (h *HealthMonitor) MessageReceived(sessionID string) {
	h.totalReceived.Add(1)
	if s, ok := h.sessions.Load(sessionID); ok {
		s.received.Add(1)
		s.touch(h.cfg.Now())
	}
}

func (h *HealthMonitor) MessageSent(sessionID string) {
	h.totalSent.Add(1)
	if s, ok := h.sessions.Load(sessionID); ok {
		s.sent.Add(1)
		s.touch(h.cfg.Now())
	}
}

func (h *HealthMonitor) Heartbeat(sessionID string) {
	if s, ok := h.sessions.Load(sessionID); ok {
		s.touch(h.cfg.Now())
	}
}

// Start runs the sweep and broadcast tickers until ctx is done. Each tick
// runs in its own goroutine so a slow sweep never delays the next one.
func (h *HealthMonitor) Start(ctx context.Context) error {
	sweep := time.NewTicker(h.cfg.SweepInterval)
	defer sweep.Stop()
	broadcast := time.NewTicker(h.cfg.BroadcastInterval)
	defer broadcast.Stop()

	h.logger.Info("health monitor started",
		"sweep_interval", h.cfg.SweepInterval,
		"broadcast_interval", h.cfg.BroadcastInterval,
		"stale_threshold", h.cfg.StaleThreshold,
	)
	for {
		select {
		case <-ctx.Done():
			h.ticks.Wait()
			h.logger.Info("health monitor stopped")
			return nil
		case <-sweep.C:
			h.ticks.Add(1)
			go func() {
				defer h.ticks.Done()
				h.sweep()
			}()
		case <-broadcast.C:
			h.ticks.Add(1)
			go func() {
				defer h.ticks.Done()
				h.broadcast(ctx)
			}()
		}
	}
}

// TriggerHealthCheck runs a sweep now and returns the result.
func (h *HealthMonitor) TriggerHealthCheck() domain.HealthSnapshot {
	h.sweep()
	return h.Snapshot()
}

// TriggerHealthBroadcast publishes the current snapshot now.
func (h *HealthMonitor) TriggerHealthBroadcast(ctx context.Context) domain.HealthSnapshot {
	return h.broadcast(ctx)
}

func (h *HealthMonitor) sweep() {
	now := h.cfg.Now()
	defer func() {
		if p := recover(); p != nil {
			h.setStatus(domain.HealthError)
			logging.LogPanic(h.logger, p)
		}
	}()

	var active, stale int64
	h.sessions.Range(func(_ string, s *sessionState) bool {
		active++
		if s.info().IsStale(now, h.cfg.StaleThreshold) {
			stale++
		}
		return true
	})

	status := domain.ClassifyHealth(active, stale)
	h.stale.Store(stale)
	h.lastCheck.Store(now.UnixNano())
	h.setStatus(status)

	if status != domain.HealthHealthy {
		h.logger.Warn("session health degraded",
			"status", status,
			"active", active,
			"stale", stale,
		)
	}

	h.hooksMu.Lock()
	hooks := append([]func(time.Time){}, h.sweepHooks...)
	h.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(now)
	}
}

func (h *HealthMonitor) setStatus(status domain.HealthStatus) {
	h.status.Store(status)
	h.metrics.SetHealthStatus(status.Level())
}

func (h *HealthMonitor) broadcast(ctx context.Context) domain.HealthSnapshot {
	snapshot := h.Snapshot()
	h.router.Route(ctx, domain.TopicHealthStatus, snapshot, string(domain.MessageHealthStatus), h.sourceService)
	return snapshot
}

// Snapshot returns the aggregate state as of the last sweep. The
// subscription total is summed over live sessions.
func (h *HealthMonitor) Snapshot() domain.HealthSnapshot {
	var subscriptions int64
	h.sessions.Range(func(_ string, s *sessionState) bool {
		subscriptions += s.subs.Load()
		return true
	})
	var lastCheck time.Time
	if ns := h.lastCheck.Load(); ns != 0 {
		lastCheck = time.Unix(0, ns).UTC()
	}
	return domain.HealthSnapshot{
		Status:                h.status.Load().(domain.HealthStatus),
		ActiveConnections:     int64(h.sessions.Size()),
		TotalConnections:      h.totalConnections.Load(),
		TotalMessagesReceived: h.totalReceived.Load(),
		TotalMessagesSent:     h.totalSent.Load(),
		TotalSubscriptions:    subscriptions,
		StaleConnections:      h.stale.Load(),
		LastCheck:             lastCheck,
	}
}

// Connections lists live sessions, oldest first.
func (h *HealthMonitor) Connections() []domain.ConnectionInfo {
	out := make([]domain.ConnectionInfo, 0, h.sessions.Size())
	h.sessions.Range(func(_ string, s *sessionState) bool {
		out = append(out, s.info())
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Connection returns one session's state.
func (h *HealthMonitor) Connection(sessionID string) (domain.ConnectionInfo, bool) {
	s, ok := h.sessions.Load(sessionID)
	if !ok {
		return domain.ConnectionInfo{}, false
	}
	return s.info(), true
}
