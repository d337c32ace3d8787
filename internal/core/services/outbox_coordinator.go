package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/core/txsync"
	"github.com/lorrc/backoffice-realtime/internal/infrastructure/logging"
	"github.com/lorrc/backoffice-realtime/internal/metrics"
)

// OutboxCoordinator turns change events into cache invalidations and client
// notifications. Inside a transaction nothing happens until commit; on
// rollback nothing happens at all. Invalidation always precedes notification.
type OutboxCoordinator struct {
	cache         ports.CacheInvalidator
	router        ports.MessageRouter
	invalidations InvalidationPlanner
	notifications NotificationPlanner
	sourceService string
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// NewOutboxCoordinator creates a coordinator.
func NewOutboxCoordinator(
	cache ports.CacheInvalidator,
	router ports.MessageRouter,
	sourceService string,
	logger *slog.Logger,
	m *metrics.Metrics,
) *OutboxCoordinator {
	return &OutboxCoordinator{
		cache:         cache,
		router:        router,
		sourceService: sourceService,
		logger:        logger.With("component", "outbox_coordinator"),
		metrics:       m,
	}
}

// plannedEvent is an event with its resolved side effects.
type plannedEvent struct {
	event         domain.ChangeEvent
	steps         []InvalidationStep
	notifications []Notification
	planned       bool
}

// OnEntityChanged accepts an event. It never fails the caller.
func (c *OutboxCoordinator) OnEntityChanged(ctx context.Context, event domain.ChangeEvent) {
	defer func() {
		if p := recover(); p != nil {
			logging.LogPanic(c.logger.With("event", event.String()), p)
		}
	}()

	if err := event.Validate(); err != nil {
		c.logger.WarnContext(ctx, "invalid change event dropped",
			"event", event.String(),
			"error", err,
		)
		return
	}

	if scope, ok := txsync.FromContext(ctx); ok {
		c.pendingFor(scope).add(event)
		c.logger.DebugContext(ctx, "change event deferred until commit",
			"event", event.String(),
			"priority", event.Priority,
		)
		return
	}

	p := &plannedEvent{event: event}
	c.plan(ctx, p)
	c.apply(ctx, p)
}

type pendingEvents struct {
	mu     sync.Mutex
	events []*plannedEvent
}

func (p *pendingEvents) add(event domain.ChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, &plannedEvent{event: event})
}

func (p *pendingEvents) snapshot() []*plannedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*plannedEvent(nil), p.events...)
}

func (c *OutboxCoordinator) pendingFor(scope *txsync.Scope) *pendingEvents {
	if v, ok := scope.Resource(c); ok {
		return v.(*pendingEvents)
	}
	pending := &pendingEvents{}
	scope.BindResource(c, pending)
	scope.Register(c, txsync.Funcs{
		Before: func(ctx context.Context) error {
			for _, p := range pending.snapshot() {
				c.plan(ctx, p)
			}
			return nil
		},
		Committed: func(ctx context.Context) {
			for _, p := range pending.snapshot() {
				c.apply(ctx, p)
			}
		},
		RolledBack: func(ctx context.Context) {
			events := pending.snapshot()
			suppressed := make([]string, 0, len(events))
			for _, p := range events {
				suppressed = append(suppressed, p.event.String())
			}
			c.logger.WarnContext(ctx, "transaction rolled back, side effects suppressed",
				"events", suppressed,
			)
		},
	})
	return pending
}

// plan resolves the event's side effects. A planning failure is logged and
// leaves the event without side effects.
func (c *OutboxCoordinator) plan(ctx context.Context, p *plannedEvent) {
	if p.planned {
		return
	}
	p.planned = true
	defer func() {
		if r := recover(); r != nil {
			p.steps, p.notifications = nil, nil
			logging.LogPanic(c.logger.With("event", p.event.String()), r)
		}
	}()

	p.steps = c.invalidations.Plan(p.event)
	p.notifications = c.notifications.Plan(p.event)

	destinations := make([]string, 0, len(p.notifications))
	for _, n := range p.notifications {
		destinations = append(destinations, n.Destination)
	}
	c.logger.InfoContext(ctx, "change event planned",
		"event", p.event.String(),
		"actor", p.event.Actor,
		"invalidations", len(p.steps),
		"destinations", destinations,
	)
}

// apply runs the invalidation steps in order, then routes the notifications.
func (c *OutboxCoordinator) apply(ctx context.Context, p *plannedEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(c.logger.With("event", p.event.String()), r)
		}
	}()
	c.plan(ctx, p)

	for _, step := range p.steps {
		if err := step.Apply(ctx, c.cache); err != nil {
			c.metrics.IncInvalidation(string(step.Op), metrics.OutcomeFailure)
			c.logger.ErrorContext(ctx, "cache invalidation failed",
				"event", p.event.String(),
				"step", step.String(),
				"error", err,
			)
			continue
		}
		c.metrics.IncInvalidation(string(step.Op), metrics.OutcomeSuccess)
	}

	for _, n := range p.notifications {
		if n.IsUserAddressed() {
			c.router.RouteToUser(ctx, n.TargetUser, n.Destination, n.Payload, string(n.MessageType))
			continue
		}
		c.router.Route(ctx, n.Destination, n.Payload, string(n.MessageType), c.sourceService)
	}
}
