package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/txsync"
	"github.com/lorrc/backoffice-realtime/internal/metrics"
)

// EnvelopePublisher publishes an envelope on a logical channel.
type EnvelopePublisher interface {
	Publish(ctx context.Context, channel domain.Channel, envelope domain.MessageEnvelope) error
}

// RouterStats are the message router counters.
type RouterStats struct {
	Routed               int64 `json:"routed"`
	Queued               int64 `json:"queued"`
	Flushed              int64 `json:"flushed"`
	PublishedImmediately int64 `json:"publishedImmediately"`
	RollbackDiscards     int64 `json:"rollbackDiscards"`
	RoutingErrors        int64 `json:"routingErrors"`
}

// MessageRouter resolves the broker channel of a destination and publishes
// the envelope, deferring it to commit when a transaction is active.
type MessageRouter struct {
	publisher     EnvelopePublisher
	sourceService string
	logger        *slog.Logger
	metrics       *metrics.Metrics

	routed    atomic.Int64
	queued    atomic.Int64
	flushed   atomic.Int64
	immediate atomic.Int64
	discarded atomic.Int64
	failed    atomic.Int64
}

// NewMessageRouter creates a router publishing through publisher.
// sourceService stamps envelopes routed to a user queue.
func NewMessageRouter(publisher EnvelopePublisher, sourceService string, logger *slog.Logger, m *metrics.Metrics) *MessageRouter {
	return &MessageRouter{
		publisher:     publisher,
		sourceService: sourceService,
		logger:        logger.With("component", "message_router"),
		metrics:       m,
	}
}

// Route sends payload to a broadcast destination.
func (r *MessageRouter) Route(ctx context.Context, destination string, payload any, messageType, sourceService string) {
	r.dispatch(ctx, domain.NewEnvelope(destination, payload, messageType, sourceService))
}

// RouteToUser sends payload to one user's queue destination.
func (r *MessageRouter) RouteToUser(ctx context.Context, username, destination string, payload any, messageType string) {
	env := domain.NewEnvelope(destination, payload, messageType, r.sourceService)
	env.TargetUser = username
	r.dispatch(ctx, env)
}

// Stats returns a snapshot of the counters.
func (r *MessageRouter) Stats() RouterStats {
	return RouterStats{
		Routed:               r.routed.Load(),
		Queued:               r.queued.Load(),
		Flushed:              r.flushed.Load(),
		PublishedImmediately: r.immediate.Load(),
		RollbackDiscards:     r.discarded.Load(),
		RoutingErrors:        r.failed.Load(),
	}
}

func (r *MessageRouter) dispatch(ctx context.Context, env domain.MessageEnvelope) {
	r.routed.Add(1)

	if strings.TrimSpace(env.Destination) == "" {
		r.fail(ctx, env, apperrors.ErrValidation, "empty destination")
		return
	}
	channel := domain.ResolveChannel(env.Destination)

	if scope, ok := txsync.FromContext(ctx); ok {
		r.queueFor(scope).push(domain.QueuedMessage{
			Channel:  channel,
			Envelope: env,
			QueuedAt: time.Now().UTC(),
		})
		r.queued.Add(1)
		r.metrics.IncRouter(metrics.OutcomeQueued)
		r.logger.DebugContext(ctx, "message queued until commit",
			"destination", env.Destination,
			"channel", channel,
			"message_type", env.MessageType,
		)
		return
	}

	if r.publish(ctx, channel, env) {
		r.immediate.Add(1)
		r.metrics.IncRouter(metrics.OutcomeImmediate)
	}
}

// publish reports whether the envelope reached the broker.
func (r *MessageRouter) publish(ctx context.Context, channel domain.Channel, env domain.MessageEnvelope) bool {
	err := r.publisher.Publish(ctx, channel, env)
	switch {
	case err == nil:
		return true
	case errors.Is(err, apperrors.ErrSerialization), errors.Is(err, apperrors.ErrValidation):
		r.fail(ctx, env, err, "message dropped")
	default:
		r.logger.WarnContext(ctx, "broker publish failed",
			"destination", env.Destination,
			"channel", channel,
			"message_type", env.MessageType,
			"error", err,
		)
	}
	return false
}

func (r *MessageRouter) fail(ctx context.Context, env domain.MessageEnvelope, err error, msg string) {
	r.failed.Add(1)
	r.metrics.IncRouter(metrics.OutcomeError)
	r.logger.ErrorContext(ctx, msg,
		"destination", env.Destination,
		"message_type", env.MessageType,
		"message_id", env.MessageID,
		"error", err,
	)
}

// messageQueue holds one transaction's envelopes in enqueue order.
type messageQueue struct {
	mu       sync.Mutex
	messages []domain.QueuedMessage
}

func (q *messageQueue) push(m domain.QueuedMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, m)
}

func (q *messageQueue) drain() []domain.QueuedMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.messages
	q.messages = nil
	return out
}

// queueFor returns the scope's queue for this router, creating it and
// registering its flush on first use.
func (r *MessageRouter) queueFor(scope *txsync.Scope) *messageQueue {
	if v, ok := scope.Resource(r); ok {
		return v.(*messageQueue)
	}
	q := &messageQueue{}
	scope.BindResource(r, q)
	scope.Register(r, txsync.Funcs{
		Committed:  func(ctx context.Context) { r.flush(ctx, q) },
		RolledBack: func(ctx context.Context) { r.discard(ctx, q) },
	})
	return q
}

func (r *MessageRouter) flush(ctx context.Context, q *messageQueue) {
	messages := q.drain()
	published := 0
	for _, m := range messages {
		if r.publish(ctx, m.Channel, m.Envelope) {
			published++
			r.flushed.Add(1)
			r.metrics.IncRouter(metrics.OutcomeFlushed)
		}
	}
	if len(messages) > 0 {
		r.logger.DebugContext(ctx, "flushed queued messages",
			"queued", len(messages),
			"published", published,
		)
	}
}

func (r *MessageRouter) discard(ctx context.Context, q *messageQueue) {
	messages := q.drain()
	if len(messages) == 0 {
		return
	}
	r.discarded.Add(int64(len(messages)))
	for range messages {
		r.metrics.IncRouter(metrics.OutcomeDiscarded)
	}
	destinations := make([]string, 0, len(messages))
	for _, m := range messages {
		destinations = append(destinations, m.Envelope.Destination)
	}
	r.logger.WarnContext(ctx, "transaction rolled back, queued messages discarded",
		"count", len(messages),
		"destinations", destinations,
	)
}
