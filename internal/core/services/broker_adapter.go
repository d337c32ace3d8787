package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/metrics"
)

// BrokerStats are the broker adapter counters.
type BrokerStats struct {
	Published             int64 `json:"published"`
	PublishFailures       int64 `json:"publishFailures"`
	SerializationFailures int64 `json:"serializationFailures"`
	Probes                int64 `json:"probes"`
	ProbeFailures         int64 `json:"probeFailures"`
}

// DefaultPublishTimeout bounds a single broker publish.
const DefaultPublishTimeout = 2 * time.Second

// BrokerAdapter maps logical channels onto a broker's physical channels and
// serializes envelopes. It never retries.
type BrokerAdapter struct {
	broker         ports.Broker
	prefix         string
	publishTimeout time.Duration
	sourceService string
	logger        *slog.Logger
	metrics       *metrics.Metrics

	published     atomic.Int64
	failures      atomic.Int64
	serialization atomic.Int64
	probes        atomic.Int64
	probeFailures atomic.Int64
}

// NewBrokerAdapter wraps broker. Physical channel names are "{prefix}:{channel}".
func NewBrokerAdapter(broker ports.Broker, prefix, sourceService string, logger *slog.Logger, m *metrics.Metrics) *BrokerAdapter {
	return &BrokerAdapter{
		broker:         broker,
		prefix:         strings.TrimSuffix(prefix, ":"),
		publishTimeout: DefaultPublishTimeout,
		sourceService:  sourceService,
		logger:         logger.With("component", "broker_adapter"),
		metrics:        m,
	}
}

// WithPublishTimeout sets the per-publish deadline. Non-positive values keep
// the current one.
func (a *BrokerAdapter) WithPublishTimeout(d time.Duration) *BrokerAdapter {
	if d > 0 {
		a.publishTimeout = d
	}
	return a
}

// PhysicalChannel returns the broker channel name of c.
func (a *BrokerAdapter) PhysicalChannel(c domain.Channel) string {
	if a.prefix == "" {
		return string(c)
	}
	return a.prefix + ":" + string(c)
}

// LogicalChannel maps a physical name back to its logical channel.
func (a *BrokerAdapter) LogicalChannel(physical string) (domain.Channel, bool) {
	name := physical
	if a.prefix != "" {
		var ok bool
		name, ok = strings.CutPrefix(physical, a.prefix+":")
		if !ok {
			return "", false
		}
	}
	c := domain.Channel(name)
	return c, c.IsValid()
}

// Publish serializes envelope and publishes it on channel.
func (a *BrokerAdapter) Publish(ctx context.Context, channel domain.Channel, envelope domain.MessageEnvelope) error {
	if !channel.IsValid() {
		a.failures.Add(1)
		a.metrics.IncPublish(string(channel), metrics.OutcomeFailure)
		return fmt.Errorf("%w: %w %q", apperrors.ErrValidation, apperrors.ErrUnknownChannel, channel)
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		a.serialization.Add(1)
		a.metrics.IncPublish(string(channel), metrics.OutcomeFailure)
		return fmt.Errorf("%w: %s: %w", apperrors.ErrSerialization, envelope.Destination, err)
	}

	physical := a.PhysicalChannel(channel)
	pubCtx, cancel := context.WithTimeout(ctx, a.publishTimeout)
	defer cancel()
	if err := a.broker.Publish(pubCtx, physical, data); err != nil {
		a.failures.Add(1)
		a.metrics.IncPublish(string(channel), metrics.OutcomeFailure)
		return fmt.Errorf("%w: %s: %w", apperrors.ErrPublish, physical, err)
	}

	a.published.Add(1)
	a.metrics.IncPublish(string(channel), metrics.OutcomeSuccess)
	a.logger.DebugContext(ctx, "envelope published",
		"channel", physical,
		"destination", envelope.Destination,
		"message_type", envelope.MessageType,
	)
	return nil
}

// Subscribe delivers every message on the logical channels to handler.
func (a *BrokerAdapter) Subscribe(ctx context.Context, channels []domain.Channel, handler func(domain.Channel, []byte)) error {
	physical := make([]string, 0, len(channels))
	for _, c := range channels {
		physical = append(physical, a.PhysicalChannel(c))
	}
	return a.broker.Subscribe(ctx, physical, func(name string, payload []byte) {
		c, ok := a.LogicalChannel(name)
		if !ok {
			a.logger.Warn("message on unknown broker channel", "channel", name)
			return
		}
		handler(c, payload)
	})
}

// Ping checks broker connectivity.
func (a *BrokerAdapter) Ping(ctx context.Context) error {
	return a.broker.Ping(ctx)
}

// Probe runs a lightweight check of the given kind. Publish and heartbeat
// probes go out on the health channel.
func (a *BrokerAdapter) Probe(ctx context.Context, kind ports.ProbeKind) error {
	a.probes.Add(1)
	var err error
	switch kind {
	case ports.ProbePublish:
		err = a.Publish(ctx, domain.ChannelHealth, domain.NewEnvelope(
			domain.TopicHealthProbe, map[string]string{"probe": string(kind)},
			string(domain.MessageHealthProbe), a.sourceService))
	case ports.ProbeHeartbeat:
		err = a.Publish(ctx, domain.ChannelHealth, domain.NewEnvelope(
			domain.TopicHealthProbe, map[string]string{"probe": string(kind)},
			string(domain.MessageHeartbeat), a.sourceService))
	default:
		err = a.broker.Ping(ctx)
	}
	if err != nil {
		a.probeFailures.Add(1)
	}
	return err
}

// Stats returns a snapshot of the counters.
func (a *BrokerAdapter) Stats() BrokerStats {
	return BrokerStats{
		Published:             a.published.Load(),
		PublishFailures:       a.failures.Load(),
		SerializationFailures: a.serialization.Load(),
		Probes:                a.probes.Load(),
		ProbeFailures:         a.probeFailures.Load(),
	}
}
