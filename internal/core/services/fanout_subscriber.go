package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/metrics"
)

// ChannelSubscriber subscribes to logical broker channels.
type ChannelSubscriber interface {
	Subscribe(ctx context.Context, channels []domain.Channel, handler func(domain.Channel, []byte)) error
}

// FanoutStats are the local fan-out counters.
type FanoutStats struct {
	Received  int64 `json:"received"`
	Delivered int64 `json:"delivered"`
	Invalid   int64 `json:"invalid"`
	Sessions  int64 `json:"sessions"`
	Running   bool  `json:"running"`
}

// FanoutSubscriber receives envelopes from every broker channel and hands
// them to the local push channel.
type FanoutSubscriber struct {
	subscriber ChannelSubscriber
	push       ports.PushChannel
	logger     *slog.Logger
	metrics    *metrics.Metrics

	running   atomic.Bool
	received  atomic.Int64
	delivered atomic.Int64
	invalid   atomic.Int64
	sessions  atomic.Int64
}

// NewFanoutSubscriber creates a fan-out delivering to push.
func NewFanoutSubscriber(subscriber ChannelSubscriber, push ports.PushChannel, logger *slog.Logger, m *metrics.Metrics) *FanoutSubscriber {
	return &FanoutSubscriber{
		subscriber: subscriber,
		push:       push,
		logger:     logger.With("component", "fanout_subscriber"),
		metrics:    m,
	}
}

// Run subscribes to all channels and blocks until ctx is done.
func (f *FanoutSubscriber) Run(ctx context.Context) error {
	if err := f.subscriber.Subscribe(ctx, domain.AllChannels, f.Handle); err != nil {
		return fmt.Errorf("subscribe to broker channels: %w", err)
	}
	f.running.Store(true)
	defer f.running.Store(false)

	f.logger.Info("fan-out subscribed", "channels", domain.AllChannels)
	<-ctx.Done()
	f.logger.Info("fan-out stopped")
	return nil
}

// Running reports whether the broker subscription is live.
func (f *FanoutSubscriber) Running() bool { return f.running.Load() }

// Handle decodes, validates and forwards one broker message. Invalid
// messages are logged and dropped.
func (f *FanoutSubscriber) Handle(channel domain.Channel, payload []byte) {
	f.received.Add(1)

	var env domain.ReceivedEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		f.drop(channel, "", fmt.Errorf("%w: decode envelope: %w", apperrors.ErrValidation, err))
		return
	}
	if err := validateReceived(channel, env); err != nil {
		f.drop(channel, env.Destination, err)
		return
	}

	frame := domain.NewMessageFrame(env)
	var n int
	if domain.IsUserDestination(env.Destination) {
		n = f.push.SendToUser(env.TargetUser, env.Destination, frame)
	} else {
		n = f.push.SendToTopic(env.Destination, frame)
	}

	f.delivered.Add(1)
	f.sessions.Add(int64(n))
	f.metrics.IncFanout(string(channel), metrics.OutcomeDelivered)
	f.logger.Debug("envelope fanned out",
		"channel", channel,
		"destination", env.Destination,
		"message_type", env.MessageType,
		"sessions", n,
	)
}

func (f *FanoutSubscriber) drop(channel domain.Channel, destination string, err error) {
	f.invalid.Add(1)
	f.metrics.IncFanout(string(channel), metrics.OutcomeInvalid)
	f.logger.Warn("invalid broker message dropped",
		"channel", channel,
		"destination", destination,
		"error", err,
	)
}

func validateReceived(channel domain.Channel, env domain.ReceivedEnvelope) error {
	switch {
	case strings.TrimSpace(env.Destination) == "":
		return fmt.Errorf("%w: destination is empty", apperrors.ErrValidation)
	case !env.HasPayload():
		return fmt.Errorf("%w: payload is empty", apperrors.ErrValidation)
	case !channel.Accepts(env.Destination):
		return fmt.Errorf("%w: destination %q not allowed on channel %s", apperrors.ErrValidation, env.Destination, channel)
	case domain.IsUserDestination(env.Destination) && strings.TrimSpace(env.TargetUser) == "":
		return fmt.Errorf("%w: queue destination without target user", apperrors.ErrValidation)
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (f *FanoutSubscriber) Stats() FanoutStats {
	return FanoutStats{
		Received:  f.received.Load(),
		Delivered: f.delivered.Load(),
		Invalid:   f.invalid.Load(),
		Sessions:  f.sessions.Load(),
		Running:   f.running.Load(),
	}
}
