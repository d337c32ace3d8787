package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/mocks"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
	"github.com/lorrc/backoffice-realtime/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBrokerAdapter_Channels(t *testing.T) {
	adapter := services.NewBrokerAdapter(mocks.NewMockBroker(), "backoffice:", "svc", discardLogger(), nil)

	assert.Equal(t, "backoffice:price", adapter.PhysicalChannel(domain.ChannelPrice))

	c, ok := adapter.LogicalChannel("backoffice:voucher")
	assert.True(t, ok)
	assert.Equal(t, domain.ChannelVoucher, c)

	_, ok = adapter.LogicalChannel("other:voucher")
	assert.False(t, ok)
	_, ok = adapter.LogicalChannel("backoffice:nope")
	assert.False(t, ok)
}

func TestBrokerAdapter_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("serializes the envelope onto the physical channel", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		var sent []byte
		broker.On("Publish", mock.Anything, "bo:price", mock.Anything).
			Run(func(args mock.Arguments) { sent = args.Get(2).([]byte) }).
			Return(nil)
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		env := domain.NewEnvelope("/topic/gia/P1", map[string]int64{"newPrice": 120}, "PRICE_UPDATE", "catalog")
		require.NoError(t, adapter.Publish(ctx, domain.ChannelPrice, env))

		var got domain.ReceivedEnvelope
		require.NoError(t, json.Unmarshal(sent, &got))
		assert.Equal(t, env.MessageID, got.MessageID)
		assert.Equal(t, "/topic/gia/P1", got.Destination)
		assert.JSONEq(t, `{"newPrice":120}`, string(got.Payload))
		assert.Equal(t, int64(1), adapter.Stats().Published)
		broker.AssertExpectations(t)
	})

	t.Run("unknown channel is a validation error", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		err := adapter.Publish(ctx, domain.Channel("bogus"), domain.NewEnvelope("/topic/x", 1, "T", "svc"))

		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.ErrorIs(t, err, apperrors.ErrUnknownChannel)
		broker.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unserializable payload is a serialization error", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		err := adapter.Publish(ctx, domain.ChannelGlobal, domain.NewEnvelope("/topic/x", make(chan int), "T", "svc"))

		assert.ErrorIs(t, err, apperrors.ErrSerialization)
		assert.Equal(t, int64(1), adapter.Stats().SerializationFailures)
	})

	t.Run("broker failure is a publish error", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		down := errors.New("connection refused")
		broker.On("Publish", mock.Anything, "bo:global", mock.Anything).Return(down)
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		err := adapter.Publish(ctx, domain.ChannelGlobal, domain.NewEnvelope("/topic/x", 1, "T", "svc"))

		assert.ErrorIs(t, err, apperrors.ErrPublish)
		assert.ErrorIs(t, err, down)
		assert.Equal(t, int64(1), adapter.Stats().PublishFailures)
	})

	t.Run("stalled broker is cut off at the publish timeout", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		broker.On("Publish", mock.Anything, "bo:price", mock.Anything).
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(context.DeadlineExceeded)
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil).
			WithPublishTimeout(20 * time.Millisecond)

		start := time.Now()
		err := adapter.Publish(ctx, domain.ChannelPrice, domain.NewEnvelope("/topic/gia/P1", 1, "T", "svc"))

		assert.Less(t, time.Since(start), time.Second)
		assert.ErrorIs(t, err, apperrors.ErrPublish)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, int64(1), adapter.Stats().PublishFailures)
	})

	t.Run("caller context without deadline still gets one", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		var deadline time.Time
		var hasDeadline bool
		broker.On("Publish", mock.Anything, "bo:price", mock.Anything).
			Run(func(args mock.Arguments) {
				deadline, hasDeadline = args.Get(0).(context.Context).Deadline()
			}).
			Return(nil)
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		require.NoError(t, adapter.Publish(ctx, domain.ChannelPrice, domain.NewEnvelope("/topic/x", 1, "T", "svc")))

		require.True(t, hasDeadline)
		assert.WithinDuration(t, time.Now().Add(services.DefaultPublishTimeout), deadline, time.Second)
	})
}

func TestBrokerAdapter_Subscribe(t *testing.T) {
	ctx := context.Background()
	broker := mocks.NewMockBroker()
	broker.On("Subscribe", ctx, []string{"bo:price", "bo:health"}, mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(2).(func(string, []byte))
			handler("bo:price", []byte("a"))
			handler("stray", []byte("b"))
			handler("bo:health", []byte("c"))
		}).
		Return(nil)
	adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

	var got []domain.Channel
	err := adapter.Subscribe(ctx, []domain.Channel{domain.ChannelPrice, domain.ChannelHealth}, func(c domain.Channel, _ []byte) {
		got = append(got, c)
	})

	require.NoError(t, err)
	assert.Equal(t, []domain.Channel{domain.ChannelPrice, domain.ChannelHealth}, got)
}

func TestBrokerAdapter_Probe(t *testing.T) {
	ctx := context.Background()

	t.Run("ping probe pings", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		broker.On("Ping", ctx).Return(nil)
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		require.NoError(t, adapter.Probe(ctx, ports.ProbePing))
		broker.AssertExpectations(t)
	})

	t.Run("publish probe goes to the health channel", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		var sent []byte
		broker.On("Publish", mock.Anything, "bo:health", mock.Anything).
			Run(func(args mock.Arguments) { sent = args.Get(2).([]byte) }).
			Return(nil)
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		require.NoError(t, adapter.Probe(ctx, ports.ProbeHeartbeat))

		var got domain.ReceivedEnvelope
		require.NoError(t, json.Unmarshal(sent, &got))
		assert.Equal(t, domain.TopicHealthProbe, got.Destination)
		assert.Equal(t, string(domain.MessageHeartbeat), got.MessageType)
	})

	t.Run("failed probe is counted", func(t *testing.T) {
		broker := mocks.NewMockBroker()
		broker.On("Ping", ctx).Return(errors.New("down"))
		adapter := services.NewBrokerAdapter(broker, "bo", "svc", discardLogger(), nil)

		assert.Error(t, adapter.Probe(ctx, ports.ProbePing))
		stats := adapter.Stats()
		assert.Equal(t, int64(1), stats.Probes)
		assert.Equal(t, int64(1), stats.ProbeFailures)
	})
}
