package kafkabroker_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/kafkabroker"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfig_GroupID(t *testing.T) {
	tests := []struct {
		name string
		cfg  kafkabroker.Config
		want string
	}{
		{"defaults", kafkabroker.Config{}, "backoffice-realtime"},
		{"instance suffix", kafkabroker.Config{InstanceID: "api-2"}, "backoffice-realtime-api-2"},
		{"custom prefix", kafkabroker.Config{GroupPrefix: "bo", InstanceID: "a"}, "bo-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.GroupID())
		})
	}
}

func TestTopicName(t *testing.T) {
	assert.Equal(t, "backoffice.price", kafkabroker.TopicName("backoffice:price"))
	assert.Equal(t, "global", kafkabroker.TopicName("global"))
}

func TestNew_RequiresBrokers(t *testing.T) {
	_, err := kafkabroker.New(kafkabroker.Config{}, discard())
	assert.Error(t, err)
}

func TestBroker_Closed(t *testing.T) {
	b, err := kafkabroker.New(kafkabroker.Config{Brokers: []string{"127.0.0.1:1"}}, discard())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	ctx := context.Background()
	assert.ErrorIs(t, b.Publish(ctx, "price", []byte("{}")), apperrors.ErrBrokerClosed)
	assert.ErrorIs(t, b.Subscribe(ctx, []string{"price"}, func(string, []byte) {}), apperrors.ErrBrokerClosed)
	assert.NoError(t, b.Close())
}

func TestBroker_PingUnreachable(t *testing.T) {
	b, err := kafkabroker.New(kafkabroker.Config{Brokers: []string{"127.0.0.1:1"}}, discard())
	require.NoError(t, err)
	defer b.Close()

	assert.ErrorContains(t, b.Ping(context.Background()), "kafka ping")
}

func TestBroker_PublishDoesNotWaitForDelivery(t *testing.T) {
	b, err := kafkabroker.New(kafkabroker.Config{
		Brokers:      []string{"127.0.0.1:1"},
		WriteTimeout: 100 * time.Millisecond,
		MaxAttempts:  1,
	}, discard())
	require.NoError(t, err)

	start := time.Now()
	err = b.Publish(context.Background(), "backoffice:price", []byte("{}"))

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.NoError(t, b.Close())
	assert.Equal(t, int64(1), b.Stats().Failed)
	assert.Zero(t, b.Stats().Written)
}
