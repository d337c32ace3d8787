package memorybroker_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/lorrc/backoffice-realtime/internal/adapters/secondary/memorybroker"
	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBroker(buffer int) *memorybroker.Broker {
	return memorybroker.New(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(channel string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, channel+"="+string(payload))
}

func (c *collector) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

func TestBroker_DeliversInOrderToMatchingSubscribers(t *testing.T) {
	b := newBroker(0)
	defer b.Close()
	ctx := context.Background()

	prices, everything := &collector{}, &collector{}
	require.NoError(t, b.Subscribe(ctx, []string{"price"}, prices.handle))
	require.NoError(t, b.Subscribe(ctx, []string{"price", "global"}, everything.handle))

	require.NoError(t, b.Publish(ctx, "price", []byte("1")))
	require.NoError(t, b.Publish(ctx, "global", []byte("2")))
	require.NoError(t, b.Publish(ctx, "price", []byte("3")))

	assert.Eventually(t, func() bool { return len(everything.list()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"price=1", "global=2", "price=3"}, everything.list())
	assert.Equal(t, []string{"price=1", "price=3"}, prices.list())
}

func TestBroker_CancelledSubscriptionStops(t *testing.T) {
	b := newBroker(0)
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	require.NoError(t, b.Subscribe(ctx, []string{"price"}, c.handle))

	cancel()
	assert.Eventually(t, func() bool {
		_ = b.Publish(context.Background(), "price", []byte("late"))
		time.Sleep(5 * time.Millisecond)
		return len(c.list()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestBroker_FullBacklog(t *testing.T) {
	b := newBroker(1)
	defer b.Close()
	block := make(chan struct{})
	require.NoError(t, b.Subscribe(context.Background(), []string{"c"}, func(string, []byte) { <-block }))

	var lastErr error
	for i := 0; i < 5; i++ {
		if err := b.Publish(context.Background(), "c", []byte("x")); err != nil {
			lastErr = err
		}
	}
	close(block)

	assert.ErrorContains(t, lastErr, "backlog")
}

func TestBroker_Closed(t *testing.T) {
	b := newBroker(0)
	require.NoError(t, b.Subscribe(context.Background(), []string{"c"}, func(string, []byte) {}))
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "c", nil), apperrors.ErrBrokerClosed)
	assert.ErrorIs(t, b.Ping(context.Background()), apperrors.ErrBrokerClosed)
	assert.ErrorIs(t, b.Subscribe(context.Background(), []string{"c"}, func(string, []byte) {}), apperrors.ErrBrokerClosed)
	assert.NoError(t, b.Close())
}
