package redisbroker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// Broker is a ports.Broker over Redis pub/sub.
type Broker struct {
	client *redis.Client
	logger *slog.Logger

	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
	closed bool
}

var _ ports.Broker = (*Broker)(nil)

// New creates a broker using client. The broker owns the client and closes it.
func New(client *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{
		client: client,
		logger: logger.With("component", "redis_broker"),
	}
}

func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe waits for the server to confirm the subscription, then delivers
// messages from a background goroutine until ctx is done or the broker closes.
func (b *Broker) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("redis subscribe: broker closed")
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return fmt.Errorf("redis subscribe %v: %w", channels, err)
		}
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	msgs := ps.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer ps.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				b.deliver(handler, msg)
			}
		}
	}()

	b.logger.Info("subscribed to redis channels", "channels", channels)
	return nil
}

func (b *Broker) deliver(handler func(string, []byte), msg *redis.Message) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("subscriber handler panicked", "channel", msg.Channel, "panic", p)
		}
	}()
	handler(msg.Channel, []byte(msg.Payload))
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close ends every subscription and closes the client.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}
	b.wg.Wait()
	return b.client.Close()
}
