// Package memorybroker is an in-process ports.Broker for single-instance
// deployments and tests.
package memorybroker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

const defaultBuffer = 256

type message struct {
	channel string
	payload []byte
}

type subscription struct {
	channels map[string]struct{}
	handler  func(string, []byte)
	inbox    chan message
}

// Broker delivers each published message to every matching subscription on
// that subscription's own goroutine, in publish order.
type Broker struct {
	logger *slog.Logger
	buffer int

	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ ports.Broker = (*Broker)(nil)

// New creates a broker. buffer bounds each subscription's backlog; a full
// backlog makes Publish fail for that subscriber.
func New(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Broker{
		logger: logger.With("component", "memory_broker"),
		buffer: buffer,
		subs:   make(map[*subscription]struct{}),
		done:   make(chan struct{}),
	}
}

func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return apperrors.ErrBrokerClosed
	}

	msg := message{channel: channel, payload: append([]byte(nil), payload...)}
	var dropped int
	for sub := range b.subs {
		if _, ok := sub.channels[channel]; !ok {
			continue
		}
		select {
		case sub.inbox <- msg:
		case <-ctx.Done():
			return ctx.Err()
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return fmt.Errorf("memory broker: %d subscriber backlog(s) full on %s", dropped, channel)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	sub := &subscription{
		channels: make(map[string]struct{}, len(channels)),
		handler:  handler,
		inbox:    make(chan message, b.buffer),
	}
	for _, c := range channels {
		sub.channels[c] = struct{}{}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return apperrors.ErrBrokerClosed
	}
	b.subs[sub] = struct{}{}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.remove(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case msg := <-sub.inbox:
				b.deliver(sub, msg)
			}
		}
	}()
	return nil
}

func (b *Broker) deliver(sub *subscription, msg message) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("subscriber handler panicked", "channel", msg.channel, "panic", p)
		}
	}()
	sub.handler(msg.channel, msg.payload)
}

func (b *Broker) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

func (b *Broker) Ping(context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return apperrors.ErrBrokerClosed
	}
	return nil
}

// Close stops every subscription and waits for in-flight handlers.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
