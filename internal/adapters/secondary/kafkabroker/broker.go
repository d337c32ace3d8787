// Package kafkabroker is a ports.Broker over Kafka topics. Every instance
// reads with its own consumer group so each one sees every message.
package kafkabroker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	apperrors "github.com/lorrc/backoffice-realtime/internal/core/errors"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// Config holds the Kafka connection settings.
type Config struct {
	Brokers []string
	// GroupPrefix and InstanceID form the consumer group id.
	GroupPrefix string
	InstanceID  string
	// MaxWait bounds how long a fetch blocks waiting for new messages.
	MaxWait time.Duration
	// WriteTimeout and MaxAttempts bound each background write batch.
	WriteTimeout time.Duration
	MaxAttempts  int
}

// GroupID returns the consumer group this instance reads with.
func (c Config) GroupID() string {
	prefix := c.GroupPrefix
	if prefix == "" {
		prefix = "backoffice-realtime"
	}
	if c.InstanceID == "" {
		return prefix
	}
	return prefix + "-" + c.InstanceID
}

var topicReplacer = strings.NewReplacer(":", ".", "/", ".", " ", "_")

// TopicName maps a broker channel name onto a legal Kafka topic name.
func TopicName(channel string) string {
	return topicReplacer.Replace(channel)
}

// Stats are the asynchronous writer outcomes.
type Stats struct {
	Written int64 `json:"written"`
	Failed  int64 `json:"failed"`
}

// Broker publishes through a shared asynchronous writer and runs one reader
// per subscribed channel. Publish only enqueues; delivery failures surface
// through Stats and the log.
type Broker struct {
	cfg    Config
	writer *kafka.Writer
	logger *slog.Logger

	written atomic.Int64
	failed  atomic.Int64

	mu      sync.Mutex
	readers []*kafka.Reader
	wg      sync.WaitGroup
	closed  bool
}

var _ ports.Broker = (*Broker)(nil)

// New creates a broker for cfg. No connection is made until first use.
func New(cfg Config, logger *slog.Logger) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker address is required")
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	b := &Broker{
		cfg:    cfg,
		logger: logger.With("component", "kafka_broker"),
	}
	b.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           cfg.WriteTimeout,
		MaxAttempts:            cfg.MaxAttempts,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             b.completed,
	}
	return b, nil
}

// completed runs on the writer's goroutine once a batch is delivered or given up on.
func (b *Broker) completed(messages []kafka.Message, err error) {
	if err == nil {
		b.written.Add(int64(len(messages)))
		return
	}
	b.failed.Add(int64(len(messages)))
	topic := ""
	if len(messages) > 0 {
		topic = messages[0].Topic
	}
	b.logger.Error("kafka write failed", "topic", topic, "messages", len(messages), "error", err)
}

// Stats returns the writer outcome counters.
func (b *Broker) Stats() Stats {
	return Stats{Written: b.written.Load(), Failed: b.failed.Load()}
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	if b.isClosed() {
		return apperrors.ErrBrokerClosed
	}
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: TopicName(channel),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe starts a reader per channel. Handlers see the channel name the
// caller subscribed with, not the Kafka topic.
func (b *Broker) Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return apperrors.ErrBrokerClosed
	}

	for _, channel := range channels {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     b.cfg.Brokers,
			GroupID:     b.cfg.GroupID(),
			Topic:       TopicName(channel),
			StartOffset: kafka.LastOffset,
			MaxWait:     b.cfg.MaxWait,
		})
		b.readers = append(b.readers, reader)
		b.wg.Add(1)
		go b.consume(ctx, reader, channel, handler)
	}

	b.logger.Info("kafka subscription started", "channels", channels, "group", b.cfg.GroupID())
	return nil
}

func (b *Broker) consume(ctx context.Context, reader *kafka.Reader, channel string, handler func(string, []byte)) {
	defer b.wg.Done()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || b.isClosed() {
				return
			}
			b.logger.Error("kafka read failed", "channel", channel, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		b.deliver(handler, channel, m.Value)
	}
}

func (b *Broker) deliver(handler func(string, []byte), channel string, payload []byte) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error("subscriber handler panicked", "channel", channel, "panic", p)
		}
	}()
	handler(channel, payload)
}

// Ping dials the brokers in order until one answers.
func (b *Broker) Ping(ctx context.Context) error {
	var lastErr error
	for _, addr := range b.cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		_ = conn.Close()
		return nil
	}
	return fmt.Errorf("kafka ping: %w", lastErr)
}

// Close stops the readers, waits for their loops and flushes the writer.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	readers := b.readers
	b.readers = nil
	b.mu.Unlock()

	var errs []error
	for _, r := range readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.wg.Wait()
	if err := b.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
