package ports

import (
	"context"
	"time"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
)

// EntityKind names an entity family whose cached form can be evicted by id.
type EntityKind string

const (
	EntityProduct   EntityKind = "product"
	EntityVariant   EntityKind = "variant"
	EntityPrice     EntityKind = "price"
	EntityInventory EntityKind = "inventory"
	EntityVoucher   EntityKind = "voucher"
	EntityOrder     EntityKind = "order"
)

// CacheInvalidator evicts derived cache entries.
type CacheInvalidator interface {
	// Invalidate clears a whole named cache.
	Invalidate(ctx context.Context, name string) error
	// InvalidateByPattern clears every key matching a glob pattern.
	InvalidateByPattern(ctx context.Context, pattern string) error
	// InvalidateEntity clears the cached form of one entity.
	InvalidateEntity(ctx context.Context, kind EntityKind, id string) error
}

// Broker is a pub/sub transport addressed by physical channel name.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe delivers messages on channels to handler until ctx is done.
	// It returns once the subscription is established.
	Subscribe(ctx context.Context, channels []string, handler func(channel string, payload []byte)) error
	Ping(ctx context.Context) error
	Close() error
}

// PushChannel delivers frames to live client sessions. Both methods return
// the number of sessions the frame was handed to.
type PushChannel interface {
	SendToTopic(destination string, frame domain.PushFrame) int
	SendToUser(username, destination string, frame domain.PushFrame) int
}

// SessionObserver is told about push-channel session lifecycle.
type SessionObserver interface {
	SessionConnected(sessionID, username string)
	SessionDisconnected(sessionID string)
	Subscribed(sessionID, destination string)
	Unsubscribed(sessionID, destination string)
	MessageReceived(sessionID string)
	MessageSent(sessionID string)
	// Heartbeat records client liveness without a message, e.g. a pong.
	Heartbeat(sessionID string)
}

// SessionErrorRecorder accepts per-session delivery and connection errors.
type SessionErrorRecorder interface {
	RecordError(sessionID, message string, errorType domain.ErrorType)
	ClearSession(sessionID string)
}

// Timer is a scheduled callback that can be cancelled.
type Timer interface {
	Stop() bool
}

// Scheduler runs a function after a delay.
type Scheduler interface {
	AfterFunc(delay time.Duration, fn func()) Timer
}

// ProbeKind selects the lightweight broker check a recovery attempt runs.
type ProbeKind string

const (
	ProbePing      ProbeKind = "ping"
	ProbePublish   ProbeKind = "publish"
	ProbeHeartbeat ProbeKind = "heartbeat"
)

// Prober runs a lightweight broker check.
type Prober interface {
	Probe(ctx context.Context, kind ProbeKind) error
}
