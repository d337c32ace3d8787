package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Channel is a logical broker channel.
type Channel string

const (
	ChannelPrice   Channel = "price"
	ChannelVoucher Channel = "voucher"
	ChannelHealth  Channel = "health"
	ChannelChat    Channel = "chat"
	ChannelGlobal  Channel = "global"
)

// AllChannels lists every logical channel in subscription order.
var AllChannels = []Channel{ChannelPrice, ChannelVoucher, ChannelHealth, ChannelChat, ChannelGlobal}

// MessageEnvelope is the unit that crosses the broker boundary. It carries
// everything a receiver needs to deliver it.
type MessageEnvelope struct {
	MessageID     string    `json:"messageId,omitempty"`
	Destination   string    `json:"destination"`
	Payload       any       `json:"payload"`
	MessageType   string    `json:"messageType"`
	SourceService string    `json:"sourceService"`
	TargetUser    string    `json:"targetUser,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewEnvelope stamps a new envelope with an id and the current time.
func NewEnvelope(destination string, payload any, messageType, sourceService string) MessageEnvelope {
	return MessageEnvelope{
		MessageID:     uuid.NewString(),
		Destination:   destination,
		Payload:       payload,
		MessageType:   messageType,
		SourceService: sourceService,
		Timestamp:     time.Now().UTC(),
	}
}

// IsUserAddressed reports whether the envelope targets a single user's queue.
func (e MessageEnvelope) IsUserAddressed() bool {
	return e.TargetUser != "" && IsUserDestination(e.Destination)
}

// ReceivedEnvelope is an envelope decoded from the broker; the payload stays raw.
type ReceivedEnvelope struct {
	MessageID     string          `json:"messageId,omitempty"`
	Destination   string          `json:"destination"`
	Payload       json.RawMessage `json:"payload"`
	MessageType   string          `json:"messageType"`
	SourceService string          `json:"sourceService"`
	TargetUser    string          `json:"targetUser,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// HasPayload is false for a missing, null, empty-string or empty-object payload.
func (e ReceivedEnvelope) HasPayload() bool {
	switch string(e.Payload) {
	case "", "null", `""`, "{}", "[]":
		return false
	}
	return true
}

// QueuedMessage is an envelope waiting for its transaction to finish.
type QueuedMessage struct {
	Channel  Channel
	Envelope MessageEnvelope
	QueuedAt time.Time
}

// PushFrame is what a push-channel client receives.
type PushFrame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	MessageType string          `json:"messageType,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

const (
	FrameMessage = "MESSAGE"
	FramePong    = "PONG"
	FrameError   = "ERROR"
)

// NewMessageFrame converts a received envelope into a client frame.
func NewMessageFrame(env ReceivedEnvelope) PushFrame {
	ts := env.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return PushFrame{
		Type:        FrameMessage,
		Destination: env.Destination,
		MessageType: env.MessageType,
		Payload:     env.Payload,
		Timestamp:   ts,
	}
}
