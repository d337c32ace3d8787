package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256
)

// Client frame types.
const (
	FrameSubscribe   = "SUBSCRIBE"
	FrameUnsubscribe = "UNSUBSCRIBE"
	FramePing        = "PING"
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// SessionID identifies this connection.
	SessionID string

	// Username is the authenticated principal.
	Username string

	// send carries encoded frames to the write pump.
	send chan []byte

	// mu protects subscriptions and closed
	mu            sync.Mutex
	subscriptions map[string]bool
	closed        bool

	logger *slog.Logger
}

// NewClient creates a client for an upgraded connection with a fresh session ID.
func NewClient(hub *Hub, conn *websocket.Conn, username string, logger *slog.Logger) *Client {
	sessionID := uuid.NewString()
	return &Client{
		hub:           hub,
		conn:          conn,
		SessionID:     sessionID,
		Username:      username,
		send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[string]bool),
		logger:        logger.With("session_id", sessionID, "username", username),
	}
}

// trySend queues data without blocking. It is false when the buffer is full
// or the client has been closed.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// CloseSend closes the send channel exactly once.
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) addSubscription(destination string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[destination] = true
}

func (c *Client) removeSubscription(destination string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscriptions[destination] {
		return false
	}
	delete(c.subscriptions, destination)
	return true
}

// Subscriptions returns a copy of the subscribed destinations.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs := make([]string, 0, len(c.subscriptions))
	for destination := range c.subscriptions {
		subs = append(subs, destination)
	}
	return subs
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		c.hub.observer.Heartbeat(c.SessionID)
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
				c.hub.errors.RecordError(c.SessionID, err.Error(), domain.ErrorConnectionFailed)
			}
			break
		}

		c.hub.observer.MessageReceived(c.SessionID)
		c.handleIncomingMessage(message)
	}
}

// WritePump pumps frames from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("failed to write message", "error", err)
				c.hub.errors.RecordError(c.SessionID, err.Error(), domain.ErrorMessageSendFailed)
				return
			}
			c.hub.observer.MessageSent(c.SessionID)

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				c.hub.errors.RecordError(c.SessionID, err.Error(), domain.ErrorHeartbeatTimeout)
				return
			}
		}
	}
}

// --- Incoming Message Handling ---

// ClientMessage is a frame sent by the client.
type ClientMessage struct {
	Type        string `json:"type"`
	Destination string `json:"destination,omitempty"`
}

func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		c.sendError("", "malformed frame")
		return
	}

	switch msg.Type {
	case FrameSubscribe:
		if !IsTopicDestination(msg.Destination) {
			c.logger.Warn("invalid subscribe destination", "destination", msg.Destination)
			c.sendError(msg.Destination, "only /topic/ destinations can be subscribed")
			c.hub.errors.RecordError(c.SessionID, "invalid subscribe destination "+msg.Destination, domain.ErrorSubscriptionFailed)
			return
		}
		c.hub.subscribe(c, msg.Destination)

	case FrameUnsubscribe:
		c.hub.unsubscribe(c, msg.Destination)

	case FramePing:
		c.sendFrame(domain.PushFrame{Type: domain.FramePong, Timestamp: time.Now().UTC()})

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
	}
}

func (c *Client) sendError(destination, reason string) {
	payload, _ := json.Marshal(map[string]string{"error": reason})
	c.sendFrame(domain.PushFrame{
		Type:        domain.FrameError,
		Destination: destination,
		Payload:     payload,
		Timestamp:   time.Now().UTC(),
	})
}

func (c *Client) sendFrame(frame domain.PushFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if !c.trySend(data) {
		c.logger.Debug("send buffer full, dropping frame", "type", frame.Type)
	}
}
