package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/lorrc/backoffice-realtime/internal/core/domain"
	"github.com/lorrc/backoffice-realtime/internal/core/ports"
)

// Hub maintains the set of active Clients and delivers frames to them.
type Hub struct {
	// sessions maps session IDs to their client
	sessions map[string]*Client

	// users maps usernames to their active connections
	// A single user can have multiple connections (multiple tabs/devices)
	users map[string]map[*Client]bool

	// rooms maps topic destinations to subscribed clients
	rooms map[string]map[*Client]bool

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	done chan struct{}

	// mu protects the maps above
	mu sync.RWMutex

	observer ports.SessionObserver
	errors   ports.SessionErrorRecorder
	logger   *slog.Logger
}

var _ ports.PushChannel = (*Hub)(nil)

// NewHub creates a new WebSocket hub. observer and recorder may be nil.
func NewHub(observer ports.SessionObserver, recorder ports.SessionErrorRecorder, logger *slog.Logger) *Hub {
	if observer == nil {
		observer = noopObserver{}
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Hub{
		sessions:   make(map[string]*Client),
		users:      make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		observer:   observer,
		errors:     recorder,
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Run processes registrations until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.shutdown()
			return nil
		}
	}
}

// Attach registers client and reports false if the hub has stopped.
func (h *Hub) Attach(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// unregister asks the hub loop to drop client. It does not block once the
// hub has stopped.
func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.sessions[client.SessionID] = client
	if h.users[client.Username] == nil {
		h.users[client.Username] = make(map[*Client]bool)
	}
	h.users[client.Username][client] = true
	userConnections := len(h.users[client.Username])
	h.mu.Unlock()

	h.observer.SessionConnected(client.SessionID, client.Username)
	h.logger.Info("client registered",
		"session_id", client.SessionID,
		"username", client.Username,
		"user_connections", userConnections,
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.sessions[client.SessionID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, client.SessionID)

	if userClients, ok := h.users[client.Username]; ok {
		delete(userClients, client)
		if len(userClients) == 0 {
			delete(h.users, client.Username)
		}
	}

	for _, destination := range client.Subscriptions() {
		if room, ok := h.rooms[destination]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, destination)
			}
		}
	}
	h.mu.Unlock()

	client.CloseSend()
	h.observer.SessionDisconnected(client.SessionID)
	h.errors.ClearSession(client.SessionID)

	h.logger.Info("client unregistered",
		"session_id", client.SessionID,
		"username", client.Username,
	)
}

func (h *Hub) shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.sessions))
	for _, c := range h.sessions {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregisterClient(c)
	}
}

// SendToTopic queues frame for every client subscribed to destination.
func (h *Hub) SendToTopic(destination string, frame domain.PushFrame) int {
	h.mu.RLock()
	room := h.rooms[destination]
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	return h.deliver(clients, destination, frame)
}

// SendToUser queues frame for every connection of username.
func (h *Hub) SendToUser(username, destination string, frame domain.PushFrame) int {
	h.mu.RLock()
	userClients := h.users[username]
	clients := make([]*Client, 0, len(userClients))
	for client := range userClients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	return h.deliver(clients, destination, frame)
}

func (h *Hub) deliver(clients []*Client, destination string, frame domain.PushFrame) int {
	if len(clients) == 0 {
		return 0
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to encode frame", "destination", destination, "error", err)
		return 0
	}

	delivered := 0
	for _, client := range clients {
		if client.trySend(data) {
			delivered++
			continue
		}
		h.logger.Warn("client send buffer full, unregistering",
			"session_id", client.SessionID,
			"destination", destination,
		)
		h.errors.RecordError(client.SessionID, "send buffer full", domain.ErrorMessageSendFailed)
		go h.unregister(client)
	}

	h.logger.Debug("frame delivered",
		"destination", destination,
		"message_type", frame.MessageType,
		"client_count", delivered,
	)
	return delivered
}

// IsTopicDestination reports whether clients may subscribe to destination.
func IsTopicDestination(destination string) bool {
	return strings.HasPrefix(destination, "/topic/") && len(destination) > len("/topic/")
}

func (h *Hub) subscribe(client *Client, destination string) {
	h.mu.Lock()
	if h.rooms[destination] == nil {
		h.rooms[destination] = make(map[*Client]bool)
	}
	h.rooms[destination][client] = true
	h.mu.Unlock()

	client.addSubscription(destination)
	h.observer.Subscribed(client.SessionID, destination)

	h.logger.Debug("client subscribed",
		"session_id", client.SessionID,
		"destination", destination,
	)
}

func (h *Hub) unsubscribe(client *Client, destination string) {
	h.mu.Lock()
	if room, ok := h.rooms[destination]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, destination)
		}
	}
	h.mu.Unlock()

	if client.removeSubscription(destination) {
		h.observer.Unsubscribed(client.SessionID, destination)
	}
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// ClientsInRoom returns the number of clients subscribed to destination
func (h *Hub) ClientsInRoom(destination string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[destination])
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(username string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[username]) > 0
}

type noopObserver struct{}

func (noopObserver) SessionConnected(string, string) {}
func (noopObserver) SessionDisconnected(string)      {}
func (noopObserver) Subscribed(string, string)       {}
func (noopObserver) Unsubscribed(string, string)     {}
func (noopObserver) MessageReceived(string)          {}
func (noopObserver) MessageSent(string)              {}
func (noopObserver) Heartbeat(string)                {}

type noopRecorder struct{}

func (noopRecorder) RecordError(string, string, domain.ErrorType) {}
func (noopRecorder) ClearSession(string)                          {}
