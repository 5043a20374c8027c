package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AetherKnowledge/capstone/internal/config"
	"github.com/AetherKnowledge/capstone/pkg/log"
)

var ErrHubStopped = errors.New("hub stopped")

// Hub is the registry of live connections. It indexes clients by
// connection id and by user id; a user may hold several connections.
type Hub struct {
	clients map[string]*Client            // clientID -> client
	users   map[string]map[string]*Client // userID -> clientID -> client
	stopped bool
	mu      sync.RWMutex
	config  config.WebSocketConfig
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return &Hub{
		clients: make(map[string]*Client),
		users:   make(map[string]map[string]*Client),
		config:  cfg,
	}
}

// Register adds a client. Registering the same client twice is a no-op.
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return ErrHubStopped
	}
	if _, ok := h.clients[client.ID]; ok {
		return nil
	}

	userID := client.UserID()
	h.clients[client.ID] = client
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[string]*Client)
	}
	h.users[userID][client.ID] = client

	l := log.L()
	l.Debug().
		Str(log.FieldConnectionID, client.ID).
		Str(log.FieldUserID, userID).
		Msg("client registered")
	return nil
}

// Unregister removes a client and closes its send channel. It is safe
// to call any number of times.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	removed := h.remove(client)
	h.mu.Unlock()

	client.closeSend()

	if removed {
		l := log.L()
		l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
	}
}

// remove deletes client from both indexes. Callers hold h.mu.
func (h *Hub) remove(client *Client) bool {
	if _, ok := h.clients[client.ID]; !ok {
		return false
	}
	delete(h.clients, client.ID)

	userID := client.UserID()
	if conns, ok := h.users[userID]; ok {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	return true
}

// ConnectionsFor returns a snapshot of the open connections belonging to
// any of userIDs. The slice is not affected by later registry changes.
func (h *Hub) ConnectionsFor(userIDs []string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{}, len(userIDs))
	var out []*Client
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		for _, c := range h.users[userID] {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionsForUser returns a snapshot of every open connection of userID.
func (h *Hub) ConnectionsForUser(userID string) []*Client {
	return h.ConnectionsFor([]string{userID})
}

// Get returns the client registered under id.
func (h *Hub) Get(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stop closes every registered client with going-away status and rejects
// further registrations.
func (h *Hub) Stop() {
	h.mu.Lock()
	h.stopped = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	l := log.L()
	l.Info().Int("clients", len(clients)).Msg("hub stopped")
}
