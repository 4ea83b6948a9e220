package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"community-chat/internal/models"
	"community-chat/internal/observability"
)

// Hub tracks live connections and their room subscriptions. Broadcasts
// never block: a client whose send buffer is full is dropped.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	log     *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		log:     log,
	}
}

// Add registers a connection with no subscriptions.
func (h *Hub) Add(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// Remove drops a connection and every subscription it held.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range c.rooms {
		h.leaveLocked(roomID, c)
	}
	delete(h.clients, c.id)
}

// Join subscribes a connection to a room. Joining twice is a no-op.
func (h *Hub) Join(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[string]*Client)
		h.rooms[roomID] = subs
	}
	subs[c.id] = c
	c.rooms[roomID] = struct{}{}
}

// Leave unsubscribes a connection from a room.
func (h *Hub) Leave(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(roomID, c)
}

func (h *Hub) leaveLocked(roomID string, c *Client) {
	delete(c.rooms, roomID)
	subs, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(subs, c.id)
	if len(subs) == 0 {
		delete(h.rooms, roomID)
	}
}

// subscribed reports whether the connection is in the room's delivery set.
func (h *Hub) subscribed(roomID, connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][connID]
	return ok
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToRoom delivers the event to every subscriber of the room.
func (h *Hub) BroadcastToRoom(roomID string, event models.OutboundEvent) {
	h.BroadcastToRoomExcept(roomID, event, "")
}

// BroadcastToRoomExcept delivers the event to every subscriber of the room
// other than exceptConnID.
func (h *Hub) BroadcastToRoomExcept(roomID string, event models.OutboundEvent, exceptConnID string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for id, c := range h.rooms[roomID] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

// BroadcastAll delivers the event to every live connection.
func (h *Hub) BroadcastAll(event models.OutboundEvent) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

// SendTo delivers the event to a single connection.
func (h *Hub) SendTo(c *Client, event models.OutboundEvent) {
	h.deliver([]*Client{c}, event)
}

// CloseAll closes every live connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.Close()
	}
}

func (h *Hub) deliver(targets []*Client, event models.OutboundEvent) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("marshal outbound event failed", "event", event.Event, "error", err)
		return
	}
	for _, c := range targets {
		if c.enqueue(payload) {
			continue
		}
		h.log.Warn("dropping slow websocket client", "conn_id", c.id, "user_id", c.principal.UserID, "event", event.Event)
		observability.IncWSDroppedClient()
		c.Close()
	}
}
