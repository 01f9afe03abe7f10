package ws

import (
	"encoding/json"
	"sync"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/presence"
)

var _ core.Broadcaster = (*Hub)(nil)

// Event is the envelope every server-to-client frame is wrapped in.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Hub tracks live connections and their room memberships, and fans events
// out to rooms. All maps are guarded by a single mutex; actual socket writes
// happen asynchronously in each connection's write pump, so fanout never
// blocks on a peer.
type Hub struct {
	registry *presence.Registry
	logger   core.Logger

	mu     sync.Mutex
	conns  map[string]*Conn // by connection ID
	rooms  map[core.RoomID]map[*Conn]struct{}
	closed bool
}

func NewHub(registry *presence.Registry, logger core.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		conns:    make(map[string]*Conn),
		rooms:    make(map[core.RoomID]map[*Conn]struct{}),
	}
}

// Register adds a connection to the hub and the presence registry.
// It reports whether this connection took its user from offline to online.
func (h *Hub) Register(c *Conn) (cameOnline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.conns[c.ID] = c
	return h.registry.AddConnection(c.UserID, c.ID)
}

// Unregister removes a connection from all its rooms, the hub and the
// presence registry, then shuts its write pump down. It reports whether the
// user just went offline. Safe to call more than once.
func (h *Hub) Unregister(c *Conn) (wentOffline bool) {
	h.mu.Lock()
	if _, ok := h.conns[c.ID]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(h.conns, c.ID)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	wentOffline = h.registry.RemoveConnection(c.UserID, c.ID)
	h.mu.Unlock()

	// past this point no broadcast can reach c, so closing its queue is safe
	c.close()
	return wentOffline
}

// Join subscribes a registered connection to a room. Idempotent.
func (h *Hub) Join(c *Conn, room core.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c.ID]; !ok {
		return
	}
	c.rooms[room] = struct{}{}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave unsubscribes a connection from a room. Unknown memberships are a no-op.
func (h *Hub) Leave(c *Conn, room core.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Conn, room core.RoomID) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Broadcast queues an event for every member of a room. An empty or unknown
// room is a guaranteed no-op. Members whose send queue is full are skipped.
func (h *Hub) Broadcast(room core.RoomID, event string, payload interface{}) {
	data, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("ws: marshaling event failed", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.rooms[room] {
		if !c.trySend(data) {
			h.logger.Warn("ws: dropping " + event + " event for slow consumer " + c.ID)
		}
	}
}

// Send queues an event for a single connection.
func (h *Hub) Send(c *Conn, event string, payload interface{}) {
	data, err := json.Marshal(Event{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("ws: marshaling event failed", err)
		return
	}
	if !c.trySend(data) {
		h.logger.Warn("ws: dropping " + event + " event for slow consumer " + c.ID)
	}
}

// OnlineUsers lists the IDs of users with at least one live connection.
func (h *Hub) OnlineUsers() []string {
	return h.registry.ListOnline()
}

// Close unregisters every connection; further registrations are rejected.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		h.Unregister(c)
	}
}
