package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Envelope is the wire frame for every event in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Hub is the pub/sub gateway: per-courier rooms, per-restaurant rooms and one
// couriers broadcast room. It only fans out; it holds no domain state and
// guarantees nothing across a disconnect; reconnecting clients re-join and
// re-request their snapshot.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	members map[*Client]map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		members: make(map[*Client]map[string]struct{}),
	}
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}

	if h.members[c] == nil {
		h.members[c] = make(map[string]struct{})
	}
	h.members[c][room] = struct{}{}
}

func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	if set, ok := h.members[c]; ok {
		delete(set, room)
	}
}

// Disconnect drops the client from every room it joined.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range h.members[c] {
		h.leaveLocked(c, room)
	}
	delete(h.members, c)
}

// Publish delivers an event to every member of a room. Publishing to an
// absent room is a no-op, not an error — the subscriber may simply be
// offline. A member whose send buffer is full is skipped rather than
// blocked on; it will resync via requestActiveOrders.
func (h *Hub) Publish(room, event string, payload any) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		slog.Error("marshal event frame", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			slog.Warn("dropping event for slow consumer", "room", room, "event", event)
		}
	}
}

func encodeFrame(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// RoomSize is used by tests and the health endpoint.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
