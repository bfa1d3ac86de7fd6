// Package websocket serves the realtime rooms. Events broadcast by any process reach the
// local sockets directly and the other api processes through the valkey fan-out channel.
package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/sirupsen/logrus"
)

const (
	fanoutChannel = "ws:broadcast"
	sendBuffer    = 64
)

// Fanout is the cross-process channel; *valkey.Client implements it.
type Fanout interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, fn func(payload []byte))
}

type envelope struct {
	ServerID string          `json:"server_id"`
	Room     string          `json:"room"`
	Frame    json.RawMessage `json:"frame"`
}

type client struct {
	tenant string
	send   chan []byte
	rooms  map[string]struct{}
	closed bool
}

func newClient(tenant string, buffer int) *client {
	return &client{tenant: tenant, send: make(chan []byte, buffer), rooms: map[string]struct{}{}}
}

// Hub keeps room membership for the sockets of this process.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	fanout   Fanout
	serverID string
}

var _ broadcast.Broadcaster = (*Hub)(nil)

// NewHub builds a hub. fanout may be nil when valkey is disabled; events then stay local.
func NewHub(fanout Fanout, serverID string) *Hub {
	return &Hub{rooms: map[string]map[*client]struct{}{}, fanout: fanout, serverID: serverID}
}

// Broadcast writes the event to the room here and publishes it for the other processes.
func (h *Hub) Broadcast(ctx context.Context, room, eventType string, data any) {
	frame, err := json.Marshal(broadcast.Event{Type: eventType, Room: room, Data: data})
	if err != nil {
		logrus.WithError(err).Errorf("[WS] Could not encode %s for %s", eventType, room)
		return
	}
	h.deliver(room, frame)

	if h.fanout == nil {
		return
	}
	body, err := json.Marshal(envelope{ServerID: h.serverID, Room: room, Frame: frame})
	if err != nil {
		return
	}
	if err := h.fanout.Publish(ctx, fanoutChannel, body); err != nil {
		logrus.WithError(err).Warnf("[WS] Fan-out of %s failed", eventType)
	}
}

// Run consumes the fan-out channel until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	if h.fanout == nil {
		return
	}
	logrus.Info("[WS] Subscribed to the fan-out channel")
	h.fanout.Subscribe(ctx, fanoutChannel, h.onRemote)
}

func (h *Hub) onRemote(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		logrus.WithError(err).Warn("[WS] Dropping undecodable fan-out message")
		return
	}
	if env.ServerID == h.serverID {
		return
	}
	h.deliver(env.Room, env.Frame)
}

// deliver never blocks: a client whose buffer is full is disconnected.
func (h *Hub) deliver(room string, frame []byte) {
	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[room] {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logrus.Warnf("[WS] Dropping slow client of tenant %s", c.tenant)
		h.drop(c)
	}
}

func (h *Hub) join(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = map[*client]struct{}{}
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, room)
}

func (h *Hub) removeLocked(c *client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// drop removes c from every room and closes its send channel. It is idempotent.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return
	}
	for room := range c.rooms {
		h.removeLocked(c, room)
	}
	c.closed = true
	close(c.send)
}

// Members reports how many sockets of this process are in room.
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
