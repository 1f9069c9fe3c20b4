// Package realtime fans room events out to websocket clients across instances.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60

	sendBuffer = 256
)

// Events originated by clients.
const (
	EventJoin        = "join"
	EventPresence    = "presence"
	EventChatMessage = "chat_message"
)

// PresenceHandler is called when the local client count of a room changes.
type PresenceHandler func(roomID uuid.UUID, count int)

// Publisher publishes a room event to every instance.
type Publisher interface {
	PublishRoomEvent(roomID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to a room channel and invokes handler for incoming events.
type Subscriber interface {
	SubscribeRoom(roomID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// Hub maintains room_id -> set of connections. With a publisher configured every event
// goes through Redis and is delivered by the subscription, so each client sees it once.
type Hub struct {
	rooms      map[uuid.UUID]map[string]*Client
	subs       map[uuid.UUID]func()
	mu         sync.RWMutex
	logger     *zap.Logger
	pub        Publisher
	sub        Subscriber
	onPresence PresenceHandler
}

// NewHub creates a hub. pub and sub may both be nil for a single-instance deployment.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:  make(map[uuid.UUID]map[string]*Client),
		subs:   make(map[uuid.UUID]func()),
		logger: logger,
		pub:    pub,
		sub:    sub,
	}
}

// SetPresenceHandler sets the callback for local client count changes.
func (h *Hub) SetPresenceHandler(fn PresenceHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPresence = fn
}

// Register adds a client to a room. The first local client opens the room subscription.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.RoomID] == nil {
		h.rooms[c.RoomID] = make(map[string]*Client)
		if h.sub != nil {
			roomID := c.RoomID
			cancel, err := h.sub.SubscribeRoom(roomID, func(event string, payload []byte) {
				h.broadcastLocal(roomID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("room subscription failed", zap.String("room_id", roomID.String()), zap.Error(err))
			} else {
				h.subs[roomID] = cancel
			}
		}
	}
	h.rooms[c.RoomID][c.ID] = c
	count := len(h.rooms[c.RoomID])
	onPresence := h.onPresence
	h.mu.Unlock()
	if onPresence != nil {
		onPresence(c.RoomID, count)
	}
	h.logger.Debug("client joined room", zap.String("client_id", c.ID), zap.String("room_id", c.RoomID.String()))
}

// Unregister removes a client. The last local client closes the room subscription.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	var count int
	if m, ok := h.rooms[c.RoomID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		count = len(m)
		if count == 0 {
			delete(h.rooms, c.RoomID)
			if cancel, ok := h.subs[c.RoomID]; ok {
				cancel()
				delete(h.subs, c.RoomID)
			}
		}
	}
	onPresence := h.onPresence
	h.mu.Unlock()
	if onPresence != nil {
		onPresence(c.RoomID, count)
	}
	h.logger.Debug("client left room", zap.String("client_id", c.ID), zap.String("room_id", c.RoomID.String()))
}

// broadcastLocal sends a message to the clients connected to this instance.
func (h *Hub) broadcastLocal(roomID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("marshal room event failed", zap.String("event", event), zap.Error(err))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[roomID] {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("client buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", event))
		}
	}
}

// Publish delivers an event to every client of the room on every instance.
func (h *Hub) Publish(roomID uuid.UUID, event string, payload interface{}) {
	if h.pub == nil {
		h.broadcastLocal(roomID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal room event failed", zap.String("event", event), zap.Error(err))
		return
	}
	if err := h.pub.PublishRoomEvent(roomID, event, data); err != nil {
		h.logger.Warn("publish room event failed", zap.String("room_id", roomID.String()), zap.String("event", event), zap.Error(err))
	}
}

// NotifyRoom publishes a server-side room event.
func (h *Hub) NotifyRoom(roomID uuid.UUID, event string, payload interface{}) {
	h.Publish(roomID, event, payload)
}

// ClientCount returns the number of clients connected to this instance for a room.
func (h *Hub) ClientCount(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Close cancels every room subscription and disconnects local clients.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cancel := range h.subs {
		cancel()
		delete(h.subs, id)
	}
	for id, m := range h.rooms {
		for _, c := range m {
			close(c.send)
		}
		delete(h.rooms, id)
	}
}
