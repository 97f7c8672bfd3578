// Package realtime pushes live menu changes to public viewers over WebSocket.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat, in seconds.
	PingInterval = 30
	PongWait     = 60

	// EventMenuUpdated tells viewers to refetch the public menu.
	EventMenuUpdated = "menu_updated"
)

// Hub maintains menu_id -> set of viewer connections and broadcasts messages.
// With Redis configured, every event goes through pub/sub so all instances deliver it once.
type Hub struct {
	menus    map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per menu
	pending  map[uuid.UUID]bool   // subscription attempt in flight
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    Publisher
	redisSub Subscriber
}

// Publisher publishes menu events to other instances.
type Publisher interface {
	PublishMenuEvent(menuID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to a menu channel and invokes handler for incoming events.
type Subscriber interface {
	SubscribeMenu(menuID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		menus:    make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		pending:  make(map[uuid.UUID]bool),
		logger:   logger,
		redis:    pub,
		redisSub: sub,
	}
}

// Register adds a viewer to a menu room. Starts the Redis subscription for the menu when
// none is active, so a failed attempt is retried by the next viewer.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.menus[c.MenuID] == nil {
		h.menus[c.MenuID] = make(map[string]*Client)
	}
	h.menus[c.MenuID][c.ID] = c
	_, subscribed := h.subs[c.MenuID]
	h.mu.Unlock()
	h.logger.Debug("viewer joined menu", zap.String("client_id", c.ID), zap.String("menu_id", c.MenuID.String()))

	if h.redisSub != nil && !subscribed {
		h.subscribe(c.MenuID)
	}
}

// subscribe runs outside the hub lock. The result is dropped if the room emptied meanwhile.
func (h *Hub) subscribe(menuID uuid.UUID) {
	h.mu.Lock()
	if _, ok := h.subs[menuID]; ok || h.pending[menuID] {
		h.mu.Unlock()
		return
	}
	h.pending[menuID] = true
	h.mu.Unlock()

	cancel, err := h.redisSub.SubscribeMenu(menuID, func(event string, payload []byte) {
		h.Broadcast(menuID, event, json.RawMessage(payload))
	})

	h.mu.Lock()
	delete(h.pending, menuID)
	if err != nil {
		h.mu.Unlock()
		h.logger.Warn("menu subscription failed", zap.String("menu_id", menuID.String()), zap.Error(err))
		return
	}
	if len(h.menus[menuID]) == 0 {
		h.mu.Unlock()
		cancel()
		return
	}
	h.subs[menuID] = cancel
	h.mu.Unlock()
}

// Unregister removes a viewer. Cancels the Redis subscription when the last viewer leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.menus[c.MenuID]; ok {
		if _, present := m[c.ID]; present {
			delete(m, c.ID)
			close(c.send)
		}
		if len(m) == 0 {
			delete(h.menus, c.MenuID)
			if cancel, ok := h.subs[c.MenuID]; ok {
				cancel()
				delete(h.subs, c.MenuID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("viewer left menu", zap.String("client_id", c.ID), zap.String("menu_id", c.MenuID.String()))
}

// Broadcast sends a message to all local viewers of a menu.
func (h *Hub) Broadcast(menuID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.menus[menuID] {
		select {
		case c.send <- msg:
		default:
			// slow viewer, drop
		}
	}
}

// Publish delivers an event to viewers on every instance. Without Redis it broadcasts locally.
// Local viewers of a menu with no active subscription are served directly.
func (h *Hub) Publish(menuID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.redis != nil {
		err := h.redis.PublishMenuEvent(menuID, event, data)
		if err == nil {
			h.mu.RLock()
			_, subscribed := h.subs[menuID]
			h.mu.RUnlock()
			if subscribed || h.redisSub == nil {
				return
			}
		} else {
			h.logger.Warn("publish menu event failed, broadcasting locally", zap.Error(err))
		}
	}
	h.Broadcast(menuID, event, json.RawMessage(data))
}

// ViewerCount returns the number of connected viewers of a menu on this instance.
func (h *Hub) ViewerCount(menuID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.menus[menuID])
}

// Close cancels every Redis subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, cancel := range h.subs {
		cancel()
		delete(h.subs, id)
	}
}
