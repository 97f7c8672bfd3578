package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/menuqr/backend/pkg/response"
)

const (
	EventViewerCount = "viewer_count"
	EventPong        = "pong"

	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // public menus are embedded on arbitrary sites
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client is one anonymous viewer of a public menu.
type Client struct {
	ID       string
	MenuID   uuid.UUID
	JoinedAt time.Time
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
}

// NewClient creates a viewer not yet bound to a connection. Used by ServeMenu and tests.
func NewClient(hub *Hub, menuID uuid.UUID) *Client {
	return &Client{
		ID:       uuid.New().String(),
		MenuID:   menuID,
		JoinedAt: time.Now(),
		hub:      hub,
		send:     make(chan WSMessage, 64),
		logger:   hub.logger,
	}
}

// Messages exposes the outbound queue. The channel is closed on Unregister.
func (c *Client) Messages() <-chan WSMessage {
	return c.send
}

// ServeMenu upgrades GET /public/menus/:id/live. gate rejects menus that are not public.
func ServeMenu(hub *Hub, logger *zap.Logger, gate func(ctx context.Context, menuID uuid.UUID) error) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		menuID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, "invalid menu id")
			return
		}
		if gate != nil {
			if err := gate(c.Request.Context(), menuID); err != nil {
				response.Error(c, err, "failed to open live menu")
				return
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(hub, menuID)
		client.conn = conn
		hub.Register(client)
		hub.Broadcast(menuID, EventViewerCount, map[string]int{"count": hub.ViewerCount(menuID)})
		go client.writePump()
		client.readPump()
	}
}

// readPump keeps the read deadline fresh. Viewers only send pings.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.hub.Broadcast(c.MenuID, EventViewerCount, map[string]int{"count": c.hub.ViewerCount(c.MenuID)})
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		if msg.Event == "ping" {
			select {
			case c.send <- WSMessage{Event: EventPong}:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("viewer write failed", zap.String("client_id", c.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
