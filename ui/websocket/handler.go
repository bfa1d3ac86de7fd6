package websocket

import (
	"encoding/json"
	"time"

	"github.com/AzielCF/az-engage/core/broadcast"
	"github.com/AzielCF/az-engage/ui/rest/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

const (
	localTenant  = "ws_tenant"
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// clientCommand is what a socket may send: join or leave a conversation room, or ping.
type clientCommand struct {
	Action         string `json:"action"`
	ConversationID string `json:"conversation_id"`
}

// RegisterRoutes mounts GET /ws on an authenticated router. Browsers pass the token as
// ?token= since they cannot set headers on an upgrade.
func (h *Hub) RegisterRoutes(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals(localTenant, middleware.Tenant(c))
		return c.Next()
	})
	router.Get("/ws", websocket.New(h.serve))
}

func (h *Hub) serve(conn *websocket.Conn) {
	tenant, _ := conn.Locals(localTenant).(string)
	if tenant == "" {
		_ = conn.Close()
		return
	}

	c := newClient(tenant, sendBuffer)
	h.join(c, broadcast.TenantRoom(tenant))
	done := make(chan struct{})
	go h.writeLoop(conn, c, done)
	defer func() {
		h.drop(c)
		<-done
	}()

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debug("[WS] Read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var cmd clientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		h.apply(c, cmd)
	}
}

// apply runs one client command. Rooms are always built from the socket's own tenant.
func (h *Hub) apply(c *client, cmd clientCommand) {
	switch cmd.Action {
	case "join":
		if cmd.ConversationID != "" {
			h.join(c, broadcast.ConversationRoom(c.tenant, cmd.ConversationID))
		}
	case "leave":
		if cmd.ConversationID != "" {
			h.leave(c, broadcast.ConversationRoom(c.tenant, cmd.ConversationID))
		}
	case "ping":
		frame, _ := json.Marshal(broadcast.Event{Type: "pong"})
		h.mu.RLock()
		if !c.closed {
			select {
			case c.send <- frame:
			default:
			}
		}
		h.mu.RUnlock()
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, c *client, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				_ = conn.Close()
				h.drop(c)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				h.drop(c)
				return
			}
		}
	}
}
