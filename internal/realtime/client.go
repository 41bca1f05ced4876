package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for transport-level keepalive.
	PingInterval = 30
	PongWait     = 60
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN deployment, all origins allowed
	},
}

// CommandHandler consumes inbound playback traffic. Both methods are invoked
// on the hub's serial loop.
type CommandHandler interface {
	// Handle processes a command payload from the given session.
	Handle(senderID string, data json.RawMessage)
	// Sync re-delivers the current state snapshot to the given session.
	Sync(senderID string)
}

// Client represents a single WebSocket connection.
type Client struct {
	ID      string
	hub     *Hub
	handler CommandHandler
	conn    *websocket.Conn
	send    chan Message
	logger  *zap.Logger

	closeOnce sync.Once
}

// TrySend queues a message without blocking; false means it was dropped.
func (c *Client) TrySend(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Close tears down the underlying connection, unblocking both pumps.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
func ServeWs(hub *Hub, handler CommandHandler, logger *zap.Logger) gin.HandlerFunc {
	return func(g *gin.Context) {
		conn, err := upgrader.Upgrade(g.Writer, g.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:      uuid.New().String(),
			hub:     hub,
			handler: handler,
			conn:    conn,
			send:    make(chan Message, 256),
			logger:  logger,
		}
		meta := SessionMeta{
			RemoteAddr: g.ClientIP(),
			UserAgent:  g.Request.UserAgent(),
		}

		hub.Do(func() {
			hub.Register(client.ID, meta, client)
			hub.BroadcastCounts()
			// reconcile the newcomer with the authoritative state
			handler.Sync(client.ID)
		})

		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Do(func() {
			if _, ok := c.hub.RemoveIf(c.ID, c); ok {
				c.hub.BroadcastCounts()
			}
		})
		c.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		id := c.ID
		now := time.Now()
		switch msg.Event {
		case EventIdentify:
			var payload struct {
				Role string `json:"role"`
			}
			_ = json.Unmarshal(msg.Data, &payload)
			role := ParseRole(payload.Role)
			c.hub.Do(func() {
				c.hub.Touch(id, now)
				if c.hub.Identify(id, role) {
					c.hub.BroadcastCounts()
				}
			})
		case EventHeartbeat:
			c.hub.Do(func() { c.hub.Touch(id, now) })
		case EventCommand:
			data := msg.Data
			c.hub.Do(func() {
				c.hub.Touch(id, now)
				c.handler.Handle(id, data)
			})
		case EventRequestSync:
			c.hub.Do(func() {
				c.hub.Touch(id, now)
				c.handler.Sync(id)
			})
		default:
			c.logger.Debug("unknown event ignored", zap.String("session_id", id), zap.String("event", msg.Event))
			c.hub.Do(func() { c.hub.Touch(id, now) })
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
