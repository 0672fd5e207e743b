package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"musico/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBufferSize = 256
)

// Client is one websocket connection in a namespace.
type Client struct {
	id        string
	userID    string
	namespace string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	log zerolog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, userID, namespace string, log zerolog.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:        id,
		userID:    userID,
		namespace: namespace,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		log: log.With().
			Str("conn_id", id).
			Str("user_id", userID).
			Str("namespace", namespace).
			Logger(),
	}
}

// readPump hands frames to handle one at a time, in the order they arrive.
func (c *Client) readPump(ctx context.Context, handle func(context.Context, *Client, Message)) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Event == "" {
			metrics.RecordFrame(c.namespace, "unknown", "invalid")
			c.log.Debug().Msg("dropping malformed frame")
			continue
		}
		handle(ctx, c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
