package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Individual client connection handler.
// One user may hold several connections (tabs, devices); each is a Client.

const ( // ping pong(2-way heartbeat) to keep connection alive
	WriteWait      = 10 * time.Second    // max time write a message to the peer
	PongWait       = 60 * time.Second    // max time to wait for pong from peer => no pong = no connection
	PingPeriod     = (PongWait * 9) / 10 // send pings before pong wait expires, 10% slack for network jitter
	MaxMessageSize = 512                 // maximum message size allowed from peer
	SendBuffer     = 64                  // queued outbound events before the client is considered slow
)

type Client struct {
	ID          string          // unique connection ID
	UserID      string          // user ID from the auth token
	Conn        *websocket.Conn // WebSocket connection
	SendChannel chan []byte     // channel for outbound(chan <-) messages
	Hub         *Hub            // reference to the central Hub

	closeOnce sync.Once
	logger    *slog.Logger
}

func NewClient(id, userID string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		ID:          id,
		UserID:      userID,
		Conn:        conn,
		SendChannel: make(chan []byte, SendBuffer),
		Hub:         hub,
		logger:      hub.logger.With(slog.String("client_id", id), slog.String("user_id", userID)),
	}
}

// ReadPump drains inbound frames so control frames (ping, pong, close) are
// processed. The push channel is server-to-client; payloads are ignored.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("ws_read_failed", slog.Any("error", err))
			}
			return
		}
		// any traffic proves liveness
		c.Conn.SetReadDeadline(time.Now().Add(PongWait))
		c.logger.Debug("ws_inbound_ignored", slog.Int("bytes", len(data)))
	}
}

// WritePump is the only writer of data frames on the connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.SendChannel:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if !ok {
				// hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("ws_write_failed", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues message without blocking; false means the client is too slow
func (c *Client) SendMessage(message []byte) bool {
	select {
	case c.SendChannel <- message:
		return true
	default:
		return false
	}
}

// Close closes the outbound channel, which makes WritePump say goodbye.
// Only the hub calls it, once the client is no longer reachable.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.SendChannel) })
}
