package websocket

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HTTP upgrade handler to WebSocket connections

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the console is served from a different origin in development
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades an authenticated request and registers the connection.
// It must run behind middleware.WebSocketAuth so rejected tokens get a 401
// before the upgrade.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("userID")
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: user ID not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error
			hub.logger.Warn("ws_upgrade_failed", slog.String("user_id", userID), slog.Any("error", err))
			return
		}

		ack, err := encode(NewConnectedMessage(userID))
		if err == nil {
			conn.SetWriteDeadline(time.Now().Add(WriteWait))
			err = conn.WriteMessage(websocket.TextMessage, ack)
		}
		if err != nil {
			conn.Close()
			return
		}

		client := NewClient(uuid.NewString(), userID, conn, hub)
		hub.Register(client)

		go client.WritePump()
		go client.ReadPump()
	}
}
