package websocket

import (
	"context"
	"log/slog"
)

// Central hub managing all connections, grouped into one room per user.
// Each WebSocket connection runs in its own goroutines
// but they all communicate with the hub through channels to avoid race conditions.

type delivery struct {
	userID  string
	payload []byte
}

type HubStats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	query      chan func(rooms map[string]*Room)
	done       chan struct{}

	rooms  map[string]*Room // owned by Run
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		query:      make(chan func(map[string]*Room)),
		done:       make(chan struct{}),
		rooms:      make(map[string]*Room),
		logger:     logger,
	}
}

// Run serves the hub until ctx is canceled, then closes every client
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, room := range h.rooms {
				for _, c := range room.GetClients() {
					c.Close()
				}
			}
			h.rooms = map[string]*Room{}
			h.logger.Info("hub_stopped")
			return

		case c := <-h.register:
			room, ok := h.rooms[c.UserID]
			if !ok {
				room = NewRoom(c.UserID)
				h.rooms[c.UserID] = room
			}
			if room.AddClient(c) {
				h.logger.Info("ws_client_registered",
					slog.String("user_id", c.UserID),
					slog.String("client_id", c.ID),
					slog.Int("user_connections", room.GetUserCount()),
				)
			}

		case c := <-h.unregister:
			h.remove(c)

		case d := <-h.deliver:
			room, ok := h.rooms[d.userID]
			if !ok {
				continue
			}
			for _, slow := range room.Broadcast(d.payload) {
				h.logger.Warn("ws_client_dropped_slow", slog.String("user_id", slow.UserID), slog.String("client_id", slow.ID))
				h.remove(slow)
			}

		case fn := <-h.query:
			fn(h.rooms)
		}
	}
}

func (h *Hub) remove(c *Client) {
	room, ok := h.rooms[c.UserID]
	if !ok || !room.RemoveClient(c) {
		return
	}
	c.Close()
	if room.GetUserCount() == 0 {
		delete(h.rooms, c.UserID)
	}
	h.logger.Info("ws_client_unregistered", slog.String("user_id", c.UserID), slog.String("client_id", c.ID))
}

// Register adds c to its user's room. After the hub stopped the client is closed instead.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver queues payload for every connection of userID
func (h *Hub) Deliver(userID string, payload []byte) {
	select {
	case h.deliver <- delivery{userID: userID, payload: payload}:
	case <-h.done:
	}
}

// UserConnectionCount returns the number of open connections of userID
func (h *Hub) UserConnectionCount(userID string) int {
	var n int
	h.inspect(func(rooms map[string]*Room) {
		if room, ok := rooms[userID]; ok {
			n = room.GetUserCount()
		}
	})
	return n
}

func (h *Hub) Stats() HubStats {
	var stats HubStats
	h.inspect(func(rooms map[string]*Room) {
		stats.Users = len(rooms)
		for _, room := range rooms {
			stats.Connections += room.GetUserCount()
		}
	})
	return stats
}

// inspect runs fn on the hub goroutine; it is a no-op once the hub stopped
func (h *Hub) inspect(fn func(map[string]*Room)) {
	ran := make(chan struct{})
	select {
	case h.query <- func(rooms map[string]*Room) { fn(rooms); close(ran) }:
		<-ran
	case <-h.done:
	}
}
