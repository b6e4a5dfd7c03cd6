package websocket

import (
	"sync"
)

// Room groups every open connection of one user
type Room struct {
	UserID  string
	Clients map[string]*Client // map[clientID] -> *Client
	mu      sync.RWMutex
}

func NewRoom(userID string) *Room {
	return &Room{
		UserID:  userID,
		Clients: make(map[string]*Client),
	}
}

// AddClient reports false when the client was already present
func (r *Room) AddClient(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.Clients[c.ID]; ok {
		return false
	}
	r.Clients[c.ID] = c
	return true
}

// RemoveClient reports false when the client was not in the room
func (r *Room) RemoveClient(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Clients[c.ID] != c {
		return false
	}
	delete(r.Clients, c.ID)
	return true
}

// Broadcast queues message for every client and returns the ones that could
// not keep up
func (r *Room) Broadcast(message []byte) (slow []*Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, client := range r.Clients {
		if !client.SendMessage(message) {
			slow = append(slow, client)
		}
	}
	return slow
}

func (r *Room) GetUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Clients)
}

// GetClients returns a copy of the client list
func (r *Room) GetClients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]*Client, 0, len(r.Clients))
	for _, client := range r.Clients {
		clients = append(clients, client)
	}
	return clients
}
