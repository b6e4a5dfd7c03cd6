package notify

import (
	"slices"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/client"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
)

// State is an immutable snapshot of the synchronized notification list.
// Subscribers and GetState callers may keep it; the store never mutates a
// published State.
type State struct {
	Items           []models.Notification // created_at descending, unique by id
	UnreadCount     int                   // always the number of unread entries in Items
	ConnectionState client.ConnState
	Connection      client.Connection

	Total             int // server total from the last snapshot
	ServerUnreadCount int // server unread count from the last snapshot or poll, -1 when unknown
	PendingMutations  int
	LastSyncedAt      time.Time
	Version           uint64
}

// HasMore reports whether older pages remain on the server
func (s State) HasMore() bool {
	return len(s.Items) < s.Total
}

// Find returns the entry with id and its position
func (s State) Find(id int64) (models.Notification, int, bool) {
	i := indexOf(s.Items, id)
	if i < 0 {
		return models.Notification{}, -1, false
	}
	return s.Items[i], i, true
}

// BadgeCount is what an unread indicator should show. While the push channel is
// down the locally loaded list can be stale, so the last server count wins.
func (s State) BadgeCount() int {
	if s.ConnectionState != client.Connected && s.ServerUnreadCount >= 0 {
		return s.ServerUnreadCount
	}
	return s.UnreadCount
}

func recomputeUnreadCount(items []models.Notification) int {
	count := 0
	for _, n := range items {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// newer reports whether a sorts before b: newest first, id breaks ties
func newer(a, b models.Notification) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func compareNewest(a, b models.Notification) int {
	switch {
	case a.ID == b.ID:
		return 0
	case newer(a, b):
		return -1
	default:
		return 1
	}
}

func sortNewest(items []models.Notification) {
	slices.SortStableFunc(items, compareNewest)
}

func indexOf(items []models.Notification, id int64) int {
	return slices.IndexFunc(items, func(n models.Notification) bool { return n.ID == id })
}

// sortedPosition is the index at which n keeps items ordered
func sortedPosition(items []models.Notification, n models.Notification) int {
	i, _ := slices.BinarySearchFunc(items, n, compareNewest)
	return i
}

// insertStable puts n back at idx when that keeps the list ordered, otherwise
// at its sorted position. idx is clamped to the list bounds.
func insertStable(items []models.Notification, n models.Notification, idx int) []models.Notification {
	idx = max(0, min(idx, len(items)))
	fits := (idx == 0 || !newer(n, items[idx-1])) && (idx == len(items) || !newer(items[idx], n))
	if !fits {
		idx = sortedPosition(items, n)
	}
	return slices.Insert(items, idx, n)
}
