package notify

import (
	"slices"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/google/uuid"
)

// MutationKind is the kind of optimistic change a dispatcher applies
type MutationKind int

const (
	MutationRead MutationKind = iota + 1
	MutationBulkRead
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationRead:
		return "read"
	case MutationBulkRead:
		return "bulk_read"
	case MutationDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// priorEntry is the exact state of one affected entry before the mutation
type priorEntry struct {
	Index int
	Item  models.Notification
}

// Mutation is an in-flight optimistic change: its forward effect, the target
// ids and the captured prior state needed to undo it.
type Mutation struct {
	ID          uuid.UUID
	Kind        MutationKind
	TargetIDs   []int64
	SubmittedAt time.Time

	prior       []priorEntry // ordered by ascending Index
	confirmedAt time.Time
	unreadDelta int // server unread count taken off optimistically
}

func newMutation(kind MutationKind, ids []int64, at time.Time) *Mutation {
	return &Mutation{
		ID:          uuid.New(),
		Kind:        kind,
		TargetIDs:   ids,
		SubmittedAt: at,
	}
}

// targets reports whether the mutation covers id
func (m *Mutation) targets(id int64) bool {
	return slices.Contains(m.TargetIDs, id)
}

// capture records the prior state of every target currently in items
func (m *Mutation) capture(items []models.Notification) {
	m.prior = m.prior[:0]
	for i, n := range items {
		if m.targets(n.ID) {
			m.prior = append(m.prior, priorEntry{Index: i, Item: n.Clone()})
		}
	}
}

// forget drops id from the rollback snapshot so a later rollback cannot
// restore state the server has since overridden
func (m *Mutation) forget(id int64) {
	m.prior = slices.DeleteFunc(m.prior, func(p priorEntry) bool {
		if p.Item.ID != id {
			return false
		}
		if !p.Item.IsRead && m.unreadDelta > 0 {
			m.unreadDelta--
		}
		return true
	})
}

func (m *Mutation) forgetAll() {
	m.prior = nil
	m.unreadDelta = 0
}

// forward applies the optimistic effect and returns the new list
func (m *Mutation) forward(items []models.Notification) []models.Notification {
	switch m.Kind {
	case MutationRead, MutationBulkRead:
		for i := range items {
			if !items[i].IsRead && m.targets(items[i].ID) {
				items[i] = markRead(items[i], m.SubmittedAt)
			}
		}
		return items
	case MutationDelete:
		return slices.DeleteFunc(items, func(n models.Notification) bool { return m.targets(n.ID) })
	}
	return items
}

// rollback restores the captured prior state and returns the new list.
// Entries that have disappeared in the meantime are not resurrected by read
// rollbacks; delete rollbacks put entries back at their original index.
func (m *Mutation) rollback(items []models.Notification) []models.Notification {
	switch m.Kind {
	case MutationRead, MutationBulkRead:
		for _, p := range m.prior {
			if i := indexOf(items, p.Item.ID); i >= 0 {
				items[i].IsRead = p.Item.IsRead
				items[i].ReadAt = p.Item.ReadAt
			}
		}
	case MutationDelete:
		for _, p := range m.prior {
			if indexOf(items, p.Item.ID) >= 0 {
				continue
			}
			items = insertStable(items, p.Item.Clone(), p.Index)
		}
	}
	return items
}

func markRead(n models.Notification, at time.Time) models.Notification {
	n.IsRead = true
	readAt := at
	n.ReadAt = &readAt
	return n
}
