package notify

// store.go = the reconciler. Every change to the synchronized list (snapshots,
// push events, optimistic mutations, rollbacks, connection changes) goes through
// Store.update, which serializes transitions and publishes a new State.

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/client"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/google/uuid"
)

// confirmed mutations are reapplied to snapshots fetched before they were
// submitted; after this long every such snapshot has resolved
const defaultConfirmedRetention = 2 * time.Minute

// Snapshot is one resolved pull channel query
type Snapshot struct {
	Items     []models.Notification
	FetchedAt time.Time // when the request was issued, not when it resolved

	Total       int // -1 when not reported
	UnreadCount int // -1 when not reported

	// Head snapshots are the first page of the list. Local entries inside the
	// snapshot's window that the server no longer returns are pruned.
	Head bool
	// Complete means the snapshot reaches the oldest notification, so the
	// prune window extends to the end of the list.
	Complete bool
}

// pushRead is a read the server announced on the push channel
type pushRead struct {
	received time.Time // local clock, comparable with Snapshot.FetchedAt
	readAt   time.Time
	cutoff   time.Time // BulkRead only: entries created after it are not covered, zero covers all
}

// StoreOption customises a Store
type StoreOption func(*Store)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = logger }
}

// WithConfirmedRetention sets how long confirmed mutations keep being
// reapplied to older snapshots
func WithConfirmedRetention(d time.Duration) StoreOption {
	return func(s *Store) { s.retention = d }
}

// Store owns the notification list. All methods are safe for concurrent use.
//
// Subscribers run synchronously inside the transition that produced the
// State, in transition order. They may call GetState, Subscribe and
// unsubscribe, but must not call mutating Store methods synchronously.
type Store struct {
	logger    *slog.Logger
	now       func() time.Time
	retention time.Duration

	mu         sync.Mutex
	items      []models.Notification
	discovered map[int64]time.Time // when each entry first entered the local list
	tombstones map[int64]struct{}  // ids deleted by the server, never re-added
	pushReads  map[int64]pushRead  // push Read events, replayed over older snapshots
	bulkRead   pushRead            // latest push BulkRead
	pending    []*Mutation         // submission order
	confirmed  []*Mutation
	conn       client.Connection
	total      int
	serverUnrd int
	lastSync   time.Time
	version    uint64

	current atomic.Pointer[State]

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

// NewStore returns an empty store in the Disconnected state
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		logger:     slog.Default(),
		now:        time.Now,
		retention:  defaultConfirmedRetention,
		discovered: make(map[int64]time.Time),
		tombstones: make(map[int64]struct{}),
		pushReads:  make(map[int64]pushRead),
		serverUnrd: -1,
		subs:       make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&State{Items: []models.Notification{}, ServerUnreadCount: -1})
	return s
}

// GetState returns the latest published State
func (s *Store) GetState() State {
	return *s.current.Load()
}

// Subscribe registers fn for every published State
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// update is the single entry point for transitions. fn reports whether it
// changed anything; unchanged transitions publish nothing.
func (s *Store) update(fn func() bool) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !fn() {
		return *s.current.Load()
	}
	s.version++
	st := &State{
		Items:             slices.Clone(s.items),
		UnreadCount:       recomputeUnreadCount(s.items),
		ConnectionState:   s.conn.State,
		Connection:        s.conn,
		Total:             max(s.total, len(s.items)),
		ServerUnreadCount: s.serverUnrd,
		PendingMutations:  len(s.pending),
		LastSyncedAt:      s.lastSync,
		Version:           s.version,
	}
	if st.Items == nil {
		st.Items = []models.Notification{}
	}
	s.current.Store(st)

	s.subMu.Lock()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(*st)
	}
	return *st
}

// MergeSnapshot upserts items by id and keeps every other local entry
func (s *Store) MergeSnapshot(items []models.Notification, fetchedAt time.Time) State {
	return s.ApplySnapshot(Snapshot{Items: items, FetchedAt: fetchedAt, Total: -1, UnreadCount: -1})
}

// ReplaceHead merges a first-page snapshot and prunes local entries in its
// window that the server no longer returns
func (s *Store) ReplaceHead(items []models.Notification, fetchedAt time.Time) State {
	return s.ApplySnapshot(Snapshot{Items: items, FetchedAt: fetchedAt, Total: -1, UnreadCount: -1, Head: true})
}

// ApplySnapshot reconciles a resolved pull query with the local list. Pending
// mutations, confirmed ones submitted after the query was issued and push
// reads received after it are reapplied on top, so neither optimistic nor
// pushed changes are undone by a stale snapshot.
func (s *Store) ApplySnapshot(snap Snapshot) State {
	return s.update(func() bool {
		now := s.now()
		seen := make(map[int64]struct{}, len(snap.Items))

		for _, n := range snap.Items {
			if _, dead := s.tombstones[n.ID]; dead {
				continue
			}
			if n.DeletedAt != nil {
				s.removeLocked(n.ID)
				s.tombstones[n.ID] = struct{}{}
				continue
			}
			seen[n.ID] = struct{}{}
			if i := indexOf(s.items, n.ID); i >= 0 {
				s.items[i] = n.Clone()
				continue
			}
			s.items = append(s.items, n.Clone())
			s.discovered[n.ID] = now
		}

		if snap.Head {
			s.pruneLocked(snap, seen)
		}
		sortNewest(s.items)
		s.reapplyLocked(snap.FetchedAt, now)

		if snap.Total >= 0 {
			s.total = snap.Total
		}
		if snap.UnreadCount >= 0 {
			s.serverUnrd = snap.UnreadCount
		}
		s.lastSync = now
		return true
	})
}

// pruneLocked drops entries the head snapshot should have returned but did
// not. Entries discovered after the query was issued are kept: the snapshot
// could not have known about them.
func (s *Store) pruneLocked(snap Snapshot, seen map[int64]struct{}) {
	var oldest time.Time
	for _, n := range snap.Items {
		if oldest.IsZero() || n.CreatedAt.Before(oldest) {
			oldest = n.CreatedAt
		}
	}
	complete := snap.Complete || len(snap.Items) == 0

	s.items = slices.DeleteFunc(s.items, func(n models.Notification) bool {
		if _, ok := seen[n.ID]; ok {
			return false
		}
		if !complete && n.CreatedAt.Before(oldest) {
			return false
		}
		if at, ok := s.discovered[n.ID]; ok && !at.Before(snap.FetchedAt) {
			return false
		}
		delete(s.discovered, n.ID)
		s.logger.Debug("store_pruned_entry", "notification_id", n.ID)
		return true
	})
}

func (s *Store) reapplyLocked(fetchedAt, now time.Time) {
	for _, m := range s.pending {
		s.items = m.forward(s.items)
	}
	kept := s.confirmed[:0]
	for _, m := range s.confirmed {
		if now.Sub(m.confirmedAt) > s.retention {
			continue
		}
		if m.SubmittedAt.After(fetchedAt) {
			s.items = m.forward(s.items)
			kept = append(kept, m)
		}
		// older confirmed mutations are already reflected by this snapshot
	}
	clear(s.confirmed[len(kept):])
	s.confirmed = kept

	// reads never revert on the server, so a read received after the query
	// was issued is newer than whatever the snapshot says
	for id, r := range s.pushReads {
		if now.Sub(r.received) > s.retention {
			delete(s.pushReads, id)
			continue
		}
		if !r.received.After(fetchedAt) {
			continue
		}
		if i := indexOf(s.items, id); i >= 0 && !s.items[i].IsRead {
			s.items[i] = markRead(s.items[i], r.readAt)
		}
	}

	bulk := s.bulkRead
	if bulk.received.IsZero() {
		return
	}
	if now.Sub(bulk.received) > s.retention {
		s.bulkRead = pushRead{}
		return
	}
	if !bulk.received.After(fetchedAt) {
		return
	}
	for i, n := range s.items {
		if n.IsRead || (!bulk.cutoff.IsZero() && n.CreatedAt.After(bulk.cutoff)) {
			continue
		}
		s.items[i] = markRead(n, bulk.readAt)
	}
}

// ApplyPushEvent folds one push event into the list
func (s *Store) ApplyPushEvent(ev client.Event) State {
	return s.update(func() bool {
		switch ev.Kind {
		case client.EventCreated:
			return s.insertLocked(ev.Notification)
		case client.EventRead:
			return s.markReadLocked(ev.ID, ev.At)
		case client.EventDeleted:
			s.tombstones[ev.ID] = struct{}{}
			for _, m := range s.pending {
				m.forget(ev.ID)
			}
			return s.removeLocked(ev.ID)
		case client.EventBulkRead:
			for _, m := range s.pending {
				if m.Kind != MutationDelete {
					m.forgetAll()
				}
			}
			now := s.now()
			at := ev.At
			if at.IsZero() {
				at = now
			}
			s.bulkRead = pushRead{received: now, readAt: at, cutoff: ev.At}
			changed := false
			for i := range s.items {
				if !s.items[i].IsRead {
					s.items[i] = markRead(s.items[i], at)
					changed = true
				}
			}
			return changed
		}
		s.logger.Debug("store_unknown_event", "kind", ev.Kind)
		return false
	})
}

func (s *Store) insertLocked(n models.Notification) bool {
	if _, dead := s.tombstones[n.ID]; dead {
		s.logger.Debug("store_ignored_tombstoned", "notification_id", n.ID)
		return false
	}
	if indexOf(s.items, n.ID) >= 0 {
		s.logger.Debug("store_ignored_duplicate", "notification_id", n.ID)
		return false
	}
	// a pending delete of this id keeps it hidden until confirmed or rolled back
	for _, m := range s.pending {
		if m.Kind == MutationDelete && m.targets(n.ID) {
			return false
		}
	}
	n = n.Clone()
	s.items = slices.Insert(s.items, sortedPosition(s.items, n), n)
	s.discovered[n.ID] = s.now()
	s.total++
	return true
}

func (s *Store) markReadLocked(id int64, at time.Time) bool {
	// the server has this entry read now; rolling back to unread would be wrong
	for _, m := range s.pending {
		if m.Kind != MutationDelete {
			m.forget(id)
		}
	}
	now := s.now()
	if at.IsZero() {
		at = now
	}
	// recorded even when not loaded: an older page may still bring it in unread
	s.pushReads[id] = pushRead{received: now, readAt: at}

	i := indexOf(s.items, id)
	if i < 0 || s.items[i].IsRead {
		return false
	}
	s.items[i] = markRead(s.items[i], at)
	return true
}

func (s *Store) removeLocked(id int64) bool {
	i := indexOf(s.items, id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	delete(s.discovered, id)
	if s.total > 0 {
		s.total--
	}
	return true
}

// Consume applies events until ctx is done or events is closed
func (s *Store) Consume(ctx context.Context, events <-chan client.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.ApplyPushEvent(ev)
		}
	}
}

// SetConnection records a push channel transition
func (s *Store) SetConnection(conn client.Connection) State {
	return s.update(func() bool {
		if sameConnection(s.conn, conn) {
			return false
		}
		s.conn = conn
		return true
	})
}

// SetServerUnreadCount records an unread count reported by the pull channel
func (s *Store) SetServerUnreadCount(n int) State {
	return s.update(func() bool {
		if s.serverUnrd == n {
			return false
		}
		s.serverUnrd = n
		return true
	})
}

// Reset clears everything but the subscribers, e.g. on logout
func (s *Store) Reset() State {
	return s.update(func() bool {
		s.items = nil
		s.discovered = make(map[int64]time.Time)
		s.tombstones = make(map[int64]struct{})
		s.pushReads = make(map[int64]pushRead)
		s.bulkRead = pushRead{}
		s.pending = nil
		s.confirmed = nil
		s.conn = client.Connection{}
		s.total = 0
		s.serverUnrd = -1
		s.lastSync = time.Time{}
		return true
	})
}

// BeginMarkRead applies an optimistic read of id. It returns nil when the
// entry is loaded and already read, which makes the action a no-op.
func (s *Store) BeginMarkRead(id int64) *Mutation {
	var m *Mutation
	s.update(func() bool {
		if i := indexOf(s.items, id); i >= 0 && s.items[i].IsRead {
			return false
		}
		m = s.beginLocked(MutationRead, []int64{id})
		return true
	})
	return m
}

// BeginMarkAllRead applies an optimistic read of every loaded entry. Entries
// not loaded yet are left to the next snapshot.
func (s *Store) BeginMarkAllRead() *Mutation {
	var m *Mutation
	s.update(func() bool {
		ids := make([]int64, 0, len(s.items))
		for _, n := range s.items {
			if !n.IsRead {
				ids = append(ids, n.ID)
			}
		}
		m = s.beginLocked(MutationBulkRead, ids)
		return true
	})
	return m
}

// BeginDelete applies an optimistic removal of id
func (s *Store) BeginDelete(id int64) *Mutation {
	var m *Mutation
	s.update(func() bool {
		m = s.beginLocked(MutationDelete, []int64{id})
		return true
	})
	return m
}

func (s *Store) beginLocked(kind MutationKind, ids []int64) *Mutation {
	m := newMutation(kind, ids, s.now())
	m.capture(s.items)
	s.items = m.forward(s.items)
	if kind == MutationDelete && len(m.prior) > 0 && s.total > 0 {
		s.total--
	}
	// keep the last server count in step so a fallback badge moves too
	for _, p := range m.prior {
		if !p.Item.IsRead {
			m.unreadDelta++
		}
	}
	if s.serverUnrd >= 0 {
		m.unreadDelta = min(m.unreadDelta, s.serverUnrd)
		s.serverUnrd -= m.unreadDelta
	}
	s.pending = append(s.pending, m)
	s.logger.Debug("store_mutation_begin",
		"mutation_id", m.ID,
		"kind", kind.String(),
		"targets", len(ids),
	)
	return m
}

// Confirm drops a pending mutation after the server accepted it
func (s *Store) Confirm(m *Mutation) State {
	return s.update(func() bool {
		if !s.dropPendingLocked(m.ID) {
			return false
		}
		m.confirmedAt = s.now()
		s.confirmed = append(s.confirmed, m)
		if m.Kind == MutationDelete {
			for _, id := range m.TargetIDs {
				s.tombstones[id] = struct{}{}
			}
		}
		return true
	})
}

// Rollback restores the state the mutation replaced. Other pending mutations
// keep their optimistic effect.
func (s *Store) Rollback(m *Mutation) State {
	return s.update(func() bool {
		if !s.dropPendingLocked(m.ID) {
			return false
		}
		s.items = m.rollback(s.items)
		if s.serverUnrd >= 0 {
			s.serverUnrd += m.unreadDelta
		}
		if m.Kind == MutationDelete {
			s.total += len(m.prior)
			now := s.now()
			for _, p := range m.prior {
				s.discovered[p.Item.ID] = now
			}
		}
		for _, other := range s.pending {
			s.items = other.forward(s.items)
		}
		s.logger.Debug("store_mutation_rollback", "mutation_id", m.ID, "kind", m.Kind.String())
		return true
	})
}

func sameConnection(a, b client.Connection) bool {
	if a.State != b.State || a.Attempts != b.Attempts {
		return false
	}
	if a.LastError == nil || b.LastError == nil {
		return a.LastError == nil && b.LastError == nil
	}
	return a.LastError.Error() == b.LastError.Error()
}

func (s *Store) dropPendingLocked(id uuid.UUID) bool {
	i := slices.IndexFunc(s.pending, func(m *Mutation) bool { return m.ID == id })
	if i < 0 {
		return false
	}
	s.pending = slices.Delete(s.pending, i, i+1)
	return true
}
