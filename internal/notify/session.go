package notify

// session.go = lifecycle glue for one owning view: wires the push client and
// the pull client into the store, runs the fallback poller, and tears it all
// down synchronously on deactivation.

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/client"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
)

const (
	DefaultPageSize     = 20
	DefaultPollInterval = 30 * time.Second
)

// ErrInactive is returned by operations that need an active session
var ErrInactive = errors.New("notification session is not active")

// Fetcher is the pull channel query side
type Fetcher interface {
	FetchPage(ctx context.Context, skip, limit int, unreadOnly bool) (*models.NotificationPage, error)
	FetchUnreadCount(ctx context.Context) (int, error)
}

// PushChannel is the subset of *client.PushClient the session drives
type PushChannel interface {
	Connect() error
	Disconnect()
	Events() <-chan client.Event
	OnStateChange(fn func(client.Connection)) (remove func())
	Status() client.Connection
}

// API is everything the pull channel offers
type API interface {
	Fetcher
	Mutator
}

type Options struct {
	PageSize     int
	PollInterval time.Duration // unread-count polling while push is down, 0 disables
	Logger       *slog.Logger
}

// Session is the consumer-facing API: subscribe, read state, run actions
type Session struct {
	opts       Options
	store      *Store
	dispatcher *Dispatcher
	api        API
	push       PushChannel
	logger     *slog.Logger

	// live is held for reading while a result is applied and for writing
	// while Deactivate retires the generation, so no result lands after it
	live sync.RWMutex

	mu             sync.Mutex
	gen            uint64
	cancel         context.CancelFunc
	removeListener func()
	onAuth         func(error)
	wg             sync.WaitGroup

	refreshCh chan struct{}
	pollCh    chan struct{}
}

func NewSession(opts Options, store *Store, api API, push PushChannel) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PollInterval < 0 {
		opts.PollInterval = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = NewStore(WithStoreLogger(logger))
	}
	return &Session{
		opts:       opts,
		store:      store,
		dispatcher: NewDispatcher(store, api, logger),
		api:        api,
		push:       push,
		logger:     logger,
		refreshCh:  make(chan struct{}, 1),
		pollCh:     make(chan struct{}, 1),
	}
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) GetState() State { return s.store.GetState() }

// Subscribe registers fn for every state change. fn runs inside the
// transition; it may read state and call Active or OnAuthError, but must hand
// actions, Refresh and Deactivate off to another goroutine.
func (s *Session) Subscribe(fn func(State)) (unsubscribe func()) { return s.store.Subscribe(fn) }

// OnAuthError registers the host's re-authentication hook, called whenever a
// fetch or push handshake is rejected
func (s *Session) OnAuthError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAuth = fn
}

// MarkAsRead, MarkAllAsRead and DeleteNotification always resolve against the
// store, even when Deactivate runs while the request is in flight
func (s *Session) MarkAsRead(ctx context.Context, id int64) error {
	return s.surface(s.dispatcher.MarkAsRead(ctx, id))
}

func (s *Session) MarkAllAsRead(ctx context.Context) error {
	return s.surface(s.dispatcher.MarkAllAsRead(ctx))
}

func (s *Session) DeleteNotification(ctx context.Context, id int64) error {
	return s.surface(s.dispatcher.DeleteNotification(ctx, id))
}

// Active reports whether Activate has been called without a matching Deactivate
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Activate connects the push channel, loads the first page and starts the
// background pump and poller. A failed first load is returned but leaves the
// session active so the push channel and poller keep working.
func (s *Session) Activate(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.removeListener = s.push.OnStateChange(s.connectionChanged)
	s.mu.Unlock()

	s.logger.Info("session_activated", "page_size", s.opts.PageSize, "poll_interval", s.opts.PollInterval)

	if err := s.push.Connect(); err != nil {
		// the pull channel still works; the poller keeps the badge current
		s.logger.Warn("push_unavailable", "error", err)
	}

	s.wg.Add(1)
	go s.pump(ctx, gen)
	if s.opts.PollInterval > 0 {
		s.wg.Add(1)
		go s.poll(ctx)
	}

	return s.Refresh(ctx)
}

// Deactivate closes the push connection, cancels the reconnect timer and
// in-flight requests, and waits for the background goroutines. Fetch results
// and push events that resolve afterwards never reach the store. Actions
// already submitted still confirm or roll back: their optimistic change is in
// the store and must not stay pending.
func (s *Session) Deactivate() {
	s.live.Lock()
	s.mu.Lock()
	cancel, remove := s.cancel, s.removeListener
	if cancel == nil {
		s.mu.Unlock()
		s.live.Unlock()
		return
	}
	s.cancel = nil
	s.removeListener = nil
	s.gen++
	s.mu.Unlock()
	s.live.Unlock()

	remove()
	s.push.Disconnect()
	cancel()
	s.wg.Wait()

	s.store.SetConnection(s.push.Status())
	s.logger.Info("session_deactivated")
}

// Refresh reloads the first page and reconciles it with the local list
func (s *Session) Refresh(ctx context.Context) error {
	gen, ok := s.liveGeneration()
	if !ok {
		return ErrInactive
	}
	fetchedAt := s.store.now()
	page, err := s.api.FetchPage(ctx, 0, s.opts.PageSize, false)
	if err != nil {
		return s.surface(err)
	}
	s.applyIfLive(gen, "refresh", func() {
		s.store.ApplySnapshot(Snapshot{
			Items:       page.Items,
			FetchedAt:   fetchedAt,
			Total:       page.Total,
			UnreadCount: page.UnreadCount,
			Head:        true,
			Complete:    len(page.Items) < s.opts.PageSize,
		})
	})
	return nil
}

// LoadMore fetches the page after the loaded entries. It is a no-op when the
// server has nothing older.
func (s *Session) LoadMore(ctx context.Context) error {
	gen, ok := s.liveGeneration()
	if !ok {
		return ErrInactive
	}
	st := s.store.GetState()
	if !st.HasMore() {
		return nil
	}
	fetchedAt := s.store.now()
	page, err := s.api.FetchPage(ctx, len(st.Items), s.opts.PageSize, false)
	if err != nil {
		return s.surface(err)
	}
	s.applyIfLive(gen, "load_more", func() {
		s.store.ApplySnapshot(Snapshot{
			Items:       page.Items,
			FetchedAt:   fetchedAt,
			Total:       page.Total,
			UnreadCount: page.UnreadCount,
		})
	})
	return nil
}

// RefreshUnreadCount asks the pull channel for the unread count. It works in
// every connection state, including Failed.
func (s *Session) RefreshUnreadCount(ctx context.Context) (int, error) {
	gen, ok := s.liveGeneration()
	if !ok {
		return 0, ErrInactive
	}
	n, err := s.api.FetchUnreadCount(ctx)
	if err != nil {
		return 0, s.surface(err)
	}
	s.applyIfLive(gen, "unread_count", func() { s.store.SetServerUnreadCount(n) })
	return n, nil
}

// connectionChanged runs on the push client's goroutine
func (s *Session) connectionChanged(conn client.Connection) {
	prev := s.store.GetState().ConnectionState
	s.store.SetConnection(conn)

	switch {
	case conn.State == client.Connected && prev == client.Reconnecting:
		// events sent while the socket was down are lost; catch up
		signal(s.refreshCh)
	case conn.State == client.Failed || conn.State == client.Reconnecting:
		signal(s.pollCh)
	}
	if conn.State == client.Failed && client.IsAuthError(conn.LastError) {
		s.surface(conn.LastError)
	}
}

// pump moves push events into the store and runs catch-up refreshes
func (s *Session) pump(ctx context.Context, gen uint64) {
	defer s.wg.Done()
	events := s.push.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			s.applyIfLive(gen, "push_event", func() { s.store.ApplyPushEvent(ev) })
		case <-s.refreshCh:
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("catch_up_refresh_failed", "error", err)
			}
		}
	}
}

// poll keeps the server unread count fresh while push is not Connected
func (s *Session) poll(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-s.pollCh:
		}
		if s.push.Status().State == client.Connected {
			continue
		}
		if _, err := s.RefreshUnreadCount(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("unread_count_poll_failed", "error", err)
		}
	}
}

func (s *Session) liveGeneration() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen, s.cancel != nil
}

// applyIfLive runs fn only if the session that issued the request is still
// active. fn runs without s.mu, so subscribers may call Active or OnAuthError.
func (s *Session) applyIfLive(gen uint64, op string, fn func()) {
	s.live.RLock()
	defer s.live.RUnlock()
	if current, ok := s.liveGeneration(); !ok || current != gen {
		s.logger.Debug("stale_result_discarded", "op", op)
		return
	}
	fn()
}

// surface hands auth failures to the host and returns err unchanged
func (s *Session) surface(err error) error {
	if err == nil || !client.IsAuthError(err) {
		return err
	}
	s.mu.Lock()
	fn := s.onAuth
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
	return err
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
