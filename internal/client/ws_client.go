package client

// ws_client.go = push channel: owns the persistent WebSocket connection and its
// reconnect state machine, and emits typed events for the reconciler.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/gorilla/websocket"
)

const ( // ping pong (2-way heartbeat) to keep the connection alive
	WriteWait      = 10 * time.Second    // max time to write a control frame to the peer
	PongWait       = 60 * time.Second    // no pong within this window = connection is dead
	PingPeriod     = (PongWait * 9) / 10 // send pings before the pong wait expires
	MaxMessageSize = 64 * 1024           // maximum message size accepted from the server

	defaultMaxAttempts      = 5
	defaultReconnectDelay   = 3 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultEventBuffer      = 64
)

// ConnState is the push channel session state
type ConnState int

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// Connection is a point-in-time view of the push channel session
type Connection struct {
	State     ConnState
	Attempts  int   // reconnect attempts made since the last successful handshake
	LastError error // last transport error, nil after a clean connect
}

// EventKind enumerates the typed events handed to the reconciler
type EventKind int

const (
	EventCreated EventKind = iota + 1
	EventRead
	EventDeleted
	EventBulkRead
)

func (k EventKind) String() string {
	switch k {
	case EventCreated:
		return "created"
	case EventRead:
		return "read"
	case EventDeleted:
		return "deleted"
	case EventBulkRead:
		return "bulk_read"
	default:
		return "unknown"
	}
}

// Event is a decoded push channel message
type Event struct {
	Kind         EventKind
	Notification models.Notification // set for EventCreated
	ID           int64               // set for EventRead and EventDeleted
	At           time.Time           // server timestamp of the change
}

// PushStats holds push connection statistics
type PushStats struct {
	ConnectedAt    time.Time
	EventsReceived int
	LastEvent      time.Time
	Reconnects     int
}

// PushConfig carries every tunable of the push client; zero values fall back to defaults
type PushConfig struct {
	URL              string // ws:// or wss:// endpoint
	Token            string // bearer token sent in the handshake
	MaxAttempts      int    // reconnect attempts before giving up in Failed
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	PingPeriod       time.Duration
	PongWait         time.Duration
	EventBuffer      int
	Dialer           *websocket.Dialer
	Logger           *slog.Logger
}

// PushClient maintains the push channel. Delivery may duplicate across
// reconnects; deduplication is the reconciler's job.
type PushClient struct {
	cfg    PushConfig
	logger *slog.Logger
	events chan Event

	mu        sync.Mutex
	token     string
	state     ConnState
	attempts  int
	lastErr   error
	conn      *websocket.Conn
	stopCh    chan struct{} // closed by Disconnect, one per Connect
	done      chan struct{} // closed when the run loop exits
	listeners map[int]func(Connection)
	nextID    int
	stats     PushStats
}

// NewPushClient creates a push client in the Disconnected state
func NewPushClient(cfg PushConfig) *PushClient {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PushClient{
		cfg:       cfg,
		logger:    logger,
		token:     cfg.Token,
		events:    make(chan Event, cfg.EventBuffer),
		listeners: make(map[int]func(Connection)),
	}
}

// Events returns the stream of decoded push events. The channel is shared by
// every session of this client and is never closed.
func (c *PushClient) Events() <-chan Event {
	return c.events
}

// OnStateChange registers fn to be called after every state transition, from
// the goroutine that caused it. fn must not call Disconnect synchronously.
func (c *PushClient) OnStateChange(fn func(Connection)) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// SetToken replaces the handshake token used by the next dial
func (c *PushClient) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Status returns the current connection state
func (c *PushClient) Status() Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Connection{State: c.state, Attempts: c.attempts, LastError: c.lastErr}
}

// Stats returns connection statistics
func (c *PushClient) Stats() PushStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Connect starts a session from Disconnected or Failed. It returns once the
// session goroutine is running; progress is observed through OnStateChange.
// Calling it in any other state is a no-op.
func (c *PushClient) Connect() error {
	if c.cfg.URL == "" {
		return &Error{Kind: KindValidation, Op: "push_connect", Message: "push URL is not configured"}
	}

	c.mu.Lock()
	if c.state != Disconnected && c.state != Failed {
		c.mu.Unlock()
		return nil
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopCh = stop
	c.done = done
	c.state, c.attempts, c.lastErr = Connecting, 0, nil
	listeners := c.listenersLocked()
	c.mu.Unlock()

	notify(listeners, Connection{State: Connecting})
	go c.run(stop, done)
	return nil
}

// Disconnect synchronously closes the socket, cancels any pending reconnect
// timer and waits for the session goroutines to exit.
func (c *PushClient) Disconnect() {
	c.mu.Lock()
	stop, done, conn := c.stopCh, c.done, c.conn
	if stop == nil {
		c.mu.Unlock()
		return
	}
	c.stopCh = nil
	c.conn = nil
	close(stop)
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(WriteWait))
		conn.Close()
	}
	c.mu.Unlock()

	<-done
	c.setState(nil, Disconnected, 0, nil)
	c.logger.Info("push_disconnected")
}

// run is the reconnect state machine for one session
func (c *PushClient) run(stop, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		conn, err := c.dial(stop)
		if err == nil {
			attempt = 0
			c.markConnected()
			c.setState(stop, Connected, 0, nil)
			c.logger.Info("push_connected", "url", c.cfg.URL)

			err = c.readLoop(conn, stop)
			conn.Close()
			if isStopped(stop) {
				return
			}
			c.logger.Warn("push_connection_lost", "error", err)
		} else {
			if isStopped(stop) {
				return
			}
			if IsAuthError(err) {
				// a rejected token will not be accepted on retry
				c.setState(stop, Failed, attempt, err)
				c.logger.Error("push_auth_rejected", "error", err)
				return
			}
			c.logger.Warn("push_dial_failed", "attempt", attempt, "error", err)
		}

		attempt++
		if attempt > c.cfg.MaxAttempts {
			c.setState(stop, Failed, attempt-1, err)
			c.logger.Error("push_reconnect_exhausted", "attempts", attempt-1, "error", err)
			return
		}
		c.setState(stop, Reconnecting, attempt, err)

		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}
		c.mu.Lock()
		c.stats.Reconnects++
		c.mu.Unlock()
	}
}

// dial opens the socket and waits for the server's handshake acknowledgement
func (c *PushClient) dial(stop chan struct{}) (*websocket.Conn, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: "push_dial", Err: err}
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()
	go func() { // abort the dial when the session is torn down
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, resp, err := c.cfg.Dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, statusError("push_dial", resp.StatusCode, err.Error())
		}
		return nil, networkError("push_dial", err)
	}

	// publish the socket so Disconnect can close it while we wait for the ack
	c.mu.Lock()
	if isStopped(stop) {
		c.mu.Unlock()
		conn.Close()
		return nil, networkError("push_dial", errors.New("session closed"))
	}
	c.conn = conn
	c.mu.Unlock()

	if err := c.awaitAck(conn); err != nil {
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// awaitAck reads the first frame, which must be the server's "connected" message
func (c *PushClient) awaitAck(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return networkError("push_handshake", err)
	}
	ack, err := models.EventFromJSON(data)
	if err != nil {
		return networkError("push_handshake", err)
	}
	switch ack.Type {
	case models.EventConnected:
		return nil
	case models.EventError:
		return &Error{Kind: KindAuth, Op: "push_handshake", Message: ack.Message}
	default:
		return networkError("push_handshake", fmt.Errorf("unexpected handshake message %q", ack.Type))
	}
}

// readLoop decodes messages until the socket fails or the session stops
func (c *PushClient) readLoop(conn *websocket.Conn, stop chan struct{}) error {
	conn.SetReadLimit(MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go c.pingLoop(conn, stop, pingDone)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		c.handleMessage(data, stop)
	}
}

// pingLoop sends periodic pings so a dead peer is detected by the read deadline
func (c *PushClient) pingLoop(conn *websocket.Conn, stop, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(WriteWait)); err != nil {
				c.logger.Debug("push_ping_failed", "error", err)
				return
			}
		}
	}
}

// handleMessage maps a wire envelope onto a typed event
func (c *PushClient) handleMessage(data []byte, stop chan struct{}) {
	msg, err := models.EventFromJSON(data)
	if err != nil {
		c.logger.Warn("push_invalid_json", "error", err)
		return
	}

	var ev Event
	switch msg.Type {
	case models.EventNotification:
		if msg.Notification == nil {
			c.logger.Warn("push_event_missing_notification")
			return
		}
		ev = Event{Kind: EventCreated, Notification: *msg.Notification, ID: msg.Notification.ID}
	case models.EventNotificationRead:
		ev = Event{Kind: EventRead, ID: msg.NotificationID}
	case models.EventNotificationDeleted:
		ev = Event{Kind: EventDeleted, ID: msg.NotificationID}
	case models.EventNotificationsRead:
		ev = Event{Kind: EventBulkRead}
	case models.EventConnected:
		return
	case models.EventError:
		c.logger.Warn("push_server_error", "message", msg.Message)
		return
	default:
		c.logger.Debug("push_unknown_event", "type", msg.Type)
		return
	}
	ev.At = msg.Timestamp
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	c.mu.Lock()
	c.stats.EventsReceived++
	c.stats.LastEvent = time.Now()
	c.mu.Unlock()

	select {
	case c.events <- ev:
	case <-stop:
	}
}

func (c *PushClient) markConnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.ConnectedAt = time.Now()
}

// setState records a transition and notifies listeners. Transitions coming from
// a session that has already been stopped are dropped.
func (c *PushClient) setState(stop chan struct{}, state ConnState, attempts int, err error) {
	c.mu.Lock()
	if stop != nil && isStopped(stop) {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.attempts = attempts
	c.lastErr = err
	listeners := c.listenersLocked()
	c.mu.Unlock()

	notify(listeners, Connection{State: state, Attempts: attempts, LastError: err})
}

func (c *PushClient) listenersLocked() []func(Connection) {
	listeners := make([]func(Connection), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

func notify(listeners []func(Connection), status Connection) {
	for _, fn := range listeners {
		fn(status)
	}
}

func isStopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
