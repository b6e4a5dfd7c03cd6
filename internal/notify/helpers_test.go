package notify

import (
	"context"
	"sync"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/client"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/stretchr/testify/mock"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock shared by store and tests
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: baseTime.Add(time.Hour)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func newTestStore() (*Store, *fakeClock) {
	clock := newFakeClock()
	return NewStore(WithClock(clock.Now)), clock
}

// notification builds an entry created minute minutes after baseTime
func notification(id int64, minute int, read bool) models.Notification {
	n := models.Notification{
		ID:        id,
		UserID:    "student-1",
		Type:      models.TypeGrade,
		Title:     "Grade posted",
		Message:   "A new grade is available",
		Priority:  models.PriorityNormal,
		IsRead:    read,
		CreatedAt: baseTime.Add(time.Duration(minute) * time.Minute),
	}
	if read {
		at := n.CreatedAt.Add(time.Minute)
		n.ReadAt = &at
	}
	return n
}

func ids(items []models.Notification) []int64 {
	out := make([]int64, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

// MockAPI mocks the pull channel
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) FetchPage(ctx context.Context, skip, limit int, unreadOnly bool) (*models.NotificationPage, error) {
	args := m.Called(ctx, skip, limit, unreadOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.NotificationPage), args.Error(1)
}

func (m *MockAPI) FetchUnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockAPI) MarkAsRead(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPI) MarkAllAsRead(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAPI) DeleteNotification(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// fakePush is a push channel whose transitions are driven by the test
type fakePush struct {
	mu           sync.Mutex
	state        client.Connection
	listeners    map[int]func(client.Connection)
	nextID       int
	events       chan client.Event
	connectErr   error
	connects     int
	disconnects  int
	connectState client.ConnState // state entered by Connect
}

func newFakePush() *fakePush {
	return &fakePush{
		listeners:    make(map[int]func(client.Connection)),
		events:       make(chan client.Event, 16),
		connectState: client.Connected,
	}
}

func (p *fakePush) Connect() error {
	p.mu.Lock()
	p.connects++
	err := p.connectErr
	p.mu.Unlock()
	if err != nil {
		return err
	}
	p.emit(client.Connection{State: client.Connecting})
	p.emit(client.Connection{State: p.connectState})
	return nil
}

func (p *fakePush) Disconnect() {
	p.mu.Lock()
	p.disconnects++
	p.mu.Unlock()
	p.emit(client.Connection{State: client.Disconnected})
}

func (p *fakePush) Events() <-chan client.Event { return p.events }

func (p *fakePush) OnStateChange(fn func(client.Connection)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *fakePush) Status() client.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePush) emit(conn client.Connection) {
	p.mu.Lock()
	p.state = conn
	fns := make([]func(client.Connection), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(conn)
	}
}
