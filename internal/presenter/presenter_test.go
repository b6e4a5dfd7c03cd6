package presenter

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/client"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/notify"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return now }

func item(id int64, age time.Duration, read bool) models.Notification {
	return models.Notification{
		ID:        id,
		Type:      models.TypeGrade,
		Title:     "Grade posted",
		Message:   "Mathematics: 18/20",
		Priority:  models.PriorityNormal,
		IsRead:    read,
		CreatedAt: now.Add(-age),
	}
}

type MockActions struct {
	mock.Mock
}

func (m *MockActions) MarkAsRead(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockActions) MarkAllAsRead(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockActions) DeleteNotification(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func TestItemCard_IconFallsBackToType(t *testing.T) {
	n := item(1, time.Minute, false)
	assert.Equal(t, "📝", NewItemCard(n).Icon())

	custom := "🏫"
	n.Icon = &custom
	assert.Equal(t, "🏫", NewItemCard(n).Icon())

	n.Icon = nil
	n.Type = "unknown"
	assert.Equal(t, "🔔", NewItemCard(n).Icon())
}

func TestItemCard_Age(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
		{30 * 24 * time.Hour, "2025-02-08"},
	}
	for _, tt := range tests {
		card := ItemCard{Notification: item(1, tt.age, false), Now: fixedNow}
		assert.Equal(t, tt.want, card.Age())
	}
}

func TestItemCard_String(t *testing.T) {
	n := item(7, 2*time.Hour, true)
	n.Data = map[string]any{"link": "/grades/42"}
	card := ItemCard{Notification: n, Now: fixedNow}

	out := card.String()

	assert.Contains(t, out, "[7] Grade posted")
	assert.Contains(t, out, "Mathematics: 18/20")
	assert.Contains(t, out, "grade · normal · 2h ago · read")
	assert.Contains(t, out, "→ /grades/42")
}

func TestItemCard_OpenMarksRead(t *testing.T) {
	n := item(3, time.Minute, false)
	n.Data = map[string]any{"url": "/attendance/today"}
	actions := new(MockActions)
	actions.On("MarkAsRead", mock.Anything, int64(3)).Return(nil)

	link, err := NewItemCard(n).Open(context.Background(), actions)

	require.NoError(t, err)
	assert.Equal(t, "/attendance/today", link)
	actions.AssertExpectations(t)
}

func TestItemCard_OpenSurfacesErrors(t *testing.T) {
	actions := new(MockActions)
	actions.On("MarkAsRead", mock.Anything, int64(3)).Return(errors.New("offline"))

	_, err := NewItemCard(item(3, time.Minute, false)).Open(context.Background(), actions)

	assert.EqualError(t, err, "offline")
}

func TestBadge_Text(t *testing.T) {
	var b Badge

	live := notify.State{UnreadCount: 3, ServerUnreadCount: 9, ConnectionState: client.Connected}
	assert.Equal(t, "🔔  3  ● live", b.Text(live))

	none := notify.State{ConnectionState: client.Connected, ServerUnreadCount: -1}
	assert.Equal(t, "🔔 ● live", b.Text(none))

	many := notify.State{UnreadCount: 150, ConnectionState: client.Connected}
	assert.Contains(t, b.Text(many), "99+")
}

func TestBadge_UsesServerCountWhenOffline(t *testing.T) {
	var b Badge
	st := notify.State{UnreadCount: 1, ServerUnreadCount: 4, ConnectionState: client.Failed}

	assert.Equal(t, "🔔  4  ○ offline", b.Text(st))
}

func TestBadge_RenderSkipsUnchanged(t *testing.T) {
	var b Badge
	var buf bytes.Buffer
	st := notify.State{UnreadCount: 2, ConnectionState: client.Connected}

	require.NoError(t, b.Render(&buf, st))
	require.NoError(t, b.Render(&buf, st))

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestBadge_AttachFollowsStore(t *testing.T) {
	store := notify.NewStore()
	store.SetConnection(client.Connection{State: client.Connected})
	var b Badge
	var buf bytes.Buffer

	detach := b.Attach(store, &buf)
	store.ApplyPushEvent(client.Event{Kind: client.EventCreated, Notification: item(1, time.Minute, false)})
	store.ApplyPushEvent(client.Event{Kind: client.EventCreated, Notification: item(2, 0, false)})
	detach()
	store.ApplyPushEvent(client.Event{Kind: client.EventBulkRead})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "🔔 ● live", lines[0])
	assert.Equal(t, "🔔  1  ● live", lines[1])
	assert.Equal(t, "🔔  2  ● live", lines[2])
}

func TestDropdown_Text(t *testing.T) {
	st := notify.State{
		Items: []models.Notification{
			item(5, time.Minute, false),
			item(4, 2*time.Hour, true),
			item(3, 3*time.Hour, false),
		},
		UnreadCount:     2,
		Total:           12,
		ConnectionState: client.Connected,
	}
	d := Dropdown{Size: 2, Now: fixedNow}

	out := d.Text(st)

	assert.Contains(t, out, "Notifications (2 unread) ● live")
	assert.Contains(t, out, "● 📝 Grade posted 1m ago")
	assert.Contains(t, out, "  📝 Grade posted 2h ago")
	assert.NotContains(t, out, "3h ago")
	assert.Contains(t, out, "… 10 more")
	assert.Contains(t, out, "mark all as read")
}

func TestDropdown_Empty(t *testing.T) {
	var buf bytes.Buffer
	st := notify.State{Items: []models.Notification{}, ConnectionState: client.Reconnecting, ServerUnreadCount: -1}

	require.NoError(t, Dropdown{}.Render(&buf, st))

	assert.Contains(t, buf.String(), "Notifications (0 unread) ◌ reconnecting")
	assert.Contains(t, buf.String(), "No notifications")
	assert.NotContains(t, buf.String(), "mark all as read")
}
