package presenter

// Presentation adapters are read-only subscribers of the notification store.
// They render State to a writer and forward user actions to the session; they
// never change the list themselves.

import (
	"context"
	"fmt"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/notify"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
	"github.com/fatih/color"
)

// Source is where adapters read state from, usually a *notify.Session
type Source interface {
	Subscribe(fn func(notify.State)) (unsubscribe func())
	GetState() notify.State
}

// Actions are the dispatcher operations an adapter may trigger
type Actions interface {
	MarkAsRead(ctx context.Context, id int64) error
	MarkAllAsRead(ctx context.Context) error
	DeleteNotification(ctx context.Context, id int64) error
}

var typeIcons = map[models.NotificationType]string{
	models.TypeGrade:        "📝",
	models.TypeAttendance:   "📋",
	models.TypeAnnouncement: "📢",
	models.TypeSystem:       "⚙️",
	models.TypeCourse:       "📚",
	models.TypeEnrollment:   "🎓",
	models.TypeGeneral:      "🔔",
}

var (
	urgentColor = color.New(color.FgRed, color.Bold)
	highColor   = color.New(color.FgYellow)
	lowColor    = color.New(color.FgHiBlack)
	unreadColor = color.New(color.Bold)
	dimColor    = color.New(color.FgHiBlack)
	linkColor   = color.New(color.FgCyan, color.Underline)
)

// ItemCard renders one notification
type ItemCard struct {
	Notification models.Notification
	Now          func() time.Time
}

func NewItemCard(n models.Notification) ItemCard {
	return ItemCard{Notification: n, Now: time.Now}
}

// Icon is the explicit icon, or the default for the notification type
func (c ItemCard) Icon() string {
	if c.Notification.Icon != nil && *c.Notification.Icon != "" {
		return *c.Notification.Icon
	}
	if icon, ok := typeIcons[c.Notification.Type]; ok {
		return icon
	}
	return typeIcons[models.TypeGeneral]
}

// Title is the title coloured by priority and weighted by read state
func (c ItemCard) Title() string {
	title := c.Notification.Title
	switch c.Notification.Priority {
	case models.PriorityUrgent:
		title = urgentColor.Sprint(title)
	case models.PriorityHigh:
		title = highColor.Sprint(title)
	case models.PriorityLow:
		title = lowColor.Sprint(title)
	}
	if !c.Notification.IsRead {
		title = unreadColor.Sprint(title)
	}
	return title
}

// Line is the compact one-line form used by the dropdown
func (c ItemCard) Line() string {
	marker := " "
	if !c.Notification.IsRead {
		marker = "●"
	}
	return fmt.Sprintf("%s %s %s %s", marker, c.Icon(), c.Title(), dimColor.Sprint(c.Age()))
}

// String is the detailed multi-line form
func (c ItemCard) String() string {
	n := c.Notification
	out := fmt.Sprintf("%s [%d] %s\n", c.Icon(), n.ID, c.Title())
	if n.Message != "" {
		out += "    " + n.Message + "\n"
	}
	out += dimColor.Sprintf("    %s · %s · %s", n.Type, n.Priority, c.Age())
	if n.IsRead {
		out += dimColor.Sprint(" · read")
	}
	out += "\n"
	if link := n.Link(); link != "" {
		out += "    → " + linkColor.Sprint(link) + "\n"
	}
	return out
}

// Age is a short relative timestamp
func (c ItemCard) Age() string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return relativeTime(now().Sub(c.Notification.CreatedAt), c.Notification.CreatedAt)
}

// Open marks the notification read and returns its navigation target
func (c ItemCard) Open(ctx context.Context, actions Actions) (string, error) {
	if err := actions.MarkAsRead(ctx, c.Notification.ID); err != nil {
		return "", err
	}
	return c.Notification.Link(), nil
}

func relativeTime(d time.Duration, at time.Time) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return at.Format("2006-01-02")
	}
}
