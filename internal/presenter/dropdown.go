package presenter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/notify"
)

const defaultDropdownSize = 5

// Dropdown lists the newest notifications under a header with the unread
// count and connection state
type Dropdown struct {
	Size int // entries shown, defaults to 5
	Now  func() time.Time
}

func (d Dropdown) Render(w io.Writer, st notify.State) error {
	_, err := io.WriteString(w, d.Text(st))
	return err
}

func (d Dropdown) Text(st notify.State) string {
	size := d.Size
	if size <= 0 {
		size = defaultDropdownSize
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Notifications (%d unread) %s\n", st.BadgeCount(), ConnectionIndicator(st.ConnectionState))
	b.WriteString(strings.Repeat("─", 48) + "\n")

	if len(st.Items) == 0 {
		b.WriteString(dimColor.Sprint("  No notifications") + "\n")
		return b.String()
	}

	for i, n := range st.Items {
		if i == size {
			break
		}
		card := NewItemCard(n)
		if d.Now != nil {
			card.Now = d.Now
		}
		b.WriteString(card.Line() + "\n")
	}

	if hidden := max(len(st.Items), st.Total) - size; hidden > 0 {
		b.WriteString(dimColor.Sprintf("  … %d more", hidden) + "\n")
	}
	if st.UnreadCount > 0 {
		b.WriteString(dimColor.Sprint("  mark all as read: notifications read-all") + "\n")
	}
	return b.String()
}
