package presenter

import (
	"fmt"
	"io"
	"sync"

	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/client"
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/notify"
	"github.com/fatih/color"
)

var (
	badgeColor   = color.New(color.FgWhite, color.BgRed, color.Bold)
	onlineColor  = color.New(color.FgGreen)
	pendingColor = color.New(color.FgYellow)
	offlineColor = color.New(color.FgRed)
)

// Badge shows the unread count. While the push channel is down it shows the
// last count reported by the pull channel.
type Badge struct {
	mu   sync.Mutex
	last string
}

// Text renders the badge for st
func (b *Badge) Text(st notify.State) string {
	count := st.BadgeCount()
	label := "🔔"
	if count > 0 {
		shown := fmt.Sprint(count)
		if count > 99 {
			shown = "99+"
		}
		label += " " + badgeColor.Sprintf(" %s ", shown)
	}
	return label + " " + ConnectionIndicator(st.ConnectionState)
}

// Render writes the badge when it changed since the last render
func (b *Badge) Render(w io.Writer, st notify.State) error {
	text := b.Text(st)
	b.mu.Lock()
	defer b.mu.Unlock()
	if text == b.last {
		return nil
	}
	b.last = text
	_, err := fmt.Fprintln(w, text)
	return err
}

// Attach renders every state published by src until the returned func is called
func (b *Badge) Attach(src Source, w io.Writer) (detach func()) {
	b.Render(w, src.GetState())
	return src.Subscribe(func(st notify.State) { b.Render(w, st) })
}

// ConnectionIndicator is a short coloured label for the push channel state
func ConnectionIndicator(state client.ConnState) string {
	switch state {
	case client.Connected:
		return onlineColor.Sprint("● live")
	case client.Connecting, client.Reconnecting:
		return pendingColor.Sprint("◌ " + state.String())
	case client.Failed:
		return offlineColor.Sprint("○ offline")
	default:
		return dimColor.Sprint("○ " + state.String())
	}
}
