package websocket

import (
	"log/slog"
	"time"

	wire "github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
)

// Control messages of the push protocol. Domain events are built by the
// notification service and arrive here already encoded.

// NewConnectedMessage is the handshake acknowledgement, always the first frame
func NewConnectedMessage(userID string) *wire.Event {
	return &wire.Event{
		Type:      wire.EventConnected,
		UserID:    userID,
		Message:   "connected",
		Timestamp: time.Now().UTC(),
	}
}

func NewErrorMessage(message string) *wire.Event {
	return &wire.Event{
		Type:      wire.EventError,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// encode marshals ev, logging failures
func encode(ev *wire.Event) ([]byte, error) {
	data, err := ev.ToJSON()
	if err != nil {
		slog.Error("Failed to marshal event to JSON", "type", ev.Type, "error", err)
		return nil, err
	}
	return data, nil
}
