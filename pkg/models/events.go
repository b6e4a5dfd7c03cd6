package models

import (
	"encoding/json"
	"time"
)

// EventType names the server-to-client messages sent over the push channel
type EventType string

const (
	EventNotification        EventType = "notification"           // a notification was created
	EventNotificationRead    EventType = "notification_read"      // one notification was marked read
	EventNotificationDeleted EventType = "notification_deleted"   // one notification was deleted
	EventNotificationsRead   EventType = "notifications_read_all" // every notification of the user was marked read

	// control messages
	EventConnected EventType = "connected" // handshake acknowledgement
	EventError     EventType = "error"
)

// Event is the push channel envelope
type Event struct {
	Type           EventType     `json:"type"`
	Notification   *Notification `json:"notification,omitempty"`
	NotificationID int64         `json:"notification_id,omitempty"`
	UserID         string        `json:"user_id,omitempty"`
	Message        string        `json:"message,omitempty"`
	Timestamp      time.Time     `json:"timestamp"`
}

// ToJSON marshals the envelope
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON unmarshals an envelope
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
