package models

import "time"

// NotificationType classifies what produced a notification
type NotificationType string

const (
	TypeGrade        NotificationType = "grade"
	TypeAttendance   NotificationType = "attendance"
	TypeAnnouncement NotificationType = "announcement"
	TypeSystem       NotificationType = "system"
	TypeCourse       NotificationType = "course"
	TypeEnrollment   NotificationType = "enrollment"
	TypeGeneral      NotificationType = "general"
)

// Valid reports whether t is one of the known notification types
func (t NotificationType) Valid() bool {
	switch t {
	case TypeGrade, TypeAttendance, TypeAnnouncement, TypeSystem, TypeCourse, TypeEnrollment, TypeGeneral:
		return true
	}
	return false
}

// Priority of a notification, used by the views for colouring and ordering hints
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Notification is the wire representation shared by the pull channel, the push
// channel and the local store. IDs are server-assigned and never reused.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"` // opaque payload, may carry a navigation target
	IsRead    bool             `json:"is_read"`
	Priority  Priority         `json:"priority"`
	Icon      *string          `json:"icon,omitempty"`
	CreatedAt time.Time        `json:"created_at"` // authoritative ordering key
	ReadAt    *time.Time       `json:"read_at,omitempty"`
	DeletedAt *time.Time       `json:"deleted_at,omitempty"`
}

// Link returns the navigation target carried in Data, if any
func (n Notification) Link() string {
	for _, key := range []string{"link", "url"} {
		if v, ok := n.Data[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Clone returns a copy that shares no pointers with n.
// Data values are shallow-copied; they are treated as immutable.
func (n Notification) Clone() Notification {
	c := n
	if n.Data != nil {
		c.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			c.Data[k] = v
		}
	}
	if n.Icon != nil {
		icon := *n.Icon
		c.Icon = &icon
	}
	if n.ReadAt != nil {
		t := *n.ReadAt
		c.ReadAt = &t
	}
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		c.DeletedAt = &t
	}
	return c
}

// NotificationPage is the response body of GET /notifications
type NotificationPage struct {
	Items       []Notification `json:"items"`
	Total       int            `json:"total"`
	UnreadCount int            `json:"unread_count"`
}

// UnreadCountResponse is the response body of GET /notifications/unread-count
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// ErrorResponse is the error body returned by the API on non-2xx statuses
type ErrorResponse struct {
	Error string `json:"error"`
}
