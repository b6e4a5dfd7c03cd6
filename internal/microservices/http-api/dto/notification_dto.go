package dto

import (
	"github.com/bs1gr/AUT-MIEEK-SMS-sub003/internal/microservices/http-api/models"
	wire "github.com/bs1gr/AUT-MIEEK-SMS-sub003/pkg/models"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// ListNotificationsQuery binds GET /notifications query parameters
type ListNotificationsQuery struct {
	Skip       int  `form:"skip" binding:"min=0"`
	Limit      int  `form:"limit" binding:"min=0,max=100"`
	UnreadOnly bool `form:"unread_only"`
}

// CreateNotificationRequest is posted by producers (grading, attendance, report jobs)
type CreateNotificationRequest struct {
	UserID   string                `json:"user_id" binding:"required"`
	Type     wire.NotificationType `json:"type" binding:"required"`
	Title    string                `json:"title" binding:"required,max=255"`
	Message  string                `json:"message" binding:"max=4000"`
	Data     map[string]any        `json:"data,omitempty"`
	Priority wire.Priority         `json:"priority,omitempty"`
	Icon     *string               `json:"icon,omitempty"`
}

// ToNotificationResponse maps the stored row onto the wire model
func ToNotificationResponse(n *models.Notification) wire.Notification {
	out := wire.Notification{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      wire.NotificationType(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead,
		Priority:  wire.Priority(n.Priority),
		Icon:      n.Icon,
		CreatedAt: n.CreatedAt,
		ReadAt:    n.ReadAt,
	}
	if n.DeletedAt.Valid {
		deletedAt := n.DeletedAt.Time
		out.DeletedAt = &deletedAt
	}
	return out
}

func ToNotificationResponses(rows []models.Notification) []wire.Notification {
	out := make([]wire.Notification, 0, len(rows))
	for i := range rows {
		out = append(out, ToNotificationResponse(&rows[i]))
	}
	return out
}
