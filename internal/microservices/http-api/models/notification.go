package models

import (
	"time"

	"gorm.io/gorm"
)

type Notification struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string         `gorm:"type:varchar(64);not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Type      string         `gorm:"type:varchar(32);not null" json:"type"` // grade, attendance, announcement, ...
	Title     string         `gorm:"not null" json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `gorm:"serializer:json" json:"data,omitempty"`
	IsRead    bool           `gorm:"default:false;index" json:"is_read"`
	Priority  string         `gorm:"type:varchar(16);default:normal" json:"priority"`
	Icon      *string        `json:"icon,omitempty"`
	CreatedAt time.Time      `gorm:"index:idx_notifications_user_created,priority:2,sort:desc" json:"created_at"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"` // soft delete, ids are never reused
}

func (Notification) TableName() string {
	return "notifications"
}
