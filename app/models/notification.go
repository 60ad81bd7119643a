package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	NOTIFICATION_TYPE_ACCESS = "access"
	NOTIFICATION_TYPE_SYSTEM = "system"
)

type Notification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index" json:"user_id"`
	User      User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Type      string         `gorm:"type:varchar(50)" json:"type" validate:"oneof=access system"`
	Title     string         `gorm:"type:varchar(200)" json:"title"`
	Message   string         `gorm:"type:text" json:"message"`
	IsRead    bool           `gorm:"default:false" json:"is_read"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// MarkAsRead marks a notification as read
func (n *Notification) MarkAsRead(db *gorm.DB) error {
	n.IsRead = true
	return db.Model(n).Update("is_read", true).Error
}
