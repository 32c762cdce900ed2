package entities

import "time"

// NotificationChannel is a delivery target. Configuration shape depends on
// ChannelType and is validated before persistence:
//
//	email:   {"recipients": [...], "subject_prefix": "..."}
//	webhook: {"url": "...", "method": "POST", "headers": {...}}
//	slack:   {"webhook_url": "...", "channel": "#...", "username": "..."}
type NotificationChannel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TeamID      string    `gorm:"size:64;not null;index" json:"team_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	ChannelType string    `gorm:"size:20;not null" json:"channel_type"`
	Config      JSONMap   `gorm:"type:text" json:"configuration"`
	Enabled     bool      `gorm:"not null;index" json:"enabled"`
	MaxPerHour  int       `gorm:"not null;default:60" json:"max_notifications_per_hour"`
	MaxPerDay   int       `gorm:"not null;default:500" json:"max_notifications_per_day"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (NotificationChannel) TableName() string {
	return "notification_channels"
}
