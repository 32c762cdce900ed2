package entities

import "time"

// Delivery statuses for AlertNotification rows.
const (
	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// Failure reasons recorded on failed notifications.
const (
	NotificationReasonRateLimited    = "rate_limited"
	NotificationReasonTransportError = "transport_error"
)

// AlertNotification records one delivery attempt for an alert on a channel.
// Rows are append-only: retries add rows, nothing mutates history, so
// delivery auditing never loses information. Only the dispatcher creates
// these rows.
type AlertNotification struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TeamID       string    `gorm:"size:64;not null;index" json:"team_id"`
	AlertID      uint      `gorm:"not null;index:idx_notifications_alert_channel,priority:1" json:"alert_id"`
	ChannelID    uint      `gorm:"not null;index:idx_notifications_alert_channel,priority:2" json:"channel_id"`
	Contact      string    `gorm:"size:255;default:''" json:"contact"`
	Status       string    `gorm:"size:12;not null" json:"status"`
	Reason       string    `gorm:"size:30;default:''" json:"reason,omitempty"`
	AttemptCount int       `gorm:"not null;default:1" json:"attempt_count"`
	LastError    string    `gorm:"size:1000;default:''" json:"last_error,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for GORM.
func (AlertNotification) TableName() string {
	return "alert_notifications"
}
