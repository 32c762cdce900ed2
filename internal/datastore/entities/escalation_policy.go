package entities

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// EscalationLevel is one step in an ordered, delay-gated notification policy.
// Level 1 has DelayMin 0 (immediate); later levels have strictly increasing
// delays measured from the alert's trigger time.
type EscalationLevel struct {
	Level      int      `json:"level"`
	DelayMin   int      `json:"delay_minutes"`
	ChannelIDs []uint   `json:"channels"`
	Contacts   []string `json:"contacts"`
}

// EscalationLevels is the ordered level list persisted as a JSON text column.
type EscalationLevels []EscalationLevel

// Value implements driver.Valuer.
func (l EscalationLevels) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *EscalationLevels) Scan(value any) error {
	return scanJSON(value, l)
}

// EscalationPolicy is an ordered list of escalation levels a rule's alerts
// walk through until acknowledged or resolved.
type EscalationPolicy struct {
	ID        uint             `gorm:"primaryKey" json:"id"`
	TeamID    string           `gorm:"size:64;not null;index" json:"team_id"`
	Name      string           `gorm:"size:255;not null" json:"name"`
	Levels    EscalationLevels `gorm:"type:text" json:"escalation_rules"`
	CreatedAt time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (EscalationPolicy) TableName() string {
	return "escalation_policies"
}

// AlertRuleChannel binds an AlertRule to a NotificationChannel, optionally
// through an EscalationPolicy. Multiple links per rule fan out deliveries.
type AlertRuleChannel struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TeamID      string    `gorm:"size:64;not null;index" json:"team_id"`
	AlertRuleID uint      `gorm:"not null;index" json:"alert_rule_id"`
	ChannelID   uint      `gorm:"not null;index" json:"channel_id"`
	PolicyID    *uint     `json:"escalation_policy_id,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AlertRuleChannel) TableName() string {
	return "alert_rule_channels"
}
