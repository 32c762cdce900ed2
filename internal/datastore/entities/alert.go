package entities

import "time"

// Alert is a concrete, time-stamped instance of a rule's condition being
// true. Severity is copied from the rule at trigger time; later rule edits
// never retroactively alter open alerts. Alerts are never deleted; they
// feed statistics after resolution.
type Alert struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	AlertRuleID    uint       `gorm:"not null;index:idx_alerts_rule_triggered,priority:1" json:"alert_rule_id"`
	TeamID         string     `gorm:"size:64;not null;index" json:"team_id"`
	Severity       string     `gorm:"size:10;not null" json:"severity"`
	Status         string     `gorm:"size:12;not null;index" json:"status"`
	Message        string     `gorm:"size:1000;default:''" json:"message"`
	MetricValue    float64    `gorm:"not null" json:"metric_value"`
	TriggeredAt    time.Time  `gorm:"not null;index:idx_alerts_rule_triggered,priority:2" json:"triggered_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `gorm:"size:64;default:''" json:"acknowledged_by,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy     string     `gorm:"size:64;default:''" json:"resolved_by,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	Rule           AlertRule  `gorm:"foreignKey:AlertRuleID" json:"rule,omitzero"`
}

// TableName returns the table name for GORM.
func (Alert) TableName() string {
	return "alerts"
}
