package entities

import "time"

// AlertRule defines a team-scoped condition watched by the evaluator.
// One condition type is active per rule; today that is "threshold".
type AlertRule struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	TeamID              string    `gorm:"size:64;not null;index" json:"team_id"`
	Name                string    `gorm:"size:255;not null" json:"name"`
	Description         string    `gorm:"size:1000;default:''" json:"description"`
	MetricName          string    `gorm:"size:100;not null;index" json:"metric_name"`
	ConditionType       string    `gorm:"size:30;not null;default:'threshold'" json:"condition_type"`
	ThresholdValue      float64   `gorm:"not null" json:"threshold_value"`
	ThresholdOperator   string    `gorm:"size:20;not null" json:"threshold_operator"`
	WindowReducer       string    `gorm:"size:20;not null;default:'latest'" json:"window_reducer"`
	EvaluationWindowMin int       `gorm:"not null;default:5" json:"evaluation_window_minutes"`
	EvaluationFreqMin   int       `gorm:"not null;default:1" json:"evaluation_frequency_minutes"`
	ConsecutiveFailures int       `gorm:"not null;default:1" json:"consecutive_failures_required"`
	Severity            string    `gorm:"size:10;not null;default:'medium'" json:"severity"`
	CooldownMin         int       `gorm:"not null;default:15" json:"cooldown_minutes"`
	MaxAlertsPerHour    int       `gorm:"not null;default:10" json:"max_alerts_per_hour"`
	Enabled             bool      `gorm:"not null;index" json:"enabled"`
	Tags                StringMap `gorm:"type:text" json:"tags"`
	CustomConditions    JSONMap   `gorm:"type:text" json:"custom_conditions"`
	CreatedBy           string    `gorm:"size:64;default:''" json:"created_by"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for GORM.
func (AlertRule) TableName() string {
	return "alert_rules"
}
