package repository

import (
	"context"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// AlertRuleRepository handles alert rule persistence.
type AlertRuleRepository interface {
	ListRules(ctx context.Context, filter AlertRuleFilter) ([]entities.AlertRule, error)
	GetRule(ctx context.Context, id uint) (*entities.AlertRule, error)
	CreateRule(ctx context.Context, rule *entities.AlertRule) error
	UpdateRule(ctx context.Context, rule *entities.AlertRule) error
	DeleteRule(ctx context.Context, id uint) error
	ToggleRule(ctx context.Context, id uint, enabled bool) error

	GetEnabledRules(ctx context.Context) ([]entities.AlertRule, error)
	CountRulesByName(ctx context.Context, teamID, name string) (int64, error)
}

// AlertRuleFilter controls rule listing queries.
type AlertRuleFilter struct {
	TeamID     string
	MetricName string
	Severity   string
	Enabled    *bool
}
