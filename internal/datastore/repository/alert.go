package repository

import (
	"context"
	"time"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// AlertRepository handles alert persistence. Status transitions are the
// lifecycle manager's job; this layer only reads and writes rows.
type AlertRepository interface {
	CreateAlert(ctx context.Context, alert *entities.Alert) error
	GetAlert(ctx context.Context, id uint) (*entities.Alert, error)
	UpdateAlert(ctx context.Context, alert *entities.Alert) error
	ListAlerts(ctx context.Context, filter AlertFilter) ([]entities.Alert, error)

	// GetOpenAlertForRule returns the active or acknowledged alert for a
	// rule, or ErrAlertNotFound when the rule has no open alert.
	GetOpenAlertForRule(ctx context.Context, ruleID uint) (*entities.Alert, error)
	// CountTriggeredSince counts alerts a rule triggered at or after the
	// given time. Backs the hourly cap guard.
	CountTriggeredSince(ctx context.Context, ruleID uint, since time.Time) (int64, error)
	// LastTriggeredAt returns the most recent trigger time for a rule, or
	// nil when the rule has never triggered. Backs the cooldown guard
	// across restarts.
	LastTriggeredAt(ctx context.Context, ruleID uint) (*time.Time, error)
	// CountUnresolvedForRule counts active and acknowledged alerts for a
	// rule. Backs the delete-conflict check in the rule store.
	CountUnresolvedForRule(ctx context.Context, ruleID uint) (int64, error)
}

// AlertFilter controls alert listing queries.
type AlertFilter struct {
	TeamID     string
	RuleID     uint
	Statuses   []string
	Severities []string
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}
