package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/errors"
)

// alertRepository implements AlertRepository.
type alertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

// CreateAlert inserts a new alert row.
func (r *alertRepository) CreateAlert(ctx context.Context, alert *entities.Alert) error {
	if err := r.db.WithContext(ctx).Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetAlert returns a single alert by ID with its rule preloaded.
// Returns ErrAlertNotFound if the alert does not exist.
func (r *alertRepository) GetAlert(ctx context.Context, id uint) (*entities.Alert, error) {
	var alert entities.Alert
	if err := r.db.WithContext(ctx).Preload("Rule").First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get alert %d: %w", id, err)
	}
	return &alert, nil
}

// UpdateAlert saves an alert row in place.
func (r *alertRepository) UpdateAlert(ctx context.Context, alert *entities.Alert) error {
	if alert.ID == 0 {
		return fmt.Errorf("failed to update alert: missing alert ID")
	}
	if err := r.db.WithContext(ctx).Omit("Rule").Save(alert).Error; err != nil {
		return fmt.Errorf("failed to update alert %d: %w", alert.ID, err)
	}
	return nil
}

// ListAlerts returns alerts matching the given filter, newest first.
func (r *alertRepository) ListAlerts(ctx context.Context, filter AlertFilter) ([]entities.Alert, error) {
	var alerts []entities.Alert
	query := r.db.WithContext(ctx)

	if filter.TeamID != "" {
		query = query.Where("team_id = ?", filter.TeamID)
	}
	if filter.RuleID > 0 {
		query = query.Where("alert_rule_id = ?", filter.RuleID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if len(filter.Severities) > 0 {
		query = query.Where("severity IN ?", filter.Severities)
	}
	if !filter.From.IsZero() {
		query = query.Where("triggered_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("triggered_at <= ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Order("triggered_at DESC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// GetOpenAlertForRule returns the active or acknowledged alert for a rule.
func (r *alertRepository) GetOpenAlertForRule(ctx context.Context, ruleID uint) (*entities.Alert, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).
		Where("alert_rule_id = ? AND status IN ?", ruleID, []string{"active", "acknowledged"}).
		Order("triggered_at DESC").
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("failed to get open alert for rule %d: %w", ruleID, err)
	}
	return &alert, nil
}

// CountTriggeredSince counts alerts a rule triggered at or after since.
func (r *alertRepository) CountTriggeredSince(ctx context.Context, ruleID uint, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Alert{}).
		Where("alert_rule_id = ? AND triggered_at >= ?", ruleID, since).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count alerts for rule %d: %w", ruleID, err)
	}
	return count, nil
}

// LastTriggeredAt returns the most recent trigger time for a rule.
func (r *alertRepository) LastTriggeredAt(ctx context.Context, ruleID uint) (*time.Time, error) {
	var alert entities.Alert
	err := r.db.WithContext(ctx).
		Where("alert_rule_id = ?", ruleID).
		Order("triggered_at DESC").
		First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last trigger for rule %d: %w", ruleID, err)
	}
	t := alert.TriggeredAt
	return &t, nil
}

// CountUnresolvedForRule counts active and acknowledged alerts for a rule.
func (r *alertRepository) CountUnresolvedForRule(ctx context.Context, ruleID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&entities.Alert{}).
		Where("alert_rule_id = ? AND status IN ?", ruleID, []string{"active", "acknowledged"}).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unresolved alerts for rule %d: %w", ruleID, err)
	}
	return count, nil
}
