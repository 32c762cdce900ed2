package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// NotificationRepository appends and lists delivery attempt records.
// Rows are never updated or deleted; the dispatcher appends one per attempt.
type NotificationRepository interface {
	Append(ctx context.Context, n *entities.AlertNotification) error
	List(ctx context.Context, filter NotificationFilter) ([]entities.AlertNotification, int64, error)
}

// NotificationFilter controls delivery record listing.
type NotificationFilter struct {
	TeamID    string
	AlertID   uint
	ChannelID uint
	Status    string
	Limit     int
	Offset    int
}

// notificationRepository implements NotificationRepository.
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Append(ctx context.Context, n *entities.AlertNotification) error {
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("failed to record alert notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) List(ctx context.Context, filter NotificationFilter) ([]entities.AlertNotification, int64, error) {
	base := r.db.WithContext(ctx).Model(&entities.AlertNotification{})
	if filter.TeamID != "" {
		base = base.Where("team_id = ?", filter.TeamID)
	}
	if filter.AlertID > 0 {
		base = base.Where("alert_id = ?", filter.AlertID)
	}
	if filter.ChannelID > 0 {
		base = base.Where("channel_id = ?", filter.ChannelID)
	}
	if filter.Status != "" {
		base = base.Where("status = ?", filter.Status)
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count alert notifications: %w", err)
	}

	query := base.Order("id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var items []entities.AlertNotification
	if err := query.Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list alert notifications: %w", err)
	}
	return items, total, nil
}
