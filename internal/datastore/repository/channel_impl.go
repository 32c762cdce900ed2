package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/errors"
)

// channelRepository implements ChannelRepository.
type channelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

func (r *channelRepository) ListChannels(ctx context.Context, teamID string) ([]entities.NotificationChannel, error) {
	var channels []entities.NotificationChannel
	query := r.db.WithContext(ctx)
	if teamID != "" {
		query = query.Where("team_id = ?", teamID)
	}
	if err := query.Order("id ASC").Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification channels: %w", err)
	}
	return channels, nil
}

func (r *channelRepository) GetChannel(ctx context.Context, id uint) (*entities.NotificationChannel, error) {
	var ch entities.NotificationChannel
	if err := r.db.WithContext(ctx).First(&ch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChannelNotFound
		}
		return nil, fmt.Errorf("failed to get notification channel %d: %w", id, err)
	}
	return &ch, nil
}

func (r *channelRepository) CreateChannel(ctx context.Context, ch *entities.NotificationChannel) error {
	if err := r.db.WithContext(ctx).Create(ch).Error; err != nil {
		return fmt.Errorf("failed to create notification channel: %w", err)
	}
	return nil
}

func (r *channelRepository) UpdateChannel(ctx context.Context, ch *entities.NotificationChannel) error {
	if ch.ID == 0 {
		return fmt.Errorf("failed to update notification channel: missing ID")
	}
	if err := r.db.WithContext(ctx).Save(ch).Error; err != nil {
		return fmt.Errorf("failed to update notification channel %d: %w", ch.ID, err)
	}
	return nil
}

func (r *channelRepository) DeleteChannel(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.NotificationChannel{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete notification channel %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrChannelNotFound
	}
	return nil
}

func (r *channelRepository) ListPolicies(ctx context.Context, teamID string) ([]entities.EscalationPolicy, error) {
	var policies []entities.EscalationPolicy
	query := r.db.WithContext(ctx)
	if teamID != "" {
		query = query.Where("team_id = ?", teamID)
	}
	if err := query.Order("id ASC").Find(&policies).Error; err != nil {
		return nil, fmt.Errorf("failed to list escalation policies: %w", err)
	}
	return policies, nil
}

func (r *channelRepository) GetPolicy(ctx context.Context, id uint) (*entities.EscalationPolicy, error) {
	var p entities.EscalationPolicy
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get escalation policy %d: %w", id, err)
	}
	return &p, nil
}

func (r *channelRepository) CreatePolicy(ctx context.Context, p *entities.EscalationPolicy) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create escalation policy: %w", err)
	}
	return nil
}

func (r *channelRepository) UpdatePolicy(ctx context.Context, p *entities.EscalationPolicy) error {
	if p.ID == 0 {
		return fmt.Errorf("failed to update escalation policy: missing ID")
	}
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("failed to update escalation policy %d: %w", p.ID, err)
	}
	return nil
}

func (r *channelRepository) DeletePolicy(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.EscalationPolicy{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete escalation policy %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

func (r *channelRepository) ListLinksForRule(ctx context.Context, ruleID uint) ([]entities.AlertRuleChannel, error) {
	var links []entities.AlertRuleChannel
	if err := r.db.WithContext(ctx).Where("alert_rule_id = ?", ruleID).Order("id ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to list links for rule %d: %w", ruleID, err)
	}
	return links, nil
}

func (r *channelRepository) CreateLink(ctx context.Context, link *entities.AlertRuleChannel) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		return fmt.Errorf("failed to create rule-channel link: %w", err)
	}
	return nil
}

func (r *channelRepository) DeleteLink(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&entities.AlertRuleChannel{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete rule-channel link %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *channelRepository) GetLink(ctx context.Context, id uint) (*entities.AlertRuleChannel, error) {
	var link entities.AlertRuleChannel
	if err := r.db.WithContext(ctx).First(&link, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get rule-channel link %d: %w", id, err)
	}
	return &link, nil
}
