package repository

import (
	"context"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// ChannelRepository handles notification channel, escalation policy, and
// rule-channel link persistence. The three record types share one
// repository because every escalation walk reads them together.
type ChannelRepository interface {
	// Channels
	ListChannels(ctx context.Context, teamID string) ([]entities.NotificationChannel, error)
	GetChannel(ctx context.Context, id uint) (*entities.NotificationChannel, error)
	CreateChannel(ctx context.Context, ch *entities.NotificationChannel) error
	UpdateChannel(ctx context.Context, ch *entities.NotificationChannel) error
	DeleteChannel(ctx context.Context, id uint) error

	// Escalation policies
	ListPolicies(ctx context.Context, teamID string) ([]entities.EscalationPolicy, error)
	GetPolicy(ctx context.Context, id uint) (*entities.EscalationPolicy, error)
	CreatePolicy(ctx context.Context, p *entities.EscalationPolicy) error
	UpdatePolicy(ctx context.Context, p *entities.EscalationPolicy) error
	DeletePolicy(ctx context.Context, id uint) error

	// Rule-channel links
	ListLinksForRule(ctx context.Context, ruleID uint) ([]entities.AlertRuleChannel, error)
	CreateLink(ctx context.Context, link *entities.AlertRuleChannel) error
	DeleteLink(ctx context.Context, id uint) error
	GetLink(ctx context.Context, id uint) (*entities.AlertRuleChannel, error)
}
