package notification

import (
	"net/url"

	"github.com/alertwarden/alertwarden/internal/alerting"
	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/errors"
)

// ValidateChannel checks that a channel's type is known, its configuration
// carries the keys that type needs, and its rate limits are sane. Channels
// are validated on create and update so the dispatcher never sees a channel
// it cannot render.
func ValidateChannel(ch *entities.NotificationChannel) error {
	if ch.Name == "" {
		return errors.E(errors.KindValidation, "channel name is required")
	}
	if ch.MaxPerHour < 1 {
		return errors.E(errors.KindValidation, "max_notifications_per_hour must be at least 1")
	}
	if ch.MaxPerDay < 1 {
		return errors.E(errors.KindValidation, "max_notifications_per_day must be at least 1")
	}
	if ch.MaxPerDay < ch.MaxPerHour {
		return errors.E(errors.KindValidation, "max_notifications_per_day must not be below max_notifications_per_hour")
	}

	switch ch.ChannelType {
	case alerting.ChannelTypeEmail:
		if len(configStringSlice(ch.Config, "recipients")) == 0 {
			return errors.E(errors.KindValidation, "email channel requires at least one recipient")
		}
	case alerting.ChannelTypeWebhook:
		if err := validateHTTPURL(configString(ch.Config, "url")); err != nil {
			return errors.Wrap(errors.KindValidation, "webhook channel url is invalid", err)
		}
	case alerting.ChannelTypeSlack:
		if err := validateHTTPURL(configString(ch.Config, "webhook_url")); err != nil {
			return errors.Wrap(errors.KindValidation, "slack channel webhook_url is invalid", err)
		}
	default:
		return errors.Ef(errors.KindValidation, "unknown channel type %q", ch.ChannelType)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.E(errors.KindValidation, "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Ef(errors.KindValidation, "%q is not an absolute http(s) url", raw)
	}
	return nil
}
