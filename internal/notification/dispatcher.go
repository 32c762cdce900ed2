package notification

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/alertwarden/alertwarden/internal/alerting"
	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/errors"
	"github.com/alertwarden/alertwarden/internal/logger"
	"github.com/alertwarden/alertwarden/internal/observability/metrics"
)

const (
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 2 * time.Second
	defaultSendTimeout    = 15 * time.Second
)

// Config bounds dispatcher retries and timeouts.
type Config struct {
	// MaxAttempts caps transport attempts per dispatch, first try included.
	MaxAttempts int
	// RetryBaseDelay is the backoff base; attempt n sleeps about
	// base*2^(n-1) plus jitter before the next try.
	RetryBaseDelay time.Duration
	// SendTimeout caps a single transport invocation.
	SendTimeout time.Duration
	// SMTPURL addresses the SMTP relay used by email channels.
	SMTPURL string
	// BaseURL, when set, is used to build alert links in payloads.
	BaseURL string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = defaultRetryBaseDelay
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	return c
}

// Dispatcher delivers alert notifications over typed channels, enforcing
// per-channel rate limits before any transport is touched and recording one
// AlertNotification row per attempt.
type Dispatcher struct {
	repo       repository.NotificationRepository
	limiter    *RateLimiter
	transports map[string]Transport
	cfg        Config
	log        logger.Logger

	// sleep is replaced in tests to skip real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a dispatcher with the default transports for every
// known channel type.
func NewDispatcher(repo repository.NotificationRepository, cfg Config, log logger.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		repo:    repo,
		limiter: NewRateLimiter(),
		transports: map[string]Transport{
			alerting.ChannelTypeEmail:   NewEmailTransport(cfg.SMTPURL),
			alerting.ChannelTypeWebhook: NewWebhookTransport(nil),
			alerting.ChannelTypeSlack:   NewSlackTransport(),
		},
		cfg:   cfg,
		log:   log.With(logger.String("component", "dispatcher")),
		sleep: sleepCtx,
	}
}

// SetTransport replaces the transport for a channel type.
func (d *Dispatcher) SetTransport(channelType string, t Transport) {
	d.transports[channelType] = t
}

// Dispatch delivers one notification for the alert on the channel. A channel
// over its rate limit is recorded as failed without touching the transport.
// Transport failures are retried with exponential backoff up to MaxAttempts,
// each attempt leaving its own history row.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *entities.Alert, channel *entities.NotificationChannel, contact string) error {
	payload := buildPayload(alert, d.cfg.BaseURL)

	if !d.limiter.Allow(channel) {
		d.record(ctx, alert, channel, contact, &entities.AlertNotification{
			Status: entities.NotificationStatusFailed,
			Reason: entities.NotificationReasonRateLimited,
		})
		metrics.NotificationsTotal.WithLabelValues(channel.ChannelType, "rate_limited").Inc()
		d.log.Warn("notification rate limited",
			logger.Uint64("alert_id", uint64(alert.ID)),
			logger.Uint64("channel_id", uint64(channel.ID)),
			logger.String("channel_type", channel.ChannelType))
		return errors.Ef(errors.KindRateLimited, "channel %d is over its notification limit", channel.ID)
	}

	transport := d.transports[channel.ChannelType]
	if transport == nil {
		d.record(ctx, alert, channel, contact, &entities.AlertNotification{
			Status:    entities.NotificationStatusFailed,
			Reason:    entities.NotificationReasonTransportError,
			LastError: "unsupported channel type " + channel.ChannelType,
		})
		metrics.NotificationsTotal.WithLabelValues(channel.ChannelType, "failed").Inc()
		return errors.Ef(errors.KindValidation, "no transport for channel type %q", channel.ChannelType)
	}

	var lastErr error
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		start := time.Now()
		sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		err := transport.Send(sendCtx, channel, payload, contact)
		cancel()
		metrics.DispatchDuration.WithLabelValues(channel.ChannelType).Observe(time.Since(start).Seconds())

		if err == nil {
			d.record(ctx, alert, channel, contact, &entities.AlertNotification{
				Status:       entities.NotificationStatusSent,
				AttemptCount: attempt,
			})
			metrics.NotificationsTotal.WithLabelValues(channel.ChannelType, "sent").Inc()
			d.log.Info("notification sent",
				logger.Uint64("alert_id", uint64(alert.ID)),
				logger.Uint64("channel_id", uint64(channel.ID)),
				logger.String("channel_type", channel.ChannelType),
				logger.Int("attempt", attempt))
			return nil
		}

		lastErr = err
		d.record(ctx, alert, channel, contact, &entities.AlertNotification{
			Status:       entities.NotificationStatusFailed,
			Reason:       entities.NotificationReasonTransportError,
			AttemptCount: attempt,
			LastError:    truncate(err.Error(), 1000),
		})
		metrics.NotificationsTotal.WithLabelValues(channel.ChannelType, "failed").Inc()
		d.log.Warn("notification attempt failed",
			logger.Uint64("alert_id", uint64(alert.ID)),
			logger.Uint64("channel_id", uint64(channel.ID)),
			logger.Int("attempt", attempt),
			logger.Error(err))

		if attempt < d.cfg.MaxAttempts {
			if err := d.sleep(ctx, backoffDelay(d.cfg.RetryBaseDelay, attempt)); err != nil {
				lastErr = err
				break
			}
		}
	}
	return errors.Wrap(errors.KindTransport, "notification delivery failed", lastErr)
}

func (d *Dispatcher) record(ctx context.Context, alert *entities.Alert, channel *entities.NotificationChannel, contact string, row *entities.AlertNotification) {
	row.TeamID = alert.TeamID
	row.AlertID = alert.ID
	row.ChannelID = channel.ID
	row.Contact = contact
	if row.AttemptCount < 1 {
		row.AttemptCount = 1
	}
	if err := d.repo.Append(ctx, row); err != nil {
		d.log.Error("failed to record notification attempt",
			logger.Uint64("alert_id", uint64(alert.ID)),
			logger.Error(err))
	}
}

// backoffDelay returns base*2^(attempt-1) with up to 50% added jitter so
// concurrent retries against the same endpoint spread out.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	return d + rand.N(d/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
