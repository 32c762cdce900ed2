package notification

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
)

// channelLimiter pairs an hourly and a daily token bucket for one channel.
// The buckets refill continuously, so a channel capped at 60/hour gets one
// token a minute back rather than a hard window reset.
type channelLimiter struct {
	maxPerHour int
	maxPerDay  int
	hourly     *rate.Limiter
	daily      *rate.Limiter
}

func newChannelLimiter(ch *entities.NotificationChannel) *channelLimiter {
	return &channelLimiter{
		maxPerHour: ch.MaxPerHour,
		maxPerDay:  ch.MaxPerDay,
		hourly:     newBucket(time.Hour, ch.MaxPerHour),
		daily:      newBucket(24*time.Hour, ch.MaxPerDay),
	}
}

func newBucket(window time.Duration, limit int) *rate.Limiter {
	if limit < 1 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
}

// RateLimiter enforces per-channel notification caps across concurrent
// dispatches. Updated channel limits take effect on the next dispatch and
// reset that channel's buckets.
type RateLimiter struct {
	mu       sync.Mutex
	channels map[uint]*channelLimiter
}

// NewRateLimiter returns an empty limiter. Buckets are created lazily the
// first time a channel dispatches.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{channels: make(map[uint]*channelLimiter)}
}

// Allow consumes one token from both of the channel's buckets, or neither.
// It returns false when either cap is exhausted.
func (l *RateLimiter) Allow(ch *entities.NotificationChannel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl := l.channels[ch.ID]
	if cl == nil || cl.maxPerHour != ch.MaxPerHour || cl.maxPerDay != ch.MaxPerDay {
		cl = newChannelLimiter(ch)
		l.channels[ch.ID] = cl
	}

	hr := cl.hourly.Reserve()
	if !hr.OK() || hr.Delay() > 0 {
		hr.Cancel()
		return false
	}
	dr := cl.daily.Reserve()
	if !dr.OK() || dr.Delay() > 0 {
		dr.Cancel()
		hr.Cancel()
		return false
	}
	return true
}
