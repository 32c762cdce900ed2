package alerting

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
)

// escalationLookupTimeout bounds the DB reads performed per escalation level.
const escalationLookupTimeout = 5 * time.Second

// Dispatcher delivers one notification to one channel/contact pair and
// records the outcome. Implemented by the notification package.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *entities.Alert, channel *entities.NotificationChannel, contact string) error
}

// escalationTarget is one dispatch destination within a level.
type escalationTarget struct {
	channelID uint
	contact   string
}

// escalationLevel is one delay-gated step of the effective schedule built
// for an alert from its rule's channel links and policies.
type escalationLevel struct {
	level   int
	delay   time.Duration
	targets []escalationTarget
}

// EscalationScheduler walks an alert's escalation policy level by level,
// waiting the configured delay before each step and re-checking alert
// status immediately before dispatching. Acknowledging or resolving the
// alert cancels pending levels; a timer that has already fired re-reads
// status before dispatch, so a late cancellation costs at most one extra
// notification.
type EscalationScheduler struct {
	alerts     repository.AlertRepository
	channels   repository.ChannelRepository
	dispatcher Dispatcher
	clock      Clock
	log        logger.Logger

	mu      sync.Mutex
	pending map[uint]chan struct{} // alert id to cancel signal
	wg      sync.WaitGroup
	stopped bool
}

// NewEscalationScheduler creates an escalation scheduler. A nil clock
// falls back to wall time.
func NewEscalationScheduler(alerts repository.AlertRepository, channels repository.ChannelRepository, dispatcher Dispatcher, clock Clock, log logger.Logger) *EscalationScheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &EscalationScheduler{
		alerts:     alerts,
		channels:   channels,
		dispatcher: dispatcher,
		clock:      clock,
		log:        log,
		pending:    make(map[uint]chan struct{}),
	}
}

// Begin starts escalation for a freshly opened alert. Level 1 dispatches
// immediately; later levels are timed from the alert's trigger time.
// No-op when escalation is already running for the alert.
func (s *EscalationScheduler) Begin(alert *entities.Alert) {
	levels := s.buildSchedule(alert)
	if len(levels) == 0 {
		s.log.Debug("no escalation targets for alert",
			logger.Uint64("alert_id", uint64(alert.ID)),
			logger.Uint64("rule_id", uint64(alert.AlertRuleID)))
		return
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if _, running := s.pending[alert.ID]; running {
		s.mu.Unlock()
		return
	}
	cancelCh := make(chan struct{})
	s.pending[alert.ID] = cancelCh
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(alert, levels, cancelCh)
}

// Cancel stops pending escalation for an alert. Safe to call for alerts
// with no running escalation and safe to call more than once.
func (s *EscalationScheduler) Cancel(alertID uint) {
	s.mu.Lock()
	cancelCh, ok := s.pending[alertID]
	if ok {
		delete(s.pending, alertID)
	}
	s.mu.Unlock()
	if ok {
		close(cancelCh)
	}
}

// Stop cancels all pending escalations and waits for workers to exit.
func (s *EscalationScheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	chans := make([]chan struct{}, 0, len(s.pending))
	for id, ch := range s.pending {
		chans = append(chans, ch)
		delete(s.pending, id)
	}
	s.mu.Unlock()
	for _, ch := range chans {
		close(ch)
	}
	s.wg.Wait()
}

// run walks the schedule for one alert. Runs on its own goroutine.
func (s *EscalationScheduler) run(alert *entities.Alert, levels []escalationLevel, cancelCh <-chan struct{}) {
	defer s.wg.Done()
	defer s.finish(alert.ID, cancelCh)

	for i := range levels {
		lvl := &levels[i]

		// Delays are measured from the trigger time, not from the
		// previous level, so a slow dispatch does not shift the policy.
		wait := alert.TriggeredAt.Add(lvl.delay).Sub(s.clock.Now())
		if wait > 0 {
			select {
			case <-s.clock.After(wait):
			case <-cancelCh:
				return
			}
		} else {
			select {
			case <-cancelCh:
				return
			default:
			}
		}

		// The timer may have fired concurrently with an acknowledge or
		// resolve. Re-read status now; the pre-dispatch check is the
		// race guard, not the schedule-time check.
		if !s.stillActive(alert.ID) {
			s.log.Debug("escalation halted, alert no longer active",
				logger.Uint64("alert_id", uint64(alert.ID)),
				logger.Int("level", lvl.level))
			return
		}

		s.dispatchLevel(alert, lvl)
	}

	// Policy exhausted. The alert stays active; further escalation is
	// manual.
	s.log.Info("escalation policy exhausted",
		logger.Uint64("alert_id", uint64(alert.ID)),
		logger.Int("levels", len(levels)))
}

// finish removes the alert's cancel channel if it is still the one this
// worker was started with.
func (s *EscalationScheduler) finish(alertID uint, cancelCh <-chan struct{}) {
	s.mu.Lock()
	if ch, ok := s.pending[alertID]; ok && ch == cancelCh {
		delete(s.pending, alertID)
	}
	s.mu.Unlock()
}

// stillActive re-reads the alert and reports whether it is still active.
// A read failure halts escalation rather than risking a dispatch against
// an acknowledged or resolved alert.
func (s *EscalationScheduler) stillActive(alertID uint) bool {
	ctx, cancel := context.WithTimeout(context.Background(), escalationLookupTimeout)
	defer cancel()
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		s.log.Error("failed to re-read alert status before dispatch",
			logger.Uint64("alert_id", uint64(alertID)),
			logger.Error(err))
		return false
	}
	return alert.Status == StatusActive
}

// dispatchLevel delivers one escalation level to all its targets. Dispatch
// failures are recorded by the dispatcher; they never stop the remaining
// targets or levels.
func (s *EscalationScheduler) dispatchLevel(alert *entities.Alert, lvl *escalationLevel) {
	ctx, cancel := context.WithTimeout(context.Background(), escalationLookupTimeout)
	defer cancel()

	for _, target := range lvl.targets {
		channel, err := s.channels.GetChannel(ctx, target.channelID)
		if err != nil {
			s.log.Error("escalation channel lookup failed",
				logger.Uint64("alert_id", uint64(alert.ID)),
				logger.Uint64("channel_id", uint64(target.channelID)),
				logger.Error(err))
			continue
		}
		if !channel.Enabled {
			continue
		}
		if err := s.dispatcher.Dispatch(context.Background(), alert, channel, target.contact); err != nil {
			s.log.Warn("escalation dispatch failed",
				logger.Uint64("alert_id", uint64(alert.ID)),
				logger.Uint64("channel_id", uint64(channel.ID)),
				logger.Int("level", lvl.level),
				logger.Error(err))
		}
	}
}

// buildSchedule flattens the rule's channel links and policies into an
// ordered level list. Links without a policy become immediate level-1
// targets; linked policies contribute their configured levels. Levels
// sharing a number are merged.
func (s *EscalationScheduler) buildSchedule(alert *entities.Alert) []escalationLevel {
	ctx, cancel := context.WithTimeout(context.Background(), escalationLookupTimeout)
	defer cancel()

	links, err := s.channels.ListLinksForRule(ctx, alert.AlertRuleID)
	if err != nil {
		s.log.Error("failed to load channel links for rule",
			logger.Uint64("rule_id", uint64(alert.AlertRuleID)),
			logger.Error(err))
		return nil
	}

	byLevel := make(map[int]*escalationLevel)
	add := func(level int, delay time.Duration, targets ...escalationTarget) {
		entry, ok := byLevel[level]
		if !ok {
			entry = &escalationLevel{level: level, delay: delay}
			byLevel[level] = entry
		}
		entry.targets = append(entry.targets, targets...)
	}

	for i := range links {
		link := &links[i]
		if link.PolicyID == nil {
			add(1, 0, escalationTarget{channelID: link.ChannelID})
			continue
		}
		policy, err := s.channels.GetPolicy(ctx, *link.PolicyID)
		if err != nil {
			s.log.Error("failed to load escalation policy",
				logger.Uint64("policy_id", uint64(*link.PolicyID)),
				logger.Error(err))
			continue
		}
		for j := range policy.Levels {
			pl := &policy.Levels[j]
			targets := make([]escalationTarget, 0, len(pl.ChannelIDs)*max(len(pl.Contacts), 1))
			for _, chID := range pl.ChannelIDs {
				if len(pl.Contacts) == 0 {
					targets = append(targets, escalationTarget{channelID: chID})
					continue
				}
				for _, contact := range pl.Contacts {
					targets = append(targets, escalationTarget{channelID: chID, contact: contact})
				}
			}
			add(pl.Level, time.Duration(pl.DelayMin)*time.Minute, targets...)
		}
	}

	levels := make([]escalationLevel, 0, len(byLevel))
	for _, entry := range byLevel {
		levels = append(levels, *entry)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].level < levels[j].level })
	return levels
}
