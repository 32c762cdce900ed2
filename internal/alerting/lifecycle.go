package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/errors"
	"github.com/alertwarden/alertwarden/internal/logger"
)

// Escalator receives lifecycle signals. Begin starts walking the escalation
// policy for a freshly opened alert; Cancel stops any pending escalation
// timers when the alert is acknowledged or resolved.
type Escalator interface {
	Begin(alert *entities.Alert)
	Cancel(alertID uint)
}

// Statistics aggregates alerts triggered within a trailing window.
// AvgResolutionTimeMin averages resolved_at minus triggered_at over alerts
// resolved in the window; unresolved alerts are excluded from the average.
type Statistics struct {
	Total                int64            `json:"total"`
	Active               int64            `json:"active"`
	Acknowledged         int64            `json:"acknowledged"`
	Resolved             int64            `json:"resolved"`
	BySeverity           map[string]int64 `json:"by_severity"`
	AvgResolutionTimeMin float64          `json:"avg_resolution_time_minutes"`
}

// LifecycleService owns the alert state machine. Only this service writes
// alert status fields; the evaluation engine opens and auto-resolves alerts
// through it rather than touching rows directly.
type LifecycleService struct {
	alerts    repository.AlertRepository
	feed      *ChangeFeed
	escalator Escalator
	clock     Clock
	log       logger.Logger
}

// NewLifecycleService creates a lifecycle service. escalator may be nil
// when escalation is not wired (tests, offline tooling).
func NewLifecycleService(alerts repository.AlertRepository, feed *ChangeFeed, clock Clock, log logger.Logger) *LifecycleService {
	if clock == nil {
		clock = SystemClock()
	}
	return &LifecycleService{
		alerts: alerts,
		feed:   feed,
		clock:  clock,
		log:    log,
	}
}

// SetEscalator wires the escalation scheduler. Called once during startup;
// the scheduler needs the lifecycle service to read alert status, so the
// two are connected after construction.
func (s *LifecycleService) SetEscalator(e Escalator) {
	s.escalator = e
}

// Open creates an active alert for a triggering rule evaluation and starts
// escalation. Severity is copied from the rule so later rule edits do not
// rewrite open alerts.
func (s *LifecycleService) Open(ctx context.Context, rule *entities.AlertRule, metricValue float64) (*entities.Alert, error) {
	alert := &entities.Alert{
		AlertRuleID: rule.ID,
		TeamID:      rule.TeamID,
		Severity:    rule.Severity,
		Status:      StatusActive,
		Message:     fmt.Sprintf("%s: %s %s %g (observed %g)", rule.Name, rule.MetricName, rule.ThresholdOperator, rule.ThresholdValue, metricValue),
		MetricValue: metricValue,
		TriggeredAt: s.clock.Now().UTC(),
	}
	if err := s.alerts.CreateAlert(ctx, alert); err != nil {
		return nil, err
	}
	// Attach the rule after the insert so dispatch payloads can name the
	// alert without a re-read; assigning before would make gorm write the
	// association.
	alert.Rule = *rule

	s.log.Info("alert opened",
		logger.Uint64("alert_id", uint64(alert.ID)),
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.String("severity", alert.Severity),
		logger.Float64("metric_value", metricValue))
	s.publish(ChangeAlertOpened, alert)

	if s.escalator != nil {
		s.escalator.Begin(alert)
	}
	return alert, nil
}

// Acknowledge moves an active alert to acknowledged and freezes escalation.
// The alert stays open until resolved.
func (s *LifecycleService) Acknowledge(ctx context.Context, teamID string, alertID uint, actor string) (*entities.Alert, error) {
	alert, err := s.get(ctx, teamID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != StatusActive {
		return nil, errors.Ef(errors.KindInvalidState, "cannot acknowledge alert in status %q", alert.Status)
	}

	now := s.clock.Now().UTC()
	alert.Status = StatusAcknowledged
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = actor
	if err := s.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	s.log.Info("alert acknowledged",
		logger.Uint64("alert_id", uint64(alertID)),
		logger.String("actor", actor))
	s.publish(ChangeAlertAcknowledged, alert)

	if s.escalator != nil {
		s.escalator.Cancel(alertID)
	}
	return alert, nil
}

// Resolve closes an alert from active or acknowledged and cancels any
// pending escalation. Resolved is terminal; resolving twice fails.
func (s *LifecycleService) Resolve(ctx context.Context, teamID string, alertID uint, actor string) (*entities.Alert, error) {
	alert, err := s.get(ctx, teamID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.Status != StatusActive && alert.Status != StatusAcknowledged {
		return nil, errors.Ef(errors.KindInvalidState, "cannot resolve alert in status %q", alert.Status)
	}

	now := s.clock.Now().UTC()
	alert.Status = StatusResolved
	alert.ResolvedAt = &now
	alert.ResolvedBy = actor
	if err := s.alerts.UpdateAlert(ctx, alert); err != nil {
		return nil, err
	}

	s.log.Info("alert resolved",
		logger.Uint64("alert_id", uint64(alertID)),
		logger.String("actor", actor))
	s.publish(ChangeAlertResolved, alert)

	if s.escalator != nil {
		s.escalator.Cancel(alertID)
	}
	return alert, nil
}

// AutoResolve resolves a rule's open alert when its condition returns to
// ok. No-op when the rule has no open alert.
func (s *LifecycleService) AutoResolve(ctx context.Context, ruleID uint) (*entities.Alert, error) {
	alert, err := s.alerts.GetOpenAlertForRule(ctx, ruleID)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.Resolve(ctx, alert.TeamID, alert.ID, SystemActor)
}

// Get returns an alert, enforcing team scope.
func (s *LifecycleService) Get(ctx context.Context, teamID string, alertID uint) (*entities.Alert, error) {
	return s.get(ctx, teamID, alertID)
}

// List returns the team's alerts matching the filter, newest first.
func (s *LifecycleService) List(ctx context.Context, teamID string, filter repository.AlertFilter) ([]entities.Alert, error) {
	filter.TeamID = teamID
	return s.alerts.ListAlerts(ctx, filter)
}

// OpenAlertForRule reports the rule's active or acknowledged alert, or nil
// when the rule is not currently in alert.
func (s *LifecycleService) OpenAlertForRule(ctx context.Context, ruleID uint) (*entities.Alert, error) {
	alert, err := s.alerts.GetOpenAlertForRule(ctx, ruleID)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return alert, nil
}

// Stats computes aggregate statistics over alerts triggered within the
// trailing windowHours.
func (s *LifecycleService) Stats(ctx context.Context, teamID string, windowHours int) (*Statistics, error) {
	if windowHours < 1 {
		return nil, errors.E(errors.KindValidation, "window hours must be at least 1")
	}

	from := s.clock.Now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	alerts, err := s.alerts.ListAlerts(ctx, repository.AlertFilter{TeamID: teamID, From: from})
	if err != nil {
		return nil, err
	}

	stats := &Statistics{BySeverity: make(map[string]int64)}
	var resolutionSum time.Duration
	var resolutionCount int64
	for i := range alerts {
		a := &alerts[i]
		stats.Total++
		stats.BySeverity[a.Severity]++
		switch a.Status {
		case StatusActive:
			stats.Active++
		case StatusAcknowledged:
			stats.Acknowledged++
		case StatusResolved:
			stats.Resolved++
			if a.ResolvedAt != nil {
				resolutionSum += a.ResolvedAt.Sub(a.TriggeredAt)
				resolutionCount++
			}
		}
	}
	if resolutionCount > 0 {
		stats.AvgResolutionTimeMin = resolutionSum.Minutes() / float64(resolutionCount)
	}
	return stats, nil
}

func (s *LifecycleService) get(ctx context.Context, teamID string, alertID uint) (*entities.Alert, error) {
	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if alert.TeamID != teamID {
		return nil, errors.E(errors.KindForbidden, "alert belongs to another team")
	}
	return alert, nil
}

func (s *LifecycleService) publish(changeType string, alert *entities.Alert) {
	if s.feed != nil {
		s.feed.Publish(&ChangeEvent{
			Type:    changeType,
			TeamID:  alert.TeamID,
			RuleID:  alert.AlertRuleID,
			AlertID: alert.ID,
			Alert:   alert,
		})
	}
}
