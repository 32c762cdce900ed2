package alerting

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/errors"
	"github.com/alertwarden/alertwarden/internal/logger"
)

// Defaults applied when a rule omits optional shaping fields.
const (
	DefaultCooldownMin      = 15
	DefaultMaxAlertsPerHour = 10
	DefaultWindowReducer    = ReducerLatest
)

var (
	validOperators  = []string{OperatorGreaterThan, OperatorLessThan, OperatorGreaterOrEqual, OperatorLessOrEqual, OperatorEqual}
	validReducers   = []string{ReducerLatest, ReducerAverage, ReducerMax, ReducerMin}
	validSeverities = []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
)

// RuleChangedFunc is notified after a successful rule mutation so the
// evaluation engine can reload its worker set.
type RuleChangedFunc func()

// RuleService owns alert rule CRUD and validation. All operations are
// team scoped; acting on another team's rule fails with a forbidden error.
type RuleService struct {
	rules       repository.AlertRuleRepository
	alerts      repository.AlertRepository
	feed        *ChangeFeed
	ruleChanged RuleChangedFunc
	log         logger.Logger
}

// NewRuleService creates a rule service. ruleChanged may be nil when no
// engine reload is needed (tests, offline tooling).
func NewRuleService(rules repository.AlertRuleRepository, alerts repository.AlertRepository, feed *ChangeFeed, ruleChanged RuleChangedFunc, log logger.Logger) *RuleService {
	return &RuleService{
		rules:       rules,
		alerts:      alerts,
		feed:        feed,
		ruleChanged: ruleChanged,
		log:         log,
	}
}

// Create validates, applies defaults, and persists a new rule.
func (s *RuleService) Create(ctx context.Context, teamID string, rule *entities.AlertRule) (*entities.AlertRule, error) {
	rule.TeamID = teamID
	applyRuleDefaults(rule)
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	count, err := s.rules.CountRulesByName(ctx, teamID, rule.Name)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, errors.Ef(errors.KindConflict, "alert rule named %q already exists", rule.Name)
	}

	if err := s.rules.CreateRule(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info("alert rule created",
		logger.Uint64("rule_id", uint64(rule.ID)),
		logger.String("team_id", teamID),
		logger.String("metric", rule.MetricName))
	s.publish(ChangeRuleCreated, teamID, rule.ID)
	s.notifyRuleChanged()
	return rule, nil
}

// Get returns a rule, enforcing team scope.
func (s *RuleService) Get(ctx context.Context, teamID string, id uint) (*entities.AlertRule, error) {
	rule, err := s.rules.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule.TeamID != teamID {
		return nil, errors.E(errors.KindForbidden, "alert rule belongs to another team")
	}
	return rule, nil
}

// List returns the team's rules matching the filter. The filter's team id
// is overwritten with the caller's scope.
func (s *RuleService) List(ctx context.Context, teamID string, filter repository.AlertRuleFilter) ([]entities.AlertRule, error) {
	filter.TeamID = teamID
	return s.rules.ListRules(ctx, filter)
}

// Update re-validates and persists changes to an existing rule. Identity
// and ownership fields are taken from the stored row, not the input.
func (s *RuleService) Update(ctx context.Context, teamID string, id uint, updated *entities.AlertRule) (*entities.AlertRule, error) {
	existing, err := s.Get(ctx, teamID, id)
	if err != nil {
		return nil, err
	}

	updated.ID = existing.ID
	updated.TeamID = existing.TeamID
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	applyRuleDefaults(updated)
	if err := validateRule(updated); err != nil {
		return nil, err
	}

	if updated.Name != existing.Name {
		count, err := s.rules.CountRulesByName(ctx, teamID, updated.Name)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, errors.Ef(errors.KindConflict, "alert rule named %q already exists", updated.Name)
		}
	}

	if err := s.rules.UpdateRule(ctx, updated); err != nil {
		return nil, err
	}

	s.publish(ChangeRuleUpdated, teamID, id)
	s.notifyRuleChanged()
	return updated, nil
}

// Toggle enables or disables a rule without touching its definition.
func (s *RuleService) Toggle(ctx context.Context, teamID string, id uint, enabled bool) error {
	if _, err := s.Get(ctx, teamID, id); err != nil {
		return err
	}
	if err := s.rules.ToggleRule(ctx, id, enabled); err != nil {
		return err
	}
	s.publish(ChangeRuleUpdated, teamID, id)
	s.notifyRuleChanged()
	return nil
}

// Delete removes a rule. Rules with unresolved alerts cannot be deleted;
// disable them instead so alert history stays attributable.
func (s *RuleService) Delete(ctx context.Context, teamID string, id uint) error {
	if _, err := s.Get(ctx, teamID, id); err != nil {
		return err
	}

	unresolved, err := s.alerts.CountUnresolvedForRule(ctx, id)
	if err != nil {
		return err
	}
	if unresolved > 0 {
		return errors.Ef(errors.KindConflict, "rule has %d unresolved alerts; disable it instead", unresolved)
	}

	if err := s.rules.DeleteRule(ctx, id); err != nil {
		return err
	}

	s.log.Info("alert rule deleted",
		logger.Uint64("rule_id", uint64(id)),
		logger.String("team_id", teamID))
	s.publish(ChangeRuleDeleted, teamID, id)
	s.notifyRuleChanged()
	return nil
}

func (s *RuleService) publish(changeType, teamID string, ruleID uint) {
	if s.feed != nil {
		s.feed.Publish(&ChangeEvent{Type: changeType, TeamID: teamID, RuleID: ruleID})
	}
}

func (s *RuleService) notifyRuleChanged() {
	if s.ruleChanged != nil {
		s.ruleChanged()
	}
}

// applyRuleDefaults fills optional shaping fields before validation.
// CooldownMin is left alone: zero is a valid cooldown, so omitted-vs-zero
// can only be told apart at the request binding layer, which applies
// DefaultCooldownMin when the field is absent.
func applyRuleDefaults(rule *entities.AlertRule) {
	if rule.ConditionType == "" {
		rule.ConditionType = ConditionThreshold
	}
	if rule.WindowReducer == "" {
		rule.WindowReducer = DefaultWindowReducer
	}
	if rule.MaxAlertsPerHour == 0 {
		rule.MaxAlertsPerHour = DefaultMaxAlertsPerHour
	}
	if rule.ConsecutiveFailures == 0 {
		rule.ConsecutiveFailures = 1
	}
}

// validateRule enforces the rule invariants.
func validateRule(rule *entities.AlertRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return errors.E(errors.KindValidation, "rule name is required")
	}
	if strings.TrimSpace(rule.MetricName) == "" {
		return errors.E(errors.KindValidation, "metric name is required")
	}
	if rule.ConditionType != ConditionThreshold {
		return errors.Ef(errors.KindValidation, "unsupported condition type %q", rule.ConditionType)
	}
	if math.IsNaN(rule.ThresholdValue) || math.IsInf(rule.ThresholdValue, 0) {
		return errors.E(errors.KindValidation, "threshold value must be a finite number")
	}
	if !slices.Contains(validOperators, rule.ThresholdOperator) {
		return errors.Ef(errors.KindValidation, "unknown threshold operator %q", rule.ThresholdOperator)
	}
	if !slices.Contains(validReducers, rule.WindowReducer) {
		return errors.Ef(errors.KindValidation, "unknown window reducer %q", rule.WindowReducer)
	}
	if !slices.Contains(validSeverities, rule.Severity) {
		return errors.Ef(errors.KindValidation, "unknown severity %q", rule.Severity)
	}
	if rule.EvaluationWindowMin < 1 {
		return errors.E(errors.KindValidation, "evaluation window must be at least 1 minute")
	}
	if rule.EvaluationFreqMin < 1 {
		return errors.E(errors.KindValidation, "evaluation frequency must be at least 1 minute")
	}
	if rule.ConsecutiveFailures < 1 {
		return errors.E(errors.KindValidation, "consecutive failures required must be at least 1")
	}
	if rule.CooldownMin < 0 {
		return errors.E(errors.KindValidation, "cooldown minutes cannot be negative")
	}
	if rule.MaxAlertsPerHour < 1 {
		return errors.E(errors.KindValidation, "max alerts per hour must be at least 1")
	}
	return nil
}
