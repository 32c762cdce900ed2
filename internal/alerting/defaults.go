package alerting

import (
	"context"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
	"github.com/alertwarden/alertwarden/internal/metricsource"
)

// DefaultRules returns the built-in system metric rules seeded for a new
// team. They can be edited or disabled like any operator-created rule.
func DefaultRules(teamID string) []entities.AlertRule {
	return []entities.AlertRule{
		{
			TeamID:              teamID,
			Name:                "High CPU usage",
			Description:         "CPU usage above 90% across the evaluation window",
			MetricName:          metricsource.MetricCPUUsage,
			ConditionType:       ConditionThreshold,
			ThresholdValue:      90,
			ThresholdOperator:   OperatorGreaterThan,
			WindowReducer:       ReducerAverage,
			EvaluationWindowMin: 5,
			EvaluationFreqMin:   1,
			ConsecutiveFailures: 3,
			Severity:            SeverityHigh,
			CooldownMin:         15,
			MaxAlertsPerHour:    DefaultMaxAlertsPerHour,
			Enabled:             true,
			CreatedBy:           SystemActor,
		},
		{
			TeamID:              teamID,
			Name:                "High memory usage",
			Description:         "Memory usage above 90% across the evaluation window",
			MetricName:          metricsource.MetricMemoryUsage,
			ConditionType:       ConditionThreshold,
			ThresholdValue:      90,
			ThresholdOperator:   OperatorGreaterThan,
			WindowReducer:       ReducerAverage,
			EvaluationWindowMin: 5,
			EvaluationFreqMin:   1,
			ConsecutiveFailures: 3,
			Severity:            SeverityHigh,
			CooldownMin:         15,
			MaxAlertsPerHour:    DefaultMaxAlertsPerHour,
			Enabled:             true,
			CreatedBy:           SystemActor,
		},
		{
			TeamID:              teamID,
			Name:                "Low disk space",
			Description:         "Disk usage above 85%",
			MetricName:          metricsource.MetricDiskUsage,
			ConditionType:       ConditionThreshold,
			ThresholdValue:      85,
			ThresholdOperator:   OperatorGreaterThan,
			WindowReducer:       ReducerLatest,
			EvaluationWindowMin: 10,
			EvaluationFreqMin:   5,
			ConsecutiveFailures: 2,
			Severity:            SeverityMedium,
			CooldownMin:         30,
			MaxAlertsPerHour:    DefaultMaxAlertsPerHour,
			Enabled:             true,
			CreatedBy:           SystemActor,
		},
	}
}

// SeedDefaultRules ensures the team's built-in rules exist. It checks by
// name so partial seeds from previous runs self-heal on restart.
func SeedDefaultRules(ctx context.Context, repo repository.AlertRuleRepository, teamID string, log logger.Logger) error {
	existing, err := repo.ListRules(ctx, repository.AlertRuleFilter{TeamID: teamID})
	if err != nil {
		return err
	}

	existingNames := make(map[string]struct{}, len(existing))
	for i := range existing {
		existingNames[existing[i].Name] = struct{}{}
	}

	defaults := DefaultRules(teamID)
	var created int
	for i := range defaults {
		if _, exists := existingNames[defaults[i].Name]; exists {
			continue
		}
		if err := repo.CreateRule(ctx, &defaults[i]); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		log.Info("seeded default alert rules",
			logger.String("team_id", teamID),
			logger.Int("created", created))
	}
	return nil
}
