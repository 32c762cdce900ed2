// Package alerting provides the alert rule evaluation engine, the alert
// lifecycle state machine, and the delay-gated escalation scheduler.
package alerting

// Condition types define how a rule decides failure.
const (
	ConditionThreshold = "threshold"
)

// Threshold operators define how the reduced window value is compared
// against the rule's threshold.
const (
	OperatorGreaterThan    = "greater_than"
	OperatorLessThan       = "less_than"
	OperatorGreaterOrEqual = "greater_or_equal"
	OperatorLessOrEqual    = "less_or_equal"
	OperatorEqual          = "equal"
)

// Window reducers collapse the samples in the evaluation window to one value.
const (
	ReducerLatest  = "latest"
	ReducerAverage = "average"
	ReducerMax     = "max"
	ReducerMin     = "min"
)

// Severities order alerts for routing and statistics.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Alert statuses. Transitions are monotonic: active may move to
// acknowledged or resolved, acknowledged may move to resolved, and
// resolved is terminal.
const (
	StatusActive       = "active"
	StatusAcknowledged = "acknowledged"
	StatusResolved     = "resolved"
)

// Channel types identify the delivery transport for a notification channel.
const (
	ChannelTypeEmail   = "email"
	ChannelTypeWebhook = "webhook"
	ChannelTypeSlack   = "slack"
)

// SystemActor marks lifecycle transitions performed by the engine rather
// than a human operator.
const SystemActor = "system"
