package alerting

import "github.com/alertwarden/alertwarden/internal/metricsource"

// Schema describes the catalog of rule building blocks so management
// clients can render pickers without hardcoding the vocabulary.
type Schema struct {
	ConditionTypes []string         `json:"condition_types"`
	Operators      []OperatorSchema `json:"operators"`
	Reducers       []ReducerSchema  `json:"reducers"`
	Severities     []string         `json:"severities"`
	ChannelTypes   []string         `json:"channel_types"`
	Metrics        []MetricSchema   `json:"metrics"`
}

// OperatorSchema describes a threshold operator for the UI.
type OperatorSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// ReducerSchema describes a window reducer for the UI.
type ReducerSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// MetricSchema describes a built-in metric exposed by the system source.
type MetricSchema struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

// GetSchema returns the rule building catalog.
func GetSchema() Schema {
	return Schema{
		ConditionTypes: []string{ConditionThreshold},
		Operators: []OperatorSchema{
			{Name: OperatorGreaterThan, Label: "greater than"},
			{Name: OperatorLessThan, Label: "less than"},
			{Name: OperatorGreaterOrEqual, Label: "greater or equal"},
			{Name: OperatorLessOrEqual, Label: "less or equal"},
			{Name: OperatorEqual, Label: "equal"},
		},
		Reducers: []ReducerSchema{
			{Name: ReducerLatest, Label: "latest sample"},
			{Name: ReducerAverage, Label: "window average"},
			{Name: ReducerMax, Label: "window maximum"},
			{Name: ReducerMin, Label: "window minimum"},
		},
		Severities:   []string{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical},
		ChannelTypes: []string{ChannelTypeEmail, ChannelTypeWebhook, ChannelTypeSlack},
		Metrics: []MetricSchema{
			{Name: metricsource.MetricCPUUsage, Label: "CPU Usage", Unit: "%"},
			{Name: metricsource.MetricMemoryUsage, Label: "Memory Usage", Unit: "%"},
			{Name: metricsource.MetricDiskUsage, Label: "Disk Usage", Unit: "%"},
		},
	}
}
