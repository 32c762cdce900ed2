// Package metricsource defines the metric sample feed consumed by the
// evaluation engine, plus the built-in sources that implement it.
package metricsource

import (
	"context"
	"time"

	"github.com/alertwarden/alertwarden/internal/errors"
)

// Sample is a single metric observation.
type Sample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricSource supplies recent samples for a named metric. Implementations
// return errors of kind source_unavailable when the backing feed cannot be
// reached; callers treat that as "unknown", not as a passing or failing
// observation.
type MetricSource interface {
	FetchSamples(ctx context.Context, metricName string, from, to time.Time) ([]Sample, error)
}

// ErrUnknownMetric is returned when a source does not track the requested
// metric name.
var ErrUnknownMetric = errors.E(errors.KindSourceUnavailable, "unknown metric name")
