package alerting

import (
	"math"

	"github.com/alertwarden/alertwarden/internal/metricsource"
)

// ReduceWindow collapses the samples in an evaluation window to a single
// value using the named reducer. The second return is false when the window
// holds no samples; an empty window never counts as a failing observation.
// Samples are assumed ordered oldest first, as sources return them.
func ReduceWindow(samples []metricsource.Sample, reducer string) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}
	switch reducer {
	case ReducerAverage:
		sum := 0.0
		for i := range samples {
			sum += samples[i].Value
		}
		return sum / float64(len(samples)), true
	case ReducerMax:
		maxVal := samples[0].Value
		for i := range samples[1:] {
			maxVal = math.Max(maxVal, samples[i+1].Value)
		}
		return maxVal, true
	case ReducerMin:
		minVal := samples[0].Value
		for i := range samples[1:] {
			minVal = math.Min(minVal, samples[i+1].Value)
		}
		return minVal, true
	default:
		// ReducerLatest, and the fallback for unrecognized reducers.
		return samples[len(samples)-1].Value, true
	}
}

// CompareThreshold applies a threshold operator to a reduced value.
// Returns true when the condition is failing (the alert condition holds).
// Unknown operators never fail, so a bad rule cannot page anyone.
func CompareThreshold(value float64, operator string, threshold float64) bool {
	switch operator {
	case OperatorGreaterThan:
		return value > threshold
	case OperatorLessThan:
		return value < threshold
	case OperatorGreaterOrEqual:
		return value >= threshold
	case OperatorLessOrEqual:
		return value <= threshold
	case OperatorEqual:
		return value == threshold
	default:
		return false
	}
}
