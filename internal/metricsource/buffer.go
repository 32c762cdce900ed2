package metricsource

import (
	"sync"
	"time"
)

const (
	// maxSamplesPerMetric is the maximum number of samples retained per metric.
	maxSamplesPerMetric = 720
	// maxSampleAge is the maximum age of a sample before eviction.
	maxSampleAge = 2 * time.Hour
)

// SampleBuffer maintains per-metric ring buffers of recent samples. It is
// the in-memory store behind polling sources; the engine only ever asks
// for a bounded trailing window, so nothing older than maxSampleAge is kept.
type SampleBuffer struct {
	buffers map[string][]Sample
	mu      sync.RWMutex
}

// NewSampleBuffer creates an empty sample buffer.
func NewSampleBuffer() *SampleBuffer {
	return &SampleBuffer{
		buffers: make(map[string][]Sample),
	}
}

// Record adds a new sample and evicts stale entries.
func (b *SampleBuffer) Record(metricName string, value float64, timestamp time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	samples := b.buffers[metricName]
	samples = append(samples, Sample{Value: value, Timestamp: timestamp})

	// Evict samples older than maxSampleAge
	cutoff := timestamp.Add(-maxSampleAge)
	start := 0
	for start < len(samples) && samples[start].Timestamp.Before(cutoff) {
		start++
	}
	samples = samples[start:]

	// Cap buffer size
	if len(samples) > maxSamplesPerMetric {
		samples = samples[len(samples)-maxSamplesPerMetric:]
	}

	b.buffers[metricName] = samples
}

// Window returns the samples for a metric within [from, to], oldest first.
// The second return is false when the metric has never been recorded.
func (b *SampleBuffer) Window(metricName string, from, to time.Time) ([]Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	samples, known := b.buffers[metricName]
	if !known {
		return nil, false
	}

	var out []Sample
	for _, s := range samples {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			out = append(out, s)
		}
	}
	return out, true
}

// Metrics lists the metric names the buffer has seen.
func (b *SampleBuffer) Metrics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.buffers))
	for name := range b.buffers {
		names = append(names, name)
	}
	return names
}
