package metricsource

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleBuffer_WindowQuery(t *testing.T) {
	buf := NewSampleBuffer()
	base := time.Now().Add(-10 * time.Minute)

	for i := range 6 {
		buf.Record("cpu", 90+float64(i), base.Add(time.Duration(i)*time.Minute))
	}

	samples, known := buf.Window("cpu", base.Add(2*time.Minute), base.Add(4*time.Minute))
	require.True(t, known)
	require.Len(t, samples, 3)
	assert.InDelta(t, 92.0, samples[0].Value, 0.0001)
	assert.InDelta(t, 94.0, samples[2].Value, 0.0001)
}

func TestSampleBuffer_UnknownMetric(t *testing.T) {
	buf := NewSampleBuffer()
	_, known := buf.Window("memory", time.Now().Add(-time.Hour), time.Now())
	assert.False(t, known)
}

func TestSampleBuffer_KnownMetricEmptyWindow(t *testing.T) {
	buf := NewSampleBuffer()
	buf.Record("cpu", 50, time.Now().Add(-30*time.Minute))

	samples, known := buf.Window("cpu", time.Now().Add(-time.Minute), time.Now())
	assert.True(t, known)
	assert.Empty(t, samples)
}

func TestSampleBuffer_EvictsOldSamples(t *testing.T) {
	buf := NewSampleBuffer()
	now := time.Now()

	buf.Record("cpu", 10, now.Add(-3*time.Hour))
	buf.Record("cpu", 20, now)

	samples, known := buf.Window("cpu", now.Add(-4*time.Hour), now)
	require.True(t, known)
	require.Len(t, samples, 1, "sample older than retention should be evicted")
	assert.InDelta(t, 20.0, samples[0].Value, 0.0001)
}

func TestSampleBuffer_CapsBufferSize(t *testing.T) {
	buf := NewSampleBuffer()
	now := time.Now()

	for i := range maxSamplesPerMetric + 50 {
		buf.Record("cpu", float64(i), now.Add(time.Duration(i)*time.Second))
	}

	samples, known := buf.Window("cpu", now.Add(-time.Hour), now.Add(time.Hour))
	require.True(t, known)
	assert.Len(t, samples, maxSamplesPerMetric)
	assert.InDelta(t, 50.0, samples[0].Value, 0.0001, "oldest samples are dropped first")
}
