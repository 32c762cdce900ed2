package metricsource

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/alertwarden/alertwarden/internal/errors"
	"github.com/alertwarden/alertwarden/internal/logger"
)

// Metric names exposed by the system source.
const (
	MetricCPUUsage    = "system.cpu_usage"
	MetricMemoryUsage = "system.memory_usage"
	MetricDiskUsage   = "system.disk_usage"
)

// SystemSource polls host CPU, memory, and disk usage into a sample buffer
// and serves window queries from it. All values are percentages.
type SystemSource struct {
	buffer   *SampleBuffer
	interval time.Duration
	diskPath string
	log      logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSystemSource creates a system source polling at the given interval.
// diskPath is the mount point measured for disk usage, "/" when empty.
func NewSystemSource(interval time.Duration, diskPath string, log logger.Logger) *SystemSource {
	if interval <= 0 {
		interval = time.Minute
	}
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemSource{
		buffer:   NewSampleBuffer(),
		interval: interval,
		diskPath: diskPath,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start begins background collection. The first collection happens
// immediately so the buffer is never empty for a full interval.
func (s *SystemSource) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.collect()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.collect()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts collection and waits for the poller to exit.
func (s *SystemSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// FetchSamples serves a window query from the buffer.
func (s *SystemSource) FetchSamples(_ context.Context, metricName string, from, to time.Time) ([]Sample, error) {
	samples, known := s.buffer.Window(metricName, from, to)
	if !known {
		return nil, errors.Wrap(errors.KindSourceUnavailable, "system source", ErrUnknownMetric)
	}
	return samples, nil
}

// collect records one observation of each system metric. A failed probe
// skips that metric for the tick; the others still record.
func (s *SystemSource) collect() {
	now := time.Now().UTC()

	if percents, err := cpu.Percent(0, false); err != nil {
		s.log.Warn("cpu probe failed", logger.Error(err))
	} else if len(percents) > 0 {
		s.buffer.Record(MetricCPUUsage, percents[0], now)
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		s.log.Warn("memory probe failed", logger.Error(err))
	} else {
		s.buffer.Record(MetricMemoryUsage, vm.UsedPercent, now)
	}

	if du, err := disk.Usage(s.diskPath); err != nil {
		s.log.Warn("disk probe failed",
			logger.String("path", s.diskPath),
			logger.Error(err))
	} else {
		s.buffer.Record(MetricDiskUsage, du.UsedPercent, now)
	}
}
