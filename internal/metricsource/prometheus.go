package metricsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"

	"github.com/alertwarden/alertwarden/internal/errors"
	"github.com/alertwarden/alertwarden/internal/logger"
)

const defaultScrapeTimeout = 10 * time.Second

// PrometheusSource polls a Prometheus text exposition endpoint and records
// every gauge, counter, and untyped family into a sample buffer. Rules
// target families by their exposition name.
type PrometheusSource struct {
	endpoint string
	interval time.Duration
	client   *http.Client
	buffer   *SampleBuffer
	log      logger.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPrometheusSource creates a scrape source for one endpoint.
func NewPrometheusSource(endpoint string, interval time.Duration, log logger.Logger) *PrometheusSource {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PrometheusSource{
		endpoint: endpoint,
		interval: interval,
		client:   &http.Client{Timeout: defaultScrapeTimeout},
		buffer:   NewSampleBuffer(),
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start begins background scraping. The first scrape happens immediately.
func (s *PrometheusSource) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.scrape()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.scrape()
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts scraping and waits for the poller to exit.
func (s *PrometheusSource) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

// FetchSamples serves a window query from the scrape buffer.
func (s *PrometheusSource) FetchSamples(_ context.Context, metricName string, from, to time.Time) ([]Sample, error) {
	samples, known := s.buffer.Window(metricName, from, to)
	if !known {
		return nil, errors.Wrap(errors.KindSourceUnavailable, "prometheus source", ErrUnknownMetric)
	}
	return samples, nil
}

// scrape fetches the endpoint once and records all parseable families.
// A failed scrape leaves the buffer untouched; the engine sees the stale
// window shrink rather than a fabricated value.
func (s *PrometheusSource) scrape() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultScrapeTimeout)
	defer cancel()

	mfs, err := s.fetch(ctx)
	if err != nil {
		s.log.Warn("prometheus scrape failed",
			logger.String("endpoint", s.endpoint),
			logger.Error(err))
		return
	}

	now := time.Now().UTC()
	for name, mf := range mfs {
		if value, ok := familyValue(mf); ok {
			s.buffer.Record(name, value, now)
		}
	}
}

// fetch performs an HTTP GET and returns parsed metric families.
func (s *PrometheusSource) fetch(ctx context.Context) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseFamilies(resp.Body)
}

// parseFamilies decodes a Prometheus text exposition into metric families.
// A partial result with a non-fatal parse warning is still returned
// successfully.
func parseFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	parser := expfmt.NewTextParser(model.UTF8Validation)
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// familyValue sums a family's gauge, counter, or untyped values across its
// label combinations. Histogram and summary families are skipped.
func familyValue(mf *dto.MetricFamily) (float64, bool) {
	if mf == nil {
		return 0, false
	}
	var sum float64
	var seen bool
	for _, m := range mf.GetMetric() {
		switch {
		case m.GetGauge() != nil:
			sum += m.GetGauge().GetValue()
			seen = true
		case m.GetCounter() != nil:
			sum += m.GetCounter().GetValue()
			seen = true
		case m.GetUntyped() != nil:
			sum += m.GetUntyped().GetValue()
			seen = true
		}
	}
	return sum, seen
}
