package alerting

import (
	"context"
	"sync"
	"time"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
	"github.com/alertwarden/alertwarden/internal/metricsource"
	"github.com/alertwarden/alertwarden/internal/observability/metrics"
)

// Evaluation tick results, used for logging and metric labels.
const (
	tickResultOK      = "ok"
	tickResultFailing = "failing"
	tickResultError   = "error"
	tickResultEmpty   = "empty"
)

// EngineConfig bounds the evaluation engine's external calls.
type EngineConfig struct {
	// FetchTimeout caps a single metric source fetch. A hung fetch is an
	// evaluation error for that tick, never a stall for other rules.
	FetchTimeout time.Duration
	// MinFrequency floors a rule's evaluation cadence so a misconfigured
	// rule cannot spin the worker.
	MinFrequency time.Duration
}

// ruleWorker holds the per-rule evaluation state. The mutex serializes
// overlapping ticks for the same rule; ticks for different rules never
// share a lock.
type ruleWorker struct {
	mu     sync.Mutex
	rule   entities.AlertRule
	streak int
	stopCh chan struct{}
}

// Engine schedules one periodic evaluation task per enabled rule. Each
// worker independently ticks at the rule's evaluation frequency, pulls the
// recent sample window from the metric source, and drives the alert
// lifecycle through the lifecycle service. The engine never writes alert
// rows itself.
type Engine struct {
	rules     repository.AlertRuleRepository
	alerts    repository.AlertRepository
	lifecycle *LifecycleService
	source    metricsource.MetricSource
	clock     Clock
	cfg       EngineConfig
	log       logger.Logger

	mu      sync.Mutex
	workers map[uint]*ruleWorker
	wg      sync.WaitGroup
	stopped bool
}

// NewEngine creates an evaluation engine. A nil clock falls back to wall
// time.
func NewEngine(rules repository.AlertRuleRepository, alerts repository.AlertRepository, lifecycle *LifecycleService, source metricsource.MetricSource, clock Clock, cfg EngineConfig, log logger.Logger) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.MinFrequency <= 0 {
		cfg.MinFrequency = time.Minute
	}
	return &Engine{
		rules:     rules,
		alerts:    alerts,
		lifecycle: lifecycle,
		source:    source,
		clock:     clock,
		cfg:       cfg,
		log:       log,
		workers:   make(map[uint]*ruleWorker),
	}
}

// Start loads enabled rules and spawns their workers.
func (e *Engine) Start(ctx context.Context) error {
	return e.Reload(ctx)
}

// Reload re-reads enabled rules and reconciles the worker set: new rules
// get workers, removed or disabled rules lose theirs, and changed rules
// restart with a fresh streak. Call on startup and after rule mutations.
func (e *Engine) Reload(ctx context.Context) error {
	rules, err := e.rules.GetEnabledRules(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}

	seen := make(map[uint]struct{}, len(rules))
	for i := range rules {
		rule := rules[i]
		seen[rule.ID] = struct{}{}
		if w, ok := e.workers[rule.ID]; ok {
			if w.rule.UpdatedAt.Equal(rule.UpdatedAt) {
				continue
			}
			close(w.stopCh)
			delete(e.workers, rule.ID)
		}
		e.startWorkerLocked(rule)
	}
	for id, w := range e.workers {
		if _, ok := seen[id]; !ok {
			close(w.stopCh)
			delete(e.workers, id)
		}
	}

	e.log.Info("evaluation workers reconciled", logger.Int("rules", len(rules)))
	return nil
}

// Stop halts all workers and waits for in-flight ticks to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	for id, w := range e.workers {
		close(w.stopCh)
		delete(e.workers, id)
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// startWorkerLocked spawns a worker for one rule. Caller holds e.mu.
func (e *Engine) startWorkerLocked(rule entities.AlertRule) {
	w := &ruleWorker{
		rule:   rule,
		stopCh: make(chan struct{}),
	}
	e.workers[rule.ID] = w
	e.wg.Add(1)
	go e.runWorker(w)
}

// runWorker ticks one rule at its configured frequency until stopped.
func (e *Engine) runWorker(w *ruleWorker) {
	defer e.wg.Done()

	freq := time.Duration(w.rule.EvaluationFreqMin) * time.Minute
	if freq < e.cfg.MinFrequency {
		freq = e.cfg.MinFrequency
	}
	ticker := time.NewTicker(freq)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.evaluateTick(context.Background(), w)
		case <-w.stopCh:
			return
		}
	}
}

// evaluateTick runs one evaluation of one rule. The worker mutex makes a
// slow tick and the next scheduled tick serialize, so at most one alert
// can open per triggering edge.
func (e *Engine) evaluateTick(ctx context.Context, w *ruleWorker) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rule := &w.rule
	now := e.clock.Now().UTC()

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
	samples, err := e.source.FetchSamples(fetchCtx, rule.MetricName, now.Add(-time.Duration(rule.EvaluationWindowMin)*time.Minute), now)
	cancel()
	if err != nil {
		// Source unreachable means unknown, not ok. The streak is left
		// untouched and the next scheduled tick retries.
		metrics.EvaluationsTotal.WithLabelValues(tickResultError).Inc()
		e.log.Warn("evaluation_error",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.String("metric", rule.MetricName),
			logger.Error(err))
		return
	}

	value, ok := ReduceWindow(samples, rule.WindowReducer)
	if !ok {
		metrics.EvaluationsTotal.WithLabelValues(tickResultEmpty).Inc()
		e.log.Debug("evaluation window empty",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.String("metric", rule.MetricName))
		return
	}

	if !CompareThreshold(value, rule.ThresholdOperator, rule.ThresholdValue) {
		metrics.EvaluationsTotal.WithLabelValues(tickResultOK).Inc()
		w.streak = 0
		if resolved, err := e.lifecycle.AutoResolve(ctx, rule.ID); err != nil {
			e.log.Error("auto-resolve failed",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.Error(err))
		} else if resolved != nil {
			metrics.AlertsAutoResolvedTotal.Inc()
		}
		return
	}

	metrics.EvaluationsTotal.WithLabelValues(tickResultFailing).Inc()
	w.streak++
	if w.streak != rule.ConsecutiveFailures {
		// Below the debounce threshold, or past the triggering edge
		// while the rule stays in alert. A suppressed edge re-triggers
		// only after an ok tick resets the streak.
		return
	}

	e.openOnTriggeringEdge(ctx, rule, value, now)
}

// openOnTriggeringEdge applies the cooldown and hourly cap guards, then
// opens an alert. Called on the tick where the streak reaches the rule's
// consecutive failure requirement.
func (e *Engine) openOnTriggeringEdge(ctx context.Context, rule *entities.AlertRule, value float64, now time.Time) {
	open, err := e.lifecycle.OpenAlertForRule(ctx, rule.ID)
	if err != nil {
		e.log.Error("open-alert lookup failed",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
		return
	}
	if open != nil {
		// Already in alert, likely a restart rebuilt the streak.
		return
	}

	if rule.CooldownMin > 0 {
		last, err := e.alerts.LastTriggeredAt(ctx, rule.ID)
		if err != nil {
			e.log.Error("cooldown lookup failed",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.Error(err))
			return
		}
		if last != nil && now.Sub(*last) < time.Duration(rule.CooldownMin)*time.Minute {
			metrics.AlertsSuppressedTotal.WithLabelValues("cooldown").Inc()
			e.log.Info("alert suppressed by cooldown",
				logger.Uint64("rule_id", uint64(rule.ID)),
				logger.Time("last_triggered", *last))
			return
		}
	}

	count, err := e.alerts.CountTriggeredSince(ctx, rule.ID, now.Add(-time.Hour))
	if err != nil {
		e.log.Error("hourly cap lookup failed",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
		return
	}
	if count >= int64(rule.MaxAlertsPerHour) {
		metrics.AlertsSuppressedTotal.WithLabelValues("hourly_cap").Inc()
		e.log.Info("alert suppressed by hourly cap",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Int64("triggered_last_hour", count))
		return
	}

	alert, err := e.lifecycle.Open(ctx, rule, value)
	if err != nil {
		e.log.Error("failed to open alert",
			logger.Uint64("rule_id", uint64(rule.ID)),
			logger.Error(err))
		return
	}
	metrics.AlertsOpenedTotal.WithLabelValues(alert.Severity).Inc()
}
