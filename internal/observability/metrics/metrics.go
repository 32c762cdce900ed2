// Package metrics exposes Prometheus collectors for the evaluation engine,
// escalation scheduler, and notification dispatcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal counts rule evaluation ticks by result. The result
	// label is one of ok, failing, error, empty.
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertwarden",
		Subsystem: "evaluator",
		Name:      "evaluations_total",
		Help:      "Rule evaluation ticks by result.",
	}, []string{"result"})

	// AlertsOpenedTotal counts alerts opened by severity.
	AlertsOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertwarden",
		Subsystem: "alerts",
		Name:      "opened_total",
		Help:      "Alerts opened by severity.",
	}, []string{"severity"})

	// AlertsSuppressedTotal counts triggering edges suppressed by the
	// cooldown or hourly cap guards.
	AlertsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertwarden",
		Subsystem: "alerts",
		Name:      "suppressed_total",
		Help:      "Triggering edges suppressed by guard, labeled by reason.",
	}, []string{"reason"})

	// AlertsAutoResolvedTotal counts alerts the engine resolved after the
	// condition returned to ok.
	AlertsAutoResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "alertwarden",
		Subsystem: "alerts",
		Name:      "auto_resolved_total",
		Help:      "Alerts auto-resolved by the evaluation engine.",
	})

	// NotificationsTotal counts dispatch outcomes by channel type and status.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alertwarden",
		Subsystem: "dispatcher",
		Name:      "notifications_total",
		Help:      "Notification dispatch outcomes by channel type and status.",
	}, []string{"channel_type", "status"})

	// DispatchDuration observes transport round-trip time per channel type.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "alertwarden",
		Subsystem: "dispatcher",
		Name:      "dispatch_duration_seconds",
		Help:      "Transport round-trip time per channel type.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel_type"})
)
