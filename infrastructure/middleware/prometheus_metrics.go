// Package middleware provides cross-cutting concerns for the selection
// engine: Prometheus metrics, OpenTelemetry tracing and the decorators that
// attach them to bandit pools and the optimizer.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Giftedx/crew-sub014/internal/ports"
)

// Metric names understood by PrometheusMetrics. Other names fall through to
// the generic operation, state and value vectors.
const (
	MetricSelections        = "selections_total"
	MetricEmptySelections   = "empty_selections_total"
	MetricOutcomes          = "outcomes_total"
	MetricReward            = "reward"
	MetricAverageReward     = "average_reward"
	MetricArms              = "arms"
	MetricOptimizations     = "optimizations_total"
	MetricOptimizationScore = "optimization_score"
	MetricDecisions         = "decisions_total"
	MetricPendingDecisions  = "pending_decisions"
)

// Label keys read from the labels map.
const (
	LabelPool      = "pool"
	LabelArm       = "arm"
	LabelStatus    = "status"
	LabelAlgorithm = "algorithm"
)

const unknownLabel = "unknown"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It provides real-time monitoring of bandit selections, reward
// distributions and optimizer runs for the selection engine.
type PrometheusMetrics struct {
	selections        *prometheus.CounterVec
	outcomes          *prometheus.CounterVec
	rewards           *prometheus.HistogramVec
	optimizations     *prometheus.CounterVec
	optimizationScore *prometheus.HistogramVec
	operationLatency  *prometheus.HistogramVec
	operationCounter  *prometheus.CounterVec
	stateGauges       *prometheus.GaugeVec
	values            *prometheus.HistogramVec
}

// MetricsOption customizes NewPrometheusMetrics.
type MetricsOption func(*metricsOptions)

type metricsOptions struct {
	registerer prometheus.Registerer
	namespace  string
}

// WithRegisterer registers the metrics with reg instead of the global
// default registry.
func WithRegisterer(reg prometheus.Registerer) MetricsOption {
	return func(o *metricsOptions) { o.registerer = reg }
}

// WithNamespace prefixes every metric name.
func WithNamespace(ns string) MetricsOption {
	return func(o *metricsOptions) { o.namespace = ns }
}

// NewPrometheusMetrics creates a new PrometheusMetrics instance and registers
// all required metrics. Registering twice with the same registry panics;
// tests should pass a fresh prometheus.NewRegistry via WithRegisterer.
func NewPrometheusMetrics(opts ...MetricsOption) *PrometheusMetrics {
	o := metricsOptions{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	factory := promauto.With(o.registerer)
	ns := o.namespace

	return &PrometheusMetrics{
		// Selection metrics.
		selections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "bandit_selections_total",
				Help:      "Number of arms chosen by each bandit pool.",
			},
			[]string{LabelPool, LabelArm},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "bandit_outcomes_total",
				Help:      "Outcome reports received, by whether they were applied.",
			},
			[]string{LabelPool, LabelStatus},
		),
		rewards: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "bandit_reward",
				Help:      "Distribution of rewards applied to arms.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{LabelPool},
		),

		// Optimizer metrics.
		optimizations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "optimizer_runs_total",
				Help:      "Optimization runs, by algorithm and feasibility.",
			},
			[]string{LabelAlgorithm, LabelStatus},
		),
		optimizationScore: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "optimizer_score",
				Help:      "Score of the model selected by feasible optimization runs.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{LabelAlgorithm},
		),

		// General execution metrics.
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "selection_operation_duration_seconds",
				Help:      "Execution time of selection engine operations.",
				Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
			},
			[]string{"operation", LabelPool},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Name:      "selection_operations_total",
				Help:      "Total number of other operations performed by the engine.",
			},
			[]string{"operation", LabelPool},
		),
		stateGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: ns,
				Name:      "selection_state",
				Help:      "Current state values such as arm counts and average rewards.",
			},
			[]string{"metric", LabelPool},
		),
		values: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Name:      "selection_values",
				Help:      "Distribution of other recorded values.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"metric", LabelPool},
		),
	}
}

func labelOr(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return unknownLabel
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.operationLatency.WithLabelValues(operation, labelOr(labels, LabelPool)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	pool := labelOr(labels, LabelPool)

	switch metric {
	case MetricSelections:
		pm.selections.WithLabelValues(pool, labelOr(labels, LabelArm)).Add(value)
	case MetricOutcomes:
		pm.outcomes.WithLabelValues(pool, labelOr(labels, LabelStatus)).Add(value)
	case MetricOptimizations:
		pm.optimizations.WithLabelValues(labelOr(labels, LabelAlgorithm), labelOr(labels, LabelStatus)).Add(value)
	default:
		pm.operationCounter.WithLabelValues(metric, pool).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	pm.stateGauges.WithLabelValues(metric, labelOr(labels, LabelPool)).Set(value)
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricReward:
		pm.rewards.WithLabelValues(labelOr(labels, LabelPool)).Observe(value)
	case MetricOptimizationScore:
		pm.optimizationScore.WithLabelValues(labelOr(labels, LabelAlgorithm)).Observe(value)
	default:
		pm.values.WithLabelValues(metric, labelOr(labels, LabelPool)).Observe(value)
	}
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
