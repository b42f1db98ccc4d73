package testutils

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

var (
	_ ports.MetricsCollector = (*RecordingCollector)(nil)
	_ ports.DecisionObserver = (*RecordingObserver)(nil)
)

// Sample is one recorded metric call.
type Sample struct {
	Metric string
	Value  float64
	Labels map[string]string
}

// RecordingCollector is an in-memory ports.MetricsCollector.
// It is safe for concurrent use.
type RecordingCollector struct {
	mu         sync.Mutex
	counters   []Sample
	gauges     []Sample
	histograms []Sample
	latencies  []Sample
}

// NewRecordingCollector creates an empty collector.
func NewRecordingCollector() *RecordingCollector { return &RecordingCollector{} }

// RecordLatency implements ports.MetricsCollector. The value is in seconds.
func (c *RecordingCollector) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latencies = append(c.latencies, Sample{Metric: operation, Value: d.Seconds(), Labels: maps.Clone(labels)})
}

// RecordCounter implements ports.MetricsCollector.
func (c *RecordingCollector) RecordCounter(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = append(c.counters, Sample{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// RecordGauge implements ports.MetricsCollector.
func (c *RecordingCollector) RecordGauge(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges = append(c.gauges, Sample{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// RecordHistogram implements ports.MetricsCollector.
func (c *RecordingCollector) RecordHistogram(metric string, value float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms = append(c.histograms, Sample{Metric: metric, Value: value, Labels: maps.Clone(labels)})
}

// CounterTotal sums every increment of metric whose labels include match.
func (c *RecordingCollector) CounterTotal(metric string, match map[string]string) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total float64
	for _, s := range c.counters {
		if s.Metric == metric && labelsMatch(s.Labels, match) {
			total += s.Value
		}
	}
	return total
}

// LastGauge returns the most recent value set for metric with matching labels.
func (c *RecordingCollector) LastGauge(metric string, match map[string]string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.gauges) - 1; i >= 0; i-- {
		s := c.gauges[i]
		if s.Metric == metric && labelsMatch(s.Labels, match) {
			return s.Value, true
		}
	}
	return 0, false
}

// Histogram returns every value observed for metric.
func (c *RecordingCollector) Histogram(metric string) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []float64
	for _, s := range c.histograms {
		if s.Metric == metric {
			out = append(out, s.Value)
		}
	}
	return out
}

// Latencies returns every recorded latency sample for operation.
func (c *RecordingCollector) Latencies(operation string) []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Sample
	for _, s := range c.latencies {
		if s.Metric == operation {
			out = append(out, s)
		}
	}
	return out
}

func labelsMatch(labels, match map[string]string) bool {
	for k, v := range match {
		if labels[k] != v {
			return false
		}
	}
	return true
}

// RecordedOutcome is one OnOutcome call.
type RecordedOutcome struct {
	DecisionID string
	Outcome    domain.Outcome
	Applied    bool
}

// RecordingObserver is an in-memory ports.DecisionObserver.
// It is safe for concurrent use.
type RecordingObserver struct {
	mu            sync.Mutex
	decisions     []domain.Decision
	outcomes      []RecordedOutcome
	optimizations []domain.OptimizationResult
}

// NewRecordingObserver creates an empty observer.
func NewRecordingObserver() *RecordingObserver { return &RecordingObserver{} }

// OnDecision implements ports.DecisionObserver.
func (o *RecordingObserver) OnDecision(_ context.Context, d domain.Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.decisions = append(o.decisions, d)
}

// OnOutcome implements ports.DecisionObserver.
func (o *RecordingObserver) OnOutcome(_ context.Context, id string, outcome domain.Outcome, applied bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, RecordedOutcome{DecisionID: id, Outcome: outcome, Applied: applied})
}

// OnOptimization implements ports.DecisionObserver.
func (o *RecordingObserver) OnOptimization(_ context.Context, result domain.OptimizationResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.optimizations = append(o.optimizations, result)
}

// Decisions returns a copy of the recorded decisions.
func (o *RecordingObserver) Decisions() []domain.Decision {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.Decision(nil), o.decisions...)
}

// Outcomes returns a copy of the recorded outcomes.
func (o *RecordingObserver) Outcomes() []RecordedOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]RecordedOutcome(nil), o.outcomes...)
}

// Optimizations returns a copy of the recorded optimization results.
func (o *RecordingObserver) Optimizations() []domain.OptimizationResult {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.OptimizationResult(nil), o.optimizations...)
}

// EstimatorFunc adapts a function to ports.TokenEstimator.
type EstimatorFunc func(text string) int

// EstimateTokens implements ports.TokenEstimator.
func (f EstimatorFunc) EstimateTokens(text string) int { return f(text) }
