package middleware

import (
	"time"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

// Outcome statuses recorded under LabelStatus.
const (
	StatusApplied    = "applied"
	StatusUnknownArm = "unknown_arm"
	StatusFeasible   = "feasible"
	StatusInfeasible = "infeasible"
	StatusInvalid    = "invalid"
)

// meteredSelector records selection counts, rewards and pool state for one
// bandit pool.
type meteredSelector struct {
	ports.Selector
	pool    string
	metrics ports.MetricsCollector
}

// MetricsSelector returns a selector decorator that reports every selection
// and outcome of a pool to metrics. The returned function has the shape of
// a selector middleware: it receives the pool name and the selector to wrap.
func MetricsSelector(metrics ports.MetricsCollector) func(pool string, next ports.Selector) ports.Selector {
	return func(pool string, next ports.Selector) ports.Selector {
		if metrics == nil {
			return next
		}
		return &meteredSelector{Selector: next, pool: pool, metrics: metrics}
	}
}

func (m *meteredSelector) labels() map[string]string {
	return map[string]string{LabelPool: m.pool}
}

// Register records the new arm count on success.
func (m *meteredSelector) Register(id, name string, metadata map[string]string) bool {
	ok := m.Selector.Register(id, name, metadata)
	if ok {
		m.recordArms()
	}
	return ok
}

// Select times the selection and counts the chosen arm, or an empty
// selection when the pool has no arms.
func (m *meteredSelector) Select() (string, bool) {
	start := time.Now()
	id, ok := m.Selector.Select()
	m.metrics.RecordLatency("select", time.Since(start), m.labels())
	if !ok {
		m.metrics.RecordCounter(MetricEmptySelections, 1, m.labels())
		return id, ok
	}
	m.metrics.RecordCounter(MetricSelections, 1, map[string]string{LabelPool: m.pool, LabelArm: id})
	return id, ok
}

// ReportOutcome delegates, then records whether the outcome applied.
func (m *meteredSelector) ReportOutcome(id string, reward float64) bool {
	return m.recordOutcome(m.Selector.ReportOutcome(id, reward), reward)
}

// ReportOutcomeKind is ReportOutcome with an explicit reward kind.
func (m *meteredSelector) ReportOutcomeKind(id string, reward float64, kind domain.RewardKind) bool {
	return m.recordOutcome(m.Selector.ReportOutcomeKind(id, reward, kind), reward)
}

func (m *meteredSelector) recordOutcome(applied bool, reward float64) bool {
	status := StatusApplied
	if !applied {
		status = StatusUnknownArm
	}
	m.metrics.RecordCounter(MetricOutcomes, 1, map[string]string{LabelPool: m.pool, LabelStatus: status})
	if applied {
		m.metrics.RecordHistogram(MetricReward, domain.Clamp01(reward), m.labels())
		m.metrics.RecordGauge(MetricAverageReward, m.Selector.Metrics().AverageReward(), m.labels())
	}
	return applied
}

// Remove records the new arm count on success.
func (m *meteredSelector) Remove(id string) bool {
	ok := m.Selector.Remove(id)
	if ok {
		m.recordArms()
	}
	return ok
}

// ResetAll clears the pool and republishes its average reward.
func (m *meteredSelector) ResetAll() {
	m.Selector.ResetAll()
	m.metrics.RecordGauge(MetricAverageReward, m.Selector.Metrics().AverageReward(), m.labels())
}

func (m *meteredSelector) recordArms() {
	m.metrics.RecordGauge(MetricArms, float64(m.Selector.Metrics().Arms), m.labels())
}

// meteredOptimizer records run counts, latency and selected scores.
type meteredOptimizer struct {
	ports.Optimizer
	metrics ports.MetricsCollector
}

// MetricsOptimizer returns an optimizer decorator reporting every run and
// performance update to metrics.
func MetricsOptimizer(metrics ports.MetricsCollector) func(next ports.Optimizer) ports.Optimizer {
	return func(next ports.Optimizer) ports.Optimizer {
		if metrics == nil {
			return next
		}
		return &meteredOptimizer{Optimizer: next, metrics: metrics}
	}
}

// Optimize records the run.
func (m *meteredOptimizer) Optimize(tokens, requests int) domain.OptimizationResult {
	start := time.Now()
	result := m.Optimizer.Optimize(tokens, requests)
	m.record(result, time.Since(start))
	return result
}

// OptimizeWith records the run, or an invalid run when cfg is rejected.
func (m *meteredOptimizer) OptimizeWith(tokens, requests int, cfg domain.OptimizationConfig) (domain.OptimizationResult, error) {
	start := time.Now()
	result, err := m.Optimizer.OptimizeWith(tokens, requests, cfg)
	if err != nil {
		m.metrics.RecordCounter(MetricOptimizations, 1, map[string]string{
			LabelAlgorithm: string(cfg.Algorithm),
			LabelStatus:    StatusInvalid,
		})
		return result, err
	}
	m.record(result, time.Since(start))
	return result, nil
}

// UpdatePerformance counts updates by whether the model was known.
func (m *meteredOptimizer) UpdatePerformance(id string, cost, quality float64, responseTime time.Duration) bool {
	ok := m.Optimizer.UpdatePerformance(id, cost, quality, responseTime)
	status := StatusApplied
	if !ok {
		status = StatusUnknownArm
	}
	m.metrics.RecordCounter("performance_updates_total", 1, map[string]string{LabelStatus: status})
	return ok
}

func (m *meteredOptimizer) record(result domain.OptimizationResult, elapsed time.Duration) {
	algorithm := string(result.Algorithm)
	m.metrics.RecordLatency("optimize", elapsed, map[string]string{LabelAlgorithm: algorithm})

	status := StatusInfeasible
	if result.Feasible {
		status = StatusFeasible
		m.metrics.RecordHistogram(MetricOptimizationScore, result.Score, map[string]string{LabelAlgorithm: algorithm})
	}
	m.metrics.RecordCounter(MetricOptimizations, 1, map[string]string{LabelAlgorithm: algorithm, LabelStatus: status})
}
