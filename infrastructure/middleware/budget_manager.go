package middleware

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Giftedx/crew-sub014/internal/application"
	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

// Budget metric names.
const (
	MetricBudgetSpent     = "budget_spent"
	MetricBudgetRemaining = "budget_remaining"
	MetricBudgetExhausted = "budget_exhausted_total"
)

// Budget defines spend limits for optimizer recommendations.
type Budget struct {
	// MaxSpend limits the total cost reported through UpdatePerformance.
	// Zero means unlimited spend.
	MaxSpend float64

	// MaxTokens limits the cumulative token volume of feasible
	// recommendations. Zero means unlimited tokens.
	MaxTokens int64
}

// Usage is the consumption a BudgetManager has recorded so far.
type Usage struct {
	Spend  float64
	Tokens int64
}

// BudgetManager enforces a spend budget on the optimizer. Each
// recommendation is made with a per-request cost ceiling no larger than the
// remaining budget divided by the request count. Once a limit is exhausted
// only zero-cost models remain feasible.
type BudgetManager struct {
	// base holds the default settings Optimize tightens.
	base domain.OptimizationConfig

	// budget holds the immutable budget limits for this manager.
	budget Budget

	metrics ports.MetricsCollector

	mu    sync.Mutex
	usage Usage
}

// NewBudgetManager creates a BudgetManager for an optimizer whose default
// settings are base. metrics may be nil.
func NewBudgetManager(budget Budget, base domain.OptimizationConfig, metrics ports.MetricsCollector) (*BudgetManager, error) {
	bm := &BudgetManager{base: base, budget: budget, metrics: metrics}
	if err := bm.Validate(); err != nil {
		return nil, err
	}
	return bm, nil
}

// Validate checks that the budget limits are usable.
func (bm *BudgetManager) Validate() error {
	if bm.budget.MaxSpend < 0 || math.IsNaN(bm.budget.MaxSpend) {
		return fmt.Errorf("budget manager: max_spend cannot be negative, got %v: %w",
			bm.budget.MaxSpend, domain.ErrInvalidConfiguration)
	}
	if bm.budget.MaxTokens < 0 {
		return fmt.Errorf("budget manager: max_tokens cannot be negative, got %d: %w",
			bm.budget.MaxTokens, domain.ErrInvalidConfiguration)
	}
	return nil
}

// Usage returns the consumption recorded so far.
func (bm *BudgetManager) Usage() Usage {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.usage
}

// Remaining returns the unspent budget, or +Inf when spend is unlimited.
func (bm *BudgetManager) Remaining() float64 {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.remainingLocked()
}

// Reset clears recorded usage.
func (bm *BudgetManager) Reset() {
	bm.mu.Lock()
	bm.usage = Usage{}
	bm.mu.Unlock()
	bm.recordGauges(Usage{}, bm.Remaining())
}

func (bm *BudgetManager) remainingLocked() float64 {
	if bm.budget.MaxSpend == 0 {
		return math.Inf(1)
	}
	return math.Max(0, bm.budget.MaxSpend-bm.usage.Spend)
}

// Middleware returns an optimizer decorator enforcing this budget. Every
// optimizer it wraps shares the same usage.
func (bm *BudgetManager) Middleware() func(next ports.Optimizer) ports.Optimizer {
	return func(next ports.Optimizer) ports.Optimizer {
		return &budgetedOptimizer{Optimizer: next, manager: bm}
	}
}

// constrain tightens cfg to what the budget still allows for a workload.
// exhausted reports whether a limit has already run out.
func (bm *BudgetManager) constrain(cfg domain.OptimizationConfig, tokens, requests int) (out domain.OptimizationConfig, exhausted bool) {
	bm.mu.Lock()
	remaining := bm.remainingLocked()
	tokensLeft := bm.budget.MaxTokens == 0 || bm.usage.Tokens+int64(max(tokens, 0)) <= bm.budget.MaxTokens
	bm.mu.Unlock()

	if remaining <= 0 || !tokensLeft {
		// A zero ceiling disables the constraint, so use the smallest
		// positive one instead.
		cfg.MaxCostPerRequest = math.SmallestNonzeroFloat64
		return cfg, true
	}
	if math.IsInf(remaining, 1) {
		return cfg, false
	}
	ceiling := remaining / float64(max(requests, 1))
	if cfg.MaxCostPerRequest == 0 || ceiling < cfg.MaxCostPerRequest {
		cfg.MaxCostPerRequest = ceiling
	}
	return cfg, false
}

func (bm *BudgetManager) recordTokens(result domain.OptimizationResult) {
	if !result.Feasible || result.Tokens <= 0 {
		return
	}
	bm.mu.Lock()
	bm.usage.Tokens += int64(result.Tokens)
	bm.mu.Unlock()
}

func (bm *BudgetManager) recordSpend(cost float64) {
	if cost <= 0 || math.IsNaN(cost) || math.IsInf(cost, 0) {
		return
	}
	bm.mu.Lock()
	bm.usage.Spend += cost
	usage, remaining := bm.usage, bm.remainingLocked()
	bm.mu.Unlock()
	bm.recordGauges(usage, remaining)
}

func (bm *BudgetManager) recordGauges(usage Usage, remaining float64) {
	if bm.metrics == nil {
		return
	}
	bm.metrics.RecordGauge(MetricBudgetSpent, usage.Spend, nil)
	if !math.IsInf(remaining, 1) {
		bm.metrics.RecordGauge(MetricBudgetRemaining, remaining, nil)
	}
}

func (bm *BudgetManager) recordExhausted(cfg domain.OptimizationConfig) {
	if bm.metrics == nil {
		return
	}
	bm.metrics.RecordCounter(MetricBudgetExhausted, 1, map[string]string{
		LabelAlgorithm: string(cfg.Algorithm),
	})
}

// budgetedOptimizer routes every optimization through the manager.
type budgetedOptimizer struct {
	ports.Optimizer
	manager *BudgetManager
}

func (b *budgetedOptimizer) Optimize(tokens, requests int) domain.OptimizationResult {
	result, err := b.OptimizeWith(tokens, requests, b.manager.base)
	if err != nil {
		// The base settings are invalid for the wrapped optimizer; fall back
		// to its own defaults unconstrained.
		return b.Optimizer.Optimize(tokens, requests)
	}
	return result
}

func (b *budgetedOptimizer) OptimizeWith(tokens, requests int, cfg domain.OptimizationConfig) (domain.OptimizationResult, error) {
	constrained, exhausted := b.manager.constrain(cfg, tokens, requests)
	if exhausted {
		b.manager.recordExhausted(cfg)
	}
	result, err := b.Optimizer.OptimizeWith(tokens, requests, constrained)
	if err != nil {
		return result, err
	}
	b.manager.recordTokens(result)
	return result, nil
}

func (b *budgetedOptimizer) UpdatePerformance(id string, actualCost, actualQuality float64, actualResponseTime time.Duration) bool {
	if !b.Optimizer.UpdatePerformance(id, actualCost, actualQuality, actualResponseTime) {
		return false
	}
	b.manager.recordSpend(actualCost)
	return true
}

// BudgetFromConfig converts an application.BudgetConfig to a middleware.Budget.
func BudgetFromConfig(config application.BudgetConfig) Budget {
	return Budget{
		MaxSpend:  config.MaxSpend,
		MaxTokens: config.MaxTokens,
	}
}
