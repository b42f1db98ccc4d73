package optimizer

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

func perToken(id string, rate, quality float64) domain.ModelSpecification {
	return domain.ModelSpecification{
		ID:                   id,
		ProviderID:           "p-" + id,
		Name:                 id,
		CostModel:            domain.CostPerToken,
		Rate:                 rate,
		ExpectedQuality:      quality,
		ExpectedResponseTime: 1,
	}
}

func newOptimizer(t *testing.T, cfg Config, models ...domain.ModelSpecification) *Optimizer {
	t.Helper()
	o, err := New(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	for _, m := range models {
		require.NoError(t, o.AddModel(m))
	}
	return o
}

func threeModels(scale float64) []domain.ModelSpecification {
	return []domain.ModelSpecification{
		perToken("A", 0.001*scale, 0.7),
		perToken("B", 0.002*scale, 0.9),
		perToken("C", 0.005*scale, 0.8),
	}
}

func TestOptimizer_WeightedSumPicksBestTradeoff(t *testing.T) {
	t.Parallel()

	cfg := Config{OptimizationConfig: domain.OptimizationConfig{
		Objective:           domain.ObjectiveBalanced,
		Algorithm:           domain.AlgorithmWeightedSum,
		CostWeight:          0.3,
		QualityWeight:       0.7,
		MaxCostPerRequest:   1.0,
		MinQualityThreshold: 0.6,
	}}
	o := newOptimizer(t, cfg, threeModels(1)...)

	result := o.Optimize(1000, 1)
	require.True(t, result.Feasible)
	require.NotNil(t, result.SelectedModel)
	assert.Equal(t, "B", result.SelectedID())
	assert.InDelta(t, 0.002, result.PredictedCost, 1e-12)
	assert.InDelta(t, 0.9, result.PredictedQuality, 1e-12)
	assert.InDelta(t, 0.925, result.Score, 1e-9)
	assert.Equal(t, domain.AlgorithmWeightedSum, result.Algorithm)

	require.Len(t, result.Evaluations, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{
		result.Evaluations[0].ModelID, result.Evaluations[1].ModelID, result.Evaluations[2].ModelID,
	})
	assert.InDelta(t, 0.3, result.Evaluations[0].Score, 1e-9)
	assert.InDelta(t, 0.35, result.Evaluations[2].Score, 1e-9)
}

func TestOptimizer_InfeasibleWhenAllExceedCeiling(t *testing.T) {
	t.Parallel()

	cfg := Config{OptimizationConfig: domain.OptimizationConfig{
		Objective:           domain.ObjectiveBalanced,
		Algorithm:           domain.AlgorithmWeightedSum,
		CostWeight:          0.3,
		QualityWeight:       0.7,
		MaxCostPerRequest:   0.5,
		MinQualityThreshold: 0.6,
	}}
	o := newOptimizer(t, cfg, threeModels(1000)...)

	result := o.Optimize(1000, 1)
	assert.False(t, result.Feasible)
	assert.Nil(t, result.SelectedModel)
	assert.Zero(t, result.Score)
	assert.Empty(t, result.ParetoFront)
	require.Len(t, result.Evaluations, 3, "diagnostics are populated even when infeasible")
	for _, e := range result.Evaluations {
		assert.False(t, e.Feasible)
		assert.Contains(t, e.Violations, domain.ConstraintMaxCost)
	}
}

func TestOptimizer_EmptyCatalog(t *testing.T) {
	t.Parallel()

	o := newOptimizer(t, DefaultConfig())
	result := o.Optimize(100, 0)
	assert.False(t, result.Feasible)
	assert.Nil(t, result.SelectedModel)
	assert.Empty(t, result.Evaluations)
	assert.NotNil(t, result.ParetoFront)
	assert.Equal(t, 1, result.Requests)
}

func TestOptimizer_FeasibilityExcludesViolators(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MinQualityThreshold = 0.75
	cfg.MaxCostPerRequest = 0.004
	o := newOptimizer(t, cfg, threeModels(1)...)

	result := o.Optimize(1000, 1)
	require.True(t, result.Feasible)
	assert.Equal(t, "B", result.SelectedID())

	byID := map[string]domain.ModelEvaluation{}
	for _, e := range result.Evaluations {
		byID[e.ModelID] = e
	}
	assert.Equal(t, []domain.Constraint{domain.ConstraintMinQuality}, byID["A"].Violations)
	assert.Equal(t, []domain.Constraint{domain.ConstraintMaxCost}, byID["C"].Violations)
	assert.Zero(t, byID["A"].Score)
	assert.Len(t, result.ParetoFront, 1)
}

func TestOptimizer_CostCeilingIsPerRequest(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.MaxCostPerRequest = 0.02
	o := newOptimizer(t, cfg, domain.ModelSpecification{
		ID: "flat", ProviderID: "p", CostModel: domain.CostPerRequest, Rate: 0.01, ExpectedQuality: 0.8,
	})

	result := o.Optimize(0, 10)
	require.True(t, result.Feasible)
	assert.InDelta(t, 0.1, result.PredictedCost, 1e-12)
	assert.InDelta(t, 0.01, result.Evaluations[0].CostPerRequest, 1e-12)
}

func TestOptimizer_ZeroWeightsFallBackToEqual(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.CostWeight = 0
	cfg.QualityWeight = 0
	o := newOptimizer(t, cfg, threeModels(1)...)

	result := o.Optimize(1000, 1)
	require.True(t, result.Feasible)
	// A: 0.5*1 + 0.5*0 = 0.5, B: 0.5*0.75 + 0.5*1 = 0.875, C: 0 + 0.25.
	assert.Equal(t, "B", result.SelectedID())
	assert.InDelta(t, 0.875, result.Score, 1e-9)
}

func TestOptimizer_ParetoFront(t *testing.T) {
	t.Parallel()

	models := []domain.ModelSpecification{
		perToken("cheap", 0.001, 0.6),
		perToken("mid", 0.002, 0.8),
		perToken("dominated", 0.003, 0.7),
		perToken("premium", 0.010, 0.95),
		perToken("twin", 0.002, 0.8),
	}

	tests := []struct {
		objective domain.Objective
		weights   [2]float64
		want      string
	}{
		{objective: domain.ObjectiveMinimizeCost, want: "cheap"},
		{objective: domain.ObjectiveMaximizeQuality, want: "premium"},
		{objective: domain.ObjectiveBalanced, want: "mid"},
		{objective: domain.ObjectiveCustomWeighted, weights: [2]float64{0, 1}, want: "premium"},
		{objective: domain.ObjectiveCustomWeighted, weights: [2]float64{1, 0}, want: "cheap"},
	}

	for _, tt := range tests {
		t.Run(string(tt.objective), func(t *testing.T) {
			t.Parallel()

			o := newOptimizer(t, DefaultConfig(), models...)
			result, err := o.OptimizeWith(1000, 1, domain.OptimizationConfig{
				Objective:     tt.objective,
				Algorithm:     domain.AlgorithmParetoFront,
				CostWeight:    tt.weights[0],
				QualityWeight: tt.weights[1],
			})
			require.NoError(t, err)
			require.True(t, result.Feasible)
			assert.Equal(t, tt.want, result.SelectedID())

			ids := make([]string, 0, len(result.ParetoFront))
			for _, m := range result.ParetoFront {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, []string{"cheap", "mid", "twin", "premium"}, ids)
			assert.NotContains(t, ids, "dominated")

			for _, a := range result.ParetoFront {
				for _, b := range result.ParetoFront {
					if a.ID == b.ID {
						continue
					}
					ca, cb := a.Cost(1000, 1), b.Cost(1000, 1)
					qa, qb := a.Quality(nil), b.Quality(nil)
					strictlyBetter := (ca <= cb && qa >= qb) && (ca < cb || qa > qb)
					assert.False(t, strictlyBetter, "%s dominates %s on the front", a.ID, b.ID)
				}
			}
		})
	}
}

func TestOptimizer_ConstraintSatisfactionIgnoresWeights(t *testing.T) {
	t.Parallel()

	o := newOptimizer(t, DefaultConfig(), threeModels(1)...)
	for _, w := range [][2]float64{{1, 0}, {0, 1}, {0.5, 0.5}} {
		result, err := o.OptimizeWith(1000, 1, domain.OptimizationConfig{
			Objective:     domain.ObjectiveCustomWeighted,
			Algorithm:     domain.AlgorithmConstraintSatisfaction,
			CostWeight:    w[0],
			QualityWeight: w[1],
		})
		require.NoError(t, err)
		// Quality per cost: A 700, B 450, C 160.
		assert.Equal(t, "A", result.SelectedID())
		assert.InDelta(t, 700, result.Score, 1e-6)
	}
}

func TestOptimizer_TaskContext(t *testing.T) {
	t.Parallel()

	slow := perToken("slow", 0.001, 0.8)
	slow.ExpectedResponseTime = 4
	fast := perToken("fast", 0.001, 0.78)

	o := newOptimizer(t, DefaultConfig(), slow, fast)
	cfg := domain.DefaultOptimizationConfig()
	cfg.Algorithm = domain.AlgorithmWeightedSum

	result, err := o.OptimizeWith(1000, 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, "slow", result.SelectedID())

	cfg.Context = &domain.TaskContext{TimePressure: 1}
	result, err = o.OptimizeWith(1000, 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, "fast", result.SelectedID())
	assert.InDelta(t, 0.64, result.Evaluations[1].PredictedQuality, 1e-9)
}

func TestOptimizer_OptimizeWithRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	o := newOptimizer(t, DefaultConfig())
	_, err := o.OptimizeWith(10, 1, domain.OptimizationConfig{Objective: "cheapest", Algorithm: "weighted_sum"})
	assert.ErrorIs(t, err, domain.ErrUnknownObjective)

	_, err = o.OptimizeWith(10, 1, domain.OptimizationConfig{Objective: "balanced", Algorithm: "genetic"})
	assert.ErrorIs(t, err, domain.ErrUnknownAlgorithm)

	_, err = o.OptimizeWith(10, 1, domain.OptimizationConfig{Objective: "balanced", Algorithm: "weighted_sum", CostWeight: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	result, err := o.OptimizeWith(10, 1, domain.OptimizationConfig{Objective: "Minimize-Cost", Algorithm: "PARETO_FRONT"})
	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmParetoFront, result.Algorithm)
	assert.Equal(t, domain.ObjectiveMinimizeCost, result.Objective)
}

func TestNew_Config(t *testing.T) {
	t.Parallel()

	_, err := New(Config{OptimizationConfig: domain.OptimizationConfig{Objective: "balanced", Algorithm: "nope"}})
	assert.ErrorIs(t, err, domain.ErrUnknownAlgorithm)

	o, err := New(Config{OptimizationConfig: domain.OptimizationConfig{Objective: "Balanced", Algorithm: "weighted-sum"}})
	require.NoError(t, err)
	assert.Equal(t, DefaultLearningRate, o.Config().LearningRate)
	assert.Equal(t, domain.AlgorithmWeightedSum, o.Config().Algorithm)
}

func TestOptimizer_AddRemoveModel(t *testing.T) {
	t.Parallel()

	o := newOptimizer(t, DefaultConfig())

	m := perToken("m", 0.001, 0.7)
	m.CostModel = "Per-Token"
	require.NoError(t, o.AddModel(m))
	got, ok := o.Model("m")
	require.True(t, ok)
	assert.Equal(t, domain.CostPerToken, got.CostModel)

	assert.ErrorIs(t, o.AddModel(m), domain.ErrDuplicateID)

	bad := perToken("bad", 0.001, 0.7)
	bad.CostModel = "per_minute"
	assert.ErrorIs(t, o.AddModel(bad), domain.ErrUnknownCostModel)

	outOfRange := perToken("oor", 0.001, 1.5)
	assert.ErrorIs(t, o.AddModel(outOfRange), domain.ErrInvalidConfiguration)

	noProvider := perToken("np", 0.001, 0.5)
	noProvider.ProviderID = ""
	assert.ErrorIs(t, o.AddModel(noProvider), domain.ErrInvalidConfiguration)

	assert.True(t, o.RemoveModel("m"))
	assert.False(t, o.RemoveModel("m"))
	assert.Empty(t, o.Models())
}

func TestOptimizer_UpdatePerformance(t *testing.T) {
	t.Parallel()

	flat := domain.ModelSpecification{
		ID: "flat", ProviderID: "p", CostModel: domain.CostPerRequest,
		Rate: 0.02, ExpectedQuality: 0.6, ExpectedResponseTime: 2,
	}
	o := newOptimizer(t, DefaultConfig(), perToken("tok", 0.001, 0.8), flat)

	require.True(t, o.UpdatePerformance("tok", 0.01, 0.4, 3*time.Second))
	tok, _ := o.Model("tok")
	assert.Greater(t, tok.ExpectedQuality, 0.4)
	assert.Less(t, tok.ExpectedQuality, 0.8)
	assert.InDelta(t, 0.76, tok.ExpectedQuality, 1e-12)
	assert.InDelta(t, 1.2, tok.ExpectedResponseTime, 1e-12)
	assert.InDelta(t, 0.001, tok.Rate, 1e-15, "per-token rates are not corrected")
	assert.InDelta(t, 0.01, tok.ObservedCostPerRequest, 1e-12)
	assert.Equal(t, int64(1), tok.Observations)

	require.True(t, o.UpdatePerformance("flat", 0.04, 1.0, time.Second))
	got, _ := o.Model("flat")
	assert.InDelta(t, 0.022, got.Rate, 1e-12)
	assert.InDelta(t, 0.64, got.ExpectedQuality, 1e-12)

	assert.False(t, o.UpdatePerformance("ghost", 0, 1, 0))
}

func TestOptimizer_UpdatePerformanceSkipsUnusableSignals(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cost         float64
		quality      float64
		responseTime time.Duration
	}{
		{name: "nan cost", cost: math.NaN(), quality: 0.9, responseTime: time.Second},
		{name: "positive infinite cost", cost: math.Inf(1), quality: 0.9, responseTime: time.Second},
		{name: "negative infinite cost", cost: math.Inf(-1), quality: 0.9, responseTime: time.Second},
		{name: "negative cost", cost: -1, quality: 0.9, responseTime: time.Second},
		{name: "nan quality", cost: 0.01, quality: math.NaN(), responseTime: time.Second},
		{name: "infinite quality", cost: 0.01, quality: math.Inf(1), responseTime: time.Second},
		{name: "negative response time", cost: 0.01, quality: 0.9, responseTime: -time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			flat := domain.ModelSpecification{
				ID: "a", ProviderID: "p", CostModel: domain.CostPerRequest,
				Rate: 0.01, ExpectedQuality: 0.8, ExpectedResponseTime: 1,
			}
			o := newOptimizer(t, DefaultConfig(), flat)

			require.True(t, o.UpdatePerformance("a", tt.cost, tt.quality, tt.responseTime))
			for range 100 {
				require.True(t, o.UpdatePerformance("a", 0.01, 0.9, time.Second))
			}

			m, ok := o.Model("a")
			require.True(t, ok)
			for name, v := range map[string]float64{
				"rate":                      m.Rate,
				"expected_quality":          m.ExpectedQuality,
				"expected_response_time":    m.ExpectedResponseTime,
				"observed_cost_per_request": m.ObservedCostPerRequest,
			} {
				assert.True(t, domain.IsFinite(v), "%s = %v", name, v)
				assert.GreaterOrEqual(t, v, 0.0, name)
			}
			assert.InDelta(t, 0.01, m.Rate, 1e-9)
			assert.InDelta(t, 0.01, m.ObservedCostPerRequest, 1e-9)
			assert.LessOrEqual(t, m.ExpectedQuality, 1.0)
			assert.Equal(t, int64(101), m.Observations)

			// No ceiling and no quality floor: the only model must stay feasible.
			result := o.Optimize(1000, 1)
			require.True(t, result.Feasible)
			assert.Equal(t, "a", result.SelectedID())
			require.Len(t, result.Evaluations, 1)
			assert.Empty(t, result.Evaluations[0].Violations)
			assert.True(t, domain.IsFinite(result.Score))
		})
	}
}

func TestOptimizer_FirstUsableCostSeedsObservedCost(t *testing.T) {
	t.Parallel()

	o := newOptimizer(t, DefaultConfig(), perToken("tok", 0.001, 0.8))

	require.True(t, o.UpdatePerformance("tok", math.NaN(), 0.8, time.Second))
	m, _ := o.Model("tok")
	assert.Zero(t, m.CostObservations)
	assert.Zero(t, m.ObservedCostPerRequest)

	require.True(t, o.UpdatePerformance("tok", 0.04, 0.8, time.Second))
	m, _ = o.Model("tok")
	assert.Equal(t, int64(1), m.CostObservations)
	assert.InDelta(t, 0.04, m.ObservedCostPerRequest, 1e-12)
}

func TestNew_RejectsNaNLearningRate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.LearningRate = math.NaN()
	o, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultLearningRate, o.Config().LearningRate)
}

func TestOptimizer_ConcurrentUse(t *testing.T) {
	t.Parallel()

	o := newOptimizer(t, DefaultConfig(), threeModels(1)...)
	var g errgroup.Group
	for w := range 6 {
		g.Go(func() error {
			for i := range 50 {
				switch (w + i) % 3 {
				case 0:
					if r := o.Optimize(1000, 1); !r.Feasible {
						return fmt.Errorf("worker %d: unexpected infeasible result", w)
					}
				case 1:
					o.UpdatePerformance("B", 0.002, 0.85, time.Second)
				default:
					_ = o.Models()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	b, _ := o.Model("B")
	assert.Equal(t, int64(100), b.Observations)
}

func TestEvaluate_UnknownObjectiveSelectsNothing(t *testing.T) {
	t.Parallel()

	cfg := domain.DefaultOptimizationConfig()
	cfg.Algorithm = domain.AlgorithmParetoFront
	cfg.Objective = "cheapest"

	result := Evaluate(threeModels(1), 1000, 1, cfg)
	assert.False(t, result.Feasible)
	assert.Nil(t, result.SelectedModel)
	assert.Len(t, result.Evaluations, 3)
	assert.NotEmpty(t, result.ParetoFront)

	_, _, ok := objectiveWeights(cfg)
	assert.False(t, ok)
	for _, obj := range []domain.Objective{
		domain.ObjectiveMinimizeCost, domain.ObjectiveMaximizeQuality,
		domain.ObjectiveBalanced, domain.ObjectiveCustomWeighted,
	} {
		cfg.Objective = obj
		_, _, ok := objectiveWeights(cfg)
		assert.True(t, ok, obj)
	}
}
