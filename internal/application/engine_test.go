package application

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/Giftedx/crew-sub014/internal/bandit"
	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
	"github.com/Giftedx/crew-sub014/internal/testutils"
)

// sampleConfig loads the sample document through a fresh loader. The
// returned config is shared with that loader's cache, so callers that need
// to change it take a copy first.
func sampleConfig(t *testing.T) *EngineConfig {
	t.Helper()
	cfg, err := newLoader(t).LoadFromReader(context.Background(), strings.NewReader(testutils.SampleEngineYAML))
	require.NoError(t, err)
	return cfg
}

func newTestEngine(t *testing.T, cfg *EngineConfig, opts ...EngineOption) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = sampleConfig(t)
	}
	opts = append([]EngineOption{WithLogger(zaptest.NewLogger(t))}, opts...)
	e, err := NewEngine(cfg, opts...)
	require.NoError(t, err)
	return e
}

var success = domain.Outcome{Success: true, Quality: 0.8, Latency: 500 * time.Millisecond, Cost: 0.001}

func TestNewEngine_BuildsPoolsFromConfig(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	assert.Equal(t, []string{"chat", "prompts"}, e.Pools())

	chat, ok := e.Pool("chat")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyPosteriorSampling, chat.Strategy())
	assert.Equal(t, 3, chat.Metrics().Arms)

	prompts, ok := e.Pool("prompts")
	require.True(t, ok)
	assert.Equal(t, domain.StrategyConfidenceBound, prompts.Strategy())
	_, ok = prompts.StatsFor("concise")
	assert.True(t, ok)

	_, ok = e.Pool("missing")
	assert.False(t, ok)

	assert.Len(t, e.Optimizer().Models(), 3)
	assert.Len(t, e.Learner().Ranking(), 2)
}

func TestNewEngine_RejectsInconsistentConfig(t *testing.T) {
	t.Parallel()

	base := sampleConfig(t)

	tests := []struct {
		name  string
		edit  func(c *EngineConfig)
		isErr error
	}{
		{
			name: "arm references unknown model",
			edit: func(c *EngineConfig) {
				c.Bandits = append(slices.Clone(c.Bandits), PoolConfig{
					Name:     "extra",
					Selector: bandit.Config{Strategy: domain.StrategyConfidenceBound},
					Arms:     []ArmConfig{{Model: "Z"}},
				})
			},
			isErr: domain.ErrUnknownID,
		},
		{
			name: "duplicate arm",
			edit: func(c *EngineConfig) {
				c.Bandits = append(slices.Clone(c.Bandits), PoolConfig{
					Name:     "extra",
					Selector: bandit.Config{Strategy: domain.StrategyConfidenceBound},
					Arms:     []ArmConfig{{ID: "x"}, {ID: "x"}},
				})
			},
			isErr: domain.ErrDuplicateID,
		},
		{
			name: "duplicate pool",
			edit: func(c *EngineConfig) {
				c.Bandits = append(slices.Clone(c.Bandits), c.Bandits[1])
			},
			isErr: domain.ErrDuplicateID,
		},
		{
			name: "duplicate provider",
			edit: func(c *EngineConfig) {
				c.Preferences.Providers = append(slices.Clone(c.Preferences.Providers), ProviderConfig{ID: "alpha"})
			},
			isErr: domain.ErrDuplicateID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := *base
			tt.edit(&cfg)
			_, err := NewEngine(&cfg)
			assert.ErrorIs(t, err, tt.isErr)
		})
	}

	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ports.ErrConfigNotFound)
}

func TestEngine_SelectAndReportRoutesOutcome(t *testing.T) {
	t.Parallel()

	observer := testutils.NewRecordingObserver()
	e := newTestEngine(t, nil, WithSampler(bandit.MeanSampler{}), WithObserver(observer))
	ctx := context.Background()

	// Every arm starts at the same posterior mean, so the first one wins.
	decision, err := e.Select(ctx, "chat")
	require.NoError(t, err)
	assert.Equal(t, "chat", decision.Pool)
	assert.Equal(t, "A", decision.CandidateID)
	assert.Equal(t, "alpha", decision.ProviderID)
	assert.Equal(t, domain.StrategyPosteriorSampling, decision.Strategy)
	_, err = uuid.Parse(decision.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, e.PendingDecisions())

	require.True(t, e.Report(ctx, decision.ID, success))
	assert.Equal(t, 0, e.PendingDecisions())

	chat, _ := e.Pool("chat")
	stats, ok := chat.StatsFor("A")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Pulls)
	assert.Equal(t, int64(1), stats.Observations)

	profile, ok := e.Learner().Profile("alpha")
	require.True(t, ok)
	assert.Equal(t, int64(1), profile.TotalRequests)
	assert.Equal(t, int64(1), profile.SuccessfulRequests)

	model, ok := e.Optimizer().Model("A")
	require.True(t, ok)
	assert.Equal(t, int64(1), model.Observations)

	require.Len(t, observer.Decisions(), 1)
	assert.Equal(t, decision, observer.Decisions()[0])
	require.Len(t, observer.Outcomes(), 1)
	assert.True(t, observer.Outcomes()[0].Applied)
}

func TestEngine_ReportIsExactlyOnce(t *testing.T) {
	t.Parallel()

	observer := testutils.NewRecordingObserver()
	e := newTestEngine(t, nil, WithObserver(observer))
	ctx := context.Background()

	decision, err := e.Select(ctx, "chat")
	require.NoError(t, err)

	assert.True(t, e.Report(ctx, decision.ID, success))
	assert.False(t, e.Report(ctx, decision.ID, success))
	assert.False(t, e.Report(ctx, "no-such-decision", success))

	chat, _ := e.Pool("chat")
	assert.Equal(t, int64(1), chat.Metrics().TotalObservations)

	outcomes := observer.Outcomes()
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].Applied)
	assert.False(t, outcomes[1].Applied)
	assert.False(t, outcomes[2].Applied)
}

func TestEngine_FailedOutcomeSkipsOptimizer(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil, WithSampler(bandit.MeanSampler{}))
	ctx := context.Background()

	decision, err := e.Select(ctx, "chat")
	require.NoError(t, err)
	require.True(t, e.Report(ctx, decision.ID, domain.Outcome{Success: false, Quality: 0.9, Latency: time.Second}))

	chat, _ := e.Pool("chat")
	stats, _ := chat.StatsFor(decision.CandidateID)
	assert.Equal(t, int64(1), stats.Observations)
	assert.InDelta(t, 0.0, stats.AverageReward, 1e-12)

	profile, _ := e.Learner().Profile(decision.ProviderID)
	assert.Equal(t, int64(1), profile.TotalRequests)
	assert.Equal(t, int64(0), profile.SuccessfulRequests)

	model, _ := e.Optimizer().Model(decision.CandidateID)
	assert.Equal(t, int64(0), model.Observations)
}

func TestEngine_ReportWithUnusableFeedbackKeepsStateFinite(t *testing.T) {
	t.Parallel()

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), -2} {
		t.Run(fmt.Sprint(bad), func(t *testing.T) {
			t.Parallel()

			e := newTestEngine(t, nil, WithSampler(bandit.MeanSampler{}))
			ctx := context.Background()

			decision, err := e.Select(ctx, "chat")
			require.NoError(t, err)
			require.Equal(t, "A", decision.CandidateID)
			outcome := domain.Outcome{Success: true, Quality: bad, Latency: -time.Second, Cost: bad}
			require.True(t, e.Report(ctx, decision.ID, outcome))

			chat, _ := e.Pool("chat")
			stats, _ := chat.StatsFor("A")
			assert.True(t, stats.AverageReward >= 0 && stats.AverageReward <= 1, "average reward %v", stats.AverageReward)

			e.RecomputePreferences()
			profile, _ := e.Learner().Profile("alpha")
			for _, m := range domain.AllMetrics() {
				assert.True(t, domain.IsFinite(profile.Smoothed[m]), "%s = %v", m, profile.Smoothed[m])
			}
			assert.True(t, profile.PreferenceScore >= 0 && profile.PreferenceScore <= 1)

			model, _ := e.Optimizer().Model("A")
			assert.True(t, domain.IsFinite(model.Rate))
			assert.True(t, domain.IsFinite(model.ExpectedQuality))
			assert.True(t, domain.IsFinite(model.ExpectedResponseTime))

			after := e.Optimize(ctx, 1000, 1)
			require.True(t, after.Feasible)
			assert.True(t, domain.IsFinite(after.Score))
			for _, ev := range after.Evaluations {
				assert.Empty(t, ev.Violations, ev.ModelID)
			}
		})
	}
}

func TestEngine_ArmsWithoutModelOnlyTrainSelector(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	ctx := context.Background()

	// Untried arms have an infinite bound; registration order breaks the tie.
	decision, err := e.Select(ctx, "prompts")
	require.NoError(t, err)
	assert.Equal(t, "concise", decision.CandidateID)
	assert.Empty(t, decision.ProviderID)
	assert.Equal(t, domain.StrategyConfidenceBound, decision.Strategy)

	require.True(t, e.Report(ctx, decision.ID, success))

	prompts, _ := e.Pool("prompts")
	stats, _ := prompts.StatsFor("concise")
	assert.Equal(t, int64(1), stats.Observations)
	for _, p := range e.Learner().Ranking() {
		assert.Zero(t, p.TotalRequests, p.ID)
	}
}

func TestEngine_SelectErrors(t *testing.T) {
	t.Parallel()

	cfg := *sampleConfig(t)
	cfg.Bandits = append(slices.Clone(cfg.Bandits), PoolConfig{
		Name:     "empty",
		Selector: bandit.Config{Strategy: domain.StrategyConfidenceBound},
	})
	e := newTestEngine(t, &cfg)
	ctx := context.Background()

	_, err := e.Select(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrUnknownPool)

	_, err = e.Select(ctx, "empty")
	assert.ErrorIs(t, err, ports.ErrNoCandidates)

	empty, _ := e.Pool("empty")
	assert.Equal(t, int64(1), empty.Metrics().EmptySelections)
	assert.Equal(t, 0, e.PendingDecisions())
}

func TestEngine_PendingDecisionsAreBounded(t *testing.T) {
	t.Parallel()

	cfg := *sampleConfig(t)
	cfg.Decisions = DecisionConfig{Capacity: 2}
	e := newTestEngine(t, &cfg)
	ctx := context.Background()

	var ids []string
	for range 3 {
		d, err := e.Select(ctx, "chat")
		require.NoError(t, err)
		ids = append(ids, d.ID)
	}
	assert.Equal(t, 2, e.PendingDecisions())

	assert.False(t, e.Report(ctx, ids[0], success), "oldest decision is evicted")
	assert.True(t, e.Report(ctx, ids[1], success))
	assert.True(t, e.Report(ctx, ids[2], success))
}

func TestEngine_PendingDecisionsExpire(t *testing.T) {
	t.Parallel()

	cfg := *sampleConfig(t)
	cfg.Decisions = DecisionConfig{Capacity: 10, TTL: 20 * time.Millisecond}
	e := newTestEngine(t, &cfg)
	ctx := context.Background()

	d, err := e.Select(ctx, "chat")
	require.NoError(t, err)
	time.Sleep(60 * time.Millisecond)

	assert.False(t, e.Report(ctx, d.ID, success))
	chat, _ := e.Pool("chat")
	assert.Equal(t, int64(0), chat.Metrics().TotalObservations)
}

func TestEngine_RecommendFollowsReportedOutcomes(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil, WithSampler(bandit.MeanSampler{}))
	ctx := context.Background()

	first, err := e.Select(ctx, "chat")
	require.NoError(t, err)
	require.Equal(t, "A", first.CandidateID)
	require.True(t, e.Report(ctx, first.ID, domain.Outcome{Success: false, Quality: 0.2, Latency: time.Second, Cost: 0.002}))

	// A's posterior mean dropped to 1/3, so B now leads.
	second, err := e.Select(ctx, "chat")
	require.NoError(t, err)
	require.Equal(t, "B", second.CandidateID)
	require.True(t, e.Report(ctx, second.ID, domain.Outcome{Success: true, Quality: 0.9, Latency: time.Second, Cost: 0.002}))

	e.RecomputePreferences()
	best, ok := e.Recommend()
	require.True(t, ok)
	assert.Equal(t, "beta", best)
}

func TestEngine_Optimize(t *testing.T) {
	t.Parallel()

	observer := testutils.NewRecordingObserver()
	var estimated []string
	estimator := testutils.EstimatorFunc(func(text string) int {
		estimated = append(estimated, text)
		return 1000
	})
	e := newTestEngine(t, nil, WithObserver(observer), WithTokenEstimator(estimator))
	ctx := context.Background()

	result := e.Optimize(ctx, 1000, 1)
	require.True(t, result.Feasible)
	assert.Equal(t, "B", result.SelectedID())
	assert.InDelta(t, 0.925, result.Score, 1e-9)

	prompted := e.OptimizePrompt(ctx, "summarize this thread", 1)
	assert.Equal(t, "B", prompted.SelectedID())
	assert.Equal(t, 1000, prompted.Tokens)
	assert.Equal(t, []string{"summarize this thread"}, estimated)

	cfg := testutils.SampleOptimizationConfig()
	cfg.Algorithm = domain.AlgorithmConstraintSatisfaction
	ratio, err := e.OptimizeWith(ctx, 1000, 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, "A", ratio.SelectedID())
	assert.InDelta(t, 700, ratio.Score, 1e-6)

	cfg.Algorithm = "simulated_annealing"
	_, err = e.OptimizeWith(ctx, 1000, 1, cfg)
	assert.Error(t, err)

	assert.Len(t, observer.Optimizations(), 3)
}

type orderedSelector struct {
	ports.Selector
	name  string
	mu    *sync.Mutex
	calls *[]string
}

func (s orderedSelector) Select() (string, bool) {
	s.mu.Lock()
	*s.calls = append(*s.calls, s.name)
	s.mu.Unlock()
	return s.Selector.Select()
}

type countingOptimizer struct {
	ports.Optimizer
	runs *atomic.Int64
}

func (o countingOptimizer) Optimize(tokens, requests int) domain.OptimizationResult {
	o.runs.Add(1)
	return o.Optimizer.Optimize(tokens, requests)
}

func TestEngine_MiddlewareOrder(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		calls   []string
		wrapped []string
		runs    atomic.Int64
	)
	named := func(name string) SelectorMiddleware {
		return func(pool string, next ports.Selector) ports.Selector {
			mu.Lock()
			wrapped = append(wrapped, name+":"+pool)
			mu.Unlock()
			return orderedSelector{Selector: next, name: name, mu: &mu, calls: &calls}
		}
	}
	e := newTestEngine(t, nil,
		WithSelectorMiddleware(named("outer"), named("inner")),
		WithOptimizerMiddleware(func(next ports.Optimizer) ports.Optimizer {
			return countingOptimizer{Optimizer: next, runs: &runs}
		}),
	)

	_, err := e.Select(context.Background(), "chat")
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, calls)
	assert.ElementsMatch(t, []string{"outer:chat", "inner:chat", "outer:prompts", "inner:prompts"}, wrapped)

	e.Optimize(context.Background(), 1000, 1)
	assert.Equal(t, int64(1), runs.Load())
}

func TestEngine_ConcurrentSelectReport(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	const workers, rounds = 8, 100

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			ctx := context.Background()
			for range rounds {
				d, err := e.Select(ctx, "chat")
				if err != nil {
					return err
				}
				e.Report(ctx, d.ID, success)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	chat, _ := e.Pool("chat")
	m := chat.Metrics()
	assert.Equal(t, int64(workers*rounds), m.TotalSelections)
	assert.Equal(t, int64(workers*rounds), m.TotalObservations)
	assert.Equal(t, 0, e.PendingDecisions())

	var requests, observations int64
	for _, p := range e.Learner().Ranking() {
		requests += p.TotalRequests
	}
	for _, model := range e.Optimizer().Models() {
		observations += model.Observations
	}
	assert.Equal(t, int64(workers*rounds), requests)
	assert.Equal(t, int64(workers*rounds), observations)
}

func TestEngine_Snapshot(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, nil)
	ctx := context.Background()
	d, err := e.Select(ctx, "prompts")
	require.NoError(t, err)
	require.True(t, e.Report(ctx, d.ID, success))

	snap := e.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "chat", snap[0].Name)
	assert.Equal(t, domain.StrategyPosteriorSampling, snap[0].Strategy)
	assert.Len(t, snap[0].Arms, 3)

	assert.Equal(t, "prompts", snap[1].Name)
	assert.Equal(t, int64(1), snap[1].Metrics.TotalObservations)
	require.Len(t, snap[1].Arms, 2)
	assert.Equal(t, "concise", snap[1].Arms[0].ID)
}
