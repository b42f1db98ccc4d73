package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/Giftedx/crew-sub014/infrastructure/tokens"
	"github.com/Giftedx/crew-sub014/internal/bandit"
	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/optimizer"
	"github.com/Giftedx/crew-sub014/internal/ports"
	"github.com/Giftedx/crew-sub014/internal/preference"
)

// SelectorMiddleware decorates a pool's selector, for example with metrics
// or tracing.
type SelectorMiddleware func(pool string, next ports.Selector) ports.Selector

// OptimizerMiddleware decorates the optimizer.
type OptimizerMiddleware func(next ports.Optimizer) ports.Optimizer

// EngineOption customizes an Engine at construction.
type EngineOption func(*engineOptions)

type engineOptions struct {
	logger              *zap.Logger
	observer            ports.DecisionObserver
	estimator           ports.TokenEstimator
	sampler             bandit.Sampler
	selectorMiddleware  []SelectorMiddleware
	optimizerMiddleware []OptimizerMiddleware
}

// WithLogger sets the engine logger; component loggers are named children.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(o *engineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver installs a decision observer.
func WithObserver(observer ports.DecisionObserver) EngineOption {
	return func(o *engineOptions) {
		if observer != nil {
			o.observer = observer
		}
	}
}

// WithTokenEstimator replaces the estimator used by OptimizePrompt.
func WithTokenEstimator(est ports.TokenEstimator) EngineOption {
	return func(o *engineOptions) {
		if est != nil {
			o.estimator = est
		}
	}
}

// WithSampler replaces the Beta sampler of every posterior-sampling pool.
func WithSampler(s bandit.Sampler) EngineOption {
	return func(o *engineOptions) {
		if s != nil {
			o.sampler = s
		}
	}
}

// WithSelectorMiddleware appends selector decorators. The first one
// registered is the outermost.
func WithSelectorMiddleware(mw ...SelectorMiddleware) EngineOption {
	return func(o *engineOptions) { o.selectorMiddleware = append(o.selectorMiddleware, mw...) }
}

// WithOptimizerMiddleware appends optimizer decorators. The first one
// registered is the outermost.
func WithOptimizerMiddleware(mw ...OptimizerMiddleware) EngineOption {
	return func(o *engineOptions) { o.optimizerMiddleware = append(o.optimizerMiddleware, mw...) }
}

type noopObserver struct{}

func (noopObserver) OnDecision(context.Context, domain.Decision) {}

func (noopObserver) OnOutcome(context.Context, string, domain.Outcome, bool) {}

func (noopObserver) OnOptimization(context.Context, domain.OptimizationResult, time.Duration) {}

// poolArm is what the engine remembers about an arm beyond the selector.
type poolArm struct {
	model    string
	provider string
}

type pool struct {
	name     string
	selector ports.Selector
	arms     map[string]poolArm
}

// Engine composes the bandit pools, the preference learner and the
// optimizer built from one EngineConfig. The three components keep
// disjoint state; the engine only routes ids and outcomes between them.
// Construct one per process with NewEngine and pass it to callers.
type Engine struct {
	pools     map[string]*pool
	poolNames []string
	learner   *preference.Learner
	optimizer ports.Optimizer
	estimator ports.TokenEstimator
	pending   *expirable.LRU[string, domain.Decision]
	observer  ports.DecisionObserver
	logger    *zap.Logger
}

// NewEngine builds an engine from a validated configuration.
func NewEngine(cfg *EngineConfig, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine config: %w", ports.ErrConfigNotFound)
	}
	o := engineOptions{
		logger:   zap.NewNop(),
		observer: noopObserver{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.estimator == nil {
		est, err := tokens.NewCachingEstimator(tokens.NewCharacterEstimator(tokens.DefaultCharactersPerToken), tokens.DefaultCacheSize)
		if err != nil {
			return nil, fmt.Errorf("token estimator: %w", err)
		}
		o.estimator = est
	}

	opt, err := optimizer.New(cfg.Optimizer, optimizer.WithLogger(o.logger.Named("optimizer")))
	if err != nil {
		return nil, err
	}
	for _, m := range cfg.Catalog {
		if err := opt.AddModel(m); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
	}
	var optPort ports.Optimizer = opt
	for i := len(o.optimizerMiddleware) - 1; i >= 0; i-- {
		optPort = o.optimizerMiddleware[i](optPort)
	}

	learner := preference.NewLearner(cfg.Preferences.Learner, preference.WithLogger(o.logger.Named("preference")))
	for _, p := range cfg.Preferences.Providers {
		if !learner.Register(p.ID, p.Name, p.Metadata) {
			return nil, fmt.Errorf("provider %q: %w", p.ID, domain.ErrDuplicateID)
		}
	}

	decisions := cfg.Decisions.withDefaults()
	e := &Engine{
		pools:     make(map[string]*pool, len(cfg.Bandits)),
		learner:   learner,
		optimizer: optPort,
		estimator: o.estimator,
		pending:   expirable.NewLRU[string, domain.Decision](decisions.Capacity, nil, decisions.TTL),
		observer:  o.observer,
		logger:    o.logger,
	}

	for _, pc := range cfg.Bandits {
		p, err := e.buildPool(pc, cfg.Catalog, o)
		if err != nil {
			return nil, err
		}
		e.pools[pc.Name] = p
		e.poolNames = append(e.poolNames, pc.Name)
	}

	e.logger.Info("engine ready",
		zap.String("name", cfg.Metadata.Name),
		zap.Strings("pools", e.poolNames),
		zap.Int("models", len(cfg.Catalog)),
		zap.Int("providers", len(cfg.Preferences.Providers)),
	)
	return e, nil
}

func (e *Engine) buildPool(pc PoolConfig, catalog []domain.ModelSpecification, o engineOptions) (*pool, error) {
	if _, dup := e.pools[pc.Name]; dup {
		return nil, fmt.Errorf("pool %q: %w", pc.Name, domain.ErrDuplicateID)
	}
	bopts := []bandit.Option{bandit.WithLogger(o.logger.Named("bandit").With(zap.String("pool", pc.Name)))}
	if o.sampler != nil {
		bopts = append(bopts, bandit.WithSampler(o.sampler))
	}
	sel, err := bandit.New(pc.Selector, bopts...)
	if err != nil {
		return nil, fmt.Errorf("pool %q: %w", pc.Name, err)
	}
	for i := len(o.selectorMiddleware) - 1; i >= 0; i-- {
		sel = o.selectorMiddleware[i](pc.Name, sel)
	}

	models := make(map[string]domain.ModelSpecification, len(catalog))
	for _, m := range catalog {
		models[m.ID] = m
	}

	p := &pool{name: pc.Name, selector: sel, arms: make(map[string]poolArm)}
	register := func(id, name string, metadata map[string]string, model string) error {
		arm := poolArm{}
		if model != "" {
			spec, ok := models[model]
			if !ok {
				return fmt.Errorf("pool %q: arm %q: model %q: %w", pc.Name, id, model, domain.ErrUnknownID)
			}
			arm = poolArm{model: spec.ID, provider: spec.ProviderID}
		}
		if !sel.Register(id, name, metadata) {
			return fmt.Errorf("pool %q: arm %q: %w", pc.Name, id, domain.ErrDuplicateID)
		}
		p.arms[id] = arm
		return nil
	}
	for _, a := range pc.Arms {
		if err := register(a.armID(), a.Name, a.Metadata, a.Model); err != nil {
			return nil, err
		}
	}
	if pc.FromCatalog {
		for _, m := range catalog {
			if err := register(m.ID, m.Name, m.Metadata, m.ID); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Pools returns the configured pool names in declaration order.
func (e *Engine) Pools() []string { return append([]string(nil), e.poolNames...) }

// Pool returns a pool's selector.
func (e *Engine) Pool(name string) (ports.Selector, bool) {
	p, ok := e.pools[name]
	if !ok {
		return nil, false
	}
	return p.selector, true
}

// Learner returns the preference learner.
func (e *Engine) Learner() *preference.Learner { return e.learner }

// Optimizer returns the optimizer, including any middleware.
func (e *Engine) Optimizer() ports.Optimizer { return e.optimizer }

// PendingDecisions reports how many decisions await an outcome.
func (e *Engine) PendingDecisions() int { return e.pending.Len() }

// Select asks a pool for a candidate and records the decision so its
// outcome can be reported later. It fails with ports.ErrUnknownPool for an
// unconfigured pool and ports.ErrNoCandidates for an empty one.
func (e *Engine) Select(ctx context.Context, poolName string) (domain.Decision, error) {
	p, ok := e.pools[poolName]
	if !ok {
		return domain.Decision{}, fmt.Errorf("pool %q: %w", poolName, ports.ErrUnknownPool)
	}
	id, ok := p.selector.Select()
	if !ok {
		return domain.Decision{}, fmt.Errorf("pool %q: %w", poolName, ports.ErrNoCandidates)
	}

	decision := domain.Decision{
		ID:          uuid.NewString(),
		Pool:        poolName,
		CandidateID: id,
		ProviderID:  p.arms[id].provider,
		Strategy:    p.selector.Strategy(),
		CreatedAt:   time.Now(),
	}
	e.pending.Add(decision.ID, decision)
	e.observer.OnDecision(ctx, decision)
	return decision, nil
}

// Report applies the outcome of a decision exactly once. The reward goes
// to the pool that decided; catalog-backed arms also update the preference
// learner and the optimizer. It returns false when the decision id is
// unknown, already reported or expired.
func (e *Engine) Report(ctx context.Context, decisionID string, outcome domain.Outcome) bool {
	decision, ok := e.pending.Get(decisionID)
	if ok {
		// Remove reports whether this caller won the race for the entry.
		ok = e.pending.Remove(decisionID)
	}
	if !ok {
		e.logger.Debug("outcome for unknown decision", zap.String("decision", decisionID))
		e.observer.OnOutcome(ctx, decisionID, outcome, false)
		return false
	}

	p := e.pools[decision.Pool]
	applied := p.selector.ReportOutcome(decision.CandidateID, outcome.Reward())
	if arm, ok := p.arms[decision.CandidateID]; ok && arm.model != "" {
		e.learner.ReportRequest(arm.provider, outcome.Success, outcome.Latency, outcome.Cost, outcome.Quality)
		if outcome.Success {
			e.optimizer.UpdatePerformance(arm.model, outcome.Cost, outcome.Quality, outcome.Latency)
		}
	}
	e.observer.OnOutcome(ctx, decisionID, outcome, applied)
	return applied
}

// Optimize runs the optimizer with its default configuration.
func (e *Engine) Optimize(ctx context.Context, tokens, requests int) domain.OptimizationResult {
	start := time.Now()
	result := e.optimizer.Optimize(tokens, requests)
	e.observer.OnOptimization(ctx, result, time.Since(start))
	return result
}

// OptimizeWith runs the optimizer with an explicit configuration.
func (e *Engine) OptimizeWith(ctx context.Context, tokens, requests int, cfg domain.OptimizationConfig) (domain.OptimizationResult, error) {
	start := time.Now()
	result, err := e.optimizer.OptimizeWith(tokens, requests, cfg)
	if err != nil {
		return result, err
	}
	e.observer.OnOptimization(ctx, result, time.Since(start))
	return result, nil
}

// EstimateTokens estimates the token volume of text with the engine's
// estimator.
func (e *Engine) EstimateTokens(text string) int { return e.estimator.EstimateTokens(text) }

// OptimizePrompt estimates the prompt's token volume and optimizes for it.
func (e *Engine) OptimizePrompt(ctx context.Context, prompt string, requests int) domain.OptimizationResult {
	return e.Optimize(ctx, e.EstimateTokens(prompt), requests)
}

// RecomputePreferences refreshes provider scores.
func (e *Engine) RecomputePreferences() { e.learner.RecomputePreferences() }

// Recommend returns the top-ranked provider.
func (e *Engine) Recommend() (string, bool) { return e.learner.Recommend() }

// PoolSnapshot summarizes one pool for reporting.
type PoolSnapshot struct {
	Name     string
	Strategy domain.Strategy
	Metrics  domain.BanditMetrics
	Arms     []domain.ArmStats
}

// Snapshot returns every pool's metrics and ranked arms, ordered by name.
func (e *Engine) Snapshot() []PoolSnapshot {
	out := make([]PoolSnapshot, 0, len(e.pools))
	for _, name := range e.poolNames {
		p := e.pools[name]
		out = append(out, PoolSnapshot{
			Name:     name,
			Strategy: p.selector.Strategy(),
			Metrics:  p.selector.Metrics(),
			Arms:     p.selector.BestCandidates(0),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
