package bandit

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

var _ ports.Selector = (*PosteriorSamplingBandit)(nil)

// PosteriorSamplingBandit selects arms by drawing one sample from each arm's
// Beta posterior and choosing the largest draw.
type PosteriorSamplingBandit struct {
	mu      sync.RWMutex
	cfg     PosteriorConfig
	store   *statsStore
	sampler Sampler
	logger  *zap.Logger
}

// NewPosteriorSamplingBandit creates a bandit. Zero-valued config fields take
// their defaults; an unknown reward kind is an error.
func NewPosteriorSamplingBandit(cfg PosteriorConfig, opts ...Option) (*PosteriorSamplingBandit, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &PosteriorSamplingBandit{
		cfg:     cfg,
		store:   newStatsStore(cfg.PriorAlpha, cfg.PriorBeta),
		sampler: o.sampler,
		logger:  o.logger.With(zap.String("strategy", string(domain.StrategyPosteriorSampling))),
	}, nil
}

// Config returns the effective configuration.
func (b *PosteriorSamplingBandit) Config() PosteriorConfig { return b.cfg }

// Strategy implements ports.Selector.
func (b *PosteriorSamplingBandit) Strategy() domain.Strategy {
	return domain.StrategyPosteriorSampling
}

// Register implements ports.Selector.
func (b *PosteriorSamplingBandit) Register(id, name string, metadata map[string]string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok := b.store.register(id, name, metadata)
	if ok {
		b.logger.Info("arm registered", zap.String("arm", id))
	}
	return ok
}

// Select implements ports.Selector.
func (b *PosteriorSamplingBandit) Select() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arms := b.store.ordered()
	switch len(arms) {
	case 0:
		b.store.recordEmptySelection()
		return "", false
	case 1:
		b.store.recordSelection(arms[0])
		return arms[0].id, true
	}

	chosen := arms[0]
	best := -1.0
	for _, a := range arms {
		sample := b.sampler.Sample(a.alpha, a.beta)
		if math.IsNaN(sample) {
			continue
		}
		if sample > best {
			best = sample
			chosen = a
		}
	}
	b.store.recordSelection(chosen)

	if ce := b.logger.Check(zap.DebugLevel, "arm selected"); ce != nil {
		ce.Write(zap.String("arm", chosen.id), zap.Float64("sample", best))
	}
	return chosen.id, true
}

// ReportOutcome implements ports.Selector using the configured reward kind.
func (b *PosteriorSamplingBandit) ReportOutcome(id string, reward float64) bool {
	return b.ReportOutcomeKind(id, reward, b.cfg.RewardKind)
}

// ReportOutcomeKind implements ports.Selector.
func (b *PosteriorSamplingBandit) ReportOutcomeKind(id string, reward float64, kind domain.RewardKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.store.get(id)
	if !ok {
		b.logger.Debug("outcome for unknown arm", zap.String("arm", id))
		return false
	}
	eff, clamped, ok := effectiveReward(reward, kind)
	if !ok {
		b.logger.Warn("unknown reward kind", zap.String("arm", id), zap.String("kind", string(kind)))
		return false
	}
	if clamped {
		b.logger.Warn("reward clamped", zap.String("arm", id), zap.Float64("reward", reward))
	}
	w := b.cfg.UpdateWeight
	a.alpha += w * eff
	a.beta += w * (1 - eff)
	b.store.recordReward(a, eff, clamped)

	if ce := b.logger.Check(zap.DebugLevel, "outcome applied"); ce != nil {
		ce.Write(
			zap.String("arm", id),
			zap.Float64("reward", eff),
			zap.Float64("alpha", a.alpha),
			zap.Float64("beta", a.beta),
		)
	}
	return true
}

// StatsFor implements ports.Selector.
func (b *PosteriorSamplingBandit) StatsFor(id string) (domain.ArmStats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.store.get(id)
	if !ok {
		return domain.ArmStats{}, false
	}
	return b.store.snapshot(a, posteriorMean(a.alpha, a.beta)), true
}

// BestCandidates implements ports.Selector. Arms are ranked by posterior mean.
func (b *PosteriorSamplingBandit) BestCandidates(n int) []domain.ArmStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.ranked(n, func(a *arm) float64 { return posteriorMean(a.alpha, a.beta) })
}

// Metrics implements ports.Selector.
func (b *PosteriorSamplingBandit) Metrics() domain.BanditMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.metrics
}

// ExplorationAnalysis implements ports.Selector. The bonus is the posterior
// standard deviation.
func (b *PosteriorSamplingBandit) ExplorationAnalysis() domain.ExplorationReport {
	b.mu.RLock()
	defer b.mu.RUnlock()

	report := domain.ExplorationReport{
		NeedsExploration: b.store.underSampled(b.cfg.MinSamples),
	}
	top := -1.0
	for _, a := range b.store.ordered() {
		bonus := math.Sqrt(posteriorVariance(a.alpha, a.beta))
		report.Arms = append(report.Arms, domain.ArmExploration{
			ID:            a.id,
			AverageReward: a.average(),
			Bonus:         bonus,
			Pulls:         a.pulls,
		})
		if bonus > top {
			top = bonus
			report.MostUncertain = a.id
		}
	}
	return report
}

// ShouldExplore implements ports.Selector.
func (b *PosteriorSamplingBandit) ShouldExplore() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.underSampled(b.cfg.MinSamples)
}

// Reset implements ports.Selector.
func (b *PosteriorSamplingBandit) Reset(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.store.reset(id) {
		return false
	}
	b.logger.Info("arm reset", zap.String("arm", id))
	return true
}

// ResetAll implements ports.Selector.
func (b *PosteriorSamplingBandit) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.resetAll()
	b.logger.Info("all arms reset", zap.Int("arms", b.store.len()))
}

// Remove implements ports.Selector.
func (b *PosteriorSamplingBandit) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.store.remove(id) {
		return false
	}
	b.logger.Info("arm removed", zap.String("arm", id))
	return true
}
