package bandit

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

var _ ports.Selector = (*ConfidenceBoundBandit)(nil)

// tunedVarianceCap is the maximum variance of a reward bounded in [0,1].
const tunedVarianceCap = 0.25

// ExplorationBonus returns the UCB1 exploration term
// factor*sqrt(ln(total)/pulls). An arm that has never been pulled gets +Inf.
// The term is non-increasing in pulls for a fixed total.
func ExplorationBonus(factor float64, total, pulls int64) float64 {
	if pulls <= 0 {
		return math.Inf(1)
	}
	if total <= 1 {
		return 0
	}
	return factor * math.Sqrt(math.Log(float64(total))/float64(pulls))
}

// ConfidenceBoundBandit selects the arm with the largest upper confidence
// bound. Arms that were never pulled are tried first, in registration order.
type ConfidenceBoundBandit struct {
	mu     sync.RWMutex
	cfg    ConfidenceConfig
	store  *statsStore
	logger *zap.Logger
}

// NewConfidenceBoundBandit creates a bandit. Zero-valued config fields take
// their defaults; unknown formula or reward kind tags are errors.
func NewConfidenceBoundBandit(cfg ConfidenceConfig, opts ...Option) (*ConfidenceBoundBandit, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &ConfidenceBoundBandit{
		cfg:   cfg,
		store: newStatsStore(0, 0),
		logger: o.logger.With(
			zap.String("strategy", string(domain.StrategyConfidenceBound)),
			zap.String("formula", string(cfg.Formula)),
		),
	}, nil
}

// Config returns the effective configuration.
func (b *ConfidenceBoundBandit) Config() ConfidenceConfig { return b.cfg }

// Strategy implements ports.Selector.
func (b *ConfidenceBoundBandit) Strategy() domain.Strategy {
	return domain.StrategyConfidenceBound
}

// bonus is the exploration component of the bound for a given total. ok is
// false for a formula this bandit does not implement.
func (b *ConfidenceBoundBandit) bonus(a *arm, total int64) (bonus float64, ok bool) {
	switch b.cfg.Formula {
	case domain.BoundUCB1:
		return ExplorationBonus(b.cfg.ExplorationFactor, total, a.pulls), true
	case domain.BoundUCB1Tuned:
		if a.pulls <= 0 {
			return math.Inf(1), true
		}
		if total <= 1 {
			return 0, true
		}
		logTotal := math.Log(float64(total))
		n := float64(a.pulls)
		v := a.variance() + math.Sqrt(2*logTotal/n)
		return b.cfg.ExplorationFactor * math.Sqrt(logTotal/n*math.Min(tunedVarianceCap, v)), true
	default:
		return 0, false
	}
}

// Register implements ports.Selector.
func (b *ConfidenceBoundBandit) Register(id, name string, metadata map[string]string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ok := b.store.register(id, name, metadata)
	if ok {
		b.logger.Info("arm registered", zap.String("arm", id))
	}
	return ok
}

// Select implements ports.Selector.
func (b *ConfidenceBoundBandit) Select() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arms := b.store.ordered()
	if len(arms) == 0 {
		b.store.recordEmptySelection()
		return "", false
	}

	total := b.store.metrics.TotalSelections
	var chosen *arm
	best := math.Inf(-1)
	for _, a := range arms {
		bonus, ok := b.bonus(a, total)
		if !ok {
			b.logger.Error("unknown bound formula; nothing selected")
			return "", false
		}
		bound := a.average() + bonus
		a.upperBound = bound
		if chosen == nil || bound > best {
			best = bound
			chosen = a
		}
	}
	b.store.recordSelection(chosen)

	if ce := b.logger.Check(zap.DebugLevel, "arm selected"); ce != nil {
		ce.Write(zap.String("arm", chosen.id), zap.Float64("bound", best))
	}
	return chosen.id, true
}

// ReportOutcome implements ports.Selector using the configured reward kind.
func (b *ConfidenceBoundBandit) ReportOutcome(id string, reward float64) bool {
	return b.ReportOutcomeKind(id, reward, b.cfg.RewardKind)
}

// ReportOutcomeKind implements ports.Selector.
func (b *ConfidenceBoundBandit) ReportOutcomeKind(id string, reward float64, kind domain.RewardKind) bool {
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
	b.store.recordReward(a, eff, clamped)

	if ce := b.logger.Check(zap.DebugLevel, "outcome applied"); ce != nil {
		ce.Write(zap.String("arm", id), zap.Float64("reward", eff), zap.Float64("average", a.average()))
	}
	return true
}

// StatsFor implements ports.Selector.
func (b *ConfidenceBoundBandit) StatsFor(id string) (domain.ArmStats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.store.get(id)
	if !ok {
		return domain.ArmStats{}, false
	}
	return b.store.snapshot(a, a.average()), true
}

// BestCandidates implements ports.Selector. Arms are ranked by average reward.
func (b *ConfidenceBoundBandit) BestCandidates(n int) []domain.ArmStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.ranked(n, (*arm).average)
}

// Metrics implements ports.Selector.
func (b *ConfidenceBoundBandit) Metrics() domain.BanditMetrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.metrics
}

// ExplorationAnalysis implements ports.Selector. Bonuses are computed
// against the current selection total.
func (b *ConfidenceBoundBandit) ExplorationAnalysis() domain.ExplorationReport {
	b.mu.RLock()
	defer b.mu.RUnlock()

	report := domain.ExplorationReport{
		NeedsExploration: b.store.underSampled(b.cfg.MinSamples),
	}
	total := b.store.metrics.TotalSelections
	top := math.Inf(-1)
	for _, a := range b.store.ordered() {
		bonus, ok := b.bonus(a, total)
		if !ok {
			b.logger.Error("unknown bound formula; exploration not analyzed")
			return domain.ExplorationReport{NeedsExploration: report.NeedsExploration}
		}
		report.Arms = append(report.Arms, domain.ArmExploration{
			ID:            a.id,
			AverageReward: a.average(),
			Bonus:         bonus,
			Pulls:         a.pulls,
		})
		if report.MostUncertain == "" || bonus > top {
			top = bonus
			report.MostUncertain = a.id
		}
	}
	return report
}

// ShouldExplore implements ports.Selector.
func (b *ConfidenceBoundBandit) ShouldExplore() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.store.underSampled(b.cfg.MinSamples)
}

// Reset implements ports.Selector.
func (b *ConfidenceBoundBandit) Reset(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.store.reset(id) {
		return false
	}
	b.logger.Info("arm reset", zap.String("arm", id))
	return true
}

// ResetAll implements ports.Selector.
func (b *ConfidenceBoundBandit) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.resetAll()
	b.logger.Info("all arms reset", zap.Int("arms", b.store.len()))
}

// Remove implements ports.Selector.
func (b *ConfidenceBoundBandit) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.store.remove(id) {
		return false
	}
	b.logger.Info("arm removed", zap.String("arm", id))
	return true
}
