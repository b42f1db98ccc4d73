// Package bandit implements multi-armed bandit arm selection for routing
// requests across interchangeable backends. Two strategies share one
// statistics store: posterior sampling (Thompson) and upper confidence
// bound. Both are safe for concurrent use and never perform I/O.
package bandit

import (
	"math"

	"go.uber.org/zap"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

// Defaults applied when a config field is left at its zero value.
const (
	DefaultPriorAlpha   = 1.0
	DefaultPriorBeta    = 1.0
	DefaultMinSamples   = 10
	DefaultUpdateWeight = 1.0

	// DefaultExplorationFactor is the standard UCB1 constant sqrt(2).
	DefaultExplorationFactor = math.Sqrt2
)

// PosteriorConfig configures a PosteriorSamplingBandit.
type PosteriorConfig struct {
	// PriorAlpha and PriorBeta are the initial success/failure strengths.
	// Default: 1.0/1.0 (uniform prior).
	PriorAlpha float64 `yaml:"prior_alpha" validate:"finite,min=0"`
	PriorBeta  float64 `yaml:"prior_beta" validate:"finite,min=0"`

	// MinSamples is the observation count below which ShouldExplore
	// reports true. Default: 10.
	MinSamples int `yaml:"min_samples" validate:"min=0,max=100000"`

	// RewardKind is the default kind applied by ReportOutcome.
	// Default: continuous.
	RewardKind domain.RewardKind `yaml:"reward_kind" validate:"omitempty,rewardkind"`

	// UpdateWeight scales how much mass one outcome adds to the posterior.
	// Default: 1.0.
	UpdateWeight float64 `yaml:"update_weight" validate:"finite,min=0"`
}

// ConfidenceConfig configures a ConfidenceBoundBandit.
type ConfidenceConfig struct {
	// ExplorationFactor is the constant c multiplying the exploration term.
	// Default: sqrt(2).
	ExplorationFactor float64 `yaml:"exploration_factor" validate:"finite,min=0"`

	// Formula selects the bound. Default: ucb1.
	Formula domain.BoundFormula `yaml:"bound_formula" validate:"omitempty,boundformula"`

	// MinSamples is the observation count below which ShouldExplore
	// reports true. Default: 10.
	MinSamples int `yaml:"min_samples" validate:"min=0,max=100000"`

	// RewardKind is the default kind applied by ReportOutcome.
	// Default: continuous.
	RewardKind domain.RewardKind `yaml:"reward_kind" validate:"omitempty,rewardkind"`
}

func (c PosteriorConfig) withDefaults() (PosteriorConfig, error) {
	if !domain.IsFinite(c.PriorAlpha) || c.PriorAlpha <= 0 {
		c.PriorAlpha = DefaultPriorAlpha
	}
	if !domain.IsFinite(c.PriorBeta) || c.PriorBeta <= 0 {
		c.PriorBeta = DefaultPriorBeta
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if !domain.IsFinite(c.UpdateWeight) || c.UpdateWeight <= 0 {
		c.UpdateWeight = DefaultUpdateWeight
	}
	kind, err := resolveRewardKind(c.RewardKind)
	if err != nil {
		return c, err
	}
	c.RewardKind = kind
	return c, nil
}

func (c ConfidenceConfig) withDefaults() (ConfidenceConfig, error) {
	if !domain.IsFinite(c.ExplorationFactor) || c.ExplorationFactor <= 0 {
		c.ExplorationFactor = DefaultExplorationFactor
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.Formula == "" {
		c.Formula = domain.BoundUCB1
	}
	formula, err := domain.ParseBoundFormula(string(c.Formula))
	if err != nil {
		return c, err
	}
	c.Formula = formula
	kind, err := resolveRewardKind(c.RewardKind)
	if err != nil {
		return c, err
	}
	c.RewardKind = kind
	return c, nil
}

func resolveRewardKind(kind domain.RewardKind) (domain.RewardKind, error) {
	if kind == "" {
		return domain.RewardContinuous, nil
	}
	return domain.ParseRewardKind(string(kind))
}

// Option customizes a bandit at construction.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	sampler Sampler
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSampler replaces the Beta sampler used by posterior sampling.
// It has no effect on confidence-bound bandits.
func WithSampler(s Sampler) Option {
	return func(o *options) {
		if s != nil {
			o.sampler = s
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:  zap.NewNop(),
		sampler: BetaSampler{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
