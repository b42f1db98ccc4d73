package bandit

import (
	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

// Config selects a strategy and carries the settings for it. Only the
// section matching Strategy is consulted.
type Config struct {
	Strategy   domain.Strategy  `yaml:"strategy" validate:"required,strategy"`
	Posterior  PosteriorConfig  `yaml:"posterior"`
	Confidence ConfidenceConfig `yaml:"confidence"`
}

// New builds the selector named by cfg.Strategy.
func New(cfg Config, opts ...Option) (ports.Selector, error) {
	strategy, err := domain.ParseStrategy(string(cfg.Strategy))
	if err != nil {
		return nil, err
	}
	switch strategy {
	case domain.StrategyPosteriorSampling:
		return NewPosteriorSamplingBandit(cfg.Posterior, opts...)
	case domain.StrategyConfidenceBound:
		return NewConfidenceBoundBandit(cfg.Confidence, opts...)
	default:
		return nil, domain.NewTagError("strategy", string(cfg.Strategy), domain.ErrUnknownStrategy)
	}
}
