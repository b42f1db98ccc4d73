package bandit

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws one value from a Beta(alpha, beta) distribution.
// Implementations must be safe for concurrent use.
type Sampler interface {
	Sample(alpha, beta float64) float64
}

// BetaSampler draws from gonum's Beta distribution using the global,
// goroutine-safe random source.
type BetaSampler struct{}

// Sample implements Sampler.
func (BetaSampler) Sample(alpha, beta float64) float64 {
	if alpha <= 0 || beta <= 0 {
		return 0.5
	}
	return distuv.Beta{Alpha: alpha, Beta: beta}.Rand()
}

// MeanSampler always returns the posterior mean. It turns posterior
// sampling into a greedy policy, which is useful for deterministic tests
// and for replaying decisions.
type MeanSampler struct{}

// Sample implements Sampler.
func (MeanSampler) Sample(alpha, beta float64) float64 {
	return posteriorMean(alpha, beta)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(alpha, beta float64) float64

// Sample implements Sampler.
func (f SamplerFunc) Sample(alpha, beta float64) float64 { return f(alpha, beta) }

func posteriorMean(alpha, beta float64) float64 {
	if alpha+beta <= 0 {
		return 0.5
	}
	return alpha / (alpha + beta)
}

func posteriorVariance(alpha, beta float64) float64 {
	sum := alpha + beta
	if sum <= 0 {
		return 0
	}
	return (alpha * beta) / (sum * sum * (sum + 1))
}
