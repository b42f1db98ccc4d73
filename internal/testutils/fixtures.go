// Package testutils holds shared fixtures and recording fakes for engine
// tests.
package testutils

import (
	"github.com/Giftedx/crew-sub014/internal/domain"
)

// SampleEngineYAML is a complete, valid engine configuration.
// The "chat" pool draws its arms from the catalog; the "prompts" pool holds
// two template arms with no catalog model behind them. The optimizer
// settings and catalog are chosen so a 1000-token, single-request run
// selects model B with a weighted score of 0.925.
const SampleEngineYAML = `
version: "1.0.0"
metadata:
  name: routing
  description: Routes chat traffic across providers
  tags: [chat, production]
  labels:
    team: platform
bandits:
  - name: chat
    strategy: posterior_sampling
    posterior:
      prior_alpha: 1
      prior_beta: 1
      min_samples: 5
    from_catalog: true
  - name: prompts
    strategy: confidence_bound
    confidence:
      exploration_factor: 2
      bound_formula: ucb1_tuned
    arms:
      - id: concise
        name: Concise template
      - id: detailed
        name: Detailed template
preferences:
  smoothing_factor: 0.2
  history_size: 50
  confidence_requests: 10
  providers:
    - id: alpha
      name: Alpha AI
    - id: beta
      name: Beta Labs
optimizer:
  objective: balanced
  algorithm: weighted_sum
  cost_weight: 0.3
  quality_weight: 0.7
  max_cost_per_request: 1.0
  min_quality_threshold: 0.6
  learning_rate: 0.1
catalog:
  - id: A
    provider: alpha
    name: Alpha Small
    cost_model: per_token
    rate: 0.001
    expected_quality: 0.7
    expected_response_time: 1
  - id: B
    provider: beta
    name: Beta Medium
    cost_model: per_token
    rate: 0.002
    expected_quality: 0.9
    expected_response_time: 1
  - id: C
    provider: beta
    name: Beta Large
    cost_model: per_token
    rate: 0.005
    expected_quality: 0.8
    expected_response_time: 1
decisions:
  capacity: 1000
  ttl: 10m
`

// SampleCatalog returns the catalog declared in SampleEngineYAML.
func SampleCatalog() []domain.ModelSpecification {
	model := func(id, provider, name string, rate, quality float64) domain.ModelSpecification {
		return domain.ModelSpecification{
			ID:                   id,
			ProviderID:           provider,
			Name:                 name,
			CostModel:            domain.CostPerToken,
			Rate:                 rate,
			ExpectedQuality:      quality,
			ExpectedResponseTime: 1,
		}
	}
	return []domain.ModelSpecification{
		model("A", "alpha", "Alpha Small", 0.001, 0.7),
		model("B", "beta", "Beta Medium", 0.002, 0.9),
		model("C", "beta", "Beta Large", 0.005, 0.8),
	}
}

// SampleOptimizationConfig returns the optimizer settings declared in
// SampleEngineYAML.
func SampleOptimizationConfig() domain.OptimizationConfig {
	return domain.OptimizationConfig{
		Objective:           domain.ObjectiveBalanced,
		Algorithm:           domain.AlgorithmWeightedSum,
		CostWeight:          0.3,
		QualityWeight:       0.7,
		MaxCostPerRequest:   1.0,
		MinQualityThreshold: 0.6,
	}
}
