package domain

import (
	"strings"

	"golang.org/x/text/cases"
)

// Strategy identifies a bandit selection strategy.
type Strategy string

// Supported bandit strategies.
const (
	// StrategyPosteriorSampling draws from each arm's Beta posterior and
	// picks the largest draw.
	StrategyPosteriorSampling Strategy = "posterior_sampling"
	// StrategyConfidenceBound picks the arm with the largest upper
	// confidence bound.
	StrategyConfidenceBound Strategy = "confidence_bound"
)

// RewardKind controls how a reported reward updates posterior parameters.
type RewardKind string

// Supported reward kinds.
const (
	// RewardBinary treats a reward >= 0.5 as a full success and anything
	// below as a full failure.
	RewardBinary RewardKind = "binary"
	// RewardContinuous splits the update between success and failure mass
	// in proportion to the reward.
	RewardContinuous RewardKind = "continuous"
)

// BoundFormula selects the confidence bound used by the confidence-bound bandit.
type BoundFormula string

// Supported bound formulas.
const (
	// BoundUCB1 is the classic avg + c*sqrt(ln N / n) bound.
	BoundUCB1 BoundFormula = "ucb1"
	// BoundUCB1Tuned scales the exploration term by an upper estimate of
	// the arm's reward variance, capped at 1/4.
	BoundUCB1Tuned BoundFormula = "ucb1_tuned"
)

// CostModel identifies how a model is billed.
type CostModel string

// Supported cost models.
const (
	// CostPerToken bills Rate per 1,000 tokens.
	CostPerToken CostModel = "per_token"
	// CostPerRequest bills Rate per request regardless of volume.
	CostPerRequest CostModel = "per_request"
)

// Objective is the optimization goal used to pick among acceptable models.
type Objective string

// Supported optimization objectives.
const (
	ObjectiveMinimizeCost    Objective = "minimize_cost"
	ObjectiveMaximizeQuality Objective = "maximize_quality"
	ObjectiveBalanced        Objective = "balanced"
	ObjectiveCustomWeighted  Objective = "custom_weighted"
)

// Algorithm selects the optimization algorithm.
type Algorithm string

// Supported optimization algorithms.
const (
	AlgorithmWeightedSum            Algorithm = "weighted_sum"
	AlgorithmParetoFront            Algorithm = "pareto_front"
	AlgorithmConstraintSatisfaction Algorithm = "constraint_satisfaction"
)

// normalizeTag folds case and accepts '-' or ' ' as separators so that
// "Pareto-Front" and "pareto_front" parse identically.
func normalizeTag(s string) string {
	folded := cases.Fold().String(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(folded)
}

// ParseStrategy parses a strategy tag.
func ParseStrategy(s string) (Strategy, error) {
	switch v := Strategy(normalizeTag(s)); v {
	case StrategyPosteriorSampling, StrategyConfidenceBound:
		return v, nil
	default:
		return "", NewTagError("strategy", s, ErrUnknownStrategy)
	}
}

// ParseRewardKind parses a reward kind tag.
func ParseRewardKind(s string) (RewardKind, error) {
	switch v := RewardKind(normalizeTag(s)); v {
	case RewardBinary, RewardContinuous:
		return v, nil
	default:
		return "", NewTagError("reward_kind", s, ErrUnknownRewardKind)
	}
}

// ParseBoundFormula parses a bound formula tag.
func ParseBoundFormula(s string) (BoundFormula, error) {
	switch v := BoundFormula(normalizeTag(s)); v {
	case BoundUCB1, BoundUCB1Tuned:
		return v, nil
	default:
		return "", NewTagError("bound_formula", s, ErrUnknownBoundFormula)
	}
}

// ParseCostModel parses a cost model tag.
func ParseCostModel(s string) (CostModel, error) {
	switch v := CostModel(normalizeTag(s)); v {
	case CostPerToken, CostPerRequest:
		return v, nil
	default:
		return "", NewTagError("cost_model", s, ErrUnknownCostModel)
	}
}

// ParseObjective parses an objective tag.
func ParseObjective(s string) (Objective, error) {
	switch v := Objective(normalizeTag(s)); v {
	case ObjectiveMinimizeCost, ObjectiveMaximizeQuality, ObjectiveBalanced, ObjectiveCustomWeighted:
		return v, nil
	default:
		return "", NewTagError("objective", s, ErrUnknownObjective)
	}
}

// ParseAlgorithm parses an algorithm tag.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch v := Algorithm(normalizeTag(s)); v {
	case AlgorithmWeightedSum, AlgorithmParetoFront, AlgorithmConstraintSatisfaction:
		return v, nil
	default:
		return "", NewTagError("algorithm", s, ErrUnknownAlgorithm)
	}
}
