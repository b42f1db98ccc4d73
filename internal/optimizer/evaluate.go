package optimizer

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

// minCostDenominator keeps the quality-to-cost ratio finite for free models.
const minCostDenominator = 1e-9

// candidate is one feasible model with its predictions and normalized
// scores. normCost is inverted so that 1 is cheapest.
type candidate struct {
	model    domain.ModelSpecification
	row      int
	cost     float64
	quality  float64
	normCost float64
	normQual float64
}

func (c candidate) weighted(costWeight, qualityWeight float64) float64 {
	return costWeight*c.normCost + qualityWeight*c.normQual
}

// Evaluate runs one optimization over models, which must be ordered by id.
// cfg must already be canonical. The result is always fully populated.
func Evaluate(models []domain.ModelSpecification, tokens, requests int, cfg domain.OptimizationConfig) domain.OptimizationResult {
	result := domain.OptimizationResult{
		Algorithm:   cfg.Algorithm,
		Objective:   cfg.Objective,
		Tokens:      tokens,
		Requests:    requests,
		ParetoFront: []domain.ModelSpecification{},
		Evaluations: make([]domain.ModelEvaluation, 0, len(models)),
	}

	var feasible []candidate
	for _, m := range models {
		eval := evaluateModel(m, tokens, requests, cfg)
		result.Evaluations = append(result.Evaluations, eval)
		if eval.Feasible {
			feasible = append(feasible, candidate{
				model:   m,
				row:     len(result.Evaluations) - 1,
				cost:    eval.PredictedCost,
				quality: eval.PredictedQuality,
			})
		}
	}
	if len(feasible) == 0 {
		return result
	}

	normalize(feasible)
	front := paretoFront(feasible)
	for _, c := range front {
		result.ParetoFront = append(result.ParetoFront, c.model.Clone())
	}

	var (
		winner candidate
		score  float64
		ok     bool
	)
	switch cfg.Algorithm {
	case domain.AlgorithmWeightedSum:
		winner, score, ok = weightedSum(feasible, cfg, result.Evaluations)
	case domain.AlgorithmParetoFront:
		winner, score, ok = selectFromFront(feasible, front, cfg, result.Evaluations)
	case domain.AlgorithmConstraintSatisfaction:
		winner, score, ok = bestRatio(feasible, result.Evaluations)
	default:
		// Configs are canonicalized before they get here.
		return result
	}
	if !ok {
		return result
	}

	selected := winner.model.Clone()
	result.SelectedModel = &selected
	result.PredictedCost = winner.cost
	result.PredictedQuality = winner.quality
	result.PredictedResponseTime = winner.model.ExpectedResponseTime
	result.Score = score
	result.Feasible = true
	return result
}

func evaluateModel(m domain.ModelSpecification, tokens, requests int, cfg domain.OptimizationConfig) domain.ModelEvaluation {
	cost := m.Cost(tokens, requests)
	eval := domain.ModelEvaluation{
		ModelID:          m.ID,
		PredictedCost:    cost,
		CostPerRequest:   cost / float64(requests),
		PredictedQuality: m.Quality(cfg.Context),
		ResponseTime:     m.ExpectedResponseTime,
	}
	if math.IsInf(cost, 0) || math.IsNaN(cost) {
		eval.Violations = append(eval.Violations, domain.ConstraintMaxCost)
	} else if cfg.MaxCostPerRequest > 0 && eval.CostPerRequest > cfg.MaxCostPerRequest {
		eval.Violations = append(eval.Violations, domain.ConstraintMaxCost)
	}
	if eval.PredictedQuality < cfg.MinQualityThreshold {
		eval.Violations = append(eval.Violations, domain.ConstraintMinQuality)
	}
	eval.Feasible = len(eval.Violations) == 0
	return eval
}

// normalize min-max scales cost and quality across the feasible set. When
// every candidate has the same value the dimension scores 1 for all.
func normalize(cands []candidate) {
	costs := make([]float64, len(cands))
	quals := make([]float64, len(cands))
	for i, c := range cands {
		costs[i] = c.cost
		quals[i] = c.quality
	}
	minCost, maxCost := floats.Min(costs), floats.Max(costs)
	minQual, maxQual := floats.Min(quals), floats.Max(quals)
	for i := range cands {
		cands[i].normCost = 1
		if span := maxCost - minCost; span > 0 {
			cands[i].normCost = 1 - (cands[i].cost-minCost)/span
		}
		cands[i].normQual = 1
		if span := maxQual - minQual; span > 0 {
			cands[i].normQual = (cands[i].quality - minQual) / span
		}
	}
}

// weightedSum scores every feasible candidate with the configured weights
// and picks the maximum. Ties keep the earlier id.
func weightedSum(cands []candidate, cfg domain.OptimizationConfig, evals []domain.ModelEvaluation) (candidate, float64, bool) {
	wc, wq, _ := cfg.Weights()
	best, bestScore := -1, math.Inf(-1)
	for i, c := range cands {
		s := c.weighted(wc, wq)
		evals[c.row].Score = s
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return candidate{}, 0, false
	}
	return cands[best], bestScore, true
}

// bestRatio ranks by quality per unit cost and never consults weights.
func bestRatio(cands []candidate, evals []domain.ModelEvaluation) (candidate, float64, bool) {
	best, bestScore := -1, math.Inf(-1)
	for i, c := range cands {
		s := c.quality / math.Max(c.cost, minCostDenominator)
		evals[c.row].Score = s
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 {
		return candidate{}, 0, false
	}
	return cands[best], bestScore, true
}

// dominates reports whether a is at least as cheap and at least as good as
// b, and strictly better in one of the two.
func dominates(a, b candidate) bool {
	if a.cost > b.cost || a.quality < b.quality {
		return false
	}
	return a.cost < b.cost || a.quality > b.quality
}

// paretoFront returns the non-dominated candidates, cheapest first with
// higher quality breaking ties.
func paretoFront(cands []candidate) []candidate {
	var front []candidate
	for i, c := range cands {
		dominated := false
		for j, other := range cands {
			if i != j && dominates(other, c) {
				dominated = true
				break
			}
		}
		if !dominated {
			front = append(front, c)
		}
	}
	sort.SliceStable(front, func(i, j int) bool {
		if front[i].cost != front[j].cost {
			return front[i].cost < front[j].cost
		}
		return front[i].quality > front[j].quality
	})
	return front
}

// objectiveWeights maps an objective to the cost and quality weights used
// to score and compromise on the front. ok is false for an unknown
// objective.
func objectiveWeights(cfg domain.OptimizationConfig) (cost, quality float64, ok bool) {
	switch cfg.Objective {
	case domain.ObjectiveMinimizeCost:
		return 1, 0, true
	case domain.ObjectiveMaximizeQuality:
		return 0, 1, true
	case domain.ObjectiveBalanced:
		return 0.5, 0.5, true
	case domain.ObjectiveCustomWeighted:
		c, q, _ := cfg.Weights()
		return c, q, true
	default:
		return 0, 0, false
	}
}

// selectFromFront picks a front member by objective. Feasible rows are
// scored with the objective weights over normalized cost and quality.
func selectFromFront(feasible, front []candidate, cfg domain.OptimizationConfig, evals []domain.ModelEvaluation) (candidate, float64, bool) {
	if len(front) == 0 {
		return candidate{}, 0, false
	}
	wc, wq, ok := objectiveWeights(cfg)
	if !ok {
		return candidate{}, 0, false
	}
	for _, c := range feasible {
		evals[c.row].Score = c.weighted(wc, wq)
	}

	var winner candidate
	switch cfg.Objective {
	case domain.ObjectiveMinimizeCost:
		// The front is sorted cheapest first.
		winner = front[0]
	case domain.ObjectiveMaximizeQuality:
		winner = front[0]
		for _, c := range front[1:] {
			if c.quality > winner.quality {
				winner = c
			}
		}
	case domain.ObjectiveBalanced, domain.ObjectiveCustomWeighted:
		winner = closestToIdeal(front, wc, wq)
	default:
		return candidate{}, 0, false
	}
	return winner, winner.weighted(wc, wq), true
}

// closestToIdeal returns the front member with the smallest weighted
// distance to the ideal point (cheapest cost, best quality) in normalized
// space.
func closestToIdeal(front []candidate, wc, wq float64) candidate {
	best := front[0]
	bestDist := math.Inf(1)
	for _, c := range front {
		dc, dq := 1-c.normCost, 1-c.normQual
		d := math.Sqrt(wc*dc*dc + wq*dq*dq)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
