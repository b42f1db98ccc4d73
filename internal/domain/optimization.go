package domain

// OptimizationConfig controls one optimization run.
type OptimizationConfig struct {
	Objective Objective `yaml:"objective" validate:"required,objective"`
	Algorithm Algorithm `yaml:"algorithm" validate:"required,algorithm"`

	// CostWeight and QualityWeight are used by weighted_sum and by the
	// compromise pick on the Pareto front. Both zero means equal weighting.
	CostWeight    float64 `yaml:"cost_weight" validate:"finite,min=0"`
	QualityWeight float64 `yaml:"quality_weight" validate:"finite,min=0"`

	// MaxCostPerRequest excludes models whose predicted cost per request
	// exceeds it. Zero disables the ceiling.
	MaxCostPerRequest float64 `yaml:"max_cost_per_request" validate:"finite,min=0"`
	// MinQualityThreshold excludes models whose predicted quality is below it.
	MinQualityThreshold float64 `yaml:"min_quality_threshold" validate:"finite,min=0,max=1"`

	// Context adjusts predicted quality; nil means no adjustment.
	Context *TaskContext `yaml:"context,omitempty"`
}

// DefaultOptimizationConfig is a balanced weighted-sum run with no constraints.
func DefaultOptimizationConfig() OptimizationConfig {
	return OptimizationConfig{
		Objective:     ObjectiveBalanced,
		Algorithm:     AlgorithmWeightedSum,
		CostWeight:    0.5,
		QualityWeight: 0.5,
	}
}

// Validate checks the tags and numeric ranges. Tags must already be in
// canonical form; use ParseObjective/ParseAlgorithm for user input.
func (c OptimizationConfig) Validate() error {
	if _, err := ParseObjective(string(c.Objective)); err != nil {
		return err
	}
	if _, err := ParseAlgorithm(string(c.Algorithm)); err != nil {
		return err
	}
	verr := NewValidationError("OptimizationConfig")
	if !IsFinite(c.CostWeight) || c.CostWeight < 0 {
		verr.AddErrorf("cost_weight must be a finite non-negative number, got %g", c.CostWeight)
	}
	if !IsFinite(c.QualityWeight) || c.QualityWeight < 0 {
		verr.AddErrorf("quality_weight must be a finite non-negative number, got %g", c.QualityWeight)
	}
	if !IsFinite(c.MaxCostPerRequest) || c.MaxCostPerRequest < 0 {
		verr.AddErrorf("max_cost_per_request must be a finite non-negative number, got %g", c.MaxCostPerRequest)
	}
	if !(c.MinQualityThreshold >= 0 && c.MinQualityThreshold <= 1) {
		verr.AddErrorf("min_quality_threshold must be within [0,1], got %g", c.MinQualityThreshold)
	}
	if c.Context != nil {
		if !(c.Context.Complexity >= 0 && c.Context.Complexity <= 1) {
			verr.AddErrorf("context.complexity must be within [0,1], got %g", c.Context.Complexity)
		}
		if !(c.Context.TimePressure >= 0 && c.Context.TimePressure <= 1) {
			verr.AddErrorf("context.time_pressure must be within [0,1], got %g", c.Context.TimePressure)
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// Weights returns CostWeight and QualityWeight scaled to sum to one.
// When both are zero it returns 0.5/0.5 and ok=false.
func (c OptimizationConfig) Weights() (cost, quality float64, ok bool) {
	w, ok := NormalizeWeights(c.CostWeight, c.QualityWeight)
	return w[0], w[1], ok
}

// Constraint names a hard constraint a model can violate.
type Constraint string

// Hard constraints checked before ranking.
const (
	ConstraintMaxCost    Constraint = "max_cost_per_request"
	ConstraintMinQuality Constraint = "min_quality_threshold"
)

// ModelEvaluation is the per-model diagnostic row of an optimization run.
type ModelEvaluation struct {
	ModelID          string
	PredictedCost    float64
	CostPerRequest   float64
	PredictedQuality float64
	ResponseTime     float64
	Feasible         bool
	Violations       []Constraint
	// Score is the algorithm's score for feasible models, zero otherwise.
	Score float64
}

// OptimizationResult is always structurally complete, even when infeasible.
// When Feasible is false SelectedModel is nil and Score is zero.
type OptimizationResult struct {
	SelectedModel *ModelSpecification

	PredictedCost         float64
	PredictedQuality      float64
	PredictedResponseTime float64
	Score                 float64
	Feasible              bool

	// ParetoFront lists the non-dominated feasible models, cheapest first.
	ParetoFront []ModelSpecification
	// Evaluations has one row per catalog entry, ordered by model id.
	Evaluations []ModelEvaluation

	Algorithm Algorithm
	Objective Objective
	Tokens    int
	Requests  int
}

// SelectedID returns the winner's id, or "" when infeasible.
func (r OptimizationResult) SelectedID() string {
	if r.SelectedModel == nil {
		return ""
	}
	return r.SelectedModel.ID
}
