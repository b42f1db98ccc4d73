// Package optimizer picks the catalog model that best trades predicted cost
// against predicted quality for a request volume. An optimization run is a
// pure function of the catalog snapshot, the volume and the config; the
// catalog itself learns from reported performance.
package optimizer

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

var _ ports.Optimizer = (*Optimizer)(nil)

// DefaultLearningRate is the step size used by UpdatePerformance.
const DefaultLearningRate = 0.1

// Config configures an Optimizer. The embedded OptimizationConfig is the
// default used by Optimize.
type Config struct {
	domain.OptimizationConfig `yaml:",inline"`

	// LearningRate is how far one performance report moves the declared
	// expectations toward the observed values. Must be in (0,1].
	LearningRate float64 `yaml:"learning_rate" validate:"finite,min=0,max=1"`
}

// DefaultConfig is a balanced weighted-sum optimizer.
func DefaultConfig() Config {
	return Config{
		OptimizationConfig: domain.DefaultOptimizationConfig(),
		LearningRate:       DefaultLearningRate,
	}
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Optimizer) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Optimizer owns a model catalog and evaluates it against optimization
// configs. It is safe for concurrent use.
type Optimizer struct {
	mu       sync.RWMutex
	models   map[string]*domain.ModelSpecification
	cfg      Config
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates an optimizer with an empty catalog. Tags in cfg are parsed
// case-insensitively; an unknown tag or out-of-range number is an error.
func New(cfg Config, opts ...Option) (*Optimizer, error) {
	base, err := canonical(cfg.OptimizationConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid optimizer config: %w", err)
	}
	cfg.OptimizationConfig = base
	if !(cfg.LearningRate > 0 && cfg.LearningRate <= 1) {
		cfg.LearningRate = DefaultLearningRate
	}

	o := &Optimizer{
		models:   make(map[string]*domain.ModelSpecification),
		cfg:      cfg,
		validate: domain.NewValidator(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if _, _, ok := cfg.Weights(); !ok && cfg.Algorithm == domain.AlgorithmWeightedSum {
		o.logger.Warn("cost and quality weights are both zero; using equal weighting")
	}
	return o, nil
}

// canonical parses the tags of cfg and validates its numeric fields.
func canonical(cfg domain.OptimizationConfig) (domain.OptimizationConfig, error) {
	objective, err := domain.ParseObjective(string(cfg.Objective))
	if err != nil {
		return cfg, err
	}
	algorithm, err := domain.ParseAlgorithm(string(cfg.Algorithm))
	if err != nil {
		return cfg, err
	}
	cfg.Objective = objective
	cfg.Algorithm = algorithm
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Config returns the effective configuration.
func (o *Optimizer) Config() Config { return o.cfg }

// AddModel admits a model into the catalog. The cost model tag is
// canonicalized; invalid specifications and duplicate ids are rejected.
func (o *Optimizer) AddModel(spec domain.ModelSpecification) error {
	cm, err := domain.ParseCostModel(string(spec.CostModel))
	if err != nil {
		return fmt.Errorf("model %q: %w", spec.ID, err)
	}
	spec.CostModel = cm
	if err := o.validate.Struct(spec); err != nil {
		return fmt.Errorf("model %q: %w: %w", spec.ID, domain.ErrInvalidConfiguration, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, exists := o.models[spec.ID]; exists {
		return fmt.Errorf("model %q: %w", spec.ID, domain.ErrDuplicateID)
	}
	m := spec.Clone()
	m.ObservedCostPerRequest = 0
	m.Observations = 0
	m.CostObservations = 0
	o.models[spec.ID] = &m
	o.logger.Info("model added",
		zap.String("model", spec.ID),
		zap.String("provider", spec.ProviderID),
		zap.String("cost_model", string(cm)),
	)
	return nil
}

// RemoveModel deletes a model. It returns false for an unknown id.
func (o *Optimizer) RemoveModel(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.models[id]; !ok {
		return false
	}
	delete(o.models, id)
	o.logger.Info("model removed", zap.String("model", id))
	return true
}

// Model returns a copy of one catalog entry.
func (o *Optimizer) Model(id string) (domain.ModelSpecification, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.models[id]
	if !ok {
		return domain.ModelSpecification{}, false
	}
	return m.Clone(), true
}

// Models returns copies of every catalog entry ordered by id.
func (o *Optimizer) Models() []domain.ModelSpecification {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

func (o *Optimizer) snapshotLocked() []domain.ModelSpecification {
	out := make([]domain.ModelSpecification, 0, len(o.models))
	for _, m := range o.models {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdatePerformance moves a model's expected quality and response time
// toward the observed values by the learning rate, and tracks the observed
// cost per request. Per-request models also have their rate corrected.
// Signals that are not usable (a NaN quality, a negative or non-finite
// cost, a negative response time) are skipped and leave the corresponding
// expectation unchanged. It returns false for an unknown id.
func (o *Optimizer) UpdatePerformance(id string, actualCost, actualQuality float64, actualResponseTime time.Duration) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, ok := o.models[id]
	if !ok {
		o.logger.Debug("performance for unknown model", zap.String("model", id))
		return false
	}
	lr := o.cfg.LearningRate

	if !math.IsNaN(actualQuality) {
		m.ExpectedQuality = domain.Clamp01(domain.Smooth(lr, domain.Clamp01(actualQuality), m.ExpectedQuality))
	} else {
		o.logger.Debug("ignoring NaN quality", zap.String("model", id))
	}
	if actualResponseTime >= 0 {
		m.ExpectedResponseTime = domain.Smooth(lr, actualResponseTime.Seconds(), m.ExpectedResponseTime)
	} else {
		o.logger.Debug("ignoring negative response time", zap.String("model", id), zap.Duration("response_time", actualResponseTime))
	}
	if domain.IsFinite(actualCost) && actualCost >= 0 {
		o.updateCostLocked(m, actualCost)
	} else {
		o.logger.Debug("ignoring unusable cost", zap.String("model", id), zap.Float64("cost", actualCost))
	}
	m.Observations++

	if ce := o.logger.Check(zap.DebugLevel, "performance updated"); ce != nil {
		ce.Write(
			zap.String("model", id),
			zap.Float64("expected_quality", m.ExpectedQuality),
			zap.Float64("expected_response_time", m.ExpectedResponseTime),
		)
	}
	return true
}

func (o *Optimizer) updateCostLocked(m *domain.ModelSpecification, cost float64) {
	lr := o.cfg.LearningRate
	if m.CostObservations == 0 {
		m.ObservedCostPerRequest = cost
	} else {
		m.ObservedCostPerRequest = domain.Smooth(lr, cost, m.ObservedCostPerRequest)
	}
	m.CostObservations++
	switch m.CostModel {
	case domain.CostPerRequest:
		m.Rate = domain.Smooth(lr, cost, m.Rate)
	case domain.CostPerToken:
		// Token counts are not reported, so the per-token rate stays declared.
	default:
		o.logger.Warn("model has unknown cost model", zap.String("model", m.ID), zap.String("cost_model", string(m.CostModel)))
	}
}

// Optimize evaluates the catalog for the volume using the default config.
// It never fails; an empty catalog or feasible set yields an infeasible
// result.
func (o *Optimizer) Optimize(tokens, requests int) domain.OptimizationResult {
	o.mu.RLock()
	models := o.snapshotLocked()
	o.mu.RUnlock()
	return o.run(models, tokens, requests, o.cfg.OptimizationConfig)
}

// OptimizeWith is Optimize with an explicit config. It returns an error
// only when cfg itself is invalid.
func (o *Optimizer) OptimizeWith(tokens, requests int, cfg domain.OptimizationConfig) (domain.OptimizationResult, error) {
	cfg, err := canonical(cfg)
	if err != nil {
		return domain.OptimizationResult{}, err
	}
	o.mu.RLock()
	models := o.snapshotLocked()
	o.mu.RUnlock()
	return o.run(models, tokens, requests, cfg), nil
}

func (o *Optimizer) run(models []domain.ModelSpecification, tokens, requests int, cfg domain.OptimizationConfig) domain.OptimizationResult {
	if requests < 1 {
		requests = 1
	}
	if tokens < 0 {
		tokens = 0
	}
	result := Evaluate(models, tokens, requests, cfg)

	if ce := o.logger.Check(zap.DebugLevel, "optimization complete"); ce != nil {
		ce.Write(
			zap.String("algorithm", string(result.Algorithm)),
			zap.String("objective", string(result.Objective)),
			zap.Bool("feasible", result.Feasible),
			zap.String("selected", result.SelectedID()),
			zap.Int("candidates", len(models)),
			zap.Int("pareto_front", len(result.ParetoFront)),
		)
	}
	return result
}
