package ports

import (
	"time"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

// Optimizer is the cost-quality optimization contract. Decorators such as
// tracing wrap it without changing results.
type Optimizer interface {
	// Optimize evaluates the catalog with the default configuration. It never
	// fails; infeasibility is reported in the result.
	Optimize(tokens, requests int) domain.OptimizationResult

	// OptimizeWith evaluates the catalog with cfg. It returns an error only
	// when cfg is invalid.
	OptimizeWith(tokens, requests int, cfg domain.OptimizationConfig) (domain.OptimizationResult, error)

	// UpdatePerformance nudges a model's expectations toward observed
	// values. It returns false for an unknown model.
	UpdatePerformance(id string, actualCost, actualQuality float64, actualResponseTime time.Duration) bool

	// AddModel admits a model into the catalog.
	AddModel(spec domain.ModelSpecification) error

	// RemoveModel deletes a model. It returns false for an unknown id.
	RemoveModel(id string) bool

	// Model returns a copy of one catalog entry.
	Model(id string) (domain.ModelSpecification, bool)

	// Models returns copies of every catalog entry ordered by id.
	Models() []domain.ModelSpecification
}
