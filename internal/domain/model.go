package domain

import (
	"fmt"
	"maps"
	"math"
)

// TokensPerRateUnit is the token volume a per-token Rate is quoted for.
const TokensPerRateUnit = 1000.0

// ReferenceResponseTime is the response time, in seconds, above which time
// pressure starts to reduce a model's effective quality.
const ReferenceResponseTime = 2.0

// ModelSpecification declares one candidate configuration in the catalog.
type ModelSpecification struct {
	// ID uniquely identifies the model within a catalog.
	ID string `yaml:"id" validate:"required,min=1,max=200"`
	// ProviderID names the provider serving the model.
	ProviderID string `yaml:"provider" validate:"required,min=1,max=100"`
	// Name is a display name.
	Name string `yaml:"name" validate:"max=255"`

	// CostModel selects how Rate is applied.
	CostModel CostModel `yaml:"cost_model" validate:"required,costmodel"`
	// Rate is the price per 1,000 tokens (per_token) or per request (per_request).
	Rate float64 `yaml:"rate" validate:"finite,min=0"`
	// ExpectedQuality is the expected quality score in [0,1].
	ExpectedQuality float64 `yaml:"expected_quality" validate:"finite,min=0,max=1"`
	// ExpectedResponseTime is the expected latency in seconds.
	ExpectedResponseTime float64 `yaml:"expected_response_time" validate:"finite,min=0"`

	Metadata map[string]string `yaml:"metadata,omitempty" validate:"max=50"`

	// ObservedCostPerRequest tracks reported per-request cost, smoothed.
	// Zero until the first performance update.
	ObservedCostPerRequest float64 `yaml:"-"`
	// Observations counts performance updates applied to this entry.
	Observations int64 `yaml:"-"`

	// CostObservations counts the updates that carried a usable cost.
	CostObservations int64 `yaml:"-"`
}

// Cost returns the predicted cost of serving the given volume.
// requests below one are treated as a single request.
func (m ModelSpecification) Cost(tokens, requests int) float64 {
	if requests < 1 {
		requests = 1
	}
	if tokens < 0 {
		tokens = 0
	}
	switch m.CostModel {
	case CostPerToken:
		return m.Rate * float64(tokens) / TokensPerRateUnit
	case CostPerRequest:
		return m.Rate * float64(requests)
	default:
		// Catalog admission rejects unknown cost models, so this entry can
		// never be chosen; an infinite cost keeps it out of every feasible set.
		return math.Inf(1)
	}
}

// TaskContext adjusts expected quality for the task at hand.
// Both fields are in [0,1]; the zero value leaves quality unchanged.
type TaskContext struct {
	// Complexity degrades weaker models more than stronger ones.
	Complexity float64 `yaml:"complexity" validate:"finite,min=0,max=1"`
	// TimePressure penalizes models slower than ReferenceResponseTime.
	TimePressure float64 `yaml:"time_pressure" validate:"finite,min=0,max=1"`
}

// Quality returns the expected quality, adjusted for ctx when non-nil and
// clamped to [0,1].
func (m ModelSpecification) Quality(ctx *TaskContext) float64 {
	base := Clamp01(m.ExpectedQuality)
	if ctx == nil {
		return base
	}
	multiplier := 1.0
	if c := Clamp01(ctx.Complexity); c > 0 {
		multiplier *= 1 - 0.3*c*(1-base)
	}
	if p := Clamp01(ctx.TimePressure); p > 0 && m.ExpectedResponseTime > ReferenceResponseTime {
		slowness := math.Min(1, (m.ExpectedResponseTime-ReferenceResponseTime)/ReferenceResponseTime)
		multiplier *= 1 - 0.2*p*slowness
	}
	return Clamp01(base * multiplier)
}

// Clone returns a deep copy.
func (m ModelSpecification) Clone() ModelSpecification {
	c := m
	c.Metadata = maps.Clone(m.Metadata)
	return c
}

// String returns "provider/id".
func (m ModelSpecification) String() string {
	return fmt.Sprintf("%s/%s", m.ProviderID, m.ID)
}
