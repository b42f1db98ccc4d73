package domain

import "time"

// Metric names one of the smoothed signals tracked per provider.
type Metric int

// Tracked provider metrics.
const (
	MetricSuccessRate Metric = iota
	MetricResponseTime
	MetricUnitCost
	MetricQuality

	metricCount
)

// MetricCount is the number of tracked provider metrics.
const MetricCount = int(metricCount)

// String returns the metric's configuration name.
func (m Metric) String() string {
	switch m {
	case MetricSuccessRate:
		return "success_rate"
	case MetricResponseTime:
		return "response_time"
	case MetricUnitCost:
		return "unit_cost"
	case MetricQuality:
		return "quality"
	default:
		return "unknown"
	}
}

// AllMetrics lists the tracked metrics in index order.
func AllMetrics() []Metric {
	return []Metric{MetricSuccessRate, MetricResponseTime, MetricUnitCost, MetricQuality}
}

// ProviderProfile is a read-only snapshot of one provider's learned state.
type ProviderProfile struct {
	ID       string
	Name     string
	Metadata map[string]string

	TotalRequests      int64
	SuccessfulRequests int64

	// Smoothed holds the current exponentially smoothed value per metric.
	// Values are meaningless until Samples > 0.
	Smoothed [MetricCount]float64
	// Trend is last minus first smoothed value across each bounded history.
	Trend [MetricCount]float64
	// Samples is the number of smoothed values currently held per history.
	Samples int

	ReliabilityScore    float64
	CostEfficiencyScore float64
	QualityScore        float64
	SpeedScore          float64
	PreferenceScore     float64

	RegisteredAt time.Time
	LastRequest  time.Time
	// ScoredAt is when PreferenceScore was last recomputed; zero if never.
	ScoredAt time.Time
}

// RawSuccessRate returns SuccessfulRequests/TotalRequests, or zero with no requests.
func (p ProviderProfile) RawSuccessRate() float64 {
	if p.TotalRequests == 0 {
		return 0
	}
	return float64(p.SuccessfulRequests) / float64(p.TotalRequests)
}

// PreferenceWeights weight the component scores of the composite preference.
type PreferenceWeights struct {
	Reliability    float64 `yaml:"reliability" validate:"finite,min=0"`
	CostEfficiency float64 `yaml:"cost_efficiency" validate:"finite,min=0"`
	Quality        float64 `yaml:"quality" validate:"finite,min=0"`
	Speed          float64 `yaml:"speed" validate:"finite,min=0"`
}

// DefaultPreferenceWeights favours reliability and quality over price and speed.
func DefaultPreferenceWeights() PreferenceWeights {
	return PreferenceWeights{
		Reliability:    0.35,
		CostEfficiency: 0.25,
		Quality:        0.30,
		Speed:          0.10,
	}
}
