package domain

import "math"

// Clamp01 limits v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// IsFinite reports whether v is neither NaN nor an infinity.
func IsFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Smooth applies one exponential smoothing step.
func Smooth(alpha, observed, previous float64) float64 {
	return alpha*observed + (1-alpha)*previous
}

// NormalizeWeights returns the weights scaled to sum to one. When the total
// is not positive every weight becomes 1/len(weights) so callers never
// divide by zero. ok reports whether the input weights were usable.
func NormalizeWeights(weights ...float64) (normalized []float64, ok bool) {
	normalized = make([]float64, len(weights))
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		for i := range normalized {
			normalized[i] = 1 / float64(len(weights))
		}
		return normalized, false
	}
	for i, w := range weights {
		if w > 0 {
			normalized[i] = w / total
		}
	}
	return normalized, true
}
