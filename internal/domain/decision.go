package domain

import "time"

// Outcome is what a caller observed after executing a selected candidate.
type Outcome struct {
	Success bool
	// Quality is the observed quality score in [0,1].
	Quality float64
	// Latency is the observed response time.
	Latency time.Duration
	// Cost is the actual cost of the request.
	Cost float64
}

// Reward collapses an outcome into a bandit reward in [0,1]: failed
// requests earn nothing, successful ones earn their quality.
func (o Outcome) Reward() float64 {
	if !o.Success {
		return 0
	}
	return Clamp01(o.Quality)
}

// Decision records one selection made through an engine so the outcome can
// later be routed back to the component that produced it.
type Decision struct {
	// ID correlates the decision with its later outcome report.
	ID string
	// Pool names the bandit pool that made the selection.
	Pool string
	// CandidateID is the selected arm.
	CandidateID string
	// ProviderID is the catalog provider of the candidate, if it is a
	// catalog model.
	ProviderID string
	Strategy   Strategy
	CreatedAt  time.Time
}
