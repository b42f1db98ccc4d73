package domain

import "time"

// NeutralReward is the expected reward reported for an arm with no observations.
const NeutralReward = 0.5

// ArmStats is a read-only snapshot of one bandit arm.
// Snapshots are copies; mutating one never affects the owning bandit.
type ArmStats struct {
	// ID is the stable identifier the arm was registered under.
	ID string
	// Name is a display name.
	Name string
	// Metadata is free-form caller data attached at registration.
	Metadata map[string]string

	// Pulls counts how many times Select chose this arm.
	Pulls int64
	// Observations counts how many outcomes were reported for this arm.
	Observations int64
	// CumulativeReward is the sum of all clamped rewards reported.
	CumulativeReward float64
	// AverageReward is CumulativeReward/Observations, or NeutralReward
	// when nothing has been observed.
	AverageReward float64

	// Alpha and Beta are the posterior-sampling strength parameters.
	// They are zero for confidence-bound arms.
	Alpha float64
	Beta  float64

	// ExpectedReward is the value used for ranking: the posterior mean for
	// posterior-sampling arms, AverageReward for confidence-bound arms.
	ExpectedReward float64

	// UpperBound is the most recent confidence bound computed for this arm.
	// It is zero for posterior-sampling arms.
	UpperBound float64

	RegisteredAt time.Time
	LastUpdated  time.Time
}

// BanditMetrics holds the aggregate counters of one bandit instance.
// TotalSelections always equals the sum of every registered arm's Pulls.
type BanditMetrics struct {
	// TotalSelections counts Select calls that chose an arm.
	TotalSelections int64
	// EmptySelections counts Select calls made with no registered arms.
	EmptySelections int64
	// TotalObservations counts outcomes applied across all arms.
	TotalObservations int64
	// TotalReward sums clamped rewards across all arms.
	TotalReward float64
	// ClampedRewards counts rewards that arrived outside [0,1].
	ClampedRewards int64
	// Arms is the number of registered arms.
	Arms int
}

// AverageReward returns TotalReward/TotalObservations, or NeutralReward
// when nothing has been observed.
func (m BanditMetrics) AverageReward() float64 {
	if m.TotalObservations == 0 {
		return NeutralReward
	}
	return m.TotalReward / float64(m.TotalObservations)
}

// ArmExploration describes how much of an arm's score comes from uncertainty.
type ArmExploration struct {
	ID            string
	AverageReward float64
	// Bonus is the uncertainty component: bound minus average for
	// confidence-bound arms, posterior standard deviation for
	// posterior-sampling arms. Untried confidence-bound arms report +Inf.
	Bonus float64
	Pulls int64
}

// ExplorationReport is the monitoring view returned by ExplorationAnalysis.
type ExplorationReport struct {
	Arms []ArmExploration
	// MostUncertain is the arm with the largest Bonus, empty with no arms.
	MostUncertain string
	// NeedsExploration is true while any arm is under its minimum sample count.
	NeedsExploration bool
}
