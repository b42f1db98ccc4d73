package ports

import "github.com/Giftedx/crew-sub014/internal/domain"

// Selector is the contract shared by every bandit strategy.
// Implementations are safe for concurrent use. None of the methods block on
// I/O; each is bounded by the number of registered arms.
type Selector interface {
	// Strategy reports which bandit strategy backs the selector.
	Strategy() domain.Strategy

	// Register adds an arm. It returns false if the id is already registered.
	Register(id, name string, metadata map[string]string) bool

	// Select chooses an arm. ok is false when no arms are registered.
	Select() (id string, ok bool)

	// ReportOutcome applies a reward in [0,1] for the arm. Out-of-range
	// rewards are clamped. It returns false for an unknown id.
	ReportOutcome(id string, reward float64) bool

	// ReportOutcomeKind is ReportOutcome with an explicit reward kind.
	ReportOutcomeKind(id string, reward float64, kind domain.RewardKind) bool

	// StatsFor returns a snapshot of one arm.
	StatsFor(id string) (domain.ArmStats, bool)

	// BestCandidates returns up to n arms ordered by expected reward,
	// descending; ties go to the arm with more observations. n <= 0 returns all.
	BestCandidates(n int) []domain.ArmStats

	// Metrics returns the aggregate counters.
	Metrics() domain.BanditMetrics

	// ExplorationAnalysis reports each arm's uncertainty component.
	ExplorationAnalysis() domain.ExplorationReport

	// ShouldExplore is true while any arm is under the minimum sample count.
	ShouldExplore() bool

	// Reset restores one arm to its just-registered state.
	Reset(id string) bool

	// ResetAll restores every arm and zeroes the aggregate counters.
	ResetAll()

	// Remove unregisters an arm.
	Remove(id string) bool
}
