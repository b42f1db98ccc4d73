package bandit

import (
	"maps"
	"math"
	"sort"
	"time"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

// arm is the mutable per-candidate state. It is only touched while the
// owning bandit holds its lock.
type arm struct {
	id       string
	name     string
	metadata map[string]string

	pulls        int64
	observations int64
	cumulative   float64
	sumSquares   float64

	alpha float64
	beta  float64

	// upperBound caches the last bound computed by Select.
	upperBound float64

	registeredAt time.Time
	lastUpdated  time.Time
}

func (a *arm) average() float64 {
	if a.observations == 0 {
		return domain.NeutralReward
	}
	return a.cumulative / float64(a.observations)
}

// variance is the sample variance of observed rewards, zero with fewer
// than two observations.
func (a *arm) variance() float64 {
	if a.observations < 2 {
		return 0
	}
	mean := a.average()
	v := a.sumSquares/float64(a.observations) - mean*mean
	return math.Max(0, v)
}

// statsStore holds the arms and aggregate counters of one bandit. It is not
// safe for concurrent use on its own; the owning bandit serializes access.
type statsStore struct {
	arms    map[string]*arm
	order   []string
	metrics domain.BanditMetrics

	priorAlpha float64
	priorBeta  float64
}

func newStatsStore(priorAlpha, priorBeta float64) *statsStore {
	return &statsStore{
		arms:       make(map[string]*arm),
		priorAlpha: priorAlpha,
		priorBeta:  priorBeta,
	}
}

func (s *statsStore) register(id, name string, metadata map[string]string) bool {
	if id == "" {
		return false
	}
	if _, exists := s.arms[id]; exists {
		return false
	}
	now := time.Now()
	s.arms[id] = &arm{
		id:           id,
		name:         name,
		metadata:     maps.Clone(metadata),
		alpha:        s.priorAlpha,
		beta:         s.priorBeta,
		registeredAt: now,
		lastUpdated:  now,
	}
	s.order = append(s.order, id)
	s.metrics.Arms = len(s.arms)
	return true
}

func (s *statsStore) get(id string) (*arm, bool) {
	a, ok := s.arms[id]
	return a, ok
}

func (s *statsStore) len() int { return len(s.order) }

// ordered returns arms in registration order.
func (s *statsStore) ordered() []*arm {
	out := make([]*arm, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.arms[id])
	}
	return out
}

func (s *statsStore) recordSelection(a *arm) {
	a.pulls++
	s.metrics.TotalSelections++
	a.lastUpdated = time.Now()
}

func (s *statsStore) recordEmptySelection() {
	s.metrics.EmptySelections++
}

// recordReward applies an effective reward already clamped to [0,1].
func (s *statsStore) recordReward(a *arm, reward float64, clamped bool) {
	a.observations++
	a.cumulative += reward
	a.sumSquares += reward * reward
	a.lastUpdated = time.Now()

	s.metrics.TotalObservations++
	s.metrics.TotalReward += reward
	if clamped {
		s.metrics.ClampedRewards++
	}
}

// forget removes an arm's contribution from the aggregate counters.
func (s *statsStore) forget(a *arm) {
	s.metrics.TotalSelections -= a.pulls
	s.metrics.TotalObservations -= a.observations
	s.metrics.TotalReward -= a.cumulative
	if s.metrics.TotalObservations == 0 {
		// Avoid carrying floating point residue into an empty total.
		s.metrics.TotalReward = 0
	}
}

func (s *statsStore) resetArm(a *arm) {
	s.forget(a)
	a.pulls = 0
	a.observations = 0
	a.cumulative = 0
	a.sumSquares = 0
	a.alpha = s.priorAlpha
	a.beta = s.priorBeta
	a.upperBound = 0
	a.lastUpdated = time.Now()
}

func (s *statsStore) reset(id string) bool {
	a, ok := s.arms[id]
	if !ok {
		return false
	}
	s.resetArm(a)
	return true
}

func (s *statsStore) resetAll() {
	for _, a := range s.arms {
		s.resetArm(a)
	}
	s.metrics = domain.BanditMetrics{Arms: len(s.arms)}
}

func (s *statsStore) remove(id string) bool {
	a, ok := s.arms[id]
	if !ok {
		return false
	}
	s.forget(a)
	delete(s.arms, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.metrics.Arms = len(s.arms)
	return true
}

func (s *statsStore) snapshot(a *arm, expected float64) domain.ArmStats {
	return domain.ArmStats{
		ID:               a.id,
		Name:             a.name,
		Metadata:         maps.Clone(a.metadata),
		Pulls:            a.pulls,
		Observations:     a.observations,
		CumulativeReward: a.cumulative,
		AverageReward:    a.average(),
		Alpha:            a.alpha,
		Beta:             a.beta,
		ExpectedReward:   expected,
		UpperBound:       a.upperBound,
		RegisteredAt:     a.registeredAt,
		LastUpdated:      a.lastUpdated,
	}
}

// ranked returns up to n snapshots sorted by expected reward descending,
// then observations descending, then registration order.
func (s *statsStore) ranked(n int, expected func(*arm) float64) []domain.ArmStats {
	out := make([]domain.ArmStats, 0, len(s.order))
	for _, a := range s.ordered() {
		out = append(out, s.snapshot(a, expected(a)))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ExpectedReward != out[j].ExpectedReward {
			return out[i].ExpectedReward > out[j].ExpectedReward
		}
		return out[i].Observations > out[j].Observations
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}

func (s *statsStore) underSampled(minSamples int) bool {
	for _, a := range s.arms {
		if a.observations < int64(minSamples) {
			return true
		}
	}
	return false
}

// effectiveReward clamps reward and applies the reward kind. ok is false
// for an unrecognized kind.
func effectiveReward(reward float64, kind domain.RewardKind) (value float64, clamped, ok bool) {
	r := domain.Clamp01(reward)
	clamped = r != reward
	switch kind {
	case domain.RewardBinary:
		if r >= 0.5 {
			return 1, clamped, true
		}
		return 0, clamped, true
	case domain.RewardContinuous:
		return r, clamped, true
	default:
		return 0, clamped, false
	}
}
