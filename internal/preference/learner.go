// Package preference learns which providers to prefer from observed request
// outcomes. Per-request reporting only updates smoothed metrics; composite
// scores change when RecomputePreferences runs.
package preference

import (
	"maps"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

// Defaults applied when a config field is left at its zero value.
const (
	DefaultSmoothingFactor    = 0.1
	DefaultHistorySize        = 100
	DefaultConfidenceRequests = 10
)

// Config configures a Learner.
type Config struct {
	// SmoothingFactor is alpha in smoothed = alpha*observed + (1-alpha)*previous.
	SmoothingFactor float64 `yaml:"smoothing_factor" validate:"finite,min=0,max=1"`
	// HistorySize bounds each per-metric history.
	HistorySize int `yaml:"history_size" validate:"min=0,max=100000"`
	// ConfidenceRequests is the request volume at which the reliability
	// score trusts the observed success rate and the neutral prior equally.
	ConfidenceRequests int `yaml:"confidence_requests" validate:"min=0"`
	// Weights combine the component scores. nil uses DefaultPreferenceWeights.
	Weights *domain.PreferenceWeights `yaml:"weights"`
}

func (c Config) withDefaults() Config {
	if !(c.SmoothingFactor > 0 && c.SmoothingFactor <= 1) {
		c.SmoothingFactor = DefaultSmoothingFactor
	}
	if c.HistorySize <= 0 {
		c.HistorySize = DefaultHistorySize
	}
	if c.ConfidenceRequests <= 0 {
		c.ConfidenceRequests = DefaultConfidenceRequests
	}
	if c.Weights == nil {
		w := domain.DefaultPreferenceWeights()
		c.Weights = &w
	}
	return c
}

// Option customizes a Learner.
type Option func(*Learner)

// WithLogger sets the logger. The default discards all output.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Learner) {
		if logger != nil {
			l.logger = logger
		}
	}
}

type provider struct {
	id       string
	name     string
	metadata map[string]string

	total      int64
	successful int64

	smoothed [domain.MetricCount]float64
	history  [domain.MetricCount]*history[float64]

	reliability    float64
	costEfficiency float64
	quality        float64
	speed          float64
	preference     float64

	registeredAt time.Time
	lastRequest  time.Time
	scoredAt     time.Time
}

func (p *provider) samples() int { return p.history[domain.MetricSuccessRate].len() }

func (p *provider) observed(m domain.Metric) bool { return p.history[m].len() > 0 }

func (p *provider) resetState() {
	p.total = 0
	p.successful = 0
	p.smoothed = [domain.MetricCount]float64{}
	for _, h := range p.history {
		h.clear()
	}
	p.reliability = domain.NeutralReward
	p.costEfficiency = domain.NeutralReward
	p.quality = domain.NeutralReward
	p.speed = domain.NeutralReward
	p.preference = domain.NeutralReward
	p.lastRequest = time.Time{}
	p.scoredAt = time.Time{}
}

func (p *provider) snapshot() domain.ProviderProfile {
	prof := domain.ProviderProfile{
		ID:                  p.id,
		Name:                p.name,
		Metadata:            maps.Clone(p.metadata),
		TotalRequests:       p.total,
		SuccessfulRequests:  p.successful,
		Smoothed:            p.smoothed,
		Samples:             p.samples(),
		ReliabilityScore:    p.reliability,
		CostEfficiencyScore: p.costEfficiency,
		QualityScore:        p.quality,
		SpeedScore:          p.speed,
		PreferenceScore:     p.preference,
		RegisteredAt:        p.registeredAt,
		LastRequest:         p.lastRequest,
		ScoredAt:            p.scoredAt,
	}
	for _, m := range domain.AllMetrics() {
		prof.Trend[m] = p.trend(m)
	}
	return prof
}

func (p *provider) trend(m domain.Metric) float64 {
	h := p.history[m]
	first, ok := h.first()
	if !ok {
		return 0
	}
	last, _ := h.last()
	return last - first
}

// Learner tracks per-provider request outcomes and ranks providers by a
// weighted composite of reliability, cost efficiency, quality and speed.
type Learner struct {
	mu        sync.RWMutex
	cfg       Config
	weights   []float64
	weightsOK bool
	providers map[string]*provider
	order     []string
	logger    *zap.Logger
}

// NewLearner creates a learner. Zero-valued config fields take their
// defaults. If every weight is zero, composite scores stay at the neutral
// default instead of dividing by zero.
func NewLearner(cfg Config, opts ...Option) *Learner {
	cfg = cfg.withDefaults()
	l := &Learner{
		cfg:       cfg,
		providers: make(map[string]*provider),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	w := cfg.Weights
	l.weights, l.weightsOK = domain.NormalizeWeights(w.Reliability, w.CostEfficiency, w.Quality, w.Speed)
	if !l.weightsOK {
		l.logger.Warn("preference weights sum to zero; composite scores stay neutral")
	}
	return l
}

// Config returns the effective configuration.
func (l *Learner) Config() Config { return l.cfg }

// Register adds a provider. It returns false for an empty or duplicate id.
func (l *Learner) Register(id, name string, metadata map[string]string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.providers[id]; exists {
		return false
	}
	p := &provider{
		id:           id,
		name:         name,
		metadata:     maps.Clone(metadata),
		registeredAt: time.Now(),
	}
	for i := range p.history {
		p.history[i] = newHistory[float64](l.cfg.HistorySize)
	}
	p.resetState()
	l.providers[id] = p
	l.order = append(l.order, id)
	l.logger.Info("provider registered", zap.String("provider", id))
	return true
}

// ReportRequest records one completed request. It returns false for an
// unknown provider. A negative latency, a negative or non-finite cost, or a
// NaN quality is skipped for that metric only. Scores are not recomputed.
func (l *Learner) ReportRequest(id string, success bool, latency time.Duration, cost, quality float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.providers[id]
	if !ok {
		l.logger.Debug("request for unknown provider", zap.String("provider", id))
		return false
	}

	p.total++
	observed := [domain.MetricCount]float64{
		domain.MetricSuccessRate:  0,
		domain.MetricResponseTime: latency.Seconds(),
		domain.MetricUnitCost:     cost,
		domain.MetricQuality:      domain.Clamp01(quality),
	}
	usable := [domain.MetricCount]bool{
		domain.MetricSuccessRate:  true,
		domain.MetricResponseTime: latency >= 0,
		domain.MetricUnitCost:     domain.IsFinite(cost) && cost >= 0,
		domain.MetricQuality:      !math.IsNaN(quality),
	}
	if success {
		p.successful++
		observed[domain.MetricSuccessRate] = 1
	}

	// Each metric smooths only its usable observations, so one bad value
	// leaves that metric where it was.
	for _, m := range domain.AllMetrics() {
		if !usable[m] {
			l.logger.Debug("ignoring unusable observation",
				zap.String("provider", id),
				zap.Stringer("metric", m),
				zap.Float64("value", observed[m]),
			)
			continue
		}
		if p.history[m].len() == 0 {
			p.smoothed[m] = observed[m]
		} else {
			p.smoothed[m] = domain.Smooth(l.cfg.SmoothingFactor, observed[m], p.smoothed[m])
		}
		p.history[m].push(p.smoothed[m])
	}
	p.lastRequest = time.Now()

	if ce := l.logger.Check(zap.DebugLevel, "request recorded"); ce != nil {
		ce.Write(
			zap.String("provider", id),
			zap.Bool("success", success),
			zap.Float64("success_rate", p.smoothed[domain.MetricSuccessRate]),
		)
	}
	return true
}

// RecomputePreferences refreshes every provider's component and composite
// scores from one consistent view of the smoothed metrics.
func (l *Learner) RecomputePreferences() {
	l.mu.Lock()
	defer l.mu.Unlock()

	minCost, costOK := l.minObserved(domain.MetricUnitCost)
	minLatency, latencyOK := l.minObserved(domain.MetricResponseTime)
	now := time.Now()
	k := float64(l.cfg.ConfidenceRequests)

	for _, p := range l.providers {
		if p.samples() == 0 {
			p.reliability = domain.NeutralReward
			p.costEfficiency = domain.NeutralReward
			p.quality = domain.NeutralReward
			p.speed = domain.NeutralReward
		} else {
			n := float64(p.total)
			confidence := n / (n + k)
			p.reliability = confidence*p.smoothed[domain.MetricSuccessRate] + (1-confidence)*domain.NeutralReward
			p.costEfficiency = relativeScore(minCost, p.smoothed[domain.MetricUnitCost], costOK && p.observed(domain.MetricUnitCost))
			p.speed = relativeScore(minLatency, p.smoothed[domain.MetricResponseTime], latencyOK && p.observed(domain.MetricResponseTime))
			p.quality = domain.NeutralReward
			if p.observed(domain.MetricQuality) {
				p.quality = domain.Clamp01(p.smoothed[domain.MetricQuality])
			}
		}

		if l.weightsOK {
			components := []float64{p.reliability, p.costEfficiency, p.quality, p.speed}
			p.preference = floats.Dot(l.weights, components)
		} else {
			p.preference = domain.NeutralReward
		}
		p.scoredAt = now
	}
	l.logger.Debug("preferences recomputed", zap.Int("providers", len(l.providers)))
}

// minObserved is the smallest smoothed value of m across providers that
// have at least one usable observation of m.
func (l *Learner) minObserved(m domain.Metric) (float64, bool) {
	var values []float64
	for _, p := range l.providers {
		if p.observed(m) {
			values = append(values, p.smoothed[m])
		}
	}
	if len(values) == 0 {
		return 0, false
	}
	return floats.Min(values), true
}

// relativeScore is best/value, so the best provider scores 1. A value of
// zero is treated as best.
func relativeScore(best, value float64, ok bool) float64 {
	switch {
	case !ok:
		return domain.NeutralReward
	case value <= 0:
		return 1
	default:
		return domain.Clamp01(best / value)
	}
}

// Ranking returns every provider sorted by preference score descending,
// ties broken by id.
func (l *Learner) Ranking() []domain.ProviderProfile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ProviderProfile, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.providers[id].snapshot())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PreferenceScore != out[j].PreferenceScore {
			return out[i].PreferenceScore > out[j].PreferenceScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TopProviders returns up to n ranked providers. n <= 0 returns all.
func (l *Learner) TopProviders(n int) []domain.ProviderProfile {
	ranked := l.Ranking()
	if n > 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Recommend returns the top-ranked provider id. ok is false with no providers.
func (l *Learner) Recommend() (string, bool) {
	top := l.TopProviders(1)
	if len(top) == 0 {
		return "", false
	}
	return top[0].ID, true
}

// Profile returns a snapshot of one provider.
func (l *Learner) Profile(id string) (domain.ProviderProfile, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.providers[id]
	if !ok {
		return domain.ProviderProfile{}, false
	}
	return p.snapshot(), true
}

// History returns the held smoothed values of one metric, oldest first.
func (l *Learner) History(id string, m domain.Metric) ([]float64, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.providers[id]
	if !ok || m < 0 || int(m) >= domain.MetricCount {
		return nil, false
	}
	return p.history[m].values(), true
}

// Reset clears a provider's counts and history, keeping its identity.
func (l *Learner) Reset(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.providers[id]
	if !ok {
		return false
	}
	p.resetState()
	l.logger.Info("provider reset", zap.String("provider", id))
	return true
}

// ResetAll clears every provider.
func (l *Learner) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.providers {
		p.resetState()
	}
	l.logger.Info("all providers reset", zap.Int("providers", len(l.providers)))
}

// Remove unregisters a provider.
func (l *Learner) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.providers[id]; !ok {
		return false
	}
	delete(l.providers, id)
	for i, oid := range l.order {
		if oid == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.logger.Info("provider removed", zap.String("provider", id))
	return true
}
