// Package tokens approximates prompt token volume so the optimizer can price
// a request before it is sent. Estimates are heuristics; they only need to
// be stable and roughly proportional to the provider's real tokenizer.
//
// Estimators:
//   - WordEstimator: word count times a tokens-per-word ratio
//   - CharacterEstimator: byte length divided by a characters-per-token ratio
//   - ProviderEstimator: routes to a per-provider estimator
//   - CachingEstimator: LRU cache in front of any estimator
//
// Typical wiring:
//
//	base := tokens.NewCharacterEstimator(4)
//	est, _ := tokens.NewCachingEstimator(base, 1024)
//	n := est.EstimateTokens(prompt)
package tokens

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Giftedx/crew-sub014/internal/ports"
)

// Default ratios for English prose.
const (
	DefaultTokensPerWord      = 0.75
	DefaultCharactersPerToken = 4.0
	DefaultCacheSize          = 1000
)

var (
	_ ports.TokenEstimator = (*WordEstimator)(nil)
	_ ports.TokenEstimator = (*CharacterEstimator)(nil)
	_ ports.TokenEstimator = (*ProviderEstimator)(nil)
	_ ports.TokenEstimator = (*CachingEstimator)(nil)
)

// WordEstimator estimates from whitespace-separated word count.
type WordEstimator struct{ tokensPerWord float64 }

// NewWordEstimator creates a word estimator. Non-positive ratios use
// DefaultTokensPerWord.
func NewWordEstimator(tokensPerWord float64) *WordEstimator {
	if tokensPerWord <= 0 {
		tokensPerWord = DefaultTokensPerWord
	}
	return &WordEstimator{tokensPerWord: tokensPerWord}
}

// EstimateTokens implements ports.TokenEstimator.
func (e *WordEstimator) EstimateTokens(text string) int {
	return int(float64(len(strings.Fields(text))) * e.tokensPerWord)
}

// CharacterEstimator estimates from byte length. It is the better choice
// for code and other text with few spaces.
type CharacterEstimator struct{ charsPerToken float64 }

// NewCharacterEstimator creates a character estimator. Non-positive ratios
// use DefaultCharactersPerToken.
func NewCharacterEstimator(charsPerToken float64) *CharacterEstimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharactersPerToken
	}
	return &CharacterEstimator{charsPerToken: charsPerToken}
}

// EstimateTokens implements ports.TokenEstimator.
func (e *CharacterEstimator) EstimateTokens(text string) int {
	return int(float64(len(text)) / e.charsPerToken)
}

// ProviderEstimator keeps one estimator per provider id, falling back to a
// default for providers without their own. Safe for concurrent use.
type ProviderEstimator struct {
	mu        sync.RWMutex
	providers map[string]ports.TokenEstimator
	fallback  ports.TokenEstimator
}

// NewProviderEstimator creates a router. A nil fallback uses a
// CharacterEstimator with the default ratio.
func NewProviderEstimator(fallback ports.TokenEstimator) *ProviderEstimator {
	if fallback == nil {
		fallback = NewCharacterEstimator(DefaultCharactersPerToken)
	}
	return &ProviderEstimator{
		providers: make(map[string]ports.TokenEstimator),
		fallback:  fallback,
	}
}

// Set registers the estimator for a provider. A nil estimator removes it.
func (e *ProviderEstimator) Set(provider string, est ports.TokenEstimator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if est == nil {
		delete(e.providers, provider)
		return
	}
	e.providers[provider] = est
}

// EstimateForProvider estimates with the provider's estimator, or the
// fallback if none is registered.
func (e *ProviderEstimator) EstimateForProvider(provider, text string) int {
	e.mu.RLock()
	est, ok := e.providers[provider]
	e.mu.RUnlock()
	if !ok {
		est = e.fallback
	}
	return est.EstimateTokens(text)
}

// EstimateTokens implements ports.TokenEstimator using the fallback.
func (e *ProviderEstimator) EstimateTokens(text string) int {
	return e.fallback.EstimateTokens(text)
}

// CachingEstimator memoizes another estimator in a bounded LRU cache.
// Safe for concurrent use when the underlying estimator is.
type CachingEstimator struct {
	underlying ports.TokenEstimator
	cache      *lru.Cache[string, int]
}

// NewCachingEstimator wraps underlying with a cache of at most size
// entries. Non-positive sizes use DefaultCacheSize.
func NewCachingEstimator(underlying ports.TokenEstimator, size int) (*CachingEstimator, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, err
	}
	return &CachingEstimator{underlying: underlying, cache: cache}, nil
}

// EstimateTokens implements ports.TokenEstimator.
func (e *CachingEstimator) EstimateTokens(text string) int {
	if n, ok := e.cache.Get(text); ok {
		return n
	}
	n := e.underlying.EstimateTokens(text)
	e.cache.Add(text, n)
	return n
}

// Len reports the number of cached estimates.
func (e *CachingEstimator) Len() int { return e.cache.Len() }

// Purge drops every cached estimate.
func (e *CachingEstimator) Purge() { e.cache.Purge() }
