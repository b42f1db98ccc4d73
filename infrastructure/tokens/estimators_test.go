package tokens

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWordEstimator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		text          string
		tokensPerWord float64
		want          int
	}{
		{name: "simple sentence", text: "Hello world how are you", tokensPerWord: 0.75, want: 3},
		{name: "single word", text: "Hello", tokensPerWord: 1, want: 1},
		{name: "empty", text: "", tokensPerWord: 0.75, want: 0},
		{name: "whitespace only", text: "   \t\n  ", tokensPerWord: 0.75, want: 0},
		{name: "collapsed spacing", text: "a    b     c", tokensPerWord: 1, want: 3},
		{name: "default ratio", text: "one two three four", tokensPerWord: 0, want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewWordEstimator(tt.tokensPerWord).EstimateTokens(tt.text))
		})
	}
}

func TestCharacterEstimator(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 3, NewCharacterEstimator(4).EstimateTokens("Hello world!"))
	assert.Equal(t, 250, NewCharacterEstimator(0).EstimateTokens(strings.Repeat("x", 1000)))
	assert.Zero(t, NewCharacterEstimator(4).EstimateTokens(""))
}

func TestProviderEstimator(t *testing.T) {
	t.Parallel()

	est := NewProviderEstimator(nil)
	est.Set("wordy", NewWordEstimator(2))

	text := "four words right here"
	assert.Equal(t, 8, est.EstimateForProvider("wordy", text))
	assert.Equal(t, len(text)/4, est.EstimateForProvider("other", text))
	assert.Equal(t, len(text)/4, est.EstimateTokens(text))

	est.Set("wordy", nil)
	assert.Equal(t, len(text)/4, est.EstimateForProvider("wordy", text))
}

type countingEstimator struct {
	mu    sync.Mutex
	calls int
}

func (c *countingEstimator) EstimateTokens(text string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return len(text)
}

func TestCachingEstimator(t *testing.T) {
	t.Parallel()

	under := &countingEstimator{}
	est, err := NewCachingEstimator(under, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, est.EstimateTokens("abc"))
	assert.Equal(t, 3, est.EstimateTokens("abc"))
	assert.Equal(t, 1, under.calls)

	est.EstimateTokens("de")
	est.EstimateTokens("fgh!")
	assert.Equal(t, 2, est.Len(), "cache is bounded")

	est.EstimateTokens("abc")
	assert.Equal(t, 4, under.calls, "evicted entries are recomputed")

	est.Purge()
	assert.Zero(t, est.Len())
}

func TestCachingEstimator_Concurrent(t *testing.T) {
	t.Parallel()

	est, err := NewCachingEstimator(NewWordEstimator(1), 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				text := fmt.Sprintf("w%d item %d", w, i%10)
				assert.Equal(t, 3, est.EstimateTokens(text))
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 80, est.Len())
}
