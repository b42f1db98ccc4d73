package main

import (
	"bytes"
	"context"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
	"github.com/Giftedx/crew-sub014/internal/testutils"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testutils.SampleEngineYAML)
	out, err := runCmd(t, "validate", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, `Configuration "routing" (version 1.0.0) is valid`)
	assert.Contains(t, out, "pools:     2")
	assert.Contains(t, out, "models:    3")
	assert.Contains(t, out, "providers: 2")
	assert.Contains(t, out, "pool chat: posterior_sampling, 3 arms")
	assert.Contains(t, out, "pool prompts: confidence_bound, 2 arms")
}

func TestRootOptions_LoadConfig(t *testing.T) {
	t.Parallel()

	opts := &rootOptions{configPath: writeConfig(t, testutils.SampleEngineYAML)}
	cfg, err := opts.loadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "routing", cfg.Metadata.Name)
	assert.Len(t, cfg.Catalog, 3)

	// Each load hands back its own copy.
	cfg.Metadata.Name = "changed"
	again, err := opts.loadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "routing", again.Metadata.Name)

	opts.configPath = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = opts.loadConfig(context.Background())
	require.ErrorIs(t, err, ports.ErrConfigNotFound)
}

func TestValidateCommand_ShippedConfig(t *testing.T) {
	t.Parallel()

	out, err := runCmd(t, "validate", "-c", filepath.Join("..", "..", "configs", "engine.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "pool models: posterior_sampling, 4 arms")
	assert.Contains(t, out, "pool system-prompts: confidence_bound, 3 arms")
}

func TestValidateCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    func(t *testing.T) []string
		wantErr string
		wantIs  error
	}{
		{
			name: "missing file",
			args: func(t *testing.T) []string {
				return []string{"validate", "-c", filepath.Join(t.TempDir(), "absent.yaml")}
			},
			wantIs: ports.ErrConfigNotFound,
		},
		{
			name: "invalid version",
			args: func(t *testing.T) []string {
				cfg := strings.Replace(testutils.SampleEngineYAML, `version: "1.0.0"`, `version: "one"`, 1)
				return []string{"validate", "-c", writeConfig(t, cfg)}
			},
			wantErr: "semver",
		},
		{
			name: "bad log level",
			args: func(t *testing.T) []string {
				return []string{"validate", "--log-level", "loud", "-c", writeConfig(t, testutils.SampleEngineYAML)}
			},
			wantErr: "invalid --log-level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := runCmd(t, tt.args(t)...)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestOptimizeCommand(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testutils.SampleEngineYAML)

	tests := []struct {
		name     string
		args     []string
		contains []string
		wantErr  string
	}{
		{
			name:     "configured weighted sum",
			args:     []string{"--tokens", "1000"},
			contains: []string{"Algorithm: weighted_sum", "Selected: B (score 0.9250", "MODEL"},
		},
		{
			name:     "pareto front",
			args:     []string{"--algorithm", "pareto_front"},
			contains: []string{"Algorithm: pareto_front", "Pareto front:"},
		},
		{
			name:     "infeasible ceiling",
			args:     []string{"--max-cost", "0.0001"},
			contains: []string{"No model satisfies the constraints."},
		},
		{
			name:     "prompt estimation",
			args:     []string{"--prompt", "Summarize the quarterly report in three sentences."},
			contains: []string{"Selected:"},
		},
		{
			name:    "unknown algorithm",
			args:    []string{"--algorithm", "simulated_annealing"},
			wantErr: "simulated_annealing",
		},
		{
			name:    "nan min quality",
			args:    []string{"--min-quality", "NaN"},
			wantErr: "min_quality_threshold",
		},
		{
			name:    "nan max cost",
			args:    []string{"--max-cost", "NaN"},
			wantErr: "max_cost_per_request",
		},
		{
			name:    "tokens and prompt together",
			args:    []string{"--tokens", "10", "--prompt", "hi"},
			wantErr: "none of the others can be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := append([]string{"optimize", "-c", path}, tt.args...)
			out, err := runCmd(t, args...)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestSimulateCommand(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testutils.SampleEngineYAML)
	out, err := runCmd(t, "simulate", "-c", path,
		"--rounds", "200", "--workers", "3", "--seed", "7",
		"--truth", "concise=0.9,detailed=0.1", "--metrics")
	require.NoError(t, err)

	assert.Contains(t, out, "Simulated 200 rounds with 3 workers")
	assert.Contains(t, out, "Pool chat (posterior_sampling): 200 selections, 200 observations")
	assert.Contains(t, out, "Pool prompts (confidence_bound): 200 selections, 200 observations")
	assert.Contains(t, out, "Providers:")
	assert.Contains(t, out, "Recommended provider:")
	assert.Contains(t, out, "bandit_selections_total")
	assert.Contains(t, out, "decisions_total")
	assert.Contains(t, out, "Spend:")
	assert.Contains(t, out, "(unlimited)")
	assert.Contains(t, out, "Optimizer: ")
}

func TestSimulateCommand_Budget(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testutils.SampleEngineYAML)
	out, err := runCmd(t, "simulate", "-c", path, "--pool", "chat", "--rounds", "100", "--budget", "0.0001", "--metrics")
	require.NoError(t, err)

	assert.Contains(t, out, "of 0.000100")
	assert.Contains(t, out, "Optimizer: no model fits the remaining budget for 1000 tokens")
	assert.Contains(t, out, "budget_exhausted_total")
}

func TestSimulateCommand_SinglePool(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testutils.SampleEngineYAML)
	out, err := runCmd(t, "simulate", "-c", path, "--pool", "prompts", "--rounds", "20", "--workers", "1")
	require.NoError(t, err)

	assert.Contains(t, out, "Pool prompts (confidence_bound): 20 selections, 20 observations")
	assert.NotContains(t, out, "Pool chat")
}

func TestSimulateCommand_Errors(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, testutils.SampleEngineYAML)

	tests := []struct {
		name    string
		args    []string
		wantErr string
		wantIs  error
	}{
		{name: "unknown pool", args: []string{"--pool", "vision"}, wantIs: ports.ErrUnknownPool},
		{name: "probability out of range", args: []string{"--truth", "A=1.5"}, wantErr: "--truth A=1.5"},
		{name: "probability not a number", args: []string{"--truth", "A=high"}, wantErr: "--truth A=high"},
		{name: "no workers", args: []string{"--workers", "0"}, wantErr: "--workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := append([]string{"simulate", "-c", path}, tt.args...)
			_, err := runCmd(t, args...)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWorldOutcome(t *testing.T) {
	t.Parallel()

	w := world{
		truth:  map[string]float64{"A": 0.2},
		models: map[string]domain.ModelSpecification{},
		tokens: 1000,
	}
	for _, m := range testutils.SampleCatalog() {
		w.models[m.ID] = m
	}

	tests := []struct {
		arm      string
		wantP    float64
		wantCost float64
	}{
		{arm: "A", wantP: 0.2, wantCost: 0.001},
		{arm: "B", wantP: 0.9, wantCost: 0.002},
		{arm: "concise", wantP: domain.NeutralReward, wantCost: 0},
	}
	for _, tt := range tests {
		t.Run(tt.arm, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.wantP, w.probability(tt.arm), 1e-12)

			rng := rand.New(rand.NewPCG(1, 2))
			out := w.outcome(tt.arm, rng)
			assert.InDelta(t, tt.wantP, out.Quality, 1e-12)
			assert.InDelta(t, tt.wantCost, out.Cost, 1e-9)
			assert.Equal(t, time.Second, out.Latency)
		})
	}
}
