package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Giftedx/crew-sub014/infrastructure/middleware"
	"github.com/Giftedx/crew-sub014/internal/application"
	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

type simulateOptions struct {
	pools       []string
	rounds      int
	workers     int
	rate        float64
	seed        uint64
	tokens      int
	truth       map[string]string
	budget      float64
	showMetrics bool
}

func simulateCmd(opts *rootOptions) *cobra.Command {
	o := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive synthetic traffic through the bandit pools",
		Long: `Runs select/report rounds against the configured pools. Each arm succeeds
with a fixed probability: the --truth value for the arm if given, otherwise
the expected quality of its catalog model, otherwise 0.5. Successful outcomes
report that probability as their quality.

Example:
  routerctl simulate --rounds 2000 --workers 4 --truth concise=0.8,detailed=0.6`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			return o.run(cmd.Context(), cmd.OutOrStdout(), cfg, opts.logger)
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&o.pools, "pool", nil, "Pools to drive; default all")
	f.IntVar(&o.rounds, "rounds", 1000, "Rounds to run; each round selects once from every pool")
	f.IntVar(&o.workers, "workers", 4, "Concurrent workers")
	f.Float64Var(&o.rate, "rate", 0, "Maximum rounds per second across all workers; 0 is unlimited")
	f.Uint64Var(&o.seed, "seed", 1, "Seed for the synthetic outcomes")
	f.IntVar(&o.tokens, "tokens", 1000, "Token volume used to price catalog-backed outcomes")
	f.StringToStringVar(&o.truth, "truth", nil, "Per-arm success probability, e.g. A=0.9,B=0.7")
	f.Float64Var(&o.budget, "budget", 0, "Override the configured max_spend; 0 keeps the configuration")
	f.BoolVar(&o.showMetrics, "metrics", false, "Print the collected Prometheus metrics")

	return cmd
}

// world holds the ground truth the simulation samples outcomes from.
type world struct {
	truth  map[string]float64
	models map[string]domain.ModelSpecification
	tokens int
}

func (w world) probability(arm string) float64 {
	if p, ok := w.truth[arm]; ok {
		return p
	}
	if m, ok := w.models[arm]; ok {
		return domain.Clamp01(m.ExpectedQuality)
	}
	return domain.NeutralReward
}

func (w world) outcome(arm string, rng *rand.Rand) domain.Outcome {
	p := w.probability(arm)
	out := domain.Outcome{Success: rng.Float64() < p, Quality: p, Latency: time.Second}
	if m, ok := w.models[arm]; ok {
		out.Latency = time.Duration(m.ExpectedResponseTime * float64(time.Second))
		out.Cost = m.Cost(w.tokens, 1)
	}
	return out
}

func (o *simulateOptions) parseTruth() (map[string]float64, error) {
	truth := make(map[string]float64, len(o.truth))
	for arm, raw := range o.truth {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil || p < 0 || p > 1 {
			return nil, fmt.Errorf("--truth %s=%s: probability must be a number in [0,1]", arm, raw)
		}
		truth[arm] = p
	}
	return truth, nil
}

func (o *simulateOptions) run(ctx context.Context, out io.Writer, cfg *application.EngineConfig, logger *zap.Logger) error {
	if o.rounds < 0 || o.workers < 1 {
		return fmt.Errorf("--rounds must be >= 0 and --workers >= 1")
	}
	truth, err := o.parseTruth()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics := middleware.NewPrometheusMetrics(middleware.WithRegisterer(reg))
	budget := middleware.BudgetFromConfig(cfg.Budget)
	if o.budget > 0 {
		budget.MaxSpend = o.budget
	}
	budgets, err := middleware.NewBudgetManager(budget, cfg.Optimizer.OptimizationConfig, metrics)
	if err != nil {
		return err
	}
	engine, err := application.NewEngine(cfg,
		application.WithLogger(logger),
		application.WithSelectorMiddleware(middleware.MetricsSelector(metrics)),
		application.WithOptimizerMiddleware(budgets.Middleware(), middleware.MetricsOptimizer(metrics)),
		application.WithObserver(middleware.NewOTelDecisionObserver(metrics, nil)),
	)
	if err != nil {
		return fmt.Errorf("failed to build engine: %w", err)
	}

	pools := o.pools
	if len(pools) == 0 {
		pools = engine.Pools()
	}
	for _, name := range pools {
		if _, ok := engine.Pool(name); !ok {
			return fmt.Errorf("pool %q: %w", name, ports.ErrUnknownPool)
		}
	}

	w := world{truth: truth, models: make(map[string]domain.ModelSpecification, len(cfg.Catalog)), tokens: o.tokens}
	for _, m := range cfg.Catalog {
		w.models[m.ID] = m
	}

	var limiter *rate.Limiter
	if o.rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(o.rate), 1)
	}

	start := time.Now()
	var remaining atomic.Int64
	remaining.Store(int64(o.rounds))
	g, gctx := errgroup.WithContext(ctx)
	for i := range o.workers {
		rng := rand.New(rand.NewPCG(o.seed, uint64(i)))
		g.Go(func() error {
			for remaining.Add(-1) >= 0 {
				if limiter != nil {
					if err := limiter.Wait(gctx); err != nil {
						return err
					}
				}
				for _, name := range pools {
					d, err := engine.Select(gctx, name)
					if errors.Is(err, ports.ErrNoCandidates) {
						continue
					}
					if err != nil {
						return err
					}
					engine.Report(gctx, d.ID, w.outcome(d.CandidateID, rng))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	elapsed := time.Since(start)
	logger.Info("simulation finished",
		zap.Int("rounds", o.rounds),
		zap.Int("workers", o.workers),
		zap.Duration("elapsed", elapsed),
	)

	engine.RecomputePreferences()
	fmt.Fprintf(out, "Simulated %d rounds with %d workers in %s\n\n", o.rounds, o.workers, elapsed.Round(time.Millisecond))
	printPools(out, engine, pools, w)
	printProviders(out, engine)
	printBudget(ctx, out, engine, budgets, budget, o.tokens)

	if o.showMetrics {
		return printMetrics(out, reg)
	}
	return nil
}

func printPools(out io.Writer, engine *application.Engine, pools []string, w world) {
	for _, snap := range engine.Snapshot() {
		if !slices.Contains(pools, snap.Name) {
			continue
		}
		m := snap.Metrics
		fmt.Fprintf(out, "Pool %s (%s): %d selections, %d observations, average reward %.3f\n",
			snap.Name, snap.Strategy, m.TotalSelections, m.TotalObservations, m.AverageReward())
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  ARM\tPULLS\tOBSERVED\tAVG REWARD\tEXPECTED\tTRUE P")
		for _, a := range snap.Arms {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%.3f\t%.3f\t%.3f\n",
				a.ID, a.Pulls, a.Observations, a.AverageReward, a.ExpectedReward, w.probability(a.ID))
		}
		_ = tw.Flush()
		fmt.Fprintln(out)
	}
}

func printProviders(out io.Writer, engine *application.Engine) {
	ranking := engine.Learner().Ranking()
	if len(ranking) == 0 {
		return
	}
	fmt.Fprintln(out, "Providers:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  PROVIDER\tREQUESTS\tRELIABILITY\tCOST\tQUALITY\tSPEED\tPREFERENCE")
	for _, p := range ranking {
		fmt.Fprintf(tw, "  %s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\n",
			p.ID, p.TotalRequests, p.ReliabilityScore, p.CostEfficiencyScore, p.QualityScore, p.SpeedScore, p.PreferenceScore)
	}
	_ = tw.Flush()
	if best, ok := engine.Recommend(); ok {
		fmt.Fprintf(out, "Recommended provider: %s\n", best)
	}
}

func printBudget(ctx context.Context, out io.Writer, engine *application.Engine, bm *middleware.BudgetManager, budget middleware.Budget, tokens int) {
	usage := bm.Usage()
	if budget.MaxSpend > 0 {
		fmt.Fprintf(out, "Spend: %.6f of %.6f\n", usage.Spend, budget.MaxSpend)
	} else {
		fmt.Fprintf(out, "Spend: %.6f (unlimited)\n", usage.Spend)
	}
	result := engine.Optimize(ctx, tokens, 1)
	if result.SelectedModel == nil {
		fmt.Fprintf(out, "Optimizer: no model fits the remaining budget for %d tokens\n", tokens)
		return
	}
	fmt.Fprintf(out, "Optimizer: %s for %d tokens (score %.4f)\n", result.SelectedModel.ID, tokens, result.Score)
}

func printMetrics(out io.Writer, reg *prometheus.Registry) error {
	families, err := reg.Gather()
	if err != nil {
		return ports.NewMetricsError("registry", "Gather", err)
	}
	fmt.Fprintln(out)
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(out, mf); err != nil {
			return ports.NewMetricsError(mf.GetName(), "MetricFamilyToText", err)
		}
	}
	return nil
}
