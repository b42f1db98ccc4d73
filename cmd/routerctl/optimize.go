package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Giftedx/crew-sub014/internal/application"
	"github.com/Giftedx/crew-sub014/internal/domain"
)

type optimizeOptions struct {
	tokens        int
	requests      int
	prompt        string
	algorithm     string
	objective     string
	costWeight    float64
	qualityWeight float64
	maxCost       float64
	minQuality    float64
	complexity    float64
	timePressure  float64
}

func optimizeCmd(opts *rootOptions) *cobra.Command {
	o := &optimizeOptions{}
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Pick the best catalog model for a workload",
		Long: `Runs the cost-quality optimizer over the configured catalog. Flags that are
set override the optimizer section of the configuration for this run only.
With --prompt the token volume is estimated from the prompt text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			engine, err := application.NewEngine(cfg, application.WithLogger(opts.logger))
			if err != nil {
				return fmt.Errorf("failed to build engine: %w", err)
			}

			run, err := o.apply(cmd, cfg.Optimizer.OptimizationConfig)
			if err != nil {
				return err
			}
			tokens := o.tokens
			if o.prompt != "" {
				tokens = engine.EstimateTokens(o.prompt)
			}
			result, err := engine.OptimizeWith(cmd.Context(), tokens, o.requests, run)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&o.tokens, "tokens", 1000, "Token volume of the workload")
	f.IntVar(&o.requests, "requests", 1, "Number of requests in the workload")
	f.StringVar(&o.prompt, "prompt", "", "Estimate the token volume from this prompt instead of --tokens")
	f.StringVar(&o.algorithm, "algorithm", "", "weighted_sum, pareto_front or constraint_satisfaction")
	f.StringVar(&o.objective, "objective", "", "minimize_cost, maximize_quality, balanced or custom_weighted")
	f.Float64Var(&o.costWeight, "cost-weight", 0, "Weight of cost in the score")
	f.Float64Var(&o.qualityWeight, "quality-weight", 0, "Weight of quality in the score")
	f.Float64Var(&o.maxCost, "max-cost", 0, "Maximum cost per request; 0 disables the ceiling")
	f.Float64Var(&o.minQuality, "min-quality", 0, "Minimum acceptable predicted quality")
	f.Float64Var(&o.complexity, "complexity", 0, "Task complexity in [0,1]")
	f.Float64Var(&o.timePressure, "time-pressure", 0, "Time pressure in [0,1]")
	cmd.MarkFlagsMutuallyExclusive("tokens", "prompt")

	return cmd
}

// apply overlays the flags the user set onto base.
func (o *optimizeOptions) apply(cmd *cobra.Command, base domain.OptimizationConfig) (domain.OptimizationConfig, error) {
	f := cmd.Flags()
	run := base
	if f.Changed("algorithm") {
		a, err := domain.ParseAlgorithm(o.algorithm)
		if err != nil {
			return run, err
		}
		run.Algorithm = a
	}
	if f.Changed("objective") {
		obj, err := domain.ParseObjective(o.objective)
		if err != nil {
			return run, err
		}
		run.Objective = obj
	}
	if f.Changed("cost-weight") {
		run.CostWeight = o.costWeight
	}
	if f.Changed("quality-weight") {
		run.QualityWeight = o.qualityWeight
	}
	if f.Changed("max-cost") {
		run.MaxCostPerRequest = o.maxCost
	}
	if f.Changed("min-quality") {
		run.MinQualityThreshold = o.minQuality
	}
	if f.Changed("complexity") || f.Changed("time-pressure") {
		run.Context = &domain.TaskContext{Complexity: o.complexity, TimePressure: o.timePressure}
	}
	return run, nil
}

func printResult(out io.Writer, r domain.OptimizationResult) {
	fmt.Fprintf(out, "Algorithm: %s  Objective: %s  Tokens: %d  Requests: %d\n",
		r.Algorithm, r.Objective, r.Tokens, r.Requests)
	if !r.Feasible || r.SelectedModel == nil {
		fmt.Fprintln(out, "No model satisfies the constraints.")
	} else {
		fmt.Fprintf(out, "Selected: %s (score %.4f, cost %.6f, quality %.3f, response time %.2fs)\n",
			r.SelectedModel.ID, r.Score, r.PredictedCost, r.PredictedQuality, r.PredictedResponseTime)
	}
	if len(r.ParetoFront) > 0 {
		fmt.Fprint(out, "Pareto front:")
		for _, m := range r.ParetoFront {
			fmt.Fprintf(out, " %s", m.ID)
		}
		fmt.Fprintln(out)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tCOST\tCOST/REQ\tQUALITY\tFEASIBLE\tSCORE\tVIOLATIONS")
	for _, e := range r.Evaluations {
		fmt.Fprintf(w, "%s\t%.6f\t%.6f\t%.3f\t%t\t%.4f\t%v\n",
			e.ModelID, e.PredictedCost, e.CostPerRequest, e.PredictedQuality, e.Feasible, e.Score, e.Violations)
	}
	_ = w.Flush()
}
