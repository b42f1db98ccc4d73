package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

// TracerName is the instrumentation name used when no tracer is supplied.
const TracerName = "github.com/Giftedx/crew-sub014/selection"

func tracerOrDefault(tracer trace.Tracer) trace.Tracer {
	if tracer != nil {
		return tracer
	}
	return otel.Tracer(TracerName)
}

// tracedSelector wraps selection and outcome calls in spans. Selectors take
// no context, so every span is a root span.
type tracedSelector struct {
	ports.Selector
	pool   string
	tracer trace.Tracer
}

// TracedSelector returns a selector decorator that emits a span for each
// Select and ReportOutcome call. A nil tracer uses the global provider.
func TracedSelector(tracer trace.Tracer) func(pool string, next ports.Selector) ports.Selector {
	tracer = tracerOrDefault(tracer)
	return func(pool string, next ports.Selector) ports.Selector {
		return &tracedSelector{Selector: next, pool: pool, tracer: tracer}
	}
}

func (t *tracedSelector) Select() (string, bool) {
	_, span := t.tracer.Start(context.Background(), "bandit.Select", trace.WithAttributes(
		attribute.String("bandit.pool", t.pool),
		attribute.String("bandit.strategy", string(t.Selector.Strategy())),
	))
	defer span.End()

	id, ok := t.Selector.Select()
	if !ok {
		span.SetStatus(codes.Error, "no candidates registered")
		return id, ok
	}
	span.SetAttributes(attribute.String("bandit.arm", id))
	span.SetStatus(codes.Ok, "")
	return id, ok
}

func (t *tracedSelector) ReportOutcome(id string, reward float64) bool {
	return t.traceOutcome(id, reward, "", func() bool { return t.Selector.ReportOutcome(id, reward) })
}

func (t *tracedSelector) ReportOutcomeKind(id string, reward float64, kind domain.RewardKind) bool {
	return t.traceOutcome(id, reward, kind, func() bool { return t.Selector.ReportOutcomeKind(id, reward, kind) })
}

func (t *tracedSelector) traceOutcome(id string, reward float64, kind domain.RewardKind, report func() bool) bool {
	_, span := t.tracer.Start(context.Background(), "bandit.ReportOutcome", trace.WithAttributes(
		attribute.String("bandit.pool", t.pool),
		attribute.String("bandit.arm", id),
		attribute.Float64("bandit.reward", reward),
	))
	defer span.End()
	if kind != "" {
		span.SetAttributes(attribute.String("bandit.reward_kind", string(kind)))
	}

	if !report() {
		span.SetStatus(codes.Error, "outcome not applied")
		return false
	}
	if reward < 0 || reward > 1 {
		span.AddEvent("reward.clamped", trace.WithAttributes(attribute.Float64("reward.raw", reward)))
	}
	span.SetStatus(codes.Ok, "")
	return true
}

// tracedOptimizer wraps optimization runs in spans.
type tracedOptimizer struct {
	ports.Optimizer
	tracer trace.Tracer
}

// TracedOptimizer returns an optimizer decorator that emits a span for each
// run. A nil tracer uses the global provider.
func TracedOptimizer(tracer trace.Tracer) func(next ports.Optimizer) ports.Optimizer {
	tracer = tracerOrDefault(tracer)
	return func(next ports.Optimizer) ports.Optimizer {
		return &tracedOptimizer{Optimizer: next, tracer: tracer}
	}
}

func (t *tracedOptimizer) Optimize(tokens, requests int) domain.OptimizationResult {
	span := t.start(tokens, requests)
	defer span.End()
	result := t.Optimizer.Optimize(tokens, requests)
	annotateResult(span, result)
	return result
}

func (t *tracedOptimizer) OptimizeWith(tokens, requests int, cfg domain.OptimizationConfig) (domain.OptimizationResult, error) {
	span := t.start(tokens, requests)
	defer span.End()
	span.SetAttributes(
		attribute.String("optimizer.requested_algorithm", string(cfg.Algorithm)),
		attribute.String("optimizer.requested_objective", string(cfg.Objective)),
	)
	result, err := t.Optimizer.OptimizeWith(tokens, requests, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	annotateResult(span, result)
	return result, nil
}

func (t *tracedOptimizer) UpdatePerformance(id string, cost, quality float64, responseTime time.Duration) bool {
	_, span := t.tracer.Start(context.Background(), "optimizer.UpdatePerformance", trace.WithAttributes(
		attribute.String("optimizer.model", id),
		attribute.Float64("optimizer.cost", cost),
		attribute.Float64("optimizer.quality", quality),
		attribute.Float64("optimizer.response_time_seconds", responseTime.Seconds()),
	))
	defer span.End()
	ok := t.Optimizer.UpdatePerformance(id, cost, quality, responseTime)
	if !ok {
		span.SetStatus(codes.Error, "unknown model")
	}
	return ok
}

func (t *tracedOptimizer) start(tokens, requests int) trace.Span {
	_, span := t.tracer.Start(context.Background(), "optimizer.Optimize", trace.WithAttributes(
		attribute.Int("optimizer.tokens", tokens),
		attribute.Int("optimizer.requests", requests),
	))
	return span
}

// annotateResult records the outcome of a run on span.
func annotateResult(span trace.Span, result domain.OptimizationResult) {
	span.SetAttributes(
		attribute.String("optimizer.algorithm", string(result.Algorithm)),
		attribute.String("optimizer.objective", string(result.Objective)),
		attribute.Bool("optimizer.feasible", result.Feasible),
		attribute.Int("optimizer.candidates", len(result.Evaluations)),
		attribute.Int("optimizer.pareto_front", len(result.ParetoFront)),
	)
	if !result.Feasible {
		span.AddEvent("optimizer.infeasible")
		span.SetStatus(codes.Ok, "")
		return
	}
	span.SetAttributes(
		attribute.String("optimizer.selected", result.SelectedID()),
		attribute.Float64("optimizer.score", result.Score),
		attribute.Float64("optimizer.predicted_cost", result.PredictedCost),
		attribute.Float64("optimizer.predicted_quality", result.PredictedQuality),
	)
	span.SetStatus(codes.Ok, "")
}
