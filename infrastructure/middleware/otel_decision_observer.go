package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Giftedx/crew-sub014/internal/domain"
	"github.com/Giftedx/crew-sub014/internal/ports"
)

var _ ports.DecisionObserver = (*OTelDecisionObserver)(nil)

// OTelDecisionObserver implements observability for engine decisions using
// OpenTelemetry tracing. It records a span per decision, outcome report and
// optimization run under the caller's context, and forwards counts and
// latencies to an optional metrics collector.
type OTelDecisionObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelDecisionObserver creates a new OpenTelemetry decision observer.
// metrics may be nil; a nil tracer uses the global provider.
func NewOTelDecisionObserver(metrics ports.MetricsCollector, tracer trace.Tracer) *OTelDecisionObserver {
	return &OTelDecisionObserver{
		metrics: metrics,
		tracer:  tracerOrDefault(tracer),
	}
}

// OnDecision implements ports.DecisionObserver. The span starts when the
// decision was created so it covers the selection itself.
func (o *OTelDecisionObserver) OnDecision(ctx context.Context, d domain.Decision) {
	_, span := o.tracer.Start(ctx, "engine.Select",
		trace.WithTimestamp(d.CreatedAt),
		trace.WithAttributes(
			attribute.String("decision.id", d.ID),
			attribute.String("decision.pool", d.Pool),
			attribute.String("decision.candidate", d.CandidateID),
			attribute.String("decision.strategy", string(d.Strategy)),
		),
	)
	defer span.End()

	if d.ProviderID != "" {
		span.SetAttributes(attribute.String("decision.provider", d.ProviderID))
	}
	span.AddEvent("decision.issued")
	span.SetStatus(codes.Ok, "")

	if o.metrics != nil {
		o.metrics.RecordCounter(MetricDecisions, 1, map[string]string{LabelPool: d.Pool, LabelArm: d.CandidateID})
	}
}

// OnOutcome implements ports.DecisionObserver. Outcomes for unknown or
// expired decisions end the span with an error status.
func (o *OTelDecisionObserver) OnOutcome(ctx context.Context, decisionID string, outcome domain.Outcome, applied bool) {
	_, span := o.tracer.Start(ctx, "engine.Report", trace.WithAttributes(
		attribute.String("decision.id", decisionID),
		attribute.Bool("outcome.success", outcome.Success),
		attribute.Float64("outcome.quality", outcome.Quality),
		attribute.Float64("outcome.cost", outcome.Cost),
		attribute.Float64("outcome.latency_seconds", outcome.Latency.Seconds()),
		attribute.Float64("outcome.reward", outcome.Reward()),
	))
	defer span.End()

	status := StatusApplied
	if !applied {
		status = "dropped"
		span.AddEvent("outcome.dropped")
		span.SetStatus(codes.Error, "unknown or expired decision")
	} else {
		span.AddEvent("outcome.applied")
		span.SetStatus(codes.Ok, "")
	}

	if o.metrics != nil {
		o.metrics.RecordCounter("decision_outcomes_total", 1, map[string]string{LabelStatus: status})
	}
}

// OnOptimization implements ports.DecisionObserver. The span is backdated
// by elapsed so its duration matches the run.
func (o *OTelDecisionObserver) OnOptimization(ctx context.Context, result domain.OptimizationResult, elapsed time.Duration) {
	end := time.Now()
	_, span := o.tracer.Start(ctx, "engine.Optimize",
		trace.WithTimestamp(end.Add(-elapsed)),
		trace.WithAttributes(
			attribute.Int("optimizer.tokens", result.Tokens),
			attribute.Int("optimizer.requests", result.Requests),
		),
	)
	annotateResult(span, result)
	span.End(trace.WithTimestamp(end))

	if o.metrics != nil {
		o.metrics.RecordLatency("engine_optimize", elapsed, map[string]string{LabelAlgorithm: string(result.Algorithm)})
	}
}
