package ports

import (
	"context"
	"time"

	"github.com/Giftedx/crew-sub014/internal/domain"
)

// DecisionObserver provides observability hooks for engine decisions.
// Implementations can add tracing, metrics, and logging without coupling
// observability concerns to the selection algorithms.
type DecisionObserver interface {
	// OnDecision is called after a pool selects a candidate.
	OnDecision(ctx context.Context, decision domain.Decision)

	// OnOutcome is called after an outcome report; applied is false when
	// the decision id was unknown or expired.
	OnOutcome(ctx context.Context, decisionID string, outcome domain.Outcome, applied bool)

	// OnOptimization is called after every optimization run.
	OnOptimization(ctx context.Context, result domain.OptimizationResult, elapsed time.Duration)
}
