package executor

import (
	"context"
	"log/slog"
)

type correlationKey struct{}

// correlation carries the fields attached to every log line and worker
// task of one execution (spec §4.10 / glossary "Correlation id").
type correlation struct {
	ExecutionID string
	NodeID      string
}

// WithExecutionID attaches executionId to ctx's correlation context,
// replacing any NodeID previously set (a fresh step starts a fresh
// correlation scope for its own NodeID via WithNodeID).
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlation{ExecutionID: executionID})
}

// WithNodeID attaches nodeID to ctx's existing correlation, preserving the
// execution id already present.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	c, _ := ctx.Value(correlationKey{}).(correlation)
	c.NodeID = nodeID
	return context.WithValue(ctx, correlationKey{}, c)
}

// CorrelationFromContext extracts the execution id and node id (if any)
// attached to ctx.
func CorrelationFromContext(ctx context.Context) (executionID, nodeID string) {
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c.ExecutionID, c.NodeID
}

// LoggerFromContext returns logger enriched with whatever correlation
// fields ctx carries. Replaces the teacher's executeInGoroutine pattern of
// resetting to context.Background() (which silently dropped correlation
// for fire-and-forget executions) with an explicit propagate-by-value
// decorator, per spec §9.
func LoggerFromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	executionID, nodeID := CorrelationFromContext(ctx)
	if executionID == "" {
		return logger
	}
	if nodeID == "" {
		return logger.With("execution_id", executionID)
	}
	return logger.With("execution_id", executionID, "node_id", nodeID)
}

// Dispatch snapshots ctx's correlation fields at submission time and runs
// fn in a new goroutine with that correlation reinstalled on a detached
// context (so cancellation of the caller's request context doesn't cancel
// a fire-and-forget job, while correlation — unlike the teacher's plain
// context.Background() fallback — survives the hop).
func Dispatch(ctx context.Context, fn func(ctx context.Context)) {
	executionID, nodeID := CorrelationFromContext(ctx)
	go func() {
		detached := context.Background()
		if executionID != "" {
			detached = WithExecutionID(detached, executionID)
			if nodeID != "" {
				detached = WithNodeID(detached, nodeID)
			}
		}
		fn(detached)
	}()
}
