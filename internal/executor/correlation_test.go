package executor

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationFromContextEmptyByDefault(t *testing.T) {
	execID, nodeID := CorrelationFromContext(context.Background())
	assert.Empty(t, execID)
	assert.Empty(t, nodeID)
}

func TestWithExecutionIDAndWithNodeID(t *testing.T) {
	ctx := WithExecutionID(context.Background(), "exec1")
	ctx = WithNodeID(ctx, "n1")

	execID, nodeID := CorrelationFromContext(ctx)
	assert.Equal(t, "exec1", execID)
	assert.Equal(t, "n1", nodeID)
}

func TestWithExecutionIDResetsNodeID(t *testing.T) {
	ctx := WithExecutionID(context.Background(), "exec1")
	ctx = WithNodeID(ctx, "n1")
	ctx = WithExecutionID(ctx, "exec2")

	execID, nodeID := CorrelationFromContext(ctx)
	assert.Equal(t, "exec2", execID)
	assert.Empty(t, nodeID)
}

func TestLoggerFromContextEnrichesWithCorrelation(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithExecutionID(context.Background(), "exec1")
	ctx = WithNodeID(ctx, "n1")

	LoggerFromContext(ctx, base).Info("hello")
	assert.Contains(t, buf.String(), "execution_id=exec1")
	assert.Contains(t, buf.String(), "node_id=n1")
}

func TestLoggerFromContextReturnsBaseWhenNoCorrelation(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	LoggerFromContext(context.Background(), base).Info("hello")
	assert.NotContains(t, buf.String(), "execution_id")
}

func TestDispatchPropagatesCorrelationOntoDetachedContext(t *testing.T) {
	ctx := WithExecutionID(context.Background(), "exec1")
	ctx = WithNodeID(ctx, "n1")

	done := make(chan struct{})
	var gotExecID, gotNodeID string
	Dispatch(ctx, func(runCtx context.Context) {
		gotExecID, gotNodeID = CorrelationFromContext(runCtx)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not run")
	}

	assert.Equal(t, "exec1", gotExecID)
	assert.Equal(t, "n1", gotNodeID)
}

func TestDispatchDetachesFromCancelledCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = WithExecutionID(ctx, "exec1")

	done := make(chan struct{})
	var sawErr error
	Dispatch(ctx, func(runCtx context.Context) {
		sawErr = runCtx.Err()
		close(done)
	})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not run")
	}
	require.NoError(t, sawErr, "detached context must not be cancelled by the caller's context")
}
