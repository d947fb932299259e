package executor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gorax/flowengine/internal/workflow"
)

// PlanRepository is the persistence seam C10 writes through; satisfied by
// workflow.PlanRepository in production and a fake in tests.
type PlanRepository interface {
	InsertNodeExecution(ctx context.Context, rec *workflow.NodeExecutionRecord) error
	UpdateNodeExecution(ctx context.Context, id, status string, endTime, execMs int64, recordsProcessed, retryCount int, errMsg *string) error
	FinalizeJob(ctx context.Context, executionID, finalStatus string) error
}

// Listeners implements the before/after step and job hooks of spec §4.9,
// replacing the scheduler-framework-coupled listener interfaces the source
// used with plain method calls the runtime invokes directly (spec §9).
type Listeners struct {
	Repo PlanRepository
}

func NewListeners(repo PlanRepository) *Listeners {
	return &Listeners{Repo: repo}
}

// BeforeStep inserts a running node-execution row and returns its id, to be
// passed to AfterStep.
func (l *Listeners) BeforeStep(ctx context.Context, executionID string, step *workflow.StepNode) (string, error) {
	id := uuid.New().String()
	rec := &workflow.NodeExecutionRecord{
		ID:          id,
		ExecutionID: executionID,
		NodeID:      step.NodeID,
		NodeLabel:   step.NodeID,
		NodeType:    step.NodeType,
		StartTime:   time.Now().UnixMilli(),
	}
	if err := l.Repo.InsertNodeExecution(ctx, rec); err != nil {
		return "", err
	}
	return id, nil
}

// AfterStep updates the node-execution row with the step's final outcome.
// Idempotent: re-delivery of the same result is harmless (UPDATE, not
// INSERT), per spec §9's "keep persistence writes idempotent" guidance.
func (l *Listeners) AfterStep(ctx context.Context, rowID string, startTime int64, result StepResult) error {
	status := mapOutcomeToStatus(result)
	endTime := time.Now().UnixMilli()
	execMs := endTime - startTime

	var errMsg *string
	if result.Err != nil {
		msg := result.Err.Error()
		errMsg = &msg
	}

	return l.Repo.UpdateNodeExecution(ctx, rowID, status, endTime, execMs, result.RecordsProcessed, result.RetryCount, errMsg)
}

// BeforeJob is a no-op: the workflow_executions row already exists by the
// time a job is launched (Execution Service inserts it at submit).
func (l *Listeners) BeforeJob(ctx context.Context, executionID string) error {
	return nil
}

// AfterJob aggregates node_executions into the workflow row and sets the
// final terminal status, mapped from the job's runtime terminal state.
func (l *Listeners) AfterJob(ctx context.Context, executionID string, terminal JobTerminalState) error {
	status := "failed"
	switch terminal {
	case JobTerminalSuccess:
		status = "success"
	case JobTerminalCancelled:
		status = "cancelled"
	}
	return l.Repo.FinalizeJob(ctx, executionID, status)
}

// JobTerminalState is the runtime state a completed job maps to a final
// persisted status.
type JobTerminalState int

const (
	JobTerminalFailed JobTerminalState = iota
	JobTerminalSuccess
	JobTerminalCancelled
)

func mapOutcomeToStatus(result StepResult) string {
	switch result.Outcome {
	case OutcomeSuccess:
		return "success"
	case OutcomeSkipped:
		return "skipped"
	default:
		if result.Err == ErrCancelled {
			return "failed"
		}
		return "failed"
	}
}
