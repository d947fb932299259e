package executor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorax/flowengine/internal/workflow"
)

// PlanLauncher adapts JobBuilder/JobRunner/CancelRegistry to the
// workflow.PlanLauncher seam, keeping internal/workflow free of a dependency
// on internal/executor (the teacher's own Service.SetExecutor avoids the
// same cycle for WorkflowExecutor). Constructed once in cmd/api and
// cmd/worker and handed to workflow.NewPlanService.
type PlanLauncher struct {
	Builder *JobBuilder
	Runner  *JobRunner
	Cancel  *CancelRegistry
	Logger  *slog.Logger
}

func NewPlanLauncher(builder *JobBuilder, runner *JobRunner, cancel *CancelRegistry, logger *slog.Logger) *PlanLauncher {
	return &PlanLauncher{Builder: builder, Runner: runner, Cancel: cancel, Logger: logger}
}

// Launch builds a Job for plan and runs it on a detached goroutine,
// preserving execution-id correlation across the async boundary via
// Dispatch rather than propagating the caller's (likely HTTP-request-scoped)
// context, per spec §9.
func (l *PlanLauncher) Launch(ctx context.Context, plan *workflow.ExecutionPlan, executionID string, trigger json.RawMessage) {
	job, err := l.Builder.Build(plan, executionID)
	if err != nil {
		l.Logger.Error("job build failed", "execution_id", executionID, "error", err)
		return
	}
	job.TriggerData = decodeTrigger(trigger)

	Dispatch(ctx, func(runCtx context.Context) {
		outcome := l.Runner.Run(runCtx, job, l.Cancel.Signal(executionID))
		l.Cancel.Forget(executionID)
		if outcome.Err != nil {
			l.Logger.Error("job finished with error", "execution_id", executionID, "terminal", outcome.Terminal, "error", outcome.Err)
		} else {
			l.Logger.Info("job finished", "execution_id", executionID, "terminal", outcome.Terminal)
		}
	})
}

// RequestCancel flips the cooperative cancel flag for executionID.
func (l *PlanLauncher) RequestCancel(executionID string) {
	l.Cancel.Request(executionID)
}

// decodeTrigger best-effort unmarshals the raw trigger payload for inclusion
// in the decision-step context snapshot; a malformed or empty payload yields
// nil rather than failing the launch, mirroring the teacher's tolerant
// parseTriggerData in the superseded executor.Execute.
func decodeTrigger(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
