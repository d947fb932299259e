package workflow

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanLauncher is the seam PlanService dispatches compiled plans through,
// mirroring the teacher's own WorkflowExecutor/SetExecutor adapter pattern
// used to keep internal/executor out of internal/workflow's import graph
// (internal/executor already imports internal/workflow for StepNode etc.,
// so the dependency can only run one way). cmd/api wires a concrete
// implementation backed by executor.JobBuilder/JobRunner.
type PlanLauncher interface {
	// Launch builds and runs a job for plan under executionID asynchronously;
	// the launcher is responsible for calling back into PlanRepository's
	// listener-backed hooks as the job progresses and finishes. trigger is the
	// raw payload the execution was started with, threaded through to the
	// decision-step context snapshot (spec §4.7, §9).
	Launch(ctx context.Context, plan *ExecutionPlan, executionID string, trigger json.RawMessage)
	// RequestCancel flips the cooperative cancel flag for a running execution.
	RequestCancel(executionID string)
}

// PlanService implements C12 Execution Service: Submit, Cancel, rerun full,
// rerun-from-node, rerun-from-failed. It supersedes the teacher's
// Service.Execute/ExecuteSync (which inserted a row then either published to
// a queue or ran inline in a detached goroutine) with the spec's explicit
// plan-build-then-launch pipeline.
type PlanService struct {
	repo     *PlanRepository
	launcher PlanLauncher
	logger   *slog.Logger

	// subgraphs resolves named subgraph definitions for SUBGRAPH steps (C7);
	// nil/empty is fine for workflows that declare none.
	subgraphs map[string]*WorkflowDefinition
}

func NewPlanService(repo *PlanRepository, launcher PlanLauncher, logger *slog.Logger) *PlanService {
	return &PlanService{repo: repo, launcher: launcher, logger: logger, subgraphs: map[string]*WorkflowDefinition{}}
}

// SubmitResult is the synchronous response to a submission, returned before
// the job has run at all.
type SubmitResult struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	TotalNodes  int    `json:"total_nodes"`
}

// Submit mints an execution id, builds the plan, inserts the
// workflow_executions row, then launches the job asynchronously and
// returns immediately (spec §4.11).
func (s *PlanService) Submit(ctx context.Context, workflowID, workflowName string, def *WorkflowDefinition, executionMode string, payload json.RawMessage) (*SubmitResult, error) {
	plan, err := BuildPlan(def, workflowID, s.subgraphs)
	if err != nil {
		return nil, err
	}

	executionID := "exec_" + uuid.New().String()[:12]
	totalNodes := len(plan.Steps)

	rec := &ExecutionRecord{
		ExecutionID:     executionID,
		WorkflowID:      plan.WorkflowID,
		WorkflowName:    workflowName,
		Status:          "running",
		StartTime:       time.Now().UnixMilli(),
		TotalNodes:      totalNodes,
		ExecutionMode:   lowerOrDefault(executionMode, "async"),
		WorkflowPayload: payload,
	}
	if err := s.repo.InsertExecution(ctx, rec); err != nil {
		return nil, err
	}

	s.launcher.Launch(ctx, plan, executionID, payload)

	return &SubmitResult{ExecutionID: executionID, Status: "running", TotalNodes: totalNodes}, nil
}

// CancelResult is the response to a cancel request.
type CancelResult struct {
	Status      string `json:"status"` // cancel_requested | already_completed | error
	ExecutionID string `json:"execution_id"`
}

var terminalStatuses = map[string]bool{
	"success": true, "failed": true, "cancelled": true, "skipped": true,
}

// Cancel flips a running execution to cancel_requested and signals the job;
// it never blocks for the job to actually stop (spec §4.11).
func (s *PlanService) Cancel(ctx context.Context, executionID string) (*CancelResult, error) {
	rec, err := s.repo.GetExecution(ctx, executionID)
	if err != nil {
		if err == ErrNotFound {
			return &CancelResult{Status: "error", ExecutionID: executionID}, nil
		}
		return nil, err
	}

	if terminalStatuses[rec.Status] {
		return &CancelResult{Status: "already_completed", ExecutionID: executionID}, nil
	}

	if err := s.repo.UpdateStatus(ctx, executionID, "cancel_requested"); err != nil {
		return nil, err
	}
	s.launcher.RequestCancel(executionID)

	return &CancelResult{Status: "cancel_requested", ExecutionID: executionID}, nil
}

// RerunResult is the response to any of the three rerun variants.
type RerunResult struct {
	Status              string `json:"status"`
	OriginalExecutionID string `json:"original_execution_id"`
	NewExecutionID       string `json:"new_execution_id"`
	FromNodeID           string `json:"from_node_id,omitempty"`
}

// RerunFull rebuilds the plan from the stored workflow payload and launches
// a fresh execution with a new id.
func (s *PlanService) RerunFull(ctx context.Context, originalExecutionID string, def *WorkflowDefinition) (*RerunResult, error) {
	original, err := s.repo.GetExecution(ctx, originalExecutionID)
	if err != nil {
		return nil, err
	}

	plan, err := BuildPlan(def, original.WorkflowID, s.subgraphs)
	if err != nil {
		return nil, err
	}

	return s.launchRerun(ctx, original, plan, "")
}

// RerunFromNode materializes a partial plan rooted at fromNodeID (C13) and
// launches it as a new execution.
func (s *PlanService) RerunFromNode(ctx context.Context, originalExecutionID string, def *WorkflowDefinition, fromNodeID string) (*RerunResult, error) {
	original, err := s.repo.GetExecution(ctx, originalExecutionID)
	if err != nil {
		return nil, err
	}

	full, err := BuildPlan(def, original.WorkflowID, s.subgraphs)
	if err != nil {
		return nil, err
	}

	partial, err := BuildPartialPlan(full, fromNodeID)
	if err != nil {
		return nil, err
	}

	return s.launchRerun(ctx, original, partial, fromNodeID)
}

// RerunFromFailed builds the sub-plan that is the union of every failed
// node's reachable descendants and launches it as a new execution.
func (s *PlanService) RerunFromFailed(ctx context.Context, originalExecutionID string, def *WorkflowDefinition) (*RerunResult, error) {
	original, err := s.repo.GetExecution(ctx, originalExecutionID)
	if err != nil {
		return nil, err
	}

	failedNodes, err := s.repo.ListNodeExecutions(ctx, originalExecutionID)
	if err != nil {
		return nil, err
	}

	full, err := BuildPlan(def, original.WorkflowID, s.subgraphs)
	if err != nil {
		return nil, err
	}

	merged := map[string]*StepNode{}
	for _, n := range failedNodes {
		if n.Status != "failed" {
			continue
		}
		partial, err := BuildPartialPlan(full, n.NodeID)
		if err != nil {
			continue // an unrestartable failed node is skipped, not fatal to the union
		}
		for id, step := range partial.Steps {
			merged[id] = step
		}
	}
	if len(merged) == 0 {
		return nil, &GraphValidationError{Message: "no failed nodes to rerun"}
	}

	entries := make([]string, 0)
	for _, n := range failedNodes {
		if n.Status == "failed" {
			if _, ok := merged[n.NodeID]; ok {
				entries = append(entries, n.NodeID)
			}
		}
	}

	unionPlan := &ExecutionPlan{WorkflowID: full.WorkflowID, EntryStepIDs: entries, Steps: merged}
	if err := Validate(unionPlan); err != nil {
		return nil, err
	}

	return s.launchRerun(ctx, original, unionPlan, "")
}

func (s *PlanService) launchRerun(ctx context.Context, original *ExecutionRecord, plan *ExecutionPlan, fromNodeID string) (*RerunResult, error) {
	newExecutionID := "exec_" + uuid.New().String()[:12]

	rec := &ExecutionRecord{
		ExecutionID:     newExecutionID,
		WorkflowID:      plan.WorkflowID,
		WorkflowName:    original.WorkflowName,
		Status:          "running",
		StartTime:       time.Now().UnixMilli(),
		TotalNodes:      len(plan.Steps),
		ExecutionMode:   original.ExecutionMode,
		WorkflowPayload: original.WorkflowPayload,
	}
	if err := s.repo.InsertExecution(ctx, rec); err != nil {
		return nil, err
	}

	s.launcher.Launch(ctx, plan, newExecutionID, original.WorkflowPayload)

	return &RerunResult{
		Status:               "queued",
		OriginalExecutionID:  original.ExecutionID,
		NewExecutionID:       newExecutionID,
		FromNodeID:           fromNodeID,
	}, nil
}

func lowerOrDefault(mode, def string) string {
	if mode == "" {
		return def
	}
	return strings.ToLower(mode)
}
