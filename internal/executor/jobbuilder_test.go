package executor

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/flowengine/internal/workflow"
)

type fakePlanRepository struct {
	mu        sync.Mutex
	inserted  []string // node ids, in BeforeStep order
	finalized string
}

func (r *fakePlanRepository) InsertNodeExecution(ctx context.Context, rec *workflow.NodeExecutionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, rec.NodeID)
	return nil
}

func (r *fakePlanRepository) UpdateNodeExecution(ctx context.Context, id, status string, endTime, execMs int64, recordsProcessed, retryCount int, errMsg *string) error {
	return nil
}

func (r *fakePlanRepository) FinalizeJob(ctx context.Context, executionID, finalStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finalized = finalStatus
	return nil
}

func (r *fakePlanRepository) count(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.inserted {
		if id == nodeID {
			n++
		}
	}
	return n
}

func TestJobBuilderBuildRefusesDuplicateExecutionID(t *testing.T) {
	builder := NewJobBuilder()
	plan := &workflow.ExecutionPlan{WorkflowID: "wf1", Steps: map[string]*workflow.StepNode{}}

	job1, err := builder.Build(plan, "exec1")
	require.NoError(t, err)
	assert.NotEmpty(t, job1.ID)

	_, err = builder.Build(plan, "exec1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already built")
}

func TestJobBuilderBuildEmitsUniqueJobIDs(t *testing.T) {
	builder := NewJobBuilder()
	plan := &workflow.ExecutionPlan{WorkflowID: "wf1", Steps: map[string]*workflow.StepNode{}}

	job1, err := builder.Build(plan, "exec1")
	require.NoError(t, err)
	job2, err := builder.Build(plan, "exec2")
	require.NoError(t, err)

	assert.NotEqual(t, job1.ID, job2.ID)
}

func newTestJobRunner(repo *fakePlanRepository, reg *Registry) *JobRunner {
	return NewJobRunner(NewBufferStore(1000), reg, NewListeners(repo), slog.Default(), 4)
}

func TestJobRunnerRunLinearChainSucceeds(t *testing.T) {
	reg := NewRegistry()
	reg.Register("t", &fakeStepExecutor{
		processFn: func(ctx context.Context, in Record) (Record, error) { return in, nil },
	})

	plan := &workflow.ExecutionPlan{
		WorkflowID:   "wf1",
		EntryStepIDs: []string{"a"},
		Steps: map[string]*workflow.StepNode{
			"a": {NodeID: "a", NodeType: "t", NextSteps: []string{"b"}},
			"b": {NodeID: "b", NodeType: "t", NextSteps: []string{"c"}},
			"c": {NodeID: "c", NodeType: "t"},
		},
	}

	repo := &fakePlanRepository{}
	runner := newTestJobRunner(repo, reg)
	job := &Job{ID: "job1", ExecutionID: "exec1", Plan: plan}

	outcome := runner.Run(context.Background(), job, nil)
	require.NoError(t, outcome.Err)
	assert.Equal(t, JobTerminalSuccess, outcome.Terminal)
	assert.Equal(t, 1, repo.count("a"))
	assert.Equal(t, 1, repo.count("b"))
	assert.Equal(t, 1, repo.count("c"))
	assert.Equal(t, "success", repo.finalized)
}

func TestJobRunnerRunForkJoinExecutesJoinExactlyOnce(t *testing.T) {
	reg := NewRegistry()
	reg.Register("control", controlExecutor{})
	reg.Register("t", &fakeStepExecutor{
		processFn: func(ctx context.Context, in Record) (Record, error) { return in, nil },
	})

	plan := &workflow.ExecutionPlan{
		WorkflowID:   "wf1",
		EntryStepIDs: []string{"fork"},
		Steps: map[string]*workflow.StepNode{
			"fork": {NodeID: "fork", NodeType: "control", Kind: workflow.StepKindFork, NextSteps: []string{"a", "b"}},
			"a":    {NodeID: "a", NodeType: "t", NextSteps: []string{"join"}},
			"b":    {NodeID: "b", NodeType: "t", NextSteps: []string{"join"}},
			"join": {NodeID: "join", NodeType: "control", Kind: workflow.StepKindJoin, UpstreamSteps: []string{"a", "b"}},
		},
	}

	repo := &fakePlanRepository{}
	runner := newTestJobRunner(repo, reg)
	job := &Job{ID: "job1", ExecutionID: "exec1", Plan: plan}

	outcome := runner.Run(context.Background(), job, nil)
	require.NoError(t, outcome.Err)
	assert.Equal(t, JobTerminalSuccess, outcome.Terminal)
	assert.Equal(t, 1, repo.count("a"))
	assert.Equal(t, 1, repo.count("b"))
	assert.Equal(t, 1, repo.count("join"), "join must run exactly once, after both branches arrive")
}

func TestJobRunnerArriveAtJoinRequiresAllUpstreamBranches(t *testing.T) {
	runner := &JobRunner{}
	state := &runState{joinDone: make(map[string]map[string]bool)}
	step := &workflow.StepNode{NodeID: "join", UpstreamSteps: []string{"a", "b"}}

	assert.False(t, runner.arriveAtJoin(state, step, "a"), "must wait for the second branch")
	assert.True(t, runner.arriveAtJoin(state, step, "b"), "join fires once every upstream branch has arrived")
}

func TestJobRunnerRunStepFailurePropagatesToJobOutcome(t *testing.T) {
	reg := NewRegistry()
	reg.Register("t", &fakeStepExecutor{validateErr: assert.AnError})

	plan := &workflow.ExecutionPlan{
		WorkflowID:   "wf1",
		EntryStepIDs: []string{"a"},
		Steps: map[string]*workflow.StepNode{
			"a": {NodeID: "a", NodeType: "t"},
		},
	}

	repo := &fakePlanRepository{}
	runner := newTestJobRunner(repo, reg)
	job := &Job{ID: "job1", ExecutionID: "exec1", Plan: plan}

	outcome := runner.Run(context.Background(), job, nil)
	assert.Equal(t, JobTerminalFailed, outcome.Terminal)
	require.Error(t, outcome.Err)
	assert.Equal(t, "failed", repo.finalized)
}

func TestJobRunnerRunRoutesErrorStepsOnFailure(t *testing.T) {
	reg := NewRegistry()
	reg.Register("fail", &fakeStepExecutor{validateErr: assert.AnError})
	reg.Register("t", &fakeStepExecutor{
		processFn: func(ctx context.Context, in Record) (Record, error) { return in, nil },
	})

	plan := &workflow.ExecutionPlan{
		WorkflowID:   "wf1",
		EntryStepIDs: []string{"a"},
		Steps: map[string]*workflow.StepNode{
			"a":   {NodeID: "a", NodeType: "fail", ErrorSteps: []string{"handler"}},
			"handler": {NodeID: "handler", NodeType: "t"},
		},
	}

	repo := &fakePlanRepository{}
	runner := newTestJobRunner(repo, reg)
	job := &Job{ID: "job1", ExecutionID: "exec1", Plan: plan}

	outcome := runner.Run(context.Background(), job, nil)
	assert.Equal(t, JobTerminalSuccess, outcome.Terminal, "error-route handler suppresses job failure")
	assert.Equal(t, 1, repo.count("handler"))
}

func TestJobRunnerDecideSelectsMatchingBranchOverDefault(t *testing.T) {
	runner := &JobRunner{}
	step := &workflow.StepNode{
		NodeID: "decide",
		Config: []byte(`{"branches":[{"condition":"1 == 1","target":"a"},{"target":"b","default":true}]}`),
	}

	target, err := runner.decide(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, "a", target)
}

func TestJobRunnerDecideFallsBackToDefault(t *testing.T) {
	runner := &JobRunner{}
	step := &workflow.StepNode{
		NodeID: "decide",
		Config: []byte(`{"branches":[{"condition":"1 == 2","target":"a"},{"target":"b","default":true}]}`),
	}

	target, err := runner.decide(context.Background(), step)
	require.NoError(t, err)
	assert.Equal(t, "b", target)
}
