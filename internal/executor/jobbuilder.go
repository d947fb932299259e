package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/google/uuid"
	"github.com/gorax/flowengine/internal/workflow"
)

// Job is the runnable structure the Dynamic Job Builder emits from an
// ExecutionPlan: a fresh identifier plus the plan it walks. Topology is
// derived at run time from plan.Steps rather than hand-coded, per spec §4.7.
type Job struct {
	ID          string
	ExecutionID string
	Plan        *workflow.ExecutionPlan
	TriggerData map[string]interface{}
}

// JobBuilder tracks emitted job ids so a rebuild of an existing identifier
// is refused, per spec §4.7 "restart of an existing job identifier is
// refused."
type JobBuilder struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewJobBuilder() *JobBuilder {
	return &JobBuilder{seen: make(map[string]bool)}
}

// Build emits a Job for plan under executionID. Passing an executionID
// already built is refused.
func (b *JobBuilder) Build(plan *workflow.ExecutionPlan, executionID string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.seen[executionID] {
		return nil, fmt.Errorf("job for execution %q already built", executionID)
	}
	b.seen[executionID] = true
	return &Job{ID: "job_" + uuid.New().String()[:12], ExecutionID: executionID, Plan: plan}, nil
}

// JobRunner walks a Job's plan, dispatching steps onto a bounded worker
// pool and honoring chain/fork/join/decision/error-route semantics (spec
// §4.7, §5). Grounded on internal/worker's goroutine-dispatch idiom and
// internal/executor/fork_join.go's branch-wait shape, generalized from
// ad hoc per-node dispatch into plan-driven structure walking.
type JobRunner struct {
	Store      *BufferStore
	Registry   *Registry
	Runtime    *StepRuntime
	Listeners  *Listeners
	Logger     *slog.Logger
	Workers    int
}

func NewJobRunner(store *BufferStore, registry *Registry, listeners *Listeners, logger *slog.Logger, workers int) *JobRunner {
	if workers <= 0 {
		workers = 8
	}
	breakers := NewCircuitBreakerRegistry(DefaultCircuitBreakerConfig(), logger)
	return &JobRunner{
		Store:     store,
		Registry:  registry,
		Runtime:   NewStepRuntime(registry, logger).WithCircuitBreakers(breakers),
		Listeners: listeners,
		Logger:    logger,
		Workers:   workers,
	}
}

// runState is shared across all goroutines cooperating on one job run.
type runState struct {
	job        *Job
	cancelFlag func() bool
	sem        chan struct{}
	errMu      sync.Mutex
	jobFailed  bool
	jobErr     error

	joinMu   sync.Mutex
	joinDone map[string]map[string]bool // joinNodeID -> set of completed upstream ids

	// stepsMu guards stepOutputs, the running {nodeID -> last output record}
	// snapshot every DECISION step's condition is evaluated against,
	// generalizing the teacher's buildInputData "steps" map (formerly
	// assembled inline in executor.go's Execute loop) to the plan-driven
	// walk.
	stepsMu     sync.Mutex
	stepOutputs map[string]interface{}
}

// snapshot returns the {trigger, steps, env} context map a DECISION step's
// conditions are compiled and run against, mirroring the shape (and the
// three top-level keys) of the teacher's buildInputData.
func (s *runState) snapshot() map[string]interface{} {
	s.stepsMu.Lock()
	steps := make(map[string]interface{}, len(s.stepOutputs))
	for k, v := range s.stepOutputs {
		steps[k] = v
	}
	s.stepsMu.Unlock()

	return map[string]interface{}{
		"trigger": s.job.TriggerData,
		"steps":   steps,
		"env": map[string]interface{}{
			"execution_id": s.job.ExecutionID,
			"workflow_id":  s.job.Plan.WorkflowID,
		},
	}
}

// recordOutput stores nodeID's last-produced record for later DECISION
// snapshots. Only the most recent record is kept — decision conditions
// reference a step's latest value, not its full record history.
func (s *runState) recordOutput(nodeID string, records []Record) {
	if len(records) == 0 {
		return
	}
	s.stepsMu.Lock()
	s.stepOutputs[nodeID] = records[len(records)-1]
	s.stepsMu.Unlock()
}

// JobOutcome summarizes a completed job run for the Execution Service and
// the AfterJob listener.
type JobOutcome struct {
	Terminal JobTerminalState
	Err      error
}

// Run executes job to completion, blocking until every reachable step has
// finished (or the job was cancelled/failed). cancel is polled cooperatively
// between chunks and between step dispatches.
func (r *JobRunner) Run(ctx context.Context, job *Job, cancel CancelSignal) JobOutcome {
	if err := r.Listeners.BeforeJob(ctx, job.ExecutionID); err != nil {
		return JobOutcome{Terminal: JobTerminalFailed, Err: err}
	}

	state := &runState{
		job:         job,
		cancelFlag:  cancel,
		sem:         make(chan struct{}, r.Workers),
		joinDone:    make(map[string]map[string]bool),
		stepOutputs: make(map[string]interface{}),
	}

	var wg sync.WaitGroup
	for _, entry := range job.Plan.EntryStepIDs {
		wg.Add(1)
		go r.walk(ctx, state, entry, &wg)
	}
	wg.Wait()

	terminal := JobTerminalSuccess
	if cancel != nil && cancel() {
		terminal = JobTerminalCancelled
	} else if state.jobFailed {
		terminal = JobTerminalFailed
	}

	if err := r.Listeners.AfterJob(ctx, job.ExecutionID, terminal); err != nil {
		return JobOutcome{Terminal: terminal, Err: err}
	}
	return JobOutcome{Terminal: terminal, Err: state.jobErr}
}

// walk executes the step at nodeID and continues into its successors
// according to its Kind, per the chain-walk rules of spec §4.7. A single
// successor is followed by looping within this same goroutine rather than
// recursing, so a linear chain of any length occupies exactly one worker
// slot at a time; only a genuine fan-out spawns new goroutines (via
// dispatchNext), each starting its own walk loop.
func (r *JobRunner) walk(ctx context.Context, state *runState, nodeID string, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		if state.cancelFlag != nil && state.cancelFlag() {
			return
		}

		step, ok := state.job.Plan.Steps[nodeID]
		if !ok {
			return
		}

		if step.Kind == StepKindJoin {
			if !r.arriveAtJoin(state, step, nodeID) {
				return // not all upstream branches have arrived yet
			}
		}

		result := r.runStepBounded(ctx, state, step)

		switch {
		case result.Outcome == OutcomeFailed && len(step.ErrorSteps) > 0:
			r.dispatchNext(ctx, state, step.ErrorSteps, wg)
			return
		case result.Outcome == OutcomeFailed:
			state.errMu.Lock()
			state.jobFailed = true
			if state.jobErr == nil {
				state.jobErr = result.Err
			}
			state.errMu.Unlock()
			return
		}

		next := step.NextSteps
		if step.Kind == StepKindDecision {
			target, err := r.decide(ctx, state, step)
			if err != nil {
				state.errMu.Lock()
				state.jobFailed = true
				state.jobErr = err
				state.errMu.Unlock()
				return
			}
			if target == "" {
				return
			}
			next = []string{target}
		}

		switch len(next) {
		case 0:
			return
		case 1:
			nodeID = next[0]
			continue
		default:
			r.dispatchNext(ctx, state, next, wg)
			return
		}
	}
}

// runStepBounded runs step while holding one worker-pool slot, releasing it
// before walk decides what to do next. The slot is never held across a
// dispatch or recursive call (spec §4.7's pool is sized for concurrently
// *running* steps, not for in-flight chain depth).
func (r *JobRunner) runStepBounded(ctx context.Context, state *runState, step *workflow.StepNode) StepResult {
	state.sem <- struct{}{}
	defer func() { <-state.sem }()
	return r.runStep(ctx, state, step)
}

// arriveAtJoin records one upstream branch's arrival at a JOIN step and
// reports whether every named UpstreamSteps branch has now arrived — the
// JOIN only begins once all of them reach terminal success (spec §5).
func (r *JobRunner) arriveAtJoin(state *runState, step *workflow.StepNode, arrivingFrom string) bool {
	state.joinMu.Lock()
	defer state.joinMu.Unlock()

	done, ok := state.joinDone[step.NodeID]
	if !ok {
		done = make(map[string]bool)
		state.joinDone[step.NodeID] = done
	}
	done[arrivingFrom] = true

	for _, up := range step.UpstreamSteps {
		if !done[up] {
			return false
		}
	}
	return true
}

// dispatchNext fans out to every entry in nextSteps, each on its own
// goroutine running its own walk loop (spec §4.7 default for distinct-handle
// fan-outs, PARALLEL-hinted nodes, and error-route dispatch). Always used
// with more than one target; a lone successor is instead folded into the
// caller's walk loop so it never needs a goroutine or a pool slot of its own.
func (r *JobRunner) dispatchNext(ctx context.Context, state *runState, nextSteps []string, wg *sync.WaitGroup) {
	for _, next := range nextSteps {
		wg.Add(1)
		go r.walk(ctx, state, next, wg)
	}
}

func (r *JobRunner) runStep(ctx context.Context, state *runState, step *workflow.StepNode) StepResult {
	stepCtx := WithNodeID(WithExecutionID(ctx, state.job.ExecutionID), step.NodeID)
	sc := NewStepContext(stepCtx, state.job.ExecutionID, step, r.Store, incomingPorts(state.job.Plan, step.NodeID), state.snapshot())

	rowID, err := r.Listeners.BeforeStep(stepCtx, state.job.ExecutionID, step)
	if err != nil {
		return StepResult{Outcome: OutcomeFailed, Err: err}
	}
	start := time.Now().UnixMilli()

	result := r.Runtime.Run(stepCtx, step, sc, state.cancelFlag)

	if result.Outcome == OutcomeSuccess {
		if !result.HadWriter {
			// Control-kind steps (no writer of their own, e.g. IF/FORK/WAIT)
			// have nothing upstream to route their records for them, so the
			// runner forwards their resolved input unchanged. Action-type
			// steps already routed their *processed* output via the
			// executor's writer (builtins.go's actionExecutor.CreateWriter);
			// routing again here would duplicate every record downstream
			// (spec §3/§8 ordering invariant).
			for _, rec := range sc.Input {
				_ = sc.Routing.RouteToDefault(rec)
			}
			state.recordOutput(step.NodeID, sc.Input)
		} else {
			state.recordOutput(step.NodeID, result.Output)
		}
	}

	if err := r.Listeners.AfterStep(stepCtx, rowID, start, result); err != nil && result.Err == nil {
		result.Err = err
	}
	return result
}

// incomingPorts collects the OutputPorts across the whole plan that target
// nodeID, in producer declaration order, used to resolve a step's input
// buffers (spec §4.8 "Inputs to the reader are resolved by draining every
// (currentNode, targetPort) buffer ... ordered by port declaration").
func incomingPorts(plan *workflow.ExecutionPlan, nodeID string) []workflow.OutputPort {
	var ports []workflow.OutputPort
	for _, s := range plan.Steps {
		for _, p := range s.OutputPorts {
			if p.TargetNodeID == nodeID {
				ports = append(ports, p)
			}
		}
	}
	return ports
}

// decide evaluates a DECISION step's branch conditions (expr-lang/expr
// expressions over the step's config, per spec §9's grammar resolution)
// and selects exactly one target, falling back to the declared default.
// Conditions are compiled and run against state.snapshot(), the same
// {trigger, steps, env} context the teacher's buildInputData assembled for
// every node, so a condition can reference prior step output or trigger
// fields rather than only literals (spec §4.7, §9).
func (r *JobRunner) decide(ctx context.Context, state *runState, step *workflow.StepNode) (string, error) {
	var cfg struct {
		Branches []struct {
			Condition string `json:"condition"`
			Target    string `json:"target"`
			Default   bool   `json:"default"`
		} `json:"branches"`
	}
	if err := json.Unmarshal(step.Config, &cfg); err != nil {
		return "", fmt.Errorf("decision %q: invalid branch config: %w", step.NodeID, err)
	}

	var defaultTarget string
	env := state.snapshot()
	for _, b := range cfg.Branches {
		if b.Default {
			defaultTarget = b.Target
			continue
		}
		program, err := expr.Compile(b.Condition, expr.Env(env), expr.AsBool())
		if err != nil {
			return "", fmt.Errorf("decision %q: invalid condition %q: %w", step.NodeID, b.Condition, err)
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return "", fmt.Errorf("decision %q: condition evaluation failed: %w", step.NodeID, err)
		}
		if matched, _ := out.(bool); matched {
			return b.Target, nil
		}
	}
	return defaultTarget, nil
}
