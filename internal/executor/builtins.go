package executor

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/gorax/flowengine/internal/executor/actions"
)

// actionExecutor adapts a teacher actions.Action (a single-call request/
// response contract) into the reader/processor/writer Executor contract: one
// actions.Action invocation per incoming record, or exactly one invocation
// against an empty seed record when the step has no upstream input (it is a
// SOURCE/trigger node). Grounded on internal/executor/actions.Registry's
// type->factory map, generalized from its flat dispatch into the plan
// pipeline's per-step reader/processor/writer shape.
type actionExecutor struct {
	factory func() actions.Action
}

func newActionExecutor(factory func() actions.Action) *actionExecutor {
	return &actionExecutor{factory: factory}
}

func (e *actionExecutor) CreateReader(sc *StepContext) (Reader, error) {
	return ReaderFunc(func(ctx context.Context) ([]Record, error) {
		if len(sc.Input) > 0 {
			return nil, nil
		}
		return []Record{{}}, nil
	}), nil
}

func (e *actionExecutor) CreateProcessor(sc *StepContext) (Processor, error) {
	var config interface{} = sc.Config
	return ProcessorFunc(func(ctx context.Context, in Record) (Record, error) {
		actionCtx := map[string]interface{}{
			"input": map[string]interface{}(in),
			"env":   sc.Variables,
		}
		out, err := e.factory().Execute(ctx, actions.NewActionInput(config, actionCtx))
		if err != nil {
			return nil, err
		}
		result := Record{"result": out.Data}
		for k, v := range out.Metadata {
			result["_meta_"+k] = v
		}
		return result, nil
	}), nil
}

func (e *actionExecutor) CreateWriter(sc *StepContext) (Writer, error) {
	return WriterFunc(func(ctx context.Context, batch []Record) error {
		for _, rec := range batch {
			if warning, err := sc.Routing.RouteRecord(rec, ""); err != nil {
				return err
			} else if warning != "" {
				LoggerFromContext(ctx, slog.Default()).Warn(warning)
			}
		}
		return nil
	}), nil
}

func (e *actionExecutor) Validate(sc *StepContext) error {
	var cfg map[string]interface{}
	if len(sc.Config) == 0 {
		return nil
	}
	return json.Unmarshal(sc.Config, &cfg)
}

func (e *actionExecutor) SupportsMetrics() bool         { return true }
func (e *actionExecutor) SupportsFailureHandling() bool { return true }

// controlExecutor is a no-op capability for CONTROL-classified steps (FORK,
// JOIN, DECISION, start/end/wait markers): the job runner's walk already
// implements their scheduling semantics structurally, so the step itself
// does no reader/processor/writer work and trivially succeeds with zero
// records processed.
type controlExecutor struct{}

func (controlExecutor) CreateReader(sc *StepContext) (Reader, error)       { return nil, nil }
func (controlExecutor) CreateProcessor(sc *StepContext) (Processor, error) { return nil, nil }
func (controlExecutor) CreateWriter(sc *StepContext) (Writer, error)       { return nil, nil }
func (controlExecutor) Validate(sc *StepContext) error                    { return nil }
func (controlExecutor) SupportsMetrics() bool                             { return false }
func (controlExecutor) SupportsFailureHandling() bool                     { return false }

// RegisterBuiltins wires the built-in node types onto reg: HTTP/script/
// formula actions adapted from internal/executor/actions, and no-op control
// executors for the structural node types spec §4.4 classifies as CONTROL.
// Called once at process init (cmd/api, cmd/worker) — spec §9 "no
// reflective scanning."
func RegisterBuiltins(reg *Registry) {
	reg.Register("action:http", newActionExecutor(func() actions.Action { return actions.NewHTTPAction() }))
	reg.Register("action:code", newActionExecutor(func() actions.Action { return actions.NewScriptAction() }))
	reg.Register("action:formula", newActionExecutor(func() actions.Action { return &actions.FormulaAction{} }))

	for _, t := range []string{
		"control:start", "control:end", "control:wait", "control:delay", "control:if",
		"control:fork", "control:join", "control:parallel", "control:loop",
		"control:sub_workflow", "control:decision",
	} {
		reg.Register(t, controlExecutor{})
	}
}
