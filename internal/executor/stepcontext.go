package executor

import (
	"context"
	"encoding/json"

	"github.com/gorax/flowengine/internal/workflow"
)

// StepContext is the per-step scratchpad: the compiled node definition,
// resolved input records, a variable bag, the step's RoutingContext, and
// correlation fields. One StepContext exists per step execution, generalizing
// the ad hoc {trigger, steps, env} map the teacher's executor.buildInputData
// assembled inline.
type StepContext struct {
	Context context.Context

	ExecutionID string
	NodeID      string
	NodeType    string
	Config      json.RawMessage

	Input     []Record
	Variables map[string]interface{}
	Routing   *RoutingContext

	ChunkSize int
}

// NewStepContext builds a StepContext for step, draining its incoming
// buffers (in declared-port order) to resolve Input.
func NewStepContext(ctx context.Context, executionID string, step *workflow.StepNode, store *BufferStore, incoming []workflow.OutputPort, variables map[string]interface{}) *StepContext {
	var input []Record
	for _, port := range incoming {
		input = append(input, store.Drain(executionID, step.NodeID, port.TargetPort)...)
	}

	chunkSize := 1000
	var cfg struct {
		ChunkSize int `json:"chunkSize"`
	}
	if len(step.Config) > 0 {
		if err := json.Unmarshal(step.Config, &cfg); err == nil && cfg.ChunkSize > 0 {
			chunkSize = cfg.ChunkSize
		}
	}

	sc := &StepContext{
		Context:     ctx,
		ExecutionID: executionID,
		NodeID:      step.NodeID,
		NodeType:    step.NodeType,
		Config:      step.Config,
		Input:       input,
		Variables:   variables,
		ChunkSize:   chunkSize,
	}
	sc.Routing = NewRoutingContext(executionID, step.NodeID, step.OutputPorts, store)
	return sc
}

// Chunks splits Input into fixed-size batches of ChunkSize, the
// transactional unit the step runtime commits or rolls back atomically.
func (sc *StepContext) Chunks() [][]Record {
	if len(sc.Input) == 0 {
		return nil
	}
	var chunks [][]Record
	for i := 0; i < len(sc.Input); i += sc.ChunkSize {
		end := i + sc.ChunkSize
		if end > len(sc.Input) {
			end = len(sc.Input)
		}
		chunks = append(chunks, sc.Input[i:end])
	}
	return chunks
}
