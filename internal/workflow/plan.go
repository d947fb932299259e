package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// NodeClassification describes the structural role of a step within a plan.
type NodeClassification string

const (
	ClassificationSource    NodeClassification = "SOURCE"
	ClassificationTransform NodeClassification = "TRANSFORM"
	ClassificationSink      NodeClassification = "SINK"
	ClassificationControl   NodeClassification = "CONTROL"
)

// StepKind describes the scheduling shape of a step.
type StepKind string

const (
	StepKindNormal   StepKind = "NORMAL"
	StepKindFork     StepKind = "FORK"
	StepKindJoin     StepKind = "JOIN"
	StepKindDecision StepKind = "DECISION"
	StepKindSubgraph StepKind = "SUBGRAPH"
)

// controlNodeTypes are classified CONTROL regardless of their edge shape.
var controlNodeTypes = map[string]bool{
	"control:start":       true,
	"control:end":         true,
	"control:wait":        true,
	"control:delay":       true,
	"control:if":          true,
	"control:decision":    true,
	string(NodeTypeControlFork):       true,
	string(NodeTypeControlJoin):       true,
	string(NodeTypeControlParallel):   true,
	string(NodeTypeControlLoop):       true,
	string(NodeTypeControlSubWorkflow): true,
}

// ExecutionHints carries planner/job-builder directives copied from a
// NodeDefinition's optional execution hints.
type ExecutionHints struct {
	Parallel    bool     `json:"parallel,omitempty"`
	JoinNodeID  string   `json:"join_node_id,omitempty"`
	MaxDuration int64    `json:"max_duration_ms,omitempty"`
}

// FailurePolicy controls how a step reacts to a processor/writer error.
type FailurePolicy struct {
	Action     string `json:"action,omitempty"` // STOP (default) | SKIP | RETRY | ROUTE
	RetryLimit int    `json:"retry_limit,omitempty"`
	SkipLimit  int    `json:"skip_limit,omitempty"`
}

// OutputPort is one outgoing wire from a step's named source handle to a
// downstream step's named target handle.
type OutputPort struct {
	TargetNodeID string `json:"target_node_id"`
	SourcePort   string `json:"source_port"`
	TargetPort   string `json:"target_port"`
	IsControl    bool   `json:"is_control"`
}

// StepNode is one compiled node of an ExecutionPlan.
type StepNode struct {
	NodeID         string             `json:"node_id"`
	NodeType       string             `json:"node_type"`
	Config         json.RawMessage    `json:"config"`
	NextSteps      []string           `json:"next_steps"`
	ErrorSteps     []string           `json:"error_steps,omitempty"`
	FailurePolicy  *FailurePolicy     `json:"failure_policy,omitempty"`
	ExecutionHints *ExecutionHints    `json:"execution_hints,omitempty"`
	Classification NodeClassification `json:"classification"`
	Kind           StepKind           `json:"kind"`
	UpstreamSteps  []string           `json:"upstream_steps,omitempty"`
	OutputPorts    []OutputPort       `json:"output_ports,omitempty"`
}

// ExecutionPlan is the lowered, validated form of a WorkflowDefinition.
type ExecutionPlan struct {
	WorkflowID   string               `json:"workflow_id"`
	EntryStepIDs []string             `json:"entry_step_ids"`
	Steps        map[string]*StepNode `json:"steps"`
}

// edgeGroup tracks, per source node, the ordered source handles seen and the
// targets declared under each handle — used to derive OutputPorts and to
// decide fork/fan-out shape.
type edgeGroup struct {
	handleOrder []string
	byHandle    map[string][]Edge
}

// BuildPlan compiles a WorkflowDefinition into an ExecutionPlan: normalize,
// classify, interpret edges into ports, infer fork/join/decision kinds,
// compute entries, expand subgraphs, then validate. Mirrors the staged
// pipeline the teacher's DryRun used for topological checks, generalized
// into a real compiled plan.
func BuildPlan(def *WorkflowDefinition, workflowID string, subgraphs map[string]*WorkflowDefinition) (*ExecutionPlan, error) {
	plan, err := buildPlanCore(def, workflowID)
	if err != nil {
		return nil, err
	}

	if err := ExpandSubgraphs(plan, subgraphs); err != nil {
		return nil, err
	}

	if err := Validate(plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// buildPlanCore runs normalize/classify/edge-interpretation/kind-inference/
// entry-computation (spec §4.4 steps 1-5) without subgraph expansion or
// validation, so both BuildPlan and the subgraph inliner can share it.
func buildPlanCore(def *WorkflowDefinition, workflowID string) (*ExecutionPlan, error) {
	if def == nil {
		return nil, &GraphValidationError{Message: "workflow definition is required"}
	}
	if workflowID == "" {
		workflowID = "wf_" + uuid.New().String()[:12]
	}

	nodesByID := make(map[string]Node, len(def.Nodes))
	for _, n := range def.Nodes {
		id := strings.TrimSpace(n.ID)
		if id == "" {
			return nil, &GraphValidationError{Message: "node id must not be blank"}
		}
		if _, dup := nodesByID[id]; dup {
			return nil, &GraphValidationError{Message: fmt.Sprintf("duplicate node id %q", id)}
		}
		n.ID = id
		nodesByID[id] = n
	}

	groups := make(map[string]*edgeGroup)
	inboundData := make(map[string]int)
	inboundAny := make(map[string]int)
	upstreamsByJoin := make(map[string]map[string]bool)

	for _, e := range def.Edges {
		if e.Source == e.Target {
			return nil, &GraphValidationError{Message: fmt.Sprintf("self-loop edge forbidden on node %q", e.Source)}
		}
		if _, ok := nodesByID[e.Source]; !ok {
			return nil, &GraphValidationError{Message: fmt.Sprintf("edge references unknown source %q", e.Source)}
		}
		if _, ok := nodesByID[e.Target]; !ok {
			return nil, &GraphValidationError{Message: fmt.Sprintf("edge references unknown target %q", e.Target)}
		}

		g, ok := groups[e.Source]
		if !ok {
			g = &edgeGroup{byHandle: make(map[string][]Edge)}
			groups[e.Source] = g
		}
		handle := e.SourceID
		if handle == "" {
			handle = "out"
		}
		if _, seen := g.byHandle[handle]; !seen {
			g.handleOrder = append(g.handleOrder, handle)
		}
		g.byHandle[handle] = append(g.byHandle[handle], e)

		isControl := e.Label == "control" || controlNodeTypes[nodesByID[e.Source].Type]
		inboundAny[e.Target]++
		if !isControl {
			inboundData[e.Target]++
			if nodesByID[e.Target].Type == string(NodeTypeControlJoin) {
				if upstreamsByJoin[e.Target] == nil {
					upstreamsByJoin[e.Target] = make(map[string]bool)
				}
				upstreamsByJoin[e.Target][e.Source] = true
			}
		}
	}

	hasOutbound := make(map[string]bool, len(groups))
	for src := range groups {
		hasOutbound[src] = true
	}

	steps := make(map[string]*StepNode, len(nodesByID))
	for id, n := range nodesByID {
		classification := ClassificationTransform
		if controlNodeTypes[n.Type] {
			classification = ClassificationControl
		} else if inboundData[id] == 0 {
			classification = ClassificationSource
		} else if !hasOutbound[id] {
			classification = ClassificationSink
		}

		kind := StepKindNormal
		switch n.Type {
		case string(NodeTypeControlJoin):
			kind = StepKindJoin
		case "control:decision":
			kind = StepKindDecision
		case string(NodeTypeControlSubWorkflow):
			kind = StepKindSubgraph
		}

		var ports []OutputPort
		var next []string
		if g, ok := groups[id]; ok {
			for _, handle := range g.handleOrder {
				for _, e := range g.byHandle[handle] {
					targetHandle := e.TargetID
					if targetHandle == "" {
						targetHandle = "in"
					}
					isControl := e.Label == "control" || controlNodeTypes[n.Type]
					ports = append(ports, OutputPort{
						TargetNodeID: e.Target,
						SourcePort:   handle,
						TargetPort:   targetHandle,
						IsControl:    isControl,
					})
					next = append(next, e.Target)
				}
			}
			if len(g.handleOrder) > 1 {
				kind = StepKindFork
			}
		}
		next = dedupeStable(next)

		cfg := n.Config
		if cfg == nil {
			cfg = n.Data.Config
		}

		steps[id] = &StepNode{
			NodeID:         id,
			NodeType:       n.Type,
			Config:         cfg,
			NextSteps:      next,
			Classification: classification,
			Kind:           kind,
			OutputPorts:    ports,
		}
	}

	for joinID, upstream := range upstreamsByJoin {
		ids := make([]string, 0, len(upstream))
		for id := range upstream {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		if s, ok := steps[joinID]; ok {
			s.UpstreamSteps = ids
		}
	}

	var entries []string
	for id := range nodesByID {
		if inboundAny[id] == 0 {
			entries = append(entries, id)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return nodeOrder(def, entries[i]) < nodeOrder(def, entries[j])
	})

	plan := &ExecutionPlan{
		WorkflowID:   workflowID,
		EntryStepIDs: entries,
		Steps:        steps,
	}

	return plan, nil
}

func nodeOrder(def *WorkflowDefinition, id string) int {
	for i, n := range def.Nodes {
		if n.ID == id {
			return i
		}
	}
	return len(def.Nodes)
}

func dedupeStable(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// GraphValidationError is raised for cycle/dangling-ref/implicit-join/
// unrestartable/circular-subgraph failures surfaced at submit/rerun time.
type GraphValidationError struct {
	Message string
}

func (e *GraphValidationError) Error() string {
	return e.Message
}
