package workflow

import (
	"encoding/json"
	"fmt"
)

// subgraphConfig is the config shape of a step whose Kind is SUBGRAPH: a
// reference to a named, separately-stored subgraph definition plus the
// single exit node id the inliner rewires outgoing edges from.
type subgraphConfig struct {
	SubgraphName string `json:"subgraph_name"`
	ExitNodeID   string `json:"exit_node_id"`
}

// ExpandSubgraphs inlines every SUBGRAPH step in plan, prefixing inner node
// ids with "<subgraph-step-id>_", rewiring entry/exit edges, and removing
// the original subgraph step. subgraphs maps a subgraph name to its
// definition. Detects transitive self-reference via an expansion stack.
func ExpandSubgraphs(plan *ExecutionPlan, subgraphs map[string]*WorkflowDefinition) error {
	return expandSubgraphs(plan, subgraphs, nil)
}

func expandSubgraphs(plan *ExecutionPlan, subgraphs map[string]*WorkflowDefinition, stack []string) error {
	for {
		var target *StepNode
		for _, s := range plan.Steps {
			if s.Kind == StepKindSubgraph {
				target = s
				break
			}
		}
		if target == nil {
			return nil
		}

		var cfg subgraphConfig
		if err := json.Unmarshal(target.Config, &cfg); err != nil || cfg.SubgraphName == "" {
			return &GraphValidationError{Message: fmt.Sprintf("subgraph step %q missing subgraph_name", target.NodeID)}
		}
		for _, s := range stack {
			if s == cfg.SubgraphName {
				return &CircularSubgraphError{SubgraphName: cfg.SubgraphName}
			}
		}

		inner, ok := subgraphs[cfg.SubgraphName]
		if !ok {
			return &GraphValidationError{Message: fmt.Sprintf("unknown subgraph %q referenced by %q", cfg.SubgraphName, target.NodeID)}
		}

		innerPlan, err := BuildPlanWithoutValidation(inner, cfg.SubgraphName, subgraphs, append(stack, cfg.SubgraphName))
		if err != nil {
			return err
		}

		prefix := target.NodeID + "_"
		renamed := make(map[string]*StepNode, len(innerPlan.Steps))
		for id, s := range innerPlan.Steps {
			newID := prefix + id
			clone := *s
			clone.NodeID = newID
			clone.NextSteps = prefixIDs(s.NextSteps, prefix)
			clone.ErrorSteps = prefixIDs(s.ErrorSteps, prefix)
			clone.UpstreamSteps = prefixIDs(s.UpstreamSteps, prefix)
			clone.OutputPorts = make([]OutputPort, len(s.OutputPorts))
			for i, p := range s.OutputPorts {
				p.TargetNodeID = prefix + p.TargetNodeID
				clone.OutputPorts[i] = p
			}
			renamed[newID] = &clone
		}

		exitID := cfg.ExitNodeID
		if exitID == "" && len(innerPlan.EntryStepIDs) > 0 {
			exitID = innerPlan.EntryStepIDs[0]
		}
		prefixedExit := prefix + exitID

		// Rewire references to the subgraph step into its prefixed entries.
		prefixedEntries := prefixIDs(innerPlan.EntryStepIDs, prefix)
		for _, s := range plan.Steps {
			s.NextSteps = replaceRef(s.NextSteps, target.NodeID, prefixedEntries)
			s.ErrorSteps = replaceRef(s.ErrorSteps, target.NodeID, prefixedEntries)
			for i, port := range s.OutputPorts {
				if port.TargetNodeID == target.NodeID {
					// fan each port out to every prefixed entry, preserving handle info
					s.OutputPorts[i].TargetNodeID = prefixedEntries[0]
				}
			}
		}

		// The subgraph step's own outgoing edges become outgoing edges of the
		// prefixed exit node.
		if exit, ok := renamed[prefixedExit]; ok {
			exit.NextSteps = append(exit.NextSteps, target.NextSteps...)
			exit.OutputPorts = append(exit.OutputPorts, target.OutputPorts...)
		}

		delete(plan.Steps, target.NodeID)
		for id, s := range renamed {
			plan.Steps[id] = s
		}
		for i, id := range plan.EntryStepIDs {
			if id == target.NodeID {
				plan.EntryStepIDs = append(plan.EntryStepIDs[:i], append(prefixedEntries, plan.EntryStepIDs[i+1:]...)...)
				break
			}
		}
	}
}

// BuildPlanWithoutValidation compiles a definition the same way BuildPlan
// does but skips the final Validate call, since a subgraph's plan is only
// valid once inlined into its parent.
func BuildPlanWithoutValidation(def *WorkflowDefinition, workflowID string, subgraphs map[string]*WorkflowDefinition, stack []string) (*ExecutionPlan, error) {
	plan, err := buildPlanCore(def, workflowID)
	if err != nil {
		return nil, err
	}
	if err := expandSubgraphs(plan, subgraphs, stack); err != nil {
		return nil, err
	}
	return plan, nil
}

func prefixIDs(ids []string, prefix string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = prefix + id
	}
	return out
}

func replaceRef(ids []string, target string, replacements []string) []string {
	var out []string
	for _, id := range ids {
		if id == target {
			out = append(out, replacements...)
			continue
		}
		out = append(out, id)
	}
	return out
}

// CircularSubgraphError is raised when a subgraph transitively references
// itself during expansion.
type CircularSubgraphError struct {
	SubgraphName string
}

func (e *CircularSubgraphError) Error() string {
	return fmt.Sprintf("circular subgraph reference: %q", e.SubgraphName)
}
