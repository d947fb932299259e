package workflow

import (
	"encoding/json"
	"fmt"
)

// color marks DFS visitation state for cycle detection.
type color int

const (
	white color = iota
	gray
	black
)

// Validate enforces the plan invariants and fails on the first violated
// category (cycle, dangling reference, implicit join, ...).
func Validate(plan *ExecutionPlan) error {
	result := ValidateWithResult(plan)
	if !result.Valid {
		return &GraphValidationError{Message: result.Errors[0]}
	}
	return nil
}

// ValidationResult collects every violation found by ValidateWithResult.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateWithResult runs every invariant check and collects all failures
// instead of stopping at the first one.
func ValidateWithResult(plan *ExecutionPlan) ValidationResult {
	var errs []string

	if plan == nil || len(plan.Steps) == 0 {
		return ValidationResult{Valid: false, Errors: []string{"plan has no steps"}}
	}
	if len(plan.EntryStepIDs) == 0 {
		errs = append(errs, "plan has no entry steps")
	}

	for _, id := range plan.EntryStepIDs {
		if _, ok := plan.Steps[id]; !ok {
			errs = append(errs, fmt.Sprintf("entry step %q does not exist", id))
		}
	}
	for _, s := range plan.Steps {
		for _, ref := range s.NextSteps {
			if _, ok := plan.Steps[ref]; !ok {
				errs = append(errs, fmt.Sprintf("step %q references unknown next step %q", s.NodeID, ref))
			}
		}
		for _, ref := range s.ErrorSteps {
			if _, ok := plan.Steps[ref]; !ok {
				errs = append(errs, fmt.Sprintf("step %q references unknown error step %q", s.NodeID, ref))
			}
		}
		for _, ref := range s.UpstreamSteps {
			if _, ok := plan.Steps[ref]; !ok {
				errs = append(errs, fmt.Sprintf("step %q references unknown upstream step %q", s.NodeID, ref))
			}
		}
	}
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs}
	}

	if cyc := findCycle(plan); cyc != "" {
		errs = append(errs, fmt.Sprintf("cycle detected involving step %q", cyc))
	}

	inboundData := make(map[string]int)
	for _, s := range plan.Steps {
		for _, port := range s.OutputPorts {
			if !port.IsControl {
				inboundData[port.TargetNodeID]++
			}
		}
	}
	for id, count := range inboundData {
		if count > 1 && plan.Steps[id].Kind != StepKindJoin {
			errs = append(errs, fmt.Sprintf("implicit join at step %q: %d data predecessors without kind JOIN", id, count))
		}
	}

	for _, s := range plan.Steps {
		if s.Kind != StepKindFork || s.ExecutionHints == nil || s.ExecutionHints.JoinNodeID == "" {
			continue
		}
		joinID := s.ExecutionHints.JoinNodeID
		join, ok := plan.Steps[joinID]
		if !ok {
			errs = append(errs, fmt.Sprintf("fork %q names unknown join %q", s.NodeID, joinID))
			continue
		}
		terminals := branchTerminals(plan, s.NodeID, joinID)
		if !sameSet(terminals, join.UpstreamSteps) {
			errs = append(errs, fmt.Sprintf("join %q upstream steps do not match fork %q branch terminals", joinID, s.NodeID))
		}
	}

	for _, s := range plan.Steps {
		if s.Kind != StepKindDecision {
			continue
		}
		branches, err := decisionBranches(s.Config)
		if err != nil {
			errs = append(errs, fmt.Sprintf("decision %q has invalid branch config: %v", s.NodeID, err))
			continue
		}
		allowed := make(map[string]bool, len(s.NextSteps))
		for _, n := range s.NextSteps {
			allowed[n] = true
		}
		sawDefault := false
		for _, b := range branches {
			if b.Target == "" {
				continue
			}
			if !allowed[b.Target] {
				errs = append(errs, fmt.Sprintf("decision %q branch targets %q which is not in next_steps", s.NodeID, b.Target))
			}
			if b.Default {
				sawDefault = true
			}
		}
		if !sawDefault {
			errs = append(errs, fmt.Sprintf("decision %q has no default branch", s.NodeID))
		}
	}

	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs}
	}
	return ValidationResult{Valid: true}
}

func findCycle(plan *ExecutionPlan) string {
	colors := make(map[string]color, len(plan.Steps))
	var visit func(id string) string
	visit = func(id string) string {
		colors[id] = gray
		step := plan.Steps[id]
		for _, next := range step.NextSteps {
			switch colors[next] {
			case gray:
				return next
			case white:
				if c := visit(next); c != "" {
					return c
				}
			}
		}
		colors[id] = black
		return ""
	}

	for _, id := range plan.EntryStepIDs {
		if colors[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	for id := range plan.Steps {
		if colors[id] == white {
			if c := visit(id); c != "" {
				return c
			}
		}
	}
	return ""
}

// branchTerminals walks forward from start (excluded) collecting every node
// whose only forward path leads into stopAt, used to check fork/join pairing.
func branchTerminals(plan *ExecutionPlan, start, stopAt string) []string {
	seen := make(map[string]bool)
	var terminals []string
	var walk func(id string)
	walk = func(id string) {
		if seen[id] {
			return
		}
		seen[id] = true
		step, ok := plan.Steps[id]
		if !ok {
			return
		}
		reachesOnlyStop := true
		for _, next := range step.NextSteps {
			if next != stopAt {
				reachesOnlyStop = false
			}
		}
		hasStopEdge := false
		for _, next := range step.NextSteps {
			if next == stopAt {
				hasStopEdge = true
			}
		}
		if hasStopEdge && reachesOnlyStop {
			terminals = append(terminals, id)
		}
		for _, next := range step.NextSteps {
			if next != stopAt {
				walk(next)
			}
		}
	}
	if start := plan.Steps[start]; start != nil {
		for _, next := range start.NextSteps {
			walk(next)
		}
	}
	return terminals
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := make(map[string]bool, len(a))
	for _, v := range a {
		sa[v] = true
	}
	for _, v := range b {
		if !sa[v] {
			return false
		}
	}
	return true
}

// decisionBranch is the per-branch condition shape read from a DECISION
// step's config.branches[*]; condition is an expr-lang/expr expression
// evaluated against the context snapshot (see internal/workflow/decision.go).
type decisionBranch struct {
	Condition string `json:"condition"`
	Target    string `json:"target"`
	Default   bool   `json:"default"`
}

func decisionBranches(cfg json.RawMessage) ([]decisionBranch, error) {
	if len(cfg) == 0 {
		return nil, fmt.Errorf("missing branches")
	}
	var wrapper struct {
		Branches []decisionBranch `json:"branches"`
	}
	if err := json.Unmarshal(cfg, &wrapper); err != nil {
		return nil, err
	}
	if len(wrapper.Branches) == 0 {
		return nil, fmt.Errorf("branches must be non-empty")
	}
	return wrapper.Branches, nil
}
