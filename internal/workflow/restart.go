package workflow

import "fmt"

// UnrestartableError is returned when a chosen restart entry sits strictly
// inside a fork whose join would never converge in the reachable subgraph.
type UnrestartableError struct {
	NodeID string
}

func (e *UnrestartableError) Error() string {
	return fmt.Sprintf("node %q cannot be used as a restart entry: it is inside an unjoined fork", e.NodeID)
}

// BuildPartialPlan produces a reachable sub-plan of full rooted at entryID,
// per spec §4.12: BFS over NextSteps, restrict Steps to the reachable set,
// set EntryStepIDs to [entryID], clear the new entry's UpstreamSteps and
// downgrade a JOIN entry to NORMAL, then re-validate.
func BuildPartialPlan(full *ExecutionPlan, entryID string) (*ExecutionPlan, error) {
	if full == nil {
		return nil, &GraphValidationError{Message: "plan is required"}
	}
	if _, ok := full.Steps[entryID]; !ok {
		return nil, &GraphValidationError{Message: fmt.Sprintf("unknown restart node %q", entryID)}
	}

	reachable := map[string]bool{entryID: true}
	queue := []string{entryID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		step := full.Steps[id]
		for _, next := range append(append([]string{}, step.NextSteps...), step.ErrorSteps...) {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	if err := checkForkJoinSafety(full, entryID, reachable); err != nil {
		return nil, err
	}

	steps := make(map[string]*StepNode, len(reachable))
	for id := range reachable {
		clone := *full.Steps[id]
		steps[id] = &clone
	}

	entryClone := steps[entryID]
	entryClone.UpstreamSteps = nil
	if entryClone.Kind == StepKindJoin {
		entryClone.Kind = StepKindNormal
	}

	partial := &ExecutionPlan{
		WorkflowID:   full.WorkflowID,
		EntryStepIDs: []string{entryID},
		Steps:        steps,
	}

	if err := Validate(partial); err != nil {
		return nil, err
	}

	return partial, nil
}

// checkForkJoinSafety refuses restart when entryID sits strictly inside a
// fork whose join is excluded from the reachable set: upstream branches
// would then never converge.
func checkForkJoinSafety(full *ExecutionPlan, entryID string, reachable map[string]bool) error {
	for _, s := range full.Steps {
		if s.Kind != StepKindFork || s.ExecutionHints == nil || s.ExecutionHints.JoinNodeID == "" {
			continue
		}
		joinID := s.ExecutionHints.JoinNodeID
		join, ok := full.Steps[joinID]
		if !ok {
			continue
		}
		if reachable[joinID] {
			continue
		}
		// entryID is "strictly inside" this fork if it is reachable from the
		// fork without passing through the join.
		if isBetween(full, s.NodeID, entryID, joinID) {
			return &UnrestartableError{NodeID: entryID}
		}
	}
	return nil
}

// isBetween reports whether target is reachable forward from start without
// first reaching stopAt.
func isBetween(plan *ExecutionPlan, start, target, stopAt string) bool {
	if start == target {
		return false
	}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		step, ok := plan.Steps[id]
		if !ok {
			continue
		}
		for _, next := range step.NextSteps {
			if next == stopAt {
				continue
			}
			if next == target {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
