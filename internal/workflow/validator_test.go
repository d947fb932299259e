package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func planWith(steps map[string]*StepNode, entries ...string) *ExecutionPlan {
	return &ExecutionPlan{WorkflowID: "wf1", EntryStepIDs: entries, Steps: steps}
}

func TestValidateRejectsEmptyPlan(t *testing.T) {
	result := ValidateWithResult(&ExecutionPlan{})
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
}

func TestValidateDetectsCycle(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"a": {NodeID: "a", NextSteps: []string{"b"}},
		"b": {NodeID: "b", NextSteps: []string{"a"}},
	}, "a")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "cycle detected")
}

func TestValidateDetectsImplicitJoin(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"a": {NodeID: "a", NextSteps: []string{"c"}, OutputPorts: []OutputPort{{TargetNodeID: "c"}}},
		"b": {NodeID: "b", NextSteps: []string{"c"}, OutputPorts: []OutputPort{{TargetNodeID: "c"}}},
		"c": {NodeID: "c", Kind: StepKindNormal},
	}, "a", "b")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	found := false
	for _, e := range result.Errors {
		if e == `implicit join at step "c": 2 data predecessors without kind JOIN` {
			found = true
		}
	}
	assert.True(t, found, "expected implicit join error, got %v", result.Errors)
}

func TestValidateAllowsExplicitJoinWithMultiplePredecessors(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"a": {NodeID: "a", NextSteps: []string{"c"}, OutputPorts: []OutputPort{{TargetNodeID: "c"}}},
		"b": {NodeID: "b", NextSteps: []string{"c"}, OutputPorts: []OutputPort{{TargetNodeID: "c"}}},
		"c": {NodeID: "c", Kind: StepKindJoin, UpstreamSteps: []string{"a", "b"}},
	}, "a", "b")

	result := ValidateWithResult(plan)
	assert.True(t, result.Valid, "unexpected errors: %v", result.Errors)
}

func TestValidateForkJoinPairingMismatch(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"fork": {
			NodeID: "fork", Kind: StepKindFork, NextSteps: []string{"a", "b"},
			ExecutionHints: &ExecutionHints{JoinNodeID: "join"},
		},
		"a":    {NodeID: "a", NextSteps: []string{"join"}},
		"b":    {NodeID: "b", NextSteps: []string{}},
		"join": {NodeID: "join", Kind: StepKindJoin, UpstreamSteps: []string{"a"}},
	}, "fork")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "upstream steps do not match")
}

func TestValidateForkNamesUnknownJoin(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"fork": {
			NodeID: "fork", Kind: StepKindFork, NextSteps: []string{"a"},
			ExecutionHints: &ExecutionHints{JoinNodeID: "ghost"},
		},
		"a": {NodeID: "a"},
	}, "fork")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "unknown join")
}

func TestValidateDecisionRequiresDefaultBranch(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"decide": {
			NodeID: "decide", Kind: StepKindDecision, NextSteps: []string{"a"},
			Config: []byte(`{"branches":[{"condition":"x > 1","target":"a"}]}`),
		},
		"a": {NodeID: "a"},
	}, "decide")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "no default branch")
}

func TestValidateDecisionBranchMustTargetNextStep(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"decide": {
			NodeID: "decide", Kind: StepKindDecision, NextSteps: []string{"a"},
			Config: []byte(`{"branches":[{"condition":"true","target":"ghost","default":true}]}`),
		},
		"a": {NodeID: "a"},
	}, "decide")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "not in next_steps")
}

func TestValidateDecisionValidConfigPasses(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"decide": {
			NodeID: "decide", Kind: StepKindDecision, NextSteps: []string{"a", "b"},
			Config: []byte(`{"branches":[{"condition":"x > 1","target":"a"},{"target":"b","default":true}]}`),
		},
		"a": {NodeID: "a"},
		"b": {NodeID: "b"},
	}, "decide")

	result := ValidateWithResult(plan)
	assert.True(t, result.Valid, "unexpected errors: %v", result.Errors)
}

func TestValidateDanglingReferencesReported(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"a": {NodeID: "a", NextSteps: []string{"ghost"}},
	}, "a")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors[0], "unknown next step")
}

func TestValidateMissingEntryStepReported(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"a": {NodeID: "a"},
	}, "ghost")

	result := ValidateWithResult(plan)
	assert.False(t, result.Valid)
	found := false
	for _, e := range result.Errors {
		if e == `entry step "ghost" does not exist` {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateReturnsFirstErrorOnly(t *testing.T) {
	plan := planWith(map[string]*StepNode{
		"a": {NodeID: "a", NextSteps: []string{"b"}},
		"b": {NodeID: "b", NextSteps: []string{"a"}},
	}, "a")

	err := Validate(plan)
	require.Error(t, err)
	var gerr *GraphValidationError
	require.ErrorAs(t, err, &gerr)
}
