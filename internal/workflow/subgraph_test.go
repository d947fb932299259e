package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPlanInlinesSubgraph(t *testing.T) {
	sub := &WorkflowDefinition{
		Nodes: []Node{node("inner1", "action:http"), node("inner2", "action:http")},
		Edges: []Edge{edge("inner1", "inner2")},
	}

	def := &WorkflowDefinition{
		Nodes: []Node{
			node("before", "action:http"),
			{ID: "call", Type: "control:sub_workflow", Data: NodeData{Config: []byte(`{"subgraph_name":"sub1","exit_node_id":"inner2"}`)}},
			node("after", "action:http"),
		},
		Edges: []Edge{edge("before", "call"), edge("call", "after")},
	}

	subgraphs := map[string]*WorkflowDefinition{"sub1": sub}
	plan, err := BuildPlan(def, "wf1", subgraphs)
	require.NoError(t, err)

	assert.NotContains(t, plan.Steps, "call")
	assert.Contains(t, plan.Steps, "call_inner1")
	assert.Contains(t, plan.Steps, "call_inner2")
	assert.Equal(t, []string{"call_inner2"}, plan.Steps["call_inner1"].NextSteps)
	assert.Contains(t, plan.Steps["call_inner2"].NextSteps, "after")
	assert.Contains(t, plan.Steps["before"].NextSteps, "call_inner1")
}

func TestBuildPlanSubgraphMissingNameRejected(t *testing.T) {
	def := &WorkflowDefinition{
		Nodes: []Node{{ID: "call", Type: "control:sub_workflow"}},
	}
	_, err := BuildPlan(def, "wf1", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing subgraph_name")
}

func TestBuildPlanSubgraphUnknownNameRejected(t *testing.T) {
	def := &WorkflowDefinition{
		Nodes: []Node{{ID: "call", Type: "control:sub_workflow", Data: NodeData{Config: []byte(`{"subgraph_name":"ghost"}`)}}},
	}
	_, err := BuildPlan(def, "wf1", map[string]*WorkflowDefinition{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown subgraph")
}

func TestBuildPlanDetectsCircularSubgraphReference(t *testing.T) {
	subA := &WorkflowDefinition{
		Nodes: []Node{{ID: "callB", Type: "control:sub_workflow", Data: NodeData{Config: []byte(`{"subgraph_name":"subB"}`)}}},
	}
	subB := &WorkflowDefinition{
		Nodes: []Node{{ID: "callA", Type: "control:sub_workflow", Data: NodeData{Config: []byte(`{"subgraph_name":"subA"}`)}}},
	}
	def := &WorkflowDefinition{
		Nodes: []Node{{ID: "call", Type: "control:sub_workflow", Data: NodeData{Config: []byte(`{"subgraph_name":"subA"}`)}}},
	}

	subgraphs := map[string]*WorkflowDefinition{"subA": subA, "subB": subB}
	_, err := BuildPlan(def, "wf1", subgraphs)
	require.Error(t, err)
	var circ *CircularSubgraphError
	require.ErrorAs(t, err, &circ)
}
