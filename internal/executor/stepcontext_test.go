package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gorax/flowengine/internal/workflow"
)

func TestNewStepContextDrainsIncomingBuffersInPortOrder(t *testing.T) {
	store := NewBufferStore(10)
	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 1}))
	require.NoError(t, store.Append("exec1", "n2", "alt", Record{"v": 2}))

	step := &workflow.StepNode{NodeID: "n2"}
	incoming := []workflow.OutputPort{{TargetPort: "in"}, {TargetPort: "alt"}}

	sc := NewStepContext(context.Background(), "exec1", step, store, incoming, map[string]interface{}{"x": 1})

	assert.Equal(t, []Record{{"v": 1}, {"v": 2}}, sc.Input)
	assert.Equal(t, 1000, sc.ChunkSize)
	assert.False(t, store.HasRecords("exec1", "n2", "in"))
}

func TestNewStepContextReadsChunkSizeFromConfig(t *testing.T) {
	store := NewBufferStore(10)
	step := &workflow.StepNode{NodeID: "n2", Config: []byte(`{"chunkSize":2}`)}

	sc := NewStepContext(context.Background(), "exec1", step, store, nil, nil)
	assert.Equal(t, 2, sc.ChunkSize)
}

func TestStepContextChunksSplitsInputByChunkSize(t *testing.T) {
	sc := &StepContext{
		ChunkSize: 2,
		Input:     []Record{{"v": 1}, {"v": 2}, {"v": 3}},
	}

	chunks := sc.Chunks()
	assert.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[1], 1)
}

func TestStepContextChunksEmptyInputYieldsNoChunks(t *testing.T) {
	sc := &StepContext{ChunkSize: 2}
	assert.Empty(t, sc.Chunks())
}
