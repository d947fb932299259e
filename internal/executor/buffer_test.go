package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferStoreAppendAndDrain(t *testing.T) {
	store := NewBufferStore(10)

	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 1}))
	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 2}))

	assert.True(t, store.HasRecords("exec1", "n2", "in"))
	snapshot := store.Peek("exec1", "n2", "in")
	require.Len(t, snapshot, 2)

	drained := store.Drain("exec1", "n2", "in")
	require.Len(t, drained, 2)
	assert.False(t, store.HasRecords("exec1", "n2", "in"))
	assert.Empty(t, store.Drain("exec1", "n2", "in"))
}

func TestBufferStoreKeysAreIsolatedByTargetAndPort(t *testing.T) {
	store := NewBufferStore(10)
	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 1}))
	require.NoError(t, store.Append("exec1", "n3", "in", Record{"v": 2}))
	require.NoError(t, store.Append("exec1", "n2", "alt", Record{"v": 3}))

	assert.Len(t, store.Peek("exec1", "n2", "in"), 1)
	assert.Len(t, store.Peek("exec1", "n3", "in"), 1)
	assert.Len(t, store.Peek("exec1", "n2", "alt"), 1)
}

func TestBufferStoreOverflowRejectsBeforeAppending(t *testing.T) {
	store := NewBufferStore(2)

	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 1}))
	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 2}))

	err := store.Append("exec1", "n2", "in", Record{"v": 3})
	require.Error(t, err)
	var overflow *BufferOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, "exec1", overflow.ExecutionID)
	assert.Equal(t, int64(2), overflow.Limit)

	assert.Len(t, store.Peek("exec1", "n2", "in"), 2, "rejected append must not land in the buffer")
}

func TestBufferStoreExecutionsAreIsolated(t *testing.T) {
	store := NewBufferStore(1)

	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 1}))
	require.NoError(t, store.Append("exec2", "n2", "in", Record{"v": 1}))

	assert.Error(t, store.Append("exec1", "n2", "in", Record{"v": 2}))
	assert.Error(t, store.Append("exec2", "n2", "in", Record{"v": 2}))
}

func TestBufferStoreDefaultLimitAppliedWhenNonPositive(t *testing.T) {
	store := NewBufferStore(0)
	assert.Equal(t, int64(DefaultMaxBufferedRecords), store.maxBufferedRecords)

	store2 := NewBufferStore(-5)
	assert.Equal(t, int64(DefaultMaxBufferedRecords), store2.maxBufferedRecords)
}

func TestBufferStoreClearExecutionResetsCounterAndBuffers(t *testing.T) {
	store := NewBufferStore(1)
	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 1}))

	store.ClearExecution("exec1")

	assert.False(t, store.HasRecords("exec1", "n2", "in"))
	require.NoError(t, store.Append("exec1", "n2", "in", Record{"v": 2}), "counter must reset after clear")
}
