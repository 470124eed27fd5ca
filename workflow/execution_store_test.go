package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/types"
)

func TestMemoryExecutionStore_Lifecycle(t *testing.T) {
	ctx := testContext(t)
	store := NewMemoryExecutionStore("")

	rec, err := store.Create(ctx, "r1", "wf", RunStatusQueued, map[string]any{"source": "api"})
	require.NoError(t, err)
	assert.Equal(t, RunStatusQueued, rec.Status)
	assert.NotEmpty(t, rec.StartedAt)

	again, err := store.Create(ctx, "r1", "other", RunStatusRunning, nil)
	require.NoError(t, err)
	assert.Equal(t, "wf", again.Workflow)
	assert.Equal(t, RunStatusQueued, again.Status)

	rec, err = store.Update(ctx, "r1", ExecutionUpdate{
		Status:    RunStatusSuccess,
		Result:    map[string]any{"answer": 42},
		Metadata:  map[string]any{"attempt": 1},
		Completed: true,
	})
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, rec.Status)
	assert.Equal(t, map[string]any{"source": "api", "attempt": 1}, rec.Metadata)
	assert.NotEmpty(t, rec.CompletedAt)

	got, err := store.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 42, got.Result["answer"])

	got.Result["answer"] = 0
	fresh, _ := store.Get(ctx, "r1")
	assert.Equal(t, 42, fresh.Result["answer"])
}

func TestMemoryExecutionStore_UpdateUnknown(t *testing.T) {
	ctx := testContext(t)
	store := NewMemoryExecutionStore("")

	rec, err := store.Update(ctx, "ghost", ExecutionUpdate{Error: "lost", Completed: true})
	require.NoError(t, err)
	assert.Equal(t, RunStatusUnknown, rec.Status)
	assert.Equal(t, RunStatusUnknown, rec.Workflow)
	assert.Equal(t, "lost", rec.Error)
}

func TestMemoryExecutionStore_GetUnknown(t *testing.T) {
	_, err := NewMemoryExecutionStore("").Get(testContext(t), "nope")
	assert.True(t, types.IsErrorCode(err, types.ErrRunNotFound))
}

func TestMemoryExecutionStore_ListNewestFirst(t *testing.T) {
	ctx := testContext(t)
	store := NewMemoryExecutionStore("")
	for _, id := range []string{"a", "b", "c"} {
		_, err := store.Create(ctx, id, "wf", RunStatusRunning, nil)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].RunID, all[1].RunID, all[2].RunID})

	two, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestMemoryExecutionStore_PersistsFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewMemoryExecutionStore(dir)
	_, err := store.Create(testContext(t), "r1", "wf", RunStatusRunning, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "execution_r1.json"))
	require.NoError(t, err)
	var rec ExecutionRecord
	require.NoError(t, json.Unmarshal(data, &rec))
	assert.Equal(t, "r1", rec.RunID)
	assert.Equal(t, RunStatusRunning, rec.Status)
}

func TestTimestampSortsLexically(t *testing.T) {
	a := time.Date(2026, 1, 1, 0, 0, 5, 100_000_000, time.UTC).Format(TimestampLayout)
	b := time.Date(2026, 1, 1, 0, 0, 5, 120_000_000, time.UTC).Format(TimestampLayout)
	assert.Less(t, a, b)
}
