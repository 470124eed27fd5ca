package workflow

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/types"
)

func checkpointGraph(t *testing.T) *Graph {
	t.Helper()
	g, _ := newAgentGraph(t, echoFactory(), "a")
	require.NoError(t, g.AddNode(InputNode("in")))
	require.NoError(t, g.AddNode(AgentNode("a", "a")))
	require.NoError(t, g.AddNode(OutputNode("out")))
	require.NoError(t, g.AddEdge(NewEdge("in", "a")))
	require.NoError(t, g.AddEdge(NewEdge("a", "out")))
	return g
}

func TestCheckpoint_FileRoundTrip(t *testing.T) {
	ctx := testContext(t)
	g := checkpointGraph(t)
	state, err := g.Run(ctx, map[string]any{"topic": "go", "count": 3, "ratio": 0.5})
	require.NoError(t, err)

	store := NewFileCheckpointStore(t.TempDir())
	cp, err := g.SaveCheckpoint(ctx, store, "after-run", state)
	require.NoError(t, err)
	assert.Equal(t, "after-run", cp.Name)
	assert.Equal(t, "test", cp.Workflow)
	assert.Equal(t, StatusCompleted, cp.NodeStatuses["a"])

	_, err = os.Stat(store.Path("after-run"))
	require.NoError(t, err)

	loaded, err := g.LoadCheckpoint(ctx, store, "after-run")
	require.NoError(t, err)
	assert.Equal(t, cp, loaded)
	assert.Equal(t, 3, loaded.State["in"].(map[string]any)["count"])
	assert.Equal(t, 0.5, loaded.State["in"].(map[string]any)["ratio"])
}

func TestCheckpoint_IsIndependentOfState(t *testing.T) {
	g := checkpointGraph(t)
	state := NewState(map[string]any{"list": []any{"x"}})
	cp := g.CreateCheckpoint("snap", state)

	state.Set("later", true)
	cp.State["list"].([]any)[0] = "changed"

	assert.NotContains(t, cp.State, "later")
	v, _ := state.Get("list")
	assert.Equal(t, "x", v.([]any)[0])
}

func TestFileCheckpointStore_ListAndDelete(t *testing.T) {
	ctx := testContext(t)
	store := NewFileCheckpointStore(t.TempDir())
	g := checkpointGraph(t)

	for _, name := range []string{"b", "a"} {
		_, err := g.SaveCheckpoint(ctx, store, name, NewState(nil))
		require.NoError(t, err)
	}
	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)

	require.NoError(t, store.Delete(ctx, "a"))
	names, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names)

	err = store.Delete(ctx, "a")
	assert.True(t, types.IsErrorCode(err, types.ErrCheckpointNotFound))
}

func TestFileCheckpointStore_LoadMissing(t *testing.T) {
	store := NewFileCheckpointStore(t.TempDir())
	_, err := store.Load(testContext(t), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCheckpointNotFound)
	assert.Contains(t, err.Error(), "Checkpoint not found")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileCheckpointStore_RejectsEscapingNames(t *testing.T) {
	ctx := testContext(t)
	root := t.TempDir()
	store := NewFileCheckpointStore(filepath.Join(root, "a", "checkpoints"))
	g := checkpointGraph(t)

	for _, name := range []string{"/../../../escaped", "../up", "sub/name", `win\name`, "..", ".", ""} {
		t.Run(name, func(t *testing.T) {
			_, err := g.SaveCheckpoint(ctx, store, name, NewState(nil))
			assert.ErrorIs(t, err, ErrInvalidConfig)

			_, err = store.Load(ctx, name)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			assert.ErrorIs(t, store.Delete(ctx, name), ErrInvalidConfig)
		})
	}

	var written []string
	require.NoError(t, filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			written = append(written, path)
		}
		return err
	}))
	assert.Empty(t, written)
}

func TestValidateCheckpointName(t *testing.T) {
	assert.NoError(t, ValidateCheckpointName("after-run"))
	assert.NoError(t, ValidateCheckpointName("run_1.v2"))
	assert.Error(t, ValidateCheckpointName("a/b"))
	assert.Error(t, ValidateCheckpointName("a..b"))
}

func TestFileCheckpointStore_ListMissingDir(t *testing.T) {
	store := NewFileCheckpointStore(t.TempDir() + "/missing")
	names, err := store.List(testContext(t))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDecodeCheckpoint_Numbers(t *testing.T) {
	cp, err := DecodeCheckpoint([]byte(`{"name":"n","workflow":"w","state":{"i":2,"f":2.5,"nested":[1,{"x":3}]}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, cp.State["i"])
	assert.Equal(t, 2.5, cp.State["f"])
	assert.Equal(t, []any{1, map[string]any{"x": 3}}, cp.State["nested"])
	assert.NotNil(t, cp.NodeStatuses)

	_, err = DecodeCheckpoint([]byte("{"))
	assert.Error(t, err)
}
