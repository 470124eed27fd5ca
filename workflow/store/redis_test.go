package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

func setupRedis(t *testing.T, opts ...RedisOption) (*miniredis.Miniredis, *RedisCheckpointStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisCheckpointStore(client, opts...)
}

func sampleCheckpoint(name string) *workflow.Checkpoint {
	return &workflow.Checkpoint{
		Name:      name,
		Workflow:  "pipeline",
		CreatedAt: "2024-01-01T00:00:00.000000000Z",
		State: map[string]any{
			"input":      "hello",
			"iterations": 2,
			"a":          map[string]any{"output": "done"},
		},
		NodeStatuses: map[string]workflow.NodeStatus{
			"a": workflow.StatusCompleted,
			"b": workflow.StatusPending,
		},
	}
}

func TestRedisCheckpointStore_SaveLoad(t *testing.T) {
	mr, s := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleCheckpoint("cp1")))
	assert.True(t, mr.Exists("agentgraph:checkpoint:cp1"))

	got, err := s.Load(ctx, "cp1")
	require.NoError(t, err)
	assert.Equal(t, sampleCheckpoint("cp1"), got)
}

func TestRedisCheckpointStore_LoadMissing(t *testing.T) {
	_, s := setupRedis(t)

	_, err := s.Load(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCheckpointNotFound))
}

func TestRedisCheckpointStore_ListAndDelete(t *testing.T) {
	_, s := setupRedis(t, WithKeyPrefix("test"))
	ctx := context.Background()

	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, s.Save(ctx, sampleCheckpoint(name)))
	}
	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, names)

	require.NoError(t, s.Delete(ctx, "b"))
	names, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, names)

	err = s.Delete(ctx, "b")
	assert.True(t, types.IsErrorCode(err, types.ErrCheckpointNotFound))
}

func TestRedisCheckpointStore_TTLPrunesIndex(t *testing.T) {
	mr, s := setupRedis(t, WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleCheckpoint("short")))
	assert.Equal(t, time.Minute, mr.TTL("agentgraph:checkpoint:short"))

	mr.FastForward(2 * time.Minute)

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
	members, err := mr.Members("agentgraph:checkpoints")
	if err == nil {
		assert.Empty(t, members)
	}
}

func TestRedisCheckpointStore_ResumeGraph(t *testing.T) {
	_, s := setupRedis(t)
	ctx := context.Background()

	g := workflow.NewGraph("pipeline")
	require.NoError(t, g.AddNode(workflow.InputNode("in")))
	require.NoError(t, g.AddNode(workflow.OutputNode("out")))
	require.NoError(t, g.AddEdge(workflow.NewEdge("in", "out")))

	state, err := g.Run(ctx, "first")
	require.NoError(t, err)
	_, err = g.SaveCheckpoint(ctx, s, "done", state)
	require.NoError(t, err)

	cp, err := g.LoadCheckpoint(ctx, s, "done")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatusCompleted, cp.NodeStatuses["out"])
	assert.Equal(t, "first", cp.State["input"])
}
