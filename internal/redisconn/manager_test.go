package redisconn

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/workflow"
	"github.com/BaSui01/agentgraph/workflow/store"
)

func setupTestRedis(t *testing.T, interval time.Duration) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = interval

	m, err := NewManager(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestNewManager(t *testing.T) {
	_, m := setupTestRedis(t, 0)

	assert.NotNil(t, m.Client())
	require.NoError(t, m.Ping(context.Background()))
}

func TestNewManager_Unreachable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.MaxRetries = 0

	_, err := NewManager(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to redis")
}

func TestManager_CloseIdempotent(t *testing.T) {
	_, m := setupTestRedis(t, 10*time.Millisecond)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Error(t, m.Ping(context.Background()))
}

func TestManager_ServesCheckpointStore(t *testing.T) {
	mr, m := setupTestRedis(t, 0)
	ctx := context.Background()

	s := store.NewRedisCheckpointStore(m.Client())
	cp := &workflow.Checkpoint{Name: "shared", Workflow: "wf", State: map[string]any{}, NodeStatuses: map[string]workflow.NodeStatus{}}
	require.NoError(t, s.Save(ctx, cp))
	assert.True(t, mr.Exists("agentgraph:checkpoint:shared"))
	assert.GreaterOrEqual(t, m.Stats().TotalConns, uint32(1))
}
