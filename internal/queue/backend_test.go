package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisBackend(t *testing.T) (*miniredis.Miniredis, *RedisBackend) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisBackend(client, "", 50*time.Millisecond)
}

func TestRedisBackend_PutGet(t *testing.T) {
	mr, b := setupRedisBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, &Task{ID: "a", Payload: map[string]any{"n": 1}, Metadata: map[string]any{"handler_name": "h"}}))
	require.NoError(t, b.Put(ctx, &Task{ID: "b"}))

	items, err := mr.List(DefaultListName)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.JSONEq(t, `{"task_id":"a","payload":{"n":1},"metadata":{"handler_name":"h"}}`, items[0])

	n, err := b.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first, err := b.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", first.ID)
	assert.Equal(t, "h", first.HandlerName())
	assert.EqualValues(t, 1, first.Payload["n"])

	second, err := b.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", second.ID)
	assert.NotNil(t, second.Metadata)
}

func TestRedisBackend_GetHonoursContext(t *testing.T) {
	_, b := setupRedisBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	_, err := b.Get(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_WithRedisBackend(t *testing.T) {
	_, b := setupRedisBackend(t)
	e := newTestEngine(t, b, Config{WorkerCount: 2})
	var sum atomic.Int64
	e.RegisterHandler("add", func(_ context.Context, payload map[string]any) error {
		v, _ := payload["v"].(float64)
		sum.Add(int64(v))
		return nil
	})

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	for i := 1; i <= 4; i++ {
		_, err := e.Enqueue(ctx, "", "add", map[string]any{"v": i}, nil)
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool { return sum.Load() == 10 }, 3*time.Second, 20*time.Millisecond)
}

func TestMemoryBackend_PutBlocksWhenFull(t *testing.T) {
	b := NewMemoryBackend(1)
	require.NoError(t, b.Put(context.Background(), &Task{ID: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Put(ctx, &Task{ID: "2"}), context.DeadlineExceeded)
}
