package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Task is one queued unit of work.
type Task struct {
	ID       string         `json:"task_id"`
	Payload  map[string]any `json:"payload"`
	Metadata map[string]any `json:"metadata"`
}

// HandlerName returns the handler the task was enqueued for.
func (t *Task) HandlerName() string {
	name, _ := t.Metadata[metaHandlerName].(string)
	return name
}

// Backend stores tasks between Enqueue and a worker picking them up.
type Backend interface {
	Put(ctx context.Context, task *Task) error
	// Get blocks until a task is available or ctx is done.
	Get(ctx context.Context) (*Task, error)
	Len(ctx context.Context) (int64, error)
}

// MemoryBackend is an in-process bounded FIFO.
type MemoryBackend struct {
	ch chan *Task
}

// NewMemoryBackend creates a backend holding up to size tasks.
func NewMemoryBackend(size int) *MemoryBackend {
	if size <= 0 {
		size = 1024
	}
	return &MemoryBackend{ch: make(chan *Task, size)}
}

// Put blocks while the backend is full.
func (b *MemoryBackend) Put(ctx context.Context, task *Task) error {
	select {
	case b.ch <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get implements Backend.
func (b *MemoryBackend) Get(ctx context.Context) (*Task, error) {
	select {
	case t := <-b.ch:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len implements Backend.
func (b *MemoryBackend) Len(context.Context) (int64, error) { return int64(len(b.ch)), nil }

// DefaultListName is the Redis list tasks are pushed to.
const DefaultListName = "agentgraph:queue"

// RedisBackend shares tasks between processes through a Redis list.
type RedisBackend struct {
	client      redis.UniversalClient
	list        string
	pollTimeout time.Duration
}

// NewRedisBackend creates a backend on list. An empty list name uses
// DefaultListName. pollTimeout bounds each BLPOP so workers notice
// cancellation; zero means one second.
func NewRedisBackend(client redis.UniversalClient, list string, pollTimeout time.Duration) *RedisBackend {
	if list == "" {
		list = DefaultListName
	}
	if pollTimeout <= 0 {
		pollTimeout = time.Second
	}
	return &RedisBackend{client: client, list: list, pollTimeout: pollTimeout}
}

// Put appends the JSON-encoded task to the list.
func (b *RedisBackend) Put(ctx context.Context, task *Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	if err := b.client.RPush(ctx, b.list, data).Err(); err != nil {
		return fmt.Errorf("push task %s: %w", task.ID, err)
	}
	return nil
}

// Get pops the oldest task, polling until one arrives.
func (b *RedisBackend) Get(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := b.client.BLPop(ctx, b.pollTimeout, b.list).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("pop task: %w", err)
		}
		// res is [list, value]
		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return nil, fmt.Errorf("decode task: %w", err)
		}
		if task.Metadata == nil {
			task.Metadata = make(map[string]any)
		}
		return &task, nil
	}
}

// Len implements Backend.
func (b *RedisBackend) Len(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, b.list).Result()
}
