package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// DefaultKeyPrefix namespaces every key the Redis store writes.
const DefaultKeyPrefix = "agentgraph"

// RedisCheckpointStore keeps encoded checkpoints under
// {prefix}:checkpoint:{name} and their names in the {prefix}:checkpoints set.
type RedisCheckpointStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisCheckpointStore.
type RedisOption func(*RedisCheckpointStore)

// WithKeyPrefix replaces the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisCheckpointStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL expires checkpoints after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisCheckpointStore) { s.ttl = ttl }
}

// NewRedisCheckpointStore creates a store on client.
func NewRedisCheckpointStore(client redis.UniversalClient, opts ...RedisOption) *RedisCheckpointStore {
	s := &RedisCheckpointStore{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCheckpointStore) key(name string) string { return s.prefix + ":checkpoint:" + name }

func (s *RedisCheckpointStore) indexKey() string { return s.prefix + ":checkpoints" }

// Save implements workflow.CheckpointStore.
func (s *RedisCheckpointStore) Save(ctx context.Context, cp *workflow.Checkpoint) error {
	data, err := workflow.EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(cp.Name), data, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), cp.Name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

// Load implements workflow.CheckpointStore.
func (s *RedisCheckpointStore) Load(ctx context.Context, name string) (*workflow.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.Errorf(types.ErrCheckpointNotFound, "Checkpoint not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	return workflow.DecodeCheckpoint(data)
}

// List implements workflow.CheckpointStore. Names whose checkpoint expired
// are pruned from the index.
func (s *RedisCheckpointStore) List(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.IntCmd, len(names))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.Exists(ctx, s.key(name))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	live := make([]string, 0, len(names))
	var stale []any
	for i, name := range names {
		if cmds[i].Val() > 0 {
			live = append(live, name)
		} else {
			stale = append(stale, name)
		}
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("prune checkpoint index: %w", err)
		}
	}
	sort.Strings(live)
	return live, nil
}

// Delete implements workflow.CheckpointStore.
func (s *RedisCheckpointStore) Delete(ctx context.Context, name string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(name))
		pipe.SRem(ctx, s.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", name, err)
	}
	if del.Val() == 0 {
		return types.Errorf(types.ErrCheckpointNotFound, "Checkpoint not found: %s", name)
	}
	return nil
}
