package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/workflow"
)

// =============================================================================
// 🗂️ 运行记录读缓存
// =============================================================================

// ExecutionStore 为 workflow.ExecutionStore 增加读缓存。只有终态
// （success / error）的记录会被缓存，Update 会先使缓存失效。
// 缓存故障只记录日志，读写回落到底层存储
type ExecutionStore struct {
	inner  workflow.ExecutionStore
	cache  *Manager
	ttl    time.Duration
	logger *zap.Logger
}

var _ workflow.ExecutionStore = (*ExecutionStore)(nil)

// NewExecutionStore 包装 inner，ttl 为 0 时使用缓存默认过期时间
func NewExecutionStore(inner workflow.ExecutionStore, cache *Manager, ttl time.Duration, logger *zap.Logger) *ExecutionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionStore{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "execution_cache")),
	}
}

func recordKey(runID string) string { return "run:" + runID }

func terminal(status string) bool {
	return status == workflow.RunStatusSuccess || status == workflow.RunStatusError
}

// Create implements workflow.ExecutionStore.
func (s *ExecutionStore) Create(ctx context.Context, runID, wf, status string, metadata map[string]any) (*workflow.ExecutionRecord, error) {
	return s.inner.Create(ctx, runID, wf, status, metadata)
}

// Update implements workflow.ExecutionStore.
func (s *ExecutionStore) Update(ctx context.Context, runID string, update workflow.ExecutionUpdate) (*workflow.ExecutionRecord, error) {
	if err := s.cache.Delete(ctx, recordKey(runID)); err != nil {
		s.logger.Warn("invalidate cached record failed", zap.String("run_id", runID), zap.Error(err))
	}
	rec, err := s.inner.Update(ctx, runID, update)
	if err != nil {
		return nil, err
	}
	s.store(ctx, rec)
	return rec, nil
}

// Get implements workflow.ExecutionStore.
func (s *ExecutionStore) Get(ctx context.Context, runID string) (*workflow.ExecutionRecord, error) {
	var rec workflow.ExecutionRecord
	err := s.cache.GetJSON(ctx, recordKey(runID), &rec)
	if err == nil {
		return &rec, nil
	}
	if !IsCacheMiss(err) {
		s.logger.Warn("read cached record failed", zap.String("run_id", runID), zap.Error(err))
	}

	got, err := s.inner.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, got)
	return got, nil
}

// List implements workflow.ExecutionStore. Listings are not cached.
func (s *ExecutionStore) List(ctx context.Context, limit int) ([]*workflow.ExecutionRecord, error) {
	return s.inner.List(ctx, limit)
}

func (s *ExecutionStore) store(ctx context.Context, rec *workflow.ExecutionRecord) {
	if rec == nil || !terminal(rec.Status) {
		return
	}
	if err := s.cache.SetJSON(ctx, recordKey(rec.RunID), rec, s.ttl); err != nil {
		s.logger.Warn("cache record failed", zap.String("run_id", rec.RunID), zap.Error(err))
	}
}
