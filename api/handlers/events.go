package handlers

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// =============================================================================
// 📡 运行事件分发
// =============================================================================

// EventRunCompleted 是运行结束时推送给订阅者的最后一个事件
const EventRunCompleted = "run_completed"

// subscriberBuffer 订阅者缓冲区，写满后丢弃事件而不阻塞执行
const subscriberBuffer = 256

type subscriber struct {
	ch   chan map[string]any
	once sync.Once
}

func (s *subscriber) close() { s.once.Do(func() { close(s.ch) }) }

// EventHub 按 run_id 将节点事件分发给 websocket 订阅者
type EventHub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	logger *zap.Logger
}

// NewEventHub 创建事件分发器
func NewEventHub(logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		subs:   make(map[string]map[*subscriber]struct{}),
		logger: logger.With(zap.String("component", "event_hub")),
	}
}

// Subscribe 订阅某次运行的事件。返回的 channel 在运行结束或取消订阅后关闭
func (h *EventHub) Subscribe(runID string) (<-chan map[string]any, func()) {
	sub := &subscriber{ch: make(chan map[string]any, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[runID] == nil {
		h.subs[runID] = make(map[*subscriber]struct{})
	}
	h.subs[runID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[runID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, runID)
			}
		}
		sub.close()
	}
	return sub.ch, cancel
}

// Publish 向订阅者推送事件，慢订阅者会丢失事件。发送与关闭都在锁内进行
func (h *EventHub) Publish(runID string, event map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[runID] {
		select {
		case sub.ch <- event:
		default:
			h.logger.Warn("dropping event for slow subscriber", zap.String("run_id", runID))
		}
	}
}

// Close 推送结束事件并关闭该运行的全部订阅
func (h *EventHub) Close(runID string, final map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[runID]
	delete(h.subs, runID)

	for sub := range set {
		select {
		case sub.ch <- final:
		default:
		}
		sub.close()
	}
}

// Subscribers 返回某次运行的订阅数
func (h *EventHub) Subscribers(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[runID])
}

// Callback 返回执行器使用的事件回调，run_id 取自上下文
func (h *EventHub) Callback() workflow.EventCallback {
	return func(ctx context.Context, event map[string]any) {
		runID, ok := types.RunID(ctx)
		if !ok {
			return
		}
		h.Publish(runID, event)
	}
}

// =============================================================================
// 🗂️ 运行结束通知
// =============================================================================

// NotifyingStore 在运行记录进入终态时关闭对应的事件订阅
type NotifyingStore struct {
	workflow.ExecutionStore
	hub *EventHub
}

// NewNotifyingStore 包装运行记录存储
func NewNotifyingStore(next workflow.ExecutionStore, hub *EventHub) *NotifyingStore {
	return &NotifyingStore{ExecutionStore: next, hub: hub}
}

// Update 转发更新，Completed 时推送 run_completed 事件
func (s *NotifyingStore) Update(ctx context.Context, runID string, update workflow.ExecutionUpdate) (*workflow.ExecutionRecord, error) {
	rec, err := s.ExecutionStore.Update(ctx, runID, update)
	if update.Completed {
		final := map[string]any{
			"run_id": runID,
			"event":  EventRunCompleted,
			"status": update.Status,
		}
		if update.Error != "" {
			final["error"] = update.Error
		}
		s.hub.Close(runID, final)
	}
	return rec, err
}
