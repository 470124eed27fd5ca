// =============================================================================
// 🧠 MockSharedMemory - 共享内存模拟实现
// =============================================================================
// 用于测试的 workflow.SharedMemory，记录读写次数
//
// 使用方法:
//
//	mem := mocks.NewMockSharedMemory().WithValue("topic", "graphs")
//	g := workflow.NewGraph("demo", workflow.WithSharedMemory(mem))
// =============================================================================
package mocks

import (
	"maps"
	"sync"
)

// MockSharedMemory 是 workflow.SharedMemory 的模拟实现
type MockSharedMemory struct {
	mu sync.RWMutex

	values   map[string]any
	getCalls int
	setCalls int
	setKeys  []string
}

// NewMockSharedMemory 创建空的共享内存
func NewMockSharedMemory() *MockSharedMemory {
	return &MockSharedMemory{values: make(map[string]any)}
}

// WithValue 预置一个值，不计入 Set 调用
func (m *MockSharedMemory) WithValue(key string, value any) *MockSharedMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return m
}

// Get implements workflow.SharedMemory.
func (m *MockSharedMemory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	v, ok := m.values[key]
	return v, ok
}

// Set implements workflow.SharedMemory.
func (m *MockSharedMemory) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls++
	m.setKeys = append(m.setKeys, key)
	m.values[key] = value
}

// Snapshot 返回当前内容的副本
func (m *MockSharedMemory) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// GetCalls 返回 Get 调用次数
func (m *MockSharedMemory) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

// SetCalls 返回 Set 调用次数
func (m *MockSharedMemory) SetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.setCalls
}

// SetKeys 按调用顺序返回写入的键
func (m *MockSharedMemory) SetKeys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.setKeys...)
}

// Reset 清空内容与计数
func (m *MockSharedMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = make(map[string]any)
	m.getCalls, m.setCalls, m.setKeys = 0, 0, nil
}
