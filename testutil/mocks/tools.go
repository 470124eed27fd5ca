// MockTool 与 MockToolRegistry 的工具模拟实现。
//
// 支持固定结果、自定义函数、错误注入与调用记录。
package mocks

import (
	"context"
	"maps"
	"sync"

	"github.com/BaSui01/agentgraph/workflow"
)

// ToolCall 记录单次工具调用
type ToolCall struct {
	Name   string
	Params map[string]any
	Result *workflow.ToolResult
	Error  error
}

// MockTool 是 workflow.Tool 的模拟实现
type MockTool struct {
	mu sync.Mutex

	name   string
	fn     func(ctx context.Context, params map[string]any) (*workflow.ToolResult, error)
	result *workflow.ToolResult
	err    error

	calls []ToolCall
}

// NewMockTool 创建工具，默认返回 {success: true, data: params}
func NewMockTool(name string) *MockTool {
	return &MockTool{name: name}
}

// WithResult 设置固定返回结果
func (m *MockTool) WithResult(data any) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = &workflow.ToolResult{Success: true, Data: data}
	return m
}

// WithError 设置固定返回错误
func (m *MockTool) WithError(err error) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 设置自定义执行函数
func (m *MockTool) WithFunc(fn func(ctx context.Context, params map[string]any) (*workflow.ToolResult, error)) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Name implements workflow.Tool.
func (m *MockTool) Name() string { return m.name }

// Execute implements workflow.Tool.
func (m *MockTool) Execute(ctx context.Context, params map[string]any) (*workflow.ToolResult, error) {
	m.mu.Lock()
	fn, result, err := m.fn, m.result, m.err
	m.mu.Unlock()

	switch {
	case err != nil:
	case fn != nil:
		result, err = fn(ctx, params)
	case result == nil:
		result = &workflow.ToolResult{Success: true, Data: maps.Clone(params)}
	}

	m.mu.Lock()
	m.calls = append(m.calls, ToolCall{Name: m.name, Params: maps.Clone(params), Result: result, Error: err})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Calls 返回调用记录的副本
func (m *MockTool) Calls() []ToolCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ToolCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockTool) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MockToolRegistry 是 workflow.ToolRegistry 的模拟实现，记录查找次数
type MockToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]workflow.Tool
	lookups map[string]int
}

// NewMockToolRegistry 创建注册表
func NewMockToolRegistry(tools ...workflow.Tool) *MockToolRegistry {
	r := &MockToolRegistry{
		tools:   make(map[string]workflow.Tool),
		lookups: make(map[string]int),
	}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// GetTool implements workflow.ToolRegistry.
func (r *MockToolRegistry) GetTool(name string) (workflow.Tool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[name]++
	t, ok := r.tools[name]
	return t, ok
}

// Lookups 返回指定工具的查找次数
func (r *MockToolRegistry) Lookups(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookups[name]
}
