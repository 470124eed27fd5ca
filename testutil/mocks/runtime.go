// =============================================================================
// 🤖 MockRuntime - agent 运行时模拟实现
// =============================================================================
// 按 agent id 编排输出、错误、延迟与流式分片，并记录每次调用
//
// 使用方法:
//
//	rt := mocks.NewMockRuntime().
//		WithResponse("writer", map[string]any{"draft": "v1"}).
//		WithError("critic", errors.New("boom"))
//	exec := workflow.NewWorkflowExecutor(workflow.WithExecutorRuntimeFactory(rt.Factory()))
// =============================================================================
package mocks

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/BaSui01/agentgraph/workflow"
)

// ErrMockFailure 是 WithFailAfter 触发时返回的错误
var ErrMockFailure = errors.New("mock runtime failure")

// RuntimeCall 记录单次运行时调用
type RuntimeCall struct {
	AgentID string
	Task    string
	Input   map[string]any
	Tools   []string
}

// MockRuntime 是 workflow.AgentRuntime 的可编排模拟实现
type MockRuntime struct {
	mu sync.Mutex

	responses map[string]map[string]any
	errs      map[string]error
	fn        func(agentID, task string, input map[string]any) (map[string]any, error)
	chunks    []string
	delay     time.Duration
	failAfter int

	calls []RuntimeCall
}

// NewMockRuntime 创建新的 MockRuntime。未编排的 agent 回显 agent 与 task
func NewMockRuntime() *MockRuntime {
	return &MockRuntime{
		responses: make(map[string]map[string]any),
		errs:      make(map[string]error),
	}
}

// --- Builder 方法 ---

// WithResponse 设置 agent 的固定输出
func (m *MockRuntime) WithResponse(agentID string, out map[string]any) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[agentID] = out
	return m
}

// WithError 设置 agent 的固定错误
func (m *MockRuntime) WithError(agentID string, err error) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[agentID] = err
	return m
}

// WithFunc 使用自定义函数生成输出，优先于 WithResponse
func (m *MockRuntime) WithFunc(fn func(agentID, task string, input map[string]any) (map[string]any, error)) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// WithDelay 为每次调用增加延迟，延迟期间响应 ctx 取消
func (m *MockRuntime) WithDelay(d time.Duration) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 前 n 次调用成功，之后返回 ErrMockFailure
func (m *MockRuntime) WithFailAfter(n int) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithStreamChunks 设置流式分片，StreamingFactory 创建的运行时依次发送
func (m *MockRuntime) WithStreamChunks(chunks ...string) *MockRuntime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunks = chunks
	return m
}

// --- 工厂 ---

// Factory 返回只实现 Execute 的 RuntimeFactory
func (m *MockRuntime) Factory() workflow.RuntimeFactory {
	return func(agent workflow.Agent, tools []workflow.Tool, _ workflow.SharedMemory) (workflow.AgentRuntime, error) {
		return m.bind(agent, tools), nil
	}
}

// StreamingFactory 返回同时实现 StreamExecute 的 RuntimeFactory
func (m *MockRuntime) StreamingFactory() workflow.RuntimeFactory {
	return func(agent workflow.Agent, tools []workflow.Tool, _ workflow.SharedMemory) (workflow.AgentRuntime, error) {
		return &streamingRuntime{boundRuntime: m.bind(agent, tools)}, nil
	}
}

func (m *MockRuntime) bind(agent workflow.Agent, tools []workflow.Tool) *boundRuntime {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return &boundRuntime{mock: m, agentID: agent.ID(), tools: names}
}

// --- 调用记录 ---

// Calls 返回全部调用记录的副本
func (m *MockRuntime) Calls() []RuntimeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RuntimeCall(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockRuntime) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// CallsFor 返回指定 agent 的调用记录
func (m *MockRuntime) CallsFor(agentID string) []RuntimeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RuntimeCall
	for _, c := range m.calls {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	return out
}

// Reset 清空调用记录
func (m *MockRuntime) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *MockRuntime) invoke(ctx context.Context, agentID string, tools []string, task string, input map[string]any) (map[string]any, error) {
	m.mu.Lock()
	m.calls = append(m.calls, RuntimeCall{AgentID: agentID, Task: task, Input: maps.Clone(input), Tools: tools})
	n := len(m.calls)
	delay, failAfter, fn := m.delay, m.failAfter, m.fn
	out, hasOut := m.responses[agentID]
	err := m.errs[agentID]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if failAfter > 0 && n > failAfter {
		return nil, fmt.Errorf("%w: call %d", ErrMockFailure, n)
	}
	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(agentID, task, input)
	}
	if hasOut {
		return maps.Clone(out), nil
	}
	return map[string]any{"agent": agentID, "task": task}, nil
}

// boundRuntime 绑定到单个 agent 的运行时
type boundRuntime struct {
	mock    *MockRuntime
	agentID string
	tools   []string
}

func (r *boundRuntime) Execute(ctx context.Context, task string, input map[string]any) (map[string]any, error) {
	return r.mock.invoke(ctx, r.agentID, r.tools, task, input)
}

type streamingRuntime struct {
	*boundRuntime
}

func (r *streamingRuntime) StreamExecute(ctx context.Context, task string, input map[string]any) (<-chan workflow.StreamChunk, error) {
	r.mock.mu.Lock()
	chunks := append([]string(nil), r.mock.chunks...)
	r.mock.mu.Unlock()

	if len(chunks) == 0 {
		out, err := r.Execute(ctx, task, input)
		if err != nil {
			return nil, err
		}
		chunks = []string{fmt.Sprint(out)}
	} else {
		r.mock.mu.Lock()
		r.mock.calls = append(r.mock.calls, RuntimeCall{AgentID: r.agentID, Task: task, Input: maps.Clone(input), Tools: r.tools})
		r.mock.mu.Unlock()
	}

	ch := make(chan workflow.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- workflow.StreamChunk{Text: c}
	}
	close(ch)
	return ch, nil
}
