package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Agent is the minimal view of an agent the engine needs.
type Agent interface {
	ID() string
	// Tools lists the tool names the agent may call.
	Tools() []string
}

// AgentRegistry resolves agents by id.
type AgentRegistry interface {
	GetAgent(id string) (Agent, bool)
}

// Tool is an invocable capability resolved from a ToolRegistry.
type Tool interface {
	Name() string
	Execute(ctx context.Context, params map[string]any) (*ToolResult, error)
}

// ToolRegistry resolves tools by name.
type ToolRegistry interface {
	GetTool(name string) (Tool, bool)
}

// ToolResult is the normalized outcome of a tool call.
type ToolResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToMap converts the result into a plain map stored in state.
func (r *ToolResult) ToMap() map[string]any {
	if r == nil {
		return map[string]any{"success": false, "data": nil, "error": "tool returned no result"}
	}
	return map[string]any{"success": r.Success, "data": r.Data, "error": r.Error}
}

// SharedMemory is an opaque handle shared by all agents of a run.
type SharedMemory interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapMemory is a map-backed SharedMemory.
type MapMemory struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewMapMemory creates an empty MapMemory.
func NewMapMemory() *MapMemory {
	return &MapMemory{data: make(map[string]any)}
}

// Get implements SharedMemory.
func (m *MapMemory) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Set implements SharedMemory.
func (m *MapMemory) Set(key string, value any) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

// AgentRuntime executes one task for one agent.
type AgentRuntime interface {
	Execute(ctx context.Context, task string, input map[string]any) (map[string]any, error)
}

// StreamChunk is one piece of a streamed agent response.
type StreamChunk struct {
	Text string
	Err  error
}

// StreamingRuntime is an AgentRuntime that can also stream its answer.
type StreamingRuntime interface {
	AgentRuntime
	StreamExecute(ctx context.Context, task string, input map[string]any) (<-chan StreamChunk, error)
}

// RuntimeFactory builds a fresh runtime for each agent invocation.
type RuntimeFactory func(agent Agent, tools []Tool, memory SharedMemory) (AgentRuntime, error)

// RuntimeFunc adapts a function to AgentRuntime.
type RuntimeFunc func(ctx context.Context, task string, input map[string]any) (map[string]any, error)

// Execute implements AgentRuntime.
func (f RuntimeFunc) Execute(ctx context.Context, task string, input map[string]any) (map[string]any, error) {
	return f(ctx, task, input)
}

// ToolFunc adapts a function to Tool.
type ToolFunc struct {
	ToolName string
	Fn       func(ctx context.Context, params map[string]any) (*ToolResult, error)
}

// Name implements Tool.
func (t *ToolFunc) Name() string { return t.ToolName }

// Execute implements Tool.
func (t *ToolFunc) Execute(ctx context.Context, params map[string]any) (*ToolResult, error) {
	return t.Fn(ctx, params)
}

// BasicAgent is a plain Agent value built from workflow definitions.
type BasicAgent struct {
	AgentID   string         `json:"id"`
	Role      string         `json:"role,omitempty"`
	Goal      string         `json:"goal,omitempty"`
	ToolNames []string       `json:"tools,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
}

// ID implements Agent.
func (a *BasicAgent) ID() string { return a.AgentID }

// Tools implements Agent.
func (a *BasicAgent) Tools() []string { return a.ToolNames }

// Registry is a concurrency-safe agent and tool registry. A child registry
// falls back to its parent for lookups it cannot satisfy.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Agent
	tools  map[string]Tool
	parent *Registry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]Agent),
		tools:  make(map[string]Tool),
	}
}

// Child creates a registry layered over r.
func (r *Registry) Child() *Registry {
	c := NewRegistry()
	c.parent = r
	return c
}

// RegisterAgent adds or replaces an agent.
func (r *Registry) RegisterAgent(a Agent) error {
	if a == nil || a.ID() == "" {
		return fmt.Errorf("agent id is required")
	}
	r.mu.Lock()
	r.agents[a.ID()] = a
	r.mu.Unlock()
	return nil
}

// RegisterTool adds or replaces a tool.
func (r *Registry) RegisterTool(t Tool) error {
	if t == nil || t.Name() == "" {
		return fmt.Errorf("tool name is required")
	}
	r.mu.Lock()
	r.tools[t.Name()] = t
	r.mu.Unlock()
	return nil
}

// GetAgent implements AgentRegistry.
func (r *Registry) GetAgent(id string) (Agent, bool) {
	r.mu.RLock()
	a, ok := r.agents[id]
	r.mu.RUnlock()
	if !ok && r.parent != nil {
		return r.parent.GetAgent(id)
	}
	return a, ok
}

// GetTool implements ToolRegistry.
func (r *Registry) GetTool(name string) (Tool, bool) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok && r.parent != nil {
		return r.parent.GetTool(name)
	}
	return t, ok
}

// AgentIDs returns the ids registered directly on r, sorted.
func (r *Registry) AgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ToolNames returns the tool names registered directly on r, sorted.
func (r *Registry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearAgents removes every agent registered directly on r.
func (r *Registry) ClearAgents() {
	r.mu.Lock()
	r.agents = make(map[string]Agent)
	r.mu.Unlock()
}
