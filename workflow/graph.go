package workflow

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

const tracerName = "github.com/BaSui01/agentgraph/workflow"

// Observer receives run and node outcomes, typically to export metrics.
type Observer interface {
	RecordWorkflowExecution(workflowID, status string, duration float64)
	RecordNodeExecution(workflowID, nodeID, nodeType, status string, duration float64)
}

type noopObserver struct{}

func (noopObserver) RecordWorkflowExecution(string, string, float64)             {}
func (noopObserver) RecordNodeExecution(string, string, string, string, float64) {}

// EventCallback is invoked on every node status transition and on every
// streamed token.
type EventCallback func(ctx context.Context, event map[string]any)

// VisitFunc visits one node and its descendants.
type VisitFunc func(ctx context.Context, nodeID string, state *State) error

// Visitor intercepts node visits. It may reset a completed node before
// calling next to send the flow back through it.
type Visitor func(ctx context.Context, g *Graph, nodeID string, state *State, next VisitFunc) error

// Graph owns nodes and edges and executes them against a shared State.
type Graph struct {
	name string

	mu       sync.RWMutex
	nodes    map[string]*Node
	order    []string
	edges    []*Edge
	outgoing map[string][]*Edge
	incoming map[string][]string

	logger         *zap.Logger
	baseLogger     *zap.Logger
	agents         AgentRegistry
	tools          ToolRegistry
	runtimeFactory RuntimeFactory
	sharedMemory   SharedMemory
	observer       Observer
	tracer         trace.Tracer
	streaming      bool
	handlers       map[NodeType]NodeHandler
	visitor        Visitor
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithAgents sets the agent registry used by agent nodes.
func WithAgents(r AgentRegistry) Option { return func(g *Graph) { g.agents = r } }

// WithTools sets the tool registry used by tool and agent nodes.
func WithTools(r ToolRegistry) Option { return func(g *Graph) { g.tools = r } }

// WithRegistry sets both registries from one Registry.
func WithRegistry(r *Registry) Option {
	return func(g *Graph) {
		g.agents = r
		g.tools = r
	}
}

// WithRuntimeFactory sets how agent runtimes are built.
func WithRuntimeFactory(f RuntimeFactory) Option { return func(g *Graph) { g.runtimeFactory = f } }

// WithSharedMemory attaches a memory handle passed to every agent runtime.
func WithSharedMemory(m SharedMemory) Option { return func(g *Graph) { g.sharedMemory = m } }

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(g *Graph) {
		if o != nil {
			g.observer = o
		}
	}
}

// WithTracer overrides the tracer; the global provider is used otherwise.
func WithTracer(t trace.Tracer) Option {
	return func(g *Graph) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithStreaming makes agent nodes stream through StreamingRuntime when the
// runtime supports it.
func WithStreaming(enabled bool) Option { return func(g *Graph) { g.streaming = enabled } }

// WithHandler overrides the logic for one node type.
func WithHandler(t NodeType, h NodeHandler) Option {
	return func(g *Graph) { g.handlers[t] = h }
}

// WithVisitor installs a visit interceptor.
func WithVisitor(v Visitor) Option { return func(g *Graph) { g.visitor = v } }

// NewGraph creates an empty graph.
func NewGraph(name string, opts ...Option) *Graph {
	if name == "" {
		name = "workflow"
	}
	g := &Graph{
		name:     name,
		nodes:    make(map[string]*Node),
		outgoing: make(map[string][]*Edge),
		incoming: make(map[string][]string),
		logger:   zap.NewNop(),
		observer: noopObserver{},
		tracer:   otel.Tracer(tracerName),
		handlers: defaultHandlers(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.baseLogger = g.logger
	g.logger = g.logger.With(zap.String("component", "graph"), zap.String("workflow_id", name))
	return g
}

// Name returns the graph name.
func (g *Graph) Name() string { return g.name }

// options rebuilds the collaborator options so nested graphs inherit them.
func (g *Graph) options() []Option {
	opts := []Option{
		WithLogger(g.baseLogger),
		WithAgents(g.agents),
		WithTools(g.tools),
		WithRuntimeFactory(g.runtimeFactory),
		WithSharedMemory(g.sharedMemory),
		WithObserver(g.observer),
		WithTracer(g.tracer),
		WithStreaming(g.streaming),
	}
	for t, h := range g.handlers {
		opts = append(opts, WithHandler(t, h))
	}
	return opts
}

// AddNode adds a node. Node ids are unique within a graph.
func (g *Graph) AddNode(n *Node) error {
	if n == nil || n.ID == "" {
		return types.NewError(types.ErrInvalidConfig, "node id is required")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.nodes[n.ID]; exists {
		return types.Errorf(types.ErrDuplicateNode, "Node with id '%s' already exists", n.ID)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge adds an edge. Both endpoints must already exist.
func (g *Graph) AddEdge(e *Edge) error {
	if e == nil {
		return types.NewError(types.ErrInvalidConfig, "edge is nil")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.nodes[e.Source]; !ok {
		return types.Errorf(types.ErrUnknownNode, "Source node '%s' not found", e.Source)
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return types.Errorf(types.ErrUnknownNode, "Target node '%s' not found", e.Target)
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]any)
	}
	g.edges = append(g.edges, e)
	g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	g.incoming[e.Target] = append(g.incoming[e.Target], e.Source)
	return nil
}

// GetNode returns the node with id.
func (g *Graph) GetNode(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// GetOutgoingEdges returns the edges leaving id.
func (g *Graph) GetOutgoingEdges(id string) []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, len(g.outgoing[id]))
	copy(out, g.outgoing[id])
	return out
}

// GetIncomingNodes returns the sources of edges entering id.
func (g *Graph) GetIncomingNodes(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.incoming[id]))
	copy(out, g.incoming[id])
	return out
}

// Validate checks the graph structure. Disconnected components and cycles
// are allowed; the former only produce a warning.
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(g.nodes) == 0 {
		return types.NewError(types.ErrEmptyGraph, "Graph must have at least one node")
	}

	reached := g.undirectedReach(g.order[0])
	if len(reached) != len(g.nodes) {
		g.logger.Warn("graph has disconnected components",
			zap.Int("reachable", len(reached)),
			zap.Int("nodes", len(g.nodes)),
		)
	}

	for _, e := range g.edges {
		if _, ok := g.nodes[e.Source]; !ok {
			return types.Errorf(types.ErrUnknownNode, "Edge source '%s' not found", e.Source)
		}
		if _, ok := g.nodes[e.Target]; !ok {
			return types.Errorf(types.ErrUnknownNode, "Edge target '%s' not found", e.Target)
		}
	}
	return nil
}

// undirectedReach walks edges in both directions from start.
func (g *Graph) undirectedReach(start string) map[string]struct{} {
	seen := map[string]struct{}{start: {}}
	stack := []string{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		neighbours := make([]string, 0, len(g.outgoing[id])+len(g.incoming[id]))
		for _, e := range g.outgoing[id] {
			neighbours = append(neighbours, e.Target)
		}
		neighbours = append(neighbours, g.incoming[id]...)
		for _, next := range neighbours {
			if _, ok := seen[next]; !ok {
				seen[next] = struct{}{}
				stack = append(stack, next)
			}
		}
	}
	return seen
}

// TopologicalSort orders the nodes with Kahn's algorithm.
func (g *Graph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		inDegree[id] = 0
	}
	for _, e := range g.edges {
		inDegree[e.Target]++
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, e := range g.outgoing[id] {
			inDegree[e.Target]--
			if inDegree[e.Target] == 0 {
				queue = append(queue, e.Target)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, types.NewError(types.ErrCycleDetected, "Graph contains cycles - cannot perform topological sort")
	}
	return sorted, nil
}

// EntryPoints returns the nodes without incoming edges, falling back to
// input nodes, in insertion order.
func (g *Graph) EntryPoints() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var entries []string
	for _, id := range g.order {
		if len(g.incoming[id]) == 0 {
			entries = append(entries, id)
		}
	}
	if len(entries) > 0 {
		return entries
	}
	for _, id := range g.order {
		if g.nodes[id].Type == NodeTypeInput {
			entries = append(entries, id)
		}
	}
	return entries
}

// ExitPoints returns the nodes without outgoing edges.
func (g *Graph) ExitPoints() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var exits []string
	for _, id := range g.order {
		if len(g.outgoing[id]) == 0 {
			exits = append(exits, id)
		}
	}
	return exits
}

// Reset returns every node to pending.
func (g *Graph) Reset() {
	for _, n := range g.Nodes() {
		n.Reset()
	}
}
