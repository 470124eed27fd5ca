package flows

import (
	"context"

	"github.com/BaSui01/agentgraph/workflow"
)

// RoundRobinFlow chains the agents in declaration order.
type RoundRobinFlow struct {
	*Base
}

// NewRoundRobinFlow creates a round robin flow.
func NewRoundRobinFlow(agents []workflow.Agent, opts ...Option) (*RoundRobinFlow, error) {
	b, err := NewBase("round_robin_flow", agents, opts...)
	if err != nil {
		return nil, err
	}
	return &RoundRobinFlow{Base: b}, nil
}

// BuildGraph links every agent to the next one.
func (f *RoundRobinFlow) BuildGraph() (*workflow.Graph, error) {
	g := f.NewGraph()
	nodes := f.AgentNodes()
	for _, n := range nodes {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for i := 0; i+1 < len(nodes); i++ {
		if err := g.AddEdge(workflow.NewEdge(nodes[i].ID, nodes[i+1].ID)); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Run executes the chain.
func (f *RoundRobinFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	g, err := f.BuildGraph()
	if err != nil {
		return nil, err
	}
	return f.RunGraph(ctx, g, input, opts...)
}

// ParallelFlow fans out from an input node to every agent and joins them at
// an output node.
type ParallelFlow struct {
	*Base
}

// NewParallelFlow creates a parallel flow.
func NewParallelFlow(agents []workflow.Agent, opts ...Option) (*ParallelFlow, error) {
	b, err := NewBase("parallel_flow", agents, opts...)
	if err != nil {
		return nil, err
	}
	return &ParallelFlow{Base: b}, nil
}

// BuildGraph wires input -> agents (parallel) -> output.
func (f *ParallelFlow) BuildGraph() (*workflow.Graph, error) {
	g := f.NewGraph()
	if err := g.AddNode(workflow.InputNode("input")); err != nil {
		return nil, err
	}
	if err := g.AddNode(workflow.OutputNode("output")); err != nil {
		return nil, err
	}
	for _, n := range f.AgentNodes() {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
		if err := g.AddEdge(workflow.ParallelEdge("input", n.ID)); err != nil {
			return nil, err
		}
		if err := g.AddEdge(workflow.NewEdge(n.ID, "output")); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Run executes the fan-out.
func (f *ParallelFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	g, err := f.BuildGraph()
	if err != nil {
		return nil, err
	}
	return f.RunGraph(ctx, g, input, opts...)
}

// LoopFlow repeats the first agent through a loop node keyed on a state
// flag.
type LoopFlow struct {
	*Base
	conditionKey  string
	maxIterations int
}

// NewLoopFlow creates a loop flow. maxIterations <= 0 means 5.
func NewLoopFlow(agents []workflow.Agent, conditionKey string, maxIterations int, opts ...Option) (*LoopFlow, error) {
	b, err := NewBase("loop_flow", agents, opts...)
	if err != nil {
		return nil, err
	}
	if maxIterations <= 0 {
		maxIterations = 5
	}
	return &LoopFlow{Base: b, conditionKey: conditionKey, maxIterations: maxIterations}, nil
}

// BuildGraph wires input -> loop -> first agent -> output.
func (f *LoopFlow) BuildGraph() (*workflow.Graph, error) {
	g := f.NewGraph()
	first := f.AgentNodes()[0]
	for _, n := range []*workflow.Node{
		workflow.InputNode("input"),
		workflow.LoopNode("loop", f.conditionKey, f.maxIterations),
		first,
		workflow.OutputNode("output"),
	} {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range []*workflow.Edge{
		workflow.NewEdge("input", "loop"),
		workflow.NewEdge("loop", first.ID),
		workflow.NewEdge(first.ID, "output"),
	} {
		if err := g.AddEdge(e); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Run executes the loop.
func (f *LoopFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	g, err := f.BuildGraph()
	if err != nil {
		return nil, err
	}
	return f.RunGraph(ctx, g, input, opts...)
}
