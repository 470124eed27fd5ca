package flows

import (
	"context"

	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// RouteFunc picks the id of the agent that should handle the state.
type RouteFunc func(state *workflow.State) string

// ConditionalFlow routes the input to the agent chosen by a RouteFunc. The
// output node is also reachable directly so an unmatched route still ends
// the run.
type ConditionalFlow struct {
	*Base
	route RouteFunc
}

// NewConditionalFlow creates a conditional flow.
func NewConditionalFlow(agents []workflow.Agent, route RouteFunc, opts ...Option) (*ConditionalFlow, error) {
	return newRoutedFlow("conditional_flow", agents, route, opts...)
}

func newRoutedFlow(name string, agents []workflow.Agent, route RouteFunc, opts ...Option) (*ConditionalFlow, error) {
	if route == nil {
		return nil, types.Errorf(types.ErrInvalidConfig, "%s requires a route function", name)
	}
	b, err := NewBase(name, agents, opts...)
	if err != nil {
		return nil, err
	}
	return &ConditionalFlow{Base: b, route: route}, nil
}

// BuildGraph wires a conditional edge per agent plus input -> output.
func (f *ConditionalFlow) BuildGraph() (*workflow.Graph, error) {
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
		id := n.ID
		cond := func(s *workflow.State) bool { return f.route(s) == id }
		if err := g.AddEdge(workflow.ConditionalEdge("input", id, cond)); err != nil {
			return nil, err
		}
		if err := g.AddEdge(workflow.NewEdge(id, "output")); err != nil {
			return nil, err
		}
	}
	if err := g.AddEdge(workflow.NewEdge("input", "output")); err != nil {
		return nil, err
	}
	return g, nil
}

// Run executes the routed graph.
func (f *ConditionalFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	g, err := f.BuildGraph()
	if err != nil {
		return nil, err
	}
	return f.RunGraph(ctx, g, input, opts...)
}

// RouterFlow is a ConditionalFlow named for routing use.
type RouterFlow = ConditionalFlow

// NewRouterFlow creates a router flow.
func NewRouterFlow(agents []workflow.Agent, route RouteFunc, opts ...Option) (*RouterFlow, error) {
	return newRoutedFlow("router_flow", agents, route, opts...)
}

// SelectFunc picks the next agent id from the candidates.
type SelectFunc func(state *workflow.State, agentIDs []string) string

// SelectorFlow lets a SelectFunc pick which agent runs on each hop.
type SelectorFlow struct {
	*Base
	selector SelectFunc
	maxHops  int
}

// NewSelectorFlow creates a selector flow. maxHops <= 0 means one hop.
func NewSelectorFlow(agents []workflow.Agent, selector SelectFunc, maxHops int, opts ...Option) (*SelectorFlow, error) {
	if selector == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "selector_flow requires a selector function")
	}
	b, err := NewBase("selector_flow", agents, opts...)
	if err != nil {
		return nil, err
	}
	if maxHops <= 0 {
		maxHops = 1
	}
	return &SelectorFlow{Base: b, selector: selector, maxHops: maxHops}, nil
}

// BuildGraph adds one unconnected node per agent.
func (f *SelectorFlow) BuildGraph() (*workflow.Graph, error) {
	g := f.NewGraph()
	for _, n := range f.AgentNodes() {
		if err := g.AddNode(n); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Run asks the selector for an agent on every hop and executes it against
// the shared state. An agent already completed on an earlier hop is not run
// again.
func (f *SelectorFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	g, err := f.BuildGraph()
	if err != nil {
		return nil, err
	}
	cfg := f.runConfig(opts)
	state := f.prepareState(input, opts)
	ids := f.AgentIDs()

	for hop := 0; hop < f.maxHops; hop++ {
		selected := f.selector(state, ids)
		if _, ok := g.GetNode(selected); !ok {
			return nil, types.Errorf(types.ErrInvalidConfig, "SelectorFlow returned unknown agent id '%s'.", selected)
		}
		state.Update(func(data map[string]any) {
			data["next_agent"] = selected
			data["selector_hop"] = hop + 1
		})
		runOpts := []workflow.RunOption{workflow.WithState(state), workflow.WithEventCallback(cfg.callback)}
		if cfg.maxIterations > 0 {
			runOpts = append(runOpts, workflow.WithMaxIterations(cfg.maxIterations))
		}
		if _, err := g.ExecuteFrom(ctx, selected, nil, runOpts...); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// SubworkflowFlow runs a prebuilt graph as a flow.
type SubworkflowFlow struct {
	*Base
	graph *workflow.Graph
}

// NewSubworkflowFlow wraps graph. Agents are optional; they are only
// registered for callers that inspect the flow's registry.
func NewSubworkflowFlow(graph *workflow.Graph, agents []workflow.Agent, opts ...Option) (*SubworkflowFlow, error) {
	if graph == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "subworkflow_flow requires a graph")
	}
	b, err := newBase("subworkflow_flow", agents, 0, opts...)
	if err != nil {
		return nil, err
	}
	return &SubworkflowFlow{Base: b, graph: graph}, nil
}

// Graph returns the wrapped graph.
func (f *SubworkflowFlow) Graph() *workflow.Graph { return f.graph }

// Run executes the wrapped graph with the caller's state.
func (f *SubworkflowFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	cfg := f.runConfig(opts)
	runOpts := []workflow.RunOption{workflow.WithEventCallback(cfg.callback)}
	if cfg.state != nil {
		runOpts = append(runOpts, workflow.WithState(cfg.state))
	}
	if cfg.maxIterations > 0 {
		runOpts = append(runOpts, workflow.WithMaxIterations(cfg.maxIterations))
	}
	return f.graph.Run(ctx, input, runOpts...)
}
