package flows

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// Flow is a runnable orchestration preset.
type Flow interface {
	Name() string
	Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error)
}

// Option configures the shared Base of a flow.
type Option func(*Base)

// WithName overrides the flow name, which is also the graph name.
func WithName(name string) Option {
	return func(b *Base) {
		if name != "" {
			b.name = name
		}
	}
}

// WithExecutionConfig sets the retry and timeout policy.
func WithExecutionConfig(cfg workflow.ExecutionConfig) Option {
	return func(b *Base) { b.execConfig = cfg }
}

// WithRuntimeFactory sets how agent runtimes are built.
func WithRuntimeFactory(f workflow.RuntimeFactory) Option {
	return func(b *Base) { b.runtimeFactory = f }
}

// WithRegistry makes the flow's agents resolve tools from parent. The flow
// registers its agents in a child so parent is left untouched.
func WithRegistry(parent *workflow.Registry) Option {
	return func(b *Base) {
		if parent != nil {
			b.registry = parent.Child()
		}
	}
}

// WithSharedMemory attaches a memory handle passed to every runtime.
func WithSharedMemory(m workflow.SharedMemory) Option {
	return func(b *Base) { b.sharedMemory = m }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Base) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithGraphOptions passes extra options to graphs built by the flow.
func WithGraphOptions(opts ...workflow.Option) Option {
	return func(b *Base) { b.graphOpts = append(b.graphOpts, opts...) }
}

// RunOption configures one run.
type RunOption func(*runConfig)

type runConfig struct {
	state         *workflow.State
	maxIterations int
	callback      workflow.EventCallback
}

// WithState runs on an existing state instead of a fresh one.
func WithState(s *workflow.State) RunOption { return func(c *runConfig) { c.state = s } }

// WithMaxIterations sets the node visit budget for graph-based flows.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithEventCallback receives node events of graph-based flows.
func WithEventCallback(cb workflow.EventCallback) RunOption {
	return func(c *runConfig) { c.callback = cb }
}

// Base holds what every flow shares: agents, their registry, the execution
// policy and the runtime factory.
type Base struct {
	name           string
	agents         []workflow.Agent
	registry       *workflow.Registry
	runtimeFactory workflow.RuntimeFactory
	sharedMemory   workflow.SharedMemory
	execConfig     workflow.ExecutionConfig
	graphOpts      []workflow.Option
	logger         *zap.Logger
}

// NewBase builds a Base that requires at least one agent.
func NewBase(defaultName string, agents []workflow.Agent, opts ...Option) (*Base, error) {
	return newBase(defaultName, agents, 1, opts...)
}

func newBase(defaultName string, agents []workflow.Agent, minAgents int, opts ...Option) (*Base, error) {
	b := &Base{
		name:       defaultName,
		execConfig: workflow.DefaultExecutionConfig(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(agents) < minAgents {
		if minAgents == 1 {
			return nil, types.Errorf(types.ErrInvalidConfig, "%s requires at least one agent", b.name)
		}
		return nil, types.Errorf(types.ErrInvalidConfig, "%s requires at least %s agents", b.name, countWord(minAgents))
	}
	if b.registry == nil {
		b.registry = workflow.NewRegistry()
	}
	for _, a := range agents {
		if err := b.registry.RegisterAgent(a); err != nil {
			return nil, types.Errorf(types.ErrInvalidConfig, "%s: %v", b.name, err)
		}
	}
	b.agents = append([]workflow.Agent(nil), agents...)
	b.logger = b.logger.With(zap.String("component", "flow"), zap.String("flow", b.name))
	return b, nil
}

func countWord(n int) string {
	if n == 2 {
		return "two"
	}
	return fmt.Sprint(n)
}

// Name returns the flow name.
func (b *Base) Name() string { return b.name }

// Agents returns the agents in declaration order.
func (b *Base) Agents() []workflow.Agent { return append([]workflow.Agent(nil), b.agents...) }

// AgentIDs returns the agent ids in declaration order.
func (b *Base) AgentIDs() []string {
	ids := make([]string, len(b.agents))
	for i, a := range b.agents {
		ids[i] = a.ID()
	}
	return ids
}

// Registry returns the registry holding the flow's agents.
func (b *Base) Registry() *workflow.Registry { return b.registry }

// ExecutionConfig returns the retry and timeout policy.
func (b *Base) ExecutionConfig() workflow.ExecutionConfig { return b.execConfig }

// AgentNodes returns one agent node per agent, keyed by agent id.
func (b *Base) AgentNodes() []*workflow.Node {
	nodes := make([]*workflow.Node, len(b.agents))
	for i, a := range b.agents {
		nodes[i] = workflow.AgentNode(a.ID(), a.ID())
	}
	return nodes
}

// NewGraph returns an empty graph wired to the flow's collaborators.
func (b *Base) NewGraph() *workflow.Graph {
	opts := []workflow.Option{
		workflow.WithLogger(b.logger),
		workflow.WithRegistry(b.registry),
		workflow.WithRuntimeFactory(b.runtimeFactory),
		workflow.WithSharedMemory(b.sharedMemory),
	}
	return workflow.NewGraph(b.name, append(opts, b.graphOpts...)...)
}

// RunGraph runs g with the flow's execution config seeded into state when
// the caller did not provide one.
func (b *Base) RunGraph(ctx context.Context, g *workflow.Graph, input any, opts ...RunOption) (*workflow.State, error) {
	cfg := b.runConfig(opts)
	state := cfg.state
	if state == nil {
		state = workflow.NewState(nil)
	}
	if !state.Has(workflow.KeyExecutionConfig) {
		state.Set(workflow.KeyExecutionConfig, b.execConfig.ToMap())
	}
	runOpts := []workflow.RunOption{workflow.WithState(state), workflow.WithEventCallback(cfg.callback)}
	if cfg.maxIterations > 0 {
		runOpts = append(runOpts, workflow.WithMaxIterations(cfg.maxIterations))
	}
	return g.Run(ctx, input, runOpts...)
}

func (b *Base) runConfig(opts []RunOption) runConfig {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// prepareState returns the run state with input recorded.
func (b *Base) prepareState(input any, opts []RunOption) *workflow.State {
	state := b.runConfig(opts).state
	if state == nil {
		state = workflow.NewState(nil)
	}
	state.Set(workflow.KeyInput, input)
	return state
}

// Runtime builds a runtime for agent with the tools it declares.
func (b *Base) Runtime(agent workflow.Agent) (workflow.AgentRuntime, error) {
	if b.runtimeFactory == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "no agent runtime factory configured")
	}
	var tools []workflow.Tool
	for _, name := range agent.Tools() {
		if t, ok := b.registry.GetTool(name); ok {
			tools = append(tools, t)
		} else {
			b.logger.Warn("agent tool not registered",
				zap.String("agent_id", agent.ID()),
				zap.String("tool", name),
			)
		}
	}
	rt, err := b.runtimeFactory(agent, tools, b.sharedMemory)
	if err != nil {
		return nil, fmt.Errorf("create runtime for agent %s: %w", agent.ID(), err)
	}
	return rt, nil
}

// runtimes builds one runtime per agent, in order.
func (b *Base) runtimes(agents []workflow.Agent) ([]workflow.AgentRuntime, error) {
	out := make([]workflow.AgentRuntime, len(agents))
	for i, a := range agents {
		rt, err := b.Runtime(a)
		if err != nil {
			return nil, err
		}
		out[i] = rt
	}
	return out, nil
}

// ExecuteWithRetry runs one task under the flow's execution config.
func (b *Base) ExecuteWithRetry(ctx context.Context, rt workflow.AgentRuntime, task string, input map[string]any) (map[string]any, error) {
	return workflow.Retry(ctx, b.execConfig, func(ctx context.Context) (map[string]any, error) {
		return rt.Execute(ctx, task, input)
	})
}

// GatherTasks runs tasks concurrently honouring CancelOnFailure.
func (b *Base) GatherTasks(ctx context.Context, tasks []workflow.Task[map[string]any]) ([]workflow.Outcome[map[string]any], error) {
	return workflow.Gather(ctx, tasks, b.execConfig.CancelOnFailure)
}

// taskOr returns the task stored in state or def.
func taskOr(state *workflow.State, key, def string) string {
	if s := state.GetString(key); s != "" {
		return s
	}
	return def
}

// withContext copies the state and adds extra keys for one agent call.
func withContext(state *workflow.State, extra map[string]any) map[string]any {
	m := state.Map()
	for k, v := range extra {
		m[k] = v
	}
	return m
}

// outputString renders a runtime result's output as text.
func outputString(result map[string]any) string {
	if result == nil {
		return ""
	}
	v, ok := result["output"]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// appendList appends item to the list stored under key.
func appendList(state *workflow.State, key string, items ...any) {
	state.Update(func(data map[string]any) {
		list, _ := data[key].([]any)
		data[key] = append(list, items...)
	})
}
