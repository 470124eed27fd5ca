package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

// QueueHandlerName is the handler the executor registers on its TaskQueue.
const QueueHandlerName = "workflow.execute"

// TaskQueue is the part of a worker queue the executor needs.
type TaskQueue interface {
	Start(ctx context.Context) error
	RegisterHandler(name string, handler func(ctx context.Context, payload map[string]any) error)
	Enqueue(ctx context.Context, taskID, handlerName string, payload, metadata map[string]any) (string, error)
}

// AgentFactory turns an agent node definition into an Agent.
type AgentFactory func(def NodeDefinition) (Agent, error)

// DefaultAgentFactory builds a BasicAgent whose id is the node id and whose
// tools come from config.tools.
func DefaultAgentFactory(def NodeDefinition) (Agent, error) {
	a := &BasicAgent{
		AgentID: def.ID,
		Role:    "Agent",
		Goal:    "Process tasks",
		Config:  def.Config,
	}
	if role, ok := def.Config["role"].(string); ok && role != "" {
		a.Role = role
	}
	if goal, ok := def.Config["goal"].(string); ok && goal != "" {
		a.Goal = goal
	}
	switch tools := def.Config["tools"].(type) {
	case []string:
		a.ToolNames = append(a.ToolNames, tools...)
	case []any:
		for _, t := range tools {
			if s, ok := t.(string); ok {
				a.ToolNames = append(a.ToolNames, s)
			}
		}
	}
	return a, nil
}

// ExecuteRequest describes one executor run.
type ExecuteRequest struct {
	Name           string           `json:"name,omitempty"`
	Nodes          []NodeDefinition `json:"nodes"`
	Edges          []EdgeDefinition `json:"edges"`
	Input          any              `json:"input_data"`
	State          map[string]any   `json:"state,omitempty"`
	RunID          string           `json:"run_id,omitempty"`
	MaxIterations  int              `json:"max_iterations,omitempty"`
	CheckpointDir  string           `json:"checkpoint_dir,omitempty"`
	ResumeFrom     string           `json:"resume_from,omitempty"`
	CheckpointName string           `json:"checkpoint_name,omitempty"`
	SharedMemory   bool             `json:"shared_memory,omitempty"`
	EventCallback  EventCallback    `json:"-"`
}

// RequestFromDefinition wraps a definition into a request.
func RequestFromDefinition(def *WorkflowDefinition, input any) ExecuteRequest {
	return ExecuteRequest{Name: def.Name, Nodes: def.Nodes, Edges: def.Edges, Input: input}
}

// ExecuteResult is the executor outcome. Execute never returns a Go error;
// failures are reported with Status "error".
type ExecuteResult struct {
	Status        string           `json:"status"`
	RunID         string           `json:"run_id"`
	Result        map[string]any   `json:"result,omitempty"`
	NodeEvents    []map[string]any `json:"node_events,omitempty"`
	NodesExecuted int              `json:"nodes_executed,omitempty"`
	Message       string           `json:"message"`
	Error         string           `json:"error,omitempty"`
}

// WorkflowExecutor builds graphs from definitions and runs them.
type WorkflowExecutor struct {
	registry       *Registry
	agentFactory   AgentFactory
	runtimeFactory RuntimeFactory
	store          ExecutionStore
	checkpoints    CheckpointStore
	queue          TaskQueue
	observer       Observer
	tracer         trace.Tracer
	streaming      bool
	maxIterations  int
	execConfig     *ExecutionConfig
	events         EventCallback
	logger         *zap.Logger
}

// ExecutorOption configures a WorkflowExecutor.
type ExecutorOption func(*WorkflowExecutor)

// WithExecutorRegistry sets the shared registry; per-run agents are layered
// on top of it.
func WithExecutorRegistry(r *Registry) ExecutorOption {
	return func(x *WorkflowExecutor) {
		if r != nil {
			x.registry = r
		}
	}
}

// WithAgentFactory overrides how agent nodes become agents.
func WithAgentFactory(f AgentFactory) ExecutorOption {
	return func(x *WorkflowExecutor) {
		if f != nil {
			x.agentFactory = f
		}
	}
}

// WithExecutorRuntimeFactory sets how agent runtimes are built.
func WithExecutorRuntimeFactory(f RuntimeFactory) ExecutorOption {
	return func(x *WorkflowExecutor) { x.runtimeFactory = f }
}

// WithExecutionStore sets where runs are recorded.
func WithExecutionStore(s ExecutionStore) ExecutorOption {
	return func(x *WorkflowExecutor) {
		if s != nil {
			x.store = s
		}
	}
}

// WithCheckpointStore sets the store used for resume and checkpoint saves
// when a request names no checkpoint directory.
func WithCheckpointStore(s CheckpointStore) ExecutorOption {
	return func(x *WorkflowExecutor) { x.checkpoints = s }
}

// WithTaskQueue enables ExecuteQueued.
func WithTaskQueue(q TaskQueue) ExecutorOption {
	return func(x *WorkflowExecutor) { x.queue = q }
}

// WithExecutorObserver sets the metrics observer of every built graph.
func WithExecutorObserver(o Observer) ExecutorOption {
	return func(x *WorkflowExecutor) { x.observer = o }
}

// WithExecutorTracer sets the tracer of every built graph.
func WithExecutorTracer(t trace.Tracer) ExecutorOption {
	return func(x *WorkflowExecutor) { x.tracer = t }
}

// WithExecutorStreaming enables streaming agent execution.
func WithExecutorStreaming(enabled bool) ExecutorOption {
	return func(x *WorkflowExecutor) { x.streaming = enabled }
}

// WithDefaultMaxIterations sets the budget used when a request sets none.
func WithDefaultMaxIterations(n int) ExecutorOption {
	return func(x *WorkflowExecutor) {
		if n > 0 {
			x.maxIterations = n
		}
	}
}

// WithDefaultExecutionConfig seeds execution_config into runs whose
// initial state carries none.
func WithDefaultExecutionConfig(c ExecutionConfig) ExecutorOption {
	return func(x *WorkflowExecutor) { x.execConfig = &c }
}

// WithExecutorEventCallback sets the callback used by requests that carry
// none, including queued runs. The run id is available through
// types.RunID on the callback context.
func WithExecutorEventCallback(cb EventCallback) ExecutorOption {
	return func(x *WorkflowExecutor) { x.events = cb }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(l *zap.Logger) ExecutorOption {
	return func(x *WorkflowExecutor) {
		if l != nil {
			x.logger = l
		}
	}
}

// NewWorkflowExecutor creates an executor.
func NewWorkflowExecutor(opts ...ExecutorOption) *WorkflowExecutor {
	x := &WorkflowExecutor{
		registry:      NewRegistry(),
		agentFactory:  DefaultAgentFactory,
		store:         NewMemoryExecutionStore(""),
		maxIterations: DefaultMaxIterations,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.logger = x.logger.With(zap.String("component", "workflow_executor"))
	if x.queue != nil {
		x.queue.RegisterHandler(QueueHandlerName, x.handleQueued)
	}
	return x
}

// Store returns the execution store.
func (x *WorkflowExecutor) Store() ExecutionStore { return x.store }

// Execute builds the graph described by req and runs it to completion.
func (x *WorkflowExecutor) Execute(ctx context.Context, req ExecuteRequest) *ExecuteResult {
	runID := req.RunID
	if runID == "" {
		runID = NewRunID()
	}
	name := req.Name
	if name == "" {
		name = "workflow"
	}
	ctx = types.WithRunID(ctx, runID)
	logger := x.logger.With(zap.String("run_id", runID), zap.String("workflow", name))

	if _, err := x.store.Create(ctx, runID, name, RunStatusRunning, nil); err != nil {
		logger.Warn("failed to create execution record", zap.Error(err))
	}
	if _, err := x.store.Update(ctx, runID, ExecutionUpdate{Status: RunStatusRunning}); err != nil {
		logger.Warn("failed to update execution record", zap.Error(err))
	}

	logger.Info("starting workflow execution")
	state, nodeCount, err := x.run(ctx, name, req)
	if err != nil {
		logger.Error("workflow execution failed", zap.Error(err))
		if _, uerr := x.store.Update(ctx, runID, ExecutionUpdate{
			Status:    RunStatusError,
			Error:     err.Error(),
			Completed: true,
		}); uerr != nil {
			logger.Warn("failed to update execution record", zap.Error(uerr))
		}
		return &ExecuteResult{
			Status:  RunStatusError,
			RunID:   runID,
			Error:   err.Error(),
			Message: "Workflow execution failed: " + err.Error(),
		}
	}

	result := state.Snapshot()
	if _, err := x.store.Update(ctx, runID, ExecutionUpdate{
		Status:    RunStatusSuccess,
		Result:    result,
		Completed: true,
	}); err != nil {
		logger.Warn("failed to update execution record", zap.Error(err))
	}
	logger.Info("workflow execution completed", zap.Int("nodes", nodeCount))

	return &ExecuteResult{
		Status:        RunStatusSuccess,
		RunID:         runID,
		Result:        result,
		NodeEvents:    eventsOf(result[KeyNodeEvents]),
		NodesExecuted: nodeCount,
		Message:       "Workflow executed successfully",
	}
}

func (x *WorkflowExecutor) run(ctx context.Context, name string, req ExecuteRequest) (*State, int, error) {
	registry := x.registry.Child()
	for _, nd := range req.Nodes {
		if strings.ToLower(nd.Type) != string(NodeTypeAgent) {
			continue
		}
		agent, err := x.agentFactory(nd)
		if err != nil {
			return nil, 0, fmt.Errorf("create agent %s: %w", nd.ID, err)
		}
		if err := registry.RegisterAgent(agent); err != nil {
			return nil, 0, fmt.Errorf("register agent %s: %w", nd.ID, err)
		}
	}

	opts := []Option{
		WithLogger(x.logger),
		WithRegistry(registry),
		WithRuntimeFactory(x.runtimeFactory),
		WithObserver(x.observer),
		WithTracer(x.tracer),
		WithStreaming(x.streaming),
	}
	if req.SharedMemory {
		opts = append(opts, WithSharedMemory(NewMapMemory()))
	}

	graph, err := x.BuildGraph(name, req.Nodes, req.Edges, opts...)
	if err != nil {
		return nil, 0, err
	}
	if err := graph.Validate(); err != nil {
		return nil, 0, err
	}

	store := x.checkpointStore(req)
	state := NewState(req.State)
	if x.execConfig != nil && !state.Has(KeyExecutionConfig) {
		state.Set(KeyExecutionConfig, x.execConfig.ToMap())
	}
	callback := req.EventCallback
	if callback == nil {
		callback = x.events
	}
	runOpts := []RunOption{WithState(state), WithEventCallback(callback)}
	maxIter := req.MaxIterations
	if maxIter <= 0 {
		maxIter = x.maxIterations
	}
	runOpts = append(runOpts, WithMaxIterations(maxIter))

	if req.ResumeFrom != "" && store != nil {
		cp, err := store.Load(ctx, req.ResumeFrom)
		if err != nil {
			return nil, 0, err
		}
		runOpts = append(runOpts, WithResume(cp))
	}

	_, runErr := graph.Run(ctx, req.Input, runOpts...)

	if req.CheckpointName != "" && store != nil {
		if _, err := graph.SaveCheckpoint(ctx, store, req.CheckpointName, state); err != nil {
			x.logger.Warn("failed to save checkpoint",
				zap.String("checkpoint", req.CheckpointName),
				zap.Error(err),
			)
		}
	}
	if runErr != nil {
		return nil, 0, runErr
	}
	return state, len(graph.Nodes()), nil
}

func (x *WorkflowExecutor) checkpointStore(req ExecuteRequest) CheckpointStore {
	if req.CheckpointDir != "" {
		return NewFileCheckpointStore(req.CheckpointDir)
	}
	return x.checkpoints
}

// BuildGraph converts node and edge definitions into a graph. Unknown node
// types are skipped with a warning.
func (x *WorkflowExecutor) BuildGraph(name string, nodes []NodeDefinition, edges []EdgeDefinition, opts ...Option) (*Graph, error) {
	g := NewGraph(name, opts...)
	for _, nd := range nodes {
		node := x.nodeFromDefinition(nd)
		if node == nil {
			continue
		}
		if err := g.AddNode(node); err != nil {
			return nil, err
		}
	}
	for _, ed := range edges {
		if err := g.AddEdge(ed.ToEdge()); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (x *WorkflowExecutor) nodeFromDefinition(nd NodeDefinition) *Node {
	cfg := nd.Config
	str := func(keys ...string) string {
		for _, k := range keys {
			if s, ok := cfg[k].(string); ok && s != "" {
				return s
			}
		}
		return ""
	}

	switch strings.ToLower(nd.Type) {
	case "input", "start":
		return InputNode(nd.ID)
	case "output", "end":
		return OutputNode(nd.ID)
	case "agent":
		n := AgentNode(nd.ID, nd.ID)
		if task := str("task"); task != "" {
			n.Config.Data["task"] = task
		}
		return n
	case "tool":
		toolName := str("tool_name", "name")
		if toolName == "" {
			toolName = "tool"
		}
		params, _ := cfg["tool_params"].(map[string]any)
		return ToolNode(nd.ID, toolName, params)
	case "decision", "condition":
		return ConditionNode(nd.ID, str("condition"))
	case "subgraph":
		workflowID := str("workflow_id", "subgraph_id", "workflow")
		if workflowID == "" {
			x.logger.Warn("subgraph node missing workflow_id", zap.String("node_id", nd.ID))
		}
		return SubgraphNode(nd.ID, workflowID)
	case "loop":
		maxIter := 5
		if v, ok := toInt(cfg["max_iterations"]); ok {
			maxIter = v
		}
		return LoopNode(nd.ID, str("condition"), maxIter)
	case "human":
		return HumanNode(nd.ID)
	default:
		x.logger.Warn("unknown node type", zap.String("node_id", nd.ID), zap.String("type", nd.Type))
		return nil
	}
}

// ExecuteQueued records the run as queued and hands it to the task queue.
// A run that is already running or succeeded is not enqueued again.
func (x *WorkflowExecutor) ExecuteQueued(ctx context.Context, req ExecuteRequest) (string, error) {
	if x.queue == nil {
		return "", types.NewError(types.ErrServiceUnavailable, "no task queue configured")
	}
	if req.RunID == "" {
		req.RunID = NewRunID()
	}
	if rec, err := x.store.Get(ctx, req.RunID); err == nil &&
		(rec.Status == RunStatusRunning || rec.Status == RunStatusSuccess) {
		return req.RunID, nil
	}

	name := req.Name
	if name == "" {
		name = "workflow"
	}
	if _, err := x.store.Create(ctx, req.RunID, name, RunStatusQueued, nil); err != nil {
		return "", fmt.Errorf("record queued run: %w", err)
	}

	payload, err := requestPayload(req)
	if err != nil {
		return "", err
	}
	if err := x.queue.Start(ctx); err != nil {
		return "", fmt.Errorf("start task queue: %w", err)
	}
	return x.queue.Enqueue(ctx, req.RunID, QueueHandlerName, payload, map[string]any{"workflow": "queued"})
}

// handleQueued runs a queued request. Run failures are recorded in the
// store rather than returned, so the queue does not retry them.
func (x *WorkflowExecutor) handleQueued(ctx context.Context, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode queued payload: %w", err)
	}
	var req ExecuteRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode queued payload: %w", err)
	}
	x.Execute(ctx, req)
	return nil
}

func requestPayload(req ExecuteRequest) (map[string]any, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return payload, nil
}

// TriggerEvent is an external event that starts a workflow run.
type TriggerEvent struct {
	TriggerID string         `json:"trigger_id"`
	Payload   map[string]any `json:"payload"`
}

// TriggerRunner binds trigger events to executor runs of one workflow.
type TriggerRunner struct {
	executor *WorkflowExecutor
	def      *WorkflowDefinition
	logger   *zap.Logger
}

// NewTriggerRunner creates a runner for def.
func NewTriggerRunner(executor *WorkflowExecutor, def *WorkflowDefinition, logger *zap.Logger) *TriggerRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerRunner{
		executor: executor,
		def:      def,
		logger:   logger.With(zap.String("component", "trigger_runner")),
	}
}

// HandleEvent runs the workflow with the event payload as input.
func (r *TriggerRunner) HandleEvent(ctx context.Context, event TriggerEvent) *ExecuteResult {
	r.logger.Info("trigger event received", zap.String("trigger_id", event.TriggerID))
	input := event.Payload
	if input == nil {
		input = map[string]any{}
	}
	return r.executor.Execute(ctx, RequestFromDefinition(r.def, input))
}
