package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

// DefaultMaxIterations bounds the number of node visits in one run.
const DefaultMaxIterations = 100

type runConfig struct {
	maxIterations int
	state         *State
	resume        *Checkpoint
	callback      EventCallback
}

// RunOption configures a single Run.
type RunOption func(*runConfig)

// WithMaxIterations sets the global visit budget.
func WithMaxIterations(n int) RunOption {
	return func(c *runConfig) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithState runs against a caller-owned state. The caller keeps access to
// partial results when the run fails.
func WithState(s *State) RunOption { return func(c *runConfig) { c.state = s } }

// WithResume seeds the run from a checkpoint. Node statuses are restored
// and the new input replaces the saved one.
func WithResume(cp *Checkpoint) RunOption { return func(c *runConfig) { c.resume = cp } }

// WithEventCallback receives every node event of the run.
func WithEventCallback(cb EventCallback) RunOption { return func(c *runConfig) { c.callback = cb } }

// RunContext carries per-run settings to node handlers.
type RunContext struct {
	Graph         *Graph
	MaxIterations int
	callback      EventCallback
}

// Emit forwards an event to the run callback without recording it in
// node_events.
func (rc *RunContext) Emit(ctx context.Context, event map[string]any) {
	if rc.callback != nil {
		rc.callback(ctx, event)
	}
}

// Run validates the graph and traverses it from its entry points.
//
// The returned state is the live shared state. Any node failure, an
// exhausted iteration budget or a cancelled context aborts the run with an
// *ExecutionError and a nil state.
func (g *Graph) Run(ctx context.Context, input any, opts ...RunOption) (*State, error) {
	cfg := runConfig{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	state := g.prepareState(input, cfg)

	entries := g.EntryPoints()
	if len(entries) == 0 {
		return nil, types.NewError(types.ErrNoEntryPoint, "No entry point found in graph")
	}

	rc := &RunContext{Graph: g, MaxIterations: cfg.maxIterations, callback: cfg.callback}

	ctx = types.WithWorkflowID(ctx, g.name)
	ctx, span := g.tracer.Start(ctx, "workflow.execute",
		trace.WithAttributes(attribute.String("workflow_id", g.name)))
	defer span.End()

	g.logger.Info("starting graph execution",
		zap.Strings("entry_points", entries),
		zap.Int("max_iterations", cfg.maxIterations),
	)

	start := time.Now()
	var err error
	for _, id := range entries {
		if err = g.visit(ctx, rc, id, state); err != nil {
			break
		}
	}
	duration := time.Since(start)

	if err != nil {
		g.observer.RecordWorkflowExecution(g.name, "error", duration.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Error("graph execution failed",
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		if execErr, ok := err.(*ExecutionError); ok {
			return nil, execErr
		}
		return nil, &ExecutionError{Err: err}
	}

	g.observer.RecordWorkflowExecution(g.name, "success", duration.Seconds())
	g.logger.Info("graph execution completed",
		zap.Duration("duration", duration),
		zap.Int("iterations", state.Iterations()),
	)
	return state, nil
}

// EngineResult is the outcome of ExecuteFrom.
type EngineResult struct {
	Status      string         `json:"status"`
	NodeResults map[string]any `json:"node_results"`
	State       *State         `json:"state"`
}

// ExecuteFrom visits startNode directly without validating the graph or
// resolving entry points. initial may be nil; with WithState it is merged
// into the given state.
func (g *Graph) ExecuteFrom(ctx context.Context, startNode string, initial map[string]any, opts ...RunOption) (*EngineResult, error) {
	cfg := runConfig{maxIterations: DefaultMaxIterations}
	for _, opt := range opts {
		opt(&cfg)
	}
	state := cfg.state
	if state == nil {
		state = NewState(initial)
	} else if len(initial) > 0 {
		state.Update(func(d map[string]any) {
			for k, v := range initial {
				d[k] = v
			}
		})
	}
	rc := &RunContext{Graph: g, MaxIterations: cfg.maxIterations, callback: cfg.callback}

	if err := g.visit(types.WithWorkflowID(ctx, g.name), rc, startNode, state); err != nil {
		if execErr, ok := err.(*ExecutionError); ok {
			return nil, execErr
		}
		return nil, &ExecutionError{Err: err}
	}

	results := state.Map()
	delete(results, KeyIterations)
	return &EngineResult{Status: "completed", NodeResults: results, State: state}, nil
}

func (g *Graph) prepareState(input any, cfg runConfig) *State {
	state := cfg.state
	if state == nil {
		state = NewState(nil)
	}

	if cp := cfg.resume; cp != nil {
		data, _ := DeepCopy(cp.State).(map[string]any)
		if data == nil {
			data = make(map[string]any)
		}
		data[KeyInput] = input
		if _, ok := data[KeyIterations]; !ok {
			data[KeyIterations] = 0
		}
		state.replace(data)
		g.restoreStatuses(cp.NodeStatuses)
	} else {
		state.Update(func(d map[string]any) {
			d[KeyInput] = input
			d[KeyIterations] = 0
		})
	}

	state.Update(func(d map[string]any) {
		if _, ok := d[KeyNodeEvents]; !ok {
			d[KeyNodeEvents] = []map[string]any{}
		}
	})
	return state
}

// restoreStatuses applies checkpointed statuses. A node saved while
// running is restored as pending so it executes again.
func (g *Graph) restoreStatuses(statuses map[string]NodeStatus) {
	for id, status := range statuses {
		n, ok := g.GetNode(id)
		if !ok {
			continue
		}
		if status == StatusRunning || !status.Valid() {
			status = StatusPending
		}
		n.SetStatus(status)
	}
}

func (g *Graph) visit(ctx context.Context, rc *RunContext, nodeID string, state *State) error {
	if g.visitor != nil {
		return g.visitor(ctx, g, nodeID, state, func(ctx context.Context, nodeID string, state *State) error {
			return g.visitNode(ctx, rc, nodeID, state)
		})
	}
	return g.visitNode(ctx, rc, nodeID, state)
}

// visitNode executes one node and then its outgoing edges.
func (g *Graph) visitNode(ctx context.Context, rc *RunContext, nodeID string, state *State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := state.tick(rc.MaxIterations); err != nil {
		return err
	}

	node, ok := g.GetNode(nodeID)
	if !ok {
		return types.Errorf(types.ErrUnknownNode, "Node '%s' not found", nodeID)
	}
	if !node.claim() {
		g.logger.Debug("node already completed, skipping", zap.String("node_id", nodeID))
		return nil
	}

	g.logger.Debug("executing node",
		zap.String("node_id", nodeID),
		zap.String("node_type", string(node.Type)),
	)

	start := time.Now()
	g.emit(ctx, rc, state, nodeEvent(nodeID, StatusRunning))

	result, err := g.executeLogic(ctx, rc, node, state)
	durationMs := int(time.Since(start).Milliseconds())

	if err != nil {
		status := StatusFailed
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			status = StatusSkipped
		}
		node.fail(status, err.Error())
		g.observer.RecordNodeExecution(g.name, nodeID, string(node.Type), "error", time.Since(start).Seconds())
		g.logger.Error("node execution failed",
			zap.String("node_id", nodeID),
			zap.String("node_type", string(node.Type)),
			zap.Int("duration_ms", durationMs),
			zap.Error(err),
		)

		event := nodeEvent(nodeID, status)
		event["error"] = err.Error()
		event["duration_ms"] = durationMs
		g.emit(ctx, rc, state, event)
		state.recordNodeResult(nodeID, map[string]any{
			"output":      nil,
			"status":      string(status),
			"duration_ms": durationMs,
			"error":       err.Error(),
		})
		return &ExecutionError{NodeID: nodeID, Err: err}
	}

	node.complete(result)
	g.observer.RecordNodeExecution(g.name, nodeID, string(node.Type), "success", time.Since(start).Seconds())
	g.logger.Debug("node execution completed",
		zap.String("node_id", nodeID),
		zap.Int("duration_ms", durationMs),
	)

	event := nodeEvent(nodeID, StatusCompleted)
	event["duration_ms"] = durationMs
	g.emit(ctx, rc, state, event)
	state.recordNodeResult(nodeID, map[string]any{
		"output":      result,
		"status":      string(StatusCompleted),
		"duration_ms": durationMs,
	})
	state.Set(nodeID, result)

	return g.traverse(ctx, rc, nodeID, state)
}

// traverse follows the outgoing edges of a completed node: parallel edges
// first as one concurrent group, then sequential edges by priority.
func (g *Graph) traverse(ctx context.Context, rc *RunContext, nodeID string, state *State) error {
	var parallel, sequential []*Edge
	for _, e := range g.GetOutgoingEdges(nodeID) {
		if e.IsParallel() {
			parallel = append(parallel, e)
		} else {
			sequential = append(sequential, e)
		}
	}

	if len(parallel) > 0 {
		var tasks []Task[struct{}]
		var targets []string
		for _, e := range parallel {
			if !g.followEdge(e, state) {
				continue
			}
			target := e.Target
			targets = append(targets, target)
			tasks = append(tasks, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, g.visit(ctx, rc, target, state)
			})
		}
		if len(tasks) > 0 {
			cfg := ExecutionConfigFrom(state)
			outcomes, err := Gather(ctx, tasks, cfg.CancelOnFailure)
			if err != nil {
				return err
			}
			for i, o := range outcomes {
				if o.Err != nil {
					g.logger.Warn("parallel branch failed",
						zap.String("node_id", nodeID),
						zap.String("target", targets[i]),
						zap.Error(o.Err),
					)
				}
			}
		}
	}

	sort.SliceStable(sequential, func(i, j int) bool {
		return sequential[i].Priority < sequential[j].Priority
	})
	for _, e := range sequential {
		if !g.followEdge(e, state) {
			continue
		}
		if err := g.visit(ctx, rc, e.Target, state); err != nil {
			return err
		}
	}
	return nil
}

// followEdge evaluates e, logging conditions that panicked.
func (g *Graph) followEdge(e *Edge, state *State) bool {
	ok, panicked := e.evaluate(state)
	if panicked != nil {
		g.logger.Warn("edge condition panicked, treating as false",
			zap.String("source", e.Source),
			zap.String("target", e.Target),
			zap.Any("panic", panicked),
		)
	}
	return ok
}

func (g *Graph) executeLogic(ctx context.Context, rc *RunContext, node *Node, state *State) (result any, err error) {
	ctx, span := g.tracer.Start(ctx, "workflow.node", trace.WithAttributes(
		attribute.String("workflow_id", g.name),
		attribute.String("node_id", node.ID),
		attribute.String("node_type", string(node.Type)),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	handler, ok := g.handlers[node.Type]
	if !ok || handler == nil {
		handler = executePlaceholderNode
	}
	return handler(types.WithNodeID(ctx, node.ID), rc, node, state)
}

func (g *Graph) emit(ctx context.Context, rc *RunContext, state *State, event map[string]any) {
	state.appendEvent(event)
	rc.Emit(ctx, event)
}

func nodeEvent(nodeID string, status NodeStatus) map[string]any {
	return map[string]any{
		"node_id":   nodeID,
		"status":    string(status),
		"timestamp": float64(time.Now().UnixNano()) / 1e9,
	}
}
