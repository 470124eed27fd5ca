package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

// DefaultAgentTask is used when neither the node nor the state names a task.
const DefaultAgentTask = "Process input"

// NodeHandler produces the result of one node.
type NodeHandler func(ctx context.Context, rc *RunContext, node *Node, state *State) (any, error)

func defaultHandlers() map[NodeType]NodeHandler {
	return map[NodeType]NodeHandler{
		NodeTypeInput:     executeInputNode,
		NodeTypeOutput:    executeOutputNode,
		NodeTypeAgent:     executeAgentNode,
		NodeTypeTool:      executeToolNode,
		NodeTypeSubgraph:  executeSubgraphNode,
		NodeTypeLoop:      executeLoopNode,
		NodeTypeCondition: executePlaceholderNode,
		NodeTypeHuman:     executePlaceholderNode,
	}
}

// executeInputNode returns a copy of the input so state[id] never aliases
// state["input"].
func executeInputNode(_ context.Context, _ *RunContext, _ *Node, state *State) (any, error) {
	return DeepCopy(state.Input()), nil
}

// executeOutputNode returns a copy of the whole state.
func executeOutputNode(_ context.Context, _ *RunContext, _ *Node, state *State) (any, error) {
	return state.Snapshot(), nil
}

func executePlaceholderNode(_ context.Context, _ *RunContext, node *Node, _ *State) (any, error) {
	return map[string]any{"node_id": node.ID, "type": string(node.Type)}, nil
}

func executeAgentNode(ctx context.Context, rc *RunContext, node *Node, state *State) (any, error) {
	g := rc.Graph
	agentID := node.stringData("agent_id")
	if agentID == "" {
		return nil, types.Errorf(types.ErrMissingConfig, "Agent node '%s' missing agent_id in config.data", node.ID)
	}
	if g.agents == nil {
		return nil, types.Errorf(types.ErrAgentNotFound, "Agent '%s' not found in registry", agentID)
	}
	agent, ok := g.agents.GetAgent(agentID)
	if !ok {
		return nil, types.Errorf(types.ErrAgentNotFound, "Agent '%s' not found in registry", agentID)
	}

	task := node.stringData("task")
	if task == "" {
		task = state.GetString(KeyTask)
	}
	if task == "" {
		task = DefaultAgentTask
	}

	runtime, err := g.newRuntime(agent)
	if err != nil {
		return nil, err
	}

	input := state.Map()
	if g.sharedMemory != nil {
		input["shared_memory"] = g.sharedMemory
	}

	if g.streaming {
		if sr, ok := runtime.(StreamingRuntime); ok {
			return streamAgent(ctx, rc, node, sr, task, input, ExecutionConfigFrom(state))
		}
	}

	return Retry(ctx, ExecutionConfigFrom(state), func(ctx context.Context) (map[string]any, error) {
		return runtime.Execute(ctx, task, input)
	})
}

// newRuntime builds a runtime bound to the agent and the tools it declares.
// Tools missing from the registry are left out.
func (g *Graph) newRuntime(agent Agent) (AgentRuntime, error) {
	if g.runtimeFactory == nil {
		return nil, types.NewError(types.ErrInvalidConfig, "no agent runtime factory configured")
	}
	var tools []Tool
	if g.tools != nil {
		for _, name := range agent.Tools() {
			if t, ok := g.tools.GetTool(name); ok {
				tools = append(tools, t)
			} else {
				g.logger.Warn("agent tool not registered",
					zap.String("agent_id", agent.ID()),
					zap.String("tool", name),
				)
			}
		}
	}
	runtime, err := g.runtimeFactory(agent, tools, g.sharedMemory)
	if err != nil {
		return nil, fmt.Errorf("create runtime for agent %s: %w", agent.ID(), err)
	}
	return runtime, nil
}

// streamAgent concatenates the streamed chunks and forwards each one as a
// token event. Streams are not retried since chunks were already emitted.
func streamAgent(ctx context.Context, rc *RunContext, node *Node, sr StreamingRuntime, task string, input map[string]any, cfg ExecutionConfig) (any, error) {
	if timeout := cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	chunks, err := sr.StreamExecute(ctx, task, input)
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				return sb.String(), nil
			}
			if chunk.Err != nil {
				return nil, chunk.Err
			}
			sb.WriteString(chunk.Text)
			rc.Emit(ctx, map[string]any{
				"node_id":     node.ID,
				"event":       "token",
				"status":      "streaming",
				"message":     chunk.Text,
				"output":      chunk.Text,
				"text_output": chunk.Text,
			})
		}
	}
}

func executeToolNode(ctx context.Context, rc *RunContext, node *Node, _ *State) (any, error) {
	g := rc.Graph
	toolName := node.stringData("tool_name")
	if toolName == "" {
		return nil, types.Errorf(types.ErrMissingConfig, "Tool node '%s' missing tool_name in config.data", node.ID)
	}
	if g.tools == nil {
		return nil, types.Errorf(types.ErrToolNotFound, "Tool '%s' not found in registry", toolName)
	}
	tool, ok := g.tools.GetTool(toolName)
	if !ok {
		return nil, types.Errorf(types.ErrToolNotFound, "Tool '%s' not found in registry", toolName)
	}

	var params map[string]any
	switch p := node.Config.Data["tool_params"].(type) {
	case nil:
		params = map[string]any{}
	case map[string]any:
		params = DeepCopy(p).(map[string]any)
	default:
		return nil, types.Errorf(types.ErrInvalidConfig, "Tool node '%s' tool_params must be a map", node.ID)
	}

	result, err := tool.Execute(ctx, params)
	if err != nil {
		return nil, err
	}
	return result.ToMap(), nil
}

func executeSubgraphNode(ctx context.Context, rc *RunContext, node *Node, state *State) (any, error) {
	workflowID := node.stringData("workflow_id")
	if workflowID == "" {
		return nil, types.Errorf(types.ErrMissingConfig, "Subgraph node '%s' missing workflow_id in config.data", node.ID)
	}

	raw := lookupSubgraph(state, workflowID)
	if raw == nil {
		return nil, types.Errorf(types.ErrSubgraphNotFound, "Subgraph workflow '%s' not found in state.subgraphs", workflowID)
	}
	def, err := DefinitionFrom(raw)
	if err != nil {
		return nil, fmt.Errorf("subgraph %s: %w", workflowID, err)
	}

	sub, err := BuildSubgraph("subgraph:"+workflowID, def, rc.Graph.options()...)
	if err != nil {
		return nil, fmt.Errorf("subgraph %s: %w", workflowID, err)
	}

	// The parent is captured as a snapshot so the nested result never refers
	// back to the live parent state.
	subState := NewState(map[string]any{"parent_state": state.Snapshot()})
	if _, err := sub.Run(ctx, state.Input(), WithMaxIterations(rc.MaxIterations), WithState(subState)); err != nil {
		return nil, err
	}
	return map[string]any{"workflow_id": workflowID, "state": subState.Snapshot()}, nil
}

// lookupSubgraph checks state.subgraphs, then state.metadata.subgraphs.
func lookupSubgraph(state *State, workflowID string) any {
	if subgraphs, ok := asMap(state, "subgraphs"); ok {
		if def, ok := subgraphs[workflowID]; ok && def != nil {
			return def
		}
	}
	if metadata, ok := asMap(state, "metadata"); ok {
		if subgraphs, ok := metadata["subgraphs"].(map[string]any); ok {
			if def, ok := subgraphs[workflowID]; ok && def != nil {
				return def
			}
		}
	}
	return nil
}

func asMap(state *State, key string) (map[string]any, bool) {
	v, ok := state.Get(key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// executeLoopNode is a bounded counter. Loop bodies are separate nodes wired
// by the caller.
func executeLoopNode(_ context.Context, rc *RunContext, node *Node, state *State) (any, error) {
	conditionKey := node.stringData("condition")
	limit := max(node.intData("max_iterations", 5), 0)
	iterKey := fmt.Sprintf("loop_%s_iteration", node.ID)

	count := 0
	results := []any{}
	for count < limit {
		count++
		state.Set(iterKey, count)
		results = append(results, map[string]any{"iteration": count})
		if conditionKey != "" {
			if v, _ := state.Get(conditionKey); truthy(v) {
				break
			}
		}
		if state.Iterations() >= rc.MaxIterations {
			break
		}
	}
	return map[string]any{"iterations": count, "results": results}, nil
}
