package workflow

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/types"
)

func pipelineRequest() ExecuteRequest {
	return ExecuteRequest{
		Name: "pipeline",
		Nodes: []NodeDefinition{
			{ID: "start", Type: "start"},
			{ID: "writer", Type: "agent", Config: map[string]any{"role": "Writer", "task": "write"}},
			{ID: "gate", Type: "decision", Config: map[string]any{"condition": "writer"}},
			{ID: "end", Type: "end"},
		},
		Edges: []EdgeDefinition{
			{Source: "start", Target: "writer"},
			{Source: "writer", Target: "gate"},
			{Source: "gate", Target: "end", Condition: "writer"},
		},
		Input: map[string]any{"topic": "graphs"},
	}
}

func TestExecutor_ExecuteSuccess(t *testing.T) {
	x := NewWorkflowExecutor(WithExecutorRuntimeFactory(echoFactory()))
	log := &eventLog{}
	req := pipelineRequest()
	req.EventCallback = log.callback

	res := x.Execute(testContext(t), req)
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.Equal(t, "Workflow executed successfully", res.Message)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.NodesExecuted)
	assert.Len(t, res.NodeEvents, 8)
	assert.Equal(t, []string{"start", "writer", "gate", "end"}, log.running())
	assert.Equal(t, map[string]any{"agent": "writer", "task": "write"}, res.Result["writer"])

	rec, err := x.Store().Get(testContext(t), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, rec.Status)
	assert.Equal(t, "pipeline", rec.Workflow)
	assert.NotEmpty(t, rec.CompletedAt)
	assert.NotNil(t, rec.Result)
}

func TestExecutor_ExecuteFailure(t *testing.T) {
	x := NewWorkflowExecutor()
	req := pipelineRequest()
	req.RunID = "run-1"

	res := x.Execute(testContext(t), req)
	assert.Equal(t, RunStatusError, res.Status)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "Node writer failed: no agent runtime factory configured", res.Error)
	assert.Equal(t, "Workflow execution failed: "+res.Error, res.Message)

	rec, err := x.Store().Get(testContext(t), "run-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusError, rec.Status)
	assert.Equal(t, res.Error, rec.Error)
}

func TestExecutor_DefaultExecutionConfig(t *testing.T) {
	cfg := DefaultExecutionConfig()
	cfg.RetryCount = 1
	x := NewWorkflowExecutor(
		WithExecutorRuntimeFactory(echoFactory()),
		WithDefaultExecutionConfig(cfg),
	)

	res := x.Execute(testContext(t), pipelineRequest())
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.Equal(t, cfg.ToMap(), res.Result[KeyExecutionConfig])

	req := pipelineRequest()
	req.State = map[string]any{KeyExecutionConfig: map[string]any{"retry_count": 5}}
	res = x.Execute(testContext(t), req)
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.Equal(t, map[string]any{"retry_count": 5}, res.Result[KeyExecutionConfig])
}

func TestExecutor_DefaultEventCallbackSeesRunID(t *testing.T) {
	var mu sync.Mutex
	runIDs := map[string]int{}
	x := NewWorkflowExecutor(
		WithExecutorRuntimeFactory(echoFactory()),
		WithExecutorEventCallback(func(ctx context.Context, _ map[string]any) {
			id, _ := types.RunID(ctx)
			mu.Lock()
			runIDs[id]++
			mu.Unlock()
		}),
	)

	req := pipelineRequest()
	req.RunID = "run-events"
	res := x.Execute(testContext(t), req)
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, runIDs, 1)
	assert.Positive(t, runIDs["run-events"])

	// An explicit request callback wins over the default.
	log := &eventLog{}
	req = pipelineRequest()
	req.EventCallback = log.callback
	before := runIDs["run-events"]
	res = x.Execute(testContext(t), req)
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.NotEmpty(t, log.running())
	assert.Equal(t, before, runIDs["run-events"])
	assert.Len(t, runIDs, 1)
}

func TestExecutor_BuildGraph(t *testing.T) {
	x := NewWorkflowExecutor()
	g, err := x.BuildGraph("built", []NodeDefinition{
		{ID: "s", Type: "START"},
		{ID: "t", Type: "tool", Config: map[string]any{"name": "search", "tool_params": map[string]any{"q": "go"}}},
		{ID: "t2", Type: "tool"},
		{ID: "sg", Type: "subgraph", Config: map[string]any{"subgraph_id": "child"}},
		{ID: "lp", Type: "loop", Config: map[string]any{"condition": "done", "max_iterations": 2}},
		{ID: "h", Type: "human"},
		{ID: "mystery", Type: "widget"},
	}, []EdgeDefinition{{Source: "s", Target: "t"}})
	require.NoError(t, err)

	assert.Len(t, g.Nodes(), 6)
	_, ok := g.GetNode("mystery")
	assert.False(t, ok)

	s, _ := g.GetNode("s")
	assert.Equal(t, NodeTypeInput, s.Type)
	tool, _ := g.GetNode("t")
	assert.Equal(t, "search", tool.Config.Data["tool_name"])
	assert.Equal(t, map[string]any{"q": "go"}, tool.Config.Data["tool_params"])
	t2, _ := g.GetNode("t2")
	assert.Equal(t, "tool", t2.Config.Data["tool_name"])
	sg, _ := g.GetNode("sg")
	assert.Equal(t, "child", sg.Config.Data["workflow_id"])
	lp, _ := g.GetNode("lp")
	assert.Equal(t, 2, lp.Config.Data["max_iterations"])

	_, err = x.BuildGraph("bad", []NodeDefinition{{ID: "a", Type: "input"}}, []EdgeDefinition{{Source: "a", Target: "ghost"}})
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestExecutor_CheckpointSaveAndResume(t *testing.T) {
	dir := t.TempDir()
	x := NewWorkflowExecutor(WithExecutorRuntimeFactory(echoFactory()))

	req := pipelineRequest()
	req.CheckpointDir = dir
	req.CheckpointName = "first"
	res := x.Execute(testContext(t), req)
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	_, err := os.Stat(NewFileCheckpointStore(dir).Path("first"))
	require.NoError(t, err)

	resume := pipelineRequest()
	resume.CheckpointDir = dir
	resume.ResumeFrom = "first"
	resume.Input = "again"
	log := &eventLog{}
	resume.EventCallback = log.callback
	res = x.Execute(testContext(t), resume)
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.Empty(t, log.running())
	assert.Equal(t, "again", res.Result[KeyInput])

	missing := pipelineRequest()
	missing.CheckpointDir = dir
	missing.ResumeFrom = "nope"
	res = x.Execute(testContext(t), missing)
	assert.Equal(t, RunStatusError, res.Status)
	assert.Contains(t, res.Error, "Checkpoint not found")
}

func TestExecutor_SharedMemory(t *testing.T) {
	var seen any
	factory := func(_ Agent, _ []Tool, memory SharedMemory) (AgentRuntime, error) {
		seen = memory
		return RuntimeFunc(func(context.Context, string, map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		}), nil
	}
	x := NewWorkflowExecutor(WithExecutorRuntimeFactory(factory))
	req := pipelineRequest()
	req.SharedMemory = true

	res := x.Execute(testContext(t), req)
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.IsType(t, &MapMemory{}, seen)
}

func TestExecutor_SharedToolsFromRegistry(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterTool(&ToolFunc{
		ToolName: "upper",
		Fn: func(_ context.Context, params map[string]any) (*ToolResult, error) {
			return &ToolResult{Success: true, Data: params["text"]}, nil
		},
	}))
	x := NewWorkflowExecutor(WithExecutorRegistry(reg))

	res := x.Execute(testContext(t), ExecuteRequest{
		Nodes: []NodeDefinition{
			{ID: "in", Type: "input"},
			{ID: "t", Type: "tool", Config: map[string]any{"tool_name": "upper", "tool_params": map[string]any{"text": "hi"}}},
		},
		Edges: []EdgeDefinition{{Source: "in", Target: "t"}},
	})
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.Equal(t, "hi", res.Result["t"].(map[string]any)["data"])
	// Per-run agents never leak into the shared registry.
	assert.Empty(t, reg.AgentIDs())
}

type syncQueue struct {
	mu       sync.Mutex
	handlers map[string]func(ctx context.Context, payload map[string]any) error
	enqueued []string
	started  int
}

func (q *syncQueue) Start(context.Context) error {
	q.mu.Lock()
	q.started++
	q.mu.Unlock()
	return nil
}

func (q *syncQueue) RegisterHandler(name string, h func(ctx context.Context, payload map[string]any) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]func(ctx context.Context, payload map[string]any) error)
	}
	q.handlers[name] = h
}

func (q *syncQueue) Enqueue(ctx context.Context, taskID, handlerName string, payload, _ map[string]any) (string, error) {
	q.mu.Lock()
	q.enqueued = append(q.enqueued, taskID)
	h := q.handlers[handlerName]
	q.mu.Unlock()
	return taskID, h(ctx, payload)
}

func TestExecutor_ExecuteQueued(t *testing.T) {
	q := &syncQueue{}
	x := NewWorkflowExecutor(WithExecutorRuntimeFactory(echoFactory()), WithTaskQueue(q))
	require.Contains(t, q.handlers, QueueHandlerName)

	req := pipelineRequest()
	req.RunID = "queued-1"
	id, err := x.ExecuteQueued(testContext(t), req)
	require.NoError(t, err)
	assert.Equal(t, "queued-1", id)

	rec, err := x.Store().Get(testContext(t), "queued-1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, rec.Status)

	// A finished run is not queued twice.
	_, err = x.ExecuteQueued(testContext(t), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"queued-1"}, q.enqueued)
}

func TestExecutor_ExecuteQueuedWithoutQueue(t *testing.T) {
	_, err := NewWorkflowExecutor().ExecuteQueued(testContext(t), pipelineRequest())
	assert.Error(t, err)
}

func TestTriggerRunner(t *testing.T) {
	x := NewWorkflowExecutor(WithExecutorRuntimeFactory(echoFactory()))
	req := pipelineRequest()
	def := &WorkflowDefinition{Name: "triggered", Nodes: req.Nodes, Edges: req.Edges}
	runner := NewTriggerRunner(x, def, nil)

	res := runner.HandleEvent(testContext(t), TriggerEvent{TriggerID: "cron", Payload: map[string]any{"tick": 1}})
	require.Equal(t, RunStatusSuccess, res.Status, res.Error)
	assert.Equal(t, map[string]any{"tick": 1}, res.Result[KeyInput])
}
