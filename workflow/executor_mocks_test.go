package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/testutil"
	"github.com/BaSui01/agentgraph/testutil/fixtures"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/workflow"
)

func TestExecutor_PipelineWithMockRuntime(t *testing.T) {
	rt := mocks.NewMockRuntime().WithResponse("writer", map[string]any{"draft": "v1"})
	exec := workflow.NewWorkflowExecutor(workflow.WithExecutorRuntimeFactory(rt.Factory()))

	res := exec.Execute(testutil.TestContext(t), workflow.RequestFromDefinition(fixtures.Pipeline(), "graphs"))
	require.Equal(t, workflow.RunStatusSuccess, res.Status, res.Error)

	assert.Equal(t, map[string]any{"draft": "v1"}, res.Result["writer"])
	calls := rt.CallsFor("writer")
	require.Len(t, calls, 1)
	assert.Equal(t, "Write a draft", calls[0].Task)
	assert.Equal(t, "graphs", calls[0].Input[workflow.KeyInput])
}

func TestExecutor_MockRuntimeError(t *testing.T) {
	rt := mocks.NewMockRuntime().WithError("writer", errors.New("model unavailable"))
	exec := workflow.NewWorkflowExecutor(
		workflow.WithExecutorRuntimeFactory(rt.Factory()),
		workflow.WithDefaultExecutionConfig(workflow.ExecutionConfig{RetryCount: 0}),
	)

	res := exec.Execute(testutil.TestContext(t), workflow.RequestFromDefinition(fixtures.Pipeline(), nil))
	assert.Equal(t, workflow.RunStatusError, res.Status)
	assert.Contains(t, res.Error, "model unavailable")
}

func TestExecutor_ParallelCallsEachAgentOnce(t *testing.T) {
	rt := mocks.NewMockRuntime()
	exec := workflow.NewWorkflowExecutor(workflow.WithExecutorRuntimeFactory(rt.Factory()))

	res := exec.Execute(testutil.TestContext(t), workflow.RequestFromDefinition(fixtures.Parallel("a", "b", "c"), nil))
	require.Equal(t, workflow.RunStatusSuccess, res.Status, res.Error)

	for _, id := range []string{"a", "b", "c"} {
		assert.Len(t, rt.CallsFor(id), 1, id)
	}
}

func TestExecutor_ToolNodeWithMockTool(t *testing.T) {
	tool := mocks.NewMockTool("upper").WithFunc(func(_ context.Context, params map[string]any) (*workflow.ToolResult, error) {
		return &workflow.ToolResult{Success: true, Data: params["text"].(string) + "!"}, nil
	})
	reg := workflow.NewRegistry()
	require.NoError(t, reg.RegisterTool(tool))
	exec := workflow.NewWorkflowExecutor(workflow.WithExecutorRegistry(reg))

	res := exec.Execute(testutil.TestContext(t),
		workflow.RequestFromDefinition(fixtures.WithTool("upper", map[string]any{"text": "hi"}), nil))
	require.Equal(t, workflow.RunStatusSuccess, res.Status, res.Error)

	out, ok := res.Result["tool"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi!", out["data"])
	assert.Equal(t, 1, tool.CallCount())
}

func TestExecutor_StreamingMockRuntime(t *testing.T) {
	rt := mocks.NewMockRuntime().WithStreamChunks("Hel", "lo")

	var (
		mu     sync.Mutex
		tokens []string
	)
	exec := workflow.NewWorkflowExecutor(
		workflow.WithExecutorRuntimeFactory(rt.StreamingFactory()),
		workflow.WithExecutorStreaming(true),
		workflow.WithExecutorEventCallback(func(_ context.Context, e map[string]any) {
			if e["event"] == "token" {
				mu.Lock()
				tokens = append(tokens, e["output"].(string))
				mu.Unlock()
			}
		}),
	)

	res := exec.Execute(testutil.TestContext(t), workflow.RequestFromDefinition(fixtures.Pipeline(), nil))
	require.Equal(t, workflow.RunStatusSuccess, res.Status, res.Error)
	assert.Equal(t, "Hello", res.Result["writer"])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"Hel", "lo"}, tokens)
}

func TestExecutor_CancelledContext(t *testing.T) {
	rt := mocks.NewMockRuntime()
	exec := workflow.NewWorkflowExecutor(workflow.WithExecutorRuntimeFactory(rt.Factory()))

	res := exec.Execute(testutil.CancelledContext(), workflow.RequestFromDefinition(fixtures.Pipeline(), nil))
	assert.Equal(t, workflow.RunStatusError, res.Status)
	assert.Zero(t, rt.CallCount())
}

func TestDefinition_FixturesValidate(t *testing.T) {
	require.NoError(t, fixtures.Pipeline().Validate())
	require.NoError(t, fixtures.Parallel("a", "b").Validate())
	require.NoError(t, fixtures.WithTool("x", nil).Validate())
	assert.ErrorIs(t, fixtures.Invalid().Validate(), workflow.ErrInvalidDefinition)

	def, err := workflow.DefinitionFromYAML([]byte(fixtures.PipelineYAML))
	require.NoError(t, err)
	testutil.AssertJSONEqual(t, fixtures.Pipeline(), def)
}
