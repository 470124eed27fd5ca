package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentgraph/types"
)

func TestGraph_AddNodeRejectsDuplicates(t *testing.T) {
	g := NewGraph("dup")
	require.NoError(t, g.AddNode(InputNode("a")))

	err := g.AddNode(OutputNode("a"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateNode))
	assert.Equal(t, "Node with id 'a' already exists", err.Error())

	n, ok := g.GetNode("a")
	require.True(t, ok)
	assert.Equal(t, NodeTypeInput, n.Type)
}

func TestGraph_AddEdgeRequiresEndpoints(t *testing.T) {
	g := NewGraph("edges")
	require.NoError(t, g.AddNode(InputNode("a")))

	err := g.AddEdge(NewEdge("missing", "a"))
	assert.True(t, errors.Is(err, ErrUnknownNode))
	assert.Equal(t, "Source node 'missing' not found", err.Error())

	err = g.AddEdge(NewEdge("a", "missing"))
	assert.True(t, errors.Is(err, ErrUnknownNode))
	assert.Equal(t, "Target node 'missing' not found", err.Error())

	assert.Empty(t, g.Edges())
}

func TestGraph_ValidateEmpty(t *testing.T) {
	err := NewGraph("empty").Validate()
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyGraph, types.GetErrorCode(err))
}

func TestGraph_ValidateAllowsDisconnectedAndCycles(t *testing.T) {
	g := NewGraph("loose")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddNode(ConditionNode(id, "")))
	}
	require.NoError(t, g.AddEdge(NewEdge("a", "b")))
	require.NoError(t, g.AddEdge(NewEdge("b", "a")))

	assert.NoError(t, g.Validate())
}

func TestGraph_TopologicalSort(t *testing.T) {
	g := NewGraph("dag")
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, g.AddNode(ConditionNode(id, "")))
	}
	require.NoError(t, g.AddEdge(NewEdge("a", "b")))
	require.NoError(t, g.AddEdge(NewEdge("a", "c")))
	require.NoError(t, g.AddEdge(NewEdge("b", "d")))
	require.NoError(t, g.AddEdge(NewEdge("c", "d")))

	order, err := g.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)

	require.NoError(t, g.AddEdge(NewEdge("d", "a")))
	_, err = g.TopologicalSort()
	assert.True(t, errors.Is(err, ErrCycle))
	assert.Equal(t, "Graph contains cycles - cannot perform topological sort", err.Error())
}

func TestGraph_EntryAndExitPoints(t *testing.T) {
	g := NewGraph("points")
	require.NoError(t, g.AddNode(InputNode("in")))
	require.NoError(t, g.AddNode(ConditionNode("mid", "")))
	require.NoError(t, g.AddNode(OutputNode("out")))
	require.NoError(t, g.AddEdge(NewEdge("in", "mid")))
	require.NoError(t, g.AddEdge(NewEdge("mid", "out")))

	assert.Equal(t, []string{"in"}, g.EntryPoints())
	assert.Equal(t, []string{"out"}, g.ExitPoints())
	assert.Equal(t, []string{"in"}, g.GetIncomingNodes("mid"))
	assert.Len(t, g.GetOutgoingEdges("in"), 1)
}

func TestGraph_EntryPointsFallBackToInputNodes(t *testing.T) {
	g := NewGraph("ring")
	require.NoError(t, g.AddNode(InputNode("in")))
	require.NoError(t, g.AddNode(ConditionNode("x", "")))
	require.NoError(t, g.AddEdge(NewEdge("in", "x")))
	require.NoError(t, g.AddEdge(NewEdge("x", "in")))

	assert.Equal(t, []string{"in"}, g.EntryPoints())
}

func TestGraph_Reset(t *testing.T) {
	g := NewGraph("reset")
	n := InputNode("a")
	require.NoError(t, g.AddNode(n))
	n.SetStatus(StatusFailed)

	g.Reset()
	assert.Equal(t, StatusPending, n.Status())
	assert.Nil(t, n.Result())
}

func TestEdge_Types(t *testing.T) {
	assert.Equal(t, EdgeSequential, NewEdge("a", "b").Type())
	assert.Equal(t, EdgeParallel, ParallelEdge("a", "b").Type())
	assert.Equal(t, EdgeConditional, ConditionalEdge("a", "b", StateHasKey("x")).Type())
	assert.Equal(t, 4, NewEdge("a", "b").WithPriority(4).Priority)
}

func TestEdge_EvaluatePanicIsFalse(t *testing.T) {
	e := ConditionalEdge("a", "b", func(*State) bool { panic("boom") })
	assert.False(t, e.Evaluate(NewState(nil)))
	assert.True(t, NewEdge("a", "b").Evaluate(NewState(nil)))
}

func TestEdge_PanicLoggedThroughGraphLogger(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	g := NewGraph("panicky", WithLogger(zap.New(core)))
	require.NoError(t, g.AddNode(InputNode("in")))
	require.NoError(t, g.AddNode(OutputNode("out")))
	require.NoError(t, g.AddEdge(ConditionalEdge("in", "out", func(*State) bool { panic("boom") })))

	state, err := g.Run(testContext(t), "x")
	require.NoError(t, err)
	_, reached := state.Get("out")
	assert.False(t, reached)

	entries := logs.FilterMessage("edge condition panicked, treating as false").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "out", entries[0].ContextMap()["target"])
}

func TestEdge_StateConditions(t *testing.T) {
	s := NewState(map[string]any{"route": "left"})
	assert.True(t, StateHasKey("route")(s))
	assert.False(t, StateHasKey("missing")(s))
	assert.True(t, StateEquals("route", "left")(s))
	assert.False(t, StateEquals("route", "right")(s))
}

func TestNodeType_Parse(t *testing.T) {
	typ, ok := ParseNodeType("AGENT")
	assert.True(t, ok)
	assert.Equal(t, NodeTypeAgent, typ)

	_, ok = ParseNodeType("widget")
	assert.False(t, ok)
}
