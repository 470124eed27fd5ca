package workflow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vizGraph(t *testing.T) *Graph {
	t.Helper()
	g := NewGraph("viz")
	require.NoError(t, g.AddNode(InputNode("in")))
	require.NoError(t, g.AddNode(ConditionNode("check", "ready")))
	require.NoError(t, g.AddNode(AgentNode("work", "w")))
	require.NoError(t, g.AddNode(OutputNode("out")))
	require.NoError(t, g.AddEdge(NewEdge("in", "check")))
	require.NoError(t, g.AddEdge(ConditionalEdge("check", "work", StateHasKey("ready"))))
	require.NoError(t, g.AddEdge(ParallelEdge("work", "out").WithPriority(2)))
	return g
}

func TestToMermaid(t *testing.T) {
	want := strings.Join([]string{
		"graph TD",
		`    in(["in\n[input]"])`,
		`    check{{check\n[condition]}}`,
		`    work["work\n[agent]"]`,
		`    out(["out\n[output]"])`,
		"",
		"    in --> check",
		"    check -->|conditional| work",
		"    work -.parallel.-> out",
	}, "\n")
	assert.Equal(t, want, vizGraph(t).ToMermaid())
	assert.Equal(t, "graph TD\n    empty[Empty Graph]", NewGraph("e").ToMermaid())
}

func TestToDOT(t *testing.T) {
	g := vizGraph(t)
	in, _ := g.GetNode("in")
	in.SetStatus(StatusCompleted)

	dot := g.ToDOT()
	assert.True(t, strings.HasPrefix(dot, `digraph "viz" {`))
	assert.Contains(t, dot, `in [label="in\n[input]\n(completed)", shape=ellipse, style=filled, fillcolor=lightblue];`)
	assert.Contains(t, dot, `check [label="check\n[condition]", shape=diamond, style=filled, fillcolor=lightyellow];`)
	assert.Contains(t, dot, "    in -> check;")
	assert.Contains(t, dot, `    check -> work [label="conditional", style=dashed];`)
	assert.Contains(t, dot, `    work -> out [label="parallel", color=blue, weight=2];`)
	assert.True(t, strings.HasSuffix(dot, "}"))
	assert.Equal(t, "digraph empty { }", NewGraph("e").ToDOT())
}

func TestDrawASCII(t *testing.T) {
	out := vizGraph(t).DrawASCII()
	lines := strings.Split(out, "\n")

	assert.Equal(t, "Graph: viz", lines[0])
	assert.Contains(t, lines, "└── ○ in [input]")
	assert.Contains(t, lines, "    └── ○ check [condition]")
	assert.Contains(t, lines, "        ├── [IF condition]")
	assert.Contains(t, lines, "        └── ○ work [agent]")
	assert.Contains(t, lines, "            ╠══ [PARALLEL]")
	assert.Contains(t, lines, "            └── ○ out [output]")
	assert.Equal(t, "Total Nodes: 4 | Total Edges: 3", lines[len(lines)-1])
	assert.Equal(t, "Empty graph", NewGraph("e").DrawASCII())
}

func TestDrawASCII_MarksCycles(t *testing.T) {
	g := NewGraph("loop")
	require.NoError(t, g.AddNode(InputNode("in")))
	require.NoError(t, g.AddNode(ConditionNode("a", "")))
	require.NoError(t, g.AddEdge(NewEdge("in", "a")))
	require.NoError(t, g.AddEdge(NewEdge("a", "in")))

	assert.Contains(t, g.DrawASCII(), "↻ (cycle detected)")
}

func TestToDictAndStructure(t *testing.T) {
	g := vizGraph(t)
	d := g.ToDict()
	assert.Equal(t, "viz", d["name"])
	assert.Len(t, d["nodes"], 4)
	assert.Len(t, d["edges"], 3)
	node := d["nodes"].([]any)[2].(map[string]any)
	assert.Equal(t, "work", node["id"])
	assert.Equal(t, "pending", node["status"])

	s := g.Structure()
	assert.Contains(t, s, "Nodes: 4\nEdges: 3")
	assert.Contains(t, s, "Entry Points: in")
	assert.Contains(t, s, "Exit Points: out")
	assert.Contains(t, s, "(conditional)")
	assert.Contains(t, s, "[PARALLEL]")
}
