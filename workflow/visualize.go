package workflow

import (
	"fmt"
	"strings"
)

var statusSymbols = map[NodeStatus]string{
	StatusPending:   "○",
	StatusRunning:   "◐",
	StatusCompleted: "●",
	StatusFailed:    "✗",
	StatusSkipped:   "⊘",
}

var dotStyles = map[NodeType]string{
	NodeTypeInput:     "shape=ellipse, style=filled, fillcolor=lightblue",
	NodeTypeOutput:    "shape=ellipse, style=filled, fillcolor=lightgreen",
	NodeTypeCondition: "shape=diamond, style=filled, fillcolor=lightyellow",
	NodeTypeAgent:     `shape=box, style="rounded,filled", fillcolor=lightcoral`,
	NodeTypeTool:      "shape=box, style=filled, fillcolor=lightgray",
	NodeTypeHuman:     "shape=box, style=filled, fillcolor=lightpink",
	NodeTypeSubgraph:  "shape=box3d, style=filled, fillcolor=lavender",
}

// ToDict renders the graph as plain maps, suitable for JSON.
func (g *Graph) ToDict() map[string]any {
	nodes := make([]any, 0)
	for _, n := range g.Nodes() {
		nodes = append(nodes, map[string]any{
			"id":   n.ID,
			"type": string(n.Type),
			"config": map[string]any{
				"type":     string(n.Config.Type),
				"data":     DeepCopy(n.Config.Data),
				"metadata": DeepCopy(n.Config.Metadata),
			},
			"status": string(n.Status()),
		})
	}
	edges := make([]any, 0)
	for _, e := range g.Edges() {
		edges = append(edges, map[string]any{
			"source":   e.Source,
			"target":   e.Target,
			"metadata": DeepCopy(e.Metadata),
			"priority": e.Priority,
		})
	}
	return map[string]any{"name": g.name, "nodes": nodes, "edges": edges}
}

// DrawASCII renders the graph as a tree rooted at its entry points.
func (g *Graph) DrawASCII() string {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return "Empty graph"
	}

	rule := strings.Repeat("=", 60)
	lines := []string{"Graph: " + g.name, rule, ""}

	entries := g.EntryPoints()
	if len(entries) == 0 {
		entries = []string{nodes[0].ID}
	}
	for _, id := range entries {
		g.drawTree(id, &lines, map[string]bool{}, "", true)
	}

	lines = append(lines, "", rule,
		fmt.Sprintf("Total Nodes: %d | Total Edges: %d", len(nodes), len(g.Edges())))
	return strings.Join(lines, "\n")
}

func (g *Graph) drawTree(id string, lines *[]string, visited map[string]bool, prefix string, last bool) {
	node, ok := g.GetNode(id)
	if !ok {
		return
	}

	connector, extension := "├── ", "│   "
	if last {
		connector, extension = "└── ", "    "
	}
	symbol, ok := statusSymbols[node.Status()]
	if !ok {
		symbol = "?"
	}
	*lines = append(*lines, fmt.Sprintf("%s%s%s %s [%s]", prefix, connector, symbol, node.ID, node.Type))

	if visited[id] {
		*lines = append(*lines, prefix+extension+"↻ (cycle detected)")
		return
	}
	visited[id] = true

	var parallel, sequential []*Edge
	for _, e := range g.GetOutgoingEdges(id) {
		if e.IsParallel() {
			parallel = append(parallel, e)
		} else {
			sequential = append(sequential, e)
		}
	}
	childPrefix := prefix + extension

	if len(parallel) > 0 {
		*lines = append(*lines, childPrefix+"║", childPrefix+"╠══ [PARALLEL]")
		for i, e := range parallel {
			lastChild := i == len(parallel)-1 && len(sequential) == 0
			*lines = append(*lines, childPrefix+"║")
			g.drawTree(e.Target, lines, copyVisited(visited), childPrefix, lastChild)
		}
	}

	for i, e := range sequential {
		if e.IsConditional() {
			*lines = append(*lines, childPrefix+"│", childPrefix+"├── [IF condition]")
		}
		g.drawTree(e.Target, lines, copyVisited(visited), childPrefix, i == len(sequential)-1)
	}
}

func copyVisited(v map[string]bool) map[string]bool {
	out := make(map[string]bool, len(v))
	for k, b := range v {
		out[k] = b
	}
	return out
}

// ToMermaid renders the graph as a Mermaid flowchart.
func (g *Graph) ToMermaid() string {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return "graph TD\n    empty[Empty Graph]"
	}

	lines := []string{"graph TD"}
	for _, n := range nodes {
		label := fmt.Sprintf(`%s\n[%s]`, n.ID, n.Type)
		switch n.Type {
		case NodeTypeInput, NodeTypeOutput:
			lines = append(lines, fmt.Sprintf(`    %s(["%s"])`, n.ID, label))
		case NodeTypeCondition:
			lines = append(lines, fmt.Sprintf("    %s{{%s}}", n.ID, label))
		default:
			lines = append(lines, fmt.Sprintf(`    %s["%s"]`, n.ID, label))
		}
	}
	lines = append(lines, "")

	for _, e := range g.Edges() {
		switch {
		case e.IsConditional():
			lines = append(lines, fmt.Sprintf("    %s -->|conditional| %s", e.Source, e.Target))
		case e.IsParallel():
			lines = append(lines, fmt.Sprintf("    %s -.parallel.-> %s", e.Source, e.Target))
		default:
			lines = append(lines, fmt.Sprintf("    %s --> %s", e.Source, e.Target))
		}
	}
	return strings.Join(lines, "\n")
}

// ToDOT renders the graph in GraphViz DOT format.
func (g *Graph) ToDOT() string {
	nodes := g.Nodes()
	if len(nodes) == 0 {
		return "digraph empty { }"
	}

	lines := []string{
		fmt.Sprintf(`digraph "%s" {`, g.name),
		"    rankdir=TB;",
		"    node [fontname=Arial, fontsize=10];",
		"    edge [fontname=Arial, fontsize=9];",
		"",
	}

	for _, n := range nodes {
		style, ok := dotStyles[n.Type]
		if !ok {
			style = "shape=box"
		}
		label := fmt.Sprintf(`%s\n[%s]`, n.ID, n.Type)
		if s := n.Status(); s != StatusPending {
			label += fmt.Sprintf(`\n(%s)`, s)
		}
		lines = append(lines, fmt.Sprintf(`    %s [label="%s", %s];`, n.ID, label, style))
	}
	lines = append(lines, "")

	for _, e := range g.Edges() {
		var attrs []string
		if e.IsConditional() {
			attrs = append(attrs, `label="conditional"`, "style=dashed")
		}
		if e.IsParallel() {
			attrs = append(attrs, `label="parallel"`, "color=blue")
		}
		if e.Priority != 0 {
			attrs = append(attrs, fmt.Sprintf("weight=%d", e.Priority))
		}
		if len(attrs) > 0 {
			lines = append(lines, fmt.Sprintf("    %s -> %s [%s];", e.Source, e.Target, strings.Join(attrs, ", ")))
		} else {
			lines = append(lines, fmt.Sprintf("    %s -> %s;", e.Source, e.Target))
		}
	}
	lines = append(lines, "}")
	return strings.Join(lines, "\n")
}

// Structure returns a plain-text summary with node and edge lists plus the
// entry and exit points.
func (g *Graph) Structure() string {
	var sb strings.Builder
	rule := strings.Repeat("=", 60)
	dash := strings.Repeat("-", 60)
	nodes := g.Nodes()
	edges := g.Edges()

	fmt.Fprintf(&sb, "Graph: %s\n%s\n", g.name, rule)
	fmt.Fprintf(&sb, "Nodes: %d\nEdges: %d\n\n", len(nodes), len(edges))

	if len(nodes) > 0 {
		fmt.Fprintf(&sb, "Node List:\n%s\n", dash)
		for _, n := range nodes {
			fmt.Fprintf(&sb, "  • %-20s [%-10s] (%s)\n", n.ID, n.Type, n.Status())
		}
		sb.WriteString("\n")
	}

	if len(edges) > 0 {
		fmt.Fprintf(&sb, "Edge List:\n%s\n", dash)
		for _, e := range edges {
			cond := "unconditional"
			if e.IsConditional() {
				cond = "conditional"
			}
			parallel := ""
			if e.IsParallel() {
				parallel = " [PARALLEL]"
			}
			fmt.Fprintf(&sb, "  • %-15s → %-15s (%s)%s\n", e.Source, e.Target, cond, parallel)
		}
		sb.WriteString("\n")
	}

	var entries []string
	for _, n := range nodes {
		if len(g.GetIncomingNodes(n.ID)) == 0 {
			entries = append(entries, n.ID)
		}
	}
	if len(entries) > 0 {
		fmt.Fprintf(&sb, "Entry Points: %s\n", strings.Join(entries, ", "))
	}
	if exits := g.ExitPoints(); len(exits) > 0 {
		fmt.Fprintf(&sb, "Exit Points: %s\n", strings.Join(exits, ", "))
	}
	sb.WriteString(rule + "\n")
	return sb.String()
}
