// Package fixtures 提供预置的工作流定义样例。
//
// 每个函数返回新的定义实例，调用方可以自由修改。
package fixtures

import "github.com/BaSui01/agentgraph/workflow"

// PipelineYAML 是 Pipeline 的 YAML 文本，用于定义文件加载测试
const PipelineYAML = `
name: pipeline
description: input -> writer -> output
nodes:
  - id: in
    type: start
  - id: writer
    type: agent
    config:
      role: Writer
      task: Write a draft
  - id: out
    type: end
edges:
  - source: in
    target: writer
  - source: writer
    target: out
`

// Pipeline 返回 in -> writer -> out 的线性定义
func Pipeline() *workflow.WorkflowDefinition {
	return &workflow.WorkflowDefinition{
		Name:        "pipeline",
		Description: "input -> writer -> output",
		Nodes: []workflow.NodeDefinition{
			{ID: "in", Type: "start"},
			{ID: "writer", Type: "agent", Config: map[string]any{"role": "Writer", "task": "Write a draft"}},
			{ID: "out", Type: "end"},
		},
		Edges: []workflow.EdgeDefinition{
			{Source: "in", Target: "writer"},
			{Source: "writer", Target: "out"},
		},
	}
}

// Parallel 返回 in 扇出到 agents 各节点、再汇聚到 out 的定义
func Parallel(agents ...string) *workflow.WorkflowDefinition {
	def := &workflow.WorkflowDefinition{
		Name:  "parallel",
		Nodes: []workflow.NodeDefinition{{ID: "in", Type: "input"}},
	}
	for _, id := range agents {
		def.Nodes = append(def.Nodes, workflow.NodeDefinition{ID: id, Type: "agent", Config: map[string]any{"task": "Work on " + id}})
		def.Edges = append(def.Edges,
			workflow.EdgeDefinition{Source: "in", Target: id, Parallel: true},
			workflow.EdgeDefinition{Source: id, Target: "out"},
		)
	}
	def.Nodes = append(def.Nodes, workflow.NodeDefinition{ID: "out", Type: "output"})
	return def
}

// WithTool 返回 in -> tool -> out 的定义，工具节点 id 为 "tool"
func WithTool(toolName string, params map[string]any) *workflow.WorkflowDefinition {
	return &workflow.WorkflowDefinition{
		Name: "tool-" + toolName,
		Nodes: []workflow.NodeDefinition{
			{ID: "in", Type: "input"},
			{ID: "tool", Type: "tool", Config: map[string]any{"tool_name": toolName, "tool_params": params}},
			{ID: "out", Type: "output"},
		},
		Edges: []workflow.EdgeDefinition{
			{Source: "in", Target: "tool"},
			{Source: "tool", Target: "out"},
		},
	}
}

// Invalid 返回一个包含未知节点类型的定义，Validate 会拒绝它
func Invalid() *workflow.WorkflowDefinition {
	return &workflow.WorkflowDefinition{
		Name:  "invalid",
		Nodes: []workflow.NodeDefinition{{ID: "x", Type: "teleport"}},
	}
}
