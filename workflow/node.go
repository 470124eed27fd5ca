package workflow

import (
	"strings"
	"sync"
)

// NodeType identifies the execution semantics of a node.
type NodeType string

const (
	NodeTypeInput     NodeType = "input"
	NodeTypeOutput    NodeType = "output"
	NodeTypeAgent     NodeType = "agent"
	NodeTypeTool      NodeType = "tool"
	NodeTypeCondition NodeType = "condition"
	NodeTypeSubgraph  NodeType = "subgraph"
	NodeTypeHuman     NodeType = "human"
	NodeTypeLoop      NodeType = "loop"
)

var knownNodeTypes = map[NodeType]struct{}{
	NodeTypeInput:     {},
	NodeTypeOutput:    {},
	NodeTypeAgent:     {},
	NodeTypeTool:      {},
	NodeTypeCondition: {},
	NodeTypeSubgraph:  {},
	NodeTypeHuman:     {},
	NodeTypeLoop:      {},
}

// Valid reports whether t is one of the known node types.
func (t NodeType) Valid() bool {
	_, ok := knownNodeTypes[t]
	return ok
}

// ParseNodeType converts a case-insensitive name into a NodeType.
func ParseNodeType(s string) (NodeType, bool) {
	t := NodeType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// NodeStatus is the lifecycle state of a node within a run.
type NodeStatus string

const (
	StatusPending   NodeStatus = "pending"
	StatusRunning   NodeStatus = "running"
	StatusCompleted NodeStatus = "completed"
	StatusFailed    NodeStatus = "failed"
	StatusSkipped   NodeStatus = "skipped"
)

// Valid reports whether s is a known status value.
func (s NodeStatus) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// NodeConfig carries the type-specific settings of a node.
type NodeConfig struct {
	Type     NodeType       `json:"type" yaml:"type"`
	Data     map[string]any `json:"data" yaml:"data"`
	Metadata map[string]any `json:"metadata" yaml:"metadata"`
}

// Node is a unit of work owned by a Graph. Status, result and error are
// written by the engine during a run and read through accessors.
type Node struct {
	ID     string
	Type   NodeType
	Config NodeConfig

	mu     sync.Mutex
	status NodeStatus
	result any
	err    string
}

// NewNode creates a pending node. data may be nil.
func NewNode(id string, typ NodeType, data map[string]any) *Node {
	if data == nil {
		data = make(map[string]any)
	}
	return &Node{
		ID:   id,
		Type: typ,
		Config: NodeConfig{
			Type:     typ,
			Data:     data,
			Metadata: make(map[string]any),
		},
		status: StatusPending,
	}
}

// InputNode creates an input node.
func InputNode(id string) *Node { return NewNode(id, NodeTypeInput, nil) }

// OutputNode creates an output node.
func OutputNode(id string) *Node { return NewNode(id, NodeTypeOutput, nil) }

// AgentNode creates an agent node bound to agentID.
func AgentNode(id, agentID string) *Node {
	return NewNode(id, NodeTypeAgent, map[string]any{"agent_id": agentID})
}

// ToolNode creates a tool node. params may be nil.
func ToolNode(id, toolName string, params map[string]any) *Node {
	data := map[string]any{"tool_name": toolName}
	if params != nil {
		data["tool_params"] = params
	}
	return NewNode(id, NodeTypeTool, data)
}

// ConditionNode creates a condition node carrying a condition expression.
func ConditionNode(id, condition string) *Node {
	return NewNode(id, NodeTypeCondition, map[string]any{"condition": condition})
}

// SubgraphNode creates a node that runs the nested workflow workflowID.
func SubgraphNode(id, workflowID string) *Node {
	return NewNode(id, NodeTypeSubgraph, map[string]any{"workflow_id": workflowID})
}

// LoopNode creates a bounded loop node. conditionKey may be empty.
func LoopNode(id, conditionKey string, maxIterations int) *Node {
	return NewNode(id, NodeTypeLoop, map[string]any{
		"condition":      conditionKey,
		"max_iterations": maxIterations,
	})
}

// HumanNode creates a human-in-the-loop placeholder node.
func HumanNode(id string) *Node { return NewNode(id, NodeTypeHuman, nil) }

// Status returns the current status.
func (n *Node) Status() NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.status
}

// Result returns the value produced by the last successful execution.
func (n *Node) Result() any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.result
}

// Err returns the error message of the last failed execution.
func (n *Node) Err() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// SetStatus forces the node status. Forcing StatusCompleted before a run
// makes the engine skip the node.
func (n *Node) SetStatus(s NodeStatus) {
	n.mu.Lock()
	n.status = s
	n.mu.Unlock()
}

// Reset returns the node to pending and clears its result and error so the
// engine will execute it again on the next visit.
func (n *Node) Reset() {
	n.mu.Lock()
	n.status = StatusPending
	n.result = nil
	n.err = ""
	n.mu.Unlock()
}

// claim moves the node to running unless it already completed or another
// branch is executing it.
func (n *Node) claim() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.status == StatusCompleted || n.status == StatusRunning {
		return false
	}
	n.status = StatusRunning
	n.err = ""
	return true
}

func (n *Node) complete(result any) {
	n.mu.Lock()
	n.status = StatusCompleted
	n.result = result
	n.err = ""
	n.mu.Unlock()
}

func (n *Node) fail(status NodeStatus, msg string) {
	n.mu.Lock()
	n.status = status
	n.result = nil
	n.err = msg
	n.mu.Unlock()
}

func (n *Node) stringData(key string) string {
	if n.Config.Data == nil {
		return ""
	}
	s, _ := n.Config.Data[key].(string)
	return strings.TrimSpace(s)
}

func (n *Node) intData(key string, def int) int {
	if n.Config.Data == nil {
		return def
	}
	if v, ok := toInt(n.Config.Data[key]); ok {
		return v
	}
	return def
}
