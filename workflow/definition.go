package workflow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentgraph/types"
)

// WorkflowDefinition is the serializable form of a workflow: the payload of
// the HTTP API, the CLI definition files and nested subgraphs.
type WorkflowDefinition struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges       []EdgeDefinition `json:"edges" yaml:"edges"`
	Metadata    map[string]any   `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// NodeDefinition describes one node. Type accepts the node type names plus
// the aliases start, end and decision.
type NodeDefinition struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// EdgeDefinition describes one edge. A non-empty Condition is the name of a
// state key that must be present for the edge to be followed.
type EdgeDefinition struct {
	Source    string         `json:"source" yaml:"source"`
	Target    string         `json:"target" yaml:"target"`
	Condition string         `json:"condition,omitempty" yaml:"condition,omitempty"`
	Parallel  bool           `json:"parallel,omitempty" yaml:"parallel,omitempty"`
	Priority  int            `json:"priority,omitempty" yaml:"priority,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ToEdge converts the definition into an Edge.
func (d EdgeDefinition) ToEdge() *Edge {
	e := NewEdge(d.Source, d.Target)
	for k, v := range d.Metadata {
		e.Metadata[k] = v
	}
	if d.Parallel {
		e.Metadata["parallel"] = true
	}
	if d.Condition != "" {
		e.Condition = StateHasKey(d.Condition)
	}
	e.Priority = d.Priority
	return e
}

// DefinitionFrom converts a definition held in state, usually a decoded
// JSON map, into a WorkflowDefinition.
func DefinitionFrom(v any) (*WorkflowDefinition, error) {
	switch t := v.(type) {
	case *WorkflowDefinition:
		return t, nil
	case WorkflowDefinition:
		return &t, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode workflow definition: %w", err)
	}
	var def WorkflowDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("decode workflow definition: %w", err)
	}
	return &def, nil
}

// BuildSubgraph builds a nested graph from a definition. Node configs become
// node data; unknown node types become condition nodes.
func BuildSubgraph(name string, def *WorkflowDefinition, opts ...Option) (*Graph, error) {
	g := NewGraph(name, opts...)
	for _, nd := range def.Nodes {
		typ, ok := ParseNodeType(nd.Type)
		if !ok {
			typ = NodeTypeCondition
		}
		var data map[string]any
		if typ != NodeTypeInput && typ != NodeTypeOutput {
			data = DeepCopy(nd.Config).(map[string]any)
		}
		if err := g.AddNode(NewNode(nd.ID, typ, data)); err != nil {
			return nil, err
		}
	}
	for _, ed := range def.Edges {
		if err := g.AddEdge(ed.ToEdge()); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// Validate checks that the definition is structurally usable.
func (d *WorkflowDefinition) Validate() error {
	if d.Name == "" {
		return types.NewError(types.ErrInvalidDefinition, "workflow name is required")
	}
	if len(d.Nodes) == 0 {
		return types.NewError(types.ErrInvalidDefinition, "workflow must have at least one node")
	}

	ids := make(map[string]struct{}, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.ID == "" {
			return types.Errorf(types.ErrInvalidDefinition, "node at index %d has no id", i)
		}
		if n.Type == "" {
			return types.Errorf(types.ErrInvalidDefinition, "node %s has no type", n.ID)
		}
		if !knownDefinitionType(n.Type) {
			return types.Errorf(types.ErrInvalidDefinition, "node %s has unknown type: %s", n.ID, n.Type)
		}
		if _, dup := ids[n.ID]; dup {
			return types.Errorf(types.ErrInvalidDefinition, "duplicate node id: %s", n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	for i, e := range d.Edges {
		if _, ok := ids[e.Source]; !ok {
			return types.Errorf(types.ErrInvalidDefinition, "edge %d references unknown source: %s", i, e.Source)
		}
		if _, ok := ids[e.Target]; !ok {
			return types.Errorf(types.ErrInvalidDefinition, "edge %d references unknown target: %s", i, e.Target)
		}
	}
	return nil
}

func knownDefinitionType(t string) bool {
	switch strings.ToLower(t) {
	case "start", "end", "decision":
		return true
	}
	_, ok := ParseNodeType(t)
	return ok
}

// MarshalJSON serializes a WorkflowDefinition to JSON.
func (d *WorkflowDefinition) MarshalJSON() ([]byte, error) {
	type Alias WorkflowDefinition
	return json.Marshal((*Alias)(d))
}

// UnmarshalJSON deserializes a WorkflowDefinition from JSON.
func (d *WorkflowDefinition) UnmarshalJSON(data []byte) error {
	type Alias WorkflowDefinition
	if err := json.Unmarshal(data, (*Alias)(d)); err != nil {
		return fmt.Errorf("failed to unmarshal WorkflowDefinition: %w", err)
	}
	return nil
}

// UnmarshalYAML deserializes a WorkflowDefinition from YAML.
func (d *WorkflowDefinition) UnmarshalYAML(node *yaml.Node) error {
	type Alias WorkflowDefinition
	if err := node.Decode((*Alias)(d)); err != nil {
		return fmt.Errorf("failed to unmarshal WorkflowDefinition: %w", err)
	}
	return nil
}

// ToJSON renders the definition as indented JSON.
func (d *WorkflowDefinition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML renders the definition as YAML.
func (d *WorkflowDefinition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// DefinitionFromJSON parses and validates a JSON definition.
func DefinitionFromJSON(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "failed to unmarshal from JSON").WithCause(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// DefinitionFromYAML parses and validates a YAML definition.
func DefinitionFromYAML(data []byte) (*WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, types.NewError(types.ErrInvalidDefinition, "failed to unmarshal from YAML").WithCause(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinitionFile reads a definition, picking the format from the file
// extension (.json, .yaml or .yml).
func LoadDefinitionFile(filename string) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return DefinitionFromYAML(data)
	default:
		return DefinitionFromJSON(data)
	}
}

// SaveFile writes the definition, picking the format from the extension.
func (d *WorkflowDefinition) SaveFile(filename string) error {
	var out string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		out, err = d.ToYAML()
	default:
		out, err = d.ToJSON()
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
