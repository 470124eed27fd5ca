package workflow

// Condition decides whether an edge is followed. It receives the whole
// shared state of the run.
type Condition func(state *State) bool

// EdgeType names the three edge flavours of a workflow definition.
type EdgeType string

const (
	EdgeSequential  EdgeType = "sequential"
	EdgeParallel    EdgeType = "parallel"
	EdgeConditional EdgeType = "conditional"
)

// Edge connects two nodes. Edges are immutable once added to a Graph.
type Edge struct {
	Source    string
	Target    string
	Condition Condition
	Metadata  map[string]any
	Priority  int
}

// NewEdge creates an unconditional sequential edge.
func NewEdge(source, target string) *Edge {
	return &Edge{Source: source, Target: target, Metadata: make(map[string]any)}
}

// ParallelEdge creates an edge whose target runs concurrently with the
// other parallel successors of source.
func ParallelEdge(source, target string) *Edge {
	e := NewEdge(source, target)
	e.Metadata["parallel"] = true
	return e
}

// ConditionalEdge creates a sequential edge guarded by cond.
func ConditionalEdge(source, target string, cond Condition) *Edge {
	e := NewEdge(source, target)
	e.Condition = cond
	return e
}

// WithPriority sets the ordering among sequential siblings (lower first).
func (e *Edge) WithPriority(p int) *Edge {
	e.Priority = p
	return e
}

// StateHasKey returns a condition that holds once key is present in state.
func StateHasKey(key string) Condition {
	return func(state *State) bool { return state.Has(key) }
}

// StateEquals returns a condition that holds when state[key] equals value.
func StateEquals(key string, value any) Condition {
	return func(state *State) bool {
		v, ok := state.Get(key)
		return ok && v == value
	}
}

// IsParallel reports whether the edge carries the parallel flag.
func (e *Edge) IsParallel() bool {
	v, _ := e.Metadata["parallel"].(bool)
	return v
}

// IsConditional reports whether the edge has a condition.
func (e *Edge) IsConditional() bool { return e.Condition != nil }

// Type classifies the edge.
func (e *Edge) Type() EdgeType {
	switch {
	case e.IsParallel():
		return EdgeParallel
	case e.IsConditional():
		return EdgeConditional
	default:
		return EdgeSequential
	}
}

// Evaluate runs the condition against state. A missing condition is true;
// a panicking condition counts as false.
func (e *Edge) Evaluate(state *State) bool {
	ok, _ := e.evaluate(state)
	return ok
}

// evaluate also reports the recovered panic value, if any.
func (e *Edge) evaluate(state *State) (ok bool, panicked any) {
	if e.Condition == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			ok, panicked = false, r
		}
	}()
	return e.Condition(state), nil
}
