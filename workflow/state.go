package workflow

import (
	"encoding/json"
	"sync"

	"github.com/BaSui01/agentgraph/types"
)

// Well-known state keys.
const (
	KeyInput           = "input"
	KeyIterations      = "iterations"
	KeyNodeEvents      = "node_events"
	KeyNodeResults     = "node_results"
	KeyExecutionConfig = "execution_config"
	KeyTask            = "task"
)

// State is the single mutable mapping shared by every node of a run.
// It is safe for use by concurrent branches; callers must still avoid two
// branches writing the same key.
type State struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewState creates a state seeded with a shallow copy of initial.
func NewState(initial map[string]any) *State {
	data := make(map[string]any, len(initial)+4)
	for k, v := range initial {
		data[k] = v
	}
	return &State{data: data}
}

// Get returns the value stored under key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// GetString returns state[key] when it is a string.
func (s *State) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set stores value under key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

// Delete removes key.
func (s *State) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

// Has reports whether key is present.
func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Len returns the number of top-level keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Input returns the run input.
func (s *State) Input() any {
	v, _ := s.Get(KeyInput)
	return v
}

// Iterations returns the global step counter.
func (s *State) Iterations() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, _ := toInt(s.data[KeyIterations])
	return n
}

// Events returns a copy of the node event log.
func (s *State) Events() []map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return eventsOf(s.data[KeyNodeEvents])
}

// Update runs fn with exclusive access to the underlying map.
func (s *State) Update(fn func(data map[string]any)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

// Map returns a shallow copy of the state.
func (s *State) Map() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Snapshot returns a structural deep copy that shares nothing with the
// live state.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DeepCopy(s.data).(map[string]any)
}

// MarshalJSON encodes a snapshot of the state.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// replace swaps the whole content, used when resuming from a checkpoint.
func (s *State) replace(data map[string]any) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}

// tick enforces the iteration budget and advances the global counter.
// Check and increment happen under one lock so concurrent branches share a
// single budget.
func (s *State) tick(max int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := toInt(s.data[KeyIterations])
	if n >= max {
		return types.Errorf(types.ErrIterationBudgetExceeded, "Maximum iterations (%d) exceeded", max)
	}
	s.data[KeyIterations] = n + 1
	return nil
}

func (s *State) appendEvent(event map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch events := s.data[KeyNodeEvents].(type) {
	case []map[string]any:
		s.data[KeyNodeEvents] = append(events, event)
	case []any:
		s.data[KeyNodeEvents] = append(events, event)
	default:
		s.data[KeyNodeEvents] = []map[string]any{event}
	}
}

func (s *State) recordNodeResult(nodeID string, entry map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	results, ok := s.data[KeyNodeResults].(map[string]any)
	if !ok {
		results = make(map[string]any)
		s.data[KeyNodeResults] = results
	}
	results[nodeID] = entry
}

// eventsOf normalizes the event log, which is []any after a JSON round trip.
func eventsOf(v any) []map[string]any {
	switch events := v.(type) {
	case []map[string]any:
		out := make([]map[string]any, len(events))
		copy(out, events)
		return out
	case []any:
		out := make([]map[string]any, 0, len(events))
		for _, e := range events {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return []map[string]any{}
	}
}
