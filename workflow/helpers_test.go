package workflow

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordingRuntime is an AgentRuntime driven by a function, counting calls.
type recordingRuntime struct {
	calls atomic.Int32
	fn    func(ctx context.Context, task string, input map[string]any) (map[string]any, error)
}

func (r *recordingRuntime) Execute(ctx context.Context, task string, input map[string]any) (map[string]any, error) {
	r.calls.Add(1)
	return r.fn(ctx, task, input)
}

// runtimeFactoryFor returns a factory that hands out one runtime per agent id.
func runtimeFactoryFor(runtimes map[string]AgentRuntime) RuntimeFactory {
	return func(agent Agent, _ []Tool, _ SharedMemory) (AgentRuntime, error) {
		if rt, ok := runtimes[agent.ID()]; ok {
			return rt, nil
		}
		return RuntimeFunc(func(_ context.Context, task string, _ map[string]any) (map[string]any, error) {
			return map[string]any{"agent": agent.ID(), "task": task}, nil
		}), nil
	}
}

// echoFactory answers every task with the agent id and task.
func echoFactory() RuntimeFactory { return runtimeFactoryFor(nil) }

// eventLog collects callback events safely across branches.
type eventLog struct {
	mu     sync.Mutex
	events []map[string]any
}

func (l *eventLog) callback(_ context.Context, event map[string]any) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) running() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var ids []string
	for _, e := range l.events {
		if e["status"] == string(StatusRunning) {
			ids = append(ids, e["node_id"].(string))
		}
	}
	return ids
}

func (l *eventLog) tokens() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.events {
		if e["event"] == "token" {
			out = append(out, e["text_output"].(string))
		}
	}
	return out
}

// fastRetry keeps retry tests quick.
func fastRetry(retries int) map[string]any {
	return map[string]any{
		"retry_count":        retries,
		"backoff_base":       0.001,
		"backoff_multiplier": 1.0,
		"timeout_seconds":    5.0,
	}
}

func newAgentGraph(t *testing.T, factory RuntimeFactory, agentIDs ...string) (*Graph, *Registry) {
	t.Helper()
	reg := NewRegistry()
	for _, id := range agentIDs {
		require.NoError(t, reg.RegisterAgent(&BasicAgent{AgentID: id}))
	}
	return NewGraph("test", WithRegistry(reg), WithRuntimeFactory(factory)), reg
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
