package flows

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/workflow"
)

type call struct {
	agent string
	task  string
	input map[string]any
}

// script answers one agent call.
type script func(agentID, task string, input map[string]any) (map[string]any, error)

// recorder hands out runtimes that log every call and answer from a script.
type recorder struct {
	mu     sync.Mutex
	calls  []call
	answer script
}

func newRecorder(answer script) *recorder {
	if answer == nil {
		answer = func(agentID, task string, _ map[string]any) (map[string]any, error) {
			return map[string]any{"output": agentID + ":" + task}, nil
		}
	}
	return &recorder{answer: answer}
}

func (r *recorder) factory() workflow.RuntimeFactory {
	return func(agent workflow.Agent, _ []workflow.Tool, _ workflow.SharedMemory) (workflow.AgentRuntime, error) {
		id := agent.ID()
		return workflow.RuntimeFunc(func(_ context.Context, task string, input map[string]any) (map[string]any, error) {
			r.mu.Lock()
			r.calls = append(r.calls, call{agent: id, task: task, input: input})
			r.mu.Unlock()
			return r.answer(id, task, input)
		}), nil
	}
}

func (r *recorder) agents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.agent
	}
	return out
}

func (r *recorder) callsFor(agentID string) []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []call
	for _, c := range r.calls {
		if c.agent == agentID {
			out = append(out, c)
		}
	}
	return out
}

func agentsNamed(ids ...string) []workflow.Agent {
	out := make([]workflow.Agent, len(ids))
	for i, id := range ids {
		out[i] = &workflow.BasicAgent{AgentID: id}
	}
	return out
}

// noRetry fails fast on the first error.
func noRetry(cancelOnFailure bool) Option {
	cfg := workflow.DefaultExecutionConfig()
	cfg.RetryCount = 0
	cfg.BackoffBase = 0.001
	cfg.CancelOnFailure = cancelOnFailure
	return WithExecutionConfig(cfg)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustGet(t *testing.T, s *workflow.State, key string) any {
	t.Helper()
	v, ok := s.Get(key)
	require.True(t, ok, "state has no %q", key)
	return v
}
