package flows

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/workflow"
)

// CriticReviewFlow alternates a generator and a critic until the critique
// is accepted or the rounds run out.
type CriticReviewFlow struct {
	*Base
	maxIterations int
}

// NewCriticReviewFlow creates a review flow from a generator followed by a
// critic. maxIterations <= 0 means 3 rounds.
func NewCriticReviewFlow(agents []workflow.Agent, maxIterations int, opts ...Option) (*CriticReviewFlow, error) {
	b, err := newBase("critic_review_flow", agents, 2, opts...)
	if err != nil {
		return nil, err
	}
	if maxIterations <= 0 {
		maxIterations = 3
	}
	return &CriticReviewFlow{Base: b, maxIterations: maxIterations}, nil
}

// Run appends each draft to drafts and the latest critique to
// last_critique. A truthy accept key in state ends the loop; the last draft
// is stored under final.
func (f *CriticReviewFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	state := f.prepareState(input, opts)
	agents := f.Agents()
	generator, err := f.Runtime(agents[0])
	if err != nil {
		return nil, err
	}
	critic, err := f.Runtime(agents[1])
	if err != nil {
		return nil, err
	}

	var draft any
	for round := 0; round < f.maxIterations; round++ {
		generated, err := f.ExecuteWithRetry(ctx, generator, taskOr(state, workflow.KeyTask, "Generate a draft"),
			withContext(state, map[string]any{"draft": draft}))
		if err != nil {
			return nil, err
		}
		draft = generated["output"]
		appendList(state, "drafts", draft)

		critique, err := f.ExecuteWithRetry(ctx, critic, taskOr(state, "critic_task", "Critique the draft"),
			withContext(state, map[string]any{"draft": draft}))
		if err != nil {
			return nil, err
		}
		state.Set("last_critique", critique)

		if v, _ := state.Get("accept"); isTrue(v) {
			f.logger.Debug("draft accepted", zap.Int("round", round+1))
			break
		}
	}
	state.Set("final", draft)
	return state, nil
}

func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != ""
	case int:
		return b != 0
	case float64:
		return b != 0
	case nil:
		return false
	}
	return true
}

// CoordinatorWorkerFlow lets the first agent plan and the others execute
// concurrently.
type CoordinatorWorkerFlow struct {
	*Base
}

// NewCoordinatorWorkerFlow creates a coordinator/worker flow. The first
// agent coordinates.
func NewCoordinatorWorkerFlow(agents []workflow.Agent, opts ...Option) (*CoordinatorWorkerFlow, error) {
	b, err := newBase("coordinator_worker_flow", agents, 2, opts...)
	if err != nil {
		return nil, err
	}
	return &CoordinatorWorkerFlow{Base: b}, nil
}

// Run stores the coordinator's output under plan and appends one
// {worker_id, result} entry per worker to worker_results.
func (f *CoordinatorWorkerFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	state := f.prepareState(input, opts)
	agents := f.Agents()
	coordinator, workers := agents[0], agents[1:]

	rt, err := f.Runtime(coordinator)
	if err != nil {
		return nil, err
	}
	plan, err := f.ExecuteWithRetry(ctx, rt, taskOr(state, workflow.KeyTask, "Break the task into worker assignments"), state.Map())
	if err != nil {
		return nil, err
	}
	state.Set("plan", plan)

	runtimes, err := f.runtimes(workers)
	if err != nil {
		return nil, err
	}
	workerTask := taskOr(state, "worker_task", "Execute assigned task")
	tasks := make([]workflow.Task[map[string]any], len(workers))
	for i, w := range workers {
		rt, ctxInput := runtimes[i], withContext(state, map[string]any{"worker_id": w.ID()})
		tasks[i] = func(ctx context.Context) (map[string]any, error) {
			return f.ExecuteWithRetry(ctx, rt, workerTask, ctxInput)
		}
	}
	outcomes, err := f.GatherTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}

	entries := make([]any, len(workers))
	for i, out := range outcomes {
		entry := map[string]any{"worker_id": workers[i].ID(), "result": out.Value}
		if out.Err != nil {
			f.logger.Warn("worker failed", zap.String("agent_id", workers[i].ID()), zap.Error(out.Err))
			entry["result"] = nil
			entry["error"] = out.Err.Error()
		}
		entries[i] = entry
	}
	appendList(state, "worker_results", entries...)
	return state, nil
}
