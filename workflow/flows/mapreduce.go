package flows

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/workflow"
)

// MapReduceFlow runs every agent but the last as a mapper over the same
// input and hands their results to the last agent for reduction.
type MapReduceFlow struct {
	*Base
}

// NewMapReduceFlow creates a map-reduce flow. It needs a reducer and at
// least one mapper.
func NewMapReduceFlow(agents []workflow.Agent, opts ...Option) (*MapReduceFlow, error) {
	b, err := newBase("map_reduce_flow", agents, 2, opts...)
	if err != nil {
		return nil, err
	}
	return &MapReduceFlow{Base: b}, nil
}

// Run maps then reduces. Results land in map_results and reduce_result.
// With CancelOnFailure off a failed mapper is recorded with its error and
// the reducer still runs.
func (f *MapReduceFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	state := f.prepareState(input, opts)
	agents := f.Agents()
	mappers, reducer := agents[:len(agents)-1], agents[len(agents)-1]

	runtimes, err := f.runtimes(mappers)
	if err != nil {
		return nil, err
	}
	mapTask := taskOr(state, "map_task", "Process shard")
	tasks := make([]workflow.Task[map[string]any], len(mappers))
	for i, m := range mappers {
		rt, ctxInput := runtimes[i], withContext(state, map[string]any{"mapper_id": m.ID()})
		tasks[i] = func(ctx context.Context) (map[string]any, error) {
			return f.ExecuteWithRetry(ctx, rt, mapTask, ctxInput)
		}
	}
	outcomes, err := f.GatherTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(mappers))
	for i, out := range outcomes {
		entry := map[string]any{"mapper_id": mappers[i].ID(), "result": out.Value}
		if out.Err != nil {
			f.logger.Warn("mapper failed", zap.String("agent_id", mappers[i].ID()), zap.Error(out.Err))
			entry["result"] = nil
			entry["error"] = out.Err.Error()
		}
		results[i] = entry
	}
	state.Set("map_results", results)

	rt, err := f.Runtime(reducer)
	if err != nil {
		return nil, err
	}
	reduced, err := f.ExecuteWithRetry(ctx, rt, taskOr(state, "reduce_task", "Summarize map results"), state.Map())
	if err != nil {
		return nil, err
	}
	state.Set("reduce_result", reduced)
	return state, nil
}
