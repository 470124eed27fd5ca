package flows

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/agentgraph/workflow"
)

// EnsembleVotingFlow asks every agent the same question and picks the most
// common answer.
type EnsembleVotingFlow struct {
	*Base
}

// NewEnsembleVotingFlow creates a voting flow.
func NewEnsembleVotingFlow(agents []workflow.Agent, opts ...Option) (*EnsembleVotingFlow, error) {
	b, err := NewBase("ensemble_voting_flow", agents, opts...)
	if err != nil {
		return nil, err
	}
	return &EnsembleVotingFlow{Base: b}, nil
}

// Run tallies trimmed outputs into votes and stores the most voted answer
// under winner. Votes already in state are kept and counted; ties go to the
// answer seen first. A failed agent votes for the empty answer.
func (f *EnsembleVotingFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	state := f.prepareState(input, opts)
	agents := f.Agents()
	runtimes, err := f.runtimes(agents)
	if err != nil {
		return nil, err
	}

	task := taskOr(state, workflow.KeyTask, "Provide your answer")
	tasks := make([]workflow.Task[map[string]any], len(agents))
	for i := range agents {
		rt, ctxInput := runtimes[i], state.Map()
		tasks[i] = func(ctx context.Context) (map[string]any, error) {
			return f.ExecuteWithRetry(ctx, rt, task, ctxInput)
		}
	}
	outcomes, err := f.GatherTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}

	votes := make(map[string]any)
	var order []string
	if prior, ok := state.Get("votes"); ok {
		if m, ok := prior.(map[string]any); ok {
			for k, v := range m {
				votes[k] = v
				order = append(order, k)
			}
			sort.Strings(order)
		}
	}
	for _, out := range outcomes {
		answer := ""
		if out.Err == nil {
			answer = strings.TrimSpace(outputString(out.Value))
		}
		if _, seen := votes[answer]; !seen {
			order = append(order, answer)
		}
		votes[answer] = voteCount(votes[answer]) + 1
	}

	var winner any
	best := 0
	for _, answer := range order {
		if n := voteCount(votes[answer]); winner == nil || n > best {
			winner, best = answer, n
		}
	}
	state.Update(func(data map[string]any) {
		data["votes"] = votes
		data["winner"] = winner
	})
	return state, nil
}

func voteCount(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
