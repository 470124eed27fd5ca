package flows

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/workflow"
)

func TestMapReduceFlow(t *testing.T) {
	rec := newRecorder(func(agentID, task string, input map[string]any) (map[string]any, error) {
		if agentID == "reducer" {
			results, _ := input["map_results"].([]any)
			return map[string]any{"output": fmt.Sprintf("%s over %d", task, len(results))}, nil
		}
		return map[string]any{"output": fmt.Sprint(input["mapper_id"])}, nil
	})
	flow, err := NewMapReduceFlow(agentsNamed("m1", "m2", "reducer"), WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "doc")
	require.NoError(t, err)

	results := mustGet(t, state, "map_results").([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "m1", results[0].(map[string]any)["mapper_id"])
	assert.Equal(t, map[string]any{"output": "m2"}, results[1].(map[string]any)["result"])

	reduced := mustGet(t, state, "reduce_result").(map[string]any)
	assert.Equal(t, "Summarize map results over 2", reduced["output"])
	for _, c := range rec.callsFor("m1") {
		assert.Equal(t, "Process shard", c.task)
	}
}

func TestMapReduceFlow_BestEffortRecordsErrors(t *testing.T) {
	rec := newRecorder(func(agentID, _ string, _ map[string]any) (map[string]any, error) {
		if agentID == "bad" {
			return nil, errors.New("shard lost")
		}
		return map[string]any{"output": agentID}, nil
	})
	flow, err := NewMapReduceFlow(agentsNamed("good", "bad", "reducer"), WithRuntimeFactory(rec.factory()), noRetry(false))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "doc")
	require.NoError(t, err)
	bad := mustGet(t, state, "map_results").([]any)[1].(map[string]any)
	assert.Nil(t, bad["result"])
	assert.Contains(t, bad["error"], "shard lost")
	assert.True(t, state.Has("reduce_result"))
}

func TestMapReduceFlow_FailFast(t *testing.T) {
	rec := newRecorder(func(agentID, _ string, _ map[string]any) (map[string]any, error) {
		if agentID == "bad" {
			return nil, errors.New("shard lost")
		}
		return map[string]any{"output": agentID}, nil
	})
	flow, err := NewMapReduceFlow(agentsNamed("good", "bad", "reducer"), WithRuntimeFactory(rec.factory()), noRetry(true))
	require.NoError(t, err)

	_, err = flow.Run(testContext(t), "doc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard lost")
	assert.Empty(t, rec.callsFor("reducer"))
}

func TestAuctionFlow_HighestBidWins(t *testing.T) {
	bids := map[string]any{"a": "0.2", "b": `{"bid": 0.9`, "c": 0.5}
	rec := newRecorder(func(agentID, task string, input map[string]any) (map[string]any, error) {
		if strings.HasPrefix(task, "Provide a numeric bid") {
			return map[string]any{"output": bids[agentID]}, nil
		}
		return map[string]any{"output": fmt.Sprintf("%s did it as %v", agentID, input["winner_id"])}, nil
	})
	flow, err := NewAuctionFlow(agentsNamed("a", "b", "c"), WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "job")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 0.2, "b": 0.9, "c": 0.5}, mustGet(t, state, "bids"))
	assert.Equal(t, "b", state.GetString("winner_id"))
	assert.Equal(t, "b did it as b", mustGet(t, state, "winner_result").(map[string]any)["output"])

	winnerCalls := rec.callsFor("b")
	require.Len(t, winnerCalls, 2)
	assert.Equal(t, "Execute the task", winnerCalls[1].task)
}

func TestAuctionFlow_TieGoesToFirstAgent(t *testing.T) {
	rec := newRecorder(func(string, string, map[string]any) (map[string]any, error) {
		return map[string]any{"output": "no idea"}, nil
	})
	flow, err := NewAuctionFlow(agentsNamed("x", "y"), WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "job")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": 0.0, "y": 0.0}, mustGet(t, state, "bids"))
	assert.Equal(t, "x", state.GetString("winner_id"))
}

func TestParseBid(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{0.4, 0.4},
		{3, 3},
		{" 0.75 ", 0.75},
		{`{"bid": 0.6}`, 0.6},
		{`{"bid": 0.6`, 0.6},
		{map[string]any{"bid": 0.3}, 0.3},
		{"", 0},
		{nil, 0},
		{[]any{1}, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ParseBid(tt.in), 1e-9, "input %#v", tt.in)
	}
}

func TestEnsembleVotingFlow(t *testing.T) {
	answers := map[string]string{"a": " yes ", "b": "no", "c": "yes"}
	rec := newRecorder(func(agentID, _ string, _ map[string]any) (map[string]any, error) {
		return map[string]any{"output": answers[agentID]}, nil
	})
	flow, err := NewEnsembleVotingFlow(agentsNamed("a", "b", "c"), WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "question")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"yes": 2, "no": 1}, mustGet(t, state, "votes"))
	assert.Equal(t, "yes", mustGet(t, state, "winner"))
	for _, c := range rec.callsFor("a") {
		assert.Equal(t, "Provide your answer", c.task)
	}
}

func TestEnsembleVotingFlow_TieKeepsFirstAnswer(t *testing.T) {
	answers := map[string]string{"a": "left", "b": "right"}
	rec := newRecorder(func(agentID, _ string, _ map[string]any) (map[string]any, error) {
		return map[string]any{"output": answers[agentID]}, nil
	})
	flow, err := NewEnsembleVotingFlow(agentsNamed("a", "b"), WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "q")
	require.NoError(t, err)
	assert.Equal(t, "left", mustGet(t, state, "winner"))
}

func TestCriticReviewFlow_RunsAllRounds(t *testing.T) {
	round := 0
	rec := newRecorder(func(agentID, _ string, input map[string]any) (map[string]any, error) {
		if agentID == "writer" {
			round++
			return map[string]any{"output": fmt.Sprintf("draft %d", round)}, nil
		}
		return map[string]any{"output": fmt.Sprintf("critique of %v", input["draft"])}, nil
	})
	flow, err := NewCriticReviewFlow(agentsNamed("writer", "critic"), 2, WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "essay")
	require.NoError(t, err)
	assert.Equal(t, []any{"draft 1", "draft 2"}, mustGet(t, state, "drafts"))
	assert.Equal(t, "draft 2", mustGet(t, state, "final"))
	assert.Equal(t, "critique of draft 2", mustGet(t, state, "last_critique").(map[string]any)["output"])

	writerCalls := rec.callsFor("writer")
	require.Len(t, writerCalls, 2)
	assert.Nil(t, writerCalls[0].input["draft"])
	assert.Equal(t, "draft 1", writerCalls[1].input["draft"])
	assert.Equal(t, "Critique the draft", rec.callsFor("critic")[0].task)
}

func TestCriticReviewFlow_AcceptStopsEarly(t *testing.T) {
	rec := newRecorder(nil)
	flow, err := NewCriticReviewFlow(agentsNamed("writer", "critic"), 0, WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "essay", WithState(workflow.NewState(map[string]any{"accept": true})))
	require.NoError(t, err)
	assert.Len(t, mustGet(t, state, "drafts"), 1)
	assert.Equal(t, "writer:Generate a draft", mustGet(t, state, "final"))

	_, err = NewCriticReviewFlow(agentsNamed("solo"), 1)
	require.Error(t, err)
}

func TestCoordinatorWorkerFlow(t *testing.T) {
	rec := newRecorder(func(agentID, task string, input map[string]any) (map[string]any, error) {
		if agentID == "lead" {
			return map[string]any{"output": "split"}, nil
		}
		return map[string]any{"output": fmt.Sprintf("%s by %v", task, input["worker_id"])}, nil
	})
	flow, err := NewCoordinatorWorkerFlow(agentsNamed("lead", "w1", "w2"), WithRuntimeFactory(rec.factory()))
	require.NoError(t, err)

	state, err := flow.Run(testContext(t), "project")
	require.NoError(t, err)
	assert.Equal(t, "split", mustGet(t, state, "plan").(map[string]any)["output"])
	assert.Equal(t, "Break the task into worker assignments", rec.callsFor("lead")[0].task)

	results := mustGet(t, state, "worker_results").([]any)
	require.Len(t, results, 2)
	assert.Equal(t, map[string]any{
		"worker_id": "w2",
		"result":    map[string]any{"output": "Execute assigned task by w2"},
	}, results[1])

	w1 := rec.callsFor("w1")
	require.Len(t, w1, 1)
	assert.Equal(t, map[string]any{"output": "split"}, w1[0].input["plan"])
}
