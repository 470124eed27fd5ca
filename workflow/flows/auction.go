package flows

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// AuctionFlow asks every agent for a bid and lets the highest bidder run
// the task.
type AuctionFlow struct {
	*Base
}

// NewAuctionFlow creates an auction flow.
func NewAuctionFlow(agents []workflow.Agent, opts ...Option) (*AuctionFlow, error) {
	b, err := NewBase("auction_flow", agents, opts...)
	if err != nil {
		return nil, err
	}
	return &AuctionFlow{Base: b}, nil
}

// Run collects bids into bids, then records winner_id and winner_result.
// Ties go to the earliest agent.
func (f *AuctionFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	state := f.prepareState(input, opts)
	agents := f.Agents()
	runtimes, err := f.runtimes(agents)
	if err != nil {
		return nil, err
	}

	bidTask := taskOr(state, "bid_task", "Provide a numeric bid between 0 and 1")
	tasks := make([]workflow.Task[map[string]any], len(agents))
	for i := range agents {
		rt, ctxInput := runtimes[i], state.Map()
		tasks[i] = func(ctx context.Context) (map[string]any, error) {
			return f.ExecuteWithRetry(ctx, rt, bidTask, ctxInput)
		}
	}
	outcomes, err := f.GatherTasks(ctx, tasks)
	if err != nil {
		return nil, err
	}

	bids := make(map[string]any, len(agents))
	winner, best := -1, 0.0
	for i, out := range outcomes {
		bid := 0.0
		if out.Err != nil {
			f.logger.Warn("bid failed", zap.String("agent_id", agents[i].ID()), zap.Error(out.Err))
		} else {
			bid = ParseBid(out.Value["output"])
		}
		bids[agents[i].ID()] = bid
		if winner < 0 || bid > best {
			winner, best = i, bid
		}
	}
	state.Set("bids", bids)
	if winner < 0 {
		return nil, types.NewError(types.ErrInvalidConfig, "AuctionFlow requires at least one bid")
	}

	winnerID := agents[winner].ID()
	result, err := f.ExecuteWithRetry(ctx, runtimes[winner], taskOr(state, workflow.KeyTask, "Execute the task"),
		withContext(state, map[string]any{"winner_id": winnerID}))
	if err != nil {
		return nil, err
	}
	state.Update(func(data map[string]any) {
		data["winner_id"] = winnerID
		data["winner_result"] = result
	})
	return state, nil
}

// ParseBid reads a numeric bid from an agent output. Numbers are used as
// is; text is parsed as a number, or as JSON holding a number or an object
// with a "bid" field, after repairing malformed JSON. Anything else bids 0.
func ParseBid(v any) float64 {
	switch b := v.(type) {
	case float64:
		return b
	case float32:
		return float64(b)
	case int:
		return float64(b)
	case int64:
		return float64(b)
	case json.Number:
		f, _ := b.Float64()
		return f
	case map[string]any:
		return ParseBid(b["bid"])
	case string:
		s := strings.TrimSpace(b)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		if s == "" {
			return 0
		}
		repaired, err := jsonrepair.JSONRepair(s)
		if err != nil {
			return 0
		}
		var decoded any
		if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
			return 0
		}
		if _, isString := decoded.(string); isString {
			return 0
		}
		return ParseBid(decoded)
	}
	return 0
}
