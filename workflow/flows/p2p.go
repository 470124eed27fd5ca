package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/workflow"
)

// P2PConfig tunes when a peer-to-peer conversation stops.
type P2PConfig struct {
	MaxRounds          int           `json:"max_rounds" yaml:"max_rounds"`
	Timeout            time.Duration `json:"timeout" yaml:"timeout"`
	ConsensusThreshold float64       `json:"consensus_threshold" yaml:"consensus_threshold"`
	ConvergenceWindow  int           `json:"convergence_window" yaml:"convergence_window"`
	QualityThreshold   float64       `json:"quality_threshold" yaml:"quality_threshold"`
}

// DefaultP2PConfig returns the default stopping rules.
func DefaultP2PConfig() P2PConfig {
	return P2PConfig{
		MaxRounds:          5,
		Timeout:            300 * time.Second,
		ConsensusThreshold: 0.6,
		ConvergenceWindow:  3,
		QualityThreshold:   0.85,
	}
}

const (
	p2pDefaultMaxIterations = 100
	qualityReferenceLength  = 500
	convergencePrefix       = 100
	deadlockWindow          = 6
)

// P2PFlow lets every agent speak once per round until a stopping rule
// fires. Agents are called without retry.
type P2PFlow struct {
	*Base
	cfg P2PConfig
	now func() time.Time
}

// NewP2PFlow creates a peer-to-peer flow. Zero fields of cfg take their
// defaults.
func NewP2PFlow(agents []workflow.Agent, cfg P2PConfig, opts ...Option) (*P2PFlow, error) {
	b, err := NewBase("p2p_flow", agents, opts...)
	if err != nil {
		return nil, err
	}
	def := DefaultP2PConfig()
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = def.MaxRounds
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ConsensusThreshold <= 0 {
		cfg.ConsensusThreshold = def.ConsensusThreshold
	}
	if cfg.ConvergenceWindow <= 0 {
		cfg.ConvergenceWindow = def.ConvergenceWindow
	}
	if cfg.QualityThreshold <= 0 {
		cfg.QualityThreshold = def.QualityThreshold
	}
	return &P2PFlow{Base: b, cfg: cfg, now: time.Now}, nil
}

// Config returns the effective stopping rules.
func (f *P2PFlow) Config() P2PConfig { return f.cfg }

// Run appends one {round, agent_id, result} message per agent per round to
// messages and records solution_quality, goal_achieved and
// termination_reason. The timeout clock starts when Run is called.
func (f *P2PFlow) Run(ctx context.Context, input any, opts ...RunOption) (*workflow.State, error) {
	start := f.now()
	maxIterations := f.runConfig(opts).maxIterations
	if maxIterations <= 0 {
		maxIterations = p2pDefaultMaxIterations
	}

	state := f.prepareState(input, opts)
	state.Update(func(data map[string]any) {
		if _, ok := data["messages"]; !ok {
			data["messages"] = []any{}
		}
		if _, ok := data["solution_quality"]; !ok {
			data["solution_quality"] = 0.0
		}
		if _, ok := data["goal_achieved"]; !ok {
			data["goal_achieved"] = false
		}
	})

	agents := f.Agents()
	runtimes, err := f.runtimes(agents)
	if err != nil {
		return nil, err
	}

	for round := 1; round <= f.cfg.MaxRounds; round++ {
		for i, a := range agents {
			result, err := runtimes[i].Execute(ctx, taskOr(state, workflow.KeyTask, "Collaborate with peers"), state.Map())
			if err != nil {
				return nil, fmt.Errorf("agent %s in round %d: %w", a.ID(), round, err)
			}
			appendList(state, "messages", map[string]any{
				"round":    round,
				"agent_id": a.ID(),
				"result":   result,
			})
		}

		messages := p2pMessages(state)
		quality := f.estimateQuality(messages)
		state.Update(func(data map[string]any) {
			data["solution_quality"] = quality
			if quality >= f.cfg.QualityThreshold {
				data["goal_achieved"] = true
			}
		})

		if reason := f.terminationReason(state, messages, round, start); reason != "" {
			f.logger.Info("p2p conversation terminated", zap.String("reason", reason), zap.Int("round", round))
			state.Set("termination_reason", reason)
			break
		}
		if state.Iterations() >= maxIterations {
			state.Set("termination_reason", "Max iterations reached")
			break
		}
	}
	return state, nil
}

func p2pMessages(state *workflow.State) []map[string]any {
	v, _ := state.Get("messages")
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func (f *P2PFlow) terminationReason(state *workflow.State, messages []map[string]any, round int, start time.Time) string {
	if round >= f.cfg.MaxRounds {
		return fmt.Sprintf("Max rounds reached (%d)", f.cfg.MaxRounds)
	}
	if f.now().Sub(start) >= f.cfg.Timeout {
		return fmt.Sprintf("Timeout reached (%ss)", strconv.FormatFloat(f.cfg.Timeout.Seconds(), 'f', -1, 64))
	}
	if v, _ := state.Get("goal_achieved"); v == true {
		return "Goal achieved"
	}
	if f.consensusReached(messages) {
		return "Consensus to terminate"
	}
	if f.converged(messages) {
		return "Conversation converged"
	}
	if deadlocked(messages) {
		return "Deadlock detected"
	}
	return ""
}

// recent returns the last n messages.
func recent(messages []map[string]any, n int) []map[string]any {
	if n < len(messages) {
		return messages[len(messages)-n:]
	}
	return messages
}

func messageResult(msg map[string]any) map[string]any {
	r, _ := msg["result"].(map[string]any)
	return r
}

// estimateQuality scores the last round by output length.
func (f *P2PFlow) estimateQuality(messages []map[string]any) float64 {
	last := recent(messages, len(f.agents))
	if len(last) == 0 {
		return 0
	}
	var sum float64
	for _, msg := range last {
		sum += min(1.0, float64(len(outputString(messageResult(msg))))/qualityReferenceLength)
	}
	return sum / float64(len(last))
}

// consensusReached reports whether enough of the last round completed.
func (f *P2PFlow) consensusReached(messages []map[string]any) bool {
	if len(messages) == 0 {
		return false
	}
	votes := 0
	for _, msg := range recent(messages, len(f.agents)) {
		status, _ := messageResult(msg)["status"].(string)
		if strings.EqualFold(status, "completed") {
			votes++
		}
	}
	return float64(votes)/float64(max(1, len(f.agents))) >= f.cfg.ConsensusThreshold
}

// converged reports whether the window holds at most two distinct output
// prefixes.
func (f *P2PFlow) converged(messages []map[string]any) bool {
	if len(messages) < f.cfg.ConvergenceWindow {
		return false
	}
	seen := make(map[string]struct{})
	for _, msg := range recent(messages, f.cfg.ConvergenceWindow) {
		out := []rune(outputString(messageResult(msg)))
		if len(out) > convergencePrefix {
			out = out[:convergencePrefix]
		}
		seen[string(out)] = struct{}{}
	}
	return len(seen) <= 2
}

// deadlocked reports whether the last six senders repeat in two identical
// triples.
func deadlocked(messages []map[string]any) bool {
	if len(messages) < deadlockWindow {
		return false
	}
	last := recent(messages, deadlockWindow)
	for i := 0; i < 3; i++ {
		if fmt.Sprint(last[i]["agent_id"]) != fmt.Sprint(last[i+3]["agent_id"]) {
			return false
		}
	}
	return true
}
