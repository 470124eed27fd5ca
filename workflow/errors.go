package workflow

import (
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// Sentinel errors. errors.Is matches on the error code, so errors created
// with types.Errorf and the same code compare equal to these.
var (
	ErrDuplicateNode           = types.NewError(types.ErrDuplicateNode, "duplicate node")
	ErrUnknownNode             = types.NewError(types.ErrUnknownNode, "unknown node")
	ErrEmptyGraph              = types.NewError(types.ErrEmptyGraph, "empty graph")
	ErrCycle                   = types.NewError(types.ErrCycleDetected, "graph contains cycles")
	ErrNoEntryPoint            = types.NewError(types.ErrNoEntryPoint, "no entry point")
	ErrIterationBudgetExceeded = types.NewError(types.ErrIterationBudgetExceeded, "iteration budget exceeded")
	ErrMissingConfig           = types.NewError(types.ErrMissingConfig, "missing node config")
	ErrInvalidConfig           = types.NewError(types.ErrInvalidConfig, "invalid node config")
	ErrAgentNotFound           = types.NewError(types.ErrAgentNotFound, "agent not found")
	ErrToolNotFound            = types.NewError(types.ErrToolNotFound, "tool not found")
	ErrSubgraphNotFound        = types.NewError(types.ErrSubgraphNotFound, "subgraph not found")
	ErrCheckpointNotFound      = types.NewError(types.ErrCheckpointNotFound, "checkpoint not found")
	ErrInvalidDefinition       = types.NewError(types.ErrInvalidDefinition, "invalid workflow definition")
)

// ExecutionError is returned by Run when traversal fails. NodeID names the
// node whose logic failed; it is empty for run-level failures such as an
// exhausted iteration budget or a cancelled context.
type ExecutionError struct {
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.NodeID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("Node %s failed: %v", e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }
