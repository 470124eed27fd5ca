package workflow

import (
	"context"

	"go.uber.org/zap"
)

// ReenterOnce returns a Visitor that sends the flow back through nodeID a
// single time. When nodeID is reached after it completed and triggerKey is
// present in state, the node is reset to pending before the visit.
func ReenterOnce(nodeID, triggerKey string) Visitor {
	flag := "_" + nodeID + "_reentry_done"
	return func(ctx context.Context, g *Graph, id string, state *State, next VisitFunc) error {
		if id == nodeID {
			if node, ok := g.GetNode(id); ok && node.Status() == StatusCompleted {
				reset := false
				state.Update(func(d map[string]any) {
					if _, ok := d[triggerKey]; !ok {
						return
					}
					if _, done := d[flag]; done {
						return
					}
					d[flag] = true
					reset = true
				})
				if reset {
					g.logger.Debug("re-entering completed node", zap.String("node_id", id))
					node.Reset()
				}
			}
		}
		return next(ctx, id, state)
	}
}
