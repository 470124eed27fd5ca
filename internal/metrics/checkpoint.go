package metrics

import (
	"context"

	"github.com/BaSui01/agentgraph/workflow"
)

// instrumentedStore counts every checkpoint store call.
type instrumentedStore struct {
	backend string
	next    workflow.CheckpointStore
	c       *Collector
}

// InstrumentCheckpointStore wraps next so its calls show up in
// checkpoint_operations_total under backend.
func (c *Collector) InstrumentCheckpointStore(backend string, next workflow.CheckpointStore) workflow.CheckpointStore {
	return &instrumentedStore{backend: backend, next: next, c: c}
}

func (s *instrumentedStore) Save(ctx context.Context, cp *workflow.Checkpoint) error {
	err := s.next.Save(ctx, cp)
	s.c.RecordCheckpointOperation(s.backend, "save", err)
	return err
}

func (s *instrumentedStore) Load(ctx context.Context, name string) (*workflow.Checkpoint, error) {
	cp, err := s.next.Load(ctx, name)
	s.c.RecordCheckpointOperation(s.backend, "load", err)
	return cp, err
}

func (s *instrumentedStore) List(ctx context.Context) ([]string, error) {
	names, err := s.next.List(ctx)
	s.c.RecordCheckpointOperation(s.backend, "list", err)
	return names, err
}

func (s *instrumentedStore) Delete(ctx context.Context, name string) error {
	err := s.next.Delete(ctx, name)
	s.c.RecordCheckpointOperation(s.backend, "delete", err)
	return err
}
