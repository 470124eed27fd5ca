package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/agentgraph/types"
)

// Run statuses recorded in an ExecutionStore.
const (
	RunStatusQueued  = "queued"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusError   = "error"
	RunStatusUnknown = "unknown"
)

// ExecutionRecord tracks one executor run.
type ExecutionRecord struct {
	RunID       string         `json:"run_id"`
	Workflow    string         `json:"workflow"`
	Status      string         `json:"status"`
	StartedAt   string         `json:"started_at"`
	CompletedAt string         `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata"`
	Error       string         `json:"error,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

// ExecutionUpdate lists the fields to change. Zero values are left alone;
// Metadata is merged.
type ExecutionUpdate struct {
	Status    string
	Error     string
	Result    map[string]any
	Metadata  map[string]any
	Completed bool
}

// Apply merges u into r.
func (u ExecutionUpdate) Apply(r *ExecutionRecord) {
	if u.Status != "" {
		r.Status = u.Status
	}
	if u.Error != "" {
		r.Error = u.Error
	}
	if u.Result != nil {
		r.Result = u.Result
	}
	if len(u.Metadata) > 0 {
		if r.Metadata == nil {
			r.Metadata = make(map[string]any)
		}
		for k, v := range u.Metadata {
			r.Metadata[k] = v
		}
	}
	if u.Completed {
		r.CompletedAt = Timestamp()
	}
}

// ExecutionStore records executor runs.
type ExecutionStore interface {
	// Create returns the existing record when runID is already known.
	Create(ctx context.Context, runID, workflow, status string, metadata map[string]any) (*ExecutionRecord, error)
	// Update creates an unknown record before applying the update.
	Update(ctx context.Context, runID string, update ExecutionUpdate) (*ExecutionRecord, error)
	Get(ctx context.Context, runID string) (*ExecutionRecord, error)
	List(ctx context.Context, limit int) ([]*ExecutionRecord, error)
}

// NewRunID generates a random run id.
func NewRunID() string { return uuid.NewString() }

// TimestampLayout is RFC 3339 with fixed-width nanoseconds, so timestamps
// sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Timestamp formats the current time the way records and checkpoints do.
func Timestamp() string { return time.Now().UTC().Format(TimestampLayout) }

// NewExecutionRecord creates a record started now.
func NewExecutionRecord(runID, workflow, status string, metadata map[string]any) *ExecutionRecord {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &ExecutionRecord{
		RunID:     runID,
		Workflow:  workflow,
		Status:    status,
		StartedAt: Timestamp(),
		Metadata:  metadata,
	}
}

// MemoryExecutionStore keeps records in memory and optionally mirrors each
// one to execution_{run_id}.json under a directory.
type MemoryExecutionStore struct {
	mu      sync.RWMutex
	records map[string]*ExecutionRecord
	dir     string
}

// NewMemoryExecutionStore creates a store. dir may be empty to disable
// file persistence.
func NewMemoryExecutionStore(dir string) *MemoryExecutionStore {
	return &MemoryExecutionStore{records: make(map[string]*ExecutionRecord), dir: dir}
}

// Create implements ExecutionStore.
func (s *MemoryExecutionStore) Create(_ context.Context, runID, workflow, status string, metadata map[string]any) (*ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[runID]; ok {
		return cloneRecord(r), nil
	}
	r := NewExecutionRecord(runID, workflow, status, metadata)
	s.records[runID] = r
	if err := s.persist(r); err != nil {
		return nil, err
	}
	return cloneRecord(r), nil
}

// Update implements ExecutionStore.
func (s *MemoryExecutionStore) Update(_ context.Context, runID string, update ExecutionUpdate) (*ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[runID]
	if !ok {
		r = NewExecutionRecord(runID, RunStatusUnknown, RunStatusUnknown, nil)
		s.records[runID] = r
	}
	update.Apply(r)
	if err := s.persist(r); err != nil {
		return nil, err
	}
	return cloneRecord(r), nil
}

// Get implements ExecutionStore.
func (s *MemoryExecutionStore) Get(_ context.Context, runID string) (*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[runID]
	if !ok {
		return nil, types.Errorf(types.ErrRunNotFound, "run %s not found", runID)
	}
	return cloneRecord(r), nil
}

// List implements ExecutionStore, newest first.
func (s *MemoryExecutionStore) List(_ context.Context, limit int) ([]*ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ExecutionRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt > out[j].StartedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryExecutionStore) persist(r *ExecutionRecord) error {
	if s.dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create execution dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode execution %s: %w", r.RunID, err)
	}
	path := filepath.Join(s.dir, "execution_"+r.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write execution %s: %w", r.RunID, err)
	}
	return nil
}

func cloneRecord(r *ExecutionRecord) *ExecutionRecord {
	c := *r
	c.Metadata, _ = DeepCopy(r.Metadata).(map[string]any)
	if r.Result != nil {
		c.Result, _ = DeepCopy(r.Result).(map[string]any)
	}
	return &c
}
