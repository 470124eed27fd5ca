package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BaSui01/agentgraph/types"
)

// Checkpoint is a durable snapshot of a run: the state plus every node
// status.
type Checkpoint struct {
	Name         string                `json:"name"`
	Workflow     string                `json:"workflow"`
	CreatedAt    string                `json:"created_at"`
	State        map[string]any        `json:"state"`
	NodeStatuses map[string]NodeStatus `json:"node_statuses"`
}

// CreateCheckpoint snapshots state and the current node statuses. It does
// no I/O.
func (g *Graph) CreateCheckpoint(name string, state *State) *Checkpoint {
	statuses := make(map[string]NodeStatus)
	for _, n := range g.Nodes() {
		statuses[n.ID] = n.Status()
	}
	data := make(map[string]any)
	if state != nil {
		data = jsonSnapshot(state)
	}
	return &Checkpoint{
		Name:         name,
		Workflow:     g.name,
		CreatedAt:    Timestamp(),
		State:        data,
		NodeStatuses: statuses,
	}
}

// jsonSnapshot copies the state in its JSON shape so a checkpoint compares
// equal to itself after a save and load. Values that cannot be encoded fall
// back to a structural copy.
func jsonSnapshot(state *State) map[string]any {
	snap := state.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		return snap
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return snap
	}
	normalizeJSON(out)
	return out
}

// SaveCheckpoint creates a checkpoint and persists it through store.
func (g *Graph) SaveCheckpoint(ctx context.Context, store CheckpointStore, name string, state *State) (*Checkpoint, error) {
	cp := g.CreateCheckpoint(name, state)
	if err := store.Save(ctx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

// LoadCheckpoint reads a checkpoint from store.
func (g *Graph) LoadCheckpoint(ctx context.Context, store CheckpointStore, name string) (*Checkpoint, error) {
	return store.Load(ctx, name)
}

// CheckpointStore persists checkpoints by name.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, name string) (*Checkpoint, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}

// EncodeCheckpoint renders a checkpoint as indented JSON.
func EncodeCheckpoint(cp *Checkpoint) ([]byte, error) {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint %s: %w", cp.Name, err)
	}
	return data, nil
}

// DecodeCheckpoint parses a checkpoint. Integral numbers in the state come
// back as int, others as float64.
func DecodeCheckpoint(data []byte) (*Checkpoint, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var cp Checkpoint
	if err := dec.Decode(&cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.State == nil {
		cp.State = make(map[string]any)
	}
	normalizeJSON(cp.State)
	if cp.NodeStatuses == nil {
		cp.NodeStatuses = make(map[string]NodeStatus)
	}
	return &cp, nil
}

// FileCheckpointStore keeps checkpoint_{name}.json files in a directory.
type FileCheckpointStore struct {
	dir string
}

// NewFileCheckpointStore creates a store rooted at dir.
func NewFileCheckpointStore(dir string) *FileCheckpointStore {
	return &FileCheckpointStore{dir: dir}
}

// Path returns the file used for name.
func (s *FileCheckpointStore) Path(name string) string {
	return filepath.Join(s.dir, "checkpoint_"+name+".json")
}

// ValidateCheckpointName rejects names that would resolve outside the
// checkpoint directory.
func ValidateCheckpointName(name string) error {
	if name == "" || name == "." || strings.Contains(name, "..") ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return types.Errorf(types.ErrInvalidConfig, "invalid checkpoint name: %q", name)
	}
	return nil
}

// Save writes the checkpoint, creating the directory when needed.
func (s *FileCheckpointStore) Save(_ context.Context, cp *Checkpoint) error {
	if err := ValidateCheckpointName(cp.Name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	data, err := EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path(cp.Name), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

// Load reads the checkpoint saved under name.
func (s *FileCheckpointStore) Load(_ context.Context, name string) (*Checkpoint, error) {
	if err := ValidateCheckpointName(name); err != nil {
		return nil, err
	}
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.Errorf(types.ErrCheckpointNotFound, "Checkpoint not found: %s", path).WithCause(err)
		}
		return nil, fmt.Errorf("read checkpoint %s: %w", name, err)
	}
	return DecodeCheckpoint(data)
}

// List returns the names of the stored checkpoints, sorted.
func (s *FileCheckpointStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, "checkpoint_") || !strings.HasSuffix(n, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(strings.TrimPrefix(n, "checkpoint_"), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the checkpoint saved under name.
func (s *FileCheckpointStore) Delete(_ context.Context, name string) error {
	if err := ValidateCheckpointName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.Errorf(types.ErrCheckpointNotFound, "Checkpoint not found: %s", name).WithCause(err)
		}
		return fmt.Errorf("delete checkpoint %s: %w", name, err)
	}
	return nil
}
