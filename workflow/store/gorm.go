package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// CheckpointRow is one row of workflow_checkpoints. Data holds the encoded
// checkpoint.
type CheckpointRow struct {
	Name      string `gorm:"primaryKey;size:255"`
	Workflow  string `gorm:"size:255;index"`
	CreatedAt string `gorm:"size:64"`
	Data      string `gorm:"type:text;not null"`
}

// TableName implements gorm's tabler.
func (CheckpointRow) TableName() string { return "workflow_checkpoints" }

// GormCheckpointStore persists checkpoints in a SQL table.
type GormCheckpointStore struct {
	db *gorm.DB
}

// NewGormCheckpointStore creates a store on db.
func NewGormCheckpointStore(db *gorm.DB) *GormCheckpointStore {
	return &GormCheckpointStore{db: db}
}

// Save implements workflow.CheckpointStore, replacing an existing row.
func (s *GormCheckpointStore) Save(ctx context.Context, cp *workflow.Checkpoint) error {
	data, err := workflow.EncodeCheckpoint(cp)
	if err != nil {
		return err
	}
	row := CheckpointRow{Name: cp.Name, Workflow: cp.Workflow, CreatedAt: cp.CreatedAt, Data: string(data)}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.Name, err)
	}
	return nil
}

// Load implements workflow.CheckpointStore.
func (s *GormCheckpointStore) Load(ctx context.Context, name string) (*workflow.Checkpoint, error) {
	var row CheckpointRow
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrCheckpointNotFound, "Checkpoint not found: %s", name).WithCause(err)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	return workflow.DecodeCheckpoint([]byte(row.Data))
}

// List implements workflow.CheckpointStore.
func (s *GormCheckpointStore) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&CheckpointRow{}).Order("name").Pluck("name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return names, nil
}

// Delete implements workflow.CheckpointStore.
func (s *GormCheckpointStore) Delete(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&CheckpointRow{})
	if res.Error != nil {
		return fmt.Errorf("delete checkpoint %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return types.Errorf(types.ErrCheckpointNotFound, "Checkpoint not found: %s", name)
	}
	return nil
}

// ExecutionRow is one row of agentgraph_executions. JSON columns hold the
// record's metadata and result.
type ExecutionRow struct {
	RunID       string `gorm:"primaryKey;size:64"`
	Workflow    string `gorm:"size:255;index"`
	Status      string `gorm:"size:32;index"`
	StartedAt   string `gorm:"size:64;index"`
	CompletedAt string `gorm:"size:64"`
	Metadata    string `gorm:"type:text"`
	Error       string `gorm:"type:text"`
	Result      string `gorm:"type:text"`
}

// TableName implements gorm's tabler.
func (ExecutionRow) TableName() string { return "agentgraph_executions" }

func rowFromRecord(r *workflow.ExecutionRecord) (ExecutionRow, error) {
	row := ExecutionRow{
		RunID:       r.RunID,
		Workflow:    r.Workflow,
		Status:      r.Status,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Error:       r.Error,
	}
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return row, fmt.Errorf("encode metadata of %s: %w", r.RunID, err)
	}
	row.Metadata = string(meta)
	if r.Result != nil {
		result, err := json.Marshal(r.Result)
		if err != nil {
			return row, fmt.Errorf("encode result of %s: %w", r.RunID, err)
		}
		row.Result = string(result)
	}
	return row, nil
}

func (row ExecutionRow) record() (*workflow.ExecutionRecord, error) {
	r := &workflow.ExecutionRecord{
		RunID:       row.RunID,
		Workflow:    row.Workflow,
		Status:      row.Status,
		StartedAt:   row.StartedAt,
		CompletedAt: row.CompletedAt,
		Error:       row.Error,
		Metadata:    make(map[string]any),
	}
	if row.Metadata != "" {
		if err := json.Unmarshal([]byte(row.Metadata), &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", row.RunID, err)
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]any)
		}
	}
	if row.Result != "" {
		if err := json.Unmarshal([]byte(row.Result), &r.Result); err != nil {
			return nil, fmt.Errorf("decode result of %s: %w", row.RunID, err)
		}
	}
	return r, nil
}

// Transactor runs fn inside one transaction.
type Transactor func(ctx context.Context, fn func(tx *gorm.DB) error) error

// GormExecutionStore implements workflow.ExecutionStore on a SQL table.
type GormExecutionStore struct {
	db *gorm.DB
	tx Transactor
}

// ExecutionStoreOption configures a GormExecutionStore.
type ExecutionStoreOption func(*GormExecutionStore)

// WithTransactor replaces the plain gorm transaction, e.g. with one that
// retries on deadlocks.
func WithTransactor(t Transactor) ExecutionStoreOption {
	return func(s *GormExecutionStore) {
		if t != nil {
			s.tx = t
		}
	}
}

// NewGormExecutionStore creates a store on db.
func NewGormExecutionStore(db *gorm.DB, opts ...ExecutionStoreOption) *GormExecutionStore {
	s := &GormExecutionStore{db: db}
	s.tx = func(ctx context.Context, fn func(tx *gorm.DB) error) error {
		return s.db.WithContext(ctx).Transaction(fn)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create implements workflow.ExecutionStore.
func (s *GormExecutionStore) Create(ctx context.Context, runID, workflowName, status string, metadata map[string]any) (*workflow.ExecutionRecord, error) {
	var out *workflow.ExecutionRecord
	err := s.tx(ctx, func(tx *gorm.DB) error {
		existing, err := findExecution(tx, runID)
		if err != nil {
			return err
		}
		if existing != nil {
			out = existing
			return nil
		}
		r := workflow.NewExecutionRecord(runID, workflowName, status, metadata)
		row, err := rowFromRecord(r)
		if err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create execution %s: %w", runID, err)
		}
		out = r
		return nil
	})
	return out, err
}

// Update implements workflow.ExecutionStore.
func (s *GormExecutionStore) Update(ctx context.Context, runID string, update workflow.ExecutionUpdate) (*workflow.ExecutionRecord, error) {
	var out *workflow.ExecutionRecord
	err := s.tx(ctx, func(tx *gorm.DB) error {
		r, err := findExecution(tx, runID)
		if err != nil {
			return err
		}
		create := r == nil
		if create {
			r = workflow.NewExecutionRecord(runID, workflow.RunStatusUnknown, workflow.RunStatusUnknown, nil)
		}
		update.Apply(r)
		row, err := rowFromRecord(r)
		if err != nil {
			return err
		}
		if create {
			err = tx.Create(&row).Error
		} else {
			err = tx.Model(&ExecutionRow{}).Where("run_id = ?", runID).Select("*").Updates(&row).Error
		}
		if err != nil {
			return fmt.Errorf("update execution %s: %w", runID, err)
		}
		out = r
		return nil
	})
	return out, err
}

// Get implements workflow.ExecutionStore.
func (s *GormExecutionStore) Get(ctx context.Context, runID string) (*workflow.ExecutionRecord, error) {
	r, err := findExecution(s.db.WithContext(ctx), runID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, types.Errorf(types.ErrRunNotFound, "run %s not found", runID)
	}
	return r, nil
}

// List implements workflow.ExecutionStore, newest first.
func (s *GormExecutionStore) List(ctx context.Context, limit int) ([]*workflow.ExecutionRecord, error) {
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ExecutionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	out := make([]*workflow.ExecutionRecord, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// findExecution returns nil without error when runID is unknown.
func findExecution(db *gorm.DB, runID string) (*workflow.ExecutionRecord, error) {
	var row ExecutionRow
	err := db.Where("run_id = ?", runID).Limit(1).Find(&row).Error
	if err != nil {
		return nil, fmt.Errorf("get execution %s: %w", runID, err)
	}
	if row.RunID == "" {
		return nil, nil
	}
	return row.record()
}

// AutoMigrate creates or updates both tables. Deployments normally run the
// SQL migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CheckpointRow{}, &ExecutionRow{})
}
