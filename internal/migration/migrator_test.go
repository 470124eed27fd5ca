package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/BaSui01/agentgraph/internal/database"
	"github.com/BaSui01/agentgraph/workflow"
	"github.com/BaSui01/agentgraph/workflow/store"
)

func newSQLiteMigrator(t *testing.T) (*DefaultMigrator, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentgraph.db")
	m, err := NewMigrator(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  BuildDatabaseURL(DatabaseTypeSQLite, "", 0, path, "", "", ""),
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, path
}

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input    string
		expected DatabaseType
		wantErr  bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"postgresql", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"", DatabaseTypeSQLite, false},
		{"POSTGRES", DatabaseTypePostgres, false},
		{"oracle", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/graphs?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "graphs", "u", "p", ""))
	assert.Equal(t, "postgres://u:p@db:5432/graphs?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "graphs", "u", "p", "require"))
	assert.Equal(t, "u:p@tcp(db:3306)/graphs?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "graphs", "u", "p", ""))
	assert.Equal(t, "/tmp/a.db?_pragma=foreign_keys(1)",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "/tmp/a.db", "", "", ""))
	assert.Empty(t, BuildDatabaseURL("oracle", "", 0, "", "", "", ""))
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestAvailableMigrations(t *testing.T) {
	for _, dt := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		files, err := availableMigrations(dt)
		require.NoError(t, err, dt)
		require.Len(t, files, 2, dt)
		assert.Equal(t, uint(1), files[0].version)
		assert.Equal(t, "create_workflow_tables", files[0].name)
		assert.Equal(t, uint(2), files[1].version)
		assert.Equal(t, "add_execution_indexes", files[1].name)
	}
}

func TestMigrator_SQLite_Lifecycle(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), info.CurrentVersion)
	assert.Equal(t, 2, info.AppliedMigrations)
	assert.Zero(t, info.PendingMigrations)

	// Up again is a no-op.
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	require.NoError(t, m.Steps(ctx, 1))
	require.NoError(t, m.Goto(ctx, 1))
	require.NoError(t, m.DownAll(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
}

func TestMigrator_SchemaServesStores(t *testing.T) {
	m, path := newSQLiteMigrator(t)
	ctx := context.Background()
	require.NoError(t, m.Up(ctx))

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	require.NoError(t, err)

	executions := store.NewGormExecutionStore(db)
	_, err = executions.Create(ctx, "run-1", "pipeline", workflow.RunStatusRunning, map[string]any{"source": "test"})
	require.NoError(t, err)
	rec, err := executions.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "pipeline", rec.Workflow)
	assert.Equal(t, "test", rec.Metadata["source"])

	checkpoints := store.NewGormCheckpointStore(db)
	require.NoError(t, checkpoints.Save(ctx, &workflow.Checkpoint{
		Name:         "cp",
		Workflow:     "pipeline",
		CreatedAt:    workflow.Timestamp(),
		State:        map[string]any{"input": "x"},
		NodeStatuses: map[string]workflow.NodeStatus{"a": workflow.StatusCompleted},
	}))
	names, err := checkpoints.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cp"}, names)
}

func TestNewMigratorFromConfig_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.db")
	m, err := NewMigratorFromConfig(database.Config{Driver: "sqlite", Name: path}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer m.Close()
	require.NoError(t, m.Up(context.Background()))

	_, err = NewMigratorFromConfig(database.Config{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestCLI_Run(t *testing.T) {
	m, _ := newSQLiteMigrator(t)
	cli := NewCLI(m)
	var out bytes.Buffer
	cli.SetOutput(&out)
	ctx := context.Background()

	require.NoError(t, cli.Run(ctx, "version", nil))
	assert.Contains(t, out.String(), "No migrations applied yet.")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "up", nil))
	assert.Contains(t, out.String(), "Migrations complete. Current version: 2")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "status", nil))
	assert.Contains(t, out.String(), "create_workflow_tables")
	assert.Contains(t, out.String(), "Total: 2, Applied: 2, Pending: 0")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "steps", []string{"-1"}))
	assert.Contains(t, out.String(), "Rolling back 1 migration(s)...")

	out.Reset()
	require.NoError(t, cli.Run(ctx, "info", nil))
	assert.Contains(t, out.String(), "Pending Migrations: 1")

	assert.Error(t, cli.Run(ctx, "steps", nil))
	assert.Error(t, cli.Run(ctx, "goto", []string{"x"}))
	assert.Error(t, cli.Run(ctx, "sideways", nil))
}
