package migration

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowagent/config"
)

func TestParseDatabaseType(t *testing.T) {
	t.Parallel()
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
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
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

func TestAvailable_EveryDialectShipsTheSameSchema(t *testing.T) {
	t.Parallel()
	tables := []string{"agent_sessions", "agent_actions", "workflow_runs", "workflow_node_runs"}

	for _, dialect := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dialect), func(t *testing.T) {
			files, err := Available(dialect)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, File{Version: 1, Name: "init_schema"}, files[0])
			for i := 1; i < len(files); i++ {
				assert.Greater(t, files[i].Version, files[i-1].Version)
			}

			up, err := fs.ReadFile(migrationsFS, migrationsDir(dialect)+"/000001_init_schema.up.sql")
			require.NoError(t, err)
			down, err := fs.ReadFile(migrationsFS, migrationsDir(dialect)+"/000001_init_schema.down.sql")
			require.NoError(t, err)
			for _, table := range tables {
				assert.Contains(t, string(up), "CREATE TABLE IF NOT EXISTS "+table)
				assert.Contains(t, string(down), "DROP TABLE IF EXISTS "+table)
			}
		})
	}

	_, err := Available("oracle")
	assert.Error(t, err)
}

func TestNew_RejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := New(config.DatabaseConfig{Driver: "oracle"}, nil)
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	info := summarize(2, true, []MigrationStatus{
		{Version: 1, Applied: true},
		{Version: 2, Applied: true, Dirty: true},
		{Version: 3},
	})
	assert.Equal(t, &MigrationInfo{
		CurrentVersion:    2,
		Dirty:             true,
		TotalMigrations:   3,
		AppliedMigrations: 2,
		PendingMigrations: 1,
	}, info)
}

type fakeMigrator struct {
	version  uint
	dirty    bool
	statuses []MigrationStatus
	err      error
	steps    []int
}

func (f *fakeMigrator) Up(context.Context) error   { f.version = 1; return f.err }
func (f *fakeMigrator) Down(context.Context) error { f.version = 0; return f.err }
func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	f.steps = append(f.steps, n)
	return f.err
}
func (f *fakeMigrator) Force(_ context.Context, v int) error { f.version = uint(v); return f.err }
func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, nil
}
func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) { return f.statuses, f.err }
func (f *fakeMigrator) Info(context.Context) (*MigrationInfo, error) {
	return summarize(f.version, f.dirty, f.statuses), nil
}
func (f *fakeMigrator) Close() error { return nil }

func TestCLI(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("up", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewCLI(&fakeMigrator{}, &buf).RunUp(ctx))
		assert.Contains(t, buf.String(), "Migrations complete. Current version: 1")
	})

	t.Run("down dirty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewCLI(&fakeMigrator{version: 1, dirty: true}, &buf).RunDown(ctx))
		assert.Contains(t, buf.String(), "Current version: 0 (dirty)")
	})

	t.Run("steps", func(t *testing.T) {
		var buf bytes.Buffer
		m := &fakeMigrator{}
		cli := NewCLI(m, &buf)
		require.NoError(t, cli.RunSteps(ctx, -2))
		assert.Error(t, cli.RunSteps(ctx, 0))
		assert.Equal(t, []int{-2}, m.steps)
		assert.Contains(t, buf.String(), "Rolling back 2 migration(s)")
	})

	t.Run("status", func(t *testing.T) {
		var buf bytes.Buffer
		m := &fakeMigrator{version: 1, statuses: []MigrationStatus{
			{Version: 1, Name: "init_schema", Applied: true},
			{Version: 2, Name: "add_index"},
		}}
		require.NoError(t, NewCLI(m, &buf).RunStatus(ctx))
		out := buf.String()
		assert.Contains(t, out, "000001   init_schema  applied")
		assert.Contains(t, out, "000002   add_index    pending")
		assert.Contains(t, out, "Total: 2, Applied: 1, Pending: 1")
	})

	t.Run("errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		var buf bytes.Buffer
		assert.ErrorIs(t, NewCLI(&fakeMigrator{err: boom}, &buf).RunUp(ctx), boom)
		assert.ErrorIs(t, NewCLI(&fakeMigrator{err: boom}, &buf).RunStatus(ctx), boom)
	})
}

func TestMigrator_SQLiteRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("requires cgo sqlite3 driver")
	}

	cfg := config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "migrate.db")}
	m, err := New(cfg, nil)
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx), "no change is not an error")
	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Zero(t, info.PendingMigrations)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
}
