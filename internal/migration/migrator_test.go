package migration

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appconfig "github.com/BaSui01/pathfinder/config"
)

func TestParseDatabaseType(t *testing.T) {
	tests := []struct {
		input   string
		want    DatabaseType
		wantErr bool
	}{
		{"postgres", DatabaseTypePostgres, false},
		{"PostgreSQL", DatabaseTypePostgres, false},
		{"pg", DatabaseTypePostgres, false},
		{"mysql", DatabaseTypeMySQL, false},
		{"mariadb", DatabaseTypeMySQL, false},
		{"sqlite", DatabaseTypeSQLite, false},
		{"sqlite3", DatabaseTypeSQLite, false},
		{"mongo", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDatabaseType(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://pf:secret@db:5432/pathfinder?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "pathfinder", "pf", "secret", "disable"))
	assert.Equal(t,
		"postgres://pf:secret@db:5432/pathfinder?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "pathfinder", "pf", "secret", ""))
	assert.Equal(t,
		"pf:secret@tcp(db:3306)/pathfinder?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "pathfinder", "pf", "secret", ""))
	assert.Equal(t,
		"file:/var/lib/pathfinder/risk.db?mode=rwc&_foreign_keys=on",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "/var/lib/pathfinder/risk.db", "", "", ""))
	assert.Empty(t, BuildDatabaseURL("oracle", "", 0, "", "", "", ""))
}

func TestGetMigrationsPath(t *testing.T) {
	assert.Equal(t, "migrations/postgres", GetMigrationsPath(DatabaseTypePostgres))
	assert.Equal(t, "migrations/sqlite", GetMigrationsPath(DatabaseTypeSQLite))
}

func TestAvailableMigrations(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		t.Run(string(dbType), func(t *testing.T) {
			files, err := availableMigrations(dbType)
			require.NoError(t, err)
			require.NotEmpty(t, files)
			assert.Equal(t, uint(1), files[0].version)
			assert.Equal(t, "create_risk_log", files[0].name)
			for i := 1; i < len(files); i++ {
				assert.Greater(t, files[i].version, files[i-1].version)
			}
		})
	}

	_, err := availableMigrations("oracle")
	assert.Error(t, err)
}

func TestEmbeddedMigrationsCreateRiskLog(t *testing.T) {
	for _, dbType := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		up, err := migrationsFS.ReadFile(GetMigrationsPath(dbType) + "/000001_create_risk_log.up.sql")
		require.NoError(t, err)
		sql := string(up)
		for _, col := range []string{"venue_id", "venue_name", "risk_type", "description", "severity", "logged_at", "query_context"} {
			assert.Contains(t, sql, col, "%s missing column %s", dbType, col)
		}
		assert.Contains(t, sql, "DEFAULT 'medium'")

		down, err := migrationsFS.ReadFile(GetMigrationsPath(dbType) + "/000001_create_risk_log.down.sql")
		require.NoError(t, err)
		assert.Contains(t, string(down), "DROP TABLE IF EXISTS risk_log")
	}
}

func TestNewMigrator_InvalidConfig(t *testing.T) {
	_, err := NewMigrator(nil)
	assert.ErrorContains(t, err, "config is required")

	_, err = NewMigrator(&Config{DatabaseType: DatabaseTypeSQLite})
	assert.ErrorContains(t, err, "database URL is required")

	_, err = NewMigrator(&Config{DatabaseType: "oracle", DatabaseURL: "x"})
	assert.ErrorContains(t, err, "unsupported database type")
}

func TestNewMigratorFromConfig_Errors(t *testing.T) {
	_, err := NewMigratorFromConfig(nil, nil)
	assert.Error(t, err)

	cfg := appconfig.DefaultConfig()
	cfg.Database.Driver = "oracle"
	_, err = NewMigratorFromConfig(cfg, nil)
	assert.ErrorContains(t, err, "invalid database type")

	_, err = NewMigratorFromURL("mongo", "mongodb://localhost", nil)
	assert.Error(t, err)
}

// newSQLiteMigrator 需要 cgo 版 sqlite3 驱动，不可用时跳过
func newSQLiteMigrator(t *testing.T) *DefaultMigrator {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping sqlite migration test in short mode")
	}
	dbPath := filepath.Join(t.TempDir(), "risk.db")
	m, err := NewMigrator(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  BuildDatabaseURL(DatabaseTypeSQLite, "", 0, dbPath, "", "", ""),
		Logger:       zap.NewNop(),
	})
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite3 driver requires cgo")
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMigrator_SQLiteUpDown(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))
	require.NoError(t, m.Up(ctx))

	info, err := m.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), info.CurrentVersion)
	assert.Equal(t, info.TotalMigrations, info.AppliedMigrations)
	assert.Zero(t, info.PendingMigrations)

	_, err = m.db.Exec(`INSERT INTO risk_log (venue_id, risk_type, description) VALUES ('v1', 'weather', 'patio closes in rain')`)
	require.NoError(t, err)
	var severity string
	require.NoError(t, m.db.QueryRow(`SELECT severity FROM risk_log WHERE venue_id = 'v1'`).Scan(&severity))
	assert.Equal(t, "medium", severity)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

// =============================================================================
// CLI
// =============================================================================

type fakeMigrator struct {
	version uint
	dirty   bool
	total   int
	err     error
}

func (f *fakeMigrator) Up(context.Context) error {
	if f.err != nil {
		return f.err
	}
	f.version = uint(f.total)
	return nil
}

func (f *fakeMigrator) Down(context.Context) error {
	if f.version > 0 {
		f.version--
	}
	return f.err
}

func (f *fakeMigrator) DownAll(context.Context) error {
	f.version = 0
	return f.err
}

func (f *fakeMigrator) Steps(_ context.Context, n int) error {
	f.version = uint(int(f.version) + n)
	return f.err
}

func (f *fakeMigrator) Goto(_ context.Context, v uint) error {
	f.version = v
	return f.err
}

func (f *fakeMigrator) Force(_ context.Context, v int) error {
	f.version = uint(v)
	f.dirty = false
	return f.err
}

func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, nil
}

func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) {
	out := make([]MigrationStatus, f.total)
	for i := range out {
		v := uint(i + 1)
		out[i] = MigrationStatus{Version: v, Name: "create_risk_log", Applied: v <= f.version, Dirty: f.dirty && v == f.version}
	}
	return out, nil
}

func (f *fakeMigrator) Info(context.Context) (*MigrationInfo, error) {
	applied := int(f.version)
	return &MigrationInfo{
		CurrentVersion:    f.version,
		Dirty:             f.dirty,
		TotalMigrations:   f.total,
		AppliedMigrations: applied,
		PendingMigrations: f.total - applied,
	}, nil
}

func (f *fakeMigrator) Close() error { return nil }

func runCLI(t *testing.T, m Migrator, fn func(*CLI) error) string {
	t.Helper()
	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)
	require.NoError(t, fn(cli))
	return buf.String()
}

func TestCLI_Version(t *testing.T) {
	ctx := context.Background()
	out := runCLI(t, &fakeMigrator{total: 1}, func(c *CLI) error { return c.RunVersion(ctx) })
	assert.Contains(t, out, "No migrations applied yet")

	out = runCLI(t, &fakeMigrator{total: 1, version: 1, dirty: true}, func(c *CLI) error { return c.RunVersion(ctx) })
	assert.Equal(t, "Current version: 1 (dirty)\n", out)
}

func TestCLI_UpAndStatus(t *testing.T) {
	ctx := context.Background()
	m := &fakeMigrator{total: 1}

	out := runCLI(t, m, func(c *CLI) error { return c.RunUp(ctx) })
	assert.Contains(t, out, "Migrations complete. Current version: 1")

	out = runCLI(t, m, func(c *CLI) error { return c.RunStatus(ctx) })
	assert.Contains(t, out, "000001")
	assert.Contains(t, out, "Applied")
	assert.Contains(t, out, "Pending: 0")
}

func TestCLI_DownAndSteps(t *testing.T) {
	ctx := context.Background()
	m := &fakeMigrator{total: 2, version: 2}

	out := runCLI(t, m, func(c *CLI) error { return c.RunDown(ctx) })
	assert.Contains(t, out, "Rollback complete. Current version: 1")

	out = runCLI(t, m, func(c *CLI) error { return c.RunSteps(ctx, 1) })
	assert.Contains(t, out, "Applying 1 migration(s)")
	assert.Equal(t, uint(2), m.version)

	out = runCLI(t, m, func(c *CLI) error { return c.RunDownAll(ctx) })
	assert.Contains(t, out, "All migrations rolled back")
}

func TestCLI_PropagatesErrors(t *testing.T) {
	m := &fakeMigrator{total: 1, err: errors.New("locked")}
	cli := NewCLI(m)
	cli.SetOutput(&bytes.Buffer{})
	assert.EqualError(t, cli.RunUp(context.Background()), "locked")
}
