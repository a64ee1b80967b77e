package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestConfig_DataSource(t *testing.T) {
	dsn, err := Config{Driver: DriverSQLite, Path: "data/workflow.db"}.dataSource()
	require.NoError(t, err)
	assert.Contains(t, dsn, "file:data/workflow.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_journal_mode=WAL")

	dsn, err = Config{Driver: DriverSQLite, Path: ":memory:"}.dataSource()
	require.NoError(t, err)
	assert.NotContains(t, dsn, "WAL")

	dsn, err = Config{Driver: DriverPostgres, DSN: "postgres://erp@localhost/erp"}.dataSource()
	require.NoError(t, err)
	assert.Equal(t, "postgres://erp@localhost/erp", dsn)

	_, err = Config{Driver: DriverPostgres}.dataSource()
	assert.Error(t, err)

	_, err = Config{Driver: "mysql"}.dataSource()
	assert.Error(t, err)
}

func TestMigrator_RunEmbeddedSQLite(t *testing.T) {
	db, err := Open(Config{Driver: DriverSQLite, Path: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	m := NewMigrator(db, DriverSQLite, zap.NewNop())
	require.NoError(t, m.Run(context.Background()))
	// Second run is a no-op.
	require.NoError(t, m.Run(context.Background()))

	for _, table := range []string{"workflow_definitions", "workflow_steps", "workflow_step_approvers",
		"document_workflows", "workflow_tasks", "workflow_logs", "notifications", "users",
		"vouchers", "purchase_orders", "requisitions", "sales_orders"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, table)
	}
}

func TestLoadMigrations_SortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":  {Data: []byte("SELECT 1;")},
		"002_second.sql": {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "second", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)
}

func TestLoadMigrations_RejectsBadName(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{"init.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)
}
