package persistence

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/config"
)

func TestSQLiteMigrationsCreateConstrainedSchema(t *testing.T) {
	ctx := context.Background()
	db, err := NewSQLite(ctx, ":memory:", zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunSQLiteMigrations(ctx, db.DB, zap.NewNop()))
	// idempotent
	require.NoError(t, RunSQLiteMigrations(ctx, db.DB, zap.NewNop()))

	_, err = db.DB.Exec(`INSERT INTO tickets (title, description) VALUES ('a', 'b')`)
	require.NoError(t, err)

	var category, priority, status string
	require.NoError(t, db.DB.QueryRow(`SELECT category, priority, status FROM tickets`).Scan(&category, &priority, &status))
	assert.Equal(t, "general", category)
	assert.Equal(t, "medium", priority)
	assert.Equal(t, "open", status)

	for _, stmt := range []string{
		`INSERT INTO tickets (title, description, category) VALUES ('a', 'b', 'sales')`,
		`INSERT INTO tickets (title, description, priority) VALUES ('a', 'b', 'urgent')`,
		`INSERT INTO tickets (title, description, status) VALUES ('a', 'b', 'pending')`,
		`INSERT INTO tickets (title, description) VALUES (replace(hex(zeroblob(201)), '00', 'x'), 'b')`,
	} {
		_, err := db.DB.Exec(stmt)
		assert.Error(t, err, stmt)
	}
}

func TestNewSQLiteCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tickets.db")

	db, err := NewSQLite(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping(context.Background()))
}

func TestLoadMigrationsSorted(t *testing.T) {
	for _, dir := range []string{"migrations/postgres", "migrations/sqlite"} {
		migrations, err := loadMigrations(dir)
		require.NoError(t, err)
		require.Len(t, migrations, 2)
		assert.Equal(t, "0001_create_tickets.sql", migrations[0].name)
		assert.Equal(t, "0002_create_ticket_history.sql", migrations[1].name)
	}
}

func TestNilHandlesPingError(t *testing.T) {
	var pg *Postgres
	var sq *SQLite
	var rd *Redis

	assert.Error(t, pg.Ping(context.Background()))
	assert.Error(t, sq.Ping(context.Background()))
	assert.Error(t, rd.Ping(context.Background()))
}

func TestOpenStoreSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, config.StorageConfig{Driver: config.StorageDriverSQLite, SQLitePath: ":memory:"}, config.PostgresConfig{}, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Migrate(ctx, zap.NewNop()))
	assert.NoError(t, store.Ping(ctx))

	var n int
	require.NoError(t, store.SQLite.DB.QueryRow(`SELECT COUNT(*) FROM ticket_history`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpenStoreErrors(t *testing.T) {
	ctx := context.Background()
	_, err := OpenStore(ctx, config.StorageConfig{Driver: "mysql"}, config.PostgresConfig{}, zap.NewNop())
	assert.Error(t, err)

	_, err = OpenStore(ctx, config.StorageConfig{Driver: config.StorageDriverPostgres}, config.PostgresConfig{}, zap.NewNop())
	assert.Error(t, err)
}
