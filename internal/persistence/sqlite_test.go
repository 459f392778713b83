package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "desk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	require.NoError(t, RunSQLiteMigrations(db, logger))
	require.NoError(t, RunSQLiteMigrations(db, logger))

	for _, table := range []string{"tickets", "mail_config", "scheduler_config", "operators"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		require.NoError(t, err, table)
	}

	var version int
	require.NoError(t, db.QueryRow("SELECT version FROM schema_migrations").Scan(&version))
	require.EqualValues(t, LatestMigrationVersion, version)
}

func TestSQLiteMailConfigAllowsOneActiveRow(t *testing.T) {
	t.Parallel()

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "desk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, RunSQLiteMigrations(db, zap.NewNop()))

	now := time.Now().UTC()
	const insert = `INSERT INTO mail_config (imap_host, is_active, created_at, updated_at) VALUES (?, ?, ?, ?)`
	_, err = db.Exec(insert, "imap.one", 1, now, now)
	require.NoError(t, err)
	_, err = db.Exec(insert, "imap.two", 1, now, now)
	require.Error(t, err)

	_, err = db.Exec(insert, "imap.old", 0, now, now)
	require.NoError(t, err)
	_, err = db.Exec(insert, "imap.older", 0, now, now)
	require.NoError(t, err)

	var active int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM mail_config WHERE is_active`).Scan(&active))
	require.Equal(t, 1, active)
}
