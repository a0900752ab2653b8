package replica_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctenopoma/issuer/internal/replica"
)

func openWAL(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode=WAL").Scan(&mode))
	require.Equal(t, "wal", mode)
	return db
}

func TestSQLiteCheckpointer_TruncatesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.db")
	db := openWAL(t, path)
	defer db.Close()

	_, err := db.Exec("CREATE TABLE issues (id INTEGER PRIMARY KEY, title TEXT)")
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := db.Exec("INSERT INTO issues (title) VALUES (?)", "issue")
		require.NoError(t, err)
	}
	info, err := os.Stat(path + "-wal")
	require.NoError(t, err)
	require.Positive(t, info.Size())

	res, err := replica.SQLiteCheckpointer{}.Checkpoint(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, res.Busy)

	info, err = os.Stat(path + "-wal")
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

// Stage, write through SQLite, checkpoint, sync back: the shared store holds
// the new rows and the local cache is emptied.
func TestRoundTrip_SQLite(t *testing.T) {
	shared, local := dirs(t)
	seed := openWAL(t, filepath.Join(shared, "data.db"))
	_, err := seed.Exec("CREATE TABLE issues (id INTEGER PRIMARY KEY, title TEXT)")
	require.NoError(t, err)
	require.NoError(t, seed.Close())

	s := replica.New("data.db", replica.SQLiteCheckpointer{}, quietLogger())
	require.NoError(t, s.Stage(shared, local))

	db := openWAL(t, s.StorePath(local))
	_, err = db.Exec("INSERT INTO issues (title) VALUES ('from replica')")
	require.NoError(t, err)

	require.NoError(t, s.Checkpoint(context.Background(), local))
	require.NoError(t, db.Close())
	require.NoError(t, s.SyncBack(local, shared))

	for _, name := range s.Leftovers(local) {
		assert.Equal(t, readFile(t, local, name), readFile(t, shared, name), name)
	}

	require.NoError(t, s.Discard(shared, local))
	assert.Empty(t, s.Leftovers(local))

	check, err := sql.Open("sqlite", filepath.Join(shared, "data.db"))
	require.NoError(t, err)
	defer check.Close()
	var n int
	require.NoError(t, check.QueryRow("SELECT COUNT(*) FROM issues").Scan(&n))
	assert.Equal(t, 1, n)
}
