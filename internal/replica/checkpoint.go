package replica

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ctenopoma/issuer/pkg/errclass"
)

// Checkpointer folds a store's write-ahead log into its primary file.
type Checkpointer interface {
	Checkpoint(ctx context.Context, dbPath string) (CheckpointResult, error)
}

// CheckpointResult mirrors the row returned by PRAGMA wal_checkpoint.
type CheckpointResult struct {
	Busy         bool `json:"busy"`
	LogFrames    int  `json:"log_frames"`
	Checkpointed int  `json:"checkpointed_frames"`
}

// DefaultBusyTimeout bounds how long a checkpoint waits on other connections.
const DefaultBusyTimeout = 5 * time.Second

// SQLiteCheckpointer runs PRAGMA wal_checkpoint(TRUNCATE), which copies every
// WAL frame into the database and truncates the WAL to zero bytes.
type SQLiteCheckpointer struct {
	BusyTimeout time.Duration
}

// Checkpoint opens dbPath and checkpoints it in TRUNCATE mode.
func (c SQLiteCheckpointer) Checkpoint(ctx context.Context, dbPath string) (CheckpointResult, error) {
	var res CheckpointResult

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return res, errclass.ErrCheckpointFailed.Wrap(err, "open "+dbPath)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	timeout := c.BusyTimeout
	if timeout <= 0 {
		timeout = DefaultBusyTimeout
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", timeout.Milliseconds())); err != nil {
		return res, errclass.ErrCheckpointFailed.Wrap(err, "set busy timeout")
	}

	var busy int
	row := db.QueryRowContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	if err := row.Scan(&busy, &res.LogFrames, &res.Checkpointed); err != nil {
		return res, errclass.ErrCheckpointFailed.Wrap(err, dbPath)
	}
	res.Busy = busy != 0
	if res.Busy {
		return res, errclass.ErrCheckpointFailed.WithMessagef("%s: database busy, checkpoint incomplete", dbPath)
	}
	return res, nil
}
