package lock

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/fsutil"
	"github.com/ctenopoma/issuer/pkg/logging"
	"github.com/ctenopoma/issuer/pkg/model"
)

// Store reads and writes the lock record at a fixed path. It applies no
// business rules.
type Store struct {
	path string
	log  *logging.Logger
}

// NewStore creates a store for the lock file at path.
func NewStore(path string, log *logging.Logger) *Store {
	return &Store{
		path: path,
		log:  logging.OrGlobal(log).WithFields(map[string]any{"lock_path": path}),
	}
}

// Path returns the lock file path.
func (s *Store) Path() string {
	return s.path
}

// Read returns the current record. It reports false when the file is
// missing or its content is not a well-formed record.
func (s *Store) Read() (*model.LockRecord, bool) {
	rec, err := s.readRaw()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.WarnErr("lock file unreadable, treating as absent", err)
		}
		return nil, false
	}
	return rec, true
}

// readRaw distinguishes a missing file from a corrupt one.
func (s *Store) readRaw() (*model.LockRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return model.ParseLockRecord(data)
}

// Write atomically replaces the lock file with a record for owner at the given time.
func (s *Store) Write(owner string, at time.Time) error {
	rec := model.LockRecord{Owner: owner, AcquiredAt: at.Truncate(time.Second)}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errclass.ErrLockWrite.Wrap(err, "marshal lock")
	}
	if err := fsutil.AtomicWrite(s.path, data, 0644); err != nil {
		return errclass.ErrLockWrite.Wrap(err, s.path)
	}
	return nil
}

// Delete removes the lock file. A missing file is fine; other failures are
// logged and swallowed so cleanup can continue.
func (s *Store) Delete() {
	removed, err := fsutil.RemoveIfExists(s.path)
	if err != nil {
		s.log.WarnErr("failed to delete lock file", err)
		return
	}
	if removed {
		s.log.Debug("lock file deleted")
	}
}
