package replica

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/ctenopoma/issuer/internal/integrity"
	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/fsutil"
	"github.com/ctenopoma/issuer/pkg/logging"
	"github.com/ctenopoma/issuer/pkg/metrics"
	"github.com/ctenopoma/issuer/pkg/model"
	"github.com/ctenopoma/issuer/pkg/pathutil"
)

// GuardFile is the advisory lock file kept in the local cache directory.
const GuardFile = ".replica.lock"

// unsyncedSuffix marks replica files set aside because they differed from
// the shared store when a new session staged over them.
const unsyncedSuffix = ".unsynced-"

// Operation names used in logs and metrics.
const (
	OpStage      = "stage"
	OpCheckpoint = "checkpoint"
	OpSyncBack   = "sync_back"
	OpDiscard    = "discard"
)

// Synchronizer copies one store between the shared root and a local cache.
type Synchronizer struct {
	primary      string
	checkpointer Checkpointer
	log          *logging.Logger
	metrics      *metrics.Registry

	mu     sync.Mutex
	guard  *flock.Flock
	staged bool
}

// New creates a synchronizer for the store whose primary file is named primary.
func New(primary string, cp Checkpointer, log *logging.Logger) *Synchronizer {
	if cp == nil {
		cp = SQLiteCheckpointer{}
	}
	return &Synchronizer{
		primary:      primary,
		checkpointer: cp,
		log:          logging.OrGlobal(log).WithFields(map[string]any{"component": "replica", "store": primary}),
	}
}

// WithMetrics records operation results into r.
func (s *Synchronizer) WithMetrics(r *metrics.Registry) *Synchronizer {
	s.metrics = r
	return s
}

// StorePath returns the path of the primary file inside dir.
func (s *Synchronizer) StorePath(dir string) string {
	return filepath.Join(dir, s.primary)
}

// GuardPath returns the path of the cache guard inside localDir.
func GuardPath(localDir string) string {
	return filepath.Join(localDir, GuardFile)
}

// Staged reports whether this synchronizer currently owns a staged replica.
func (s *Synchronizer) Staged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

// Stage copies the store from sharedRoot into localDir. Side files and the
// primary may be missing; a fresh store has none of them. Replica files left
// in localDir by an earlier run are removed when they match the shared store
// and renamed aside otherwise, so unsynced edits survive.
func (s *Synchronizer) Stage(sharedRoot, localDir string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.record(OpStage, err) }()

	if s.staged {
		return errclass.ErrReplicaBusy.WithMessage("replica already staged by this session")
	}
	if err := checkDirs(sharedRoot, localDir); err != nil {
		return err
	}
	if err := os.MkdirAll(localDir, 0755); err != nil {
		return fmt.Errorf("create local dir: %w", err)
	}

	guard := flock.New(GuardPath(localDir))
	locked, err := guard.TryLock()
	if err != nil {
		return fmt.Errorf("lock local cache: %w", err)
	}
	if !locked {
		return errclass.ErrReplicaBusy.WithMessagef("local cache %s is in use by another instance", localDir)
	}

	if err := s.clearLeftovers(sharedRoot, localDir); err != nil {
		guard.Unlock()
		return fmt.Errorf("remove stale replica: %w", err)
	}

	copied := 0
	for _, name := range model.StoreFiles(s.primary) {
		src := filepath.Join(sharedRoot, name)
		if !fsutil.Exists(src) {
			continue
		}
		if err := fsutil.AtomicCopy(src, filepath.Join(localDir, name)); err != nil {
			s.removeLocal(localDir)
			guard.Unlock()
			return fmt.Errorf("stage %s: %w", name, err)
		}
		copied++
	}

	s.guard = guard
	s.staged = true
	s.log.Info("replica staged", map[string]any{"local_dir": localDir, "files": copied})
	return nil
}

// Checkpoint folds the local WAL into the local primary. A missing primary
// means the store was never created and there is nothing to fold.
func (s *Synchronizer) Checkpoint(ctx context.Context, localDir string) (err error) {
	defer func() { s.record(OpCheckpoint, err) }()

	path := s.StorePath(localDir)
	if !fsutil.Exists(path) {
		return nil
	}
	res, err := s.checkpointer.Checkpoint(ctx, path)
	if err != nil {
		return err
	}
	s.log.Debug("replica checkpointed", map[string]any{
		"log_frames":          res.LogFrames,
		"checkpointed_frames": res.Checkpointed,
	})
	return nil
}

// SyncBack copies the local store over the shared one. Each file is replaced
// atomically; shared side files with no local counterpart are removed so the
// shared set ends up matching the local set. The first failure stops the
// sync and is returned.
func (s *Synchronizer) SyncBack(localDir, sharedRoot string) (err error) {
	defer func() { s.record(OpSyncBack, err) }()

	if !fsutil.Exists(s.StorePath(localDir)) {
		s.log.Debug("no local primary, nothing to sync back")
		return nil
	}

	for _, name := range model.StoreFiles(s.primary) {
		local := filepath.Join(localDir, name)
		shared := filepath.Join(sharedRoot, name)
		if fsutil.Exists(local) {
			if err := fsutil.AtomicCopy(local, shared); err != nil {
				return errclass.ErrSyncBackFailed.Wrap(err, name)
			}
			continue
		}
		if _, err := fsutil.RemoveIfExists(shared); err != nil {
			return errclass.ErrSyncBackFailed.Wrap(err, "remove stale "+name)
		}
	}

	if err := verifyCopy(localDir, sharedRoot, model.StoreFiles(s.primary)); err != nil {
		return err
	}

	s.log.Info("replica synced back", map[string]any{"shared_root": sharedRoot})
	return nil
}

// verifyCopy checks that dst now holds exactly the store files of src.
func verifyCopy(src, dst string, names []string) error {
	want, err := integrity.FileSetDigest(src, names)
	if err != nil {
		return errclass.ErrSyncBackFailed.Wrap(err, "digest local replica")
	}
	got, err := integrity.FileSetDigest(dst, names)
	if err != nil {
		return errclass.ErrSyncBackFailed.Wrap(err, "digest shared store")
	}
	if got != want {
		return errclass.ErrSyncBackFailed.WithMessagef("shared store differs from the local replica after copy (%.12s != %.12s)", got, want)
	}
	return nil
}

// Discard deletes the local replica and releases the cache guard. It is a
// no-op when there is nothing to remove. The guard file and copies set aside
// by Stage stay.
func (s *Synchronizer) Discard(sharedRoot, localDir string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { s.record(OpDiscard, err) }()

	if err = checkDirs(sharedRoot, localDir); err != nil {
		return err
	}
	err = s.removeLocal(localDir)
	if s.guard != nil {
		if uerr := s.guard.Unlock(); uerr != nil {
			err = errors.Join(err, fmt.Errorf("unlock local cache: %w", uerr))
		}
		s.guard = nil
	}
	s.staged = false
	return err
}

// Leftovers lists the replica files currently present in localDir.
func (s *Synchronizer) Leftovers(localDir string) []string {
	var present []string
	for _, name := range model.StoreFiles(s.primary) {
		if fsutil.Exists(filepath.Join(localDir, name)) {
			present = append(present, name)
		}
	}
	return present
}

// CacheInUse reports whether another process holds the guard on localDir.
func CacheInUse(localDir string) (bool, error) {
	if !fsutil.Exists(GuardPath(localDir)) {
		return false, nil
	}
	guard := flock.New(GuardPath(localDir))
	locked, err := guard.TryLock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	if locked {
		guard.Unlock()
		return false, nil
	}
	return true, nil
}

// SetAside lists the copies Stage renamed aside in localDir.
func (s *Synchronizer) SetAside(localDir string) []string {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), s.primary) && strings.Contains(e.Name(), unsyncedSuffix) {
			names = append(names, e.Name())
		}
	}
	return names
}

// checkDirs refuses a local cache that is the shared root itself; every
// replica removal would then delete the shared store.
func checkDirs(sharedRoot, localDir string) error {
	if pathutil.SameDir(sharedRoot, localDir) {
		return errclass.ErrReplicaTarget.WithMessagef("local cache %s is the shared root", localDir)
	}
	return nil
}

// clearLeftovers empties localDir of replica files before staging. Files
// identical to the shared store are removed; anything else is renamed with an
// unsynced suffix.
func (s *Synchronizer) clearLeftovers(sharedRoot, localDir string) error {
	left := s.Leftovers(localDir)
	if len(left) == 0 {
		return nil
	}
	names := model.StoreFiles(s.primary)
	local, lerr := integrity.FileSetDigest(localDir, names)
	shared, serr := integrity.FileSetDigest(sharedRoot, names)
	if lerr == nil && serr == nil && local == shared {
		return s.removeLocal(localDir)
	}

	stamp := time.Now().Format("20060102T150405")
	var kept []string
	for _, name := range left {
		aside := name + unsyncedSuffix + stamp
		if err := os.Rename(filepath.Join(localDir, name), filepath.Join(localDir, aside)); err != nil {
			return fmt.Errorf("set aside %s: %w", name, err)
		}
		kept = append(kept, aside)
	}
	s.log.Warn("leftover replica differs from the shared store; set aside", map[string]any{
		"local_dir": localDir,
		"files":     kept,
	})
	return nil
}

func (s *Synchronizer) removeLocal(localDir string) error {
	var errs []error
	for _, name := range model.StoreFiles(s.primary) {
		if _, err := fsutil.RemoveIfExists(filepath.Join(localDir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Synchronizer) record(op string, err error) {
	s.metrics.RecordReplicaOp(op, err == nil)
	if err != nil {
		s.log.WarnErr("replica "+op+" failed", err)
	}
}
