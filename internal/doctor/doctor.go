// Package doctor inspects a shared root and the local cache for leftovers of
// sessions that did not shut down cleanly.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ctenopoma/issuer/internal/audit"
	"github.com/ctenopoma/issuer/internal/lock"
	"github.com/ctenopoma/issuer/internal/replica"
	"github.com/ctenopoma/issuer/pkg/config"
	"github.com/ctenopoma/issuer/pkg/fsutil"
	"github.com/ctenopoma/issuer/pkg/logging"
	"github.com/ctenopoma/issuer/pkg/model"
	"github.com/ctenopoma/issuer/pkg/pathutil"
)

// Finding represents a detected issue.
type Finding struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Path        string `json:"path,omitempty"`
}

// Result contains doctor check results.
type Result struct {
	Healthy  bool             `json:"healthy"`
	Lock     model.LockStatus `json:"lock"`
	Findings []Finding        `json:"findings"`
}

func (r *Result) add(f Finding) {
	r.Findings = append(r.Findings, f)
	if f.Severity == "error" || f.Severity == "critical" {
		r.Healthy = false
	}
}

// Doctor performs health checks for one configured store.
type Doctor struct {
	cfg *config.Config
	now func() time.Time
	log *logging.Logger
}

// NewDoctor creates a new doctor.
func NewDoctor(cfg *config.Config, log *logging.Logger) *Doctor {
	return &Doctor{cfg: cfg, now: time.Now, log: log}
}

// WithClock replaces the time source used to age the lock.
func (d *Doctor) WithClock(now func() time.Time) *Doctor {
	d.now = now
	return d
}

// Check runs all diagnostic checks. Nothing is modified.
func (d *Doctor) Check() (*Result, error) {
	result := &Result{Healthy: true}

	if err := d.cfg.Validate(); err != nil {
		result.add(Finding{
			Category:    "config",
			Description: err.Error(),
			Severity:    "critical",
		})
		return result, nil
	}

	if err := d.checkLock(result); err != nil {
		return nil, err
	}
	d.checkSideFiles(result)
	d.checkOrphanTmp(result)
	d.checkReplica(result)
	d.checkJournal(result)

	return result, nil
}

func (d *Doctor) checkLock(result *Result) error {
	threshold, _ := d.cfg.ZombieThresholdDuration()
	store := lock.NewStore(d.cfg.LockPath(), d.log)
	mgr := lock.NewManager(store, d.cfg.EffectiveOwner(), lock.Policy{ZombieThreshold: threshold}).WithClock(d.now)

	status, err := mgr.Status()
	if err != nil {
		return fmt.Errorf("lock status: %w", err)
	}
	result.Lock = status

	switch status.State {
	case model.LockStateZombie:
		result.add(Finding{
			Category:    "lock",
			Description: fmt.Sprintf("zombie lock held by %s for %.1f hours", status.Record.Owner, status.AgeHours),
			Severity:    "warning",
			Path:        status.Path,
		})
	case model.LockStateCorrupt:
		result.add(Finding{
			Category:    "lock",
			Description: "lock file is unreadable; the next session will overwrite it",
			Severity:    "warning",
			Path:        status.Path,
		})
	}
	return nil
}

// checkSideFiles reports a non-empty WAL left on the shared root while no
// one holds the lock: a writer exited without checkpointing.
func (d *Doctor) checkSideFiles(result *Result) {
	if result.Lock.State == model.LockStateHeld {
		return
	}
	wal := d.cfg.SharedStorePath() + model.WALSuffix
	if info, err := os.Stat(wal); err == nil && info.Size() > 0 {
		result.add(Finding{
			Category:    "store",
			Description: fmt.Sprintf("write-ahead log of %d bytes left without an active editor; run 'issuer replica checkpoint'", info.Size()),
			Severity:    "warning",
			Path:        wal,
		})
	}
}

func (d *Doctor) checkOrphanTmp(result *Result) {
	entries, err := os.ReadDir(d.cfg.SharedRoot)
	if err != nil {
		result.add(Finding{
			Category:    "shared_root",
			Description: fmt.Sprintf("cannot read shared root: %v", err),
			Severity:    "error",
			Path:        d.cfg.SharedRoot,
		})
		return
	}
	for _, e := range entries {
		if fsutil.IsTemp(e.Name()) {
			result.add(Finding{
				Category:    "tmp",
				Description: fmt.Sprintf("orphan temp file: %s", e.Name()),
				Severity:    "info",
				Path:        filepath.Join(d.cfg.SharedRoot, e.Name()),
			})
		}
	}
}

// checkReplica reports replica files in the local cache that no running
// instance owns. They may hold edits that never reached the shared root.
func (d *Doctor) checkReplica(result *Result) {
	if d.cfg.LocalDir == "" || !fsutil.Exists(d.cfg.LocalDir) {
		return
	}
	// The shared store is not a replica of itself.
	if pathutil.SameDir(d.cfg.LocalDir, d.cfg.SharedRoot) {
		return
	}
	inUse, err := replica.CacheInUse(d.cfg.LocalDir)
	if err != nil {
		result.add(Finding{
			Category:    "replica",
			Description: fmt.Sprintf("cannot probe local cache guard: %v", err),
			Severity:    "warning",
			Path:        replica.GuardPath(d.cfg.LocalDir),
		})
		return
	}
	if inUse {
		return
	}

	syn := replica.New(d.cfg.StoreFile, nil, d.log)
	for _, name := range syn.Leftovers(d.cfg.LocalDir) {
		result.add(Finding{
			Category:    "replica",
			Description: fmt.Sprintf("leftover local replica file %s; it may hold edits that were never synced back", name),
			Severity:    "warning",
			Path:        filepath.Join(d.cfg.LocalDir, name),
		})
	}
	for _, name := range syn.SetAside(d.cfg.LocalDir) {
		result.add(Finding{
			Category:    "replica",
			Description: fmt.Sprintf("replica %s was set aside because it differed from the shared store", name),
			Severity:    "warning",
			Path:        filepath.Join(d.cfg.LocalDir, name),
		})
	}
}

func (d *Doctor) checkJournal(result *Result) {
	path := d.cfg.AuditPath()
	if path == "" {
		return
	}
	if _, err := audit.Verify(path); err != nil {
		result.add(Finding{
			Category:    "journal",
			Description: fmt.Sprintf("lock journal failed verification: %v", err),
			Severity:    "warning",
			Path:        path,
		})
	}
}

// RemoveOrphanTmp deletes the temp files reported by result and returns how
// many were removed.
func RemoveOrphanTmp(result *Result) (int, error) {
	removed := 0
	for _, f := range result.Findings {
		if f.Category != "tmp" || f.Path == "" {
			continue
		}
		ok, err := fsutil.RemoveIfExists(f.Path)
		if err != nil {
			return removed, fmt.Errorf("remove %s: %w", f.Path, err)
		}
		if ok {
			removed++
		}
	}
	return removed, nil
}
