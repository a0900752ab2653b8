package lock

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/ctenopoma/issuer/pkg/logging"
	"github.com/ctenopoma/issuer/pkg/metrics"
	"github.com/ctenopoma/issuer/pkg/model"
	"github.com/ctenopoma/issuer/pkg/pathutil"
)

// DefaultZombieThreshold is the age after which a lock is presumed abandoned.
const DefaultZombieThreshold = time.Hour

// Policy configures lock decisions.
type Policy struct {
	// ZombieThreshold is compared strictly: a lock exactly this old is alive.
	ZombieThreshold time.Duration
	// ReclaimOwn lets a fresh lock held under our own owner name be taken
	// back as Edit instead of opening read-only, for users relaunching after
	// a crash on the same account.
	ReclaimOwn bool
}

// Manager implements the startup decision, forced acquisition and release
// on top of a Store.
type Manager struct {
	store   *Store
	owner   string
	policy  Policy
	now     func() time.Time
	metrics *metrics.Registry
	log     *logging.Logger
	mu      sync.Mutex
}

// NewManager creates a new lock manager acting as owner.
func NewManager(store *Store, owner string, policy Policy) *Manager {
	if policy.ZombieThreshold <= 0 {
		policy.ZombieThreshold = DefaultZombieThreshold
	}
	return &Manager{
		store:  store,
		owner:  owner,
		policy: policy,
		now:    time.Now,
		log:    store.log,
	}
}

// WithClock replaces the time source. Used by tests to age locks without sleeping.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// WithMetrics records decisions and forced acquisitions into r.
func (m *Manager) WithMetrics(r *metrics.Registry) *Manager {
	m.metrics = r
	return m
}

// Owner returns the identity this manager acquires the lock as.
func (m *Manager) Owner() string {
	return m.owner
}

// Store returns the underlying lock store.
func (m *Manager) Store() *Store {
	return m.store
}

// Decide inspects the lock and, if it is free, takes it.
//
// Absent or corrupt lock: the record is (over)written for this owner and the
// decision is Edit. A write failure is returned; the caller must not assume
// edit rights. Lock older than the threshold: ZombiePending with the holder
// and its age, the file untouched. Any other lock: ReadOnly with the holder.
func (m *Manager) Decide() (model.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.store.Read()
	if !ok {
		if err := m.store.Write(m.owner, now); err != nil {
			return model.Decision{}, fmt.Errorf("acquire lock: %w", err)
		}
		m.log.Info("lock acquired", map[string]any{"owner": m.owner})
		return m.decided(model.Decision{Mode: model.ModeEdit}), nil
	}

	if rec.IsZombie(now, m.policy.ZombieThreshold) {
		age := rec.Age(now)
		m.log.Warn("zombie lock detected", map[string]any{
			"holder":    rec.Owner,
			"age_hours": model.AgeHours(age),
		})
		return m.decided(model.Decision{
			Mode:     model.ModeZombiePending,
			Owner:    rec.Owner,
			AgeHours: model.AgeHours(age),
		}), nil
	}

	if m.policy.ReclaimOwn && pathutil.SameOwner(rec.Owner, m.owner) {
		if err := m.store.Write(m.owner, now); err != nil {
			return model.Decision{}, fmt.Errorf("reclaim own lock: %w", err)
		}
		m.log.Info("reclaimed own lock", map[string]any{"owner": m.owner})
		return m.decided(model.Decision{Mode: model.ModeEdit}), nil
	}

	m.log.Info("store is locked, opening read-only", map[string]any{"holder": rec.Owner})
	return m.decided(model.Decision{Mode: model.ModeReadOnly, Owner: rec.Owner}), nil
}

func (m *Manager) decided(d model.Decision) model.Decision {
	m.metrics.RecordDecision(string(d.Mode))
	return d
}

// ForceAcquire deletes whatever lock exists and writes one for this owner.
// Callers use it only after a person chose to take over a zombie lock.
func (m *Manager) ForceAcquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, _ := m.store.Read()
	m.store.Delete()
	if err := m.store.Write(m.owner, m.now()); err != nil {
		return fmt.Errorf("force acquire lock: %w", err)
	}
	fields := map[string]any{"owner": m.owner}
	if prev != nil {
		fields["previous_holder"] = prev.Owner
	}
	m.log.Warn("lock forcibly acquired", fields)
	m.metrics.RecordForceAcquire()
	return nil
}

// Refresh rewrites the record with the current time. Used by the heartbeat.
func (m *Manager) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Write(m.owner, m.now())
}

// Release deletes the lock file. It is idempotent and never fails.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Delete()
}

// Status classifies the lock file without modifying it.
func (m *Manager) Status() (model.LockStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := model.LockStatus{Path: m.store.Path()}
	rec, err := m.store.readRaw()
	switch {
	case errors.Is(err, fs.ErrNotExist):
		status.State = model.LockStateFree
		return status, nil
	case errors.Is(err, model.ErrCorruptLock):
		status.State = model.LockStateCorrupt
		return status, nil
	case err != nil:
		return status, fmt.Errorf("read lock: %w", err)
	}

	now := m.now()
	status.Record = rec
	status.AgeHours = model.AgeHours(rec.Age(now))
	if rec.IsZombie(now, m.policy.ZombieThreshold) {
		status.State = model.LockStateZombie
	} else {
		status.State = model.LockStateHeld
	}
	return status, nil
}
