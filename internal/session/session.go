// Package session ties the lock, its heartbeat and the local replica into
// one per-process lifecycle: decide at start, resolve a zombie lock if one
// is found, and tear everything down in order exactly once at exit.
package session

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ctenopoma/issuer/internal/audit"
	"github.com/ctenopoma/issuer/internal/lock"
	"github.com/ctenopoma/issuer/internal/replica"
	"github.com/ctenopoma/issuer/pkg/config"
	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/logging"
	"github.com/ctenopoma/issuer/pkg/metrics"
	"github.com/ctenopoma/issuer/pkg/model"
)

// shutdownTimeout bounds the checkpoint run during shutdown.
const shutdownTimeout = 30 * time.Second

// Options configures a Session.
type Options struct {
	SharedRoot string
	LocalDir   string
	StoreFile  string

	// LocalReplica stages the store locally while editing.
	LocalReplica bool
	// ReplicaForReadOnly also stages it for read-only sessions.
	ReplicaForReadOnly bool

	HeartbeatInterval time.Duration
}

// Journal records lock events. *audit.FileAppender implements it.
type Journal interface {
	Append(event model.AuditEventType, owner, sessionID string, details map[string]any) error
}

// Session is the coordination state of one running process. Create one per
// process and call Shutdown on every exit path.
type Session struct {
	id      string
	opts    Options
	manager *lock.Manager
	replica *replica.Synchronizer
	hb      *lock.Heartbeat
	log     *logging.Logger
	metrics *metrics.Registry
	journal Journal

	mu      sync.Mutex
	started bool
	pending model.Decision
	mode    atomic.Value // model.Mode
	staged  atomic.Bool

	shutdownOnce sync.Once
	closed       atomic.Bool
}

// New creates a session. syn may be nil when no replica is ever staged.
func New(opts Options, manager *lock.Manager, syn *replica.Synchronizer, log *logging.Logger) *Session {
	id := uuid.NewString()
	log = logging.OrGlobal(log).WithFields(map[string]any{"component": "session", "owner": manager.Owner(), "session": id})
	s := &Session{
		id:      id,
		opts:    opts,
		manager: manager,
		replica: syn,
		log:     log,
	}
	s.mode.Store(model.Mode(""))
	s.hb = lock.NewHeartbeat(manager, opts.HeartbeatInterval, log).
		WhileActive(func() bool { return s.Mode() == model.ModeEdit && !s.closed.Load() })
	return s
}

// FromConfig builds a session and its collaborators from a validated config.
func FromConfig(cfg *config.Config, log *logging.Logger, reg *metrics.Registry) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	threshold, _ := cfg.ZombieThresholdDuration()
	interval, _ := cfg.HeartbeatIntervalDuration()

	store := lock.NewStore(cfg.LockPath(), log)
	mgr := lock.NewManager(store, cfg.EffectiveOwner(), lock.Policy{
		ZombieThreshold: threshold,
		ReclaimOwn:      cfg.ReclaimOwnLock,
	}).WithMetrics(reg)

	var syn *replica.Synchronizer
	if cfg.LocalReplica || cfg.ReplicaForReadOnly {
		syn = replica.New(cfg.StoreFile, replica.SQLiteCheckpointer{}, log).WithMetrics(reg)
	}

	s := New(Options{
		SharedRoot:         cfg.SharedRoot,
		LocalDir:           cfg.LocalDir,
		StoreFile:          cfg.StoreFile,
		LocalReplica:       cfg.LocalReplica,
		ReplicaForReadOnly: cfg.ReplicaForReadOnly,
		HeartbeatInterval:  interval,
	}, mgr, syn, log).WithMetrics(reg)
	if path := cfg.AuditPath(); path != "" {
		s.WithJournal(audit.NewFileAppender(path))
	}
	return s, nil
}

// WithMetrics records heartbeat and shutdown results into r.
func (s *Session) WithMetrics(r *metrics.Registry) *Session {
	s.metrics = r
	s.hb.WithMetrics(r)
	return s
}

// WithJournal records lock acquisitions, takeovers, sync-backs and
// releases into j.
func (s *Session) WithJournal(j Journal) *Session {
	s.journal = j
	return s
}

// ID returns the random identifier of this session.
func (s *Session) ID() string {
	return s.id
}

// Mode returns the current mode, or "" before Start.
func (s *Session) Mode() model.Mode {
	return s.mode.Load().(model.Mode)
}

// Owner returns the identity this session locks as.
func (s *Session) Owner() string {
	return s.manager.Owner()
}

// Staged reports whether the session is working on a local replica.
func (s *Session) Staged() bool {
	return s.staged.Load()
}

// Closed reports whether Shutdown has run.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// StorePath returns the database path the application should open: the
// local replica when one is staged, otherwise the shared store.
func (s *Session) StorePath() string {
	if s.staged.Load() {
		return s.replica.StorePath(s.opts.LocalDir)
	}
	return filepath.Join(s.opts.SharedRoot, s.opts.StoreFile)
}

// Start runs the startup lock decision and enters the resulting mode.
//
// If the lock cannot be written the session falls back to read-only and the
// write error is returned alongside the read-only decision. A zombie lock
// leaves the session pending until ResolveZombie is called.
func (s *Session) Start() (model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return model.Decision{}, errclass.ErrSessionState.WithMessage("session already started")
	}
	if s.closed.Load() {
		return model.Decision{}, errclass.ErrSessionState.WithMessage("session is shut down")
	}
	s.started = true

	decision, err := s.manager.Decide()
	if err != nil {
		s.log.ErrorErr("could not take the lock, continuing read-only", err)
		s.enterReadOnly()
		return model.Decision{Mode: model.ModeReadOnly}, err
	}

	switch decision.Mode {
	case model.ModeEdit:
		s.record(model.EventLockAcquire, nil)
		s.enterEdit()
	case model.ModeReadOnly:
		s.enterReadOnly()
	case model.ModeZombiePending:
		s.pending = decision
		s.mode.Store(model.ModeZombiePending)
	}
	return decision, nil
}

// ResolveZombie applies the caller's choice to a pending zombie lock.
// Force takes the lock over and enters edit mode; ViewOnly enters read-only
// mode and leaves the zombie lock in place.
func (s *Session) ResolveZombie(choice model.ZombieChoice) (model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !choice.Valid() {
		return model.Decision{}, errclass.ErrSessionState.WithMessagef("unknown zombie choice %q", choice)
	}
	if s.Mode() != model.ModeZombiePending || s.closed.Load() {
		return model.Decision{}, errclass.ErrSessionState.WithMessagef("no zombie lock to resolve in mode %q", s.Mode())
	}

	if choice == model.ChoiceViewOnly {
		s.log.Info("zombie lock left in place, viewing read-only")
		s.enterReadOnly()
		return model.Decision{Mode: model.ModeReadOnly}, nil
	}

	if err := s.manager.ForceAcquire(); err != nil {
		s.log.ErrorErr("force acquire failed, continuing read-only", err)
		s.enterReadOnly()
		return model.Decision{Mode: model.ModeReadOnly}, err
	}
	s.record(model.EventLockForce, map[string]any{
		"previous_owner": s.pending.Owner,
		"age_hours":      s.pending.AgeHours,
	})
	s.enterEdit()
	return model.Decision{Mode: model.ModeEdit}, nil
}

// record appends a journal entry. A failed append is logged only.
func (s *Session) record(event model.AuditEventType, details map[string]any) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(event, s.Owner(), s.id, details); err != nil {
		s.log.WarnErr("journal append failed", err, map[string]any{"event": string(event)})
	}
}

func (s *Session) enterEdit() {
	s.mode.Store(model.ModeEdit)
	if err := s.hb.Start(context.Background()); err != nil {
		s.log.WarnErr("heartbeat not started", err)
	}
	if s.opts.LocalReplica {
		s.stage()
	}
	s.log.Info("session in edit mode", map[string]any{"store": s.StorePath()})
}

func (s *Session) enterReadOnly() {
	s.mode.Store(model.ModeReadOnly)
	if s.opts.ReplicaForReadOnly {
		s.stage()
	}
	s.log.Info("session in read-only mode", map[string]any{"store": s.StorePath()})
}

// stage copies the store locally. On failure the session keeps working on
// the shared store directly.
func (s *Session) stage() {
	if s.replica == nil {
		return
	}
	if err := s.replica.Stage(s.opts.SharedRoot, s.opts.LocalDir); err != nil {
		s.log.WarnErr("local replica not staged, using shared store", err)
		return
	}
	s.staged.Store(true)
}

// Shutdown releases everything the session holds. It runs at most once;
// later calls return immediately, concurrent calls wait for the first.
//
// In edit mode the order is: stop the heartbeat, checkpoint the replica,
// sync it back, discard it, release the lock. A failed sync-back keeps the
// local replica on disk so the edits can be recovered. In any other mode a
// staged replica is discarded and nothing else is touched. Every step logs
// and swallows its own failure so the later steps still run.
func (s *Session) Shutdown() {
	s.shutdownOnce.Do(s.shutdown)
}

func (s *Session) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)

	mode := s.Mode()
	s.log.Info("session shutting down", map[string]any{"mode": string(mode)})

	failed := 0
	step := func(name string, fn func() error) error {
		err := runStep(fn)
		if err != nil {
			failed++
			s.log.ErrorErr("shutdown step failed: "+name, err)
		}
		return err
	}

	staged := s.staged.Load()
	if mode == model.ModeEdit {
		step("stop heartbeat", func() error { s.hb.Stop(); return nil })

		keepReplica := false
		if staged {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			step("checkpoint", func() error { return s.replica.Checkpoint(ctx, s.opts.LocalDir) })
			cancel()
			if err := step("sync back", func() error { return s.replica.SyncBack(s.opts.LocalDir, s.opts.SharedRoot) }); err != nil {
				keepReplica = true
				replicaPath := s.replica.StorePath(s.opts.LocalDir)
				s.log.Warn("local replica kept for recovery", map[string]any{"path": replicaPath})
				s.record(model.EventSyncBackFailed, map[string]any{"error": err.Error(), "replica": replicaPath})
			} else {
				s.record(model.EventSyncBack, nil)
			}
		}
		if staged && !keepReplica {
			step("discard replica", s.discard)
		}
		if step("release lock", func() error { s.manager.Release(); return nil }) == nil {
			s.record(model.EventLockRelease, nil)
		}
	} else if staged {
		step("discard replica", s.discard)
	}

	s.hb.Stop()
	s.metrics.RecordShutdown(failed)
	s.log.Info("session shut down", map[string]any{"failed_steps": failed})
}

func (s *Session) discard() error {
	err := s.replica.Discard(s.opts.SharedRoot, s.opts.LocalDir)
	s.staged.Store(false)
	return err
}

// runStep converts a panic inside a shutdown step into an error.
func runStep(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// HandleSignals shuts the session down on the first SIGINT or SIGTERM, or
// when ctx ends. The returned channel is closed once Shutdown has finished.
func (s *Session) HandleSignals(ctx context.Context) <-chan struct{} {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stop()
		<-sigCtx.Done()
		if ctx.Err() == nil {
			s.log.Info("signal received")
		}
		s.Shutdown()
	}()
	return done
}
