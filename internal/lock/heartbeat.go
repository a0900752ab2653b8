package lock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/logging"
	"github.com/ctenopoma/issuer/pkg/metrics"
)

// DefaultHeartbeatInterval is how often a held lock is refreshed.
const DefaultHeartbeatInterval = 60 * time.Second

// Refresher rewrites the lock timestamp.
type Refresher interface {
	Refresh() error
}

// Heartbeat periodically refreshes a held lock so it never ages into a zombie
// while the session is alive. A failed refresh is logged and the loop keeps
// going; if refreshes keep failing the lock will eventually look abandoned
// to other processes.
type Heartbeat struct {
	refresher Refresher
	interval  time.Duration
	active    func() bool
	log       *logging.Logger
	metrics   *metrics.Registry

	// The first few failures are always logged, then at most one per interval.
	failLog rate.Sometimes

	mu          sync.Mutex
	stop        chan struct{}
	done        chan struct{}
	consecutive int
}

// NewHeartbeat creates a heartbeat refreshing through r every interval.
func NewHeartbeat(r Refresher, interval time.Duration, log *logging.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &Heartbeat{
		refresher: r,
		interval:  interval,
		log:       logging.OrGlobal(log).WithFields(map[string]any{"component": "heartbeat"}),
		failLog:   rate.Sometimes{First: 3, Interval: 10 * time.Minute},
	}
}

// WhileActive makes every tick check fn first; the loop ends on its own once
// fn reports false.
func (h *Heartbeat) WhileActive(fn func() bool) *Heartbeat {
	h.active = fn
	return h
}

// WithMetrics records refresh results into r.
func (h *Heartbeat) WithMetrics(r *metrics.Registry) *Heartbeat {
	h.metrics = r
	return h
}

// Start launches the refresh loop. Starting a heartbeat that is already
// running returns ErrHeartbeatRunning.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.runningLocked() {
		return errclass.ErrHeartbeatRunning.WithMessage("heartbeat already started")
	}

	h.stop = make(chan struct{})
	h.done = make(chan struct{})
	h.consecutive = 0
	go h.run(ctx, h.stop, h.done)

	h.log.Debug("heartbeat started", map[string]any{"interval": h.interval.String()})
	return nil
}

func (h *Heartbeat) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		select {
		case <-stop:
			return
		default:
		}
		if h.active != nil && !h.active() {
			h.log.Debug("session left edit mode, heartbeat exiting")
			return
		}
		h.beat()
	}
}

func (h *Heartbeat) beat() {
	err := h.refresher.Refresh()
	h.metrics.RecordHeartbeat(err == nil)

	h.mu.Lock()
	if err != nil {
		h.consecutive++
	}
	failures := h.consecutive
	if err == nil {
		h.consecutive = 0
	}
	h.mu.Unlock()

	if err != nil {
		h.failLog.Do(func() {
			h.log.WarnErr("heartbeat refresh failed", err, map[string]any{"consecutive_failures": failures})
		})
		return
	}
	if failures > 0 {
		h.log.Info("heartbeat recovered", map[string]any{"after_failures": failures})
	}
}

// Stop ends the loop and waits for it to exit. It is safe to call more than
// once and on a heartbeat that never started.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	stop, done := h.stop, h.done
	h.stop = nil
	h.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	h.log.Debug("heartbeat stopped")
}

// Running reports whether the refresh loop is active.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.runningLocked()
}

func (h *Heartbeat) runningLocked() bool {
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}
