package lock

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ctenopoma/issuer/pkg/model"
)

// DefaultWatchPoll is the fallback poll interval for Watch. Change
// notifications are unreliable on SMB and NFS mounts, so polling always runs
// alongside fsnotify.
const DefaultWatchPoll = 5 * time.Second

const watchDebounce = 50 * time.Millisecond

// Watch emits the lock status whenever it changes, starting with the current
// status. A read-only viewer uses it to learn that the editor has left. The
// channel is closed when ctx is done.
func (m *Manager) Watch(ctx context.Context, poll time.Duration) (<-chan model.LockStatus, error) {
	if poll <= 0 {
		poll = DefaultWatchPoll
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched rather than the file: atomic writes replace
	// the file and would silently drop a file watch.
	if err := watcher.Add(filepath.Dir(m.store.Path())); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(m.store.Path()), err)
	}

	out := make(chan model.LockStatus, 1)
	go m.watchLoop(ctx, watcher, poll, out)
	return out, nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, poll time.Duration, out chan<- model.LockStatus) {
	defer close(out)
	defer watcher.Close()

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	debounce := time.NewTimer(0)
	<-debounce.C

	lockName := filepath.Base(m.store.Path())
	var last *model.LockStatus

	emit := func() bool {
		status, err := m.Status()
		if err != nil {
			m.log.WarnErr("lock watch: status failed", err)
			return true
		}
		if last != nil && sameStatus(*last, status) {
			return true
		}
		last = &status
		select {
		case out <- status:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit() {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != lockName {
				continue
			}
			debounce.Reset(watchDebounce)

		case <-debounce.C:
			if !emit() {
				return
			}

		case <-ticker.C:
			if !emit() {
				return
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.log.WarnErr("lock watch: watcher error", err)
		}
	}
}

// sameStatus ignores age drift so a refresh-free lock does not re-emit on
// every poll.
func sameStatus(a, b model.LockStatus) bool {
	if a.State != b.State {
		return false
	}
	if (a.Record == nil) != (b.Record == nil) {
		return false
	}
	if a.Record == nil {
		return true
	}
	return a.Record.Owner == b.Record.Owner && a.Record.AcquiredAt.Equal(b.Record.AcquiredAt)
}
