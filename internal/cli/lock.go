package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/audit"
	"github.com/ctenopoma/issuer/internal/lock"
	"github.com/ctenopoma/issuer/pkg/color"
	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/model"
	"github.com/ctenopoma/issuer/pkg/pathutil"
)

var (
	lockForceYes   bool
	lockWatchPoll  time.Duration
	lockWatchUntil bool
	lockHistoryN   int
	lockHistoryChk bool
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and manage the store lock",
}

func newLockManager(e *env) *lock.Manager {
	threshold, _ := e.cfg.ZombieThresholdDuration()
	store := lock.NewStore(e.cfg.LockPath(), e.log)
	return lock.NewManager(store, e.cfg.EffectiveOwner(), lock.Policy{ZombieThreshold: threshold})
}

// journal notes a lock change made from the command line. The change has
// already happened, so a failed append is only logged.
func journal(e *env, event model.AuditEventType, owner string, prev model.LockStatus) {
	path := e.cfg.AuditPath()
	if path == "" {
		return
	}
	details := map[string]any{"source": "cli", "state": string(prev.State)}
	if prev.Record != nil {
		details["previous_owner"] = prev.Record.Owner
		details["age_hours"] = prev.AgeHours
	}
	if err := audit.NewFileAppender(path).Append(event, owner, "", details); err != nil {
		e.log.WarnErr("journal append failed", err)
	}
}

func printLockStatus(st model.LockStatus) {
	fmt.Printf("Lock: %s\n", color.LockState(string(st.State)))
	fmt.Printf("  Path: %s\n", st.Path)
	if st.Record != nil {
		fmt.Printf("  Holder: %s\n", st.Record.Owner)
		fmt.Printf("  Since: %s (%.1f hours)\n", st.Record.AcquiredAt.Format(time.RFC3339), st.AgeHours)
	}
}

var lockStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who holds the lock",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		st, err := newLockManager(e).Status()
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(st)
		}
		printLockStatus(st)
		return nil
	},
}

var lockReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release a lock held under your own name",
	Long: `Release a lock held under your own name.

Use this after a session of yours crashed. Locks held by someone else are
refused; see 'issuer lock force'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		mgr := newLockManager(e)
		st, err := mgr.Status()
		if err != nil {
			return err
		}
		if st.Record != nil && !pathutil.SameOwner(st.Record.Owner, mgr.Owner()) {
			return errclass.ErrLockHeld.WithMessagef("lock is held by %s, not %s", st.Record.Owner, mgr.Owner())
		}
		mgr.Release()
		if st.State != model.LockStateFree {
			journal(e, model.EventLockRelease, mgr.Owner(), st)
		}

		if jsonOutput {
			return outputJSON(map[string]any{"released": st.State != model.LockStateFree, "path": st.Path})
		}
		if st.State == model.LockStateFree {
			fmt.Println("Lock was not held.")
		} else {
			fmt.Println(color.Success("Lock released."))
		}
		return nil
	},
}

var lockForceCmd = &cobra.Command{
	Use:   "force",
	Short: "Break the lock regardless of its holder",
	Long: `Break the lock regardless of its holder.

Abandoned (zombie) and unreadable locks are removed directly. Removing a
lock that is still being refreshed requires --yes: its holder keeps
writing to the store and will not notice.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		mgr := newLockManager(e)
		st, err := mgr.Status()
		if err != nil {
			return err
		}
		if st.State == model.LockStateHeld && !lockForceYes && !pathutil.SameOwner(st.Record.Owner, mgr.Owner()) {
			return errclass.ErrLockHeld.WithMessagef("lock held by %s is still fresh (%.1f hours); pass --yes to break it anyway",
				st.Record.Owner, st.AgeHours)
		}
		mgr.Release()
		if st.State != model.LockStateFree {
			e.log.Warn("lock broken from the command line", map[string]any{"state": string(st.State)})
			journal(e, model.EventLockBreak, mgr.Owner(), st)
		}

		if jsonOutput {
			return outputJSON(map[string]any{"broken": st.State != model.LockStateFree, "previous": st})
		}
		if st.State == model.LockStateFree {
			fmt.Println("Lock was not held.")
			return nil
		}
		holder := "unknown"
		if st.Record != nil {
			holder = st.Record.Owner
		}
		fmt.Println(color.Warningf("Lock held by %s removed.", holder))
		return nil
	},
}

var lockWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the lock status whenever it changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		updates, err := newLockManager(e).Watch(ctx, lockWatchPoll)
		if err != nil {
			return err
		}
		for st := range updates {
			if jsonOutput {
				if err := outputJSON(st); err != nil {
					return err
				}
			} else {
				fmt.Printf("%s  ", color.Dim(time.Now().Format(time.TimeOnly)))
				printLockStatus(st)
			}
			if lockWatchUntil && st.State != model.LockStateHeld {
				return nil
			}
		}
		return nil
	},
}

var lockHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show who took, broke and released the lock",
	Long: `Show who took, broke and released the lock.

Entries come from the journal in the shared root (audit_file). With
--verify the hash chain linking the entries is checked first and a
tampered or truncated journal is reported as an error.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		path := e.cfg.AuditPath()
		if path == "" {
			return errclass.ErrConfigInvalid.WithMessage("the lock journal is disabled (audit_file is empty)")
		}
		if lockHistoryChk {
			if _, err := audit.Verify(path); err != nil {
				return err
			}
		}
		records, err := audit.Tail(path, lockHistoryN)
		if err != nil {
			return err
		}

		if jsonOutput {
			if records == nil {
				records = []model.AuditRecord{}
			}
			return outputJSON(records)
		}
		if len(records) == 0 {
			fmt.Println("No lock history.")
			return nil
		}
		for _, r := range records {
			line := fmt.Sprintf("%s  %-16s %s", r.Timestamp.Local().Format("2006-01-02 15:04:05"), r.EventType, r.Owner)
			if prev, ok := r.Details["previous_owner"]; ok {
				line += fmt.Sprintf(" (from %v)", prev)
			}
			if r.EventType == model.EventLockBreak || r.EventType == model.EventSyncBackFailed {
				line = color.Warning(line)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	lockHistoryCmd.Flags().IntVarP(&lockHistoryN, "number", "n", 20, "show the last n entries (0 for all)")
	lockHistoryCmd.Flags().BoolVar(&lockHistoryChk, "verify", false, "check the journal hash chain first")
	lockForceCmd.Flags().BoolVar(&lockForceYes, "yes", false, "also break a lock that is still fresh")
	lockWatchCmd.Flags().DurationVar(&lockWatchPoll, "poll", lock.DefaultWatchPoll, "fallback poll interval")
	lockWatchCmd.Flags().BoolVar(&lockWatchUntil, "until-free", false, "exit once the lock is no longer actively held")
	lockCmd.AddCommand(lockStatusCmd)
	lockCmd.AddCommand(lockReleaseCmd)
	lockCmd.AddCommand(lockForceCmd)
	lockCmd.AddCommand(lockWatchCmd)
	lockCmd.AddCommand(lockHistoryCmd)
	rootCmd.AddCommand(lockCmd)
}
