package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/session"
	"github.com/ctenopoma/issuer/internal/tui"
	"github.com/ctenopoma/issuer/pkg/color"
	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/metrics"
	"github.com/ctenopoma/issuer/pkg/model"
)

var (
	runForce       bool
	runViewOnly    bool
	runMetricsFile string
	runMetricsAddr string

	// beforeSessionStart runs after signal handling is in place and just
	// before the lock is taken.
	beforeSessionStart = func() {}
)

var runCmd = &cobra.Command{
	Use:   "run [-- command [args...]]",
	Short: "Open a session on the shared store",
	Long: `Open a session on the shared store.

The session takes the lock if it is free and opens the store for editing,
or opens it read-only when someone else is editing. A lock that has not
been refreshed for longer than zombie_threshold is treated as abandoned:
you are asked whether to take it over (or pass --force / --view-only).

With a command, the command runs with these variables set and the session
ends when it exits:
  ISSUER_STORE_PATH  database file to open
  ISSUER_MODE        edit or readonly
  ISSUER_OWNER       identity holding the session
  ISSUER_SESSION_ID  random identifier of this session

Without a command the session stays open until interrupted.

On exit the replica (if staged) is checkpointed and synced back, and the
lock is released.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSession,
}

func runSession(cmd *cobra.Command, args []string) error {
	e, err := openEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	reg := metrics.NewRegistry()
	sess, err := session.FromConfig(e.cfg, e.log, reg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if runMetricsAddr != "" {
		ln, err := net.Listen("tcp", runMetricsAddr)
		if err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		go func() {
			if err := reg.Serve(ctx, ln); err != nil {
				e.log.WarnErr("metrics server stopped", err)
			}
		}()
	}
	defer func() {
		sess.Shutdown()
		if runMetricsFile != "" {
			if err := reg.WriteTextfile(runMetricsFile); err != nil {
				e.log.WarnErr("write metrics file", err)
			}
		}
	}()

	// Catch signals before the lock can be written; from here on an
	// interrupt ends in Shutdown.
	var sessionDone <-chan struct{}
	sigCh := make(chan os.Signal, 1)
	if len(args) == 0 {
		sessionDone = sess.HandleSignals(ctx)
	} else {
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)
	}
	beforeSessionStart()

	decision, err := sess.Start()
	if interrupted(sess, sigCh) {
		return nil
	}
	if err != nil {
		if errors.Is(err, errclass.ErrSessionState) {
			return err
		}
		fmtErr("could not take the lock, continuing read-only: %v", err)
	}

	if decision.Mode == model.ModeZombiePending {
		choice, err := chooseZombie(decision)
		if err != nil {
			e.log.WarnErr("zombie prompt failed, opening read-only", err)
		}
		if interrupted(sess, sigCh) {
			return nil
		}
		resolved, err := sess.ResolveZombie(choice)
		if err != nil {
			fmtErr("could not take over the lock, continuing read-only: %v", err)
		}
		resolved.Owner = decision.Owner
		decision = resolved
	}

	if err := reportSession(sess, decision); err != nil {
		return err
	}

	if len(args) == 0 {
		if !jsonOutput {
			fmt.Println(color.Dim("Session open. Press Ctrl+C to end it."))
		}
		<-sessionDone
		return nil
	}
	if interrupted(sess, sigCh) {
		return nil
	}
	return runChild(ctx, sess, args, sigCh)
}

// interrupted reports whether the session was ended by a signal before the
// application started. A pending signal on sigCh is consumed.
func interrupted(sess *session.Session, sigCh <-chan os.Signal) bool {
	if sess.Closed() {
		return true
	}
	select {
	case sig := <-sigCh:
		fmtErr("%s received, ending session", sig)
		return true
	default:
		return false
	}
}

func chooseZombie(d model.Decision) (model.ZombieChoice, error) {
	switch {
	case runForce:
		return model.ChoiceForce, nil
	case runViewOnly:
		return model.ChoiceViewOnly, nil
	}
	if jsonOutput || !isatty.IsTerminal(os.Stdin.Fd()) {
		fmtErr("lock held by %s for %.1f hours looks abandoned; opening read-only (pass --force to take over)",
			d.Owner, d.AgeHours)
		return model.ChoiceViewOnly, nil
	}
	return tui.PromptZombie(d, os.Stdin, os.Stderr)
}

type sessionReport struct {
	SessionID string     `json:"session_id"`
	Mode      model.Mode `json:"mode"`
	Owner     string     `json:"owner"`
	Holder    string     `json:"holder,omitempty"`
	StorePath string     `json:"store_path"`
	Staged    bool       `json:"staged"`
}

func reportSession(sess *session.Session, d model.Decision) error {
	r := sessionReport{
		SessionID: sess.ID(),
		Mode:      sess.Mode(),
		Owner:     sess.Owner(),
		StorePath: sess.StorePath(),
		Staged:    sess.Staged(),
	}
	if r.Mode != model.ModeEdit {
		r.Holder = d.Owner
	}
	if jsonOutput {
		return outputJSON(r)
	}

	fmt.Printf("Mode: %s\n", color.Mode(string(r.Mode)))
	if r.Holder != "" {
		fmt.Printf("  Locked by: %s\n", r.Holder)
	}
	fmt.Printf("  Store: %s\n", r.StorePath)
	if r.Staged {
		fmt.Println(color.Dim("  (local replica)"))
	}
	return nil
}

// runChild runs args as the session's application. Interrupts arriving on
// sigCh are passed to the child so it can close the store before the
// session shuts down.
func runChild(ctx context.Context, sess *session.Session, args []string, sigCh <-chan os.Signal) error {
	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr
	child.Env = append(os.Environ(),
		"ISSUER_STORE_PATH="+sess.StorePath(),
		"ISSUER_MODE="+string(sess.Mode()),
		"ISSUER_OWNER="+sess.Owner(),
		"ISSUER_SESSION_ID="+sess.ID(),
	)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start %s: %w", args[0], err)
	}
	waited := make(chan error, 1)
	go func() { waited <- child.Wait() }()

	done := ctx.Done()
	for {
		select {
		case sig := <-sigCh:
			forwardSignal(child.Process, sig)
		case <-done:
			child.Process.Kill()
			done = nil
		case err := <-waited:
			return childResult(err)
		}
	}
}

func forwardSignal(p *os.Process, sig os.Signal) {
	if runtime.GOOS == "windows" {
		p.Kill()
		return
	}
	p.Signal(sig)
}

func childResult(err error) error {
	if err == nil {
		return nil
	}
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		code := exit.ExitCode()
		if code < 0 {
			code = 1
		}
		return &exitError{code: code}
	}
	return err
}

func init() {
	runCmd.Flags().BoolVar(&runForce, "force", false, "take over an abandoned lock without asking")
	runCmd.Flags().BoolVar(&runViewOnly, "view-only", false, "open read-only when the lock looks abandoned")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "write Prometheus metrics to this file at exit")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the session runs")
	runCmd.MarkFlagsMutuallyExclusive("force", "view-only")
	rootCmd.AddCommand(runCmd)
}
