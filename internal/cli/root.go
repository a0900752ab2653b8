package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/pkg/color"
)

var (
	jsonOutput bool
	noColor    bool
	configPath string
	logLevel   string
	sharedRoot string
	localDir   string
	ownerFlag  string

	rootCmd = &cobra.Command{
		Use:   "issuer",
		Short: "issuer - single-writer sessions on a shared SQLite store",
		Long: `issuer coordinates access to a SQLite store kept on a shared folder.

One session at a time may edit; everyone else opens the store read-only.
A lock file next to the store records who is editing and is refreshed
while the session runs. Locks left behind by crashed sessions are detected
and can be taken over. The store may be staged to a local cache for the
duration of a session and synced back on exit.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: preRun,
	}
)

func init() {
	addGlobalFlags(rootCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&configPath, "config", "", "config file (default <shared-root>/issuer.yaml)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&sharedRoot, "shared-root", "", "shared folder holding the store (default: current directory)")
	flags.StringVar(&localDir, "local-dir", "", "local cache directory for replicas")
	flags.StringVar(&ownerFlag, "owner", "", "identity recorded in the lock (default: OS user)")
}

func preRun(cmd *cobra.Command, args []string) error {
	color.Init(noColor)
	if noColor {
		color.Disable()
	}
	return nil
}

// exitError carries a child process exit status out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, formatError(err))
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
