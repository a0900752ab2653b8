package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/doctor"
	"github.com/ctenopoma/issuer/pkg/color"
	"github.com/ctenopoma/issuer/pkg/errclass"
)

var (
	doctorRepair bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the shared store and local cache for leftovers",
	Long: `Check the shared store and local cache for leftovers.

Reports abandoned or unreadable locks, write-ahead logs left without an
active editor, orphan temp files in the shared folder, and local replicas
that were never synced back. Nothing is changed unless --repair is given,
which removes orphan temp files only.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		result, err := doctor.NewDoctor(cfg, nil).Check()
		if err != nil {
			return err
		}

		removed := 0
		if doctorRepair {
			if removed, err = doctor.RemoveOrphanTmp(result); err != nil {
				return err
			}
		}

		if jsonOutput {
			if err := outputJSON(map[string]any{"result": result, "repaired": removed}); err != nil {
				return err
			}
		} else {
			printFindings(result, removed)
		}

		if !result.Healthy {
			return errclass.ErrUnhealthy.WithMessage("doctor found blocking problems")
		}
		return nil
	},
}

func printFindings(result *doctor.Result, removed int) {
	fmt.Printf("Lock: %s\n", color.LockState(string(result.Lock.State)))
	if len(result.Findings) == 0 {
		fmt.Println(color.Success("Everything looks healthy."))
		return
	}

	fmt.Printf("Findings (%d):\n", len(result.Findings))
	for _, f := range result.Findings {
		sev := f.Severity
		switch sev {
		case "critical", "error":
			sev = color.Error(sev)
		case "warning":
			sev = color.Warning(sev)
		default:
			sev = color.Dim(sev)
		}
		fmt.Printf("  [%s] %s: %s\n", sev, f.Category, f.Description)
	}
	if removed > 0 {
		fmt.Printf("Removed %d orphan temp file(s).\n", removed)
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorRepair, "repair", false, "remove orphan temp files")
	rootCmd.AddCommand(doctorCmd)
}
