package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ctenopoma/issuer/internal/replica"
	"github.com/ctenopoma/issuer/pkg/color"
	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/fsutil"
)

var replicaCmd = &cobra.Command{
	Use:   "replica",
	Short: "Maintain the store and its local replica",
}

var replicaCheckpointCmd = &cobra.Command{
	Use:   "checkpoint [db]",
	Short: "Fold a store's write-ahead log into the database file",
	Long: `Fold a store's write-ahead log into the database file.

Runs PRAGMA wal_checkpoint(TRUNCATE) on db (default: the shared store),
leaving an empty -wal file. Use it when 'issuer doctor' reports a
write-ahead log left behind without an active editor.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		db := e.cfg.SharedStorePath()
		if len(args) == 1 {
			db = args[0]
		}
		if !fsutil.Exists(db) {
			return errclass.ErrCheckpointFailed.WithMessagef("%s does not exist", db)
		}

		res, err := replica.SQLiteCheckpointer{}.Checkpoint(cmd.Context(), db)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]any{"path": db, "result": res})
		}
		fmt.Println(color.Successf("Checkpointed %s (%d of %d frames)", filepath.Base(db), res.Checkpointed, res.LogFrames))
		return nil
	},
}

var replicaDiscardCmd = &cobra.Command{
	Use:   "discard",
	Short: "Delete a leftover local replica",
	Long: `Delete a leftover local replica.

A replica is left in the local cache when a session could not sync it back.
Copy anything you need out of it first: this removes it for good. A cache
in use by a running session is refused.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv(cmd)
		if err != nil {
			return err
		}
		defer e.close()

		inUse, err := replica.CacheInUse(e.cfg.LocalDir)
		if err != nil {
			return err
		}
		if inUse {
			return errclass.ErrReplicaBusy.WithMessagef("local cache %s is in use by a running session", e.cfg.LocalDir)
		}

		syn := replica.New(e.cfg.StoreFile, nil, e.log)
		files := syn.Leftovers(e.cfg.LocalDir)
		if err := syn.Discard(e.cfg.SharedRoot, e.cfg.LocalDir); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]any{"removed": files})
		}
		if len(files) == 0 {
			fmt.Println("No local replica found.")
			return nil
		}
		fmt.Printf("Removed %d file(s) from %s\n", len(files), e.cfg.LocalDir)
		return nil
	},
}

func init() {
	replicaCmd.AddCommand(replicaCheckpointCmd)
	replicaCmd.AddCommand(replicaDiscardCmd)
	rootCmd.AddCommand(replicaCmd)
}
