package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ctenopoma/issuer/pkg/color"
	"github.com/ctenopoma/issuer/pkg/config"
	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/fsutil"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage issuer configuration",
	Long: `Manage issuer configuration stored in <shared-root>/issuer.yaml.

Every key can also be set from the environment as ISSUER_<KEY>, with dots
replaced by underscores (ISSUER_LOGGING_LEVEL). Environment and flags take
precedence over the file.

Keys:
  ` + strings.Join(config.Keys, "\n  "),
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(cfg)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		source := "defaults"
		if fsutil.Exists(path) {
			source = path
		}
		fmt.Println(color.Dim("# issuer configuration (" + source + ")"))
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the shared root",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if fsutil.Exists(path) && !configInitForce {
			return errclass.ErrConfigInvalid.WithMessagef("%s already exists (use --force to overwrite)", path)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]any{"path": path, "config": cfg})
		}
		fmt.Println(color.Successf("Wrote %s", path))
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one effective configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		value, err := cfg.Get(args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return outputJSON(map[string]string{args[0]: value})
		}
		if value == "" {
			fmt.Printf("%s (not set)\n", args[0])
		} else {
			fmt.Println(value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the config file",
	Long: `Set a value in the config file.

Only the file is changed; environment overrides still apply on top of it.

Examples:
  issuer config set zombie_threshold 2h
  issuer config set local_replica true
  issuer config set logging.file issuer_debug.log`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if cfg.SharedRoot != "" {
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Printf("Set %s = %s\n", args[0], args[1])
		}
		return outputJSON(map[string]string{args[0]: args[1]})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing config file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
