package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ctenopoma/issuer/pkg/color"
	"github.com/ctenopoma/issuer/pkg/config"
	"github.com/ctenopoma/issuer/pkg/logging"
)

// newViper binds flags and environment variables. Every config key can be
// set as ISSUER_<KEY> with dots as underscores. Names used by earlier
// launchers are accepted after the current ones.
func newViper(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("ISSUER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range config.Keys {
		v.BindEnv(key)
	}
	v.BindEnv("shared_root", "ISSUER_SHARED_ROOT", "ISSUER_ORIGINAL_DIR")
	v.BindEnv("local_replica", "ISSUER_LOCAL_REPLICA", "ISSUER_LOCAL_RELAUNCH")

	// cmd.Flags() holds the inherited persistent flags as parsed.
	flags := cmd.Flags()
	v.BindPFlag("shared_root", flags.Lookup("shared-root"))
	v.BindPFlag("local_dir", flags.Lookup("local-dir"))
	v.BindPFlag("owner", flags.Lookup("owner"))
	v.BindPFlag("logging.level", flags.Lookup("log-level"))
	return v
}

// loadConfig resolves the config file and applies environment and flag
// overrides on top of it. Precedence: flag, environment, file, default.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	v := newViper(cmd)

	root := v.GetString("shared_root")
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("cannot get current directory: %w", err)
		}
		root = cwd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, "", fmt.Errorf("resolve shared root: %w", err)
	}

	path := configPath
	if path == "" {
		path = config.Path(root)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	applyOverrides(v, cfg)
	if cfg.SharedRoot == "" || v.IsSet("shared_root") {
		cfg.SharedRoot = root
	}
	return cfg, path, nil
}

func applyOverrides(v *viper.Viper, cfg *config.Config) {
	str := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	boolean := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	str("local_dir", &cfg.LocalDir)
	str("store_file", &cfg.StoreFile)
	str("lock_file", &cfg.LockFile)
	str("owner", &cfg.Owner)
	str("zombie_threshold", &cfg.ZombieThreshold)
	str("heartbeat_interval", &cfg.HeartbeatInterval)
	str("audit_file", &cfg.AuditFile)
	str("logging.level", &cfg.Logging.Level)
	str("logging.file", &cfg.Logging.File)
	boolean("local_replica", &cfg.LocalReplica)
	boolean("replica_for_readonly", &cfg.ReplicaForReadOnly)
	boolean("reclaim_own_lock", &cfg.ReclaimOwnLock)
}

// env is what a command needs to act on the configured store.
type env struct {
	cfg     *config.Config
	path    string
	log     *logging.Logger
	closers []io.Closer
}

// openEnv loads and validates the config and sets up logging. A relative
// log file is placed in the shared root.
func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, path, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := logging.LevelInfo
	if cfg.Logging.Level != "" {
		level, _ = logging.ParseLevel(cfg.Logging.Level)
	}

	e := &env{cfg: cfg, path: path}
	if cfg.Logging.File != "" {
		file := cfg.Logging.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(cfg.SharedRoot, file)
		}
		log, closer, err := logging.OpenFile(file, level)
		if err != nil {
			return nil, err
		}
		e.log = log
		e.closers = append(e.closers, closer)
	} else {
		e.log = logging.NewLogger(level)
	}
	logging.SetGlobal(e.log)
	return e, nil
}

func (e *env) close() {
	for _, c := range e.closers {
		c.Close()
	}
}

func fmtErr(format string, args ...any) {
	prefix := "issuer: "
	if color.Enabled() {
		prefix = color.Error("issuer:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
