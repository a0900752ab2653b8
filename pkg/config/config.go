// Package config provides configuration file support for issuer.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ctenopoma/issuer/pkg/errclass"
	"github.com/ctenopoma/issuer/pkg/logging"
	"github.com/ctenopoma/issuer/pkg/pathutil"
)

// FileName is the configuration file looked up in the shared root.
const FileName = "issuer.yaml"

// DefaultAuditFile is the lock journal kept in the shared root.
const DefaultAuditFile = "issuer_audit.jsonl"

// Config represents the issuer configuration.
type Config struct {
	SharedRoot        string `yaml:"shared_root" json:"shared_root"`
	LocalDir          string `yaml:"local_dir" json:"local_dir"`
	StoreFile         string `yaml:"store_file" json:"store_file"`
	LockFile          string `yaml:"lock_file" json:"lock_file"`
	Owner             string `yaml:"owner,omitempty" json:"owner,omitempty"`
	ZombieThreshold   string `yaml:"zombie_threshold" json:"zombie_threshold"`
	HeartbeatInterval string `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	// LocalReplica stages the store into LocalDir for the session's lifetime.
	// It is set explicitly by the launcher; nothing probes the environment for it.
	LocalReplica       bool `yaml:"local_replica" json:"local_replica"`
	ReplicaForReadOnly bool `yaml:"replica_for_readonly" json:"replica_for_readonly"`
	ReclaimOwnLock     bool `yaml:"reclaim_own_lock" json:"reclaim_own_lock"`
	// AuditFile is the lock journal in the shared root; empty disables it.
	AuditFile string        `yaml:"audit_file" json:"audit_file"`
	Logging   LoggingConfig `yaml:"logging" json:"logging"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"` // empty logs to stderr
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		LocalDir:          DefaultLocalDir(),
		StoreFile:         "data.db",
		LockFile:          "app.lock",
		ZombieThreshold:   "1h",
		HeartbeatInterval: "60s",
		AuditFile:         DefaultAuditFile,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultLocalDir returns the per-user cache directory for replicas.
func DefaultLocalDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "Issuer")
}

// DefaultOwner returns the current OS account name.
func DefaultOwner() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return pathutil.NormalizeOwner(u.Username)
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return pathutil.NormalizeOwner(v)
		}
	}
	return "unknown"
}

// Path returns the default config file location inside sharedRoot.
func Path(sharedRoot string) string {
	return filepath.Join(sharedRoot, FileName)
}

// Load loads configuration from path.
// Returns default config if the file doesn't exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Save writes configuration to path.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate checks that cfg is usable for a session.
func (c *Config) Validate() error {
	if c.SharedRoot == "" {
		return errclass.ErrConfigInvalid.WithMessage("shared_root is required")
	}
	if c.LocalReplica && c.LocalDir == "" {
		return errclass.ErrConfigInvalid.WithMessage("local_dir is required when local_replica is enabled")
	}
	if (c.LocalReplica || c.ReplicaForReadOnly) && c.LocalDir != "" && pathutil.SameDir(c.LocalDir, c.SharedRoot) {
		return errclass.ErrConfigInvalid.WithMessage("local_dir must not be the shared_root when replicas are enabled")
	}
	if err := pathutil.ValidateFileName(c.StoreFile); err != nil {
		return errclass.ErrConfigInvalid.WithMessagef("store_file: %v", err)
	}
	if err := pathutil.ValidateFileName(c.LockFile); err != nil {
		return errclass.ErrConfigInvalid.WithMessagef("lock_file: %v", err)
	}
	if c.StoreFile == c.LockFile {
		return errclass.ErrConfigInvalid.WithMessage("store_file and lock_file must differ")
	}
	if c.AuditFile != "" {
		if err := pathutil.ValidateFileName(c.AuditFile); err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("audit_file: %v", err)
		}
		if c.AuditFile == c.StoreFile || c.AuditFile == c.LockFile {
			return errclass.ErrConfigInvalid.WithMessage("audit_file must differ from store_file and lock_file")
		}
	}
	if _, err := c.ZombieThresholdDuration(); err != nil {
		return err
	}
	if _, err := c.HeartbeatIntervalDuration(); err != nil {
		return err
	}
	if c.Logging.Level != "" {
		if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
			return errclass.ErrConfigInvalid.WithMessagef("logging.level: %v", err)
		}
	}
	return nil
}

// ZombieThresholdDuration parses ZombieThreshold.
func (c *Config) ZombieThresholdDuration() (time.Duration, error) {
	return positiveDuration("zombie_threshold", c.ZombieThreshold)
}

// HeartbeatIntervalDuration parses HeartbeatInterval.
func (c *Config) HeartbeatIntervalDuration() (time.Duration, error) {
	return positiveDuration("heartbeat_interval", c.HeartbeatInterval)
}

// LockPath returns the absolute lock file path.
func (c *Config) LockPath() string {
	return filepath.Join(c.SharedRoot, c.LockFile)
}

// AuditPath returns the lock journal path, or "" when the journal is off.
func (c *Config) AuditPath() string {
	if c.AuditFile == "" {
		return ""
	}
	return filepath.Join(c.SharedRoot, c.AuditFile)
}

// SharedStorePath returns the primary store file on the shared root.
func (c *Config) SharedStorePath() string {
	return filepath.Join(c.SharedRoot, c.StoreFile)
}

// EffectiveOwner returns Owner, or the OS account name when unset.
func (c *Config) EffectiveOwner() string {
	if c.Owner != "" {
		return pathutil.NormalizeOwner(c.Owner)
	}
	return DefaultOwner()
}

func positiveDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
	}
	if d <= 0 {
		return 0, errclass.ErrConfigInvalid.WithMessagef("%s must be positive, got %s", key, value)
	}
	return d, nil
}
