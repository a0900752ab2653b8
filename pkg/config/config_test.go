package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctenopoma/issuer/pkg/errclass"
)

func validConfig(t *testing.T) *Config {
	cfg := Default()
	cfg.SharedRoot = t.TempDir()
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.StoreFile != "data.db" {
		t.Errorf("expected store_file data.db, got %s", cfg.StoreFile)
	}
	if cfg.LockFile != "app.lock" {
		t.Errorf("expected lock_file app.lock, got %s", cfg.LockFile)
	}
	if cfg.LocalReplica {
		t.Error("expected local_replica to default to false")
	}
	if cfg.ReclaimOwnLock {
		t.Error("expected reclaim_own_lock to default to false")
	}
	if filepath.Base(cfg.LocalDir) != "Issuer" {
		t.Errorf("expected local_dir to end in Issuer, got %s", cfg.LocalDir)
	}

	threshold, err := cfg.ZombieThresholdDuration()
	if err != nil || threshold != time.Hour {
		t.Errorf("expected 1h threshold, got %v (%v)", threshold, err)
	}
	interval, err := cfg.HeartbeatIntervalDuration()
	if err != nil || interval != time.Minute {
		t.Errorf("expected 60s interval, got %v (%v)", interval, err)
	}
}

func TestLoad_NotExists(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config, got nil")
	}
	if cfg.ZombieThreshold != "1h" {
		t.Errorf("expected default zombie_threshold, got %s", cfg.ZombieThreshold)
	}
}

func TestLoad_Exists(t *testing.T) {
	dir := t.TempDir()
	configContent := `
shared_root: /mnt/share/issues
local_dir: /home/alice/.cache/Issuer
store_file: issues.db
zombie_threshold: 90m
heartbeat_interval: 30s
local_replica: true
logging:
  level: debug
  file: /tmp/issuer_debug.log
`
	path := Path(dir)
	if err := os.WriteFile(path, []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SharedRoot != "/mnt/share/issues" {
		t.Errorf("expected shared_root, got %s", cfg.SharedRoot)
	}
	if cfg.StoreFile != "issues.db" {
		t.Errorf("expected store_file issues.db, got %s", cfg.StoreFile)
	}
	if cfg.LockFile != "app.lock" {
		t.Errorf("expected lock_file default to survive, got %s", cfg.LockFile)
	}
	if !cfg.LocalReplica {
		t.Error("expected local_replica true")
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.File != "/tmp/issuer_debug.log" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	threshold, _ := cfg.ZombieThresholdDuration()
	if threshold != 90*time.Minute {
		t.Errorf("expected 90m threshold, got %v", threshold)
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("shared_root: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	cfg := Default()
	cfg.SharedRoot = "/mnt/share"
	cfg.ReplicaForReadOnly = true

	if err := Save(path, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading: %v", err)
	}
	if loaded.SharedRoot != "/mnt/share" {
		t.Errorf("expected shared_root /mnt/share, got %s", loaded.SharedRoot)
	}
	if !loaded.ReplicaForReadOnly {
		t.Error("expected replica_for_readonly true")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing shared root", func(c *Config) { c.SharedRoot = "" }},
		{"replica without local dir", func(c *Config) { c.LocalReplica = true; c.LocalDir = "" }},
		{"store file with separator", func(c *Config) { c.StoreFile = "sub/data.db" }},
		{"lock file empty", func(c *Config) { c.LockFile = "" }},
		{"same store and lock", func(c *Config) { c.LockFile = c.StoreFile }},
		{"bad threshold", func(c *Config) { c.ZombieThreshold = "soon" }},
		{"negative threshold", func(c *Config) { c.ZombieThreshold = "-1h" }},
		{"zero heartbeat", func(c *Config) { c.HeartbeatInterval = "0s" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"audit file with separator", func(c *Config) { c.AuditFile = "../audit.jsonl" }},
		{"audit file is the lock", func(c *Config) { c.AuditFile = c.LockFile }},
		{"replica dir is the shared root", func(c *Config) { c.LocalReplica = true; c.LocalDir = c.SharedRoot }},
		{"readonly replica dir is the shared root", func(c *Config) {
			c.ReplicaForReadOnly = true
			c.LocalDir = filepath.Join(c.SharedRoot, "sub", "..")
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, errclass.ErrConfigInvalid) {
				t.Errorf("expected E_CONFIG_INVALID, got %v", err)
			}
		})
	}

	if err := validConfig(t).Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	// Without replicas local_dir is unused, so it may point anywhere.
	cfg := validConfig(t)
	cfg.LocalDir = cfg.SharedRoot
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config without replicas, got %v", err)
	}
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.SharedRoot = filepath.Join("mnt", "share")
	if got := cfg.LockPath(); got != filepath.Join("mnt", "share", "app.lock") {
		t.Errorf("unexpected lock path %s", got)
	}
	if got := cfg.SharedStorePath(); got != filepath.Join("mnt", "share", "data.db") {
		t.Errorf("unexpected store path %s", got)
	}
	if got := cfg.AuditPath(); got != filepath.Join("mnt", "share", DefaultAuditFile) {
		t.Errorf("unexpected audit path %s", got)
	}
	cfg.AuditFile = ""
	if got := cfg.AuditPath(); got != "" {
		t.Errorf("expected no audit path when disabled, got %s", got)
	}
}

func TestEffectiveOwner(t *testing.T) {
	cfg := Default()
	cfg.Owner = `CORP\alice`
	if got := cfg.EffectiveOwner(); got != "alice" {
		t.Errorf("expected alice, got %s", got)
	}
	cfg.Owner = ""
	if cfg.EffectiveOwner() == "" {
		t.Error("expected a non-empty OS owner")
	}
}

func TestGetSet(t *testing.T) {
	cfg := validConfig(t)

	if err := cfg.Set("zombie_threshold", "90m"); err != nil {
		t.Fatalf("set zombie_threshold: %v", err)
	}
	if d, _ := cfg.ZombieThresholdDuration(); d != 90*time.Minute {
		t.Errorf("expected 90m, got %s", d)
	}

	if err := cfg.Set("local_replica", "true"); err != nil {
		t.Fatalf("set local_replica: %v", err)
	}
	if !cfg.LocalReplica {
		t.Error("expected local_replica true")
	}

	if err := cfg.Set("logging.level", "debug"); err != nil {
		t.Fatalf("set logging.level: %v", err)
	}
	got, err := cfg.Get("logging.level")
	if err != nil || got != "debug" {
		t.Errorf("get logging.level = %q, %v", got, err)
	}

	got, err = cfg.Get("owner")
	if err != nil || got != "" {
		t.Errorf("unset owner = %q, %v", got, err)
	}
	if got, _ := cfg.Get("local_replica"); got != "true" {
		t.Errorf("get local_replica = %q", got)
	}
}

func TestGetSet_Invalid(t *testing.T) {
	cfg := validConfig(t)

	if err := cfg.Set("engine", "copy"); !errors.Is(err, errclass.ErrConfigInvalid) {
		t.Errorf("unknown key: expected ErrConfigInvalid, got %v", err)
	}
	if _, err := cfg.Get("engine"); !errors.Is(err, errclass.ErrConfigInvalid) {
		t.Errorf("unknown key: expected ErrConfigInvalid, got %v", err)
	}
	if err := cfg.Set("local_replica", "sometimes"); !errors.Is(err, errclass.ErrConfigInvalid) {
		t.Errorf("bad bool: expected ErrConfigInvalid, got %v", err)
	}
	if cfg.LocalReplica {
		t.Error("failed set must not change the config")
	}
}
