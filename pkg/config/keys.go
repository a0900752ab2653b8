package config

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ctenopoma/issuer/pkg/errclass"
)

// Keys lists every configuration key in file order. Nested keys are dotted.
var Keys = []string{
	"shared_root",
	"local_dir",
	"store_file",
	"lock_file",
	"owner",
	"zombie_threshold",
	"heartbeat_interval",
	"local_replica",
	"replica_for_readonly",
	"reclaim_own_lock",
	"audit_file",
	"logging.level",
	"logging.file",
}

func checkKey(key string) error {
	if !slices.Contains(Keys, key) {
		return errclass.ErrConfigInvalid.WithMessagef("unknown key %q (known: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

func (c *Config) toMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// Get returns the value of key formatted as text, or "" when unset.
func (c *Config) Get(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	m, err := c.toMap()
	if err != nil {
		return "", err
	}

	parts := strings.Split(key, ".")
	var cur any = m
	for _, p := range parts {
		node, ok := cur.(map[string]any)
		if !ok {
			return "", nil
		}
		if cur, ok = node[p]; !ok {
			return "", nil
		}
	}
	if cur == nil {
		return "", nil
	}
	return fmt.Sprint(cur), nil
}

// Set parses value as a YAML scalar and assigns it to key. The result is
// not validated; call Validate before using it.
func (c *Config) Set(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	m, err := c.toMap()
	if err != nil {
		return err
	}

	var typed any
	if err := yaml.Unmarshal([]byte(value), &typed); err != nil || typed == nil {
		typed = value
	}

	parts := strings.Split(key, ".")
	node := m
	for _, p := range parts[:len(parts)-1] {
		child, ok := node[p].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[p] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = typed

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var next Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&next); err != nil {
		return errclass.ErrConfigInvalid.WithMessagef("%s: %v", key, err)
	}
	*c = next
	return nil
}
