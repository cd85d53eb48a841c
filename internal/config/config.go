// Package config provides typed, YAML-backed configuration for the
// dopectx core, assembled from one small file per concern (broker.go,
// registry.go, store.go, attention.go, eventbus.go, syncindex.go,
// logging.go) the way codeNERD's internal/config package is laid out.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all dopectx core configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Broker    BrokerConfig    `yaml:"broker"`
	Registry  RegistryConfig  `yaml:"registry"`
	Store     StoreConfig     `yaml:"store"`
	Attention AttentionConfig `yaml:"attention"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	SyncIndex SyncIndexConfig `yaml:"syncindex"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "dopectx",
		Version: "0.1.0",

		Broker:    DefaultBrokerConfig(),
		Registry:  DefaultRegistryConfig(),
		Store:     DefaultStoreConfig(),
		Attention: DefaultAttentionConfig(),
		EventBus:  DefaultEventBusConfig(),
		SyncIndex: DefaultSyncIndexConfig(),
		Logging:   LoggingConfig{Debug: false},
	}
}

// Load loads configuration from a YAML file, falling back to defaults
// when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to a YAML file, creating parent directories
// as needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides on top of
// whatever was loaded from YAML (or the defaults).
func (c *Config) applyEnvOverrides() {
	if root := os.Getenv("DOPECTX_STORE_ROOT"); root != "" {
		c.Store.RootDir = root
	}
	if root := os.Getenv("DOPECTX_SNAPSHOT_ROOT"); root != "" {
		c.SyncIndex.SnapshotRootDir = root
	}
	if v := os.Getenv("DOPECTX_DEBUG"); v == "1" || v == "true" {
		c.Logging.Debug = true
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	for _, role := range []string{"research", "implementation", "quality", "coordination"} {
		if _, ok := c.Broker.Roles[role]; !ok {
			return fmt.Errorf("config: missing budget configuration for role %q", role)
		}
	}
	if c.Broker.CircuitBreakerThreshold == 0 {
		return fmt.Errorf("config: circuit_breaker_threshold must be > 0")
	}
	if c.EventBus.SubscriberQueueSize <= 0 {
		return fmt.Errorf("config: eventbus.subscriber_queue_size must be > 0")
	}
	return nil
}

// ExpandHome expands a leading "~" in a path to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	if len(path) > 1 && (path[1] == '/' || path[1] == os.PathSeparator) {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
