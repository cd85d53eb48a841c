package config

import "time"

// BackendConfig describes one statically-configured backend server (§6.4).
type BackendConfig struct {
	Name              string        `yaml:"name" json:"name"`
	Transport         string        `yaml:"transport" json:"transport"` // "http" | "stdio"
	Endpoint          string        `yaml:"endpoint" json:"endpoint"`   // URL or command line
	RoleTags          []string      `yaml:"role_tags" json:"role_tags"`
	Priority          string        `yaml:"priority" json:"priority"`
	ProbePath         string        `yaml:"probe_path,omitempty" json:"probe_path,omitempty"`
	ProbePort         int           `yaml:"probe_port,omitempty" json:"probe_port,omitempty"`
	DefaultTimeout    time.Duration `yaml:"default_timeout" json:"default_timeout"`
	Enabled           bool          `yaml:"enabled" json:"enabled"`
}

// RegistryConfig configures the Backend Registry (§4.2).
type RegistryConfig struct {
	Backends []BackendConfig `yaml:"backends" json:"backends"`

	// ProbeInterval is how often probe_all() runs after startup warm-up.
	ProbeInterval time.Duration `yaml:"probe_interval" json:"probe_interval"`

	// ProbeTimeout bounds a single health check (§4.2, HTTP: 2s).
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// StartupWarmupOrder lists priority tiers in a startup probe order.
	// No code reads it: the registry has no startup sequencing, and
	// ProbeAll probes every backend concurrently.
	StartupWarmupOrder []string `yaml:"startup_warmup_order" json:"startup_warmup_order"`
}

// DefaultRegistryConfig returns sensible registry defaults; Backends is
// empty — backends are registered by deployment-specific configuration.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		ProbeInterval:      20 * time.Second,
		ProbeTimeout:       2 * time.Second,
		StartupWarmupOrder: []string{"critical_path", "workflow", "research", "quality", "utility"},
	}
}
