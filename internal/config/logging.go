package config

// LoggingConfig configures the zap-backed logger (internal/logging).
type LoggingConfig struct {
	Debug bool `yaml:"debug" json:"debug,omitempty"` // development console encoding + debug level
}
