package config

import "time"

// RoleBudget configures the rolling token/cost budget for one broker role.
type RoleBudget struct {
	Budget            int           `yaml:"budget" json:"budget"`
	DefaultTimeout    time.Duration `yaml:"default_timeout" json:"default_timeout"`
	RollingWindow     time.Duration `yaml:"rolling_window" json:"rolling_window"`
}

// BrokerConfig configures the Meta-Broker (§4.1).
type BrokerConfig struct {
	// Roles maps role name -> budget/timeout policy.
	Roles map[string]RoleBudget `yaml:"roles" json:"roles"`

	// DocumentationPreferredTools lists tool names that must try a
	// documentation-role backend first before falling back to web-research.
	DocumentationPreferredTools []string `yaml:"documentation_preferred_tools" json:"documentation_preferred_tools"`

	// MaxRetries is the number of same-backend retries before failover (§4.1.2).
	MaxRetries int `yaml:"max_retries" json:"max_retries"`

	// RetryBaseDelay is the exponential backoff base (§4.1.2, default 100ms).
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" json:"retry_base_delay"`

	// RetryJitter is the +/- fractional jitter applied to each backoff delay.
	RetryJitter float64 `yaml:"retry_jitter" json:"retry_jitter"`

	// CircuitBreakerThreshold is consecutive failures before a backend opens (default 5).
	CircuitBreakerThreshold uint32 `yaml:"circuit_breaker_threshold" json:"circuit_breaker_threshold"`

	// CircuitBreakerCooldown is how long a circuit stays open before half-open probing.
	CircuitBreakerCooldown time.Duration `yaml:"circuit_breaker_cooldown" json:"circuit_breaker_cooldown"`

	// ScatteredTokenLimit caps result payload size when attention_state=scattered.
	ScatteredTokenLimit int `yaml:"scattered_token_limit" json:"scattered_token_limit"`

	// HyperfocusBreakSoftMinutes/HardMinutes are loaded and defaulted but
	// not read by the broker: it emits no break event of its own, and its
	// break gate follows the Attention Engine's BreakMandatoryAfter.
	HyperfocusBreakSoftMinutes int `yaml:"hyperfocus_break_soft_minutes" json:"hyperfocus_break_soft_minutes"`
	HyperfocusBreakHardMinutes int `yaml:"hyperfocus_break_hard_minutes" json:"hyperfocus_break_hard_minutes"`
}

// DefaultBrokerConfig returns the default role budgets and timeouts.
func DefaultBrokerConfig() BrokerConfig {
	return BrokerConfig{
		Roles: map[string]RoleBudget{
			"research": {
				Budget:         20000,
				DefaultTimeout: 2 * time.Second,
				RollingWindow:  24 * time.Hour,
			},
			"implementation": {
				Budget:         25000,
				DefaultTimeout: 10 * time.Second,
				RollingWindow:  24 * time.Hour,
			},
			"quality": {
				Budget:         15000,
				DefaultTimeout: 30 * time.Second,
				RollingWindow:  24 * time.Hour,
			},
			"coordination": {
				Budget:         10000,
				DefaultTimeout: 10 * time.Second,
				RollingWindow:  24 * time.Hour,
			},
		},
		DocumentationPreferredTools: []string{"lookup", "docs_search"},
		MaxRetries:                  2,
		RetryBaseDelay:              100 * time.Millisecond,
		RetryJitter:                 0.5,
		CircuitBreakerThreshold:     5,
		CircuitBreakerCooldown:      30 * time.Second,
		ScatteredTokenLimit:         1200,
		HyperfocusBreakSoftMinutes:  60,
		HyperfocusBreakHardMinutes:  90,
	}
}
