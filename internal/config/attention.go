package config

import "time"

// AttentionConfig configures the Attention Engine (§4.4).
//
// The exact numeric thresholds for attention classification are only
// loosely defined upstream; they are kept here as
// configuration rather than hard-coded constants so operators can tune
// them per user/workspace.
type AttentionConfig struct {
	// ScatteredSwitchRateThreshold is the minimum task-switching rate
	// (switches per minute) combined with fast typing cadence to classify
	// "scattered".
	ScatteredSwitchRateThreshold float64 `yaml:"scattered_switch_rate_threshold" json:"scattered_switch_rate_threshold"`
	ScatteredCadenceThreshold    float64 `yaml:"scattered_cadence_threshold" json:"scattered_cadence_threshold"`

	// HyperfocusMinDuration is the minimum continuous session duration
	// before "hyperfocused" becomes eligible, given minimal switching.
	HyperfocusMinDuration     time.Duration `yaml:"hyperfocus_min_duration" json:"hyperfocus_min_duration"`
	HyperfocusMaxSwitchRate   float64       `yaml:"hyperfocus_max_switch_rate" json:"hyperfocus_max_switch_rate"`

	// Break policy (§4.4): recommended at 25m, strongly recommended at 60m,
	// mandatory at 90m.
	BreakRecommendedAfter       time.Duration `yaml:"break_recommended_after" json:"break_recommended_after"`
	BreakStronglyRecommendedAfter time.Duration `yaml:"break_strongly_recommended_after" json:"break_strongly_recommended_after"`
	BreakMandatoryAfter         time.Duration `yaml:"break_mandatory_after" json:"break_mandatory_after"`

	// BreakGracePeriod is loaded and defaulted but not read by the
	// Attention Engine: RecommendBreak keeps returning a mandatory break
	// from BreakMandatoryAfter until Resume resets the session clock.
	BreakGracePeriod time.Duration `yaml:"break_grace_period" json:"break_grace_period"`

	// SampleRetention bounds how long attention samples are kept for
	// streak/trend computation before LRU/TTL eviction.
	SampleRetention time.Duration `yaml:"sample_retention" json:"sample_retention"`
}

// DefaultAttentionConfig returns the break policy and classification
// thresholds described below.
func DefaultAttentionConfig() AttentionConfig {
	return AttentionConfig{
		ScatteredSwitchRateThreshold:   3.0, // >3 switches/min
		ScatteredCadenceThreshold:      6.0, // >6 keystrokes/sec
		HyperfocusMinDuration:          45 * time.Minute,
		HyperfocusMaxSwitchRate:        0.5,
		BreakRecommendedAfter:          25 * time.Minute,
		BreakStronglyRecommendedAfter:  60 * time.Minute,
		BreakMandatoryAfter:            90 * time.Minute,
		BreakGracePeriod:               5 * time.Minute,
		SampleRetention:                7 * 24 * time.Hour,
	}
}
