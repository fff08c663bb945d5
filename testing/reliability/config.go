package reliability

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level            string        `envconfig:"LEVEL"` // "basic" or "stress"
	Duration         time.Duration `envconfig:"DURATION" default:"30s"`
	MaxGoroutines    int           `envconfig:"MAX_GOROUTINES" default:"100"`
	FailureThreshold float64       `envconfig:"FAILURE_THRESHOLD" default:"0.05"`
}

// getReliabilityConfig reads INSTRUMENTZ_RELIABILITY_* environment variables.
// Unparseable values fall back to the defaults.
func getReliabilityConfig() ReliabilityConfig {
	var config ReliabilityConfig
	if err := envconfig.Process("INSTRUMENTZ_RELIABILITY", &config); err != nil {
		config = ReliabilityConfig{
			Duration:         30 * time.Second,
			MaxGoroutines:    100,
			FailureThreshold: 0.05,
		}
	}
	return config
}

// isStressTestEnabled checks if stress testing is enabled.
func isStressTestEnabled() bool {
	return getReliabilityConfig().Level == "stress"
}

// shouldSkipReliabilityTests determines if reliability tests should be skipped.
func shouldSkipReliabilityTests() bool {
	return getReliabilityConfig().Level == ""
}
