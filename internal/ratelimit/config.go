package ratelimit

import (
	"os"
	"strconv"
	"time"
)

// Config holds the dispatch limits for the generative endpoint.
type Config struct {
	CallsPerWindow int           // Maximum dispatches per window (0 disables the ceiling)
	Window         time.Duration // Window length
	MinSpacing     time.Duration // Minimum delay between consecutive dispatches
}

// DefaultConfig matches the free-tier quota of the generative endpoint.
func DefaultConfig() *Config {
	return &Config{
		CallsPerWindow: 15,
		Window:         DefaultWindow,
		MinSpacing:     4 * time.Second,
	}
}

// LoadConfig reads overrides from environment variables on top of the defaults.
func LoadConfig() *Config {
	cfg := DefaultConfig()
	cfg.CallsPerWindow = getEnvInt("LLM_CALLS_PER_MINUTE", cfg.CallsPerWindow)
	cfg.MinSpacing = getEnvDuration("LLM_MIN_SPACING", cfg.MinSpacing)
	return cfg
}

// getEnvInt gets an environment variable as an integer with a default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as a duration with a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
