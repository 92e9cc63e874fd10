// Package analytics provides local SQLite-based analytics for tracking
// command usage, success rates, and service call latency. Everything
// stays on the local machine.
package analytics

import "os"

// Event represents a single analytics event
type Event struct {
	ID         int64
	SessionID  string
	Timestamp  int64
	Command    string
	Method     string // service API method, when the command made one
	Success    bool
	DurationMs int64
	ErrorType  string
}

// CommandStats aggregates events for one command.
type CommandStats struct {
	Command       string
	Count         int64
	Failures      int64
	AvgDurationMs float64
}

// IsEnabledFromEnv checks the RTMILK_ANALYTICS_ENABLED environment
// variable and returns the effective enabled state. Environment
// variable overrides the config value.
func IsEnabledFromEnv(configEnabled bool) bool {
	envVal := os.Getenv("RTMILK_ANALYTICS_ENABLED")
	if envVal == "" {
		return configEnabled
	}
	return envVal == "true" || envVal == "1"
}
