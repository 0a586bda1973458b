package config

import "time"

const (
	// DefaultConfigFile is looked up in the working directory when no path
	// is given.
	DefaultConfigFile = "config.yaml"

	// EnvPrefix marks environment variables that override configuration
	// keys. A double underscore separates nesting levels, for example
	// DATACENTER_MANAGEMENT__FAILURE_THRESHOLD=5.
	EnvPrefix = "DATACENTER_"

	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultStartTimeout        = 15 * time.Second
	DefaultCallTimeout         = 30 * time.Second
	DefaultFanOutTimeout       = 60 * time.Second
	DefaultShutdownGracePeriod = 5 * time.Second
	DefaultFailureThreshold    = 3
)

// defaultValues is the lowest-priority layer of the configuration, keyed by
// flattened koanf paths.
func defaultValues() map[string]interface{} {
	return map[string]interface{}{
		"datacenter.name":                  "datacenter",
		"management.health_check_interval": DefaultHealthCheckInterval.String(),
		"management.health_check_timeout":  DefaultHealthCheckTimeout.String(),
		"management.start_timeout":         DefaultStartTimeout.String(),
		"management.call_timeout":          DefaultCallTimeout.String(),
		"management.fanout_timeout":        DefaultFanOutTimeout.String(),
		"management.shutdown_grace_period": DefaultShutdownGracePeriod.String(),
		"management.failure_threshold":     DefaultFailureThreshold,
		"management.metrics_enabled":       false,
		"logging.level":                    "info",
		"logging.format":                   "text",
	}
}
