package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DataCenterConfig is the validated, in-memory form of a data center
// configuration document.
type DataCenterConfig struct {
	DataCenter  DataCenterInfo   `yaml:"datacenter" koanf:"datacenter"`
	DataSources []DataSource     `yaml:"datasources" koanf:"datasources"`
	Servers     []ServerConfig   `yaml:"servers,omitempty" koanf:"servers"`
	Management  ManagementConfig `yaml:"management" koanf:"management"`
	Security    map[string]any   `yaml:"security,omitempty" koanf:"security"`
	Logging     LoggingConfig    `yaml:"logging" koanf:"logging"`
	Monitoring  map[string]any   `yaml:"monitoring,omitempty" koanf:"monitoring"`

	// Path is the file the configuration was read from, if any. Workers are
	// launched against the same file.
	Path string `yaml:"-" koanf:"-"`
}

// DataCenterInfo is descriptive metadata only.
type DataCenterInfo struct {
	Name        string `yaml:"name" koanf:"name"`
	Version     string `yaml:"version,omitempty" koanf:"version"`
	Description string `yaml:"description,omitempty" koanf:"description"`
	Environment string `yaml:"environment,omitempty" koanf:"environment"`
}

// DataSource describes one backend. Connection, Settings and Extras are
// opaque to everything except the backend builder for Type.
type DataSource struct {
	Name        string         `yaml:"name" koanf:"name"`
	Type        string         `yaml:"type" koanf:"type"`
	Enabled     bool           `yaml:"enabled" koanf:"enabled"`
	Description string         `yaml:"description,omitempty" koanf:"description"`
	Connection  map[string]any `yaml:"connection" koanf:"connection"`
	Settings    map[string]any `yaml:"settings,omitempty" koanf:"settings"`

	// Extras holds every other key of the descriptor (tables, collections,
	// endpoints, headers, ...).
	Extras map[string]any `yaml:",inline" koanf:",remain"`
}

// SettingInt returns a numeric setting, or def when it is absent or not an
// integer.
func (ds DataSource) SettingInt(key string, def int) int {
	v, ok := ds.Settings[key]
	if !ok {
		return def
	}
	if n, ok := settingInt(v); ok {
		return n
	}
	return def
}

// Timeout returns the per-call timeout declared in settings.timeout
// (seconds), or def.
func (ds DataSource) Timeout(def time.Duration) time.Duration {
	if n := ds.SettingInt("timeout", 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}

// ConnectionString returns a connection field as a string, or "" when absent.
func (ds DataSource) ConnectionString(key string) string {
	v, ok := ds.Connection[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// ServerConfig holds per-source auxiliary settings. Port is reporting-only;
// workers always talk over stdio.
type ServerConfig struct {
	DataSource string `yaml:"datasource" koanf:"datasource"`
	Port       int    `yaml:"port,omitempty" koanf:"port"`
	LogLevel   string `yaml:"log_level,omitempty" koanf:"log_level"`
}

// ManagementConfig tunes worker supervision.
type ManagementConfig struct {
	HealthCheckInterval time.Duration `yaml:"health_check_interval" koanf:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout" koanf:"health_check_timeout"`
	StartTimeout        time.Duration `yaml:"start_timeout" koanf:"start_timeout"`
	CallTimeout         time.Duration `yaml:"call_timeout" koanf:"call_timeout"`
	FanOutTimeout       time.Duration `yaml:"fanout_timeout" koanf:"fanout_timeout"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period" koanf:"shutdown_grace_period"`
	FailureThreshold    int           `yaml:"failure_threshold" koanf:"failure_threshold"`
	MetricsEnabled      bool          `yaml:"metrics_enabled" koanf:"metrics_enabled"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// EnabledDataSources returns the enabled sources in declaration order.
func (c *DataCenterConfig) EnabledDataSources() []DataSource {
	var out []DataSource
	for _, ds := range c.DataSources {
		if ds.Enabled {
			out = append(out, ds)
		}
	}
	return out
}

// DataSource looks a source up by name.
func (c *DataCenterConfig) DataSource(name string) (DataSource, bool) {
	for _, ds := range c.DataSources {
		if ds.Name == name {
			return ds, true
		}
	}
	return DataSource{}, false
}

// Server returns the server block that references the named source.
func (c *DataCenterConfig) Server(name string) (ServerConfig, bool) {
	for _, s := range c.Servers {
		if s.DataSource == name {
			return s, true
		}
	}
	return ServerConfig{}, false
}

// settingInt is asInt that also accepts integers written as strings.
func settingInt(v any) (int, bool) {
	if str, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(str))
		return n, err == nil
	}
	return asInt(v)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
