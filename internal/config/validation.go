package config

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Source  string
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	var b strings.Builder
	if ve.Source != "" {
		fmt.Fprintf(&b, "datasource '%s': ", ve.Source)
	}
	if ve.Field != "" {
		fmt.Fprintf(&b, "field '%s': ", ve.Field)
	}
	b.WriteString(ve.Message)
	return b.String()
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(source, field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Source:  source,
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// requiredConnectionFields is the closed set of supported data source types
// and the minimum connection fields each one needs.
var requiredConnectionFields = map[string][]string{
	"postgresql":    {"host", "database"},
	"mysql":         {"host", "database"},
	"sqlite":        {"database_path"},
	"mongodb":       {"host", "database"},
	"redis":         {"host"},
	"elasticsearch": {"host"},
	"rabbitmq":      {"host"},
	"rest_api":      {"base_url"},
	"graphql":       {"endpoint"},
}

// SupportedTypes lists the data source types a configuration may declare.
func SupportedTypes() []string {
	out := make([]string, 0, len(requiredConnectionFields))
	for t := range requiredConnectionFields {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RequiredConnectionFields returns the minimum connection fields for t.
func RequiredConnectionFields(t string) ([]string, bool) {
	f, ok := requiredConnectionFields[t]
	return f, ok
}

// Validate checks the whole configuration and returns every problem found.
func Validate(cfg *DataCenterConfig) ValidationErrors {
	var errs ValidationErrors

	names := make(map[string]bool, len(cfg.DataSources))
	for i, ds := range cfg.DataSources {
		source := ds.Name
		if strings.TrimSpace(ds.Name) == "" {
			source = fmt.Sprintf("#%d", i)
			errs.Add(source, "name", "is required")
		} else if strings.ContainsAny(ds.Name, " \t/") {
			errs.Add(source, "name", "cannot contain whitespace or '/'", ds.Name)
		} else if names[ds.Name] {
			errs.Add(source, "name", "duplicate data source name", ds.Name)
		}
		names[ds.Name] = true

		validateDataSource(&errs, source, ds)
	}

	ports := make(map[int]string)
	for i, s := range cfg.Servers {
		field := fmt.Sprintf("servers[%d]", i)
		if s.DataSource == "" {
			errs.Add("", field+".datasource", "is required")
		} else if !names[s.DataSource] {
			errs.Add(s.DataSource, field+".datasource", "references an unknown data source", s.DataSource)
		}
		if s.Port != 0 {
			if s.Port < 0 || s.Port > 65535 {
				errs.Add(s.DataSource, field+".port", "must be a positive port number", s.Port)
			} else if other, dup := ports[s.Port]; dup {
				errs.Add(s.DataSource, field+".port", fmt.Sprintf("port conflicts with data source '%s'", other), s.Port)
			} else {
				ports[s.Port] = s.DataSource
			}
		}
	}

	m := cfg.Management
	if m.HealthCheckInterval <= 0 {
		errs.Add("", "management.health_check_interval", "must be positive", m.HealthCheckInterval)
	}
	if m.HealthCheckTimeout <= 0 {
		errs.Add("", "management.health_check_timeout", "must be positive", m.HealthCheckTimeout)
	}
	if m.StartTimeout <= 0 {
		errs.Add("", "management.start_timeout", "must be positive", m.StartTimeout)
	}
	if m.CallTimeout <= 0 {
		errs.Add("", "management.call_timeout", "must be positive", m.CallTimeout)
	}
	if m.FanOutTimeout <= 0 {
		errs.Add("", "management.fanout_timeout", "must be positive", m.FanOutTimeout)
	}
	if m.ShutdownGracePeriod <= 0 {
		errs.Add("", "management.shutdown_grace_period", "must be positive", m.ShutdownGracePeriod)
	}
	if m.FailureThreshold <= 0 {
		errs.Add("", "management.failure_threshold", "must be a positive integer", m.FailureThreshold)
	}

	if f := cfg.Logging.Format; f != "" && f != "text" && f != "json" {
		errs.Add("", "logging.format", "must be one of: text, json", f)
	}

	return errs
}

// numericSettings are the settings every backend reads as counts or
// seconds. They must be positive integers, written as numbers or strings.
var numericSettings = map[string]bool{
	"timeout":         true,
	"pool_size":       true,
	"max_connections": true,
	"query_limit":     true,
}

// ValidateDataSource checks a single descriptor in isolation. Orchestrators
// use it to reject one source without failing the others.
func ValidateDataSource(ds DataSource) ValidationErrors {
	var errs ValidationErrors
	source := ds.Name
	if strings.TrimSpace(source) == "" {
		errs.Add("", "name", "is required")
	}
	validateDataSource(&errs, source, ds)
	return errs
}

func validateDataSource(errs *ValidationErrors, source string, ds DataSource) {
	required, ok := requiredConnectionFields[ds.Type]
	if !ok {
		errs.Add(source, "type", fmt.Sprintf("unsupported type %q, must be one of: %s", ds.Type, strings.Join(SupportedTypes(), ", ")), ds.Type)
		return
	}

	for _, field := range required {
		v, present := ds.Connection[field]
		if !present || v == nil || strings.TrimSpace(fmt.Sprint(v)) == "" {
			errs.Add(source, "connection."+field, fmt.Sprintf("is required for %s", ds.Type))
		}
	}

	if v, present := ds.Connection["port"]; present {
		if n, ok := asInt(v); !ok || n <= 0 || n > 65535 {
			errs.Add(source, "connection.port", "must be a positive port number", v)
		}
	}

	keys := make([]string, 0, len(ds.Settings))
	for k := range ds.Settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := ds.Settings[k]
		if numericSettings[k] {
			if n, ok := settingInt(v); !ok || n <= 0 {
				errs.Add(source, "settings."+k, "must be a positive integer", v)
			}
			continue
		}
		switch v.(type) {
		case int, int64, uint64, float64:
			if n, ok := asInt(v); !ok || n <= 0 {
				errs.Add(source, "settings."+k, "must be a positive integer", v)
			}
		}
	}
}
