package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ConfigError reports why a configuration document was rejected. Loading is
// all-or-nothing: whenever a ConfigError is returned no configuration is.
type ConfigError struct {
	Path     string
	Problems ValidationErrors
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	prefix := "invalid configuration"
	if e.Path != "" {
		prefix = fmt.Sprintf("invalid configuration %s", e.Path)
	}
	if len(e.Problems) == 0 {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, e.Problems.Error())
}

// Unwrap exposes the individual problems to errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Problems
}

// Sources returns the sorted, de-duplicated names of the data sources the
// problems refer to.
func (e *ConfigError) Sources() []string {
	seen := make(map[string]struct{})
	for _, p := range e.Problems {
		if p.Source != "" {
			seen[p.Source] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DetailedError renders one problem per line for terminal output.
func (e *ConfigError) DetailedError() string {
	lines := []string{"Configuration errors:"}
	for _, p := range e.Problems {
		lines = append(lines, "  - "+p.Error())
	}
	return strings.Join(lines, "\n")
}

func newConfigError(path string, problems ValidationErrors) *ConfigError {
	return &ConfigError{Path: path, Problems: problems}
}

// IsConfigError checks whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
