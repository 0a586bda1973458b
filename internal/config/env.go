package config

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// EnvironmentFor exports a data source's connection and settings as
// environment variables: <NAME>_<KEY> for connection fields and
// <NAME>_SETTINGS_<KEY> for settings. Nested values are skipped.
func EnvironmentFor(ds DataSource) map[string]string {
	prefix := envToken(ds.Name) + "_"
	out := make(map[string]string, len(ds.Connection)+len(ds.Settings))
	for k, v := range ds.Connection {
		if s, ok := scalar(v); ok {
			out[prefix+envToken(k)] = s
		}
	}
	for k, v := range ds.Settings {
		if s, ok := scalar(v); ok {
			out[prefix+"SETTINGS_"+envToken(k)] = s
		}
	}
	return out
}

// EnvironList renders EnvironmentFor as sorted KEY=VALUE pairs.
func EnvironList(ds DataSource) []string {
	env := EnvironmentFor(ds)
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func envToken(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, s)
}

func scalar(v any) (string, bool) {
	switch v.(type) {
	case nil, map[string]any, []any:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
