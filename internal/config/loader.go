package config

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"datacenter/pkg/logging"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// flagKeys maps command line flags onto configuration keys. Only flags that
// were explicitly set override lower layers.
var flagKeys = map[string]string{
	"health-check-interval": "management.health_check_interval",
	"health-check-timeout":  "management.health_check_timeout",
	"call-timeout":          "management.call_timeout",
	"failure-threshold":     "management.failure_threshold",
	"log-level":             "logging.level",
	"log-format":            "logging.format",
}

type loadOptions struct {
	path   string
	flags  *pflag.FlagSet
	useEnv bool
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithPath records the file the document came from.
func WithPath(path string) LoadOption {
	return func(o *loadOptions) { o.path = path }
}

// WithFlags layers explicitly set command line flags over the document.
func WithFlags(flags *pflag.FlagSet) LoadOption {
	return func(o *loadOptions) { o.flags = flags }
}

// WithoutEnv disables DATACENTER_* environment overrides.
func WithoutEnv() LoadOption {
	return func(o *loadOptions) { o.useEnv = false }
}

// LoadFile reads path and loads it.
func LoadFile(path string, opts ...LoadOption) (*DataCenterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Load(data, append([]LoadOption{WithPath(path)}, opts...)...)
	if err != nil {
		return nil, err
	}
	logging.Info("ConfigLoader", "Loaded configuration from %s (%d data sources)", path, len(cfg.DataSources))
	return cfg, nil
}

// Load turns a raw YAML document into a validated configuration.
// Precedence (highest to lowest): flags > env vars > document > defaults.
// Any problem yields a *ConfigError and a nil configuration.
func Load(raw []byte, opts ...LoadOption) (*DataCenterConfig, error) {
	o := loadOptions{useEnv: true}
	for _, opt := range opts {
		opt(&o)
	}

	doc, problems := parseDocument(raw)
	if problems.HasErrors() {
		return nil, newConfigError(o.path, problems)
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaultValues(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(confmap.Provider(doc, ""), nil); err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	if o.useEnv {
		if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
			s = strings.TrimPrefix(s, EnvPrefix)
			return strings.ToLower(strings.ReplaceAll(s, "__", "."))
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load env vars: %w", err)
		}
	}

	if o.flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(o.flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, known := flagKeys[f.Name]
			if !f.Changed || !known {
				return "", nil
			}
			return key, posflag.FlagVal(o.flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg DataCenterConfig
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       mapstructure.ComposeDecodeHookFunc(durationHook),
			WeaklyTypedInput: true,
		},
	}); err != nil {
		var errs ValidationErrors
		errs.Add("", "", fmt.Sprintf("unable to decode config: %v", err))
		return nil, newConfigError(o.path, errs)
	}
	cfg.Path = o.path

	if errs := Validate(&cfg); errs.HasErrors() {
		return nil, newConfigError(o.path, errs)
	}
	return &cfg, nil
}

// parseDocument decodes raw into a generic map, rejecting duplicate mapping
// keys at any depth and normalizing the datasources list.
func parseDocument(raw []byte) (map[string]interface{}, ValidationErrors) {
	var errs ValidationErrors

	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		errs.Add("", "", fmt.Sprintf("malformed YAML: %v", err))
		return nil, errs
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return map[string]interface{}{}, nil
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		errs.Add("", "", fmt.Sprintf("line %d: document must be a mapping", top.Line))
		return nil, errs
	}
	checkDuplicateKeys(&errs, top, "")
	if errs.HasErrors() {
		return nil, errs
	}

	doc := map[string]interface{}{}
	if err := top.Decode(&doc); err != nil {
		errs.Add("", "", fmt.Sprintf("malformed document: %v", err))
		return nil, errs
	}

	normalizeDataSources(&errs, doc)
	return doc, errs
}

func checkDuplicateKeys(errs *ValidationErrors, node *yaml.Node, path string) {
	switch node.Kind {
	case yaml.MappingNode:
		seen := make(map[string]int, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			field := key.Value
			if path != "" {
				field = path + "." + key.Value
			}
			if first, dup := seen[key.Value]; dup {
				errs.Add("", field, fmt.Sprintf("duplicate key at line %d (first defined at line %d)", key.Line, first))
				continue
			}
			seen[key.Value] = key.Line
			checkDuplicateKeys(errs, val, field)
		}
	case yaml.SequenceNode:
		for i, item := range node.Content {
			checkDuplicateKeys(errs, item, fmt.Sprintf("%s[%d]", path, i))
		}
	}
}

func normalizeDataSources(errs *ValidationErrors, doc map[string]interface{}) {
	raw, ok := doc["datasources"]
	if !ok || raw == nil {
		return
	}
	list, ok := raw.([]interface{})
	if !ok {
		errs.Add("", "datasources", "must be a list")
		return
	}
	for i, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			errs.Add("", fmt.Sprintf("datasources[%d]", i), "must be a mapping")
			continue
		}
		if _, set := entry["enabled"]; !set {
			entry["enabled"] = true
		}
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// durationHook accepts Go duration strings ("30s") as well as bare numbers,
// which are read as seconds.
func durationHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != durationType || from == durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.String:
		s := strings.TrimSpace(data.(string))
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	}
	return data, nil
}

// Marshal renders cfg back to YAML.
func Marshal(cfg *DataCenterConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// MarshalJSON renders cfg as indented JSON with the same keys as the YAML
// document.
func MarshalJSON(cfg *DataCenterConfig) ([]byte, error) {
	data, err := Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to re-read configuration: %w", err)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
