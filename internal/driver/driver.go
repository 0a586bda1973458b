package driver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"datacenter/internal/backend"
	"datacenter/internal/config"

	"github.com/go-viper/mapstructure/v2"
)

// DefaultRowLimit caps result sets when neither the call nor the data source
// sets a limit.
const DefaultRowLimit = 1000

// ErrUnknownTool is returned by drivers for tools they do not implement.
var ErrUnknownTool = errors.New("unknown tool")

// Driver executes tools and reads resources against one backend. Its
// results are JSON-serializable values.
type Driver interface {
	CallTool(ctx context.Context, tool string, args map[string]any) (any, error)
	ReadResource(ctx context.Context, res backend.ResourcePlan) (any, error)
	Close() error
}

// Factory opens a driver for a validated descriptor. Factories should not
// block on the network; connections are established on first use where the
// client library allows it.
type Factory func(ds config.DataSource) (Driver, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register adds the factory for a type tag.
func Register(typeName string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[typeName] = f
}

// Types returns every type tag with a registered driver (sorted).
func Types() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open builds the driver for ds.
func Open(ds config.DataSource) (Driver, error) {
	factoriesMu.RLock()
	f, ok := factories[ds.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, &backend.UnsupportedTypeError{Source: ds.Name, Type: ds.Type, Available: Types()}
	}
	d, err := f(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s driver for %s: %w", ds.Type, ds.Name, err)
	}
	return d, nil
}

// decodeArgs decodes tool arguments into a typed struct. Numbers arriving
// as float64 from JSON decode into int fields.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func unknownTool(name string) error {
	return fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

func required(field, value string) error {
	if value == "" {
		return fmt.Errorf("argument %q is required", field)
	}
	return nil
}

// rowLimit picks the effective limit: the call's, else the source's
// query_limit setting, else DefaultRowLimit.
func rowLimit(requested int, ds config.DataSource) int {
	if requested > 0 {
		return requested
	}
	return ds.SettingInt("query_limit", DefaultRowLimit)
}
