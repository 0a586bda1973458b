package backend

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"datacenter/internal/config"
)

// Builder derives the registration plan for one backend type. It must not
// perform I/O.
type Builder interface {
	Kind() Kind
	Plan(ds config.DataSource) (Plan, error)
}

// BuilderFunc adapts a plain function to Builder.
type BuilderFunc struct {
	K Kind
	F func(ds config.DataSource) (Plan, error)
}

func (b BuilderFunc) Kind() Kind { return b.K }

func (b BuilderFunc) Plan(ds config.DataSource) (Plan, error) { return b.F(ds) }

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Builder)
)

// Register adds a builder for a type tag. Called by builder files in their
// init() functions.
func Register(typeName string, b Builder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typeName] = b
}

// Get retrieves the builder for a type tag.
func Get(typeName string) (Builder, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	b, ok := registry[typeName]
	return b, ok
}

// Types returns all registered type tags (sorted).
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnsupportedTypeError is returned when no builder is registered for a
// descriptor's type.
type UnsupportedTypeError struct {
	Source    string
	Type      string
	Available []string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("data source %q: unsupported type %q (available: %s)", e.Source, e.Type, strings.Join(e.Available, ", "))
}

// PlanFor resolves the builder for ds and returns its plan with the common
// source_info tool appended.
func PlanFor(ds config.DataSource) (Kind, Plan, error) {
	b, ok := Get(ds.Type)
	if !ok {
		return "", Plan{}, &UnsupportedTypeError{Source: ds.Name, Type: ds.Type, Available: Types()}
	}
	plan, err := b.Plan(ds)
	if err != nil {
		return "", Plan{}, fmt.Errorf("data source %q: %w", ds.Name, err)
	}
	plan.Tools = append(plan.Tools, sourceInfoTool())
	return b.Kind(), plan, nil
}

// Build turns a descriptor into a WorkerSpec. No process is started and no
// connection is opened.
func Build(ds config.DataSource, opts LaunchOptions) (WorkerSpec, error) {
	kind, plan, err := PlanFor(ds)
	if err != nil {
		return WorkerSpec{}, err
	}

	args := []string{"worker", "--datasource", ds.Name}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	if opts.LogLevel != "" {
		args = append(args, "--log-level", opts.LogLevel)
	}

	env := config.EnvironList(ds)
	env = append(env, opts.Env...)

	spec := WorkerSpec{
		Source:    ds.Name,
		Type:      ds.Type,
		Kind:      kind,
		Command:   opts.Executable,
		Args:      args,
		Env:       env,
		Resources: plan.Resources,
		Tools:     plan.Tools,
	}
	return spec.Clone(), nil
}
