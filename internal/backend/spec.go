package backend

import (
	"encoding/json"
	"slices"
)

// Kind groups backend types that share a protocol shape.
type Kind string

const (
	KindRelational Kind = "relational-sql"
	KindDocument   Kind = "document-store"
	KindKeyValue   Kind = "key-value-cache"
	KindSearch     Kind = "search-index"
	KindBroker     Kind = "message-broker"
	KindREST       Kind = "rest-api"
	KindGraphQL    Kind = "graphql-api"
)

// ResourcePlan is one resource a worker will advertise.
type ResourcePlan struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	MIMEType    string `json:"mimeType"`
	Description string `json:"description,omitempty"`

	// Target is the backend object the resource reads (a table, collection,
	// key, endpoint name, ...). Category says which kind of object it is.
	Target   string `json:"target"`
	Category string `json:"category"`
}

// ToolPlan is one tool a worker will advertise.
type ToolPlan struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// Plan is the registration plan a builder derives from a descriptor.
type Plan struct {
	Resources []ResourcePlan
	Tools     []ToolPlan
}

// LaunchOptions controls how worker processes are started.
type LaunchOptions struct {
	// Executable is the binary that implements the worker subcommand.
	Executable string
	// ConfigPath is the configuration file the worker re-reads to find its
	// descriptor.
	ConfigPath string
	// LogLevel is forwarded to the worker.
	LogLevel string
	// Env is appended to the worker environment.
	Env []string
}

// WorkerSpec is the immutable launch description for one data source.
type WorkerSpec struct {
	Source    string
	Type      string
	Kind      Kind
	Command   string
	Args      []string
	Env       []string
	Resources []ResourcePlan
	Tools     []ToolPlan
}

// Clone returns a deep copy so callers can never mutate a shared spec.
func (s WorkerSpec) Clone() WorkerSpec {
	out := s
	out.Args = slices.Clone(s.Args)
	out.Env = slices.Clone(s.Env)
	out.Resources = slices.Clone(s.Resources)
	out.Tools = make([]ToolPlan, len(s.Tools))
	for i, t := range s.Tools {
		t.InputSchema = slices.Clone(t.InputSchema)
		t.OutputSchema = slices.Clone(t.OutputSchema)
		out.Tools[i] = t
	}
	return out
}

// Tool returns the planned tool with the given name.
func (s WorkerSpec) Tool(name string) (ToolPlan, bool) {
	for _, t := range s.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolPlan{}, false
}

// Resource returns the planned resource with the given URI.
func (s WorkerSpec) Resource(uri string) (ResourcePlan, bool) {
	for _, r := range s.Resources {
		if r.URI == uri {
			return r, true
		}
	}
	return ResourcePlan{}, false
}
