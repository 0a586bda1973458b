package capability

import (
	"encoding/json"
	"slices"
	"time"

	"datacenter/internal/api"

	"github.com/mark3labs/mcp-go/mcp"
)

// Entry is the immutable capability snapshot of one connected worker.
// Accessors return copies; an Entry is never modified after construction.
type Entry struct {
	source       string
	resources    []api.Resource
	tools        []api.Tool
	toolIndex    map[string]int
	resourceURIs map[string]int
	discoveredAt time.Time
}

// NewEntry builds a snapshot from resources and tools, keeping the given
// order.
func NewEntry(source string, resources []api.Resource, tools []api.Tool) *Entry {
	e := &Entry{
		source:       source,
		resources:    slices.Clone(resources),
		tools:        slices.Clone(tools),
		toolIndex:    make(map[string]int, len(tools)),
		resourceURIs: make(map[string]int, len(resources)),
		discoveredAt: time.Now(),
	}
	for i, t := range e.tools {
		if _, dup := e.toolIndex[t.Name]; !dup {
			e.toolIndex[t.Name] = i
		}
	}
	for i, r := range e.resources {
		if _, dup := e.resourceURIs[r.URI]; !dup {
			e.resourceURIs[r.URI] = i
		}
	}
	return e
}

// FromMCP converts a worker's list results into an Entry.
func FromMCP(source string, resources []mcp.Resource, tools []mcp.Tool) *Entry {
	res := make([]api.Resource, 0, len(resources))
	for _, r := range resources {
		res = append(res, api.Resource{
			Name:        r.Name,
			URI:         r.URI,
			MIMEType:    r.MIMEType,
			Description: r.Description,
		})
	}

	ts := make([]api.Tool, 0, len(tools))
	for _, t := range tools {
		tool := api.Tool{Name: t.Name, Description: t.Description}
		tool.InputSchema = schemaJSON(t.RawInputSchema, mcp.ToolArgumentsSchema(t.InputSchema))
		if t.RawOutputSchema != nil || t.OutputSchema.Type != "" {
			tool.OutputSchema = schemaJSON(t.RawOutputSchema, mcp.ToolArgumentsSchema(t.OutputSchema))
		}
		ts = append(ts, tool)
	}
	return NewEntry(source, res, ts)
}

func schemaJSON(raw json.RawMessage, structured mcp.ToolArgumentsSchema) json.RawMessage {
	if raw != nil {
		return slices.Clone(raw)
	}
	b, err := json.Marshal(structured)
	if err != nil {
		return nil
	}
	return b
}

// Source is the data source the entry belongs to.
func (e *Entry) Source() string { return e.source }

// DiscoveredAt is when the snapshot was taken.
func (e *Entry) DiscoveredAt() time.Time { return e.discoveredAt }

// Resources returns the advertised resources in order.
func (e *Entry) Resources() []api.Resource { return slices.Clone(e.resources) }

// Tools returns the advertised tools in order.
func (e *Entry) Tools() []api.Tool { return slices.Clone(e.tools) }

// HasTool reports whether the worker advertises name.
func (e *Entry) HasTool(name string) bool {
	_, ok := e.toolIndex[name]
	return ok
}

// Tool looks a tool up by name.
func (e *Entry) Tool(name string) (api.Tool, bool) {
	i, ok := e.toolIndex[name]
	if !ok {
		return api.Tool{}, false
	}
	return e.tools[i], true
}

// HasResource reports whether the worker advertises uri.
func (e *Entry) HasResource(uri string) bool {
	_, ok := e.resourceURIs[uri]
	return ok
}
