package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"datacenter/internal/backend"
	"datacenter/internal/config"
	"datacenter/internal/driver"
	"datacenter/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SourceInfoTool is served by the runtime itself for every data source.
const SourceInfoTool = "source_info"

// Runtime serves one data source: the tools and resources of its
// WorkerSpec, executed by a driver.
type Runtime struct {
	spec    backend.WorkerSpec
	driver  driver.Driver
	server  *server.MCPServer
	started time.Time
}

// New builds the runtime for spec. The plan decides what is advertised; d
// decides how each call is carried out. Extra server options are applied
// after the defaults.
func New(spec backend.WorkerSpec, d driver.Driver, version string, opts ...server.ServerOption) *Runtime {
	r := &Runtime{spec: spec.Clone(), driver: d, started: time.Now()}
	opts = append([]server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	}, opts...)
	r.server = server.NewMCPServer(spec.Source, version, opts...)

	for _, tp := range r.spec.Tools {
		tool := mcp.NewToolWithRawSchema(tp.Name, tp.Description, tp.InputSchema)
		if len(tp.OutputSchema) > 0 {
			tool.RawOutputSchema = tp.OutputSchema
		}
		r.server.AddTool(tool, r.toolHandler(tp.Name))
	}
	for _, rp := range r.spec.Resources {
		res := mcp.NewResource(rp.URI, rp.Name,
			mcp.WithMIMEType(rp.MIMEType),
			mcp.WithResourceDescription(rp.Description),
		)
		r.server.AddResource(res, r.resourceHandler(rp))
	}
	return r
}

// Server exposes the underlying protocol server.
func (r *Runtime) Server() *server.MCPServer {
	return r.server
}

// Serve speaks the protocol over in and out until in is closed or ctx ends.
func (r *Runtime) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	logging.Info("Worker", "Serving %s (%s) with %d resources and %d tools",
		r.spec.Source, r.spec.Type, len(r.spec.Resources), len(r.spec.Tools))
	err := server.NewStdioServer(r.server).Listen(ctx, in, out)
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// Run opens the driver for ds and serves it over in and out. The driver is
// closed when serving stops.
func Run(ctx context.Context, ds config.DataSource, version string, in io.Reader, out io.Writer) error {
	spec, err := backend.Build(ds, backend.LaunchOptions{})
	if err != nil {
		return err
	}
	d, err := driver.Open(ds)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logging.Warn("Worker", "Closing driver for %s: %v", ds.Name, err)
		}
	}()

	return New(spec, d, version).Serve(ctx, in, out)
}

func (r *Runtime) toolHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if name == SourceInfoTool {
			return structuredResult(r.info())
		}

		start := time.Now()
		out, err := r.driver.CallTool(ctx, name, req.GetArguments())
		if err != nil {
			logging.Warn("Worker", "Tool %s on %s failed after %s: %v", name, r.spec.Source, time.Since(start), err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		logging.Debug("Worker", "Tool %s on %s completed in %s", name, r.spec.Source, time.Since(start))
		return structuredResult(out)
	}
}

func (r *Runtime) resourceHandler(rp backend.ResourcePlan) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		out, err := r.driver.ReadResource(ctx, rp)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", rp.URI, err)
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", rp.URI, err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: rp.URI, MIMEType: rp.MIMEType, Text: string(data)},
		}, nil
	}
}

func (r *Runtime) info() map[string]any {
	uris := make([]string, len(r.spec.Resources))
	for i, rp := range r.spec.Resources {
		uris[i] = rp.URI
	}
	tools := make([]string, len(r.spec.Tools))
	for i, tp := range r.spec.Tools {
		tools[i] = tp.Name
	}
	return map[string]any{
		"name":       r.spec.Source,
		"type":       r.spec.Type,
		"kind":       string(r.spec.Kind),
		"resources":  uris,
		"tools":      tools,
		"started_at": r.started.UTC().Format(time.RFC3339),
	}
}

func structuredResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("result is not serializable: %v", err)), nil
	}
	return mcp.NewToolResultStructured(v, string(data)), nil
}
