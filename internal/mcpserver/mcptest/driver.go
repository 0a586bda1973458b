package mcptest

import (
	"context"
	"sync"

	"datacenter/internal/backend"
)

// ToolFunc scripts one tool.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Driver echoes every call unless a ToolFunc is scripted for it.
type Driver struct {
	source string
	tools  map[string]ToolFunc

	mu    sync.Mutex
	calls map[string]int
}

func (d *Driver) CallTool(ctx context.Context, tool string, args map[string]any) (any, error) {
	d.mu.Lock()
	if d.calls == nil {
		d.calls = make(map[string]int)
	}
	d.calls[tool]++
	fn := d.tools[tool]
	d.mu.Unlock()

	if fn != nil {
		return fn(ctx, args)
	}
	return map[string]any{"source": d.source, "tool": tool, "args": args}, nil
}

func (d *Driver) ReadResource(_ context.Context, res backend.ResourcePlan) (any, error) {
	return map[string]any{"source": d.source, "uri": res.URI, "target": res.Target}, nil
}

func (d *Driver) Close() error { return nil }

// Calls counts invocations of tool.
func (d *Driver) Calls(tool string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[tool]
}
