package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"datacenter/internal/api"
	"datacenter/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls   []string
	args    map[string]any
	query   orchestrator.CrossSourceQuery
	healthy []string
}

func (f *fakeBackend) ListSources() []api.SourceInfo {
	return []api.SourceInfo{{Name: "orders", Type: "postgresql", Enabled: true, State: api.StateConnected, Tools: 4}}
}

func (f *fakeBackend) HealthCheck(_ context.Context, names ...string) map[string]api.HealthStatus {
	f.healthy = names
	return map[string]api.HealthStatus{"orders": {Source: "orders", State: api.StateConnected, Healthy: true}}
}

func (f *fakeBackend) ListResources(name string) ([]api.Resource, error) {
	if name != "orders" {
		return nil, &api.UnknownSourceError{Source: name}
	}
	return []api.Resource{{Name: "table_orders", URI: "postgresql://orders/table/orders"}}, nil
}

func (f *fakeBackend) ListTools(name string) ([]api.Tool, error) {
	return []api.Tool{{Name: "execute_query"}}, nil
}

func (f *fakeBackend) ReadResource(_ context.Context, name, uri string) ([]api.ResourceContent, error) {
	f.calls = append(f.calls, "read "+name+" "+uri)
	return []api.ResourceContent{{URI: uri, Text: `{"rows":[]}`}}, nil
}

func (f *fakeBackend) CallTool(_ context.Context, name, tool string, args map[string]any) (*api.ToolOutput, error) {
	f.calls = append(f.calls, "call "+name+" "+tool)
	f.args = args
	return &api.ToolOutput{Text: `{"count":1}`}, nil
}

func (f *fakeBackend) CrossSourceCall(_ context.Context, q orchestrator.CrossSourceQuery) (map[string]api.CallResult, error) {
	f.query = q
	return map[string]api.CallResult{
		"orders":  {Source: "orders", Output: &api.ToolOutput{Text: "ok"}},
		"billing": {Source: "billing", Err: errors.New("boom")},
	}, nil
}

func newTestREPL(t *testing.T) (*REPL, *fakeBackend, *bytes.Buffer) {
	t.Helper()
	b := &fakeBackend{}
	var out bytes.Buffer
	return NewREPL(b, &out, nil), b, &out
}

func TestREPL_CallPassesJSONWithSpaces(t *testing.T) {
	r, b, out := newTestREPL(t)

	require.NoError(t, r.Execute(context.Background(), `call orders execute_query {"sql": "SELECT * FROM orders"}`))
	assert.Equal(t, []string{"call orders execute_query"}, b.calls)
	assert.Equal(t, map[string]any{"sql": "SELECT * FROM orders"}, b.args)
	assert.Contains(t, out.String(), `"count": 1`)
}

func TestREPL_CrossSourceCall(t *testing.T) {
	r, b, out := newTestREPL(t)

	require.NoError(t, r.Execute(context.Background(), `cross --first list_tables orders,billing {"limit": 5}`))
	assert.Equal(t, api.FirstSuccess, b.query.Strategy)
	assert.Equal(t, "list_tables", b.query.Tool)
	assert.Equal(t, []string{"orders", "billing"}, b.query.Targets)
	assert.Equal(t, map[string]any{"limit": float64(5)}, b.query.Args)
	assert.Contains(t, out.String(), "boom")

	require.NoError(t, r.Execute(context.Background(), "cross list_tables all"))
	assert.Equal(t, api.CollectAll, b.query.Strategy)
	assert.Empty(t, b.query.Targets)
}

func TestREPL_Errors(t *testing.T) {
	r, _, _ := newTestREPL(t)
	ctx := context.Background()

	assert.ErrorContains(t, r.Execute(ctx, "frobnicate"), "unknown command")
	assert.ErrorContains(t, r.Execute(ctx, "read orders"), "usage: read")
	assert.ErrorContains(t, r.Execute(ctx, "call orders q {not json"), "JSON object")
	assert.True(t, api.IsUnknownSource(r.Execute(ctx, "resources ghost")))
	assert.ErrorContains(t, r.Execute(ctx, "reload"), "no configuration file")
	assert.ErrorIs(t, r.Execute(ctx, "quit"), ErrExit)
	assert.NoError(t, r.Execute(ctx, "   "))
}

func TestREPL_ListingCommands(t *testing.T) {
	r, b, out := newTestREPL(t)
	ctx := context.Background()

	require.NoError(t, r.Execute(ctx, "ls"))
	assert.Contains(t, out.String(), "postgresql")

	require.NoError(t, r.Execute(ctx, "health orders billing"))
	assert.Equal(t, []string{"orders", "billing"}, b.healthy)

	require.NoError(t, r.Execute(ctx, "resources orders"))
	assert.Contains(t, out.String(), "postgresql://orders/table/orders")

	require.NoError(t, r.Execute(ctx, "read orders postgresql://orders/table/orders"))
	assert.Contains(t, b.calls, "read orders postgresql://orders/table/orders")

	out.Reset()
	require.NoError(t, r.Execute(ctx, "help"))
	assert.Contains(t, out.String(), "cross [--first]")
}

func TestREPL_Reload(t *testing.T) {
	reloaded := 0
	r := NewREPL(&fakeBackend{}, &bytes.Buffer{}, func(context.Context) error {
		reloaded++
		return nil
	})
	require.NoError(t, r.Execute(context.Background(), "reload"))
	assert.Equal(t, 1, reloaded)
}
