package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"datacenter/internal/api"
	"datacenter/internal/config"
	"datacenter/internal/mcpserver/mcptest"
	"datacenter/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func delayed(d time.Duration, result any, err error) mcptest.ToolFunc {
	return func(ctx context.Context, _ map[string]any) (any, error) {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return result, err
	}
}

func threeSources() []config.DataSource {
	return []config.DataSource{
		sqliteSource("orders", "orders"),
		sqliteSource("inventory", "items"),
		sqliteSource("billing", "invoices"),
	}
}

func TestCrossSourceCall_CollectAllReportsEveryTarget(t *testing.T) {
	l := mcptest.NewLauncher()
	l.HandleTool("billing", "list_tables", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("database is locked")
	})
	o := startAll(t, l, threeSources()...)

	results, err := o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{
		Tool:     "list_tables",
		Strategy: api.CollectAll,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	failures := 0
	for name, r := range results {
		assert.Equal(t, name, r.Source)
		if r.OK() {
			continue
		}
		failures++
		assert.Equal(t, "billing", name)
		var ce *api.CallError
		require.ErrorAs(t, r.Err, &ce)
		assert.Equal(t, api.CallRemote, ce.Kind)
	}
	assert.Equal(t, 1, failures)
}

func TestCrossSourceCall_CollectAllTimesOutSlowTargets(t *testing.T) {
	l := mcptest.NewLauncher()
	l.HandleTool("inventory", "list_tables", delayed(5*time.Second, nil, nil))
	o := startAll(t, l, threeSources()...)

	begin := time.Now()
	results, err := o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{
		Tool:    "list_tables",
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 2*time.Second)
	require.Len(t, results, 3)
	assert.True(t, results["orders"].OK())
	assert.True(t, results["billing"].OK())
	assert.True(t, api.IsTimeout(results["inventory"].Err), "got %v", results["inventory"].Err)
}

func TestCrossSourceCall_FirstSuccessCancelsTheRest(t *testing.T) {
	l := mcptest.NewLauncher()
	l.HandleTool("orders", "list_tables", delayed(10*time.Millisecond, map[string]any{"winner": "orders"}, nil))
	l.HandleTool("inventory", "list_tables", delayed(3*time.Second, map[string]any{}, nil))
	l.HandleTool("billing", "list_tables", delayed(3*time.Second, map[string]any{}, nil))
	o := startAll(t, l, threeSources()...)

	begin := time.Now()
	results, err := o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{
		Tool:     "list_tables",
		Strategy: api.FirstSuccess,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), time.Second, "returns on the first success")
	require.Len(t, results, 1)
	require.True(t, results["orders"].OK())
	assert.Contains(t, results["orders"].Output.Text, "winner")

	// Losers finish cancelled without touching the returned map, and the
	// cancellation does not count against their workers.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, results, 1)
	for _, info := range o.ListSources() {
		assert.Equal(t, api.StateConnected, info.State, info.Name)
	}
}

func TestCrossSourceCall_FirstSuccessKeepsEarlierFailures(t *testing.T) {
	l := mcptest.NewLauncher()
	l.HandleTool("orders", "list_tables", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("no such table")
	})
	l.HandleTool("inventory", "list_tables", delayed(100*time.Millisecond, map[string]any{}, nil))
	l.HandleTool("billing", "list_tables", delayed(3*time.Second, map[string]any{}, nil))
	o := startAll(t, l, threeSources()...)

	results, err := o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{
		Tool:     "list_tables",
		Strategy: api.FirstSuccess,
	})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Error(t, results["orders"].Err)
	assert.True(t, results["inventory"].OK())
	assert.NotContains(t, results, "billing")
}

func TestCrossSourceCall_FirstSuccessWithNoWinner(t *testing.T) {
	l := mcptest.NewLauncher()
	for _, ds := range threeSources() {
		l.HandleTool(ds.Name, "list_tables", func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("unavailable")
		})
	}
	o := startAll(t, l, threeSources()...)

	results, err := o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{
		Tool:     "list_tables",
		Strategy: api.FirstSuccess,
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.False(t, r.OK())
	}
}

func TestCrossSourceCall_UnsupportedAndUnknownTargets(t *testing.T) {
	cache := config.DataSource{
		Name:       "sessions",
		Type:       "redis",
		Enabled:    true,
		Connection: map[string]any{"host": "localhost"},
	}
	o := startAll(t, mcptest.NewLauncher(), sqliteSource("orders", "orders"), cache)

	results, err := o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{
		Tool:    "execute_query",
		Args:    map[string]any{"sql": "SELECT 1"},
		Targets: []string{"orders", "sessions", "ghost", "orders"},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results["orders"].OK())
	assert.True(t, api.IsUnsupportedByTarget(results["sessions"].Err))
	assert.True(t, api.IsUnknownSource(results["ghost"].Err))
}

func TestCrossSourceCall_InvalidQuery(t *testing.T) {
	o := startAll(t, mcptest.NewLauncher(), sqliteSource("orders", "orders"))

	_, err := o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{})
	assert.ErrorIs(t, err, orchestrator.ErrInvalidQuery)

	_, err = o.CrossSourceCall(context.Background(), orchestrator.CrossSourceQuery{
		Tool:     "list_tables",
		Strategy: "fastest",
	})
	assert.ErrorIs(t, err, orchestrator.ErrInvalidQuery)
}
