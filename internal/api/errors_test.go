package api

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCallError_Classifies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want CallErrorKind
	}{
		{name: "deadline", err: fmt.Errorf("read: %w", context.DeadlineExceeded), want: CallTimeout},
		{name: "cancel", err: context.Canceled, want: CallCancelled},
		{name: "transport", err: transport.NewError(errors.New("broken pipe")), want: CallTransport},
		{name: "anything else", err: errors.New("relation does not exist"), want: CallRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := NewCallError("orders", "execute_query", tt.err)
			require.NotNil(t, ce)
			assert.Equal(t, tt.want, ce.Kind)
			assert.ErrorIs(t, ce, tt.err)
		})
	}
}

func TestNewCallError_NilAndExisting(t *testing.T) {
	assert.Nil(t, NewCallError("orders", "q", nil))

	inner := NewRemoteError("orders", "q", "syntax error")
	wrapped := NewCallError("billing", "other", fmt.Errorf("fan-out: %w", inner))
	assert.Same(t, inner, wrapped)
	assert.Equal(t, "orders", wrapped.Source)
}

func TestErrorPredicates(t *testing.T) {
	timeout := NewCallError("orders", "q", context.DeadlineExceeded)
	assert.True(t, IsCallError(timeout))
	assert.True(t, IsTimeout(fmt.Errorf("wrapped: %w", timeout)))
	assert.False(t, IsTimeout(NewRemoteError("orders", "q", "boom")))

	start := &StartError{Source: "orders", Phase: "launch", Err: errors.New("exec format error")}
	assert.True(t, IsStartError(fmt.Errorf("x: %w", start)))
	assert.Contains(t, start.Error(), "during launch")

	assert.True(t, IsUnknownSource(&UnknownSourceError{Source: "nope"}))
	assert.True(t, IsSourceUnavailable(&SourceUnavailableError{Source: "orders", State: StateFailed}))
	assert.True(t, IsUnsupportedByTarget(&UnsupportedByTargetError{Source: "cache", Tool: "execute_query"}))
	assert.False(t, IsUnknownSource(errors.New("unknown data source")))
}

func TestWorkerState(t *testing.T) {
	assert.True(t, StateConnected.Routable())
	assert.True(t, StateDegraded.Routable())
	assert.False(t, StateStarting.Routable())
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateStopped.Terminal())
	assert.False(t, StateDegraded.Terminal())
}
