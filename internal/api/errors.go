package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/client/transport"
)

// StartError reports that a worker process could not be launched or did not
// complete its handshake. The affected source is marked Failed; other
// sources are unaffected.
type StartError struct {
	// Source is the data source whose worker failed to start
	Source string

	// Phase names the step that failed (validate, build, launch, handshake, discover)
	Phase string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface for StartError.
func (e *StartError) Error() string {
	return fmt.Sprintf("data source %s failed to start during %s: %v", e.Source, e.Phase, e.Err)
}

// Unwrap returns the underlying cause so errors.As can reach it.
func (e *StartError) Unwrap() error {
	return e.Err
}

// IsStartError checks if an error is or wraps a StartError.
func IsStartError(err error) bool {
	var se *StartError
	return errors.As(err, &se)
}

// UnknownSourceError reports a call or registry lookup for a name that is
// not a currently routable data source.
type UnknownSourceError struct {
	// Source is the name that was looked up
	Source string
}

// Error implements the error interface for UnknownSourceError.
func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("unknown data source %q", e.Source)
}

// IsUnknownSource checks if an error is or wraps an UnknownSourceError.
//
// Example:
//
//	if _, err := orch.CallTool(ctx, "orders", "execute_query", args); api.IsUnknownSource(err) {
//	    // list-sources to see what is configured
//	}
func IsUnknownSource(err error) bool {
	var ue *UnknownSourceError
	return errors.As(err, &ue)
}

// SourceUnavailableError reports a call to a known data source whose worker
// is not Connected.
type SourceUnavailableError struct {
	// Source is the data source that was targeted
	Source string

	// State is the worker state at the time of the call
	State WorkerState
}

// Error implements the error interface for SourceUnavailableError.
func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("data source %s is not available (state %s)", e.Source, e.State)
}

// IsSourceUnavailable checks if an error is or wraps a SourceUnavailableError.
func IsSourceUnavailable(err error) bool {
	var se *SourceUnavailableError
	return errors.As(err, &se)
}

// CallErrorKind classifies why a single request failed.
type CallErrorKind string

const (
	// CallTimeout means no matching response arrived before the deadline.
	CallTimeout CallErrorKind = "timeout"
	// CallCancelled means the caller cancelled the request.
	CallCancelled CallErrorKind = "cancelled"
	// CallRemote means the worker answered with an error.
	CallRemote CallErrorKind = "remote"
	// CallTransport means the channel to the worker failed.
	CallTransport CallErrorKind = "transport"
)

// CallError reports the failure of one resource read or tool call. It never
// implies that the worker itself has failed.
type CallError struct {
	// Source is the data source the request was routed to
	Source string

	// Operation is the tool name or resource URI
	Operation string

	// Kind classifies the failure
	Kind CallErrorKind

	// Err is the underlying cause
	Err error
}

// Error implements the error interface for CallError.
func (e *CallError) Error() string {
	return fmt.Sprintf("%s on %s failed (%s): %v", e.Operation, e.Source, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CallError) Unwrap() error {
	return e.Err
}

// IsCallError checks if an error is or wraps a CallError.
func IsCallError(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}

// IsTimeout checks if an error is a CallError caused by a deadline.
func IsTimeout(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Kind == CallTimeout
}

// NewCallError wraps err in a CallError, classifying it by cause. A nil err
// yields nil.
//
// Args:
//   - source: The data source the request was routed to
//   - operation: The tool name or resource URI
//   - err: The failure returned by the protocol client
//
// Returns:
//   - *CallError: The classified error
func NewCallError(source, operation string, err error) *CallError {
	if err == nil {
		return nil
	}
	var existing *CallError
	if errors.As(err, &existing) {
		return existing
	}
	return &CallError{Source: source, Operation: operation, Kind: classify(err), Err: err}
}

// NewRemoteError builds a CallError for a failure the worker reported in
// its response payload.
func NewRemoteError(source, operation, message string) *CallError {
	return &CallError{Source: source, Operation: operation, Kind: CallRemote, Err: errors.New(message)}
}

func classify(err error) CallErrorKind {
	var te *transport.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CallTimeout
	case errors.Is(err, context.Canceled):
		return CallCancelled
	case errors.As(err, &te):
		return CallTransport
	default:
		return CallRemote
	}
}

// UnsupportedByTargetError reports that a fan-out target does not advertise
// the requested tool.
type UnsupportedByTargetError struct {
	// Source is the target that lacks the tool
	Source string

	// Tool is the requested tool name
	Tool string
}

// Error implements the error interface for UnsupportedByTargetError.
func (e *UnsupportedByTargetError) Error() string {
	return fmt.Sprintf("data source %s does not provide tool %s", e.Source, e.Tool)
}

// IsUnsupportedByTarget checks if an error is or wraps an UnsupportedByTargetError.
func IsUnsupportedByTarget(err error) bool {
	var ue *UnsupportedByTargetError
	return errors.As(err, &ue)
}
