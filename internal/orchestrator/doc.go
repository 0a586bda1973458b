// Package orchestrator runs one worker process per data source and routes
// requests to them.
//
// The orchestrator is the single entry point of the data center: the CLI
// never talks to a worker directly. It owns the process table, keeps the
// capability registry in step with worker state, and turns per-source
// failures into per-source results instead of aborting the whole operation.
//
// # Lifecycle
//
//   - StartAll validates and builds every enabled descriptor, then starts
//     the workers concurrently. A source that fails validation, build,
//     launch or handshake is reported as an api.StartError and marked
//     Failed; the others are unaffected.
//   - Run checks every worker at management.health_check_interval.
//     Failed health checks drive the worker state machine (see mcpserver).
//   - Reconcile applies a reloaded configuration: removed or disabled
//     sources are stopped, changed and failed ones restarted, new ones
//     started.
//   - StopAll closes every channel, waits the shutdown grace period and
//     kills what is left.
//
// # Routing
//
// ReadResource and CallTool resolve the source first:
//
//   - a name without a table entry fails with api.UnknownSourceError
//   - a known source whose worker is not Connected fails with
//     api.SourceUnavailableError
//   - a tool the worker never advertised fails with
//     api.UnsupportedByTargetError
//
// Everything after that is an api.CallError. Calls are never retried.
//
// # Cross-source calls
//
// CrossSourceCall sends one tool call to many sources and captures each
// outcome in its own api.CallResult:
//
//	results, err := orch.CrossSourceCall(ctx, orchestrator.CrossSourceQuery{
//	    Tool:     "execute_query",
//	    Args:     map[string]any{"sql": "SELECT count(*) FROM orders"},
//	    Strategy: api.CollectAll,
//	})
//
// api.CollectAll waits for every branch, bounded by the fan-out timeout.
// api.FirstSuccess returns with the first success and cancels the other
// branches; cancelled branches never appear in the result.
//
// # Registry
//
// A source is listed in the capability registry while its worker is
// Connected or Degraded. The entry is replaced when a Degraded worker
// recovers and removed when it fails or stops.
//
// # Events
//
// SubscribeToStateChanges delivers every worker state transition. Slow
// subscribers lose events instead of blocking workers.
package orchestrator
