// Package api defines the types shared between the orchestrator, the CLI
// and the worker supervisor: worker states, fan-out strategies, the result
// records returned by orchestrator operations and the error taxonomy.
//
// # Worker states
//
// A worker moves through Starting, Connected, Degraded, Failed and Stopped.
// Only Connected and Degraded workers are routable; Failed and Stopped are
// terminal for a given process.
//
// # Errors
//
// Callers distinguish failures with the Is* helpers rather than by string:
//
//   - StartError: a worker could not be built, launched or handshaken.
//   - UnknownSourceError: the name is not a routable data source.
//   - SourceUnavailableError: the source exists but its worker is not Connected.
//   - CallError: one request failed; Kind says whether it timed out, was
//     cancelled, failed in transport or was rejected by the worker.
//   - UnsupportedByTargetError: a fan-out target lacks the requested tool.
//
// None of these errors imply that any other data source is affected.
package api
