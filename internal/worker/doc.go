// Package worker is the child side of a data source: the process the
// orchestrator launches with "datacenter worker --datasource <name>".
//
// The runtime advertises exactly the resources and tools of the
// WorkerSpec that package backend derives from the descriptor, so the
// orchestrator's capability registry and the worker always agree. Calls
// are delegated to the driver registered for the source type. Stdout
// carries the protocol; all logging goes to stderr.
package worker
