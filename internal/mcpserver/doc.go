// Package mcpserver supervises worker processes and speaks the Model Context
// Protocol to them.
//
// Each data source is served by one worker: a child process that reads
// newline-delimited JSON-RPC requests on stdin and writes responses and
// notifications on stdout. Stderr carries the worker's logs and is
// re-emitted under the subsystem "Worker/<name>".
//
// # Core Components
//
// ## Launcher
//   - ExecLauncher starts "datacenter worker --datasource <name>" processes
//   - mcptest.Launcher runs workers in-process for tests
//
// ## StdioTransport
//   - Correlates responses with pending requests by id, in any order
//   - Logs and drops malformed lines and responses nobody waits for
//   - Serializes writes so concurrent requests never interleave
//   - Fails every pending request as soon as the worker's stdout ends
//
// ## WorkerProcess
//
// The lifecycle state machine of one worker:
//
//	Starting  --handshake ok-------------------> Connected
//	Starting  --launch/handshake failure-------> Failed
//	Connected --failed ping or Nth timeout-----> Degraded
//	Degraded  --ping success-------------------> Connected
//	Degraded  --Nth consecutive failed ping----> Failed (process killed)
//	any       --unexpected exit----------------> Failed
//	any       --Stop---------------------------> Stopped
//
// Stop closes stdin, waits for the grace period and then kills the process.
// A call that times out is reported to its caller as a CallError and the
// worker keeps running; only the threshold-th consecutive timeout degrades
// it. Calls are accepted only while Connected.
//
// # Handshake
//
// Start performs initialize (which also sends notifications/initialized),
// then tools/list and resources/list, and returns the advertised
// capabilities as a capability.Entry. A mismatch between what the worker
// advertises and its WorkerSpec is logged, not fatal.
//
// # Thread Safety
//
// All WorkerProcess methods are safe for concurrent use. The state-change
// callback runs outside the worker's lock.
package mcpserver
