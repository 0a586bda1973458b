// Package capability caches the resources and tools each worker advertises.
//
// A worker's handshake yields one immutable Entry. The Registry stores one
// Entry per data source and swaps it wholesale whenever the worker
// (re)connects; disconnecting removes it. Snapshots are never merged, so a
// reconnect that advertises fewer tools drops the missing ones.
package capability
