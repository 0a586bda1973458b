// Package logging provides subsystem-tagged structured logging on top of slog.
//
// Every entry carries a "subsystem" attribute so that output from the
// orchestrator, the process supervisor and each worker can be filtered
// independently:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Orchestrator", "started %d sources", n)
//	logging.Error("Worker/orders-db", err, "query failed")
//
// Worker processes initialize logging against stderr only; their stdout is
// reserved for protocol frames.
package logging
