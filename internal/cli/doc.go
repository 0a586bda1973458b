// Package cli holds the presentation layer shared by the datacenter
// commands: table, JSON and YAML rendering of orchestrator results, a
// progress spinner, and the interactive REPL of the serve command.
package cli
