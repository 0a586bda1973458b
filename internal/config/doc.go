// Package config loads and validates data center configuration documents.
//
// A document has the top-level sections datacenter, datasources, servers,
// management, security, logging and monitoring. Loading is layered with
// koanf: built-in defaults, then the document, then DATACENTER_* environment
// variables, then explicitly set command line flags.
//
// Loading is atomic. Duplicate mapping keys (for example two datasources
// blocks), duplicate data source names, unknown types and missing required
// connection fields all produce a *ConfigError and no configuration.
//
// The connection, settings and extras of a data source are kept as generic
// maps; only the backend builder for the source's type interprets them.
package config
