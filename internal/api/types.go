package api

import (
	"encoding/json"
	"time"
)

// WorkerState is the lifecycle state of a worker process.
type WorkerState string

const (
	StateStarting  WorkerState = "Starting"
	StateConnected WorkerState = "Connected"
	StateDegraded  WorkerState = "Degraded"
	StateStopped   WorkerState = "Stopped"
	StateFailed    WorkerState = "Failed"
)

// Routable reports whether calls may be routed to a worker in this state
// for registry lookups. Only Connected workers accept calls.
func (s WorkerState) Routable() bool {
	return s == StateConnected || s == StateDegraded
}

// Terminal reports whether the worker process is gone for good.
func (s WorkerState) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Strategy selects how a cross-source call merges its branches.
type Strategy string

const (
	// CollectAll waits for every target and reports each outcome.
	CollectAll Strategy = "collect-all"
	// FirstSuccess returns as soon as one target succeeds and cancels the rest.
	FirstSuccess Strategy = "first-success"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	return s == CollectAll || s == FirstSuccess
}

// StartResult is the per-source outcome of StartAll.
type StartResult struct {
	Source string      `json:"source"`
	State  WorkerState `json:"state"`
	Err    error       `json:"-"`
}

// Ready reports whether the worker reached Connected.
func (r StartResult) Ready() bool {
	return r.Err == nil && r.State == StateConnected
}

// HealthStatus is the result of probing one worker.
type HealthStatus struct {
	Source              string        `json:"source"`
	State               WorkerState   `json:"state"`
	Healthy             bool          `json:"healthy"`
	Latency             time.Duration `json:"latency"`
	LastHeartbeat       time.Time     `json:"lastHeartbeat"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	Error               string        `json:"error,omitempty"`
}

// SourceInfo summarizes one data source for listings.
type SourceInfo struct {
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	Kind          string      `json:"kind"`
	Enabled       bool        `json:"enabled"`
	State         WorkerState `json:"state"`
	Resources     int         `json:"resources"`
	Tools         int         `json:"tools"`
	Pid           int         `json:"pid,omitempty"`
	StartedAt     time.Time   `json:"startedAt,omitempty"`
	LastHeartbeat time.Time   `json:"lastHeartbeat,omitempty"`
	LastError     string      `json:"lastError,omitempty"`
}

// Resource describes one advertised resource.
type Resource struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	MIMEType    string `json:"mimeType"`
	Description string `json:"description,omitempty"`
}

// Tool describes one advertised tool.
type Tool struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

// ResourceContent is the payload of a resource read.
type ResourceContent struct {
	URI      string `json:"uri"`
	MIMEType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// ToolOutput is the payload of a successful tool call.
type ToolOutput struct {
	// Text is the concatenated text content.
	Text string `json:"text"`
	// Structured is the structured content, when the tool returned any.
	Structured any `json:"structured,omitempty"`
}

// CallResult is the per-target outcome of a cross-source call. Exactly one
// of Output and Err is set.
type CallResult struct {
	Source   string        `json:"source"`
	Output   *ToolOutput   `json:"output,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the call succeeded.
func (r CallResult) OK() bool {
	return r.Err == nil && r.Output != nil
}

// StateChangeEvent is published whenever a worker changes state.
type StateChangeEvent struct {
	Source    string      `json:"source"`
	OldState  WorkerState `json:"oldState"`
	NewState  WorkerState `json:"newState"`
	Error     error       `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}
