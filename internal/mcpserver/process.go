package mcpserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"datacenter/internal/api"
	"datacenter/internal/backend"
	"datacenter/internal/capability"
	"datacenter/pkg/logging"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientName identifies the orchestrator in the initialize handshake.
const ClientName = "datacenter"

// ClientVersion is reported in the initialize handshake.
var ClientVersion = "dev"

// maxListPages bounds discovery against a worker that never stops paging.
const maxListPages = 1000

// Options tunes one worker's supervision.
type Options struct {
	FailureThreshold   int
	StartTimeout       time.Duration
	CallTimeout        time.Duration
	HealthCheckTimeout time.Duration
	GracePeriod        time.Duration

	// OnStateChange is called outside any lock after every transition.
	OnStateChange func(source string, oldState, newState api.WorkerState, err error)
}

func (o Options) withDefaults() Options {
	if o.FailureThreshold <= 0 {
		o.FailureThreshold = 3
	}
	if o.StartTimeout <= 0 {
		o.StartTimeout = 15 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.HealthCheckTimeout <= 0 {
		o.HealthCheckTimeout = 5 * time.Second
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 5 * time.Second
	}
	return o
}

// WorkerProcess supervises one worker: its process, its protocol client and
// its lifecycle state.
//
//	Starting -> Connected -> {Degraded, Stopped}
//	Degraded -> {Connected, Failed}
//	any      -> Stopped on Stop
type WorkerProcess struct {
	spec     backend.WorkerSpec
	launcher Launcher
	opts     Options

	mu             sync.RWMutex
	state          api.WorkerState
	instanceID     string
	startedAt      time.Time
	lastHeartbeat  time.Time
	healthFailures int
	callTimeouts   int
	lastErr        error
	stopping       bool

	child     Child
	transport *StdioTransport
	client    *client.Client
}

// NewWorkerProcess prepares supervision for spec. Nothing runs until Start.
func NewWorkerProcess(spec backend.WorkerSpec, launcher Launcher, opts Options) *WorkerProcess {
	return &WorkerProcess{
		spec:     spec.Clone(),
		launcher: launcher,
		opts:     opts.withDefaults(),
		state:    api.StateStarting,
	}
}

// Source is the data source name.
func (w *WorkerProcess) Source() string { return w.spec.Source }

// Spec returns a copy of the launch spec.
func (w *WorkerProcess) Spec() backend.WorkerSpec { return w.spec.Clone() }

// State returns the current lifecycle state.
func (w *WorkerProcess) State() api.WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Status is a point-in-time view of the worker.
type Status struct {
	State               api.WorkerState
	InstanceID          string
	Pid                 int
	StartedAt           time.Time
	LastHeartbeat       time.Time
	ConsecutiveFailures int
	LastError           error
}

// Status returns the worker's current status.
func (w *WorkerProcess) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s := Status{
		State:               w.state,
		InstanceID:          w.instanceID,
		StartedAt:           w.startedAt,
		LastHeartbeat:       w.lastHeartbeat,
		ConsecutiveFailures: w.healthFailures,
		LastError:           w.lastErr,
	}
	if w.child != nil {
		s.Pid = w.child.Pid()
	}
	return s
}

// Start launches the worker, performs the handshake and discovers its
// capabilities. On success the worker is Connected; on failure it is
// Failed, its process is gone and the error is a *api.StartError.
func (w *WorkerProcess) Start(ctx context.Context) (*capability.Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.StartTimeout)
	defer cancel()

	child, err := w.launcher.Launch(ctx, w.spec)
	if err != nil {
		return nil, w.failStart("launch", err)
	}

	t := NewStdioTransport(w.spec.Source, child.Stdout(), child.Stdin())
	c := client.NewClient(t)

	w.mu.Lock()
	w.instanceID = uuid.NewString()
	w.child = child
	w.transport = t
	w.client = c
	w.startedAt = time.Now()
	w.mu.Unlock()

	if stderr := child.Stderr(); stderr != nil {
		go drainStderr(w.spec.Source, stderr)
	}
	go w.watchExit(child)

	if err := c.Start(ctx); err != nil {
		return nil, w.failStart("handshake", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	initReq.Params.Capabilities = mcp.ClientCapabilities{}

	initResult, err := c.Initialize(ctx, initReq)
	if err != nil {
		return nil, w.failStart("handshake", err)
	}
	logging.Debug("WorkerProcess", "Worker %s initialized (server %s %s)",
		w.spec.Source, initResult.ServerInfo.Name, initResult.ServerInfo.Version)

	entry, err := w.discover(ctx, c, initResult.Capabilities)
	if err != nil {
		return nil, w.failStart("discover", err)
	}

	w.mu.Lock()
	if w.state != api.StateStarting {
		// Stopped or crashed while handshaking.
		state, lastErr := w.state, w.lastErr
		w.mu.Unlock()
		if lastErr == nil {
			lastErr = fmt.Errorf("worker left Starting state (%s)", state)
		}
		return nil, &api.StartError{Source: w.spec.Source, Phase: "handshake", Err: lastErr}
	}
	w.lastHeartbeat = time.Now()
	w.mu.Unlock()

	w.setState(api.StateConnected, nil)
	return entry, nil
}

func (w *WorkerProcess) discover(ctx context.Context, c *client.Client, caps mcp.ServerCapabilities) (*capability.Entry, error) {
	var tools []mcp.Tool
	if caps.Tools != nil {
		req := mcp.ListToolsRequest{}
		for page := 0; ; page++ {
			res, err := c.ListToolsByPage(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("listing tools: %w", err)
			}
			tools = append(tools, res.Tools...)
			if res.NextCursor == "" || res.NextCursor == req.Params.Cursor || page >= maxListPages {
				break
			}
			req.Params.Cursor = res.NextCursor
		}
	}

	var resources []mcp.Resource
	if caps.Resources != nil {
		req := mcp.ListResourcesRequest{}
		for page := 0; ; page++ {
			res, err := c.ListResourcesByPage(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("listing resources: %w", err)
			}
			resources = append(resources, res.Resources...)
			if res.NextCursor == "" || res.NextCursor == req.Params.Cursor || page >= maxListPages {
				break
			}
			req.Params.Cursor = res.NextCursor
		}
	}

	if len(tools) != len(w.spec.Tools) || len(resources) != len(w.spec.Resources) {
		logging.Warn("WorkerProcess", "Worker %s advertises %d tools and %d resources, planned %d and %d",
			w.spec.Source, len(tools), len(resources), len(w.spec.Tools), len(w.spec.Resources))
	}
	return capability.FromMCP(w.spec.Source, w.planOrderResources(resources), w.planOrderTools(tools)), nil
}

// planOrderTools lists advertised tools in the order the worker spec declares
// them. Tools missing from the plan follow in advertised order.
func (w *WorkerProcess) planOrderTools(tools []mcp.Tool) []mcp.Tool {
	byName := make(map[string]int, len(tools))
	for i, t := range tools {
		byName[t.Name] = i
	}
	out := make([]mcp.Tool, 0, len(tools))
	used := make([]bool, len(tools))
	for _, tp := range w.spec.Tools {
		if i, ok := byName[tp.Name]; ok && !used[i] {
			out = append(out, tools[i])
			used[i] = true
		}
	}
	for i, t := range tools {
		if !used[i] {
			out = append(out, t)
		}
	}
	return out
}

// planOrderResources is planOrderTools for resources, keyed by URI.
func (w *WorkerProcess) planOrderResources(resources []mcp.Resource) []mcp.Resource {
	byURI := make(map[string]int, len(resources))
	for i, r := range resources {
		byURI[r.URI] = i
	}
	out := make([]mcp.Resource, 0, len(resources))
	used := make([]bool, len(resources))
	for _, rp := range w.spec.Resources {
		if i, ok := byURI[rp.URI]; ok && !used[i] {
			out = append(out, resources[i])
			used[i] = true
		}
	}
	for i, r := range resources {
		if !used[i] {
			out = append(out, r)
		}
	}
	return out
}

// Discover re-reads the capabilities of a running worker.
func (w *WorkerProcess) Discover(ctx context.Context) (*capability.Entry, error) {
	w.mu.RLock()
	c, state := w.client, w.state
	w.mu.RUnlock()
	if c == nil || !state.Routable() {
		return nil, &api.SourceUnavailableError{Source: w.spec.Source, State: state}
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.StartTimeout)
	defer cancel()
	return w.discover(ctx, c, c.GetServerCapabilities())
}

func (w *WorkerProcess) failStart(phase string, err error) error {
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
	w.terminate()
	w.setState(api.StateFailed, err)
	logging.Error("WorkerProcess", err, "Worker %s failed during %s", w.spec.Source, phase)
	return &api.StartError{Source: w.spec.Source, Phase: phase, Err: err}
}

// CheckHealth sends a ping. Success clears the failure count and returns a
// Degraded worker to Connected. Failure moves a Connected worker to
// Degraded; reaching the failure threshold terminates the worker and marks
// it Failed.
func (w *WorkerProcess) CheckHealth(ctx context.Context) api.HealthStatus {
	w.mu.RLock()
	state, c := w.state, w.client
	w.mu.RUnlock()

	status := api.HealthStatus{Source: w.spec.Source, State: state}
	if state.Terminal() || state == api.StateStarting || c == nil {
		status.Error = fmt.Sprintf("worker is %s", state)
		return w.fillStatus(status)
	}

	ctx, cancel := context.WithTimeout(ctx, w.opts.HealthCheckTimeout)
	defer cancel()

	begin := time.Now()
	err := c.Ping(ctx)
	status.Latency = time.Since(begin)

	if err == nil {
		w.healthCheckSucceeded()
		status.Healthy = true
	} else {
		status.Error = err.Error()
		w.healthCheckFailed(err)
	}
	status.State = w.State()
	return w.fillStatus(status)
}

func (w *WorkerProcess) fillStatus(s api.HealthStatus) api.HealthStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s.LastHeartbeat = w.lastHeartbeat
	s.ConsecutiveFailures = w.healthFailures
	return s
}

func (w *WorkerProcess) healthCheckSucceeded() {
	w.mu.Lock()
	w.lastHeartbeat = time.Now()
	w.healthFailures = 0
	w.callTimeouts = 0
	recovered := w.state == api.StateDegraded
	w.mu.Unlock()

	if recovered {
		logging.Info("WorkerProcess", "Worker %s recovered", w.spec.Source)
		w.setState(api.StateConnected, nil)
	}
}

func (w *WorkerProcess) healthCheckFailed(err error) {
	w.mu.Lock()
	if w.state != api.StateConnected && w.state != api.StateDegraded {
		w.mu.Unlock()
		return
	}
	w.healthFailures++
	w.lastErr = err
	failures, state := w.healthFailures, w.state
	w.mu.Unlock()

	logging.Warn("WorkerProcess", "Health check %d/%d for %s failed: %v",
		failures, w.opts.FailureThreshold, w.spec.Source, err)

	if state == api.StateConnected {
		w.setState(api.StateDegraded, err)
	}
	if failures >= w.opts.FailureThreshold {
		w.terminate()
		w.setState(api.StateFailed, fmt.Errorf("%d consecutive health checks failed: %w", failures, err))
	}
}

// callTimedOut records a request that got no response in time. The
// threshold-th consecutive timeout moves a Connected worker to Degraded.
func (w *WorkerProcess) callTimedOut(err error) {
	w.mu.Lock()
	w.callTimeouts++
	n, state := w.callTimeouts, w.state
	w.mu.Unlock()

	if n >= w.opts.FailureThreshold && state == api.StateConnected {
		logging.Warn("WorkerProcess", "Worker %s missed %d consecutive responses", w.spec.Source, n)
		w.setState(api.StateDegraded, err)
	}
}

func (w *WorkerProcess) callAnswered() {
	w.mu.Lock()
	w.callTimeouts = 0
	w.lastHeartbeat = time.Now()
	w.mu.Unlock()
}

func (w *WorkerProcess) callClient(source string) (*client.Client, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state != api.StateConnected || w.client == nil {
		return nil, &api.SourceUnavailableError{Source: source, State: w.state}
	}
	return w.client, nil
}

func (w *WorkerProcess) withCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.opts.CallTimeout)
}

func (w *WorkerProcess) finishCall(operation string, err error) error {
	if err == nil {
		w.callAnswered()
		return nil
	}
	ce := api.NewCallError(w.spec.Source, operation, err)
	switch ce.Kind {
	case api.CallTimeout:
		w.callTimedOut(err)
	case api.CallRemote:
		w.callAnswered()
	}
	return ce
}

// ReadResource reads one resource. The worker must be Connected.
func (w *WorkerProcess) ReadResource(ctx context.Context, uri string) ([]api.ResourceContent, error) {
	c, err := w.callClient(w.spec.Source)
	if err != nil {
		return nil, err
	}
	ctx, cancel := w.withCallTimeout(ctx)
	defer cancel()

	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := c.ReadResource(ctx, req)
	if err := w.finishCall(uri, err); err != nil {
		return nil, err
	}

	out := make([]api.ResourceContent, 0, len(res.Contents))
	for _, content := range res.Contents {
		switch rc := content.(type) {
		case mcp.TextResourceContents:
			out = append(out, api.ResourceContent{URI: rc.URI, MIMEType: rc.MIMEType, Text: rc.Text})
		case mcp.BlobResourceContents:
			out = append(out, api.ResourceContent{URI: rc.URI, MIMEType: rc.MIMEType, Text: rc.Blob})
		}
	}
	return out, nil
}

// CallTool invokes one tool. The worker must be Connected. A result flagged
// as an error by the worker is returned as a remote CallError.
func (w *WorkerProcess) CallTool(ctx context.Context, name string, args map[string]any) (*api.ToolOutput, error) {
	c, err := w.callClient(w.spec.Source)
	if err != nil {
		return nil, err
	}
	ctx, cancel := w.withCallTimeout(ctx)
	defer cancel()

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := c.CallTool(ctx, req)
	if err := w.finishCall(name, err); err != nil {
		return nil, err
	}

	text := resultText(res)
	if res.IsError {
		return nil, api.NewRemoteError(w.spec.Source, name, text)
	}
	return &api.ToolOutput{Text: text, Structured: res.StructuredContent}, nil
}

func resultText(res *mcp.CallToolResult) string {
	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		if t := mcp.GetTextFromContent(c); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Stop shuts the worker down: the channel is closed, the process gets the
// grace period to exit and is then killed. Stop is safe to call in any
// state and more than once.
func (w *WorkerProcess) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopping {
		w.mu.Unlock()
		return nil
	}
	w.stopping = true
	child, t := w.child, w.transport
	w.mu.Unlock()

	w.setState(api.StateStopped, nil)

	if t != nil {
		if err := t.Close(); err != nil {
			logging.Debug("WorkerProcess", "Closing channel to %s: %v", w.spec.Source, err)
		}
	}
	if child == nil {
		return nil
	}

	grace := time.NewTimer(w.opts.GracePeriod)
	defer grace.Stop()
	select {
	case <-child.Done():
		return nil
	case <-grace.C:
		logging.Warn("WorkerProcess", "Worker %s did not exit within %s, killing it", w.spec.Source, w.opts.GracePeriod)
	case <-ctx.Done():
		logging.Warn("WorkerProcess", "Stop of %s interrupted, killing it", w.spec.Source)
	}

	if err := child.Kill(); err != nil {
		return fmt.Errorf("failed to kill worker %s: %w", w.spec.Source, err)
	}
	select {
	case <-child.Done():
	case <-time.After(w.opts.GracePeriod):
		return fmt.Errorf("worker %s did not exit after kill", w.spec.Source)
	}
	return nil
}

// Wait blocks until the worker process has exited or ctx ends.
func (w *WorkerProcess) Wait(ctx context.Context) error {
	w.mu.RLock()
	child := w.child
	w.mu.RUnlock()
	if child == nil {
		return nil
	}
	select {
	case <-child.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// terminate kills the process without a grace period.
func (w *WorkerProcess) terminate() {
	w.mu.Lock()
	w.stopping = true
	child, t := w.child, w.transport
	w.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	if child != nil {
		if err := child.Kill(); err != nil {
			logging.Debug("WorkerProcess", "Killing %s: %v", w.spec.Source, err)
		}
	}
}

func (w *WorkerProcess) watchExit(child Child) {
	<-child.Done()

	w.mu.Lock()
	expected := w.stopping || w.state.Terminal()
	w.mu.Unlock()
	if expected {
		return
	}

	err := child.ExitErr()
	if err == nil {
		err = errors.New("worker exited unexpectedly")
	} else {
		err = fmt.Errorf("worker exited unexpectedly: %w", err)
	}
	w.mu.Lock()
	w.lastErr = err
	w.stopping = true
	t := w.transport
	w.mu.Unlock()

	if t != nil {
		_ = t.Close()
	}
	logging.Error("WorkerProcess", err, "Worker %s crashed", w.spec.Source)
	w.setState(api.StateFailed, err)
}

// setState records a transition and notifies the callback outside the lock.
// Terminal states are final.
func (w *WorkerProcess) setState(next api.WorkerState, err error) {
	w.mu.Lock()
	prev := w.state
	if prev == next || (prev.Terminal() && next != api.StateStopped) || prev == api.StateStopped {
		w.mu.Unlock()
		return
	}
	w.state = next
	if err != nil {
		w.lastErr = err
	}
	w.mu.Unlock()

	logging.Info("WorkerProcess", "Worker %s: %s -> %s", w.spec.Source, prev, next)
	if w.opts.OnStateChange != nil {
		w.opts.OnStateChange(w.spec.Source, prev, next, err)
	}
}

func drainStderr(source string, r io.Reader) {
	subsystem := "Worker/" + source
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			logging.Info(subsystem, "%s", line)
		}
	}
}
