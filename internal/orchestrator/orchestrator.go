package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"datacenter/internal/api"
	"datacenter/internal/backend"
	"datacenter/internal/capability"
	"datacenter/internal/config"
	"datacenter/internal/mcpserver"
	"datacenter/pkg/logging"

	"golang.org/x/sync/errgroup"
)

// Config holds the configuration for the orchestrator.
type Config struct {
	// DataCenter is the validated configuration. Required.
	DataCenter *config.DataCenterConfig

	// Launcher starts worker processes. Defaults to mcpserver.ExecLauncher.
	Launcher mcpserver.Launcher

	// Launch carries the worker executable, config path and extra env.
	Launch backend.LaunchOptions
}

// source is one entry of the process table. Entries are replaced, never
// mutated, except through the WorkerProcess they own.
type source struct {
	ds   config.DataSource
	spec backend.WorkerSpec
	proc *mcpserver.WorkerProcess

	// err is set when the source failed before a process existed.
	err error
}

func (s *source) state() api.WorkerState {
	if s.proc == nil {
		return api.StateFailed
	}
	return s.proc.State()
}

// Orchestrator owns every worker process. It is the only component the CLI
// talks to.
type Orchestrator struct {
	launcher mcpserver.Launcher
	launch   backend.LaunchOptions

	mu  sync.RWMutex
	cfg *config.DataCenterConfig

	// sources maps a data source name to its *source.
	sources  sync.Map
	registry *capability.Registry

	subsMu      sync.RWMutex
	subscribers []chan<- api.StateChangeEvent
}

// New creates an orchestrator. No worker is started until StartAll.
func New(cfg Config) *Orchestrator {
	launcher := cfg.Launcher
	if launcher == nil {
		launcher = mcpserver.ExecLauncher{}
	}
	dc := cfg.DataCenter
	if dc == nil {
		dc = &config.DataCenterConfig{}
	}
	return &Orchestrator{
		launcher: launcher,
		launch:   cfg.Launch,
		cfg:      dc,
		registry: capability.NewRegistry(),
	}
}

// Registry exposes the capability registry.
func (o *Orchestrator) Registry() *capability.Registry {
	return o.registry
}

func (o *Orchestrator) config() *config.DataCenterConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg
}

func (o *Orchestrator) launchOptions() backend.LaunchOptions {
	o.mu.RLock()
	defer o.mu.RUnlock()
	launch := o.launch
	if launch.ConfigPath == "" {
		launch.ConfigPath = o.cfg.Path
	}
	return launch
}

func (o *Orchestrator) management() config.ManagementConfig {
	m := o.config().Management
	if m.HealthCheckInterval <= 0 {
		m.HealthCheckInterval = config.DefaultHealthCheckInterval
	}
	if m.HealthCheckTimeout <= 0 {
		m.HealthCheckTimeout = config.DefaultHealthCheckTimeout
	}
	if m.StartTimeout <= 0 {
		m.StartTimeout = config.DefaultStartTimeout
	}
	if m.CallTimeout <= 0 {
		m.CallTimeout = config.DefaultCallTimeout
	}
	if m.FanOutTimeout <= 0 {
		m.FanOutTimeout = config.DefaultFanOutTimeout
	}
	if m.ShutdownGracePeriod <= 0 {
		m.ShutdownGracePeriod = config.DefaultShutdownGracePeriod
	}
	if m.FailureThreshold <= 0 {
		m.FailureThreshold = config.DefaultFailureThreshold
	}
	return m
}

func (o *Orchestrator) lookup(name string) (*source, bool) {
	v, ok := o.sources.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*source), true
}

// current reports whether src is still the table entry for its name.
func (o *Orchestrator) current(src *source) bool {
	cur, ok := o.lookup(src.ds.Name)
	return ok && cur == src
}

// StartAll starts a worker for every enabled data source concurrently and
// reports the outcome per source. One source failing never prevents the
// others from starting. Sources that are already running are left alone.
func (o *Orchestrator) StartAll(ctx context.Context) map[string]api.StartResult {
	return o.startSources(ctx, o.config().EnabledDataSources())
}

// Start is StartAll restricted to the named sources. Names that are not
// enabled in the configuration are ignored.
func (o *Orchestrator) Start(ctx context.Context, names ...string) map[string]api.StartResult {
	if len(names) == 0 {
		return o.StartAll(ctx)
	}
	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}
	var sources []config.DataSource
	for _, ds := range o.config().EnabledDataSources() {
		if wanted[ds.Name] {
			sources = append(sources, ds)
		}
	}
	return o.startSources(ctx, sources)
}

func (o *Orchestrator) startSources(ctx context.Context, sources []config.DataSource) map[string]api.StartResult {
	results := make(map[string]api.StartResult, len(sources))
	var mu sync.Mutex
	var g errgroup.Group

	seen := make(map[string]bool, len(sources))
	for _, ds := range sources {
		if seen[ds.Name] {
			logging.Warn("Orchestrator", "Skipping duplicate data source %s", ds.Name)
			continue
		}
		seen[ds.Name] = true

		if existing, ok := o.lookup(ds.Name); ok && !existing.state().Terminal() {
			results[ds.Name] = api.StartResult{Source: ds.Name, State: existing.state()}
			continue
		}

		g.Go(func() error {
			res := o.startSource(ctx, ds)
			mu.Lock()
			results[ds.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	ready := 0
	for _, r := range results {
		if r.Ready() {
			ready++
		}
	}
	logging.Info("Orchestrator", "%d of %d data sources connected", ready, len(results))
	return results
}

func (o *Orchestrator) startSource(ctx context.Context, ds config.DataSource) api.StartResult {
	src, startErr := o.prepare(ds)
	if startErr != nil {
		src.err = startErr
		o.sources.Store(ds.Name, src)
		logging.Error("Orchestrator", startErr.Err, "Data source %s failed to start (%s)", ds.Name, startErr.Phase)
		return api.StartResult{Source: ds.Name, State: api.StateFailed, Err: startErr}
	}
	o.sources.Store(ds.Name, src)

	entry, err := src.proc.Start(ctx)
	if err != nil {
		var se *api.StartError
		if !errors.As(err, &se) {
			se = &api.StartError{Source: ds.Name, Phase: "handshake", Err: err}
		}
		logging.Error("Orchestrator", se.Err, "Data source %s failed to start (%s)", ds.Name, se.Phase)
		return api.StartResult{Source: ds.Name, State: api.StateFailed, Err: se}
	}

	o.registry.Replace(entry)
	if !src.proc.State().Routable() || !o.current(src) {
		// Lost the worker between the handshake and registration.
		o.registry.Remove(ds.Name)
	}
	return api.StartResult{Source: ds.Name, State: src.proc.State()}
}

// prepare validates the descriptor and builds its worker process. The
// returned source is always usable as a table entry.
func (o *Orchestrator) prepare(ds config.DataSource) (*source, *api.StartError) {
	src := &source{ds: ds}
	if errs := config.ValidateDataSource(ds); errs.HasErrors() {
		return src, &api.StartError{Source: ds.Name, Phase: "validate", Err: errs}
	}

	cfg := o.config()
	launch := o.launchOptions()
	if s, ok := cfg.Server(ds.Name); ok && s.LogLevel != "" {
		launch.LogLevel = s.LogLevel
	}
	spec, err := backend.Build(ds, launch)
	if err != nil {
		return src, &api.StartError{Source: ds.Name, Phase: "build", Err: err}
	}

	m := o.management()
	src.spec = spec
	src.proc = mcpserver.NewWorkerProcess(spec, o.launcher, mcpserver.Options{
		FailureThreshold:   m.FailureThreshold,
		StartTimeout:       m.StartTimeout,
		CallTimeout:        ds.Timeout(m.CallTimeout),
		HealthCheckTimeout: m.HealthCheckTimeout,
		GracePeriod:        m.ShutdownGracePeriod,
		OnStateChange: func(_ string, oldState, newState api.WorkerState, err error) {
			o.handleStateChange(src, oldState, newState, err)
		},
	})
	return src, nil
}

func (o *Orchestrator) handleStateChange(src *source, oldState, newState api.WorkerState, err error) {
	if !o.current(src) {
		return
	}
	switch {
	case newState.Terminal():
		o.registry.Remove(src.ds.Name)
	case newState == api.StateConnected && oldState == api.StateDegraded:
		go o.refresh(src)
	}
	o.publish(src.ds.Name, oldState, newState, err)
}

// refresh rebuilds the registry entry of a recovered worker.
func (o *Orchestrator) refresh(src *source) {
	ctx, cancel := context.WithTimeout(context.Background(), o.management().StartTimeout)
	defer cancel()

	entry, err := src.proc.Discover(ctx)
	if err != nil {
		logging.Warn("Orchestrator", "Refreshing capabilities of %s failed: %v", src.ds.Name, err)
		return
	}
	if o.current(src) && src.proc.State().Routable() {
		o.registry.Replace(entry)
	}
}

// StopAll stops every worker: channels are closed, each process gets the
// grace period and is then killed. It returns once all processes are gone
// or ctx ends.
func (o *Orchestrator) StopAll(ctx context.Context) error {
	var procs []*mcpserver.WorkerProcess
	o.sources.Range(func(_, v any) bool {
		if src := v.(*source); src.proc != nil {
			procs = append(procs, src.proc)
		}
		return true
	})
	return stopProcesses(ctx, procs)
}

func stopProcesses(ctx context.Context, procs []*mcpserver.WorkerProcess) error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	for _, p := range procs {
		wg.Add(1)
		go func(p *mcpserver.WorkerProcess) {
			defer wg.Done()
			if err := p.Stop(ctx); err != nil {
				logging.Error("Orchestrator", err, "Failed to stop worker %s", p.Source())
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// HealthCheck pings the named workers, or all of them. Each ping is
// bounded by the configured health check timeout; failures advance the worker's
// state machine and are reported in the result, never returned.
func (o *Orchestrator) HealthCheck(ctx context.Context, names ...string) map[string]api.HealthStatus {
	if len(names) == 0 {
		o.sources.Range(func(k, _ any) bool {
			names = append(names, k.(string))
			return true
		})
	}

	results := make(map[string]api.HealthStatus, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, name := range names {
		src, ok := o.lookup(name)
		if !ok {
			results[name] = api.HealthStatus{Source: name, Error: (&api.UnknownSourceError{Source: name}).Error()}
			continue
		}
		if src.proc == nil {
			results[name] = api.HealthStatus{Source: name, State: api.StateFailed, Error: src.err.Error()}
			continue
		}
		wg.Add(1)
		go func(name string, p *mcpserver.WorkerProcess) {
			defer wg.Done()
			status := p.CheckHealth(ctx)
			mu.Lock()
			results[name] = status
			mu.Unlock()
		}(name, src.proc)
	}
	wg.Wait()
	return results
}

// ListSources describes every configured data source in declaration order.
func (o *Orchestrator) ListSources() []api.SourceInfo {
	cfg := o.config()
	out := make([]api.SourceInfo, 0, len(cfg.DataSources))
	for _, ds := range cfg.DataSources {
		info := api.SourceInfo{
			Name:    ds.Name,
			Type:    ds.Type,
			Enabled: ds.Enabled,
			State:   api.StateStopped,
		}
		if b, ok := backend.Get(ds.Type); ok {
			info.Kind = string(b.Kind())
		}

		if src, ok := o.lookup(ds.Name); ok {
			info.State = src.state()
			if src.err != nil {
				info.LastError = src.err.Error()
			}
			if src.proc != nil {
				st := src.proc.Status()
				info.Pid = st.Pid
				info.StartedAt = st.StartedAt
				info.LastHeartbeat = st.LastHeartbeat
				if st.LastError != nil {
					info.LastError = st.LastError.Error()
				}
			}
		}
		if entry, ok := o.registry.Get(ds.Name); ok {
			info.Resources = len(entry.Resources())
			info.Tools = len(entry.Tools())
		}
		out = append(out, info)
	}
	return out
}

// entry returns the registry entry of a Connected or Degraded source.
func (o *Orchestrator) entry(name string) (*capability.Entry, error) {
	src, ok := o.lookup(name)
	if !ok || !src.state().Routable() {
		return nil, &api.UnknownSourceError{Source: name}
	}
	entry, ok := o.registry.Get(name)
	if !ok {
		return nil, &api.UnknownSourceError{Source: name}
	}
	return entry, nil
}

// ListResources returns the resources the named source advertised at its
// last handshake.
func (o *Orchestrator) ListResources(name string) ([]api.Resource, error) {
	entry, err := o.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.Resources(), nil
}

// ListTools returns the tools the named source advertised at its last
// handshake.
func (o *Orchestrator) ListTools(name string) ([]api.Tool, error) {
	entry, err := o.entry(name)
	if err != nil {
		return nil, err
	}
	return entry.Tools(), nil
}

// target resolves a source for a call: unknown names fail with
// UnknownSourceError, sources whose worker is not Connected with
// SourceUnavailableError.
func (o *Orchestrator) target(name string) (*source, error) {
	src, ok := o.lookup(name)
	if !ok {
		return nil, &api.UnknownSourceError{Source: name}
	}
	if state := src.state(); src.proc == nil || state != api.StateConnected {
		return nil, &api.SourceUnavailableError{Source: name, State: state}
	}
	return src, nil
}

// ReadResource reads one resource from the named source.
func (o *Orchestrator) ReadResource(ctx context.Context, name, uri string) ([]api.ResourceContent, error) {
	src, err := o.target(name)
	if err != nil {
		return nil, err
	}
	return src.proc.ReadResource(ctx, uri)
}

// CallTool invokes a tool on the named source. Calls are never retried.
func (o *Orchestrator) CallTool(ctx context.Context, name, tool string, args map[string]any) (*api.ToolOutput, error) {
	src, err := o.target(name)
	if err != nil {
		return nil, err
	}
	if entry, ok := o.registry.Get(name); ok && !entry.HasTool(tool) {
		return nil, &api.UnsupportedByTargetError{Source: name, Tool: tool}
	}
	return src.proc.CallTool(ctx, tool, args)
}

// Run checks every worker at the configured interval until ctx ends.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.management().HealthCheckInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logging.Info("Orchestrator", "Health checks every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for name, status := range o.HealthCheck(ctx) {
				if !status.Healthy && status.State != api.StateStopped {
					logging.Warn("Orchestrator", "Data source %s unhealthy (%s): %s", name, status.State, status.Error)
				}
			}
		}
	}
}

// Reconcile applies a reloaded configuration. Sources that were removed or
// disabled are stopped, sources whose descriptor changed are restarted, new
// sources and failed sources are started. The results of every start
// attempt are returned.
func (o *Orchestrator) Reconcile(ctx context.Context, cfg *config.DataCenterConfig) (map[string]api.StartResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("reconcile: no configuration")
	}

	desired := make(map[string]config.DataSource)
	for _, ds := range cfg.EnabledDataSources() {
		desired[ds.Name] = ds
	}

	var (
		stale []*mcpserver.WorkerProcess
		drop  []string
	)
	o.sources.Range(func(k, v any) bool {
		name, src := k.(string), v.(*source)
		want, ok := desired[name]
		switch {
		case !ok:
			logging.Info("Orchestrator", "Data source %s removed or disabled", name)
		case !reflect.DeepEqual(want, src.ds):
			logging.Info("Orchestrator", "Data source %s changed, restarting", name)
		case src.state().Terminal():
			logging.Info("Orchestrator", "Data source %s is %s, restarting", name, src.state())
		default:
			return true
		}
		drop = append(drop, name)
		if src.proc != nil {
			stale = append(stale, src.proc)
		}
		return true
	})

	o.mu.Lock()
	o.cfg = cfg
	if cfg.Path != "" {
		o.launch.ConfigPath = cfg.Path
	}
	o.mu.Unlock()

	err := stopProcesses(ctx, stale)
	for _, name := range drop {
		o.sources.Delete(name)
		o.registry.Remove(name)
	}

	var pending []config.DataSource
	for _, ds := range cfg.EnabledDataSources() {
		if _, running := o.lookup(ds.Name); !running {
			pending = append(pending, ds)
		}
	}
	return o.startSources(ctx, pending), err
}

// SubscribeToStateChanges returns a channel of worker state changes. Slow
// subscribers miss events rather than block workers.
func (o *Orchestrator) SubscribeToStateChanges() <-chan api.StateChangeEvent {
	ch := make(chan api.StateChangeEvent, 100)
	o.subsMu.Lock()
	o.subscribers = append(o.subscribers, ch)
	o.subsMu.Unlock()
	return ch
}

func (o *Orchestrator) publish(name string, oldState, newState api.WorkerState, err error) {
	event := api.StateChangeEvent{
		Source:    name,
		OldState:  oldState,
		NewState:  newState,
		Error:     err,
		Timestamp: time.Now(),
	}

	o.subsMu.RLock()
	subscribers := make([]chan<- api.StateChangeEvent, len(o.subscribers))
	copy(subscribers, o.subscribers)
	o.subsMu.RUnlock()

	for _, sub := range subscribers {
		select {
		case sub <- event:
		default:
			logging.Debug("Orchestrator", "Subscriber blocked, skipping event for %s", name)
		}
	}
}
