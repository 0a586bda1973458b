// Package mcptest runs workers in-process for tests, in the spirit of
// net/http/httptest.
//
// A Launcher serves each WorkerSpec with the real worker runtime over
// in-memory pipes, backed by a scriptable Driver instead of a database.
// Tests can fail launches, override tool behavior, stall a worker so that
// its requests time out, and crash it.
package mcptest

import (
	"context"
	"errors"
	"io"
	"sync"

	"datacenter/internal/backend"
	"datacenter/internal/mcpserver"
	"datacenter/internal/worker"

	"github.com/mark3labs/mcp-go/server"
)

// ErrCrashed is the exit error of a worker stopped with Crash.
var ErrCrashed = errors.New("exit status 1")

// ErrKilled is the exit error of a worker stopped with Kill.
var ErrKilled = errors.New("signal: killed")

// Launcher implements mcpserver.Launcher with in-process workers.
type Launcher struct {
	mu       sync.Mutex
	workers  map[string]*Worker
	launches map[string]int
	failures map[string]error
	stalled  map[string]bool
	pageSize map[string]int
	tools    map[string]map[string]ToolFunc
	nextPid  int
}

var _ mcpserver.Launcher = (*Launcher)(nil)

// NewLauncher returns a launcher with no scripted behavior.
func NewLauncher() *Launcher {
	return &Launcher{
		workers:  make(map[string]*Worker),
		launches: make(map[string]int),
		failures: make(map[string]error),
		stalled:  make(map[string]bool),
		pageSize: make(map[string]int),
		tools:    make(map[string]map[string]ToolFunc),
		nextPid:  1000,
	}
}

// FailLaunch makes every launch of source fail with err.
func (l *Launcher) FailLaunch(source string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[source] = err
}

// StallOnLaunch starts workers of source stalled, so their handshake never
// completes until Resume.
func (l *Launcher) StallOnLaunch(source string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stalled[source] = true
}

// Paginate makes workers of source list tools and resources in pages of
// at most limit items.
func (l *Launcher) Paginate(source string, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pageSize[source] = limit
}

// HandleTool scripts a tool of source. Workers launched afterwards use fn
// instead of the default echo behavior.
func (l *Launcher) HandleTool(source, tool string, fn ToolFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tools[source] == nil {
		l.tools[source] = make(map[string]ToolFunc)
	}
	l.tools[source][tool] = fn
}

// Worker returns the most recently launched worker of source.
func (l *Launcher) Worker(source string) *Worker {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers[source]
}

// Launches counts launch attempts for source, failed ones included.
func (l *Launcher) Launches(source string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches[source]
}

// Launch starts an in-process worker for spec.
func (l *Launcher) Launch(ctx context.Context, spec backend.WorkerSpec) (mcpserver.Child, error) {
	l.mu.Lock()
	l.launches[spec.Source]++
	if err := l.failures[spec.Source]; err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.nextPid++
	pid := l.nextPid
	tools := make(map[string]ToolFunc, len(l.tools[spec.Source]))
	for name, fn := range l.tools[spec.Source] {
		tools[name] = fn
	}
	stalled := l.stalled[spec.Source]
	pageSize := l.pageSize[spec.Source]
	l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := newWorker(spec, pid, &Driver{source: spec.Source, tools: tools})
	if pageSize > 0 {
		w.serverOpts = append(w.serverOpts, server.WithPaginationLimit(pageSize))
	}
	if stalled {
		w.Stall()
	}
	w.start()

	l.mu.Lock()
	l.workers[spec.Source] = w
	l.mu.Unlock()
	return w, nil
}

// Worker is one in-process worker. It implements mcpserver.Child.
type Worker struct {
	spec       backend.WorkerSpec
	pid        int
	driver     *Driver
	serverOpts []server.ServerOption
	stdin      *pipe
	stdout     *pipe
	cancel     context.CancelFunc
	ctx        context.Context
	done       chan struct{}
	once       sync.Once

	mu      sync.Mutex
	exitErr error
	killed  bool
}

var _ mcpserver.Child = (*Worker)(nil)

func newWorker(spec backend.WorkerSpec, pid int, d *Driver) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		spec:   spec,
		pid:    pid,
		driver: d,
		stdin:  newPipe(),
		stdout: newPipe(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (w *Worker) start() {
	rt := worker.New(w.spec, w.driver, "test", w.serverOpts...)
	go func() {
		_ = rt.Serve(w.ctx, w.stdin, w.stdout)
		w.exit(nil)
	}()
}

// exit ends the worker once: pipes are torn down and Done is closed.
func (w *Worker) exit(err error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.exitErr = err
		w.mu.Unlock()
		w.stdin.breakPipe()
		w.cancel()
		_ = w.stdout.Close()
		close(w.done)
	})
}

func (w *Worker) Stdin() io.WriteCloser { return w.stdin }
func (w *Worker) Stdout() io.Reader     { return w.stdout }
func (w *Worker) Stderr() io.Reader     { return nil }
func (w *Worker) Pid() int              { return w.pid }
func (w *Worker) Done() <-chan struct{} { return w.done }

// ExitErr reports how the worker ended.
func (w *Worker) ExitErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.exitErr
}

// Kill terminates the worker immediately.
func (w *Worker) Kill() error {
	w.mu.Lock()
	w.killed = true
	w.mu.Unlock()
	w.exit(ErrKilled)
	return nil
}

// Killed reports whether Kill was called before the worker exited on its
// own.
func (w *Worker) Killed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.killed && w.exitErr == ErrKilled
}

// Exited reports whether the worker has ended.
func (w *Worker) Exited() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Crash simulates the process dying on its own.
func (w *Worker) Crash() {
	w.exit(ErrCrashed)
}

// Stall stops the worker from reading requests, so nothing gets answered.
func (w *Worker) Stall() {
	w.stdin.setStalled(true)
}

// Resume lets a stalled worker process its backlog.
func (w *Worker) Resume() {
	w.stdin.setStalled(false)
}

// Calls counts driver invocations of tool on this worker.
func (w *Worker) Calls(tool string) int {
	return w.driver.Calls(tool)
}
