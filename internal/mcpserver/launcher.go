package mcpserver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"datacenter/internal/backend"
)

// Child is a started worker: its pipes and its exit status.
type Child interface {
	// Stdin carries requests to the worker. Closing it asks the worker to
	// exit.
	Stdin() io.WriteCloser
	// Stdout carries responses and notifications from the worker.
	Stdout() io.Reader
	// Stderr carries the worker's log output; may be nil.
	Stderr() io.Reader
	// Pid identifies the process, or 0 when there is none.
	Pid() int
	// Done is closed when the worker has exited.
	Done() <-chan struct{}
	// ExitErr reports how the worker exited; valid after Done is closed.
	ExitErr() error
	// Kill terminates the worker immediately.
	Kill() error
}

// Launcher starts worker processes from specs.
type Launcher interface {
	Launch(ctx context.Context, spec backend.WorkerSpec) (Child, error)
}

// ExecLauncher starts workers as operating system processes.
type ExecLauncher struct{}

// Launch starts spec.Command with spec.Args. The process is not tied to ctx;
// its lifetime is managed through the returned Child.
func (ExecLauncher) Launch(ctx context.Context, spec backend.WorkerSpec) (Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if spec.Command == "" {
		return nil, fmt.Errorf("no worker executable configured for %s", spec.Source)
	}

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Env = append(os.Environ(), spec.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin: %w", err)
	}
	// Plain pipes (not *os.File) make Wait drain all output before
	// returning, so nothing written before exit is lost.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to start %s: %w", spec.Command, err)
	}

	c := &execChild{cmd: cmd, stdin: stdin, stdout: outR, stderr: errR, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		c.mu.Lock()
		c.exitErr = err
		c.mu.Unlock()
		_ = outW.Close()
		_ = errW.Close()
		close(c.done)
	}()
	return c, nil
}

type execChild struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
	done   chan struct{}

	mu      sync.Mutex
	exitErr error
}

func (c *execChild) Stdin() io.WriteCloser { return c.stdin }
func (c *execChild) Stdout() io.Reader     { return c.stdout }
func (c *execChild) Stderr() io.Reader     { return c.stderr }
func (c *execChild) Done() <-chan struct{} { return c.done }

func (c *execChild) Pid() int {
	if c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

func (c *execChild) ExitErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitErr
}

func (c *execChild) Kill() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	if err := c.cmd.Process.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
