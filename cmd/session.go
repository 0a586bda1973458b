package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"datacenter/internal/api"
	"datacenter/internal/backend"
	"datacenter/internal/cli"
	"datacenter/internal/config"
	"datacenter/internal/orchestrator"
	"datacenter/pkg/logging"

	"github.com/spf13/cobra"
)

// session is a started orchestrator bound to one command invocation.
type session struct {
	cfg   *config.DataCenterConfig
	orch  *orchestrator.Orchestrator
	start map[string]api.StartResult
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

func launchOptions(cfg *config.DataCenterConfig) (backend.LaunchOptions, error) {
	exe, err := os.Executable()
	if err != nil {
		return backend.LaunchOptions{}, fmt.Errorf("failed to locate worker executable: %w", err)
	}
	path := cfg.Path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return backend.LaunchOptions{Executable: exe, ConfigPath: path}, nil
}

// openSession loads the configuration and starts the named sources, or all
// enabled sources when names is empty.
func openSession(ctx context.Context, cmd *cobra.Command, names ...string) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	launch, err := launchOptions(cfg)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Config{DataCenter: cfg, Launch: launch})
	s := &session{cfg: cfg, orch: orch}
	_ = cli.Progress(cmd.ErrOrStderr(), flags.quiet, "Starting workers...", func() error {
		s.start = orch.Start(ctx, names...)
		return nil
	})
	for name, r := range s.start {
		if r.Err != nil {
			logging.Warn("CLI", "Data source %s is unavailable: %v", name, r.Err)
		}
	}
	return s, nil
}

// close stops every worker, bounded by the shutdown grace period.
func (s *session) close() {
	grace := s.cfg.Management.ShutdownGracePeriod
	if grace <= 0 {
		grace = config.DefaultShutdownGracePeriod
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*grace+time.Second)
	defer cancel()
	if err := s.orch.StopAll(ctx); err != nil {
		logging.Error("CLI", err, "Failed to stop all workers")
	}
}

// runWithSession wraps a one-shot command: start, run fn, stop.
func runWithSession(cmd *cobra.Command, names []string, fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd, names...)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}
