package cmd

import (
	"context"
	"os"

	"datacenter/internal/cli"
	"datacenter/internal/config"
	"datacenter/internal/reconciler"
	"datacenter/pkg/logging"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type serveOptions struct {
	noREPL  bool
	noWatch bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start every enabled data source and keep it running",
		Long: `Starts one worker per enabled data source, checks their health periodically and
opens an interactive shell for listing, reading and calling tools.

With --no-repl the command runs until interrupted (Ctrl+C or SIGTERM),
which suits containers and service managers. Unless --no-watch is given,
changes to the configuration file are applied while running: removed
sources are stopped, changed ones restarted and new ones started.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.noREPL, "no-repl", false, "Run without the interactive shell")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not reload the configuration file on change")
	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	ctx, cancel := signalContext(cmd)
	defer cancel()

	s, err := openSession(ctx, cmd)
	if err != nil {
		return err
	}
	defer s.close()

	if err := printer(cmd).StartResults(s.start); err != nil {
		return err
	}

	watcher := reconciler.NewWatcher(s.cfg.Path, func(ctx context.Context, next *config.DataCenterConfig) error {
		results, err := s.orch.Reconcile(ctx, next)
		for name, r := range results {
			if r.Err != nil {
				logging.Warn("Serve", "Data source %s failed after reload: %v", name, r.Err)
			} else {
				logging.Info("Serve", "Data source %s is %s after reload", name, r.State)
			}
		}
		return err
	}, reconciler.WithLoader(func(path string) (*config.DataCenterConfig, error) {
		return config.LoadFile(path, config.WithFlags(cmd.Flags()))
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.orch.Run(gctx) })
	g.Go(func() error {
		watchStateChanges(gctx, s)
		return nil
	})
	if !opts.noWatch && s.cfg.Path != "" {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	g.Go(func() error {
		defer cancel()
		if opts.noREPL {
			logging.Info("Serve", "Workers started. Press Ctrl+C to stop all workers and exit.")
			<-gctx.Done()
			return nil
		}
		return cli.NewREPL(s.orch, os.Stdout, watcher.Reload).Run(gctx)
	})

	err = g.Wait()
	logging.Info("Serve", "Shutting down workers")
	return err
}

func watchStateChanges(ctx context.Context, s *session) {
	events := s.orch.SubscribeToStateChanges()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Error != nil {
				logging.Warn("Serve", "Data source %s: %s -> %s (%v)", ev.Source, ev.OldState, ev.NewState, ev.Error)
			} else {
				logging.Info("Serve", "Data source %s: %s -> %s", ev.Source, ev.OldState, ev.NewState)
			}
		}
	}
}
