package cmd

import (
	"fmt"
	"os"

	"datacenter/internal/config"
	"datacenter/internal/worker"

	"github.com/spf13/cobra"
)

func newWorkerCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Serve one data source over MCP on stdin/stdout",
		Long: `Runs the worker for a single data source. The orchestrator launches this
command for every enabled source; it is rarely useful to run it by hand.

The worker reads newline-delimited JSON-RPC from stdin and answers on
stdout. All logging goes to stderr.`,
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ds, ok := cfg.DataSource(source)
			if !ok {
				return fmt.Errorf("data source %q not found in %s", source, cfg.Path)
			}
			if errs := config.ValidateDataSource(ds); errs.HasErrors() {
				return errs
			}
			return worker.Run(ctx, ds, GetVersion(), os.Stdin, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&source, "datasource", "", "Name of the data source to serve")
	_ = cmd.MarkFlagRequired("datasource")
	return cmd
}
