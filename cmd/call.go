package cmd

import (
	"context"
	"fmt"
	"time"

	"datacenter/internal/api"
	"datacenter/internal/cli"
	"datacenter/internal/orchestrator"

	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call <name> <tool> [json-args]",
		Short: "Call a tool on one data source",
		Example: `  datacenter call orders execute_query '{"sql": "SELECT count(*) FROM orders"}'
  datacenter call weather call_current '{"city": "Berlin"}'`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 3 {
				raw = args[2]
			}
			toolArgs, err := cli.ParseArgs(raw)
			if err != nil {
				return err
			}
			return runWithSession(cmd, args[:1], func(ctx context.Context, s *session) error {
				out, err := s.orch.CallTool(ctx, args[0], args[1], toolArgs)
				if err != nil {
					return err
				}
				return printer(cmd).ToolOutput(out)
			})
		},
	}
}

func newReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "read <name> <uri>",
		Short:   "Read one resource of a data source",
		Example: `  datacenter read orders postgresql://orders/table/customers`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, args[:1], func(ctx context.Context, s *session) error {
				contents, err := s.orch.ReadResource(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printer(cmd).ResourceContents(contents)
			})
		},
	}
}

func newCrossCallCmd() *cobra.Command {
	var (
		strategy string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "cross-call <tool> <json-args> [name...]",
		Short: "Call a tool on several data sources at once",
		Long: `Sends the same tool call to every named data source, or to every enabled
one, and reports the outcome per source.

Strategies:
  collect-all    wait for every source and report each result (default)
  first-success  return the first successful result and cancel the rest`,
		Example: `  datacenter cross-call list_tables '{}' orders inventory
  datacenter cross-call execute_query '{"sql": "SELECT 1"}' --strategy first-success`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := orchestrator.CrossSourceQuery{
				Tool:     args[0],
				Targets:  args[2:],
				Strategy: api.Strategy(strategy),
				Timeout:  timeout,
			}
			if !q.Strategy.Valid() {
				return fmt.Errorf("unknown strategy %q (valid: %s, %s)", strategy, api.CollectAll, api.FirstSuccess)
			}
			toolArgs, err := cli.ParseArgs(args[1])
			if err != nil {
				return err
			}
			q.Args = toolArgs

			return runWithSession(cmd, q.Targets, func(ctx context.Context, s *session) error {
				results, err := s.orch.CrossSourceCall(ctx, q)
				if err != nil {
					return err
				}
				return printer(cmd).CallResults(results)
			})
		},
	}
	cmd.Flags().StringVar(&strategy, "strategy", string(api.CollectAll), "Merge strategy (collect-all, first-success)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Overall timeout (default management.fanout_timeout)")
	return cmd
}
