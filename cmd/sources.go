package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newListSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list-sources",
		Aliases: []string{"ls"},
		Short:   "Start every enabled data source and list their states",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWithSession(cmd, nil, func(_ context.Context, s *session) error {
				return printer(cmd).Sources(s.orch.ListSources())
			})
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health [name...]",
		Short: "Check the health of the workers of the named data sources, or all of them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, args, func(ctx context.Context, s *session) error {
				return printer(cmd).Health(s.orch.HealthCheck(ctx, args...))
			})
		},
	}
}

func newResourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resources <name>",
		Short: "List the resources a data source advertises",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, args, func(_ context.Context, s *session) error {
				resources, err := s.orch.ListResources(args[0])
				if err != nil {
					return err
				}
				return printer(cmd).Resources(resources)
			})
		},
	}
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools <name>",
		Short: "List the tools a data source advertises",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithSession(cmd, args, func(_ context.Context, s *session) error {
				tools, err := s.orch.ListTools(args[0])
				if err != nil {
					return err
				}
				return printer(cmd).Tools(tools)
			})
		},
	}
}
