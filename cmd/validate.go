package cmd

import (
	"errors"
	"fmt"

	"datacenter/internal/backend"
	"datacenter/internal/cli"
	"datacenter/internal/config"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file without starting any worker",
		Long: `Loads and validates the configuration, reporting every problem found.
For a valid file, each data source is listed with its derived connection
string (passwords masked) and the number of resources and tools its worker
would advertise.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			checks := checkSources(cfg)
			if err := printer(cmd).Checks(checks); err != nil {
				return err
			}
			for _, c := range checks {
				if c.Error != "" {
					return errors.New("one or more data sources cannot be served")
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s is valid (%d data sources)\n", cfg.Path, len(cfg.DataSources))
			return nil
		},
	}
}

func checkSources(cfg *config.DataCenterConfig) []cli.SourceCheck {
	checks := make([]cli.SourceCheck, 0, len(cfg.DataSources))
	for _, ds := range cfg.DataSources {
		c := cli.SourceCheck{Name: ds.Name, Type: ds.Type, Enabled: ds.Enabled}
		if s, ok := cfg.Server(ds.Name); ok {
			c.Port = s.Port
		}
		conn, err := backend.ConnectionString(ds, true)
		if err != nil {
			c.Error = err.Error()
		}
		c.Connection = conn

		spec, err := backend.Build(ds, backend.LaunchOptions{})
		if err != nil {
			c.Error = err.Error()
		} else {
			c.Resources = len(spec.Resources)
			c.Tools = len(spec.Tools)
		}
		checks = append(checks, c)
	}
	return checks
}
