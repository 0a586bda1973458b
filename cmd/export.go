package cmd

import (
	"fmt"
	"os"

	"datacenter/internal/cli"
	"datacenter/internal/config"

	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print the effective configuration",
		Long: `Loads the configuration with environment and flag overrides applied and
writes it back out, with defaults filled in. The output is YAML unless
--output json is given; --file writes it to a file instead of stdout.`,
		Example: `  datacenter export
  datacenter export -o json --file effective.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			data, err := exportConfig(cfg, cli.OutputFormat(flags.outputFormat))
			if err != nil {
				return err
			}
			if file == "" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(file, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", file, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Configuration exported to %s\n", file)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Write to this file instead of stdout")
	return cmd
}

// exportConfig renders cfg as JSON for --output json and as YAML otherwise.
func exportConfig(cfg *config.DataCenterConfig, format cli.OutputFormat) ([]byte, error) {
	if format == cli.OutputFormatJSON {
		return config.MarshalJSON(cfg)
	}
	return config.Marshal(cfg)
}
