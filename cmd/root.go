package cmd

import (
	"errors"
	"fmt"
	"os"

	"datacenter/internal/cli"
	"datacenter/internal/config"
	"datacenter/internal/mcpserver"
	"datacenter/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeConfig indicates the configuration file could not be loaded.
	ExitCodeConfig = 2
)

// rootFlags holds the persistent flags shared by every command.
type rootFlags struct {
	configPath   string
	logLevel     string
	logFormat    string
	outputFormat string
	noHeaders    bool
	quiet        bool
}

var flags rootFlags

// rootCmd represents the base command for the datacenter application.
var rootCmd = &cobra.Command{
	Use:   "datacenter",
	Short: "Serve databases, caches, search indexes and APIs as MCP workers",
	Long: `datacenter starts one Model Context Protocol worker process per configured
data source, keeps them healthy, and routes resource reads and tool calls
to them, including calls fanned out across several sources.

Configuration is read from a YAML file (--config). Environment variables
prefixed with DATACENTER_ override file values, using a double underscore
as the nesting separator, e.g. DATACENTER_MANAGEMENT__FAILURE_THRESHOLD=5.`,
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command and the MCP client.
func SetVersion(v string) {
	rootCmd.Version = v
	mcpserver.ClientVersion = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "datacenter version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return ExitCodeConfig
	}
	return ExitCodeError
}

// initLogging sets up logging before the configuration is known. Logs
// always go to stderr: stdout carries command output, and for workers the
// protocol itself.
func initLogging(cmd *cobra.Command, _ []string) error {
	level, ok := logging.ParseLevel(flags.logLevel)
	if !ok {
		return fmt.Errorf("unknown log level %q", flags.logLevel)
	}
	format := logging.Format(flags.logFormat)
	if format != logging.FormatText && format != logging.FormatJSON {
		return fmt.Errorf("unknown log format %q (valid: text, json)", flags.logFormat)
	}
	logging.Init(level, format, os.Stderr)
	return cli.ValidateOutputFormat(flags.outputFormat)
}

// loadConfig reads the configuration file with command line overrides and
// re-initializes logging from it.
func loadConfig(cmd *cobra.Command) (*config.DataCenterConfig, error) {
	cfg, err := config.LoadFile(flags.configPath, config.WithFlags(cmd.Flags()))
	if err != nil {
		var ce *config.ConfigError
		if errors.As(err, &ce) {
			fmt.Fprintln(cmd.ErrOrStderr(), ce.DetailedError())
		}
		return nil, err
	}
	if level, ok := logging.ParseLevel(cfg.Logging.Level); ok {
		logging.Init(level, logging.Format(cfg.Logging.Format), os.Stderr)
	}
	return cfg, nil
}

func printer(cmd *cobra.Command) *cli.Printer {
	return cli.NewPrinter(cmd.OutOrStdout(), cli.OutputFormat(flags.outputFormat), flags.noHeaders)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", config.DefaultConfigFile, "Configuration file")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVarP(&flags.outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	pf.BoolVar(&flags.noHeaders, "no-headers", false, "Suppress header row in table output")
	pf.BoolVarP(&flags.quiet, "quiet", "q", false, "Suppress progress indicators")

	pf.Duration("health-check-interval", config.DefaultHealthCheckInterval, "Interval between worker health checks")
	pf.Duration("health-check-timeout", config.DefaultHealthCheckTimeout, "Timeout of a single health check")
	pf.Duration("call-timeout", config.DefaultCallTimeout, "Default timeout of a tool call")
	pf.Int("failure-threshold", config.DefaultFailureThreshold, "Consecutive failed health checks before a worker is stopped")

	rootCmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newListSourcesCmd(),
		newHealthCmd(),
		newResourcesCmd(),
		newToolsCmd(),
		newCallCmd(),
		newReadCmd(),
		newCrossCallCmd(),
		newValidateCmd(),
		newExportCmd(),
		newVersionCmd(),
	)
}
