package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/config"
)

// Version is set at build time.
var Version = "dev"

var (
	cfgFile      string
	outputFormat string
	logLevel     string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "covrun",
	Short: "Coverage instrumentation runner for .NET modules",
	Long: `covrun locates a compiled .NET module and its symbols, resolves the
shared-framework assemblies it depends on and drives an instrumentation pass
that rewrites the module to record coverage.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.covrun/covrun.yaml, then ./covrun.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "output", "table", "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")
}

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps a command error to the process exit code: 2 for
// configuration problems, 1 otherwise.
func ExitCode(err error) int {
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

// loadConfig reads the configuration. --log-level wins over the file and
// the environment once set. Errors exit with 2.
func loadConfig() (*config.Config, error) {
	v := config.NewViper(cfgFile)
	if err := v.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: fmt.Errorf("configuration: %w", err)}
	}
	return cfg, nil
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
