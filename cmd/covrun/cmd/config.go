package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/config"
	"github.com/psantana5/covrun/internal/server"
	"github.com/psantana5/covrun/pkg/logging"
	covtls "github.com/psantana5/covrun/pkg/tls"
)

var (
	configForce bool
	certHosts   []string
	certValid   time.Duration
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a commented example configuration",
	Long:  `Writes an example covrun.yaml to [path] (default $HOME/.covrun/covrun.yaml).`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configLogrotateCmd = &cobra.Command{
	Use:   "logrotate",
	Short: "Print a logrotate stanza for logging.dir",
	Args:  cobra.NoArgs,
	RunE:  runConfigLogrotate,
}

var configAPIKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate an API key for covrun serve",
	Long: `Prints a new API key and its bcrypt hash. Add the hash to
server.api_key_hashes and hand the key to clients; it is not stored.`,
	Args: cobra.NoArgs,
	RunE: runConfigAPIKey,
}

var configCertCmd = &cobra.Command{
	Use:   "cert <cert-file> <key-file>",
	Short: "Write a self-signed certificate for covrun serve",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigCert,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd, configLogrotateCmd, configAPIKeyCmd, configCertCmd)
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCertCmd.Flags().StringSliceVar(&certHosts, "host", nil, "extra DNS name or IP for the certificate")
	configCertCmd.Flags().DurationVar(&certValid, "valid-for", 365*24*time.Hour, "certificate lifetime")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if cfg.File != "" {
		fmt.Printf("# loaded from %s\n", cfg.File)
	} else {
		fmt.Println("# no config file found, built-in defaults and environment")
	}
	data, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	fmt.Print(string(data))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to find home directory: %w", err)
		}
		path = filepath.Join(home, ".covrun", "covrun.yaml")
	}

	if err := config.WriteExample(path, configForce); err != nil {
		return &ExitError{Code: 2, Err: err}
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func runConfigLogrotate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Logging.Dir == "" {
		return &ExitError{Code: 2, Err: fmt.Errorf("logging.dir is not set")}
	}
	fmt.Print(logging.GenerateLogrotateConfig(cfg.Logging.Dir))
	return nil
}

func runConfigAPIKey(cmd *cobra.Command, args []string) error {
	key, hash, err := server.GenerateAPIKey()
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(map[string]string{"key": key, "hash": hash}, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	fmt.Printf("key:  %s\nhash: %s\n", key, hash)
	return nil
}

func runConfigCert(cmd *cobra.Command, args []string) error {
	if err := covtls.GenerateSelfSignedCert(args[0], args[1], "covrun", certValid, certHosts...); err != nil {
		return err
	}
	fmt.Printf("Wrote %s and %s\n", args[0], args[1])
	return nil
}
