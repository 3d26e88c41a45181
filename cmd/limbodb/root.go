package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Limbo-corps/LimboDB/internal/logging"
	"github.com/Limbo-corps/LimboDB/pkg/config"
)

var (
	// Version is set during build.
	Version = "0.1.0"

	cfgFile  string
	logLevel string
)

// rootCmd is the base command: LimboDB defaults to the interactive
// shell when run with no subcommand.
var rootCmd = &cobra.Command{
	Use:   "limbodb",
	Short: "A small single-node relational database engine",
	Long: `LimboDB is a single-node relational database engine: a generic
B+ tree, a slotted-page heap file, a catalog manager, and a query
executor that dispatches WHERE predicates to secondary indexes when it
can.

Examples:
  limbodb shell
  limbodb serve
  limbodb version`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		shellCmd.Run(cmd, args)
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log_level", "", "log level (debug, info, warn, error); overrides the config file")
}

// loadConfig loads configuration and initializes the global logger
// from it, applying the --log_level override if set.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	return cfg, nil
}
