// Package cmd provides CLI commands for ledger-sync.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/config"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/session"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/syncer"
)

var (
	cfgFile  string
	debug    bool
	jsonLogs bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ledger-sync",
	Short: "Sync bank statements into a plain-text ledger",
	Long: `ledger-sync pulls bank, credit card and brokerage statements and
appends them to a plain-text ledger file.

It supports:
- Balance assertions computed from the statement balance
- A rules file that assigns accounts and comments
- Idempotent syncs keyed on transaction ids
- Dry-run mode for previewing new transactions

Example:
  ledger-sync sync
  ledger-sync import statements/*.yaml
  ledger-sync stats`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(slog.LevelInfo)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	// Add subcommands
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(printCmd)
	rootCmd.AddCommand(fmtCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging installs the default logger. The --debug flag always wins
// over level.
func setupLogging(level slog.Level) {
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if jsonLogs {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// Helper function to get config file path.
func getConfigFile() string {
	if cfgFile != "" {
		return cfgFile
	}
	return "" // Will use default .env loading
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}

// loadConfig loads and validates the configuration, requiring paths on top
// of the ledger file.
func loadConfig(required ...[]string) *config.Config {
	slog.Debug("Loading configuration")
	cfg, err := config.Load(getConfigFile())
	exitOnError(err, "failed to load configuration")
	setupLogging(cfg.LogLevel(debug))

	required = append([][]string{{"ledger", "file"}}, required...)
	if err := cfg.Validate(required...); err != nil {
		exitOnError(err, "invalid configuration")
	}
	return cfg
}

// openSession creates and loads a session. src may be nil to use the
// configured source.
func openSession(cfg *config.Config, src syncer.Source) *session.Session {
	s := session.New(cfg, src)
	exitOnError(s.Load(), "failed to load session")
	return s
}
