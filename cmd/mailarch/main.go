// Package main provides the mailarch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail-archiver/internal/config"
	"github.com/nhle/mail-archiver/internal/logger"
)

var (
	// configFile is set by the --config flag.
	configFile string

	// cfg and log are initialized once before any command runs.
	cfg *config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailarch",
	Short: "mailarch archives IMAP mail into a searchable local store",
	Long: `mailarch pulls new messages from configured IMAP accounts, stores
each one as an immutable .eml file under a date-partitioned archive
tree, and maintains a full-text index over the archive. The index can
be searched from the CLI or served over a small HTTP API.`,
	PersistentPreRunE: initApp,
	SilenceUsage:      true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (default: ~/.config/mailarch/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateAccountCmd)
}

// initApp loads configuration and builds the logger.
func initApp(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "version" {
		return nil
	}

	path := configFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	var err error
	cfg, err = config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err = logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	return nil
}
