// Package cli provides the command-line interface for ytrag.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/ytrag/internal/app"
	"github.com/raphaelgruber/ytrag/internal/config"
	"github.com/raphaelgruber/ytrag/internal/metrics"
	"github.com/raphaelgruber/ytrag/internal/service"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger, loaded in PersistentPreRunE
	cfg         config.Config
	logger      *slog.Logger
	closeLogger func() error

	// Lazy-initialized pipeline (local commands only)
	orchestrator *service.Orchestrator
	collector    *metrics.Collector
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ytrag",
	Short: "Ask questions about YouTube videos",
	Long: `ytrag answers questions about a YouTube video from its English transcript.

The transcript is split into overlapping chunks, embedded, and the passages
closest to your question are handed to a language model together with it.

Run locally with 'ytrag ask' or 'ytrag chat', or talk to a running
ytrag-server with 'ytrag remote'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config for version and help commands
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		// Interactive output goes to stdout; keep stderr quiet unless asked.
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		} else if cfg.LogLevel < slog.LevelWarn {
			cfg.LogLevel = slog.LevelWarn
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, closeLogger = config.SetupLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogger != nil {
			if err := closeLogger(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "ytrag %s\n", Version)
	},
}

// getOrchestrator builds the local pipeline on first use.
// Commands that only talk to a server never initialize providers.
func getOrchestrator(ctx context.Context) (*service.Orchestrator, error) {
	if orchestrator != nil {
		return orchestrator, nil
	}

	collector = metrics.NewCollector()
	orch, err := app.NewOrchestrator(ctx, cfg, collector, logger)
	if err != nil {
		return nil, err
	}
	orchestrator = orch
	return orchestrator, nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(remoteCmd)
}
