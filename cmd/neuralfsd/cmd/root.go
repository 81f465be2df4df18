// Package cmd provides the CLI commands for the NeuralFS engine.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/logging"
	"github.com/aimerfeng/neuralfs/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the neuralfsd CLI.
func NewRootCmd() *cobra.Command {
	var offline bool
	var reindex bool

	cmd := &cobra.Command{
		Use:   "neuralfsd",
		Short: "AI-driven local file engine: watch, index, search",
		Long: `NeuralFS watches your directories, indexes file content into hybrid
(BM25 + semantic) search indices, auto-tags files, and discovers
relations between them — entirely on your machine.

Running 'neuralfsd' with no arguments indexes the current directory if
needed and starts the engine: the command server on stdio, the file
watcher, and the loopback asset stream.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return runSmartDefault(cmd.Context(), offline, reindex)
		},
	}

	cmd.SetVersionTemplate("neuralfsd version {{.Version}}\n")

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip model download)")
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Force reindex even if an index exists")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.neuralfs/logs/")
	cmd.PersistentPreRunE = startDebugLogging
	cmd.PersistentPostRunE = stopDebugLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newScanCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newDeadLetterCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startDebugLogging switches slog to file-backed debug logging when --debug
// is set.
func startDebugLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopDebugLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// runSmartDefault indexes the current directory if no index exists, then
// starts the engine on stdio. The MCP protocol owns stdout exclusively, so
// nothing may be printed before the server starts; status output goes to
// the log file instead ('neuralfsd status' shows it interactively).
func runSmartDefault(ctx context.Context, offline, reindex bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}

	metadataPath := filepath.Join(root, ".neuralfs", "metadata.db")
	needsIndex := reindex || !fileExists(metadataPath)

	if needsIndex {
		slog.Info("Index not found, creating index", slog.String("root", root))
		if err := runScanInternal(ctx, root, offline); err != nil {
			slog.Error("Indexing failed", slog.String("error", err.Error()))
			return fmt.Errorf("indexing failed: %w", err)
		}
		slog.Info("Index complete")
	}

	return runServe(ctx, serveOptions{root: root, offline: offline, transport: "stdio"})
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
