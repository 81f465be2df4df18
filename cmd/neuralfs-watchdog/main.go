// Package main provides the neuralfs-watchdog command - the out-of-process
// supervisor for the NeuralFS engine.
//
// Usage:
//
//	neuralfs-watchdog --binary /path/to/neuralfsd [flags]
//
// Flags:
//
//	    --binary string        Path to the engine binary to supervise (required)
//	    --arg stringArray      Argument passed to the engine (repeatable)
//	    --state-dir string     Directory for pidfile/heartbeat/update socket
//	    --heartbeat-timeout duration   Stale-heartbeat threshold (default 5s)
//	    --poll-interval duration       Liveness check cadence (default 1s)
//	    --max-restarts int     Consecutive restart attempts before escalating (default 3)
//	    --cooldown duration    Window that resets the restart budget (default 10s)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/logging"
	"github.com/aimerfeng/neuralfs/internal/watchdog"
	"github.com/aimerfeng/neuralfs/pkg/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		binary           string
		args             []string
		stateDir         string
		heartbeatTimeout time.Duration
		pollInterval     time.Duration
		maxRestarts      int
		cooldown         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "neuralfs-watchdog",
		Short: "Supervise the NeuralFS engine process",
		Long: `Monitor the NeuralFS engine, restarting it on crash or heartbeat
timeout.

The engine writes a heartbeat timestamp once per second; if the timestamp
goes stale or the process dies, the watchdog kills any unresponsive
remnant and restarts the engine, up to a bounded number of consecutive
attempts. When the budget is exhausted the watchdog stops restarting and
surfaces a persistent failure notice instead of crash-looping.

The watchdog also accepts a prepare-update request from the engine over a
local socket: while an update is prepared, auto-restart is suppressed, and
after the engine exits on its own the new binary is swapped in (with
rollback to the previous binary if the swap fails).

Examples:
  neuralfs-watchdog --binary /usr/local/bin/neuralfsd
  neuralfs-watchdog --binary ./neuralfsd --arg serve --arg --debug
  neuralfs-watchdog --binary ./neuralfsd --heartbeat-timeout 10s`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if binary == "" {
				return fmt.Errorf("--binary is required")
			}
			return runWatchdog(cmd.Context(), watchdogOptions{
				binary:           binary,
				args:             args,
				stateDir:         stateDir,
				heartbeatTimeout: heartbeatTimeout,
				pollInterval:     pollInterval,
				maxRestarts:      maxRestarts,
				cooldown:         cooldown,
			})
		},
	}

	defaults := watchdog.DefaultConfig()
	cmd.Flags().StringVar(&binary, "binary", "", "Path to the engine binary to supervise")
	cmd.Flags().StringArrayVar(&args, "arg", nil, "Argument passed to the engine (repeatable)")
	cmd.Flags().StringVar(&stateDir, "state-dir", defaultStateDir(), "Directory for pidfile, heartbeat, and update socket")
	cmd.Flags().DurationVar(&heartbeatTimeout, "heartbeat-timeout", defaults.HeartbeatTimeout, "Stale-heartbeat threshold")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", defaults.PollInterval, "Liveness check cadence")
	cmd.Flags().IntVar(&maxRestarts, "max-restarts", defaults.MaxRestartAttempts, "Consecutive restart attempts before escalating")
	cmd.Flags().DurationVar(&cooldown, "cooldown", defaults.RestartCooldown, "Window that resets the restart budget")

	return cmd
}

type watchdogOptions struct {
	binary           string
	args             []string
	stateDir         string
	heartbeatTimeout time.Duration
	pollInterval     time.Duration
	maxRestarts      int
	cooldown         time.Duration
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".neuralfs", "watchdog")
	}
	return filepath.Join(home, ".neuralfs", "watchdog")
}

func runWatchdog(ctx context.Context, opts watchdogOptions) error {
	if err := os.MkdirAll(opts.stateDir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	logCfg := logging.DefaultConfig()
	logCfg.FilePath = filepath.Join(logging.DefaultLogDir(), "watchdog.log")
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		slog.SetDefault(logger)
		defer cleanup()
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := watchdog.DefaultConfig()
	cfg.BinaryPath = opts.binary
	cfg.Args = opts.args
	cfg.PIDFilePath = filepath.Join(opts.stateDir, "neuralfsd.pid")
	cfg.HeartbeatPath = filepath.Join(opts.stateDir, "heartbeat")
	cfg.HeartbeatTimeout = opts.heartbeatTimeout
	cfg.PollInterval = opts.pollInterval
	cfg.MaxRestartAttempts = opts.maxRestarts
	cfg.RestartCooldown = opts.cooldown

	sup := watchdog.New(cfg)
	sup.OnEscalate = func(reason string) {
		// The failure notice has to outlive this process: a marker file
		// the engine's shell checks on next launch, plus stderr for an
		// attached terminal.
		marker := filepath.Join(opts.stateDir, "engine-failed")
		msg := fmt.Sprintf("%s\t%s\n", time.Now().UTC().Format(time.RFC3339), reason)
		_ = os.WriteFile(marker, []byte(msg), 0o644)
		fmt.Fprintf(os.Stderr, "neuralfs engine failed repeatedly and was not restarted: %s\n", reason)
	}

	ipc := watchdog.NewIPCListener(filepath.Join(opts.stateDir, "update.sock"), sup)
	go func() {
		if err := ipc.Serve(ctx); err != nil && ctx.Err() == nil {
			slog.Error("prepare-update listener stopped", slog.String("error", err.Error()))
		}
	}()

	slog.Info("watchdog starting",
		slog.String("binary", opts.binary),
		slog.String("state_dir", opts.stateDir))

	if err := sup.Start(); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	return sup.Run(ctx)
}
