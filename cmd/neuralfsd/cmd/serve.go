package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/indexer"
	"github.com/aimerfeng/neuralfs/internal/mcp"
	"github.com/aimerfeng/neuralfs/internal/watchdog"
	"github.com/aimerfeng/neuralfs/internal/watcher"
)

// sessionSweepInterval is how often the idle-session closer runs. Session
// closure derives same-session relations, so the sweep only needs to be
// fine-grained relative to the session timeout (default 30 min).
const sessionSweepInterval = time.Minute

func newServeCmd() *cobra.Command {
	var transport string
	var noAssets bool
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the engine: command server, watcher, asset stream",
		Long: `Start the NeuralFS engine in the current directory (or the nearest
directory containing .neuralfs.yaml).

The engine runs four long-lived services until interrupted:
  - the command server on stdio, consumed by the shell
  - the file watcher, feeding changed files into the index queue
  - the loopback asset stream for thumbnails/previews/files
  - the heartbeat writer the watchdog monitors

Startup reconciles the directory against the last-indexed state, so
changes made while the engine was stopped are picked up before the
watcher takes over.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			return runServe(cmd.Context(), serveOptions{
				root:      root,
				offline:   offline,
				transport: transport,
				noAssets:  noAssets,
			})
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Command server transport (stdio)")
	cmd.Flags().BoolVar(&noAssets, "no-assets", false, "Disable the loopback asset stream server")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip model download)")
	return cmd
}

type serveOptions struct {
	root      string
	offline   bool
	transport string
	noAssets  bool
}

func runServe(ctx context.Context, opts serveOptions) error {
	// File paths in the metadata store are relative to the monitored
	// root; every component resolves them against the working directory.
	if err := os.Chdir(opts.root); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	e, err := openEngine(ctx, opts.root, engineOptions{
		offline:     opts.offline,
		withAssets:  !opts.noAssets,
		withIndexer: true,
	})
	if err != nil {
		return err
	}
	defer e.close()

	e.idx.Start(ctx)

	if e.assets != nil {
		go func() {
			if err := e.assets.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
				slog.Error("asset server failed", slog.String("error", err.Error()))
			}
		}()
	}

	go beatHeartbeat(ctx, e.cfg)
	go sweepSessions(ctx, e)

	// Catch up on changes made while the engine was stopped, then hand
	// over to the watcher.
	if _, err := reconcileAndEnqueue(ctx, e, indexer.PriorityNormal); err != nil {
		slog.Error("startup reconciliation failed", slog.String("error", err.Error()))
	}

	roots := e.cfg.MonitoredDirectories
	if len(roots) == 0 {
		roots = []string{opts.root}
	}
	for _, dir := range roots {
		if err := watchRoot(ctx, e, dir); err != nil {
			slog.Error("watcher failed to start",
				slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}

	srv, err := mcp.NewServer(e.router)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, opts.transport)
}

// watchRoot starts a watcher on dir and forwards its debounced event
// batches into the index queue. Deletes reuse the same queue: the pipeline
// treats a vanished path as a removal.
func watchRoot(ctx context.Context, e *engine, dir string) error {
	w, err := watcher.NewHybridWatcher(watcher.Options{
		IgnorePatterns: e.cfg.Paths.Exclude,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx, dir); err != nil {
		return err
	}

	go func() {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("watcher error", slog.String("error", err.Error()))
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				enqueueEvents(ctx, e, batch)
			}
		}
	}()
	return nil
}

func enqueueEvents(ctx context.Context, e *engine, batch []watcher.FileEvent) {
	for _, ev := range batch {
		if ev.IsDir {
			continue
		}
		switch ev.Operation {
		case watcher.OpCreate, watcher.OpModify, watcher.OpDelete:
			if err := e.idx.Enqueue(ctx, ev.Path, indexer.PriorityHigh); err != nil {
				slog.Warn("enqueue failed",
					slog.String("path", ev.Path), slog.String("error", err.Error()))
			}
		case watcher.OpRename:
			// A rename within the debounce window arrives as old+new
			// path; reindexing the new path and letting the vanished old
			// path fall out keeps the queue handling uniform. Identity-
			// preserving renames are recovered by reconciliation.
			if ev.OldPath != "" {
				_ = e.idx.Enqueue(ctx, ev.OldPath, indexer.PriorityHigh)
			}
			_ = e.idx.Enqueue(ctx, ev.Path, indexer.PriorityHigh)
		case watcher.OpGitignoreChange, watcher.OpConfigChange:
			// Exclusion rules changed out from under the index; a full
			// diff finds both newly-ignored and newly-visible files.
			if _, err := reconcileAndEnqueue(ctx, e, indexer.PriorityLow); err != nil {
				slog.Warn("reconciliation after rule change failed", slog.String("error", err.Error()))
			}
		case watcher.OpDirSkipped:
			slog.Info("directory skipped", slog.String("path", ev.Path), slog.String("reason", string(ev.SkipReason)))
		}
	}
}

// beatHeartbeat writes the liveness timestamp the out-of-process watchdog
// checks, at the configured interval, until ctx is cancelled.
func beatHeartbeat(ctx context.Context, cfg *config.Config) {
	interval := time.Duration(cfg.Watchdog.HeartbeatIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	hb := watchdog.NewHeartbeat(heartbeatPath())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := hb.Beat(); err != nil {
			slog.Warn("heartbeat write failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// heartbeatPath must agree with neuralfs-watchdog's default state dir.
func heartbeatPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".neuralfs", "watchdog", "heartbeat")
	}
	return filepath.Join(home, ".neuralfs", "watchdog", "heartbeat")
}

// sweepSessions periodically closes the idle usage session, which emits
// same-session relations for files accessed together.
func sweepSessions(ctx context.Context, e *engine) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.relations.CloseIdleSession(ctx); err != nil {
				slog.Warn("session sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}
