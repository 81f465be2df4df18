package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/indexer"
	"github.com/aimerfeng/neuralfs/internal/metadata"
	"github.com/aimerfeng/neuralfs/internal/reconcile"
	"github.com/aimerfeng/neuralfs/internal/router"
	"github.com/aimerfeng/neuralfs/internal/ui"
)

func newScanCmd() *cobra.Command {
	var offline bool
	var plain bool

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a directory and index everything that changed",
		Long: `Walk the directory, diff it against the last-indexed state, and run
every added, modified, renamed, or removed file through the indexing
pipeline. Unchanged files are skipped.

This is the same reconciliation pass 'neuralfsd serve' runs at startup,
exposed as a one-shot command with progress output.

Examples:
  neuralfsd scan               # scan the current directory
  neuralfsd scan ~/Documents   # scan a specific directory
  neuralfsd scan --offline     # use static embeddings`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			if abs, err := config.FindProjectRoot(root); err == nil {
				root = abs
			}
			return runScan(cmd.Context(), root, offline, plain)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings (skip model download)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output (no TUI)")
	return cmd
}

// runScanInternal is the scan used by the smart default: silent, log-only.
func runScanInternal(ctx context.Context, root string, offline bool) error {
	return runScanWithRenderer(ctx, root, offline, nil)
}

func runScan(ctx context.Context, root string, offline, plain bool) error {
	renderer := ui.NewRenderer(ui.NewConfig(os.Stdout,
		ui.WithForcePlain(plain),
		ui.WithProjectDir(root)))
	return runScanWithRenderer(ctx, root, offline, renderer)
}

func runScanWithRenderer(ctx context.Context, root string, offline bool, renderer ui.Renderer) error {
	if err := os.Chdir(root); err != nil {
		return err
	}

	e, err := openEngine(ctx, root, engineOptions{offline: offline, withIndexer: true})
	if err != nil {
		return err
	}
	defer e.close()

	start := time.Now()
	if renderer != nil {
		if err := renderer.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = renderer.Stop() }()
		renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "diffing against index"})
	}

	queued, err := reconcileAndEnqueue(ctx, e, indexer.PriorityNormal)
	if err != nil {
		return err
	}

	e.idx.Start(ctx)
	if err := drainQueue(ctx, e, renderer, queued); err != nil {
		return err
	}
	e.idx.Stop()
	e.idx.Wait()

	stats, err := e.idx.Stats(ctx)
	if err != nil {
		return err
	}
	if renderer != nil {
		renderer.Complete(ui.CompletionStats{
			Files:    queued,
			Duration: time.Since(start),
			Errors:   stats.Failed + stats.DeadLetter,
			Embedder: ui.EmbedderInfo{Model: e.embedder.ModelName(), Dimensions: e.embedder.Dimensions()},
		})
	}
	if stats.DeadLetter > 0 {
		return fmt.Errorf("%d files exhausted their retry budget (see 'neuralfsd status')", stats.DeadLetter)
	}
	return nil
}

// reconcileAndEnqueue diffs the filesystem against the metadata store and
// feeds every change into the index queue. Renames are applied directly to
// the store — the file keeps its identity, tags, and relations, so there
// is nothing to re-embed. Returns the number of tasks enqueued.
func reconcileAndEnqueue(ctx context.Context, e *engine, priority int) (int, error) {
	walker, err := reconcile.New()
	if err != nil {
		return 0, err
	}

	changes, err := reconcile.Diff(ctx, e.store, walker, &reconcile.Options{
		RootDir:          e.root,
		ExcludePatterns:  e.cfg.Paths.Exclude,
		RespectGitignore: true,
	})
	if err != nil {
		return 0, err
	}

	tracker := e.progress
	tracker.Set(router.ScanProgress{TotalFiles: len(changes)})

	queued := 0
	for i, ch := range changes {
		tracker.Set(router.ScanProgress{
			TotalFiles:     len(changes),
			ProcessedFiles: i,
			CurrentPath:    ch.Path,
		})

		switch ch.Kind {
		case reconcile.ChangeRenamed:
			if err := applyRename(ctx, e.store, ch); err != nil {
				return queued, err
			}
		default:
			// Added, modified, and removed all flow through the queue;
			// the pipeline treats a vanished path as a removal.
			if err := e.idx.Enqueue(ctx, ch.Path, priority); err != nil {
				return queued, err
			}
			queued++
		}
	}

	tracker.Set(router.ScanProgress{TotalFiles: len(changes), ProcessedFiles: len(changes), Done: true})
	return queued, nil
}

// applyRename moves a file record to its new path in place. The record ID,
// chunks, tags, and relations all key off the identity-stable ID, so only
// the path column changes.
func applyRename(ctx context.Context, store metadata.Store, ch *reconcile.Change) error {
	prior, err := store.GetFileByPath(ctx, ch.OldPath)
	if err != nil {
		return err
	}
	if prior == nil {
		return nil
	}
	prior.Path = ch.Path
	if ch.File != nil {
		prior.Size = ch.File.Size
		prior.ModTime = ch.File.ModTime
		prior.InodeDevice = ch.File.Identity
	}
	return store.SaveFiles(ctx, []*metadata.File{prior})
}

// drainQueue polls the task queue until it empties, forwarding progress to
// the renderer.
func drainQueue(ctx context.Context, e *engine, renderer ui.Renderer, total int) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		stats, err := e.idx.Stats(ctx)
		if err != nil {
			return err
		}
		remaining := stats.Pending + stats.Processing
		if renderer != nil {
			renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageIndexing,
				Current: total - remaining,
				Total:   total,
			})
		}
		if remaining == 0 {
			return nil
		}
	}
}
