package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/ui"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index health and component status",
		Long: `Show the current state of the index in this directory: file and chunk
counts, on-disk sizes, the embedding backend, and any dead-lettered
index tasks awaiting manual action.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			return runStatus(cmd.Context(), root, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func runStatus(ctx context.Context, root string, jsonOutput bool) error {
	dataDir := filepath.Join(root, ".neuralfs")
	if !fileExists(filepath.Join(dataDir, "metadata.db")) {
		fmt.Printf("No index in %s. Run 'neuralfsd scan' first.\n", root)
		return nil
	}

	if err := os.Chdir(root); err != nil {
		return err
	}

	// Status only reads, and static embeddings avoid spinning up a model
	// server just to print counts.
	e, err := openEngine(ctx, root, engineOptions{offline: true, withIndexer: true})
	if err != nil {
		return err
	}
	defer e.close()

	files, err := e.store.GetFilesForReconciliation(ctx)
	if err != nil {
		return err
	}
	var lastIndexed time.Time
	for _, f := range files {
		if f.IndexedAt.After(lastIndexed) {
			lastIndexed = f.IndexedAt
		}
	}

	textStats := e.text.Stats()

	info := ui.StatusInfo{
		ProjectName:    filepath.Base(root),
		TotalFiles:     len(files),
		TotalChunks:    textStats.DocumentCount,
		LastIndexed:    lastIndexed,
		MetadataSize:   fileSize(filepath.Join(dataDir, "metadata.db")),
		BM25Size:       fileSize(filepath.Join(dataDir, "bm25.db")),
		VectorSize:     fileSize(e.vecPath) + fileSize(e.vecPath+".meta"),
		EmbedderType:   "static",
		EmbedderStatus: "ready",
		EmbedderModel:  e.embedder.ModelName(),
		WatcherStatus:  "n/a",
	}
	info.TotalSize = info.MetadataSize + info.BM25Size + info.VectorSize

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			return err
		}
	} else {
		if err := ui.NewStatusRenderer(os.Stdout, ui.DetectNoColor()).Render(info); err != nil {
			return err
		}
	}

	return printDeadLetter(ctx, e, jsonOutput)
}

func printDeadLetter(ctx context.Context, e *engine, jsonOutput bool) error {
	dead, err := e.idx.DeadLetter(ctx)
	if err != nil || len(dead) == 0 {
		return err
	}
	if jsonOutput {
		return nil // already covered by the structured stats consumers
	}
	fmt.Printf("\n%d files exhausted their retry budget:\n", len(dead))
	limit := len(dead)
	if limit > 10 {
		limit = 10
	}
	for _, task := range dead[:limit] {
		fmt.Printf("  %s  (%s)\n", task.FilePath, task.LastError)
	}
	if len(dead) > limit {
		fmt.Printf("  ... and %d more\n", len(dead)-limit)
	}
	return nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
