package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/router"
	"github.com/aimerfeng/neuralfs/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		offset     int
		fileTypes  []string
		tags       []string
		pathPrefix string
		minScore   float64
		remote     bool
		jsonOutput bool
		offline    bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed files",
		Long: `Run a hybrid search over the index: the query is classified
(exact-keyword, natural-language, or mixed), dense and sparse retrieval
run in parallel, and the fused results are ranked.

Examples:
  neuralfsd search "quarterly revenue"
  neuralfsd search "0x80070005"              # exact-keyword
  neuralfsd search report --type pdf --type docx
  neuralfsd search budget --tag finance --min-score 0.3
  neuralfsd search meeting --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			return runSearch(cmd.Context(), root, strings.Join(args, " "), searchOptions{
				limit:      limit,
				offset:     offset,
				fileTypes:  fileTypes,
				tags:       tags,
				pathPrefix: pathPrefix,
				minScore:   minScore,
				remote:     remote,
				jsonOutput: jsonOutput,
				offline:    offline,
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Result offset for pagination")
	cmd.Flags().StringArrayVar(&fileTypes, "type", nil, "Restrict to file type/extension (repeatable)")
	cmd.Flags().StringArrayVar(&tags, "tag", nil, "Require tag (repeatable)")
	cmd.Flags().StringVar(&pathPrefix, "path", "", "Restrict to a path prefix")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Minimum result score")
	cmd.Flags().BoolVar(&remote, "remote", false, "Allow remote inference enrichment (if enabled in config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static embeddings")

	return cmd
}

type searchOptions struct {
	limit      int
	offset     int
	fileTypes  []string
	tags       []string
	pathPrefix string
	minScore   float64
	remote     bool
	jsonOutput bool
	offline    bool
}

func runSearch(ctx context.Context, root, query string, opts searchOptions) error {
	if err := os.Chdir(root); err != nil {
		return err
	}

	e, err := openEngine(ctx, root, engineOptions{offline: opts.offline})
	if err != nil {
		return err
	}
	defer e.close()

	resp, err := e.router.SearchFiles(ctx, router.SearchRequest{
		Query:     query,
		Timestamp: time.Now(),
		Filters: router.Filters{
			FileTypes:   opts.fileTypes,
			IncludeTags: opts.tags,
			PathPrefix:  opts.pathPrefix,
			MinScore:    opts.minScore,
		},
		Offset:       opts.offset,
		Limit:        opts.limit,
		EnableRemote: opts.remote,
	})
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResponse(resp, query)
	return nil
}

func printResponse(resp *router.SearchResponse, query string) {
	styles := ui.GetStyles(ui.DetectNoColor())

	switch resp.Status {
	case router.StatusNoResults:
		fmt.Printf("No results for %q\n", query)
		return
	case router.StatusNeedsClarity:
		fmt.Printf("Results for %q are ambiguous. Did you mean:\n\n", query)
		for _, c := range resp.Clarifications {
			fmt.Printf("  %s (%d results) — %s\n", c.Label, c.EstimatedCount, c.Description)
		}
		fmt.Println()
	}

	for i, hit := range resp.Results {
		fmt.Printf("%2d. %s  %s\n", i+1,
			styles.Header.Render(hit.Path),
			styles.Dim.Render(fmt.Sprintf("%.3f", hit.Score)))
		if hit.Snippet != "" {
			snippet := strings.TrimSpace(hit.Snippet)
			if len(snippet) > 200 {
				snippet = snippet[:200] + "..."
			}
			for _, line := range strings.Split(snippet, "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
	}

	fmt.Printf("\n%d of %d results in %s (sources: %s)\n",
		len(resp.Results), resp.TotalCount,
		resp.Duration.Round(time.Millisecond),
		strings.Join(resp.Sources, ", "))
	if resp.HasMore {
		fmt.Println("More results available; use --offset to page.")
	}
}
