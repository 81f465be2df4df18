package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/config"
)

func newDeadLetterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dead-letter",
		Short: "Inspect and retry files that exhausted their retry budget",
		Long: `Index tasks that failed more times than the retry budget allows are
parked in the dead-letter queue instead of being retried forever. This
command lists them, requeues one for another attempt, or clears the
queue.`,
	}

	cmd.AddCommand(newDeadLetterListCmd())
	cmd.AddCommand(newDeadLetterRetryCmd())
	cmd.AddCommand(newDeadLetterClearCmd())
	return cmd
}

// openIndexerEngine opens a read-write engine rooted at the nearest
// project root, for the dead-letter subcommands that need queue access.
func openIndexerEngine(ctx context.Context) (*engine, error) {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	if err := os.Chdir(root); err != nil {
		return nil, err
	}
	return openEngine(ctx, root, engineOptions{offline: true, withIndexer: true})
}

func newDeadLetterListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openIndexerEngine(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			tasks, err := e.idx.DeadLetter(ctx)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Dead-letter queue is empty.")
				return nil
			}
			for _, task := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  retries=%d  %s\n    %s\n",
					task.ID, task.RetryCount, task.FilePath, task.LastError)
			}
			return nil
		},
	}
}

func newDeadLetterRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Requeue a dead-lettered task for another attempt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := openIndexerEngine(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if err := e.idx.Requeue(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s. Run 'neuralfsd scan' or the daemon to process it.\n", args[0])
			return nil
		},
	}
}

func newDeadLetterClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every dead-lettered task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := openIndexerEngine(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			n, err := e.idx.ClearDeadLetter(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d tasks.\n", n)
			return nil
		},
	}
}
