package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/internal/config"
	"github.com/aimerfeng/neuralfs/internal/metadata"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and show the ledger",
		Long: `Open the metadata database, apply any pending schema migrations (each
in its own transaction, with a pre-migration snapshot for rollback),
and print the applied-migration ledger.

Migrations also run automatically whenever the engine opens the
database; this command exists to run them explicitly, e.g. after an
upgrade, and to inspect what has been applied.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}

			// Opening the store applies anything pending.
			store, err := metadata.NewSQLiteStore(filepath.Join(root, ".neuralfs", "metadata.db"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			applied, err := store.AppliedMigrations(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations recorded.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is at version %d (%d migrations applied):\n", applied[len(applied)-1].Version, len(applied))
			for _, m := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "  %3d  %-24s  %s  %s\n",
					m.Version, m.Name, m.AppliedAt.Format("2006-01-02 15:04:05"), m.Checksum[:12])
			}
			return nil
		},
	}
}
