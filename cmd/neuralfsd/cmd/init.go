package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aimerfeng/neuralfs/configs"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create a .neuralfs.yaml in a directory",
		Long: `Write a commented .neuralfs.yaml template into the directory so its
exclude patterns and search weights can be customized.

The engine works without one — 'init' is only needed to change
defaults. Machine-wide settings (provider endpoints, credentials)
belong in the user config instead; see 'neuralfsd config init'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runInit(cmd, dir, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing .neuralfs.yaml")
	return cmd
}

func runInit(cmd *cobra.Command, dir string, force bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	path := filepath.Join(abs, ".neuralfs.yaml")
	if fileExists(path) && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(configs.ProjectConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit it to customize excludes and search weights, then run 'neuralfsd scan'.")
	return nil
}
