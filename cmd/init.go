package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NahomAnteneh/metarepo/internal/objectstore/diskstore"
	"github.com/spf13/cobra"
)

func init() {
	initCmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new, empty meta-repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("failed to get absolute path: %w", err)
			}

			metaDir := filepath.Join(absDir, privateDir)
			if _, err := os.Stat(metaDir); err == nil {
				return fmt.Errorf("metarepo already initialized at %s", absDir)
			}

			store, err := diskstore.New(absDir)
			if err != nil {
				return fmt.Errorf("failed to initialize meta-repo: %w", err)
			}
			if err := store.SetCurrentBranch(context.Background(), "master", false); err != nil {
				return fmt.Errorf("failed to set initial branch: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized empty meta-repository in %s\n", metaDir)
			return nil
		},
	}
	rootCmd.AddCommand(initCmd)
}
