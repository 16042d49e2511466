package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/NahomAnteneh/metarepo/internal/sequencer"
	"github.com/spf13/cobra"
)

var (
	mergeMessage     string
	mergeMessageFile string
	mergeFF          bool
	mergeFFOnly      bool
	mergeNoFF        bool
	mergeContinue    bool
	mergeAbort       bool
	mergeNoRecurse   []string
)

func init() {
	mergeCmd := &cobra.Command{
		Use:   "merge [commit]",
		Short: "Merge another commit into HEAD, recursing into open sub-repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if mergeContinue && mergeAbort {
				return errs.NewUserError("--continue and --abort are mutually exclusive")
			}
			if mergeContinue {
				result, err := env.sequencer.Continue(ctx, env.metaRepo, mergeNoRecurse)
				return reportSequencerResult(cmd, result, err)
			}
			if mergeAbort {
				if err := env.sequencer.Abort(ctx, env.metaRepo); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "merge aborted")
				return nil
			}

			if mergeFF && mergeFFOnly || mergeFF && mergeNoFF || mergeFFOnly && mergeNoFF {
				return errs.NewUserError("--ff, --ff-only, and --no-ff are mutually exclusive")
			}
			if len(args) != 1 {
				return errs.NewUserError("merge requires exactly one commit argument")
			}
			if mergeMessage != "" && mergeMessageFile != "" {
				return errs.NewUserError("-m and -F are mutually exclusive")
			}
			if mergeMessageFile != "" {
				data, err := os.ReadFile(mergeMessageFile)
				if err != nil {
					return errs.NewUserError("reading -F message file: %v", err)
				}
				mergeMessage = strings.TrimRight(string(data), "\n")
			}

			mode := sequencer.MergeNormal
			switch {
			case mergeFFOnly:
				mode = sequencer.MergeFFOnly
			case mergeNoFF:
				mode = sequencer.MergeForceCommit
			}

			result, err := env.sequencer.StartMerge(ctx, env.metaRepo, args[0], mode, mergeMessage, mergeMessage != "", mergeNoRecurse)
			return reportSequencerResult(cmd, result, err)
		},
	}
	mergeCmd.Flags().StringVarP(&mergeMessage, "message", "m", "", "Merge commit message")
	mergeCmd.Flags().StringVarP(&mergeMessageFile, "file", "F", "", "Read the merge commit message from a file")
	mergeCmd.Flags().BoolVar(&mergeFF, "ff", false, "Fast-forward when possible (default)")
	mergeCmd.Flags().BoolVar(&mergeFFOnly, "ff-only", false, "Refuse to merge unless fast-forward is possible")
	mergeCmd.Flags().BoolVar(&mergeNoFF, "no-ff", false, "Always create a merge commit")
	mergeCmd.Flags().BoolVar(&mergeContinue, "continue", false, "Resume a merge after resolving conflicts")
	mergeCmd.Flags().BoolVar(&mergeAbort, "abort", false, "Abort an in-progress merge")
	mergeCmd.Flags().StringSliceVar(&mergeNoRecurse, "do-not-recurse", nil, "Submodule paths to treat as opaque during the merge")
	rootCmd.AddCommand(mergeCmd)
}
