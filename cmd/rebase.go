package cmd

import (
	"context"
	"fmt"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/spf13/cobra"
)

var (
	rebaseContinue  bool
	rebaseAbort     bool
	rebaseNoRecurse []string
)

func init() {
	rebaseCmd := &cobra.Command{
		Use:   "rebase [onto]",
		Short: "Replay HEAD's commits onto another commit, recursing into open sub-repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if rebaseContinue && rebaseAbort {
				return errs.NewUserError("--continue and --abort are mutually exclusive")
			}
			if rebaseContinue {
				result, err := env.sequencer.Continue(ctx, env.metaRepo, rebaseNoRecurse)
				return reportSequencerResult(cmd, result, err)
			}
			if rebaseAbort {
				if err := env.sequencer.Abort(ctx, env.metaRepo); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rebase aborted")
				return nil
			}

			if len(args) != 1 {
				return errs.NewUserError("rebase requires exactly one onto-commit argument")
			}
			result, err := env.sequencer.StartRebase(ctx, env.metaRepo, args[0])
			return reportSequencerResult(cmd, result, err)
		},
	}
	rebaseCmd.Flags().BoolVar(&rebaseContinue, "continue", false, "Resume a rebase after resolving conflicts")
	rebaseCmd.Flags().BoolVar(&rebaseAbort, "abort", false, "Abort an in-progress rebase")
	rebaseCmd.Flags().StringSliceVar(&rebaseNoRecurse, "do-not-recurse", nil, "Submodule paths to treat as opaque during the rebase")
	rootCmd.AddCommand(rebaseCmd)
}
