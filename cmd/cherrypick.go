package cmd

import (
	"context"
	"fmt"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/spf13/cobra"
)

var (
	cherryPickContinue  bool
	cherryPickAbort     bool
	cherryPickNoRecurse []string
)

func init() {
	cherryPickCmd := &cobra.Command{
		Use:   "cherry-pick [commits...]",
		Short: "Replay one or more commits onto HEAD, recursing into open sub-repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			ctx := context.Background()

			if cherryPickContinue && cherryPickAbort {
				return errs.NewUserError("--continue and --abort are mutually exclusive")
			}
			if cherryPickContinue {
				result, err := env.sequencer.Continue(ctx, env.metaRepo, cherryPickNoRecurse)
				return reportSequencerResult(cmd, result, err)
			}
			if cherryPickAbort {
				if err := env.sequencer.Abort(ctx, env.metaRepo); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "cherry-pick aborted")
				return nil
			}

			if len(args) == 0 {
				return errs.NewUserError("cherry-pick requires at least one commit")
			}
			result, err := env.sequencer.StartCherryPick(ctx, env.metaRepo, args)
			return reportSequencerResult(cmd, result, err)
		},
	}
	cherryPickCmd.Flags().BoolVar(&cherryPickContinue, "continue", false, "Resume a cherry-pick after resolving conflicts")
	cherryPickCmd.Flags().BoolVar(&cherryPickAbort, "abort", false, "Abort an in-progress cherry-pick")
	cherryPickCmd.Flags().StringSliceVar(&cherryPickNoRecurse, "do-not-recurse", nil, "Submodule paths to treat as opaque during the cherry-pick")
	rootCmd.AddCommand(cherryPickCmd)
}
