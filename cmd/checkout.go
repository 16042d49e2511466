package cmd

import (
	"context"
	"fmt"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/spf13/cobra"
)

func init() {
	checkoutCmd := &cobra.Command{
		Use:   "checkout <committish>",
		Short: "Move HEAD and the working tree to a branch or commit, recursing into open sub-repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errs.NewUserError("checkout requires exactly one committish argument")
			}
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			result, err := env.checkout.Checkout(context.Background(), env.metaRepo, args[0])
			if err != nil {
				return err
			}
			if result.Detached {
				fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now detached at %s\n", result.HeadCommit)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "switched to %s\n", args[0])
			}
			return nil
		},
	}
	rootCmd.AddCommand(checkoutCmd)
}
