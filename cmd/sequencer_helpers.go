package cmd

import (
	"fmt"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/NahomAnteneh/metarepo/internal/sequencer"
	"github.com/spf13/cobra"
)

// reportSequencerResult renders the outcome of a sequencer entry point
// (StartMerge/StartRebase/StartCherryPick/Continue), all of which share the
// same finished/conflicted/error shape.
func reportSequencerResult(cmd *cobra.Command, result sequencer.Result, err error) error {
	if err != nil {
		if _, ok := errs.IsConflict(err); ok {
			fmt.Fprintln(cmd.OutOrStdout(), "CONFLICT: fix conflicts and run the command again with --continue")
			return err
		}
		return err
	}
	if result.Finished {
		fmt.Fprintf(cmd.OutOrStdout(), "HEAD is now at %s\n", result.HeadCommit)
	}
	return nil
}
