package cmd

import (
	"fmt"
	"os"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "metarepo",
	Short: "metarepo coordinates version control across a meta-repository and its sub-repositories",
	Long: `metarepo presents a single logical repository whose commits span many
underlying sub-repositories, while preserving the atomicity, referential
integrity, and replayability expected of a content-addressed VCS.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI, translating the §7 error taxonomy into the exit
// codes of §6.2: 0 ok, 1 user-facing (including conflict), 2 everything
// else (integrity/internal/unexpected).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err.Error())
		if conflict, ok := errs.IsConflict(err); ok {
			_ = conflict // status rendering is left to the command that produced it
			os.Exit(1)
		}
		if errs.IsUser(err) {
			os.Exit(1)
		}
		os.Exit(2)
	}
}
