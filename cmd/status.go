package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/NahomAnteneh/metarepo/internal/color"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/statusengine"
	"github.com/spf13/cobra"
)

var statusShort bool

func init() {
	statusCmd := &cobra.Command{
		Use:   "status [paths...]",
		Short: "Show the working tree status of the meta-repo and its submodules",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			opts := statusengine.Options{ShowMetaChanges: true, Paths: args}
			status, err := env.status.GetRepoStatus(context.Background(), env.metaRepo, opts)
			if err != nil {
				return err
			}
			renderer := color.New(cmd.OutOrStdout())
			if statusShort {
				printShortStatus(cmd, renderer, status)
			} else {
				printLongStatus(cmd, renderer, status)
			}
			return nil
		},
	}
	statusCmd.Flags().BoolVarP(&statusShort, "short", "s", false, "Give the output in the short format")
	rootCmd.AddCommand(statusCmd)
}

// printLongStatus and printShortStatus mirror the teacher's
// printLongStatus/printShortStatus split, generalized over meta.RepoStatus
// and recursing into open submodules (§ SUPPLEMENTED FEATURES).
func printLongStatus(cmd *cobra.Command, r *color.Renderer, status meta.RepoStatus) {
	out := cmd.OutOrStdout()
	if status.HasBranch {
		fmt.Fprintf(out, "On branch %s\n", r.Branch(status.CurrentBranch))
	} else {
		fmt.Fprintln(out, "HEAD detached")
	}
	if !status.HasHeadCommit {
		fmt.Fprintln(out, "\nNo commits yet")
	}

	printFileSection(out, r, "Changes to be committed", status.Staged)
	printFileSection(out, r, "Changes not staged for commit", status.Workdir)

	names := sortedSubNames(status.Submodules)
	for _, name := range names {
		sub := status.Submodules[name]
		fmt.Fprintf(out, "\nsubmodule %s: %s\n", name, sub.Index.Relation)
		if sub.Workdir.Present && sub.Workdir.Status != nil {
			printLongStatus(cmd, r, *sub.Workdir.Status)
		}
	}

	if status.IsDeepClean(true) {
		fmt.Fprintln(out, "\nnothing to commit, working tree clean")
	}
}

func printShortStatus(cmd *cobra.Command, r *color.Renderer, status meta.RepoStatus) {
	out := cmd.OutOrStdout()
	paths := map[string]meta.FileStatus{}
	for p, s := range status.Staged {
		paths[p] = s
	}
	for p, s := range status.Workdir {
		if _, staged := paths[p]; !staged {
			paths[p] = s
		}
	}
	names := make([]string, 0, len(paths))
	for p := range paths {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		fmt.Fprintf(out, "%s %s\n", shortCode(r, paths[p]), p)
	}
	for name := range status.Submodules {
		sub := status.Submodules[name]
		if sub.Index.Relation != meta.RelationSame {
			fmt.Fprintf(out, "M  %s (%s)\n", name, sub.Index.Relation)
		}
	}
}

func shortCode(r *color.Renderer, st meta.FileStatus) string {
	switch st {
	case meta.FileAdded:
		return r.Added("A")
	case meta.FileModified:
		return r.Modified("M")
	case meta.FileRemoved:
		return r.Removed("D")
	case meta.FileRenamed:
		return r.Modified("R")
	case meta.FileTypeChanged:
		return r.Modified("T")
	case meta.FileConflicted:
		return r.Conflicted("U")
	default:
		return "?"
	}
}

func printFileSection(out interface{ Write([]byte) (int, error) }, r *color.Renderer, title string, files map[string]meta.FileStatus) {
	if len(files) == 0 {
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	names := make([]string, 0, len(files))
	for p := range files {
		names = append(names, p)
	}
	sort.Strings(names)
	for _, p := range names {
		fmt.Fprintf(out, "\t%s: %s\n", stateWord(files[p]), colorPath(r, files[p], p))
	}
}

func colorPath(r *color.Renderer, st meta.FileStatus, path string) string {
	switch st {
	case meta.FileAdded:
		return r.Added(path)
	case meta.FileRemoved:
		return r.Removed(path)
	case meta.FileConflicted:
		return r.Conflicted(path)
	default:
		return r.Modified(path)
	}
}

func stateWord(st meta.FileStatus) string {
	switch st {
	case meta.FileAdded:
		return "new file"
	case meta.FileModified:
		return "modified"
	case meta.FileRemoved:
		return "deleted"
	case meta.FileRenamed:
		return "renamed"
	case meta.FileTypeChanged:
		return "typechange"
	case meta.FileConflicted:
		return "conflicted"
	default:
		return "unknown"
	}
}

func sortedSubNames(subs map[string]meta.SubmoduleStatus) []string {
	names := make([]string, 0, len(subs))
	for n := range subs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
