package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/NahomAnteneh/metarepo/internal/commitengine"
	"github.com/NahomAnteneh/metarepo/internal/editor"
	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/statusengine"
	"github.com/spf13/cobra"
)

var (
	commitMessage     string
	commitAll         bool
	commitSubMsgs     map[string]string
	commitInteractive bool
	commitAmend       bool
	commitClosed      bool
	commitMeta        bool
)

func init() {
	commitCmd := &cobra.Command{
		Use:   "commit [paths...]",
		Short: "Record staged changes across the meta-repo and its open sub-repos",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			ctx := context.Background()
			status, err := env.status.GetRepoStatus(ctx, env.metaRepo, statusengine.Options{ShowMetaChanges: true, Paths: args})
			if err != nil {
				return err
			}

			if commitAmend && len(args) > 0 {
				return errs.NewUserError("--amend cannot be combined with path arguments")
			}
			if commitAmend && commitInteractive && commitMessage == "" {
				return errs.NewUserError("--amend --interactive requires -m to seed the buffer")
			}

			if len(args) > 0 {
				if commitMessage == "" {
					return errs.NewUserError("a commit message is required (-m)")
				}
				result, err := env.commit.CommitPaths(ctx, env.metaRepo, status, commitMessage, commitClosed)
				if err != nil {
					return err
				}
				return reportCommitResult(cmd, result)
			}

			if commitAmend {
				result, err := env.commit.AmendMetaRepo(ctx, env.metaRepo, status, commitAll, commitMessage, commitInteractive, nil)
				if err != nil {
					return err
				}
				return reportCommitResult(cmd, result)
			}

			hasMessage := commitMessage != ""
			hasSubMessages := len(commitSubMsgs) > 0

			if commitInteractive {
				split, err := interactiveSplitMessage(ctx, env, commitMessage, status)
				if err != nil {
					return err
				}
				hasMessage = split.HasMeta
				commitMessage = split.MetaMessage
				commitSubMsgs = split.Subs
				hasSubMessages = len(split.Subs) > 0
			}

			// --meta forces the meta-level commit step even when the user
			// only supplied --sub messages, so submodule-pin bumps land in
			// a meta commit without requiring a throwaway -m.
			hasMessage = hasMessage || (commitMeta && hasSubMessages)

			if !hasMessage && !hasSubMessages {
				return errs.NewUserError("a commit message is required (-m, --sub, or --interactive)")
			}

			result, err := env.commit.Commit(ctx, env.metaRepo, commitAll, status, commitMessage, hasMessage, commitSubMsgs, hasSubMessages, commitClosed)
			if err != nil {
				return err
			}
			return reportCommitResult(cmd, result)
		},
	}
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "Commit message")
	commitCmd.Flags().BoolVarP(&commitAll, "all", "a", false, "Stage modified tracked files before committing")
	commitCmd.Flags().StringToStringVar(&commitSubMsgs, "sub", nil, "Per-submodule commit message (name=message)")
	commitCmd.Flags().BoolVarP(&commitInteractive, "interactive", "i", false, "Edit a per-repo split commit message buffer before committing")
	commitCmd.Flags().BoolVar(&commitAmend, "amend", false, "Amend HEAD instead of creating a new commit")
	commitCmd.Flags().BoolVar(&commitClosed, "closed", false, "Skip opening or recursing into submodules not already open")
	commitCmd.Flags().BoolVar(&commitMeta, "meta", false, "Include meta changes (submodule-pin bumps) in the commit even without -m")
	rootCmd.AddCommand(commitCmd)
}

func reportCommitResult(cmd *cobra.Command, result commitengine.Result) error {
	out := cmd.OutOrStdout()
	if result.HasMetaCommit {
		fmt.Fprintf(out, "meta: committed %s\n", result.MetaCommit)
	}
	for name, id := range result.SubmoduleCommits {
		fmt.Fprintf(out, "%s: committed %s\n", name, id)
	}
	return nil
}

// interactiveSplitMessage presents the §6.3 split-commit buffer (meta
// message plus one block per sub-repo with staged changes) in $EDITOR and
// parses the result back into per-repo messages. Each sub's block is
// preceded by a commented-out diff preview of its staged files, the way
// `git commit -v` shows the pending diff above the message.
func interactiveSplitMessage(ctx context.Context, env *environment, initialMeta string, status meta.RepoStatus) (editor.SplitMessages, error) {
	subs := map[string]string{}
	for name, sub := range status.Submodules {
		if sub.Workdir.Present && sub.Workdir.Status != nil && len(sub.Workdir.Status.Staged) > 0 {
			preview, err := stagedDiffPreview(ctx, env, name, sub.Workdir.Status.Staged)
			if err != nil {
				return editor.SplitMessages{}, err
			}
			subs[name] = preview
		}
	}

	inv := &editor.Invoker{}
	buf, err := inv.Edit(editor.Format(initialMeta, subs))
	if err != nil {
		return editor.SplitMessages{}, err
	}
	return editor.Parse(buf)
}

// stagedDiffPreview renders a commented-out before/after diff for every
// staged path in a sub-repo, sourced from its HEAD tree and current index.
func stagedDiffPreview(ctx context.Context, env *environment, name string, staged map[string]meta.FileStatus) (string, error) {
	handle, err := env.commit.Opener.Open(ctx, name, subRoot(env.root, name))
	if err != nil {
		return "", err
	}

	var headTree map[string]meta.Change
	if headID, err := handle.Store.ResolveRef(ctx, "HEAD"); err == nil {
		headTree, err = handle.Store.Tree(ctx, headID)
		if err != nil {
			return "", err
		}
	}
	index, err := handle.Store.ReadIndex(ctx, handle.Root)
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(staged))
	for p := range staged {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, path := range paths {
		before := fileBody(headTree[path])
		after := fileBody(index[path])
		b.WriteString("# --- " + path + " ---\n")
		for _, line := range strings.Split(editor.DiffPreview(before, after), "\n") {
			b.WriteString("# " + line + "\n")
		}
	}
	return b.String(), nil
}

func fileBody(ch meta.Change) string {
	if ch.Kind != meta.ChangeFile {
		return ""
	}
	return string(ch.File.Content)
}
