// Package commitengine implements CommitEngine (spec §4.2): plain, --all,
// path-restricted, amend, and interactive-split commits across a meta-repo
// and its open sub-repos. Grounded on the teacher's commit-handling idiom
// in cmd/commit.go and internal/objects/commit.go (a Commit carries tree,
// parents, author, committer, message), generalized to the value-object
// Commit of internal/meta and to fan-out across sub-repos.
package commitengine

import (
	"context"
	"fmt"
	"sort"

	"github.com/NahomAnteneh/metarepo/internal/errs"
	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
	"github.com/NahomAnteneh/metarepo/internal/opener"
	"github.com/NahomAnteneh/metarepo/internal/parallel"
	"github.com/NahomAnteneh/metarepo/internal/statusengine"
)

// Repo bundles a meta-repo root and its store, mirroring statusengine.Repo.
type Repo = statusengine.Repo

// Result is the return value of Commit/CommitPaths: the meta commit (if
// any was produced) and the id each sub-repo received, if it received one.
type Result struct {
	MetaCommit       string
	HasMetaCommit    bool
	SubmoduleCommits map[string]string
}

// Engine drives commit production. It shares an Opener with the status
// engine so a sub-repo opened for status computation isn't reopened for
// commit.
type Engine struct {
	Opener *opener.Opener
	Status *statusengine.Engine
}

func New(op *opener.Opener) *Engine {
	return &Engine{Opener: op, Status: statusengine.New(op)}
}

// ShouldCommit implements the §4.2 decision rules: whether generating
// commits from status would change history at all.
func ShouldCommit(status meta.RepoStatus, skipMeta bool, subMessages map[string]string, hasSubMessages bool) bool {
	if len(status.Staged) > 0 && !skipMeta {
		return true
	}

	names := sortedSubNames(status.Submodules)
	for _, name := range names {
		sub := status.Submodules[name]
		if sub.Workdir.Present && sub.Workdir.Relation != meta.RelationSame && !skipMeta {
			return true
		}
		innerClean := !sub.Workdir.Present || sub.Workdir.Status == nil || len(sub.Workdir.Status.Staged) == 0
		namedOrUnspecified := !hasSubMessages
		if hasSubMessages {
			_, namedOrUnspecified = subMessages[name]
		}
		if !innerClean && namedOrUnspecified {
			return true
		}
		if !skipMeta {
			if sub.Index.Sha != sub.Commit.Sha || sub.Index.URL != sub.Commit.URL {
				return true
			}
			if sub.Index.Present != sub.Commit.Present {
				return true // added or removed
			}
		}
	}
	return false
}

// Commit implements §4.2's plain/--all/sub-message commit algorithm. closed,
// when true, skips any submodule not already open in e.Opener's cache rather
// than opening (or recursing into) a fresh handle for it.
func (e *Engine) Commit(ctx context.Context, repo Repo, all bool, status meta.RepoStatus, message string, hasMessage bool, subMessages map[string]string, hasSubMessages bool, closed bool) (Result, error) {
	result := Result{SubmoduleCommits: map[string]string{}}

	names := sortedSubNames(status.Submodules)
	var toCommit []string
	for _, name := range names {
		sub := status.Submodules[name]
		if !sub.Workdir.Present {
			continue
		}
		if closed && !e.Opener.IsOpen(name) {
			continue
		}
		if hasSubMessages {
			if _, named := subMessages[name]; !named {
				continue
			}
		}
		if sub.Workdir.Status == nil || len(sub.Workdir.Status.Staged) == 0 {
			continue
		}
		toCommit = append(toCommit, name)
	}

	type subCommit struct {
		name string
		id   string
	}
	commits, err := parallel.DoInParallel(ctx, parallel.DefaultLimit, toCommit, func(c context.Context, name string) (subCommit, error) {
		handle, err := e.Opener.Open(c, name, subRoot(repo.Root, name))
		if err != nil {
			return subCommit{}, err
		}
		msg := message
		if hasSubMessages {
			msg = subMessages[name]
		}
		id, err := commitOne(c, handle.Store, handle.Root, all, msg)
		if err != nil {
			return subCommit{}, fmt.Errorf("commitengine: sub %q: %w", name, err)
		}
		return subCommit{name: name, id: id}, nil
	})
	if err != nil {
		return result, err
	}
	for _, sc := range commits {
		result.SubmoduleCommits[sc.name] = sc.id
	}

	// Step 2: stage every open sub in the meta-index so workdir sub-shas
	// reflect into the meta commit.
	index, err := repo.Store.ReadIndex(ctx, repo.Root)
	if err != nil {
		return result, fmt.Errorf("commitengine: read meta index: %w", err)
	}
	for _, name := range e.Opener.Names() {
		sub := status.Submodules[name]
		sha := sub.Workdir.Status
		if sha == nil || !sha.HasHeadCommit {
			continue
		}
		if id, committed := result.SubmoduleCommits[name]; committed {
			index[name] = meta.SubmoduleChange(meta.Submodule{URL: sub.Index.URL, Sha: id})
		} else {
			index[name] = meta.SubmoduleChange(meta.Submodule{URL: sub.Index.URL, Sha: sha.HeadCommit})
		}
	}
	if err := repo.Store.WriteIndex(ctx, repo.Root, index); err != nil {
		return result, fmt.Errorf("commitengine: write meta index: %w", err)
	}

	// Step 3: meta commit iff a message was actually supplied.
	if hasMessage {
		id, err := commitOne(ctx, repo.Store, repo.Root, all, message)
		if err != nil {
			return result, fmt.Errorf("commitengine: meta commit: %w", err)
		}
		result.MetaCommit = id
		result.HasMetaCommit = true
	}

	return result, nil
}

// commitOne stages (if all) the non-submodule workdir changes atop the
// index and writes a single commit with the default signature.
func commitOne(ctx context.Context, store objectstore.Store, root string, all bool, message string) (string, error) {
	index, err := store.ReadIndex(ctx, root)
	if err != nil {
		return "", err
	}
	if all {
		workdir, err := store.ReadWorkdir(ctx, root)
		if err != nil {
			return "", err
		}
		index = meta.MergeDeltas(index, trackedOnly(index, workdir))
		if err := store.WriteIndex(ctx, root, index); err != nil {
			return "", err
		}
	}

	headID, err := store.ResolveRef(ctx, "HEAD")
	hasHead := err == nil
	var parents []string
	if hasHead {
		parents = []string{headID}
	}

	var headTree map[string]meta.Change
	if hasHead {
		headTree, err = store.Tree(ctx, headID)
		if err != nil {
			return "", err
		}
	} else {
		headTree = map[string]meta.Change{}
	}
	changes := deltaFromTrees(headTree, index)
	if len(changes) == 0 {
		return "", errs.NewUserError("nothing to commit, working tree clean")
	}

	sig, err := store.DefaultSignature(ctx)
	if err != nil {
		return "", fmt.Errorf("commitengine: default signature: %w", err)
	}
	commit := meta.Commit{Parents: parents, Changes: changes, Message: message, AuthorName: sig.AuthorName, AuthorEmail: sig.AuthorEmail}
	id, err := store.WriteCommit(ctx, commit)
	if err != nil {
		return "", err
	}
	branch, hasBranch, err := store.CurrentBranch(ctx)
	if err != nil {
		return "", err
	}
	if err := store.UpdateRef(ctx, "HEAD", id); err != nil {
		return "", err
	}
	if hasBranch {
		if err := store.UpdateRef(ctx, "refs/heads/"+branch, id); err != nil {
			return "", err
		}
	}
	return id, nil
}

// trackedOnly restricts workdir to non-submodule paths already present in
// index, the "stage modified-tracked workdir entries" half of --all (new
// untracked files are never auto-staged; a tracked path missing from the
// workdir is staged as a removal).
func trackedOnly(index, workdir map[string]meta.Change) map[string]meta.Change {
	out := map[string]meta.Change{}
	for path, idxCh := range index {
		if idxCh.Kind == meta.ChangeSubmodule {
			continue
		}
		if ch, ok := workdir[path]; ok {
			out[path] = ch
		} else {
			out[path] = meta.RemovedChange()
		}
	}
	return out
}

// deltaFromTrees computes the minimal delta turning `from` into `to`,
// honoring the "no no-op changes" invariant of §3: a path whose value is
// unchanged is omitted.
func deltaFromTrees(from, to map[string]meta.Change) map[string]meta.Change {
	out := map[string]meta.Change{}
	for path, toCh := range to {
		if fromCh, ok := from[path]; !ok || !fromCh.Equal(toCh) {
			out[path] = toCh
		}
	}
	for path := range from {
		if _, ok := to[path]; !ok {
			out[path] = meta.RemovedChange()
		}
	}
	return out
}

func sortedSubNames(m map[string]meta.SubmoduleStatus) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func subRoot(metaRoot, name string) string {
	return metaRoot + "/" + name
}
