// Package statusengine implements the StatusEngine of spec.md §4.1: it
// reads a meta-repo plus its open sub-repos and produces a RepoStatus,
// with path filtering, untracked-rollup, ignore-index, and
// show-meta-changes modes. Grounded on the teacher's cmd/status.go
// compareStatus (HEAD-tree -> index -> workdir comparison, bounded
// concurrency for per-file hashing) generalized to the meta-repo's
// sub-repo-aware value-object model and to per-sub bounded parallelism
// instead of per-file.
package statusengine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/NahomAnteneh/metarepo/internal/meta"
	"github.com/NahomAnteneh/metarepo/internal/objectstore"
	"github.com/NahomAnteneh/metarepo/internal/opener"
	"github.com/NahomAnteneh/metarepo/internal/parallel"
)

// Repo is the handle the engine operates on: a store plus the root path
// used as the key into the opener's per-sub-repo index/workdir state.
type Repo struct {
	Root  string
	Store objectstore.Store
	Bare  bool
	Sparse bool
}

// Options controls getRepoStatus per spec §4.1.
type Options struct {
	ShowMetaChanges  bool
	ShowAllUntracked bool
	IgnoreIndex      bool
	Paths            []string
}

// Engine computes RepoStatus values. Open sub-repos are resolved through
// Opener so the same memoized handle is reused across a single operation's
// status, commit, and sequencer calls.
type Engine struct {
	Opener *opener.Opener
}

func New(op *opener.Opener) *Engine {
	return &Engine{Opener: op}
}

// GetRepoStatus is the §4.1 algorithm.
func (e *Engine) GetRepoStatus(ctx context.Context, repo Repo, opts Options) (meta.RepoStatus, error) {
	status := meta.RepoStatus{
		Staged:     map[string]meta.FileStatus{},
		Workdir:    map[string]meta.FileStatus{},
		Submodules: map[string]meta.SubmoduleStatus{},
		Sparse:     repo.Sparse,
	}

	branch, hasBranch, headID, hasHead, err := currentRef(ctx, repo.Store)
	if err != nil {
		return status, fmt.Errorf("statusengine: resolve HEAD: %w", err)
	}
	status.CurrentBranch, status.HasBranch = branch, hasBranch
	status.HeadCommit, status.HasHeadCommit = headID, hasHead

	// Step 1: bare or pre-initial repos short-circuit with empty collections.
	if repo.Bare || !hasHead {
		return status, nil
	}

	headTree, err := repo.Store.Tree(ctx, headID)
	if err != nil {
		return status, fmt.Errorf("statusengine: materialize HEAD tree: %w", err)
	}
	index, err := repo.Store.ReadIndex(ctx, repo.Root)
	if err != nil {
		return status, fmt.Errorf("statusengine: read index: %w", err)
	}
	workdir, err := repo.Store.ReadWorkdir(ctx, repo.Root)
	if err != nil {
		return status, fmt.Errorf("statusengine: read workdir: %w", err)
	}

	// Step 2: meta-level staged/workdir diffs.
	if opts.ShowMetaChanges {
		status.Staged = diffNonSubmodules(headTree, index)
	}
	var rawWorkdir map[string]meta.FileStatus
	if opts.IgnoreIndex {
		rawWorkdir = diffNonSubmodules(headTree, workdir)
	} else {
		rawWorkdir = diffNonSubmodules(index, workdir)
	}
	status.Workdir = rollupUntracked(rawWorkdir, opts.ShowAllUntracked)

	// Step 3: union of sub-paths from HEAD tree and index, optionally
	// filtered by paths.
	subPaths := map[string]bool{}
	for path, ch := range headTree {
		if ch.Kind == meta.ChangeSubmodule {
			subPaths[path] = true
		}
	}
	for path, ch := range index {
		if ch.Kind == meta.ChangeSubmodule {
			subPaths[path] = true
		}
	}
	names := make([]string, 0, len(subPaths))
	for name := range subPaths {
		if pathsMatch(opts.Paths, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	type subResult struct {
		name   string
		status meta.SubmoduleStatus
	}
	results, err := parallel.DoInParallel(ctx, parallel.DefaultLimit, names, func(c context.Context, name string) (subResult, error) {
		st, err := e.getSubmoduleStatus(c, repo, name, headTree[name], index[name], opts)
		return subResult{name: name, status: st}, err
	})
	if err != nil {
		return status, fmt.Errorf("statusengine: submodule status: %w", err)
	}
	for _, r := range results {
		status.Submodules[r.name] = r.status
	}

	return status, nil
}

// getSubmoduleStatus computes the Commit/Index/Workdir sides of step 4.
func (e *Engine) getSubmoduleStatus(ctx context.Context, repo Repo, name string, commitEntry, indexEntry meta.Change, opts Options) (meta.SubmoduleStatus, error) {
	var st meta.SubmoduleStatus

	if commitEntry.Kind == meta.ChangeSubmodule {
		st.Commit = meta.SubmoduleCommit{Present: true, Sha: commitEntry.Sub.Sha, URL: commitEntry.Sub.URL}
	}

	hasIndex := indexEntry.Kind == meta.ChangeSubmodule
	if hasIndex {
		st.Index = meta.SubmoduleIndex{Present: true, Sha: indexEntry.Sub.Sha, URL: indexEntry.Sub.URL}
	}

	if st.Commit.Present && st.Index.Present {
		if st.Commit.Sha == st.Index.Sha {
			st.Index.Relation = meta.RelationSame
		} else if e.Opener.IsOpen(name) {
			handle, err := e.Opener.Open(ctx, name, subRoot(repo.Root, name))
			if err != nil {
				return st, err
			}
			rel, err := relationBetween(ctx, handle.Store, st.Index.Sha, st.Commit.Sha)
			if err != nil {
				return st, err
			}
			st.Index.Relation = rel
		} else {
			st.Index.Relation = meta.RelationUnknown
		}
	} else if st.Index.Present {
		st.Index.Relation = meta.RelationSame // newly added; nothing to compare against
	}

	if e.Opener.IsOpen(name) {
		handle, err := e.Opener.Open(ctx, name, subRoot(repo.Root, name))
		if err != nil {
			return st, err
		}
		subPaths := descendantPaths(opts.Paths, name)
		subOpts := Options{
			ShowMetaChanges:  opts.ShowMetaChanges,
			ShowAllUntracked: opts.ShowAllUntracked,
			IgnoreIndex:      opts.IgnoreIndex,
			Paths:            subPaths,
		}
		subRepoForStatus := Repo{Root: handle.Root, Store: handle.Store}
		subStatus, err := e.GetRepoStatus(ctx, subRepoForStatus, subOpts)
		if err != nil {
			return st, fmt.Errorf("statusengine: sub %q: %w", name, err)
		}
		st.Workdir.Present = true
		st.Workdir.Status = &subStatus

		if st.Index.Present && subStatus.HasHeadCommit {
			rel, err := relationBetween(ctx, handle.Store, st.Index.Sha, subStatus.HeadCommit)
			if err != nil {
				return st, err
			}
			st.Workdir.Relation = rel
		} else {
			st.Workdir.Relation = meta.RelationUnknown
		}
	}

	return st, nil
}

// relationBetween classifies a vs b per the five relations of §3's
// RepoStatus.Submodule: SAME when equal, AHEAD when a is a descendant of b,
// BEHIND when a is an ancestor of b, UNRELATED when neither.
func relationBetween(ctx context.Context, store objectstore.Store, a, b string) (meta.Relation, error) {
	if a == b {
		return meta.RelationSame, nil
	}
	bAncestorOfA, err := store.IsAncestor(ctx, b, a)
	if err != nil {
		return meta.RelationUnknown, err
	}
	if bAncestorOfA {
		return meta.RelationAhead, nil
	}
	aAncestorOfB, err := store.IsAncestor(ctx, a, b)
	if err != nil {
		return meta.RelationUnknown, err
	}
	if aAncestorOfB {
		return meta.RelationBehind, nil
	}
	return meta.RelationUnrelated, nil
}

// IsDeepClean is re-exported at the engine level so callers that just
// computed a RepoStatus don't need to import meta directly for this check.
func IsDeepClean(status meta.RepoStatus, all bool) bool {
	return status.IsDeepClean(all)
}

func currentRef(ctx context.Context, store objectstore.Store) (branch string, hasBranch bool, head string, hasHead bool, err error) {
	id, err := store.ResolveRef(ctx, "HEAD")
	if err != nil {
		return "", false, "", false, nil // no commits yet: not an error, §4.1 step 1
	}
	name, has, err := store.CurrentBranch(ctx)
	if err != nil {
		return "", false, "", false, err
	}
	return name, has, id, true, nil
}

func diffNonSubmodules(from, to map[string]meta.Change) map[string]meta.FileStatus {
	out := map[string]meta.FileStatus{}
	for path, toCh := range to {
		if toCh.Kind == meta.ChangeSubmodule {
			continue
		}
		if toCh.Kind == meta.ChangeConflict {
			out[path] = meta.FileConflicted
			continue
		}
		fromCh, existed := from[path]
		if !existed || fromCh.Kind == meta.ChangeSubmodule {
			out[path] = meta.FileAdded
			continue
		}
		if toCh.Kind == meta.ChangeRemoved {
			continue // absent in "to" handled below
		}
		if fromCh.Kind != toCh.Kind {
			out[path] = meta.FileTypeChanged
		} else if !fromCh.Equal(toCh) {
			out[path] = meta.FileModified
		}
	}
	for path, fromCh := range from {
		if fromCh.Kind == meta.ChangeSubmodule {
			continue
		}
		if _, stillPresent := to[path]; !stillPresent {
			out[path] = meta.FileRemoved
		}
	}
	return out
}

// rollupUntracked collapses new/untracked paths under a single directory
// into one "dir/" entry unless showAll is requested (§4.1 step 2).
func rollupUntracked(in map[string]meta.FileStatus, showAll bool) map[string]meta.FileStatus {
	if showAll {
		return in
	}
	out := map[string]meta.FileStatus{}
	dirsRolled := map[string]bool{}
	for path, st := range in {
		if st != meta.FileAdded || !strings.Contains(path, "/") {
			out[path] = st
			continue
		}
		dir := path[:strings.Index(path, "/")+1]
		dirsRolled[dir] = true
	}
	for dir := range dirsRolled {
		out[dir] = meta.FileAdded
	}
	return out
}

// pathsMatch reports whether name passes a prefix filter on path segment
// boundaries; an empty filter matches everything.
func pathsMatch(filters []string, name string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		f = strings.TrimSuffix(f, "/")
		if f == name || strings.HasPrefix(name, f+"/") || strings.HasPrefix(f, name+"/") {
			return true
		}
	}
	return false
}

// descendantPaths projects a paths filter down into a sub-repo named
// subName, keeping only the remainder after the sub's own prefix.
func descendantPaths(filters []string, subName string) []string {
	if len(filters) == 0 {
		return nil
	}
	var out []string
	for _, f := range filters {
		f = strings.TrimSuffix(f, "/")
		if f == subName {
			continue // filter matches the whole submodule; no further restriction inside it
		}
		if strings.HasPrefix(f, subName+"/") {
			out = append(out, strings.TrimPrefix(f, subName+"/"))
		}
	}
	return out
}

func subRoot(metaRoot, name string) string {
	return metaRoot + "/" + name
}
