package sequencer

import (
	"context"
	"fmt"
	"sort"

	"github.com/NahomAnteneh/metarepo/internal/meta"
)

// getOrAbsent returns tree[path] if present, else a removal marker: in a
// materialized tree, an absent key and an explicit deletion mean the same
// thing.
func getOrAbsent(tree map[string]meta.Change, path string) meta.Change {
	if ch, ok := tree[path]; ok {
		return ch
	}
	return meta.RemovedChange()
}

func treeDelta(from, to map[string]meta.Change) map[string]meta.Change {
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

func unionPaths(trees ...map[string]meta.Change) []string {
	seen := map[string]bool{}
	for _, t := range trees {
		for p := range t {
			seen[p] = true
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// threeWayTree merges base/ours/theirs path by path, recursing into
// submodules unless the path falls under a do-not-recurse prefix, and
// delegating genuine divergence on ordinary files to the store's
// ThreeWayMerge (blob-level merge itself is out of scope, spec Non-goals).
// Returns the merged tree and conflicted=true if any path could not be
// resolved; conflicted paths are written into the returned tree as
// ChangeConflict entries so callers can stage them for the user.
func (e *Engine) threeWayTree(ctx context.Context, repo Repo, base, ours, theirs map[string]meta.Change, doNotRecurse []string) (map[string]meta.Change, bool, error) {
	prefixes := doNotRecursePrefixes(doNotRecurse)
	merged := map[string]meta.Change{}
	conflictedAny := false

	for _, path := range unionPaths(base, ours, theirs) {
		a := getOrAbsent(base, path)
		o := getOrAbsent(ours, path)
		t := getOrAbsent(theirs, path)

		if o.Equal(t) {
			if !o.IsRemoval() {
				merged[path] = o
			}
			continue
		}
		if o.Equal(a) {
			if !t.IsRemoval() {
				merged[path] = t
			}
			continue
		}
		if t.Equal(a) {
			if !o.IsRemoval() {
				merged[path] = o
			}
			continue
		}

		if o.Kind == meta.ChangeSubmodule && t.Kind == meta.ChangeSubmodule && a.Kind == meta.ChangeSubmodule && !underDoNotRecurse(path, prefixes) {
			newSha, ok, err := e.mergeSubmodule(ctx, repo, path, a.Sub.Sha, o.Sub.Sha, t.Sub.Sha)
			if err != nil {
				return nil, false, err
			}
			if ok {
				merged[path] = meta.SubmoduleChange(meta.Submodule{URL: o.Sub.URL, Sha: newSha})
				continue
			}
		}

		resolved, ok, conflict, err := repo.Store.ThreeWayMerge(ctx, path, a, o, t)
		if err != nil {
			return nil, false, err
		}
		if ok {
			if !resolved.IsRemoval() {
				merged[path] = resolved
			}
			continue
		}
		merged[path] = meta.ConflictChange(conflict)
		conflictedAny = true
	}

	return merged, conflictedAny, nil
}

// mergeSubmodule resolves a diverging submodule pin by merging inside the
// sub-repo and producing a new sub commit with both sub-shas as parents.
func (e *Engine) mergeSubmodule(ctx context.Context, repo Repo, name, ancestorSha, oursSha, theirsSha string) (string, bool, error) {
	if oursSha == theirsSha {
		return oursSha, true, nil
	}
	if theirsSha == ancestorSha {
		return oursSha, true, nil
	}
	if oursSha == ancestorSha {
		return theirsSha, true, nil
	}

	handle, err := e.Opener.Open(ctx, name, subRoot(repo.Root, name))
	if err != nil {
		return "", false, err
	}
	subRepo := Repo{Root: handle.Root, Store: handle.Store}

	baseTree, err := handle.Store.Tree(ctx, ancestorSha)
	if err != nil {
		return "", false, err
	}
	oursTree, err := handle.Store.Tree(ctx, oursSha)
	if err != nil {
		return "", false, err
	}
	theirsTree, err := handle.Store.Tree(ctx, theirsSha)
	if err != nil {
		return "", false, err
	}

	merged, conflicted, err := e.threeWayTree(ctx, subRepo, baseTree, oursTree, theirsTree, nil)
	if err != nil {
		return "", false, err
	}
	if conflicted {
		return "", false, nil
	}

	delta := treeDelta(oursTree, merged)
	sig, err := handle.Store.DefaultSignature(ctx)
	if err != nil {
		return "", false, err
	}
	newID, err := handle.Store.WriteCommit(ctx, meta.Commit{
		Parents:     []string{oursSha, theirsSha},
		Changes:     delta,
		Message:     fmt.Sprintf("merge %s into submodule %s", theirsSha, name),
		AuthorName:  sig.AuthorName,
		AuthorEmail: sig.AuthorEmail,
	})
	if err != nil {
		return "", false, err
	}
	return newID, true, nil
}

func subRoot(metaRoot, name string) string {
	return metaRoot + "/" + name
}

// applyDelta merges headID and sourceCommit (given their common base) and,
// if clean, writes and advances to a two-parent merge commit; on conflict
// it stages the conflicted paths into the meta index and returns
// conflicted=true without writing a commit, so the caller can surface the
// conflict and leave SequencerState in place.
func (e *Engine) applyDelta(ctx context.Context, repo Repo, base, headID, sourceCommit string, doNotRecurse []string, parents []string, message string) (string, bool, error) {
	baseTree, err := repo.Store.Tree(ctx, base)
	if err != nil {
		return "", false, err
	}
	oursTree, err := repo.Store.Tree(ctx, headID)
	if err != nil {
		return "", false, err
	}
	theirsTree, err := repo.Store.Tree(ctx, sourceCommit)
	if err != nil {
		return "", false, err
	}

	merged, conflicted, err := e.threeWayTree(ctx, repo, baseTree, oursTree, theirsTree, doNotRecurse)
	if err != nil {
		return "", false, err
	}
	if err := repo.Store.WriteIndex(ctx, repo.Root, merged); err != nil {
		return "", false, err
	}
	if conflicted {
		return "", true, nil
	}

	delta := treeDelta(oursTree, merged)
	sig, err := repo.Store.DefaultSignature(ctx)
	if err != nil {
		return "", false, err
	}
	id, err := repo.Store.WriteCommit(ctx, meta.Commit{Parents: parents, Changes: delta, Message: message, AuthorName: sig.AuthorName, AuthorEmail: sig.AuthorEmail})
	if err != nil {
		return "", false, err
	}
	return id, false, nil
}

// finalizeConflictedMerge re-reads the now-resolved index and finishes the
// merge commit that applyDelta couldn't finish on its own.
func (e *Engine) finalizeConflictedMerge(ctx context.Context, repo Repo, state meta.SequencerState) (string, error) {
	index, err := repo.Store.ReadIndex(ctx, repo.Root)
	if err != nil {
		return "", err
	}
	oursTree, err := repo.Store.Tree(ctx, state.OriginalHead.Sha)
	if err != nil {
		return "", err
	}
	delta := treeDelta(oursTree, index)
	sig, err := repo.Store.DefaultSignature(ctx)
	if err != nil {
		return "", err
	}
	return repo.Store.WriteCommit(ctx, meta.Commit{
		Parents:     []string{state.OriginalHead.Sha, state.Target.Sha},
		Changes:     delta,
		Message:     state.Message,
		AuthorName:  sig.AuthorName,
		AuthorEmail: sig.AuthorEmail,
	})
}

// applyOneCommit is the §4.3 cherry-pick/rebase per-commit algorithm: the
// commit's own delta (not a full tree union) is applied onto the current
// HEAD, recursing into submodules for sub-sha updates unless the path is
// under a do-not-recurse prefix.
func (e *Engine) applyOneCommit(ctx context.Context, repo Repo, commitID string, doNotRecurse []string) (string, bool, error) {
	commit, err := repo.Store.ReadCommit(ctx, commitID)
	if err != nil {
		return "", false, err
	}
	var parentTree map[string]meta.Change
	if len(commit.Parents) > 0 {
		parentTree, err = repo.Store.Tree(ctx, commit.Parents[0])
		if err != nil {
			return "", false, err
		}
	} else {
		parentTree = map[string]meta.Change{}
	}

	headID, err := repo.Store.ResolveRef(ctx, "HEAD")
	if err != nil {
		return "", false, err
	}
	destTree, err := repo.Store.Tree(ctx, headID)
	if err != nil {
		return "", false, err
	}

	prefixes := doNotRecursePrefixes(doNotRecurse)
	index, err := repo.Store.ReadIndex(ctx, repo.Root)
	if err != nil {
		return "", false, err
	}
	conflictedAny := false

	paths := make([]string, 0, len(commit.Changes))
	for p := range commit.Changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		theirs := commit.Changes[path]
		ancestor := getOrAbsent(parentTree, path)
		ours := getOrAbsent(destTree, path)

		if ours.Equal(theirs) {
			continue
		}

		if theirs.Kind == meta.ChangeSubmodule && ancestor.Kind == meta.ChangeSubmodule && !underDoNotRecurse(path, prefixes) {
			subHandle, err := e.Opener.Open(ctx, path, subRoot(repo.Root, path))
			if err != nil {
				return "", false, err
			}
			subRepo := Repo{Root: subHandle.Root, Store: subHandle.Store}
			newSubID, subConflicted, err := e.applyOneCommit(ctx, subRepo, theirs.Sub.Sha, nil)
			if err != nil {
				return "", false, err
			}
			if subConflicted {
				conflictedAny = true
				continue
			}
			index[path] = meta.SubmoduleChange(meta.Submodule{URL: theirs.Sub.URL, Sha: newSubID})
			continue
		}

		if ours.Equal(ancestor) {
			if theirs.IsRemoval() {
				delete(index, path)
			} else {
				index[path] = theirs
			}
			continue
		}

		resolved, ok, conflict, err := repo.Store.ThreeWayMerge(ctx, path, ancestor, ours, theirs)
		if err != nil {
			return "", false, err
		}
		if !ok {
			index[path] = meta.ConflictChange(conflict)
			conflictedAny = true
			continue
		}
		if resolved.IsRemoval() {
			delete(index, path)
		} else {
			index[path] = resolved
		}
	}

	if err := repo.Store.WriteIndex(ctx, repo.Root, index); err != nil {
		return "", false, err
	}
	if conflictedAny {
		return "", true, nil
	}

	newID, err := commitFromApply(ctx, repo, headID, index, commit.Message)
	if err != nil {
		return "", false, err
	}
	if err := repo.Store.UpdateRef(ctx, "HEAD", newID); err != nil {
		return "", false, err
	}
	if branch, hasBranch, err := repo.Store.CurrentBranch(ctx); err == nil && hasBranch {
		_ = repo.Store.UpdateRef(ctx, "refs/heads/"+branch, newID)
	}
	return newID, false, nil
}

func commitFromApply(ctx context.Context, repo Repo, parentID string, index map[string]meta.Change, message string) (string, error) {
	parentTree, err := repo.Store.Tree(ctx, parentID)
	if err != nil {
		return "", err
	}
	delta := treeDelta(parentTree, index)
	var parents []string
	if parentID != "" {
		parents = []string{parentID}
	}
	sig, err := repo.Store.DefaultSignature(ctx)
	if err != nil {
		return "", err
	}
	return repo.Store.WriteCommit(ctx, meta.Commit{Parents: parents, Changes: delta, Message: message, AuthorName: sig.AuthorName, AuthorEmail: sig.AuthorEmail})
}

// finalizeConflictedStep mirrors applyOneCommit's tail (index -> commit)
// once the user has resolved a conflicted rebase/cherry-pick step.
func (e *Engine) finalizeConflictedStep(ctx context.Context, repo Repo, state meta.SequencerState) error {
	commitID := state.Commits[state.Current]
	commit, err := repo.Store.ReadCommit(ctx, commitID)
	if err != nil {
		return err
	}
	headID, err := repo.Store.ResolveRef(ctx, "HEAD")
	if err != nil {
		return err
	}
	index, err := repo.Store.ReadIndex(ctx, repo.Root)
	if err != nil {
		return err
	}
	newID, err := commitFromApply(ctx, repo, headID, index, commit.Message)
	if err != nil {
		return err
	}
	if err := repo.Store.UpdateRef(ctx, "HEAD", newID); err != nil {
		return err
	}
	if branch, hasBranch, err := repo.Store.CurrentBranch(ctx); err == nil && hasBranch {
		_ = repo.Store.UpdateRef(ctx, "refs/heads/"+branch, newID)
	}
	return nil
}
